package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

// Request helpers

// makeRequest makes an HTTP request to the test server.
func makeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	env := GetTestEnv()
	if env == nil {
		t.Fatal("Test environment not initialized")
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	url := env.BaseURL + path //nolint:staticcheck // SA5011: Check above ensures non-nil
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := env.Client.Do(req) //nolint:staticcheck // SA5011: env checked above
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	return resp
}

// parseResponse parses a JSON response into the given target.
func parseResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	if target != nil {
		if err := json.Unmarshal(data, target); err != nil {
			t.Fatalf("Failed to parse response JSON: %v\nBody: %s", err, string(data))
		}
	}
}

// assertStatus asserts the response status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()

	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("Expected status %d, got %d. Body: %s", expected, resp.StatusCode, string(body))
	}
}

// Session helpers

// createSession creates a new session and returns its ID.
func createSession(t *testing.T) string {
	t.Helper()

	resp := makeRequest(t, "POST", "/api/v1/sessions", nil)
	assertStatus(t, resp, http.StatusCreated)

	var result map[string]interface{}
	parseResponse(t, resp, &result)

	id, ok := result["id"].(string)
	if !ok {
		t.Fatal("Session ID not found in response")
	}
	return id
}

// getSession retrieves a session by ID.
func getSession(t *testing.T, id string) map[string]interface{} {
	t.Helper()

	resp := makeRequest(t, "GET", fmt.Sprintf("/api/v1/sessions/%s", id), nil)
	assertStatus(t, resp, http.StatusOK)

	var result map[string]interface{}
	parseResponse(t, resp, &result)
	return result
}

// listSessions retrieves all sessions.
func listSessions(t *testing.T) []interface{} {
	t.Helper()

	resp := makeRequest(t, "GET", "/api/v1/sessions", nil)
	assertStatus(t, resp, http.StatusOK)

	var result map[string]interface{}
	parseResponse(t, resp, &result)

	sessions, ok := result["sessions"].([]interface{})
	if !ok {
		return []interface{}{}
	}
	return sessions
}

// deleteSession deletes a session by ID.
func deleteSession(t *testing.T, id string) {
	t.Helper()

	resp := makeRequest(t, "DELETE", fmt.Sprintf("/api/v1/sessions/%s", id), nil)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

// getMessages retrieves a session's transcript.
func getMessages(t *testing.T, id string) []interface{} {
	t.Helper()

	resp := makeRequest(t, "GET", fmt.Sprintf("/api/v1/sessions/%s/messages", id), nil)
	assertStatus(t, resp, http.StatusOK)

	var result map[string]interface{}
	parseResponse(t, resp, &result)

	messages, ok := result["messages"].([]interface{})
	if !ok {
		return []interface{}{}
	}
	return messages
}

// getStats retrieves conversation statistics for a session.
func getStats(t *testing.T, id string) map[string]interface{} {
	t.Helper()

	resp := makeRequest(t, "GET", fmt.Sprintf("/api/v1/sessions/%s/stats", id), nil)
	assertStatus(t, resp, http.StatusOK)

	var result map[string]interface{}
	parseResponse(t, resp, &result)
	return result
}

// resetSession clears a session's conversation history.
//
//nolint:unused // Test helper
func resetSession(t *testing.T, id string) {
	t.Helper()

	resp := makeRequest(t, "POST", fmt.Sprintf("/api/v1/sessions/%s/reset", id), nil)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

// Chat helpers

// sendChat sends a chat message and returns the response.
//
//nolint:unused // Test helper, needs a configured model backend
func sendChat(t *testing.T, sessionID, message string) map[string]interface{} {
	t.Helper()

	body := map[string]interface{}{
		"message": message,
	}
	if sessionID != "" {
		body["session_id"] = sessionID
	}

	resp := makeRequest(t, "POST", "/api/v1/chat", body)
	assertStatus(t, resp, http.StatusOK)

	var result map[string]interface{}
	parseResponse(t, resp, &result)
	return result
}

// Health helpers

// getHealth retrieves the health status.
func getHealth(t *testing.T) map[string]interface{} {
	t.Helper()

	resp := makeRequest(t, "GET", "/api/v1/health", nil)
	assertStatus(t, resp, http.StatusOK)

	var result map[string]interface{}
	parseResponse(t, resp, &result)
	return result
}
