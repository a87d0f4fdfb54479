package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func versionHandler(config VersionConfig) http.Handler {
	return Version(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestVersionMiddleware_NoHeader(t *testing.T) {
	handler := versionHandler(DefaultVersionConfig())

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	if rr.Header().Get("API-Version") != "1.0.0" {
		t.Errorf("Expected API-Version 1.0.0, got %s", rr.Header().Get("API-Version"))
	}

	if rr.Header().Get("Deprecation") != "" {
		t.Error("Current version should not have Deprecation header")
	}
}

func TestVersionMiddleware_SatisfiedConstraint(t *testing.T) {
	config := VersionConfig{CurrentVersion: "1.2.0"}
	handler := versionHandler(config)

	for _, constraint := range []string{"1", "^1.0", ">=1.2", ">=1.0 <2"} {
		t.Run(constraint, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Accept-Version", constraint)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
			}

			if rr.Header().Get("API-Version") != "1.2.0" {
				t.Errorf("Expected API-Version 1.2.0, got %s", rr.Header().Get("API-Version"))
			}
		})
	}
}

func TestVersionMiddleware_UnsatisfiedConstraint(t *testing.T) {
	config := VersionConfig{CurrentVersion: "1.2.0"}
	handler := versionHandler(config)

	for _, constraint := range []string{"2", "^2.0", ">=1.3"} {
		t.Run(constraint, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Accept-Version", constraint)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusNotAcceptable {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusNotAcceptable)
			}
		})
	}
}

func TestVersionMiddleware_MalformedConstraint(t *testing.T) {
	handler := versionHandler(DefaultVersionConfig())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Accept-Version", "not a version")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestVersionMiddleware_DeprecatedMajor(t *testing.T) {
	sunset := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	config := VersionConfig{
		CurrentVersion: "1.2.0",
		Deprecated:     map[uint64]time.Time{1: sunset},
	}
	handler := versionHandler(config)

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Deprecation") != "true" {
		t.Errorf("Expected Deprecation true, got %s", rr.Header().Get("Deprecation"))
	}

	if rr.Header().Get("Sunset") != sunset.Format(http.TimeFormat) {
		t.Errorf("Sunset = %s, want %s", rr.Header().Get("Sunset"), sunset.Format(http.TimeFormat))
	}
}
