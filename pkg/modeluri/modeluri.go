// Package modeluri parses and builds model URIs.
//
// Two formats are supported:
//
//	provider/model              simple form, provider-default base URL
//	provider@base:model?params  full form; "~" keeps the default base URL
//
// The full form tolerates colons on both sides of the separator: the
// base may carry a port ("ollama@localhost:11434:qwen3:8b") and the
// model name itself may contain colons ("qwen3:8b"). The separator is
// found by checking what follows each colon: digits or "/" continue the
// base URL, anything else starts the model.
package modeluri

import (
	"fmt"
	"net/url"
	"strings"
)

// URI is a parsed model address.
type URI struct {
	Provider string
	// BaseURL is empty when the provider's default endpoint applies.
	BaseURL string
	Model   string
	Params  map[string]string
}

// Parse splits a model URI into its components.
func Parse(uri string) (*URI, error) {
	if uri == "" {
		return nil, fmt.Errorf("modeluri: empty uri")
	}
	if strings.Contains(uri, "@") {
		return parseFull(uri)
	}
	if strings.Contains(uri, "/") {
		return parseSimple(uri)
	}
	return nil, fmt.Errorf("modeluri: invalid uri %q: expected provider/model or provider@base:model", uri)
}

func parseSimple(uri string) (*URI, error) {
	if strings.Contains(uri, "?") {
		return nil, fmt.Errorf("modeluri: simple form %q cannot carry query parameters; use provider@base:model?params", uri)
	}

	provider, model, _ := strings.Cut(uri, "/")
	if provider == "" || model == "" {
		return nil, fmt.Errorf("modeluri: provider and model cannot be empty in %q", uri)
	}
	if strings.ContainsAny(provider, "@:~?#") {
		return nil, fmt.Errorf("modeluri: invalid provider name %q", provider)
	}

	return &URI{Provider: provider, Model: model}, nil
}

func parseFull(uri string) (*URI, error) {
	head := uri
	query := ""
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		head, query = uri[:i], uri[i+1:]
	}

	provider, rest, _ := strings.Cut(head, "@")
	if !strings.Contains(rest, ":") {
		return nil, fmt.Errorf("modeluri: missing ':' separator in %q", uri)
	}

	var base, model string
	switch {
	case strings.HasPrefix(rest, "http://") || strings.HasPrefix(rest, "https://"):
		base, model = splitHTTPBase(rest)
	case strings.HasPrefix(rest, "~:"):
		base, model = "~", rest[2:]
	default:
		base, model = splitHostBase(rest)
	}

	if base == "~" {
		base = ""
	}

	params, err := parseParams(query)
	if err != nil {
		return nil, err
	}

	return &URI{Provider: provider, BaseURL: base, Model: model, Params: params}, nil
}

// splitHTTPBase separates an http(s) base URL from the model name. A
// colon inside the URL is followed by digits (a port) or "/" (a path);
// the first colon followed by anything else starts the model.
func splitHTTPBase(rest string) (base, model string) {
	start := strings.Index(rest, "//") + 2
	for i := start; i < len(rest); i++ {
		if rest[i] != ':' || i+1 >= len(rest) {
			continue
		}
		if next := rest[i+1]; !isDigit(next) && next != '/' {
			return rest[:i], rest[i+1:]
		}
	}
	last := strings.LastIndexByte(rest, ':')
	return rest[:last], rest[last+1:]
}

// splitHostBase handles bare host[:port] bases.
func splitHostBase(rest string) (base, model string) {
	first := strings.IndexByte(rest, ':')
	after := rest[first+1:]

	if after == "" || !isDigit(after[0]) {
		// No port; the first colon is the separator.
		return rest[:first], after
	}

	portEnd := first + 1
	for portEnd < len(rest) && isDigit(rest[portEnd]) {
		portEnd++
	}
	if portEnd < len(rest) && rest[portEnd] == ':' {
		return rest[:portEnd], rest[portEnd+1:]
	}
	last := strings.LastIndexByte(rest, ':')
	return rest[:last], rest[last+1:]
}

func parseParams(query string) (map[string]string, error) {
	if query == "" {
		return nil, nil
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("modeluri: bad query string: %w", err)
	}
	params := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 && vals[0] != "" {
			params[key] = vals[0]
		}
	}
	return params, nil
}

// Build assembles a full-form URI. An empty baseURL becomes "~".
func Build(provider, model, baseURL string, params map[string]string) (string, error) {
	if provider == "" {
		return "", fmt.Errorf("modeluri: provider cannot be empty")
	}
	if model == "" {
		return "", fmt.Errorf("modeluri: model cannot be empty")
	}
	if strings.ContainsAny(provider, "@:~?#") {
		return "", fmt.Errorf("modeluri: provider cannot contain special characters: %q", provider)
	}
	// Colons are fine in model names ("qwen3:8b"); the rest are not.
	if strings.ContainsAny(model, "@~?#") {
		return "", fmt.Errorf("modeluri: model cannot contain special characters: %q", model)
	}

	authority := "~"
	if baseURL != "" {
		authority = strings.TrimRight(baseURL, "/")
	}
	uri := provider + "@" + authority + ":" + model

	if len(params) > 0 {
		values := url.Values{}
		for key, val := range params {
			if val != "" {
				values.Set(key, val)
			}
		}
		if encoded := values.Encode(); encoded != "" {
			uri += "?" + encoded
		}
	}
	return uri, nil
}

// BuildSimple assembles a simple-form URI.
func BuildSimple(provider, model string) (string, error) {
	if provider == "" {
		return "", fmt.Errorf("modeluri: provider cannot be empty")
	}
	if model == "" {
		return "", fmt.Errorf("modeluri: model cannot be empty")
	}
	if strings.ContainsAny(provider, "@:~?#/") {
		return "", fmt.Errorf("modeluri: provider cannot contain special characters: %q", provider)
	}
	return provider + "/" + model, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
