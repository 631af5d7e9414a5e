package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"shortreel/internal/domain"
)

// JoinURL builds a request URL from a config base and endpoint, using
// fallback when the config leaves the endpoint empty.
func JoinURL(base, endpoint, fallback string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = fallback
	}
	if !strings.HasPrefix(ep, "/") {
		ep = "/" + ep
	}
	return base + ep
}

// APIError turns a non-2xx provider response into an error. 401/403 wrap
// domain.ErrAuth so callers can tell a broken configuration from an ordinary
// request failure.
func APIError(provider string, status int, body []byte) error {
	msg := ErrorMessage(body)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if msg != "" {
			return fmt.Errorf("%s: %w: status %d - %s", provider, domain.ErrAuth, status, msg)
		}
		return fmt.Errorf("%s: %w: status %d", provider, domain.ErrAuth, status)
	}
	if msg != "" {
		return fmt.Errorf("%s: request failed: status %d - %s", provider, status, msg)
	}
	return fmt.Errorf("%s: request failed: status %d", provider, status)
}

// ErrorMessage extracts a human-readable message from the error body shapes
// the upstream APIs use. Best effort; returns a truncated raw body when the
// payload is not JSON.
func ErrorMessage(body []byte) string {
	var decoded struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Msg     string          `json:"msg"`
		Code    string          `json:"code"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return truncate(strings.TrimSpace(string(body)), 200)
	}
	if len(decoded.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(decoded.Error, &nested); err == nil && nested.Message != "" {
			return truncate(nested.Message, 200)
		}
		var plain string
		if err := json.Unmarshal(decoded.Error, &plain); err == nil && plain != "" {
			return truncate(plain, 200)
		}
	}
	if decoded.Message != "" {
		return truncate(decoded.Message, 200)
	}
	if decoded.Msg != "" {
		return truncate(decoded.Msg, 200)
	}
	return decoded.Code
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
