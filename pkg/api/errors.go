package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// HTTPError is a non-2xx backend response, passed through unclassified.
type HTTPError struct {
	Endpoint   string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: GET %s returned status %d", e.Endpoint, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: GET %s returned status %d body: %s", e.Endpoint, e.URL, e.StatusCode, e.Body)
}

// TransportError wraps a failure before any response was received.
type TransportError struct {
	Endpoint string
	URL      string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: GET %s: %v", e.Endpoint, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a 2xx body that is not the expected JSON.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsNotFound reports whether err carries a 404 from the backend.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}
