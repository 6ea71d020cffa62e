package engine

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrorKind classifies terminal request failures.
type ErrorKind string

const (
	// KindNetwork covers transport failures and per-attempt timeouts.
	KindNetwork ErrorKind = "network"
	// KindStatus covers non-2xx upstream responses.
	KindStatus ErrorKind = "status"
	// KindDecode covers bodies that do not match the requested response type.
	KindDecode ErrorKind = "decode"
)

// RequestError is returned once a dispatched request can no longer succeed.
type RequestError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("pubmed request failed (%d): %s", e.StatusCode, e.URL)
	case KindDecode:
		return fmt.Sprintf("pubmed response decode failed: %s: %v", e.URL, e.Err)
	default:
		msg := "request failed"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return fmt.Sprintf("pubmed network error after retries: %s", msg)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the failure class is one the fetcher retries.
func (e *RequestError) Retriable() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindStatus:
		return IsRetriableStatus(e.StatusCode)
	default:
		return false
	}
}

// IsRetriableStatus reports whether an HTTP status is worth retrying.
func IsRetriableStatus(code int) bool {
	return code == 429 || (code >= 500 && code <= 599)
}

// AsRequestError extracts a RequestError from err if present.
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// RedactURL hides credential query parameters in a URL string.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	if query.Get("api_key") == "" {
		return raw
	}
	query.Set("api_key", "REDACTED")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
