package mastodon

import (
	"errors"
	"fmt"
)

// Returned when no HTTP response was obtained at all.
type ConnectivityError struct {
	Host    string
	Wrapped error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("could not reach %s: %s", e.Host, e.Wrapped)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Wrapped
}

// Returned for any non-200 HTTP response. Body holds the (possibly truncated)
// raw response body.
type APIError struct {
	StatusCode int
	Body       string
}

func (ae *APIError) Error() string {
	if ae.Body != "" {
		return fmt.Sprintf("API request failed (HTTP %d): %s", ae.StatusCode, ae.Body)
	}
	return fmt.Sprintf("API request failed (HTTP %d)", ae.StatusCode)
}

// Returned when a 200 response body does not decode as a list of reports.
type DecodeError struct {
	Wrapped error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding reports: %s", e.Wrapped)
}

func (e *DecodeError) Unwrap() error {
	return e.Wrapped
}

// Short, stable label for an error returned by [ReportClient.Reports]; used
// for metrics and structured logging.
func ErrorKind(err error) string {
	var ce *ConnectivityError
	var ae *APIError
	var de *DecodeError
	switch {
	case errors.As(err, &ce):
		return "connectivity"
	case errors.As(err, &ae):
		return "api"
	case errors.As(err, &de):
		return "decode"
	}
	return "other"
}
