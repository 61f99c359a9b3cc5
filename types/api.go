package types

import (
	"errors"
)

type APIErrorKind string

const (
	APIErrorNetwork   APIErrorKind = "network"
	APIErrorServer    APIErrorKind = "server"
	APIErrorNotFound  APIErrorKind = "not_found"
	APIErrorMalformed APIErrorKind = "malformed"
)

const (
	MessageNetworkFailure    = "Network error. Please check your connection and try again."
	MessageMalformedResponse = "Unexpected response from server."
	MessageRequestFailed     = "Request failed with status %d"
)

// APIError is the failure carried by a settled query or mutation.
type APIError struct {
	Kind       APIErrorKind `json:"kind"`
	StatusCode int          `json:"status_code,omitempty"`
	Message    string       `json:"message"`
	Body       string       `json:"-"`
	Cause      error        `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

func (e *APIError) IsNotFound() bool {
	return e != nil && e.Kind == APIErrorNotFound
}

func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
