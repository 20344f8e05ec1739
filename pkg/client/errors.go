package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client. A *RequestError matches the sentinel
// of its Kind with errors.Is.
var (
	// ErrInvalidArgument is returned for missing credentials or malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidURI is returned when a constructed URI fails validation.
	ErrInvalidURI = fmt.Errorf("%w: invalid uri", ErrInvalidArgument)

	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = fmt.Errorf("%w: missing credentials", ErrInvalidArgument)

	// ErrConnection is returned when the transport keeps failing after all retry attempts.
	ErrConnection = errors.New("connection failed")

	// ErrAPI is returned when the remote API answers with a status other than 200.
	ErrAPI = errors.New("unexpected api status")

	// ErrDecode is returned when a response body is not valid JSON.
	ErrDecode = errors.New("decode response")

	// ErrTokenMissing is returned when a well-formed auth response carries no token.
	ErrTokenMissing = errors.New("token missing from response")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Stage names the part of a session that failed.
type Stage string

const (
	// StageAuth is the bearer token exchange.
	StageAuth Stage = "auth"

	// StageFetch is a page fetch.
	StageFetch Stage = "fetch"
)

// ErrorKind classifies a RequestError.
type ErrorKind string

const (
	// KindInvalidArgument covers missing credentials and malformed URIs.
	KindInvalidArgument ErrorKind = "invalid_argument"

	// KindConnection covers transport failures after retry exhaustion.
	KindConnection ErrorKind = "connection"

	// KindAPI covers non-200 responses.
	KindAPI ErrorKind = "api"

	// KindDecode covers unparsable response bodies.
	KindDecode ErrorKind = "decode"

	// KindTokenMissing covers auth responses without a usable token.
	KindTokenMissing ErrorKind = "token_missing"
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidArgument: ErrInvalidArgument,
	KindConnection:      ErrConnection,
	KindAPI:             ErrAPI,
	KindDecode:          ErrDecode,
	KindTokenMissing:    ErrTokenMissing,
}

// RequestError describes a failed stage with the HTTP status and message
// returned by the remote API, if any.
type RequestError struct {
	Stage      Stage
	Kind       ErrorKind
	StatusCode int
	Endpoint   string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Stage, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Endpoint != "" {
		msg += " from " + e.Endpoint
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *RequestError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// WithStage returns err with its stage set when err is a *RequestError.
func WithStage(err error, stage Stage) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Stage == "" {
		reqErr.Stage = stage
	}
	return err
}

// shouldRetry determines if an error should be retried. Only transport
// failures are retried; any HTTP response, whatever its status, is final.
func shouldRetry(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return false
	}
	return !errors.Is(err, ErrContextCancelled)
}
