package client

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoNodesAvailable means there was nothing left to try: the node list
	// was empty, or every allowed node failed at the network level.
	ErrNoNodesAvailable = errors.New("no nodes available")

	// ErrRequestCancelled means the caller's context ended mid-call.
	ErrRequestCancelled = errors.New("request cancelled")

	// ErrAccountNotFound is the node's answer for an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotLogged means no secret was available to sign with.
	ErrNotLogged = errors.New("not logged in")

	// ErrThrottled means the local rate limiter refused to wait any longer.
	ErrThrottled = errors.New("throttled by local rate limit")
)

// NetworkError is a transport-level failure against a single node.
type NetworkError struct {
	Node string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error from %s: %v", e.Node, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a business error reported by a node.
type ServerError struct {
	Message    string
	StatusCode int
}

func (e *ServerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
	}
	return "server error: " + e.Message
}

// DecodeError means a node answered but the body did not match the expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsApplicationError reports whether err is about the request itself rather
// than node health.
func IsApplicationError(err error) bool {
	var serverErr *ServerError
	var decodeErr *DecodeError
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrNotLogged) ||
		errors.As(err, &serverErr) ||
		errors.As(err, &decodeErr)
}

// translateServerError maps a node-reported message onto the error taxonomy.
func translateServerError(message string, statusCode int) error {
	if strings.Contains(strings.ToLower(message), "account not found") {
		return ErrAccountNotFound
	}
	return &ServerError{Message: message, StatusCode: statusCode}
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrRequestCancelled, cause)
}
