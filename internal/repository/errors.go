package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrBulkDeleteUnavailable means the backend refused the bulk delete path
	// (not permitted or not supported) and deletes must be issued one by one.
	ErrBulkDeleteUnavailable = errors.New("bulk delete unavailable")
)

// StatusError is an upstream HTTP response with an unexpected status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// HTTPStatus exposes the status code to retry policies.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }
