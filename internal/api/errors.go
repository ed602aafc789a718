// internal/api/errors.go
package api

import (
	"errors"
	"fmt"
)

// ErrSessionGone signals that the backend no longer knows the session.
// Callers must treat the session as ended; there is nothing to retry.
var ErrSessionGone = errors.New("session no longer exists")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 StatusError or ErrSessionGone.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrSessionGone) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}
