package session

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned for commands issued after the quit flag was observed.
var ErrSessionClosed = errors.New("session is closed")

// ConnectionError reports that the session could not be opened or the
// handshake did not complete. It is fatal.
type ConnectionError struct {
	Session string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %q: %v", e.Session, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
