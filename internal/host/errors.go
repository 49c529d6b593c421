package host

import "errors"

var (
	// ErrMalformedMessage marks a message whose shape the client cannot use.
	// Such messages are dropped and the session continues.
	ErrMalformedMessage = errors.New("malformed message")

	ErrNotOpen       = errors.New("transport is not open")
	ErrAlreadyOpen   = errors.New("transport is already open")
	ErrClosed        = errors.New("transport is closed")
	ErrUnknownObject = errors.New("unknown object")
)
