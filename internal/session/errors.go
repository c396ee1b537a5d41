package session

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrClosed       = errors.New("session closed")
)

// TransportError wraps a connection fault. It ends the current connection;
// there is no reconnect.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
