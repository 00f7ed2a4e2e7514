package session

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Send when the channel has already been closed.
var ErrClosed = errors.New("session: channel closed")

// SendError reports a failed write to one connection. The connection is
// unusable afterwards; callers close it rather than retry.
type SendError struct {
	ID  string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("session %s: send: %v", e.ID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
