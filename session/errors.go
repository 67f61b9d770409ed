package session

import (
	"errors"
	"fmt"
)

// NotFoundError reports a lookup miss against the session's characteristic
// cache or the watcher's device table.
type NotFoundError struct {
	Resource string // "device", "characteristic"
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// Is allows errors.Is to match any NotFoundError for the same resource kind.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Resource == t.Resource && (t.ID == "" || t.ID == e.ID)
}

// ConnectionState is the kind of a connection-state failure.
type ConnectionState string

const NotConnected ConnectionState = "not_connected"

// ConnectionError reports an operation attempted in the wrong connection
// state.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// ErrNotConnected is the sentinel for operations attempted after Disconnect.
var ErrNotConnected = &ConnectionError{State: NotConnected}

// ErrDiscoveryIncomplete is wrapped into connect failures when service or
// characteristic enumeration returns a non-success status. A session is
// never returned half-populated.
var ErrDiscoveryIncomplete = errors.New("gatt discovery incomplete")

// IsConnectionState reports whether err is a ConnectionError with the given
// state.
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
