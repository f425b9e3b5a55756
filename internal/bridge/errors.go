package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("bridge: not connected")
	ErrActionRejected = errors.New("bridge: action rejected")
	ErrNothingHeld    = errors.New("bridge: nothing held")

	errUnsupportedVersion = errors.New("unsupported version")
	errObsBeforeWelcome   = errors.New("obs before welcome")
)

// ActionError is a negative ACTION_RESULT from the server.
type ActionError struct {
	Ref     string
	Code    string
	Message string
}

func (e *ActionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("action %s rejected: %s", e.Ref, e.Code)
	}
	return fmt.Sprintf("action %s rejected: %s: %s", e.Ref, e.Code, e.Message)
}

func (e *ActionError) Is(target error) bool { return target == ErrActionRejected }
