package engine

import (
	"errors"
	"fmt"
)

// ErrPositionNotFound is returned by exit requests for an unknown or
// already removed position.
var ErrPositionNotFound = errors.New("position not found")

// ErrRejected tags every entry rejection produced by the gates. Detect it
// with errors.Is; the concrete reason travels in RejectionError.
var ErrRejected = errors.New("entry rejected")

// RejectionError is an entry rejection with its gate reason.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("entry rejected: %s", e.Reason)
}

func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

func reject(reason string) error {
	return &RejectionError{Reason: reason}
}
