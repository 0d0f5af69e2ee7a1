package faults

import (
	"errors"
	"fmt"
)

// Class buckets a transport failure for queueing policy. Only network,
// timeout and server classes are retryable; validation failures surface
// immediately and never enter the queue.
type Class string

const (
	ClassValidation Class = "validation"
	ClassNetwork    Class = "network"
	ClassTimeout    Class = "timeout"
	ClassServer     Class = "server"
)

// Retryable reports whether operations failing with this class may be
// checkpointed and replayed.
func (c Class) Retryable() bool {
	switch c {
	case ClassNetwork, ClassTimeout, ClassServer:
		return true
	}
	return false
}

// Failure is the normalized record of the last-seen transport failure,
// persisted alongside a queued operation.
type Failure struct {
	Class   Class  `json:"class"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func (f Failure) String() string {
	if f.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Class, f.Status, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Class, f.Message)
}

// ClassifyStatus maps an HTTP status code onto a failure class. Statuses
// below 500 are treated as validation failures: the server has seen and
// rejected the request, so retrying cannot succeed.
func ClassifyStatus(status int) Class {
	if status >= 500 {
		return ClassServer
	}
	return ClassValidation
}

// ValidationError is returned to the caller when a failure is rejected
// from queueing. It carries the original failure so the UI can show the
// server's message immediately.
type ValidationError struct {
	Failure Failure
}

func (e *ValidationError) Error() string {
	return "not queueable: " + e.Failure.String()
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrQuotaExceeded is returned by the checkpoint store when a write would
// push the database past its configured size budget. It must propagate to
// the caller: a checkpoint that cannot be persisted is a loud failure.
var ErrQuotaExceeded = errors.New("storage quota exceeded")
