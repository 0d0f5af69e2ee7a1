package transport

import (
	"context"

	"relayq/pkg/faults"
	"relayq/pkg/models"
)

// Response is the normalized success surface of a transport call.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Error is the single error shape a Transport is allowed to fail with.
// The queue never inspects raw transport-library errors beyond this.
type Error struct {
	// Received reports whether an HTTP response arrived at all.
	Received bool
	// Status is the HTTP status when Received is true.
	Status int
	// Class is the normalized failure class.
	Class faults.Class
	// Err is the underlying cause, when any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Class) + ": " + e.Err.Error()
	}
	return faults.Failure{Class: e.Class, Status: e.Status}.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Failure converts the transport error into the persisted failure record.
func (e *Error) Failure() faults.Failure {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return faults.Failure{Class: e.Class, Status: e.Status, Message: msg}
}

// Transport submits a request descriptor and settles with either a
// response or a *transport.Error. The enclosing API client supplies it;
// the queue replays persisted descriptors through it verbatim.
type Transport func(ctx context.Context, req *models.RequestDescriptor) (*Response, error)

// Classify normalizes an error returned by a Transport into a failure
// record. Errors that are not *transport.Error are treated as
// network-class: no response was received.
func Classify(err error) faults.Failure {
	if te, ok := err.(*Error); ok {
		return te.Failure()
	}
	return faults.Failure{Class: faults.ClassNetwork, Message: err.Error()}
}
