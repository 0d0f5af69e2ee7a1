package queue

import (
	"relayq/pkg/faults"
	"relayq/pkg/models"
	"relayq/pkg/transport"
)

// OutcomeKind discriminates the result of a replay attempt.
type OutcomeKind string

const (
	// OutcomeDelivered: the transport accepted the request; the
	// checkpoint has been deleted.
	OutcomeDelivered OutcomeKind = "delivered"
	// OutcomeRetrying: the attempt failed transiently; the checkpoint
	// was updated with a new retry count and eligibility time.
	OutcomeRetrying OutcomeKind = "retrying"
	// OutcomeDeadLettered: the retry budget is exhausted (or the server
	// now rejects the request as invalid); the checkpoint was removed
	// and a dead-letter record written.
	OutcomeDeadLettered OutcomeKind = "dead_lettered"
	// OutcomeAbandoned: the checkpoint was deleted while the replay was
	// in flight. The delete wins; nothing was resurrected.
	OutcomeAbandoned OutcomeKind = "abandoned"
)

// Outcome is the discriminated result of Replay.
type Outcome struct {
	Kind      OutcomeKind
	Operation models.QueuedOperation
	// Failure is set for retrying and dead-lettered outcomes.
	Failure faults.Failure
	// Attempts is the total failed attempts so far, including this one.
	Attempts int
	// Response is set for delivered outcomes.
	Response *transport.Response
}
