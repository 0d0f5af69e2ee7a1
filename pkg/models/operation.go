package models

import "relayq/pkg/faults"

// IdempotencyHeader is the header mutating requests carry so the remote
// API can collapse duplicate submissions caused by client-side retries.
const IdempotencyHeader = "Idempotency-Key"

// RequestDescriptor is the transport-agnostic shape of a mutating call.
// It is persisted verbatim with the checkpoint and replayed as-is.
type RequestDescriptor struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// IdempotencyKey returns the Idempotency-Key header value, if set.
func (r *RequestDescriptor) IdempotencyKey() string {
	return r.Headers[IdempotencyHeader]
}

// QueuedOperation is one mutating call awaiting durable delivery. The
// stored record is the source of truth; there is no in-memory ledger.
type QueuedOperation struct {
	ActorID        string            `json:"actor_id"`
	OperationID    string            `json:"operation_id"`
	Request        RequestDescriptor `json:"request"`
	FailureInfo    faults.Failure    `json:"failure_info"`
	RetryCount     int               `json:"retry_count"`
	NextEligibleAt int64             `json:"next_eligible_at"` // unix ms
	CreatedAt      int64             `json:"created_at"`       // unix ms
}

// DeadLetter preserves a terminally failed operation for operator
// inspection and manual requeue after the retry budget is exhausted.
type DeadLetter struct {
	Operation QueuedOperation `json:"operation"`
	Reason    faults.Failure  `json:"reason"`
	Attempts  int             `json:"attempts"`
	DeadAt    int64           `json:"dead_at"` // unix ms
}
