package models

// CheckpointVersion tags persisted session records so future schema
// migrations can detect and upgrade older data.
const CheckpointVersion = 1

// EvalStatus is the evaluation-job linkage state. Transitions are
// unlinked -> pending -> (succeeded | failed); terminal states are
// immutable once set.
type EvalStatus string

const (
	EvalUnlinked  EvalStatus = "unlinked"
	EvalPending   EvalStatus = "pending"
	EvalSucceeded EvalStatus = "succeeded"
	EvalFailed    EvalStatus = "failed"
)

// Terminal reports whether the linkage state accepts no further updates.
func (s EvalStatus) Terminal() bool {
	return s == EvalSucceeded || s == EvalFailed
}

// Fragment is one offset-tagged chunk of an incrementally delivered text
// stream. Fragments within a stream are deduplicated by offset.
type Fragment struct {
	Offset       int    `json:"offset"`
	Text         string `json:"text"`
	ReceivedAt   int64  `json:"received_at"` // unix ms
	Acknowledged bool   `json:"acknowledged"`
}

// EvalLinkage records the handoff to an asynchronous evaluation job so a
// reloading client can resume polling without re-submitting work.
type EvalLinkage struct {
	JobID  string     `json:"job_id,omitempty"`
	Status EvalStatus `json:"status"`
	Result []byte     `json:"result,omitempty"`
}

// SessionCheckpoint is the durable snapshot of one in-progress session.
// Created once per session, deleted only on explicit abandon or finalize.
type SessionCheckpoint struct {
	SessionID         string                `json:"session_id"`
	ActorID           string                `json:"actor_id"`
	CurrentStepIndex  int                   `json:"current_step_index"`
	StepsSnapshot     []string              `json:"steps_snapshot,omitempty"`
	StepResults       []string              `json:"step_results,omitempty"`
	FragmentsByStream map[string][]Fragment `json:"fragments_by_stream,omitempty"`
	MaterializedText  map[string]string     `json:"materialized_text,omitempty"`
	Eval              EvalLinkage           `json:"eval"`
	Version           int                   `json:"version"`
	CreatedAt         int64                 `json:"created_at"` // unix ms
	UpdatedAt         int64                 `json:"updated_at"` // unix ms
}
