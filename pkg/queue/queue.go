package queue

import (
	"context"
	"fmt"
	"time"

	"relayq/pkg/faults"
	"relayq/pkg/keys"
	"relayq/pkg/logger"
	"relayq/pkg/models"
	"relayq/pkg/store"
	"relayq/pkg/telemetry"
	"relayq/pkg/transport"
)

// Queue captures failed mutating calls as durable checkpoints and replays
// them through a supplied transport. Storage is the only ledger: the
// queue survives process restarts because every state change is a synced
// write-through.
type Queue struct {
	store *store.Store
	gen   *keys.Generator
	opts  Options
	jit   *jitterSource
	now   func() time.Time
}

// New constructs a Queue over the given store. gen supplies idempotency
// keys for operations enqueued without one.
func New(st *store.Store, gen *keys.Generator, opts Options) *Queue {
	opts.applyDefaults()
	return &Queue{
		store: st,
		gen:   gen,
		opts:  opts,
		jit:   newJitterSource(),
		now:   time.Now,
	}
}

// Enqueue classifies the failure and, if retryable, persists the
// operation as a checkpoint. Validation-class failures are rejected with
// a *faults.ValidationError and never touch storage. Re-enqueueing the
// same (actor, operation) id overwrites the stored checkpoint.
func (q *Queue) Enqueue(actorID, operationID string, req models.RequestDescriptor, failure faults.Failure) (*models.QueuedOperation, error) {
	if !failure.Class.Retryable() {
		telemetry.EnqueueRejectedTotal.WithLabelValues(string(failure.Class)).Inc()
		logger.Debug("enqueue_rejected", "actor", actorID, "op", operationID, "class", string(failure.Class))
		return nil, &faults.ValidationError{Failure: failure}
	}

	// The idempotency key is minted once per logical submission; replays
	// reuse whatever the descriptor already carries.
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if req.Headers[models.IdempotencyHeader] == "" {
		req.Headers[models.IdempotencyHeader] = q.gen.Generate()
	}

	now := q.now()
	op := &models.QueuedOperation{
		ActorID:        actorID,
		OperationID:    operationID,
		Request:        req,
		FailureInfo:    failure,
		RetryCount:     0,
		NextEligibleAt: now.Add(q.delay(0)).UnixMilli(),
		CreatedAt:      now.UnixMilli(),
	}
	if err := q.store.SetJSON(store.QueueKey(actorID, operationID), op); err != nil {
		return nil, err
	}
	telemetry.EnqueuedTotal.Inc()
	logger.Info("operation_queued", "actor", actorID, "op", operationID, "class", string(failure.Class), "next_eligible_at", op.NextEligibleAt)
	return op, nil
}

// Get loads a single checkpoint.
func (q *Queue) Get(actorID, operationID string) (*models.QueuedOperation, bool, error) {
	var op models.QueuedOperation
	ok, err := q.store.GetJSON(store.QueueKey(actorID, operationID), &op)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &op, true, nil
}

// List returns every checkpoint for the actor, due or not. Order is
// unspecified.
func (q *Queue) List(actorID string) ([]models.QueuedOperation, error) {
	keyList, err := q.store.ListKeys(store.QueuePrefix(actorID))
	if err != nil {
		return nil, err
	}
	out := make([]models.QueuedOperation, 0, len(keyList))
	for _, k := range keyList {
		var op models.QueuedOperation
		ok, err := q.store.GetJSON(k, &op)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, op)
		}
	}
	telemetry.QueueDepth.WithLabelValues(actorID).Set(float64(len(out)))
	return out, nil
}

// ListDue returns the actor's checkpoints whose eligibility time has
// passed. Callers must not assume any ordering; retries may race.
func (q *Queue) ListDue(actorID string) ([]models.QueuedOperation, error) {
	all, err := q.List(actorID)
	if err != nil {
		return nil, err
	}
	nowMs := q.now().UnixMilli()
	due := all[:0]
	for _, op := range all {
		if op.NextEligibleAt <= nowMs {
			due = append(due, op)
		}
	}
	return due, nil
}

// Remove deletes a checkpoint. Always safe, even with a replay logically
// in flight: the delete wins over any later state write for the entry.
func (q *Queue) Remove(actorID, operationID string) error {
	return q.store.Delete(store.QueueKey(actorID, operationID))
}

// Replay waits out the operation's eligibility time and submits it
// through the transport. See Outcome for the possible results. The
// returned error is reserved for storage failures and context
// cancellation; transport failures are folded into the outcome.
func (q *Queue) Replay(ctx context.Context, op *models.QueuedOperation, t transport.Transport) (Outcome, error) {
	if wait := time.UnixMilli(op.NextEligibleAt).Sub(q.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}

	resp, terr := t(ctx, &op.Request)
	if terr == nil {
		if err := q.Remove(op.ActorID, op.OperationID); err != nil {
			return Outcome{}, err
		}
		telemetry.ReplaysTotal.WithLabelValues(string(OutcomeDelivered)).Inc()
		logger.Info("operation_delivered", "actor", op.ActorID, "op", op.OperationID, "attempts", op.RetryCount)
		return Outcome{Kind: OutcomeDelivered, Operation: *op, Response: resp}, nil
	}

	failure := transport.Classify(terr)

	// Delete wins: if the checkpoint vanished while the request was in
	// flight, do not write it back.
	if _, ok, err := q.Get(op.ActorID, op.OperationID); err != nil {
		return Outcome{}, err
	} else if !ok {
		telemetry.ReplaysTotal.WithLabelValues(string(OutcomeAbandoned)).Inc()
		return Outcome{Kind: OutcomeAbandoned, Operation: *op, Failure: failure}, nil
	}

	attempts := op.RetryCount + 1

	// A request the server now rejects as invalid can never succeed;
	// spending the remaining retries on it would only mislead.
	if failure.Class == faults.ClassValidation {
		return q.deadLetter(op, failure, attempts)
	}
	if attempts >= q.opts.MaxAttempts {
		return q.deadLetter(op, failure, attempts)
	}

	op.RetryCount = attempts
	op.FailureInfo = failure
	op.NextEligibleAt = q.now().Add(q.delay(attempts)).UnixMilli()
	if err := q.store.SetJSON(store.QueueKey(op.ActorID, op.OperationID), op); err != nil {
		return Outcome{}, err
	}
	telemetry.ReplaysTotal.WithLabelValues(string(OutcomeRetrying)).Inc()
	logger.Info("operation_retry_scheduled", "actor", op.ActorID, "op", op.OperationID, "attempts", attempts, "next_eligible_at", op.NextEligibleAt)
	return Outcome{Kind: OutcomeRetrying, Operation: *op, Failure: failure, Attempts: attempts}, nil
}

// DrainDue replays every due checkpoint for the actor, one at a time so
// concurrent in-flight replays cannot race each other for the same
// operation. Per-operation failures land in the outcomes; only storage
// errors and cancellation abort the pass.
func (q *Queue) DrainDue(ctx context.Context, actorID string, t transport.Transport) ([]Outcome, error) {
	due, err := q.ListDue(actorID)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, 0, len(due))
	for i := range due {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		oc, err := q.Replay(ctx, &due[i], t)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, oc)
	}
	return outcomes, nil
}

// DeadLetters returns the actor's dead-letter records.
func (q *Queue) DeadLetters(actorID string) ([]models.DeadLetter, error) {
	keyList, err := q.store.ListKeys(store.DeadPrefix(actorID))
	if err != nil {
		return nil, err
	}
	out := make([]models.DeadLetter, 0, len(keyList))
	for _, k := range keyList {
		var dl models.DeadLetter
		ok, err := q.store.GetJSON(k, &dl)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, dl)
		}
	}
	return out, nil
}

// Requeue moves a dead-lettered operation back into the queue with a
// fresh retry budget. The original idempotency key is preserved so the
// server still deduplicates against earlier attempts.
func (q *Queue) Requeue(actorID, operationID string) (*models.QueuedOperation, error) {
	var dl models.DeadLetter
	ok, err := q.store.GetJSON(store.DeadKey(actorID, operationID), &dl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no dead-letter record for %s/%s", actorID, operationID)
	}
	op := dl.Operation
	op.RetryCount = 0
	op.NextEligibleAt = q.now().UnixMilli()
	if err := q.store.SetJSON(store.QueueKey(actorID, operationID), &op); err != nil {
		return nil, err
	}
	if err := q.store.Delete(store.DeadKey(actorID, operationID)); err != nil {
		return nil, err
	}
	logger.Info("dead_letter_requeued", "actor", actorID, "op", operationID)
	return &op, nil
}

func (q *Queue) deadLetter(op *models.QueuedOperation, failure faults.Failure, attempts int) (Outcome, error) {
	dl := models.DeadLetter{
		Operation: *op,
		Reason:    failure,
		Attempts:  attempts,
		DeadAt:    q.now().UnixMilli(),
	}
	if err := q.store.SetJSON(store.DeadKey(op.ActorID, op.OperationID), &dl); err != nil {
		return Outcome{}, err
	}
	if err := q.Remove(op.ActorID, op.OperationID); err != nil {
		return Outcome{}, err
	}
	telemetry.ReplaysTotal.WithLabelValues(string(OutcomeDeadLettered)).Inc()
	telemetry.DeadLettersTotal.Inc()
	logger.Error("operation_dead_lettered", "actor", op.ActorID, "op", op.OperationID, "attempts", attempts, "reason", failure.String())
	if logger.Audit != nil {
		logger.Audit.Info("dead_letter", "actor", op.ActorID, "op", op.OperationID, "attempts", attempts, "class", string(failure.Class), "status", failure.Status)
	}
	return Outcome{Kind: OutcomeDeadLettered, Operation: *op, Failure: failure, Attempts: attempts}, nil
}

func (q *Queue) delay(retryCount int) time.Duration {
	return backoffBase(q.opts, retryCount) + q.jit.jitter(q.opts.Jitter)
}
