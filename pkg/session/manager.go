package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"relayq/pkg/logger"
	"relayq/pkg/models"
	"relayq/pkg/store"
	"relayq/pkg/telemetry"
)

var (
	// ErrExists is returned by Create when a checkpoint already exists
	// for the (session, actor) pair. Callers must Remove explicitly to
	// restart; checkpoints are never implicitly replaced.
	ErrExists = errors.New("session checkpoint already exists")
	// ErrNotFound is returned when an operation targets a checkpoint
	// that does not exist.
	ErrNotFound = errors.New("session checkpoint not found")
	// ErrNotLinked is returned by UpdateEvaluationStatus before a job
	// has been linked.
	ErrNotLinked = errors.New("no evaluation job linked")
	// ErrLinkageTerminal is returned when mutating an evaluation linkage
	// that has already reached succeeded or failed.
	ErrLinkageTerminal = errors.New("evaluation linkage is terminal")
)

// NoOffset is the LastOffset sentinel for a stream with no fragments.
const NoOffset = -1

// Manager persists long-running session state and reconstructs
// out-of-order fragment streams. Every mutation is a locked
// read-modify-write against the store, so no caller ever observes a
// half-applied checkpoint.
type Manager struct {
	store *store.Store
	mu    sync.Mutex
	now   func() time.Time
}

// New constructs a Manager over the given store.
func New(st *store.Store) *Manager {
	return &Manager{store: st, now: time.Now}
}

// Create persists a fresh checkpoint. Fails with ErrExists when one is
// already stored for this (session, actor).
func (m *Manager) Create(sessionID, actorID string, stepsSnapshot []string) (*models.SessionCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := store.SessionKey(actorID, sessionID)
	if _, ok, err := m.store.Get(key); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrExists, actorID, sessionID)
	}

	now := m.now().UnixMilli()
	cp := &models.SessionCheckpoint{
		SessionID:         sessionID,
		ActorID:           actorID,
		StepsSnapshot:     append([]string(nil), stepsSnapshot...),
		FragmentsByStream: map[string][]models.Fragment{},
		MaterializedText:  map[string]string{},
		Eval:              models.EvalLinkage{Status: models.EvalUnlinked},
		Version:           models.CheckpointVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.store.SetJSON(key, cp); err != nil {
		return nil, err
	}
	logger.Info("session_created", "actor", actorID, "session", sessionID, "steps", len(stepsSnapshot))
	return cp, nil
}

// Load returns the checkpoint, or false when none is stored.
func (m *Manager) Load(sessionID, actorID string) (*models.SessionCheckpoint, bool, error) {
	var cp models.SessionCheckpoint
	ok, err := m.store.GetJSON(store.SessionKey(actorID, sessionID), &cp)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &cp, true, nil
}

// Remove deletes the checkpoint. This is the only way a checkpoint
// leaves storage: explicit abandonment or finalization by its owner.
func (m *Manager) Remove(sessionID, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Delete(store.SessionKey(actorID, sessionID)); err != nil {
		return err
	}
	logger.Info("session_removed", "actor", actorID, "session", sessionID)
	return nil
}

// AdvanceStep appends the current step's result and moves the cursor to
// the next step. Step results are append-only.
func (m *Manager) AdvanceStep(sessionID, actorID, result string) error {
	return m.update(sessionID, actorID, func(cp *models.SessionCheckpoint) error {
		cp.StepResults = append(cp.StepResults, result)
		cp.CurrentStepIndex++
		return nil
	})
}

// IngestFragment admits one offset-tagged fragment into a stream.
// Ingestion is idempotent by offset: replaying an offset that is already
// present is a successful no-op, so duplicate or reordered delivery can
// never corrupt the reconstruction. The stream's materialized text is
// recomputed as the offset-sorted, space-joined concatenation.
func (m *Manager) IngestFragment(sessionID, actorID, streamID string, offset int, text string) error {
	return m.update(sessionID, actorID, func(cp *models.SessionCheckpoint) error {
		if cp.FragmentsByStream == nil {
			cp.FragmentsByStream = map[string][]models.Fragment{}
		}
		frags := cp.FragmentsByStream[streamID]
		for _, f := range frags {
			if f.Offset == offset {
				telemetry.FragmentsDuplicateTotal.Inc()
				logger.Debug("fragment_duplicate", "actor", actorID, "session", sessionID, "stream", streamID, "offset", offset)
				return nil
			}
		}
		frags = append(frags, models.Fragment{
			Offset:     offset,
			Text:       text,
			ReceivedAt: m.now().UnixMilli(),
		})
		sort.Slice(frags, func(i, j int) bool { return frags[i].Offset < frags[j].Offset })
		cp.FragmentsByStream[streamID] = frags

		if cp.MaterializedText == nil {
			cp.MaterializedText = map[string]string{}
		}
		cp.MaterializedText[streamID] = materialize(frags)
		telemetry.FragmentsIngestedTotal.Inc()
		return nil
	})
}

// LastOffset returns the maximum ingested offset for the stream, or
// NoOffset when the stream has none. A resuming client uses this to ask
// upstream for only the fragments after this point.
func (m *Manager) LastOffset(sessionID, actorID, streamID string) (int, error) {
	cp, ok, err := m.Load(sessionID, actorID)
	if err != nil {
		return NoOffset, err
	}
	if !ok {
		return NoOffset, fmt.Errorf("%w: %s/%s", ErrNotFound, actorID, sessionID)
	}
	frags := cp.FragmentsByStream[streamID]
	if len(frags) == 0 {
		return NoOffset, nil
	}
	// fragments are kept offset-sorted
	return frags[len(frags)-1].Offset, nil
}

// UnacknowledgedFragments returns the stream's fragments not yet
// confirmed by the remote collaborator, in offset order.
func (m *Manager) UnacknowledgedFragments(sessionID, actorID, streamID string) ([]models.Fragment, error) {
	cp, ok, err := m.Load(sessionID, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, actorID, sessionID)
	}
	var out []models.Fragment
	for _, f := range cp.FragmentsByStream[streamID] {
		if !f.Acknowledged {
			out = append(out, f)
		}
	}
	return out, nil
}

// Acknowledge marks the fragment at offset as confirmed. Acknowledging a
// missing fragment is a no-op.
func (m *Manager) Acknowledge(sessionID, actorID, streamID string, offset int) error {
	return m.update(sessionID, actorID, func(cp *models.SessionCheckpoint) error {
		frags := cp.FragmentsByStream[streamID]
		for i := range frags {
			if frags[i].Offset == offset {
				frags[i].Acknowledged = true
				return nil
			}
		}
		return nil
	})
}

// LinkEvaluationJob records the handoff to an asynchronous evaluation
// job, moving the linkage from unlinked to pending.
func (m *Manager) LinkEvaluationJob(sessionID, actorID, jobID string) error {
	return m.update(sessionID, actorID, func(cp *models.SessionCheckpoint) error {
		if cp.Eval.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrLinkageTerminal, cp.Eval.Status)
		}
		if cp.Eval.Status == models.EvalPending {
			return fmt.Errorf("evaluation job %s already linked", cp.Eval.JobID)
		}
		cp.Eval = models.EvalLinkage{JobID: jobID, Status: models.EvalPending}
		logger.Info("evaluation_linked", "actor", actorID, "session", sessionID, "job", jobID)
		return nil
	})
}

// UpdateEvaluationStatus records the job's progress. Only a pending
// linkage accepts updates; terminal states are immutable, and a new
// evaluation requires a new checkpoint or an explicit reset.
func (m *Manager) UpdateEvaluationStatus(sessionID, actorID string, status models.EvalStatus, result []byte) error {
	if status != models.EvalPending && !status.Terminal() {
		return fmt.Errorf("invalid evaluation status %q", status)
	}
	return m.update(sessionID, actorID, func(cp *models.SessionCheckpoint) error {
		switch cp.Eval.Status {
		case models.EvalUnlinked:
			return ErrNotLinked
		case models.EvalPending:
		default:
			return fmt.Errorf("%w: %s", ErrLinkageTerminal, cp.Eval.Status)
		}
		cp.Eval.Status = status
		if result != nil {
			cp.Eval.Result = append([]byte(nil), result...)
		}
		return nil
	})
}

// update runs one locked read-modify-write cycle against the stored
// checkpoint.
func (m *Manager) update(sessionID, actorID string, fn func(*models.SessionCheckpoint) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := store.SessionKey(actorID, sessionID)
	var cp models.SessionCheckpoint
	ok, err := m.store.GetJSON(key, &cp)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, actorID, sessionID)
	}
	if err := fn(&cp); err != nil {
		return err
	}
	cp.UpdatedAt = m.now().UnixMilli()
	return m.store.SetJSON(key, &cp)
}

// materialize joins offset-sorted fragment texts with a single space.
// The result depends only on the set of offsets ingested, never on
// arrival order.
func materialize(frags []models.Fragment) string {
	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}
