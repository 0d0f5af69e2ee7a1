package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"relayq/pkg/config"
	"relayq/pkg/logger"
	"relayq/pkg/reconnect"
	"relayq/pkg/store"
	"relayq/pkg/telemetry"
)

// Sweeper is the periodic signal source: on every cron tick it nudges
// the reconnect coordinator for each actor holding due checkpoints and
// prunes dead-letter records past their retention period.
type Sweeper struct {
	store     *store.Store
	coord     *reconnect.Coordinator
	cron      string
	retention time.Duration
	now       func() time.Time
}

// New constructs a Sweeper from the effective config.
func New(st *store.Store, coord *reconnect.Coordinator, cfg *config.Config) *Sweeper {
	return &Sweeper{
		store:     st,
		coord:     coord,
		cron:      cfg.Sweep.Cron,
		retention: cfg.DeadRetention(),
		now:       time.Now,
	}
}

// Start launches the scheduler goroutine if sweeping is enabled.
// Returns a cancel func stopping the scheduler.
func Start(ctx context.Context, st *store.Store, coord *reconnect.Coordinator, cfg *config.Config) (context.CancelFunc, error) {
	if !cfg.Sweep.Enabled {
		logger.Info("sweep_disabled")
		return func() {}, nil
	}
	s := New(st, coord, cfg)
	if !gronx.IsValid(s.cron) {
		logger.Error("sweep_invalid_cron", "cron", s.cron)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", s.cron)
	}

	logger.Info("sweep_enabled", "cron", s.cron, "dead_retention", s.retention.String())
	ctx2, cancel := context.WithCancel(ctx)
	go s.runScheduler(ctx2)
	return cancel, nil
}

// runScheduler computes the next cron tick via gronx and sleeps until
// it, running one sweep per tick.
func (s *Sweeper) runScheduler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		default:
		}

		now := s.now().UTC()
		next, err := gronx.NextTickAfter(s.cron, now, false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := s.RunOnce(ctx); err != nil {
				logger.Error("sweep_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single sweep pass. Exported so the admin surface
// and tests can trigger sweeps on demand.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.signalActorsWithBacklog(); err != nil {
		return err
	}
	if err := s.pruneDeadLetters(); err != nil {
		return err
	}
	telemetry.StoreBytes.Set(float64(s.store.DiskUsage()))
	return nil
}

// signalActorsWithBacklog signals the coordinator once per actor that
// has at least one queued checkpoint. The coordinator's own due filter
// and coalescing make over-signaling harmless.
func (s *Sweeper) signalActorsWithBacklog() error {
	keys, err := s.store.ListKeys(store.NamespaceQueue + ".")
	if err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, k := range keys {
		_, actorID, _, ok := store.SplitKey(k)
		if !ok {
			continue
		}
		if _, dup := seen[actorID]; dup {
			continue
		}
		seen[actorID] = struct{}{}
		s.coord.Signal(actorID)
	}
	if len(seen) > 0 {
		logger.Debug("sweep_signaled_actors", "count", len(seen))
	}
	return nil
}

// pruneDeadLetters deletes dead-letter records older than the retention
// period.
func (s *Sweeper) pruneDeadLetters() error {
	keys, err := s.store.ListKeys(store.NamespaceDead + ".")
	if err != nil {
		return err
	}
	cutoff := s.now().Add(-s.retention).UnixMilli()
	pruned := 0
	for _, k := range keys {
		var dl struct {
			DeadAt int64 `json:"dead_at"`
		}
		ok, err := s.store.GetJSON(k, &dl)
		if err != nil {
			return err
		}
		if !ok || dl.DeadAt > cutoff {
			continue
		}
		if err := s.store.Delete(k); err != nil {
			return err
		}
		pruned++
	}
	if pruned > 0 {
		logger.Info("sweep_pruned_dead_letters", "count", pruned)
	}
	return nil
}
