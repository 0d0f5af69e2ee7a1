package reconnect

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"relayq/pkg/logger"
	"relayq/pkg/queue"
	"relayq/pkg/telemetry"
	"relayq/pkg/transport"
)

// Coordinator is the process-wide glue between connectivity signals and
// the queue. A signal names an actor whose transport is believed healthy
// again; the coordinator then drains that actor's due checkpoints in a
// bounded, rate-limited pass. At most one pass runs per actor at a time;
// overlapping triggers coalesce into the running pass so a single
// operation can never be replayed twice concurrently.
type Coordinator struct {
	queue     *queue.Queue
	transport transport.Transport
	limiter   *rate.Limiter

	mu       sync.Mutex
	inflight map[string]struct{}
	signals  chan string
	wg       sync.WaitGroup
}

// New constructs a Coordinator. rps and burst bound the replay cadence
// across all drain passes.
func New(q *queue.Queue, t transport.Transport, rps float64, burst int) *Coordinator {
	if rps <= 0 {
		rps = 5
	}
	if burst < 1 {
		burst = 1
	}
	return &Coordinator{
		queue:     q,
		transport: t,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		inflight:  map[string]struct{}{},
		signals:   make(chan string, 64),
	}
}

// Signal reports connectivity restoration for an actor. The concrete
// source (OS network notification, health poll, explicit user action) is
// a collaborator; any of them funnels through here. Never blocks: when
// the signal buffer is full the sweep scheduler will catch up later.
func (c *Coordinator) Signal(actorID string) {
	select {
	case c.signals <- actorID:
	default:
		logger.Warn("reconnect_signal_dropped", "actor", actorID)
	}
}

// Run consumes signals until ctx is cancelled, then waits for in-flight
// drain passes to finish.
func (c *Coordinator) Run(ctx context.Context) {
	logger.Info("reconnect_coordinator_started")
	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			logger.Info("reconnect_coordinator_stopped")
			return
		case actorID := <-c.signals:
			c.trigger(ctx, actorID)
		}
	}
}

// trigger starts a drain pass for the actor unless one is already in
// flight.
func (c *Coordinator) trigger(ctx context.Context, actorID string) {
	c.mu.Lock()
	if _, busy := c.inflight[actorID]; busy {
		c.mu.Unlock()
		telemetry.DrainCoalescedTotal.Inc()
		logger.Debug("drain_coalesced", "actor", actorID)
		return
	}
	c.inflight[actorID] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, actorID)
			c.mu.Unlock()
		}()
		c.drain(ctx, actorID)
	}()
}

// drain replays the actor's due checkpoints sequentially, pacing each
// replay through the shared limiter.
func (c *Coordinator) drain(ctx context.Context, actorID string) {
	telemetry.DrainPassesTotal.Inc()
	due, err := c.queue.ListDue(actorID)
	if err != nil {
		logger.Error("drain_list_failed", "actor", actorID, "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	logger.Info("drain_started", "actor", actorID, "due", len(due))

	delivered, retrying, dead := 0, 0, 0
	for i := range due {
		if err := c.limiter.Wait(ctx); err != nil {
			logger.Info("drain_cancelled", "actor", actorID, "error", err)
			return
		}
		oc, err := c.queue.Replay(ctx, &due[i], c.transport)
		if err != nil {
			logger.Error("drain_replay_failed", "actor", actorID, "op", due[i].OperationID, "error", err)
			return
		}
		switch oc.Kind {
		case queue.OutcomeDelivered:
			delivered++
		case queue.OutcomeRetrying:
			retrying++
		case queue.OutcomeDeadLettered:
			dead++
		}
	}
	logger.Info("drain_finished", "actor", actorID, "delivered", delivered, "retrying", retrying, "dead_lettered", dead)
}
