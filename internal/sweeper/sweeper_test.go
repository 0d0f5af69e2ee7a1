package sweeper

import (
	"context"
	"testing"
	"time"

	"relayq/pkg/config"
	"relayq/pkg/faults"
	"relayq/pkg/keys"
	"relayq/pkg/models"
	"relayq/pkg/queue"
	"relayq/pkg/reconnect"
	"relayq/pkg/store"
	"relayq/pkg/transport"
)

func newTestSweeper(t *testing.T) (*Sweeper, *store.Store, *queue.Queue) {
	t.Helper()
	st, err := store.Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	q := queue.New(st, keys.NewGenerator(), queue.Options{
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
	})
	noop := func(ctx context.Context, req *models.RequestDescriptor) (*transport.Response, error) {
		return &transport.Response{Status: 200}, nil
	}
	coord := reconnect.New(q, noop, 1000, 1000)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Sweep.DeadRetention = "1h"
	return New(st, coord, cfg), st, q
}

func TestRunOncePrunesExpiredDeadLetters(t *testing.T) {
	s, st, _ := newTestSweeper(t)

	stale := models.DeadLetter{
		Operation: models.QueuedOperation{ActorID: "a1", OperationID: "old"},
		Reason:    faults.Failure{Class: faults.ClassNetwork},
		Attempts:  5,
		DeadAt:    time.Now().Add(-2 * time.Hour).UnixMilli(),
	}
	fresh := stale
	fresh.Operation.OperationID = "new"
	fresh.DeadAt = time.Now().UnixMilli()

	if err := st.SetJSON(store.DeadKey("a1", "old"), &stale); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if err := st.SetJSON(store.DeadKey("a1", "new"), &fresh); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, ok, _ := st.Get(store.DeadKey("a1", "old")); ok {
		t.Fatalf("expired dead letter survived sweep")
	}
	if _, ok, _ := st.Get(store.DeadKey("a1", "new")); !ok {
		t.Fatalf("fresh dead letter pruned early")
	}
}

func TestRunOnceSignalsActorsWithBacklog(t *testing.T) {
	s, _, q := newTestSweeper(t)

	req := models.RequestDescriptor{Method: "POST", URL: "https://api.example.com/v1/x"}
	netDown := faults.Failure{Class: faults.ClassNetwork, Message: "down"}
	for _, actor := range []string{"a1", "a1", "a2"} {
		opID := "op-" + actor
		if _, err := q.Enqueue(actor, opID, req, netDown); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// coordinator Run is not started; signals just queue up in its buffer,
	// which is enough to observe that the sweep pass completes cleanly.
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	_, st, q := newTestSweeper(t)
	noop := func(ctx context.Context, req *models.RequestDescriptor) (*transport.Response, error) {
		return &transport.Response{Status: 200}, nil
	}
	coord := reconnect.New(q, noop, 5, 10)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Sweep.Enabled = true
	cfg.Sweep.Cron = "not a cron"

	if _, err := Start(context.Background(), st, coord, cfg); err == nil {
		t.Fatalf("expected invalid cron to fail Start")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	_, st, q := newTestSweeper(t)
	noop := func(ctx context.Context, req *models.RequestDescriptor) (*transport.Response, error) {
		return &transport.Response{Status: 200}, nil
	}
	coord := reconnect.New(q, noop, 5, 10)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Sweep.Enabled = false

	cancel, err := Start(context.Background(), st, coord, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
}
