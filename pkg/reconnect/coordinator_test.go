package reconnect

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"relayq/pkg/faults"
	"relayq/pkg/keys"
	"relayq/pkg/models"
	"relayq/pkg/queue"
	"relayq/pkg/store"
	"relayq/pkg/transport"
)

func newTestQueue(t *testing.T) (*queue.Queue, *store.Store) {
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
	return q, st
}

func enqueueDue(t *testing.T, q *queue.Queue, st *store.Store, actorID, opID string) {
	t.Helper()
	req := models.RequestDescriptor{Method: "POST", URL: "https://api.example.com/v1/answers"}
	if _, err := q.Enqueue(actorID, opID, req, faults.Failure{Class: faults.ClassNetwork, Message: "down"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	var op models.QueuedOperation
	ok, err := st.GetJSON(store.QueueKey(actorID, opID), &op)
	if err != nil || !ok {
		t.Fatalf("reload checkpoint: ok=%v err=%v", ok, err)
	}
	op.NextEligibleAt = 1
	if err := st.SetJSON(store.QueueKey(actorID, opID), &op); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
}

func waitForEmptyQueue(t *testing.T, q *queue.Queue, actorID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ops, err := q.List(actorID)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(ops) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queue for %s never drained", actorID)
}

func TestSignalDrainsDueOperations(t *testing.T) {
	q, st := newTestQueue(t)
	for _, op := range []string{"op1", "op2", "op3"} {
		enqueueDue(t, q, st, "a1", op)
	}

	var calls int32
	ok := func(ctx context.Context, req *models.RequestDescriptor) (*transport.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &transport.Response{Status: 200}, nil
	}

	c := New(q, ok, 1000, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Signal("a1")
	waitForEmptyQueue(t, q, "a1")

	cancel()
	<-done

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("transport called %d times; want 3", got)
	}
}

func TestOverlappingSignalsCoalesce(t *testing.T) {
	q, st := newTestQueue(t)
	enqueueDue(t, q, st, "a1", "op1")

	// hold the replay open so repeated signals land while a pass is active
	release := make(chan struct{})
	var calls int32
	slow := func(ctx context.Context, req *models.RequestDescriptor) (*transport.Response, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &transport.Response{Status: 200}, nil
	}

	c := New(q, slow, 1000, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Signal("a1")
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("drain pass never started")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 10; i++ {
		c.Signal("a1")
	}
	time.Sleep(50 * time.Millisecond)
	close(release)

	waitForEmptyQueue(t, q, "a1")
	cancel()
	<-done

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("operation replayed %d times; want exactly 1", got)
	}
}

func TestSignalsForDistinctActorsRunIndependently(t *testing.T) {
	q, st := newTestQueue(t)
	enqueueDue(t, q, st, "a1", "op1")
	enqueueDue(t, q, st, "a2", "op1")

	var mu sync.Mutex
	seen := map[string]int{}
	ok := func(ctx context.Context, req *models.RequestDescriptor) (*transport.Response, error) {
		mu.Lock()
		seen[req.URL]++
		mu.Unlock()
		return &transport.Response{Status: 200}, nil
	}

	c := New(q, ok, 1000, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Signal("a1")
	c.Signal("a2")
	waitForEmptyQueue(t, q, "a1")
	waitForEmptyQueue(t, q, "a2")

	cancel()
	<-done
}

func TestSignalNeverBlocksWhenBufferFull(t *testing.T) {
	q, _ := newTestQueue(t)
	c := New(q, func(ctx context.Context, req *models.RequestDescriptor) (*transport.Response, error) {
		return &transport.Response{Status: 200}, nil
	}, 5, 10)

	// Run is intentionally not started; flood well past the buffer size.
	doneCh := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			c.Signal("a1")
		}
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("Signal blocked on a full buffer")
	}
}
