package workers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bumpfeed/domain"
	"bumpfeed/domain/event"
)

type fakeLister struct {
	stale []domain.ConnectionID
}

func (f *fakeLister) ListStale(time.Duration) []domain.ConnectionID { return f.stale }

type fakeDisconnector struct {
	mu      sync.Mutex
	reasons map[domain.ConnectionID]string
}

func (f *fakeDisconnector) Disconnect(_ context.Context, id domain.ConnectionID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reasons == nil {
		f.reasons = map[domain.ConnectionID]string{}
	}
	f.reasons[id] = reason
}

type fakeTyping struct {
	expired []event.TypingIndicator
	windows []time.Duration
}

func (f *fakeTyping) ExpireTyping(window time.Duration) []event.TypingIndicator {
	f.windows = append(f.windows, window)
	return f.expired
}

type fakePruner struct {
	pruned int
	calls  int
}

func (f *fakePruner) PruneDedup() int {
	f.calls++
	return f.pruned
}

func TestCleanupWorker_SweepDisconnectsStale(t *testing.T) {
	req := require.New(t)

	// Given two connections past the heartbeat timeout
	lister := &fakeLister{stale: []domain.ConnectionID{"conn-1", "conn-2"}}
	disconnector := &fakeDisconnector{}
	typing := &fakeTyping{expired: []event.TypingIndicator{{UserID: "maya"}}}
	pruner := &fakePruner{pruned: 3}

	w := NewCleanupWorker(slog.Default(), lister, disconnector, typing, pruner,
		time.Minute, 2*time.Minute, 30*time.Second)

	// When one sweep runs
	w.sweep(context.Background())

	// Then both are torn down, and the side sweeps ran once
	req.Equal("heartbeat timeout", disconnector.reasons["conn-1"])
	req.Equal("heartbeat timeout", disconnector.reasons["conn-2"])
	req.Equal([]time.Duration{30 * time.Second}, typing.windows)
	req.Equal(1, pruner.calls)
}

func TestCleanupWorker_NothingToDo(t *testing.T) {
	req := require.New(t)

	lister := &fakeLister{}
	disconnector := &fakeDisconnector{}
	typing := &fakeTyping{}
	pruner := &fakePruner{}

	w := NewCleanupWorker(slog.Default(), lister, disconnector, typing, pruner,
		time.Minute, 2*time.Minute, 30*time.Second)

	w.sweep(context.Background())

	req.Empty(disconnector.reasons)
	req.Equal(1, pruner.calls)
}

func TestCleanupWorker_StopsOnContextCancel(t *testing.T) {
	req := require.New(t)

	w := NewCleanupWorker(slog.Default(), &fakeLister{}, &fakeDisconnector{},
		&fakeTyping{}, &fakePruner{}, time.Hour, 2*time.Minute, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(500 * time.Millisecond):
		req.Fail("Cleanup worker should stop on context cancel")
	}
}
