package workers

import (
	"context"
	"log/slog"
	"time"

	"bumpfeed/domain"
	"bumpfeed/domain/event"
)

// Disconnector tears down a connection: registry removal, offline
// presence broadcast, sink shutdown. The hub implements it.
type Disconnector interface {
	Disconnect(ctx context.Context, id domain.ConnectionID, reason string)
}

// StaleLister exposes the registry's liveness view.
type StaleLister interface {
	ListStale(timeout time.Duration) []domain.ConnectionID
}

// TypingExpirer clears typing indicators older than the window and
// emits the implicit stop events.
type TypingExpirer interface {
	ExpireTyping(window time.Duration) []event.TypingIndicator
}

// DedupPruner drops replay entries older than the dedup window.
type DedupPruner interface {
	PruneDedup() int
}

// CleanupWorker is the periodic janitor: it disconnects connections
// with no heartbeat past the timeout, clears stale typing indicators
// and prunes expired dedup entries. Empty rooms disappear as a side
// effect of membership removal.
type CleanupWorker struct {
	log          *slog.Logger
	lister       StaleLister
	disconnector Disconnector
	typing       TypingExpirer
	dedup        DedupPruner

	interval     time.Duration
	staleTimeout time.Duration
	typingWindow time.Duration
}

func NewCleanupWorker(log *slog.Logger, lister StaleLister, disconnector Disconnector,
	typing TypingExpirer, dedup DedupPruner,
	interval, staleTimeout, typingWindow time.Duration) *CleanupWorker {
	return &CleanupWorker{
		log:          log,
		lister:       lister,
		disconnector: disconnector,
		typing:       typing,
		dedup:        dedup,
		interval:     interval,
		staleTimeout: staleTimeout,
		typingWindow: typingWindow,
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info("Starting cleanup worker", "interval", w.interval, "stale_timeout", w.staleTimeout)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one cleanup cycle. Errors are logged and the loop
// continues on its next tick.
func (w *CleanupWorker) sweep(ctx context.Context) {
	stale := w.lister.ListStale(w.staleTimeout)
	for _, id := range stale {
		w.disconnector.Disconnect(ctx, id, "heartbeat timeout")
	}

	expired := w.typing.ExpireTyping(w.typingWindow)
	pruned := w.dedup.PruneDedup()
	if len(stale) > 0 || len(expired) > 0 || pruned > 0 {
		w.log.Info("Cleanup cycle done",
			"stale_connections", len(stale), "typing_expired", len(expired), "dedup_pruned", pruned)
	}
}
