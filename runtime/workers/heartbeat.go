package workers

import (
	"context"
	"log/slog"
	"time"

	"bumpfeed/contract"
	"bumpfeed/domain/event"
)

// HeartbeatWorker pings every live connection on a fixed interval.
// Clients answer with heartbeat_response, which refreshes their
// liveness timestamp; the cleanup worker reaps the silent ones.
type HeartbeatWorker struct {
	log        *slog.Logger
	registry   contract.IRegistry
	dispatcher contract.IDispatcher
	interval   time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, registry contract.IRegistry,
	dispatcher contract.IDispatcher, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, registry: registry, dispatcher: dispatcher, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-ticker.C:
			ping := event.Heartbeat{At: tick}
			for _, id := range w.registry.ConnectionIDs() {
				if err := w.dispatcher.SendToOne(ctx, id, ping); err != nil {
					w.log.Debug("Heartbeat undeliverable", "connection", id, "err", err)
				}
			}
		}
	}
}
