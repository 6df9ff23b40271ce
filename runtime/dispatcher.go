package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bumpfeed/contract"
	"bumpfeed/domain"
	"bumpfeed/domain/event"
	apperrors "bumpfeed/errors"
	"bumpfeed/observability"
)

// Dispatcher fans outbound events to room members through their sinks.
// Each delivery runs in its own goroutine with a bounded timeout; a
// slow or dead sink costs one drop, never a stalled room.
type Dispatcher struct {
	log         *slog.Logger
	registry    contract.IRegistry
	monitoring  *observability.Monitoring
	sinkTimeout time.Duration
}

func NewDispatcher(log *slog.Logger, registry contract.IRegistry,
	monitoring *observability.Monitoring, sinkTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		log:         log,
		registry:    registry,
		monitoring:  monitoring,
		sinkTimeout: sinkTimeout,
	}
}

// Broadcast delivers the event to every active member of the room
// except the excluded origin, and returns the number of successful
// deliveries. A failed sink is marked inactive for the cleanup worker
// rather than removed mid-broadcast.
func (d *Dispatcher) Broadcast(ctx context.Context, roomID domain.RoomID, e event.DomainEvent, exclude domain.ConnectionID) int {
	sinks := d.registry.SinksForRoom(roomID, exclude)
	if len(sinks) == 0 {
		return 0
	}

	started := time.Now()
	var delivered int64
	var wg sync.WaitGroup
	for id, sink := range sinks {
		wg.Add(1)
		go func(id domain.ConnectionID, sink contract.EventSink) {
			defer wg.Done()
			if err := d.deliver(ctx, sink, e); err != nil {
				d.log.Warn("Delivery failed, marking connection inactive",
					"connection", id, "room", roomID, "kind", e.Kind(), "err", err)
				d.registry.MarkInactive(id)
				d.monitoring.IncrEventsDropped()
				return
			}
			atomic.AddInt64(&delivered, 1)
		}(id, sink)
	}
	wg.Wait()

	d.monitoring.ObserveBroadcast(time.Since(started))
	d.monitoring.IncrEventsBroadcast(uint64(delivered))
	return int(delivered)
}

// SendToOne delivers the event to a single connection, typically acks
// and error replies.
func (d *Dispatcher) SendToOne(ctx context.Context, id domain.ConnectionID, e event.DomainEvent) error {
	sink, ok := d.registry.Sink(id)
	if !ok {
		return apperrors.Newf(apperrors.KindNotFound, "no sink for connection %s", id)
	}
	if err := d.deliver(ctx, sink, e); err != nil {
		d.registry.MarkInactive(id)
		d.monitoring.IncrEventsDropped()
		return err
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, sink contract.EventSink, e event.DomainEvent) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
	defer cancel()
	return sink.Consume(sendCtx, e)
}
