// Package sink holds the event consumers on the edge of the engine.
package sink

import (
	"context"
	"sync"

	"bumpfeed/domain/event"
	apperrors "bumpfeed/errors"
)

// SocketSink buffers outbound events for one connection. Consume is
// called by the dispatcher; the transport's writer goroutine drains
// Outbound onto the wire. A full buffer is a transient delivery
// failure, the caller decides whether the connection is dead.
type SocketSink struct {
	Outbound chan event.DomainEvent

	mu     sync.RWMutex
	closed bool
}

func NewSocketSink(bufferSize int) *SocketSink {
	return &SocketSink{Outbound: make(chan event.DomainEvent, bufferSize)}
}

// Consume enqueues the event for the writer goroutine. Broadcasts
// already in flight when the connection tears down land here after
// Close; they fail as one dropped send, never a panic.
func (s *SocketSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return apperrors.Newf(apperrors.KindTransientDelivery, "sink closed, dropping %s", e.Kind())
	}
	select {
	case s.Outbound <- e:
		return nil
	case <-ctx.Done():
		return apperrors.New(apperrors.KindTransientDelivery, ctx.Err())
	default:
		return apperrors.Newf(apperrors.KindTransientDelivery, "outbound buffer full, dropping %s", e.Kind())
	}
}

// Close stops the writer goroutine draining Outbound. Safe to call
// more than once and concurrently with Consume.
func (s *SocketSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.Outbound)
}
