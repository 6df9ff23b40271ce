package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bumpfeed/contract"
	"bumpfeed/domain"
	"bumpfeed/domain/event"
	"bumpfeed/observability"
)

// ActivityRecorder drains the engine's outbound event channel: each
// event is appended to the activity log when it maps to an engagement
// record, then fanned out to the room, skipping the originating
// connection.
//
// It provides best-effort delivery with no retries or ordering across
// rooms. It is not a message broker.
type ActivityRecorder struct {
	log        *slog.Logger
	events     <-chan event.Outbound
	store      contract.ActivityStore
	dispatcher contract.IDispatcher
	monitoring *observability.Monitoring
}

func NewActivityRecorder(log *slog.Logger, events <-chan event.Outbound,
	store contract.ActivityStore, dispatcher contract.IDispatcher,
	monitoring *observability.Monitoring) *ActivityRecorder {
	return &ActivityRecorder{log: log, events: events, store: store, dispatcher: dispatcher, monitoring: monitoring}
}

func (w *ActivityRecorder) Run(ctx context.Context) error {
	for {
		select {
		case outbound := <-w.events:
			if _, ok := outbound.Event.(event.CommentAdded); ok {
				w.monitoring.IncrCommentsCreated()
			}
			w.record(outbound.Event)
			if room := outbound.Event.RoomID(); room != "" {
				w.dispatcher.Broadcast(ctx, room, outbound.Event, outbound.Exclude)
			}
		case <-ctx.Done():
			w.log.Debug("Context done, stopping activity recorder")
			return nil
		}
	}
}

// record translates a broadcast event into its activity-log entry.
// Ephemeral kinds (typing, heartbeats, acks) leave no trace.
func (w *ActivityRecorder) record(e event.DomainEvent) {
	entry, ok := activityOf(e)
	if !ok {
		return
	}
	if err := w.store.Append(entry); err != nil {
		w.log.Warn("Activity append failed", "kind", entry.Kind, "room", entry.Room, "err", err)
	}
}

func activityOf(e event.DomainEvent) (domain.ActivityEvent, bool) {
	base := domain.ActivityEvent{
		ID:        uuid.New(),
		Room:      e.RoomID(),
		Priority:  e.Priority(),
		CreatedAt: time.Now(),
	}

	switch evt := e.(type) {
	case event.ReactionAdded:
		base.ActorID = evt.Reaction.UserID
		base.Kind = domain.ActivityReaction
		base.TargetID = evt.Reaction.Target.ID.String()
		base.TargetKind = string(evt.Reaction.Target.Kind)
		base.Payload = map[string]string{"reaction_type": string(evt.Reaction.Type)}
	case event.ReactionRemoved:
		base.ActorID = evt.UserID
		base.Kind = domain.ActivityReaction
		base.TargetID = evt.Target.ID.String()
		base.TargetKind = string(evt.Target.Kind)
		base.Payload = map[string]string{"removed": "true"}
	case event.CommentAdded:
		base.ActorID = evt.Comment.AuthorID
		base.Kind = domain.ActivityComment
		base.TargetID = evt.Comment.ID.String()
		base.TargetKind = string(domain.TargetComment)
		base.Payload = map[string]string{"thread_path": evt.Comment.ThreadPath}
	case event.CommentUpdated:
		base.ActorID = evt.Comment.AuthorID
		base.Kind = domain.ActivityComment
		base.TargetID = evt.Comment.ID.String()
		base.TargetKind = string(domain.TargetComment)
		base.Payload = map[string]string{"edited": "true"}
	case event.CommentDeleted:
		base.Kind = domain.ActivityComment
		base.TargetID = evt.CommentID
		base.TargetKind = string(domain.TargetComment)
		base.Payload = map[string]string{"deleted": "true"}
	case event.MemberOnline:
		base.ActorID = evt.UserID
		base.Kind = domain.ActivityPresence
		base.Payload = map[string]string{"presence": "online"}
	case event.MemberOffline:
		base.ActorID = evt.UserID
		base.Kind = domain.ActivityPresence
		base.Payload = map[string]string{"presence": "offline"}
	case event.MilestoneCelebration:
		base.ActorID = evt.Reaction.UserID
		base.Kind = domain.ActivityReaction
		base.TargetID = evt.Reaction.Target.ID.String()
		base.TargetKind = string(evt.Reaction.Target.Kind)
		base.Payload = map[string]string{"milestone": "true"}
	default:
		return domain.ActivityEvent{}, false
	}
	return base, true
}
