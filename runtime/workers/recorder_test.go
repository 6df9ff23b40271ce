package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"bumpfeed/domain"
	"bumpfeed/domain/event"
	"bumpfeed/mocks"
	"bumpfeed/observability"
)

func TestActivityRecorder_RecordsAndBroadcasts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockActivityStore(ctrl)
	dispatcher := mocks.NewMockIDispatcher(ctrl)

	room := domain.RoomID("pregnancy-42")
	reaction := domain.Reaction{
		ID:     uuid.New(),
		UserID: "maya",
		Target: domain.Target{ID: uuid.New(), Kind: domain.TargetPost},
		Type:   domain.ReactionStrong,
	}
	evt := event.ReactionAdded{Room: room, Reaction: reaction}

	// Given a reaction event: one activity entry, one room fan-out
	appended := make(chan domain.ActivityEvent, 1)
	store.EXPECT().
		Append(gomock.Any()).
		DoAndReturn(func(e domain.ActivityEvent) error {
			appended <- e
			return nil
		}).
		Times(1)
	dispatcher.EXPECT().
		Broadcast(gomock.Any(), room, evt, domain.ConnectionID("conn-1")).
		Return(2).
		Times(1)

	events := make(chan event.Outbound, 1)
	recorder := NewActivityRecorder(slog.Default(), events, store, dispatcher, observability.NewMonitoring(slog.Default()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = recorder.Run(ctx)
		close(done)
	}()

	// When the event arrives with the origin connection excluded
	events <- event.Outbound{Event: evt, Exclude: "conn-1"}

	select {
	case entry := <-appended:
		// Then the activity entry mirrors the event
		req.Equal(room, entry.Room)
		req.Equal("maya", entry.ActorID)
		req.Equal(domain.ActivityReaction, entry.Kind)
		req.Equal(reaction.Target.ID.String(), entry.TargetID)
		req.Equal("strong", entry.Payload["reaction_type"])
	case <-time.After(500 * time.Millisecond):
		req.Fail("Recorder should have appended the activity entry")
	}

	cancel()
	<-done
}

func TestActivityRecorder_CountsCreatedComments(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockActivityStore(ctrl)
	dispatcher := mocks.NewMockIDispatcher(ctrl)

	room := domain.RoomID("pregnancy-42")
	evt := event.CommentAdded{Room: room, Comment: domain.Comment{
		ID: uuid.New(), AuthorID: "jonas", ThreadPath: "1",
	}}

	appended := make(chan struct{}, 1)
	store.EXPECT().
		Append(gomock.Any()).
		DoAndReturn(func(domain.ActivityEvent) error {
			appended <- struct{}{}
			return nil
		}).
		Times(1)
	dispatcher.EXPECT().
		Broadcast(gomock.Any(), room, evt, domain.ConnectionID("")).
		Return(1).
		Times(1)

	monitoring := observability.NewMonitoring(slog.Default())
	events := make(chan event.Outbound, 1)
	recorder := NewActivityRecorder(slog.Default(), events, store, dispatcher, monitoring)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = recorder.Run(ctx)
		close(done)
	}()

	events <- event.Outbound{Event: evt}

	select {
	case <-appended:
	case <-time.After(500 * time.Millisecond):
		req.Fail("Recorder should have appended the activity entry")
	}
	cancel()
	<-done

	// The created-comments counter moved with the event
	req.Equal(uint64(1), monitoring.Snapshot(0, 0).CommentsCreated)
}

func TestActivityRecorder_RoomlessEventNotBroadcast(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockActivityStore(ctrl)
	dispatcher := mocks.NewMockIDispatcher(ctrl)

	// Given a heartbeat: no room, no activity record, no fan-out
	events := make(chan event.Outbound, 1)
	recorder := NewActivityRecorder(slog.Default(), events, store, dispatcher, observability.NewMonitoring(slog.Default()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = recorder.Run(ctx)
		close(done)
	}()

	events <- event.Outbound{Event: event.Heartbeat{At: time.Now()}}

	// Then no store/dispatcher expectation exists, so any call fails
	// the controller. Give the loop a chance to misbehave first.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
}

func TestActivityOf_Mapping(t *testing.T) {
	room := domain.RoomID("pregnancy-42")
	commentID := uuid.New()

	tests := []struct {
		name     string
		event    event.DomainEvent
		recorded bool
		kind     domain.ActivityKind
		actor    string
	}{
		{
			name: "comment added",
			event: event.CommentAdded{Room: room, Comment: domain.Comment{
				ID: commentID, AuthorID: "jonas", ThreadPath: "3.1",
			}},
			recorded: true,
			kind:     domain.ActivityComment,
			actor:    "jonas",
		},
		{
			name:     "member offline",
			event:    event.MemberOffline{Room: room, UserID: "ruth"},
			recorded: true,
			kind:     domain.ActivityPresence,
			actor:    "ruth",
		},
		{
			name:     "typing is ephemeral",
			event:    event.TypingIndicator{Room: room, UserID: "ruth", IsTyping: true},
			recorded: false,
		},
		{
			name:     "room info is ephemeral",
			event:    event.RoomInfo{Room: room, MemberCount: 3},
			recorded: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)

			entry, ok := activityOf(tc.event)

			req.Equal(tc.recorded, ok)
			if !tc.recorded {
				return
			}
			req.Equal(tc.kind, entry.Kind)
			req.Equal(tc.actor, entry.ActorID)
			req.Equal(room, entry.Room)
			req.NotZero(entry.CreatedAt)
		})
	}
}
