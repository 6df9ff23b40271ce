package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"bumpfeed/contract"
	"bumpfeed/domain"
	"bumpfeed/domain/event"
	"bumpfeed/engagement"
	"bumpfeed/observability"
	"bumpfeed/runtime/workers"
	"bumpfeed/warmth"
)

// memoryHistory keeps warmth trend records in a slice.
type memoryHistory struct {
	records map[string][]float64
}

func (h *memoryHistory) Record(scope string, overall float64, _ time.Time) error {
	if h.records == nil {
		h.records = map[string][]float64{}
	}
	h.records[scope] = append(h.records[scope], overall)
	return nil
}

func (h *memoryHistory) Recent(scope string, n int) ([]float64, error) {
	priors := h.records[scope]
	if len(priors) > n {
		priors = priors[len(priors)-n:]
	}
	return priors, nil
}

type hubFixture struct {
	hub        *Hub
	registry   *Registry
	dispatcher *recordingDispatcher
	reactions  *engagement.ReactionProcessor
	comments   *engagement.CommentEngine
	postID     uuid.UUID
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	postID := uuid.New()
	directory := routerDirectory{pregnancyID: "42", knownPosts: map[uuid.UUID]struct{}{postID: {}}}
	events := make(chan event.Outbound, 64)
	comments := engagement.NewCommentEngine(slog.Default(), domain.DefaultCommentTuning(), directory, events)
	reactions := engagement.NewReactionProcessor(slog.Default(), domain.DefaultReactionTuning(),
		5*time.Minute, directory, comments, events)

	classifier, err := warmth.NewKeywordClassifier(warmth.DefaultLexicons())
	require.NoError(t, err)
	scorer := warmth.NewScorer(slog.Default(), warmth.DefaultTuning(), classifier, &memoryHistory{})

	registry := NewRegistry()
	dispatcher := newRecordingDispatcher()
	hub := NewHub(slog.Default(), registry, dispatcher, workers.NewSupervisor(slog.Default()),
		nil, reactions, comments, scorer, directory, &memoryStore{}, events,
		observability.NewMonitoring(slog.Default()), HubTimings{
			HeartbeatInterval: 30 * time.Second,
			CleanupInterval:   5 * time.Minute,
			StaleTimeout:      2 * time.Minute,
			TypingWindow:      30 * time.Second,
		})

	return &hubFixture{
		hub:        hub,
		registry:   registry,
		dispatcher: dispatcher,
		reactions:  reactions,
		comments:   comments,
		postID:     postID,
	}
}

func TestHub_AdmitSendsWelcome(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	// When an authenticated identity is admitted
	conn := f.hub.Admit(context.Background(), contract.Identity{UserID: "maya", DisplayName: "Maya"}, nopSink{})

	// Then the session is registered and greeted with the feature list
	req.NotNil(conn)
	req.Equal(1, f.registry.Count())

	sent := f.dispatcher.sentTo(conn.ID)
	req.Len(sent, 1)
	welcome, ok := sent[0].(event.ConnectionEstablished)
	req.True(ok)
	req.Equal("maya", welcome.UserID)
	req.Contains(welcome.Features, "optimistic_reactions")
	req.Contains(welcome.Features, "family_warmth")
}

func TestHub_DisconnectBroadcastsOffline(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	room := domain.PregnancyRoom("42")

	conn := f.hub.Admit(context.Background(), contract.Identity{UserID: "maya", DisplayName: "Maya"}, nopSink{})
	req.True(f.registry.Subscribe(conn.ID, room))

	// When the connection is torn down
	f.hub.Disconnect(context.Background(), conn.ID, "socket closed")

	// Then the session is gone and the room learned about it
	req.Equal(0, f.registry.Count())
	req.Len(f.dispatcher.broadcasts, 1)
	offline, ok := f.dispatcher.broadcasts[0].(event.MemberOffline)
	req.True(ok)
	req.Equal("maya", offline.UserID)
	req.Equal(room, offline.Room)

	// A second disconnect of the same id is a no-op
	f.hub.Disconnect(context.Background(), conn.ID, "heartbeat timeout")
	req.Len(f.dispatcher.broadcasts, 1)
}

func TestHub_WarmthForScoresLiveEngagement(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	ctx := context.Background()

	// Given a supportive comment and a reaction from the partner
	_, _, err := f.comments.Create(ctx, engagement.CreateComment{
		PostID:   f.postID,
		AuthorID: "jonas",
		Content:  "You got this, we love you!",
	})
	req.NoError(err)

	_, err = f.reactions.Apply(ctx, engagement.ApplyReaction{
		UserID:    "jonas",
		Target:    domain.Target{ID: f.postID, Kind: domain.TargetPost},
		Type:      domain.ReactionSupportive,
		Intensity: 3,
	})
	req.NoError(err)

	// When the live warmth is computed
	score, err := f.hub.WarmthFor(ctx, f.postID)

	// Then immediate family and emotional support both register
	req.NoError(err)
	req.Greater(score.Overall, 0.0)
	req.LessOrEqual(score.Overall, 1.0)
	req.Greater(score.ImmediateFamily, 0.0)
	req.Greater(score.EmotionalSupport, 0.0)
	req.Greater(score.Recency, 0.0)
}

func TestHub_WarmthForUnknownPost(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	_, err := f.hub.WarmthFor(context.Background(), uuid.New())

	req.Error(err)
}
