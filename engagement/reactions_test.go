package engagement

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"bumpfeed/domain"
	"bumpfeed/domain/event"
	apperrors "bumpfeed/errors"
)

const testDedupWindow = 5 * time.Minute

func newTestProcessor(t *testing.T) (*ReactionProcessor, *CommentEngine, uuid.UUID, chan event.Outbound) {
	t.Helper()
	postID := uuid.New()
	directory := newFakeDirectory("42", postID)
	events := make(chan event.Outbound, 256)
	engine := NewCommentEngine(slog.Default(), domain.DefaultCommentTuning(), directory, events)
	processor := NewReactionProcessor(slog.Default(), domain.DefaultReactionTuning(),
		testDedupWindow, directory, engine, events)
	return processor, engine, postID, events
}

func postTarget(postID uuid.UUID) domain.Target {
	return domain.Target{ID: postID, Kind: domain.TargetPost}
}

func TestReactionProcessor_Apply_Creates_And_Broadcasts(t *testing.T) {
	req := require.New(t)
	processor, _, postID, events := newTestProcessor(t)

	result, err := processor.Apply(context.Background(), ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionStrong, Intensity: 3, ClientID: "c-1", Origin: "conn-1",
	})

	req.NoError(err)
	req.False(result.Replayed)
	req.InDelta(0.195, result.Reaction.Warmth, 1e-9)
	req.Equal(map[domain.ReactionType]int{domain.ReactionStrong: 1}, result.Counts)
	req.InDelta(0.195, result.TargetWarmth, 1e-9)
	req.GreaterOrEqual(result.LatencyMs, 0.0)

	emitted := drain(events)
	req.Len(emitted, 1)
	req.Equal(event.KindReactionAdded, emitted[0].Event.Kind())
	req.Equal(domain.ConnectionID("conn-1"), emitted[0].Exclude)
}

func TestReactionProcessor_Client_ID_Replay_Within_Window(t *testing.T) {
	req := require.New(t)
	processor, _, postID, events := newTestProcessor(t)
	ctx := context.Background()

	first, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionLove, Intensity: 2, ClientID: "dup-1",
	})
	req.NoError(err)
	drain(events)

	// Same client id inside the window returns the same reaction and
	// does not double-count.
	second, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionLove, Intensity: 2, ClientID: "dup-1",
	})
	req.NoError(err)
	req.True(second.Replayed)
	req.Equal(first.Reaction.ID, second.Reaction.ID)
	req.Equal(map[domain.ReactionType]int{domain.ReactionLove: 1}, second.Counts)

	// A replay emits no broadcast.
	req.Empty(drain(events))
}

func TestReactionProcessor_Remove_Forgets_Client_Dedup(t *testing.T) {
	req := require.New(t)
	processor, _, postID, events := newTestProcessor(t)
	ctx := context.Background()

	first, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionLove, Intensity: 2, ClientID: "dup-1",
	})
	req.NoError(err)
	req.NoError(processor.Remove(ctx, "partner", postTarget(postID)))
	drain(events)

	// Re-sending the same client id inside the window must create a
	// fresh reaction, not replay the removed one
	again, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionLove, Intensity: 2, ClientID: "dup-1",
	})
	req.NoError(err)
	req.False(again.Replayed)
	req.NotEqual(first.Reaction.ID, again.Reaction.ID)
	req.Equal(map[domain.ReactionType]int{domain.ReactionLove: 1}, again.Counts)
}

func TestReactionProcessor_Replay_Expires_After_Window(t *testing.T) {
	req := require.New(t)
	processor, _, postID, _ := newTestProcessor(t)
	ctx := context.Background()

	now := time.Now()
	processor.clock = func() time.Time { return now }

	first, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionLove, Intensity: 2, ClientID: "dup-2",
	})
	req.NoError(err)

	// Six minutes later the same client id is a fresh write.
	now = now.Add(6 * time.Minute)
	second, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionExcited, Intensity: 1, ClientID: "dup-2",
	})
	req.NoError(err)
	req.False(second.Replayed)
	req.Equal(first.Reaction.ID, second.Reaction.ID) // still the same upserted row
	req.Equal(domain.ReactionExcited, second.Reaction.Type)
}

func TestReactionProcessor_Upsert_Keeps_One_Reaction_Per_User(t *testing.T) {
	req := require.New(t)
	processor, _, postID, _ := newTestProcessor(t)
	ctx := context.Background()
	target := postTarget(postID)

	first, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: target, Type: domain.ReactionHappy, Intensity: 1, ClientID: "a",
	})
	req.NoError(err)

	second, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: target, Type: domain.ReactionSupportive, Intensity: 3, ClientID: "b",
	})
	req.NoError(err)

	// Latest type and intensity win, same row id, exactly one stored.
	req.Equal(first.Reaction.ID, second.Reaction.ID)
	req.Equal(domain.ReactionSupportive, second.Reaction.Type)
	req.Equal(3, second.Reaction.Intensity)

	counts, warmth := processor.CountsFor(target)
	req.Equal(map[domain.ReactionType]int{domain.ReactionSupportive: 1}, counts)
	req.InDelta(second.Reaction.Warmth, warmth, 1e-9)
}

func TestReactionProcessor_Milestone_Multiplier_And_Cap(t *testing.T) {
	req := require.New(t)
	tuning := domain.DefaultReactionTuning()

	// strong x intensity 3 x milestone overshoots the cap.
	req.InDelta(0.25, tuning.ReactionWarmth(domain.ReactionStrong, 3, true), 1e-9)
	// happy x intensity 1 stays well under it.
	req.InDelta(0.04, tuning.ReactionWarmth(domain.ReactionHappy, 1, false), 1e-9)
}

func TestReactionProcessor_Milestone_Emits_Celebration(t *testing.T) {
	req := require.New(t)
	processor, _, postID, events := newTestProcessor(t)

	_, err := processor.Apply(context.Background(), ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionCelebrating, Intensity: 3, ClientID: "m-1", Milestone: true,
	})
	req.NoError(err)

	kinds := make([]string, 0, 2)
	for _, emitted := range drain(events) {
		kinds = append(kinds, emitted.Event.Kind())
	}
	req.Equal([]string{event.KindReactionAdded, event.KindMilestoneCelebration}, kinds)
}

func TestReactionProcessor_Remove_Reverses_Warmth(t *testing.T) {
	req := require.New(t)
	processor, _, postID, events := newTestProcessor(t)
	ctx := context.Background()
	target := postTarget(postID)

	_, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: target, Type: domain.ReactionLove, Intensity: 2, ClientID: "r-1",
	})
	req.NoError(err)
	drain(events)

	req.NoError(processor.Remove(ctx, "partner", target))

	counts, warmth := processor.CountsFor(target)
	req.Empty(counts)
	req.InDelta(0.0, warmth, 1e-9)

	emitted := drain(events)
	req.Len(emitted, 1)
	req.Equal(event.KindReactionRemoved, emitted[0].Event.Kind())

	// Removing again is a not-found, not a crash.
	err = processor.Remove(ctx, "partner", target)
	req.ErrorIs(err, apperrors.ErrReactionNotFound)
}

func TestReactionProcessor_Comment_Target_Updates_Summary(t *testing.T) {
	req := require.New(t)
	processor, engine, postID, _ := newTestProcessor(t)
	ctx := context.Background()

	comment, _, err := engine.Create(ctx, CreateComment{PostID: postID, AuthorID: "sister", Content: "hi"})
	req.NoError(err)

	result, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: domain.Target{ID: comment.ID, Kind: domain.TargetComment},
		Type: domain.ReactionGrateful, Intensity: 2, ClientID: "cmt-1",
	})
	req.NoError(err)

	refreshed, ok := engine.Get(comment.ID)
	req.True(ok)
	req.Equal(result.Counts, refreshed.ReactionCounts)
	req.InDelta(result.TargetWarmth, refreshed.Warmth, 1e-9)
}

func TestReactionProcessor_Unknown_Target(t *testing.T) {
	req := require.New(t)
	processor, _, _, _ := newTestProcessor(t)

	_, err := processor.Apply(context.Background(), ApplyReaction{
		UserID: "partner", Target: postTarget(uuid.New()),
		Type: domain.ReactionLove, Intensity: 1, ClientID: "x",
	})

	req.ErrorIs(err, apperrors.ErrTargetNotFound)
}

func TestReactionProcessor_Validation(t *testing.T) {
	processor, _, postID, _ := newTestProcessor(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  ApplyReaction
	}{
		{
			name: "unknown type",
			cmd:  ApplyReaction{UserID: "u", Target: postTarget(postID), Type: "sparkles", Intensity: 1},
		},
		{
			name: "intensity too low",
			cmd:  ApplyReaction{UserID: "u", Target: postTarget(postID), Type: domain.ReactionLove, Intensity: 0},
		},
		{
			name: "intensity too high",
			cmd:  ApplyReaction{UserID: "u", Target: postTarget(postID), Type: domain.ReactionLove, Intensity: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processor.Apply(ctx, tt.cmd)
			require.Error(t, err)
			require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}

func TestReactionProcessor_Concurrent_Writers_On_Same_Target(t *testing.T) {
	req := require.New(t)
	processor, _, postID, _ := newTestProcessor(t)
	ctx := context.Background()
	target := postTarget(postID)

	var wg sync.WaitGroup
	users := []string{"partner", "sister", "aunt", "owner"}
	for i := 0; i < 10; i++ {
		for _, user := range users {
			wg.Add(1)
			go func(user string, i int) {
				defer wg.Done()
				_, err := processor.Apply(ctx, ApplyReaction{
					UserID: user, Target: target,
					Type: domain.ReactionLove, Intensity: 1 + i%3,
				})
				require.NoError(t, err)
			}(user, i)
		}
	}
	wg.Wait()

	// Upserts collapsed everything to one reaction per user.
	counts, warmth := processor.CountsFor(target)
	req.Equal(len(users), counts[domain.ReactionLove])
	req.Greater(warmth, 0.0)
}

func TestReactionProcessor_PruneDedup(t *testing.T) {
	req := require.New(t)
	processor, _, postID, _ := newTestProcessor(t)
	ctx := context.Background()

	now := time.Now()
	processor.clock = func() time.Time { return now }

	_, err := processor.Apply(ctx, ApplyReaction{
		UserID: "partner", Target: postTarget(postID),
		Type: domain.ReactionLove, Intensity: 1, ClientID: "stale",
	})
	req.NoError(err)

	req.Zero(processor.PruneDedup())

	now = now.Add(testDedupWindow + time.Second)
	req.Equal(1, processor.PruneDedup())
}
