package warmth

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bumpfeed/contract"
	"bumpfeed/domain"
)

type memoryHistory struct {
	mu     sync.Mutex
	scores map[string][]float64
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{scores: make(map[string][]float64)}
}

func (h *memoryHistory) Record(scope string, overall float64, _ time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scores[scope] = append(h.scores[scope], overall)
	return nil
}

func (h *memoryHistory) Recent(scope string, n int) ([]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := h.scores[scope]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

type neutralClassifier struct{}

func (neutralClassifier) Classify(string) (contract.Category, float64) {
	return contract.CategoryNeutral, 0
}

func newTestScorer(t *testing.T, history contract.WarmthHistory) *Scorer {
	t.Helper()
	classifier, err := NewKeywordClassifier(DefaultLexicons())
	require.NoError(t, err)
	return NewScorer(slog.Default(), DefaultTuning(), classifier, history)
}

func TestScorer_Empty_Window_Scores_Zero(t *testing.T) {
	req := require.New(t)
	scorer := newTestScorer(t, newMemoryHistory())

	score := scorer.Score("post:empty", nil, nil, time.Now())

	req.Zero(score.Overall)
	req.Zero(score.ImmediateFamily)
	req.Zero(score.ExtendedFamily)
	req.Zero(score.Recency)
	req.Zero(score.EmotionalSupport)
	req.Equal(domain.TrendStable, score.Trend)
	req.Contains(score.Insights, "No family engagement in this window yet")
}

func TestScorer_Immediate_And_Extended_Tiers_Are_Disjoint(t *testing.T) {
	req := require.New(t)
	scorer := newTestScorer(t, newMemoryHistory())
	now := time.Now()
	tuning := domain.DefaultReactionTuning()

	members := []domain.FamilyMember{
		{UserID: "owner", Relationship: domain.RelPartner, Owner: true},
		{UserID: "a", DisplayName: "A", Relationship: domain.RelPartner},
		{UserID: "b", DisplayName: "B", Relationship: domain.RelAunt},
	}

	// A reacts strong at intensity 3, B reacts happy at intensity 1.
	strongWarmth := tuning.ReactionWarmth(domain.ReactionStrong, 3, false)
	happyWarmth := tuning.ReactionWarmth(domain.ReactionHappy, 1, false)
	req.InDelta(0.195, strongWarmth, 1e-9)
	req.InDelta(0.04, happyWarmth, 1e-9)

	interactions := []domain.Interaction{
		{ActorID: "a", Relationship: domain.RelPartner, Kind: domain.InteractionReaction,
			ReactionType: domain.ReactionStrong, Warmth: strongWarmth, At: now},
		{ActorID: "b", Relationship: domain.RelAunt, Kind: domain.InteractionReaction,
			ReactionType: domain.ReactionHappy, Warmth: happyWarmth, At: now},
	}

	score := scorer.Score("post:p1", members, interactions, now)

	// Each tier reflects only its own member's interaction.
	req.InDelta(0.78, score.ImmediateFamily, 1e-9)
	req.InDelta(0.16, score.ExtendedFamily, 1e-9)
	req.GreaterOrEqual(score.Overall, 0.0)
	req.LessOrEqual(score.Overall, 1.0)
}

func TestScorer_Overall_Always_Bounded(t *testing.T) {
	req := require.New(t)
	scorer := newTestScorer(t, newMemoryHistory())
	now := time.Now()

	// Pile on far more warmth than any cap anticipates.
	var interactions []domain.Interaction
	for i := 0; i < 50; i++ {
		interactions = append(interactions, domain.Interaction{
			ActorID:      "a",
			Relationship: domain.RelPartner,
			Kind:         domain.InteractionComment,
			Content:      "congratulations, so happy for you, you got this",
			Warmth:       10.0,
			At:           now,
		})
	}

	score := scorer.Score("post:bounded", nil, interactions, now)

	req.LessOrEqual(score.Overall, 1.0)
	req.GreaterOrEqual(score.Overall, 0.0)
	for _, sub := range []float64{score.ImmediateFamily, score.ExtendedFamily, score.Recency, score.EmotionalSupport} {
		req.LessOrEqual(sub, 1.0)
		req.GreaterOrEqual(sub, 0.0)
	}
}

func TestScorer_Recency_Weighs_Fresh_Interactions_Heavier(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	scorer := newTestScorer(t, newMemoryHistory())

	// One warm interaction an hour ago, one cold one six days ago.
	interactions := []domain.Interaction{
		{ActorID: "a", Relationship: domain.RelPartner, Kind: domain.InteractionReaction,
			ReactionType: domain.ReactionLove, Warmth: 0.2, At: now.Add(-time.Hour)},
		{ActorID: "b", Relationship: domain.RelAunt, Kind: domain.InteractionReaction,
			ReactionType: domain.ReactionHappy, Warmth: 0.0, At: now.Add(-6 * 24 * time.Hour)},
	}

	score := scorer.Score("post:decay", nil, interactions, now)

	// Decay weights 1.0 and 0.2 pull the average toward the fresh
	// interaction: (1.0*0.8 + 0.2*0.0) / 1.2.
	req.InDelta(0.8/1.2, score.Recency, 1e-9)
}

func TestScorer_Trend_Against_Rolling_History(t *testing.T) {
	req := require.New(t)
	history := newMemoryHistory()
	scorer := newTestScorer(t, history)
	now := time.Now()

	// Given three quiet prior calculations
	for _, prior := range []float64{0.1, 0.12, 0.08} {
		req.NoError(history.Record("post:p2", prior, now))
	}

	interactions := []domain.Interaction{{
		ActorID: "a", Relationship: domain.RelPartner, Kind: domain.InteractionReaction,
		ReactionType: domain.ReactionSupportive, Warmth: 0.24, At: now,
	}}

	// When a much warmer window is scored
	score := scorer.Score("post:p2", nil, interactions, now)

	// Then the trend reports the rise
	req.Equal(domain.TrendIncreasing, score.Trend)
}

func TestScorer_Cache_Reuses_Result_Until_Invalidated(t *testing.T) {
	req := require.New(t)
	scorer := newTestScorer(t, newMemoryHistory())
	now := time.Now()

	first := scorer.Score("post:cached", nil, nil, now)

	richer := []domain.Interaction{{
		ActorID: "a", Relationship: domain.RelPartner, Kind: domain.InteractionReaction,
		ReactionType: domain.ReactionLove, Warmth: 0.2, At: now,
	}}

	// Same scope within the TTL returns the cached score even though
	// the inputs changed.
	second := scorer.Score("post:cached", nil, richer, now.Add(time.Minute))
	req.Equal(first, second)

	scorer.Invalidate("post:cached")
	third := scorer.Score("post:cached", nil, richer, now.Add(time.Minute))
	req.Greater(third.Overall, first.Overall)
}
