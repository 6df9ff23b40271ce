package warmth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"bumpfeed/contract"
	"bumpfeed/domain"
)

// Tuning gathers the scorer's heuristic constants. All of them are
// tuning values preserved from the product heuristic; load them from
// configuration instead of deriving them.
type Tuning struct {
	Weights           domain.WarmthWeights
	Window            time.Duration // interaction window, default 7 days
	NormalizationCap  float64       // single-interaction warmth treated as "full", default 0.25
	ImmediateSlots    int           // possible immediate members, default 4
	ExtendedSlots     int           // possible extended members, default 8
	TrendThreshold    float64       // +/- band around the rolling mean, default 0.1
	TrendHistoryDepth int           // prior calculations compared, default 3
	CacheTTL          time.Duration // default 1 hour
}

func DefaultTuning() Tuning {
	return Tuning{
		Weights:           domain.DefaultWarmthWeights(),
		Window:            7 * 24 * time.Hour,
		NormalizationCap:  0.25,
		ImmediateSlots:    4,
		ExtendedSlots:     8,
		TrendThreshold:    0.1,
		TrendHistoryDepth: 3,
		CacheTTL:          time.Hour,
	}
}

// decay buckets for the recency sub-score, newest first.
var decayBuckets = []struct {
	age    time.Duration
	weight float64
}{
	{2 * time.Hour, 1.0},
	{12 * time.Hour, 0.8},
	{24 * time.Hour, 0.6},
	{72 * time.Hour, 0.4},
}

const decayFloor = 0.2

func recencyWeight(age time.Duration) float64 {
	for _, bucket := range decayBuckets {
		if age <= bucket.age {
			return bucket.weight
		}
	}
	return decayFloor
}

// reactionCategories maps text-less reaction types onto support
// categories so reactions participate in the emotional-support
// sub-score alongside classified comments.
var reactionCategories = map[domain.ReactionType]contract.Category{
	domain.ReactionSupportive:  contract.CategorySupport,
	domain.ReactionStrong:      contract.CategorySupport,
	domain.ReactionBlessed:     contract.CategoryReassurance,
	domain.ReactionGrateful:    contract.CategoryReassurance,
	domain.ReactionCelebrating: contract.CategoryCelebration,
	domain.ReactionExcited:     contract.CategoryCelebration,
}

type cachedScore struct {
	score     domain.WarmthScore
	expiresAt time.Time
}

// Scorer computes warmth scores over interaction windows. Scoring is a
// pure fold over the inputs; the only state is the short-TTL result
// cache and the trend history behind contract.WarmthHistory.
type Scorer struct {
	log        *slog.Logger
	tuning     Tuning
	classifier contract.Classifier
	history    contract.WarmthHistory

	mu    sync.Mutex
	cache map[string]cachedScore
}

func NewScorer(log *slog.Logger, tuning Tuning, classifier contract.Classifier, history contract.WarmthHistory) *Scorer {
	return &Scorer{
		log:        log,
		tuning:     tuning,
		classifier: classifier,
		history:    history,
		cache:      make(map[string]cachedScore),
	}
}

// Score computes the warmth score for one scope (a post id or a
// pregnancy id) from its interaction window and family circle. Results
// are cached per scope for the configured TTL.
func (s *Scorer) Score(scope string, members []domain.FamilyMember, interactions []domain.Interaction, now time.Time) domain.WarmthScore {
	s.mu.Lock()
	if cached, ok := s.cache[scope]; ok && now.Before(cached.expiresAt) {
		s.mu.Unlock()
		return cached.score
	}
	s.mu.Unlock()

	windowStart := now.Add(-s.tuning.Window)
	windowed := lo.Filter(interactions, func(item domain.Interaction, _ int) bool {
		return !item.At.Before(windowStart)
	})

	score := domain.WarmthScore{
		ImmediateFamily:  s.familyScore(windowed, members, true),
		ExtendedFamily:   s.familyScore(windowed, members, false),
		Recency:          s.recencyScore(windowed, now),
		EmotionalSupport: s.supportScore(windowed),
		CalculatedAt:     now,
	}

	w := s.tuning.Weights
	score.Overall = clamp01(w.ImmediateFamily*score.ImmediateFamily +
		w.EmotionalSupport*score.EmotionalSupport +
		w.Recency*score.Recency +
		w.ExtendedFamily*score.ExtendedFamily)

	score.Trend = s.trend(scope, score.Overall)
	score.Insights = s.insights(score)

	if err := s.history.Record(scope, score.Overall, now); err != nil {
		s.log.Warn("Failed to record warmth history", "scope", scope, "err", err)
	}

	s.mu.Lock()
	s.cache[scope] = cachedScore{score: score, expiresAt: now.Add(s.tuning.CacheTTL)}
	s.mu.Unlock()

	return score
}

// Invalidate drops the cached score of a scope, forcing the next
// Score call to recompute. Called after every new interaction.
func (s *Scorer) Invalidate(scope string) {
	s.mu.Lock()
	delete(s.cache, scope)
	s.mu.Unlock()
}

// familyScore blends average interaction warmth with a participation
// factor over the relationship tier's member slots.
func (s *Scorer) familyScore(interactions []domain.Interaction, members []domain.FamilyMember, wantImmediate bool) float64 {
	tier := lo.Filter(interactions, func(item domain.Interaction, _ int) bool {
		return item.Relationship.Immediate() == wantImmediate
	})
	if len(tier) == 0 {
		return 0
	}

	total := 0.0
	actors := make(map[string]struct{})
	for _, interaction := range tier {
		total += s.normalize(interaction.Warmth)
		actors[interaction.ActorID] = struct{}{}
	}
	average := total / float64(len(tier))

	slots := s.tuning.ImmediateSlots
	if !wantImmediate {
		slots = s.tuning.ExtendedSlots
	}
	tierMembers := lo.CountBy(members, func(m domain.FamilyMember) bool {
		return !m.Owner && m.Relationship.Immediate() == wantImmediate
	})
	if tierMembers > 0 && tierMembers < slots {
		slots = tierMembers
	}
	participation := float64(len(actors)) / float64(slots)
	if participation > 1 {
		participation = 1
	}

	return clamp01(average * (0.6 + 0.4*participation))
}

// recencyScore is a time-decayed weighted average of normalized
// interaction warmth.
func (s *Scorer) recencyScore(interactions []domain.Interaction, now time.Time) float64 {
	if len(interactions) == 0 {
		return 0
	}
	weightedSum := 0.0
	weightTotal := 0.0
	for _, interaction := range interactions {
		weight := recencyWeight(now.Sub(interaction.At))
		weightedSum += weight * s.normalize(interaction.Warmth)
		weightTotal += weight
	}
	return clamp01(weightedSum / weightTotal)
}

// supportScore restricts the average to interactions classified as
// support, reassurance, or celebration, weighted by classifier
// confidence.
func (s *Scorer) supportScore(interactions []domain.Interaction) float64 {
	weightedSum := 0.0
	weightTotal := 0.0
	for _, interaction := range interactions {
		category, confidence := s.classify(interaction)
		if !category.Supportive() {
			continue
		}
		weightedSum += confidence * s.normalize(interaction.Warmth)
		weightTotal += confidence
	}
	if weightTotal == 0 {
		return 0
	}
	return clamp01(weightedSum / weightTotal)
}

func (s *Scorer) classify(interaction domain.Interaction) (contract.Category, float64) {
	if interaction.Kind == domain.InteractionComment && interaction.Content != "" {
		return s.classifier.Classify(interaction.Content)
	}
	if interaction.Kind == domain.InteractionReaction {
		if category, ok := reactionCategories[interaction.ReactionType]; ok {
			return category, 1
		}
	}
	return contract.CategoryNeutral, 0
}

// trend compares the fresh overall score against the mean of the last
// prior calculations in the same scope.
func (s *Scorer) trend(scope string, overall float64) domain.Trend {
	priors, err := s.history.Recent(scope, s.tuning.TrendHistoryDepth)
	if err != nil {
		s.log.Warn("Failed to load warmth history", "scope", scope, "err", err)
		return domain.TrendStable
	}
	if len(priors) == 0 {
		return domain.TrendStable
	}

	mean := lo.Sum(priors) / float64(len(priors))
	switch {
	case overall > mean+s.tuning.TrendThreshold:
		return domain.TrendIncreasing
	case overall < mean-s.tuning.TrendThreshold:
		return domain.TrendDecreasing
	default:
		return domain.TrendStable
	}
}

// insights turns threshold rules into advisory strings. They feed the
// UI only and back no invariant.
func (s *Scorer) insights(score domain.WarmthScore) []string {
	var out []string
	if score.ImmediateFamily >= 0.7 {
		out = append(out, "Your closest family is very engaged right now")
	} else if score.ImmediateFamily < 0.2 {
		out = append(out, "Your closest family has been quiet lately")
	}
	if score.EmotionalSupport >= 0.6 {
		out = append(out, "Messages are full of emotional support")
	}
	if score.Recency < 0.3 && score.Overall > 0 {
		out = append(out, "Most engagement happened a while ago")
	}
	if score.ExtendedFamily >= 0.5 {
		out = append(out, "Extended family is joining the conversation")
	}
	if score.Overall == 0 {
		out = append(out, "No family engagement in this window yet")
	}
	return out
}

func (s *Scorer) normalize(warmth float64) float64 {
	if s.tuning.NormalizationCap <= 0 {
		return clamp01(warmth)
	}
	return clamp01(warmth / s.tuning.NormalizationCap)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ScopeForPost builds the history/cache key of a post-level score.
func ScopeForPost(postID string) string { return fmt.Sprintf("post:%s", postID) }

// ScopeForPregnancy builds the history/cache key of a pregnancy-level
// score over a given window.
func ScopeForPregnancy(pregnancyID string, window time.Duration) string {
	return fmt.Sprintf("pregnancy:%s:%s", pregnancyID, window)
}
