// Package domain contains core concepts of the engagement engine.
// This file defines reactions and their warmth contribution rules.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReactionType is the closed set of supported reactions.
type ReactionType string

const (
	ReactionLove        ReactionType = "love"
	ReactionExcited     ReactionType = "excited"
	ReactionSupportive  ReactionType = "supportive"
	ReactionStrong      ReactionType = "strong"
	ReactionBlessed     ReactionType = "blessed"
	ReactionHappy       ReactionType = "happy"
	ReactionGrateful    ReactionType = "grateful"
	ReactionCelebrating ReactionType = "celebrating"
	ReactionAmazed      ReactionType = "amazed"
)

// TargetKind distinguishes the two reaction scopes.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

// Target is exactly one post or comment.
type Target struct {
	ID   uuid.UUID
	Kind TargetKind
}

// Reaction records one user's active reaction on one target.
// At most one reaction exists per (user, target); a second reaction
// from the same user replaces the first in place.
type Reaction struct {
	ID        uuid.UUID
	UserID    string
	Target    Target
	Type      ReactionType
	Intensity int // 1..3
	Message   string
	Milestone bool
	Warmth    float64
	ClientID  string // client-supplied idempotency id
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReactionTuning holds the heuristic warmth constants. They are tuning
// values with no derivation; callers load them from configuration and
// must not treat the defaults as correct.
type ReactionTuning struct {
	BaseValues          map[ReactionType]float64
	MilestoneMultiplier float64
	PerReactionCap      float64
}

func DefaultReactionTuning() ReactionTuning {
	return ReactionTuning{
		BaseValues: map[ReactionType]float64{
			ReactionLove:        0.10,
			ReactionExcited:     0.09,
			ReactionSupportive:  0.12,
			ReactionStrong:      0.13,
			ReactionBlessed:     0.10,
			ReactionHappy:       0.08,
			ReactionGrateful:    0.10,
			ReactionCelebrating: 0.12,
			ReactionAmazed:      0.08,
		},
		MilestoneMultiplier: 1.5,
		PerReactionCap:      0.25,
	}
}

// KnownReactionType reports whether t belongs to the closed enum.
func (t ReactionTuning) KnownReactionType(rt ReactionType) bool {
	_, ok := t.BaseValues[rt]
	return ok
}

// intensityMultiplier maps the three intensity levels to their factor.
func intensityMultiplier(intensity int) float64 {
	switch intensity {
	case 1:
		return 0.5
	case 3:
		return 1.5
	default:
		return 1.0
	}
}

// ReactionWarmth computes the bounded warmth contribution of a single
// reaction: base(type) x intensity factor x milestone multiplier,
// capped at PerReactionCap.
func (t ReactionTuning) ReactionWarmth(rt ReactionType, intensity int, milestone bool) float64 {
	warmth := t.BaseValues[rt] * intensityMultiplier(intensity)
	if milestone {
		warmth *= t.MilestoneMultiplier
	}
	if warmth > t.PerReactionCap {
		warmth = t.PerReactionCap
	}
	return warmth
}
