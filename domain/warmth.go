// Package domain contains core concepts of the engagement engine.
// This file defines the family warmth score: a bounded composite that
// replaces like counts with a measure of emotional support.
package domain

import "time"

// Trend classifies the direction of a warmth score against its own
// recent history.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// WarmthScore is the composite score for a post or a whole pregnancy.
// Every sub-score and the overall value live in [0,1].
type WarmthScore struct {
	ImmediateFamily  float64
	ExtendedFamily   float64
	Recency          float64
	EmotionalSupport float64
	Overall          float64
	Trend            Trend
	Insights         []string
	CalculatedAt     time.Time
}

// WarmthWeights is the fixed combination of sub-scores. Weights must
// sum to 1.0 so the overall score stays in [0,1].
type WarmthWeights struct {
	ImmediateFamily  float64
	EmotionalSupport float64
	Recency          float64
	ExtendedFamily   float64
}

func DefaultWarmthWeights() WarmthWeights {
	return WarmthWeights{
		ImmediateFamily:  0.35,
		EmotionalSupport: 0.35,
		Recency:          0.2,
		ExtendedFamily:   0.1,
	}
}

// InteractionKind distinguishes scored engagement records.
type InteractionKind string

const (
	InteractionReaction InteractionKind = "reaction"
	InteractionComment  InteractionKind = "comment"
)

// Interaction is one engagement record inside a scoring window.
// Content is only set for comments and feeds the support classifier;
// ReactionType is only set for reactions.
type Interaction struct {
	ActorID      string
	Relationship Relationship
	Kind         InteractionKind
	Warmth       float64
	Content      string
	ReactionType ReactionType
	At           time.Time
}
