// Package domain contains core concepts of the engagement engine.
// This file defines the append-only activity log entries consumed by
// the dispatcher for live delivery and by the warmth scorer for its
// recency window.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityKind classifies an activity log entry.
type ActivityKind string

const (
	ActivityReaction ActivityKind = "reaction"
	ActivityComment  ActivityKind = "comment"
	ActivityPresence ActivityKind = "presence"
)

// ActivityEvent is one append-only engagement record.
type ActivityEvent struct {
	ID         uuid.UUID         `json:"id"`
	Room       RoomID            `json:"room_id"`
	ActorID    string            `json:"actor_id"`
	Kind       ActivityKind      `json:"kind"`
	TargetID   string            `json:"target_id"`
	TargetKind string            `json:"target_kind"`
	Payload    map[string]string `json:"payload,omitempty"`
	Priority   int               `json:"priority"` // 1 (low) .. 5 (urgent)
	CreatedAt  time.Time         `json:"created_at"`
}
