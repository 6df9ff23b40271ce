// Package domain contains core concepts of the engagement engine.
// This file defines threaded comments and their structural invariants:
// depth(child) = depth(parent) + 1, depth never above MaxThreadDepth,
// and thread paths unique per post in traversal order.
package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxThreadDepth is the deepest allowed reply level. Replies under a
// comment at this depth are rejected.
const MaxThreadDepth = 5

// TombstoneContent replaces the body of a soft-deleted comment that
// still has descendants.
const TombstoneContent = "deleted"

// Mention is a resolved @mention inside a comment body.
type Mention struct {
	UserID      string
	DisplayName string
}

// CommentEdit is one entry of a comment's edit history.
type CommentEdit struct {
	EditorID string
	Previous string
	EditedAt time.Time
}

// Comment is a node in a post's reply tree. Parent and root are stored
// by id, never as live references, so the tree is a flat store plus
// indices and serializes without cycles.
type Comment struct {
	ID              uuid.UUID
	PostID          uuid.UUID
	AuthorID        string
	ParentID        *uuid.UUID
	Depth           int    // 0..MaxThreadDepth
	ThreadPath      string // dot-separated ordinals, e.g. "2.1.3"
	RootID          *uuid.UUID
	Content         string
	Mentions        []Mention
	ReplyCount      int // direct replies
	DescendantCount int // all transitive replies, tracked on roots
	ReactionCounts  map[ReactionType]int
	Warmth          float64
	Edits           []CommentEdit
	Deleted         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChildPath derives a child's thread path from its parent's path and
// the ordinal position among the parent's direct replies (1-based).
func ChildPath(parentPath string, ordinal int) string {
	return parentPath + "." + strconv.Itoa(ordinal)
}

// RootPath is the thread path of a depth-0 comment at the given
// 1-based position among the post's root comments.
func RootPath(ordinal int) string {
	return strconv.Itoa(ordinal)
}

// PathDepth derives depth from a thread path: "1" is depth 0,
// "1.2.1" is depth 2.
func PathDepth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".")
}

// CommentTuning holds the heuristic constants of a comment's warmth
// contribution. Loaded from configuration, defaults below.
type CommentTuning struct {
	Base             float64
	LengthBonusMax   float64
	LengthBonusAt    int // content length granting the full length bonus
	MentionBonus     float64
	FamilyBonus      float64
	PerCommentCap    float64
	MaxContentLength int
}

func DefaultCommentTuning() CommentTuning {
	return CommentTuning{
		Base:             0.05,
		LengthBonusMax:   0.02,
		LengthBonusAt:    200,
		MentionBonus:     0.01,
		FamilyBonus:      0.02,
		PerCommentCap:    0.1,
		MaxContentLength: 2000,
	}
}

// CommentWarmth computes the bounded warmth contribution of a comment:
// base + length bonus + mention bonus + non-owner family member bonus,
// capped at PerCommentCap.
func (t CommentTuning) CommentWarmth(contentLen, mentionCount int, nonOwnerFamily bool) float64 {
	warmth := t.Base

	lengthBonus := t.LengthBonusMax * float64(contentLen) / float64(t.LengthBonusAt)
	if lengthBonus > t.LengthBonusMax {
		lengthBonus = t.LengthBonusMax
	}
	warmth += lengthBonus

	warmth += t.MentionBonus * float64(mentionCount)
	if nonOwnerFamily {
		warmth += t.FamilyBonus
	}

	if warmth > t.PerCommentCap {
		warmth = t.PerCommentCap
	}
	return warmth
}
