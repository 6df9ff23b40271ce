// Package event defines the outbound domain events fanned out to
// connected family members. Each event knows its room scope, its wire
// kind, and its broadcast priority.
package event

import (
	"time"

	"bumpfeed/domain"
)

// Wire kinds of outbound server messages.
const (
	KindConnectionEstablished = "connection_established"
	KindReactionAdded         = "reaction_added"
	KindReactionRemoved       = "reaction_removed"
	KindCommentAdded          = "comment_added"
	KindCommentUpdated        = "comment_updated"
	KindCommentDeleted        = "comment_deleted"
	KindMemberOnline          = "family_member_online"
	KindMemberOffline         = "family_member_offline"
	KindTypingIndicator       = "typing_indicator"
	KindMilestoneCelebration  = "milestone_celebration"
	KindReadReceiptAck        = "read_receipt_ack"
	KindRoomInfo              = "room_info"
	KindHeartbeat             = "heartbeat"
	KindError                 = "error"
)

// DomainEvent is anything the dispatcher can deliver to a room or a
// single connection.
type DomainEvent interface {
	RoomID() domain.RoomID
	Kind() string
	Priority() int
}

// Outbound pairs an event with the connection that caused it, so the
// fan-out can skip echoing it back to its origin. A zero Exclude means
// every room member receives it.
type Outbound struct {
	Event   DomainEvent
	Exclude domain.ConnectionID
}

type ConnectionEstablished struct {
	ConnectionID domain.ConnectionID `json:"connection_id"`
	UserID       string              `json:"user_id"`
	ServerTime   time.Time           `json:"server_time"`
	Features     []string            `json:"features"`
}

func (ConnectionEstablished) RoomID() domain.RoomID { return "" }
func (ConnectionEstablished) Kind() string          { return KindConnectionEstablished }
func (ConnectionEstablished) Priority() int         { return 3 }

type ReactionAdded struct {
	Room         domain.RoomID               `json:"room_id"`
	Reaction     domain.Reaction             `json:"reaction"`
	Counts       map[domain.ReactionType]int `json:"updated_counts"`
	TargetWarmth float64                     `json:"target_warmth"`
}

func (e ReactionAdded) RoomID() domain.RoomID { return e.Room }
func (ReactionAdded) Kind() string            { return KindReactionAdded }
func (ReactionAdded) Priority() int           { return 3 }

type ReactionRemoved struct {
	Room         domain.RoomID               `json:"room_id"`
	UserID       string                      `json:"user_id"`
	Target       domain.Target               `json:"target"`
	Counts       map[domain.ReactionType]int `json:"updated_counts"`
	TargetWarmth float64                     `json:"target_warmth"`
}

func (e ReactionRemoved) RoomID() domain.RoomID { return e.Room }
func (ReactionRemoved) Kind() string            { return KindReactionRemoved }
func (ReactionRemoved) Priority() int           { return 2 }

type CommentAdded struct {
	Room    domain.RoomID  `json:"room_id"`
	Comment domain.Comment `json:"comment"`
}

func (e CommentAdded) RoomID() domain.RoomID { return e.Room }
func (CommentAdded) Kind() string            { return KindCommentAdded }
func (CommentAdded) Priority() int           { return 3 }

type CommentUpdated struct {
	Room    domain.RoomID  `json:"room_id"`
	Comment domain.Comment `json:"comment"`
}

func (e CommentUpdated) RoomID() domain.RoomID { return e.Room }
func (CommentUpdated) Kind() string            { return KindCommentUpdated }
func (CommentUpdated) Priority() int           { return 2 }

type CommentDeleted struct {
	Room       domain.RoomID `json:"room_id"`
	CommentID  string        `json:"comment_id"`
	PostID     string        `json:"post_id"`
	Tombstoned bool          `json:"tombstoned"`
}

func (e CommentDeleted) RoomID() domain.RoomID { return e.Room }
func (CommentDeleted) Kind() string            { return KindCommentDeleted }
func (CommentDeleted) Priority() int           { return 2 }

type MemberOnline struct {
	Room        domain.RoomID `json:"room_id"`
	UserID      string        `json:"user_id"`
	DisplayName string        `json:"display_name"`
}

func (e MemberOnline) RoomID() domain.RoomID { return e.Room }
func (MemberOnline) Kind() string            { return KindMemberOnline }
func (MemberOnline) Priority() int           { return 1 }

type MemberOffline struct {
	Room        domain.RoomID `json:"room_id"`
	UserID      string        `json:"user_id"`
	DisplayName string        `json:"display_name"`
}

func (e MemberOffline) RoomID() domain.RoomID { return e.Room }
func (MemberOffline) Kind() string            { return KindMemberOffline }
func (MemberOffline) Priority() int           { return 1 }

type TypingIndicator struct {
	Room     domain.RoomID `json:"room_id"`
	UserID   string        `json:"user_id"`
	PostID   string        `json:"post_id"`
	IsTyping bool          `json:"is_typing"`
}

func (e TypingIndicator) RoomID() domain.RoomID { return e.Room }
func (TypingIndicator) Kind() string            { return KindTypingIndicator }
func (TypingIndicator) Priority() int           { return 1 }

type MilestoneCelebration struct {
	Room     domain.RoomID   `json:"room_id"`
	Reaction domain.Reaction `json:"reaction"`
}

func (e MilestoneCelebration) RoomID() domain.RoomID { return e.Room }
func (MilestoneCelebration) Kind() string            { return KindMilestoneCelebration }
func (MilestoneCelebration) Priority() int           { return 5 }

type ReadReceiptAck struct {
	PostID string    `json:"post_id"`
	ReadAt time.Time `json:"read_at"`
}

func (ReadReceiptAck) RoomID() domain.RoomID { return "" }
func (ReadReceiptAck) Kind() string          { return KindReadReceiptAck }
func (ReadReceiptAck) Priority() int         { return 1 }

type RoomInfo struct {
	Room           domain.RoomID          `json:"room_id"`
	MemberCount    int                    `json:"member_count"`
	OnlineUserIDs  []string               `json:"online_user_ids"`
	RecentActivity []domain.ActivityEvent `json:"recent_activity"`
	ServerTime     time.Time              `json:"server_time"`
}

func (e RoomInfo) RoomID() domain.RoomID { return e.Room }
func (RoomInfo) Kind() string            { return KindRoomInfo }
func (RoomInfo) Priority() int           { return 2 }

type Heartbeat struct {
	At time.Time `json:"at"`
}

func (Heartbeat) RoomID() domain.RoomID { return "" }
func (Heartbeat) Kind() string          { return KindHeartbeat }
func (Heartbeat) Priority() int         { return 1 }

// ErrorReply is only ever delivered to the offending sender, never
// broadcast to a room.
type ErrorReply struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (ErrorReply) RoomID() domain.RoomID { return "" }
func (ErrorReply) Kind() string          { return KindError }
func (ErrorReply) Priority() int         { return 2 }
