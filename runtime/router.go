package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"bumpfeed/contract"
	"bumpfeed/domain"
	"bumpfeed/domain/event"
	"bumpfeed/engagement"
	apperrors "bumpfeed/errors"
)

// How far back get_room_info reaches into the activity log.
const recentActivityWindow = time.Hour

// Inbound client message types.
const (
	TypeSubscribeRoom      = "subscribe_room"
	TypeUnsubscribeRoom    = "unsubscribe_room"
	TypeOptimisticReaction = "optimistic_reaction"
	TypeTypingIndicator    = "typing_indicator"
	TypeReadReceipt        = "read_receipt"
	TypeHeartbeatResponse  = "heartbeat_response"
	TypeGetRoomInfo        = "get_room_info"
)

// Envelope is the discriminator of every inbound client message;
// type-specific fields sit flat beside it in the same object.
type Envelope struct {
	Type string `json:"type" validate:"required"`
}

type subscribeRoomPayload struct {
	RoomID string `json:"room_id" validate:"required"`
}

type optimisticReactionPayload struct {
	PostID       string `json:"post_id" validate:"required_without=CommentID,omitempty,uuid"`
	CommentID    string `json:"comment_id" validate:"omitempty,uuid"`
	ReactionType string `json:"reaction_type" validate:"required"`
	Intensity    int    `json:"intensity" validate:"required,min=1,max=3"`
	Message      string `json:"message" validate:"max=500"`
	Milestone    bool   `json:"milestone"`
	ClientID     string `json:"client_id" validate:"max=128"`
}

type typingIndicatorPayload struct {
	PostID   string `json:"post_id" validate:"required,uuid"`
	IsTyping bool   `json:"is_typing"`
}

type readReceiptPayload struct {
	PostID string    `json:"post_id" validate:"required,uuid"`
	ReadAt time.Time `json:"read_at"`
}

type roomInfoPayload struct {
	RoomID string `json:"room_id" validate:"required"`
}

// Router classifies inbound envelopes into a closed set of handlers.
// Errors and panics are converted into an error reply to the sender
// only; the connection's message loop always continues.
type Router struct {
	log        *slog.Logger
	validate   *validator.Validate
	registry   contract.IRegistry
	dispatcher contract.IDispatcher
	authorizer contract.RoomAuthorizer
	reactions  *engagement.ReactionProcessor
	comments   *engagement.CommentEngine
	store      contract.ActivityStore
	events     chan<- event.Outbound
}

func NewRouter(log *slog.Logger, registry contract.IRegistry, dispatcher contract.IDispatcher,
	authorizer contract.RoomAuthorizer, reactions *engagement.ReactionProcessor,
	comments *engagement.CommentEngine, store contract.ActivityStore,
	events chan<- event.Outbound) *Router {
	return &Router{
		log:        log,
		validate:   validator.New(),
		registry:   registry,
		dispatcher: dispatcher,
		authorizer: authorizer,
		reactions:  reactions,
		comments:   comments,
		store:      store,
		events:     events,
	}
}

// Handle processes one raw inbound message from a connection. It never
// returns an error to the transport; failures become an error reply to
// the sender.
func (r *Router) Handle(ctx context.Context, connID domain.ConnectionID, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Handler panic, connection loop continues", "connection", connID, "panic", rec)
			r.replyError(ctx, connID, apperrors.Newf(apperrors.KindInternal, "internal error"))
		}
	}()

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		r.replyError(ctx, connID, apperrors.Newf(apperrors.KindValidation, "malformed envelope: %v", err))
		return
	}
	if err := r.validate.Struct(envelope); err != nil {
		r.replyError(ctx, connID, apperrors.New(apperrors.KindValidation, err))
		return
	}

	conn, ok := r.registry.Connection(connID)
	if !ok {
		r.log.Warn("Message from unknown connection", "connection", connID)
		return
	}

	var err error
	switch envelope.Type {
	case TypeSubscribeRoom:
		err = r.handleSubscribe(ctx, conn, raw)
	case TypeUnsubscribeRoom:
		err = r.handleUnsubscribe(conn, raw)
	case TypeOptimisticReaction:
		err = r.handleReaction(ctx, conn, raw)
	case TypeTypingIndicator:
		err = r.handleTyping(ctx, conn, raw)
	case TypeReadReceipt:
		err = r.handleReadReceipt(ctx, conn, raw)
	case TypeHeartbeatResponse:
		r.registry.Heartbeat(connID)
	case TypeGetRoomInfo:
		err = r.handleRoomInfo(ctx, conn, raw)
	default:
		err = apperrors.New(apperrors.KindValidation, apperrors.ErrUnknownMessage)
	}
	if err != nil {
		r.replyError(ctx, connID, err)
	}
}

func (r *Router) handleSubscribe(ctx context.Context, conn *domain.Connection, raw json.RawMessage) error {
	var payload subscribeRoomPayload
	if err := r.decode(raw, &payload); err != nil {
		return err
	}
	roomID := domain.RoomID(payload.RoomID)
	if !roomID.Valid() {
		return apperrors.Newf(apperrors.KindValidation, "invalid room id %q", payload.RoomID)
	}
	if !r.authorizer.CanAccessRoom(ctx, conn.UserID, roomID) {
		return apperrors.New(apperrors.KindAuthorization, apperrors.ErrRoomAccessDenied)
	}
	if !r.registry.Subscribe(conn.ID, roomID) {
		return apperrors.Newf(apperrors.KindInternal, "connection %s vanished during subscribe", conn.ID)
	}
	r.emit(event.MemberOnline{
		Room:        roomID,
		UserID:      conn.UserID,
		DisplayName: conn.DisplayName,
	}, conn.ID)
	return nil
}

func (r *Router) handleUnsubscribe(conn *domain.Connection, raw json.RawMessage) error {
	var payload subscribeRoomPayload
	if err := r.decode(raw, &payload); err != nil {
		return err
	}
	roomID := domain.RoomID(payload.RoomID)
	r.registry.Unsubscribe(conn.ID, roomID)
	r.emit(event.MemberOffline{
		Room:        roomID,
		UserID:      conn.UserID,
		DisplayName: conn.DisplayName,
	}, conn.ID)
	return nil
}

func (r *Router) handleReaction(ctx context.Context, conn *domain.Connection, raw json.RawMessage) error {
	var payload optimisticReactionPayload
	if err := r.decode(raw, &payload); err != nil {
		return err
	}
	target, err := reactionTargetOf(payload)
	if err != nil {
		return err
	}
	_, err = r.reactions.Apply(ctx, engagement.ApplyReaction{
		UserID:    conn.UserID,
		Target:    target,
		Type:      domain.ReactionType(payload.ReactionType),
		Intensity: payload.Intensity,
		Message:   payload.Message,
		Milestone: payload.Milestone,
		ClientID:  payload.ClientID,
		Origin:    conn.ID,
	})
	return err
}

func reactionTargetOf(payload optimisticReactionPayload) (domain.Target, error) {
	if payload.CommentID != "" {
		id, err := uuid.Parse(payload.CommentID)
		if err != nil {
			return domain.Target{}, apperrors.New(apperrors.KindValidation, err)
		}
		return domain.Target{ID: id, Kind: domain.TargetComment}, nil
	}
	id, err := uuid.Parse(payload.PostID)
	if err != nil {
		return domain.Target{}, apperrors.New(apperrors.KindValidation, err)
	}
	return domain.Target{ID: id, Kind: domain.TargetPost}, nil
}

func (r *Router) handleTyping(ctx context.Context, conn *domain.Connection, raw json.RawMessage) error {
	var payload typingIndicatorPayload
	if err := r.decode(raw, &payload); err != nil {
		return err
	}
	postID, err := uuid.Parse(payload.PostID)
	if err != nil {
		return apperrors.New(apperrors.KindValidation, err)
	}
	return r.comments.SetTyping(ctx, conn.UserID, postID, payload.IsTyping, conn.ID)
}

// handleReadReceipt acknowledges to the sender and records the read in
// the activity log. Receipts are never broadcast.
func (r *Router) handleReadReceipt(ctx context.Context, conn *domain.Connection, raw json.RawMessage) error {
	var payload readReceiptPayload
	if err := r.decode(raw, &payload); err != nil {
		return err
	}
	readAt := payload.ReadAt
	if readAt.IsZero() {
		readAt = time.Now()
	}
	if err := r.store.Append(domain.ActivityEvent{
		ID:         uuid.New(),
		ActorID:    conn.UserID,
		Kind:       domain.ActivityPresence,
		TargetID:   payload.PostID,
		TargetKind: string(domain.TargetPost),
		Payload:    map[string]string{"receipt": "read"},
		Priority:   1,
		CreatedAt:  readAt,
	}); err != nil {
		r.log.Warn("Read receipt not recorded", "post", payload.PostID, "err", err)
	}
	return r.dispatcher.SendToOne(ctx, conn.ID, event.ReadReceiptAck{PostID: payload.PostID, ReadAt: readAt})
}

func (r *Router) handleRoomInfo(ctx context.Context, conn *domain.Connection, raw json.RawMessage) error {
	var payload roomInfoPayload
	if err := r.decode(raw, &payload); err != nil {
		return err
	}
	roomID := domain.RoomID(payload.RoomID)
	if !r.authorizer.CanAccessRoom(ctx, conn.UserID, roomID) {
		return apperrors.New(apperrors.KindAuthorization, apperrors.ErrRoomAccessDenied)
	}

	recent, err := r.store.EventsSince(roomID, time.Now().Add(-recentActivityWindow))
	if err != nil {
		r.log.Warn("Recent activity unavailable", "room", roomID, "err", err)
	}
	return r.dispatcher.SendToOne(ctx, conn.ID, event.RoomInfo{
		Room:           roomID,
		MemberCount:    len(r.registry.Members(roomID)),
		OnlineUserIDs:  r.registry.OnlineUsers(roomID),
		RecentActivity: recent,
		ServerTime:     time.Now(),
	})
}

// decode unmarshals the flat message into a typed payload and
// validates it.
func (r *Router) decode(raw json.RawMessage, payload any) error {
	if err := json.Unmarshal(raw, payload); err != nil {
		return apperrors.Newf(apperrors.KindValidation, "malformed payload: %v", err)
	}
	if err := r.validate.Struct(payload); err != nil {
		return apperrors.New(apperrors.KindValidation, err)
	}
	return nil
}

// emit hands a broadcast-worthy event to the recorder worker without
// ever blocking a connection's message loop.
func (r *Router) emit(e event.DomainEvent, exclude domain.ConnectionID) {
	select {
	case r.events <- event.Outbound{Event: e, Exclude: exclude}:
	default:
		r.log.Warn("Event channel full, dropping", "kind", e.Kind())
	}
}

// replyError maps any failure to the single error reply sent to the
// offending sender.
func (r *Router) replyError(ctx context.Context, connID domain.ConnectionID, err error) {
	reply := event.ErrorReply{Code: string(apperrors.KindOf(err)), Message: err.Error()}
	if sendErr := r.dispatcher.SendToOne(ctx, connID, reply); sendErr != nil {
		r.log.Debug("Error reply undeliverable", "connection", connID, "err", sendErr)
	}
}
