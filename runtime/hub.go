package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bumpfeed/contract"
	"bumpfeed/domain"
	"bumpfeed/domain/event"
	"bumpfeed/engagement"
	"bumpfeed/observability"
	"bumpfeed/runtime/workers"
	"bumpfeed/warmth"
)

// Features advertised to every freshly admitted connection.
var serverFeatures = []string{
	"optimistic_reactions",
	"threaded_comments",
	"typing_indicators",
	"family_warmth",
	"read_receipts",
}

// HubTimings groups the background loop knobs.
type HubTimings struct {
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	StaleTimeout      time.Duration
	TypingWindow      time.Duration
}

// Hub wires the registry, dispatcher, router, engines and workers into
// one lifecycle. The transport talks to the hub; the hub owns
// admission, teardown and the supervised background loops.
type Hub struct {
	log        *slog.Logger
	registry   contract.IRegistry
	dispatcher contract.IDispatcher
	supervisor contract.ISupervisor
	router     *Router
	reactions  *engagement.ReactionProcessor
	comments   *engagement.CommentEngine
	scorer     *warmth.Scorer
	directory  contract.FamilyDirectory
	store      contract.ActivityStore
	events     chan event.Outbound
	monitoring *observability.Monitoring
	timings    HubTimings
}

func NewHub(log *slog.Logger, registry contract.IRegistry, dispatcher contract.IDispatcher,
	supervisor contract.ISupervisor, router *Router, reactions *engagement.ReactionProcessor,
	comments *engagement.CommentEngine, scorer *warmth.Scorer, directory contract.FamilyDirectory,
	store contract.ActivityStore, events chan event.Outbound,
	monitoring *observability.Monitoring, timings HubTimings) *Hub {
	return &Hub{
		log:        log,
		registry:   registry,
		dispatcher: dispatcher,
		supervisor: supervisor,
		router:     router,
		reactions:  reactions,
		comments:   comments,
		scorer:     scorer,
		directory:  directory,
		store:      store,
		events:     events,
		monitoring: monitoring,
		timings:    timings,
	}
}

// Start registers the background workers and runs the supervisor until
// the context is canceled. It blocks.
func (h *Hub) Start(ctx context.Context) {
	h.supervisor.Add(
		workers.NewActivityRecorder(h.log, h.events, h.store, h.dispatcher, h.monitoring),
		workers.NewHeartbeatWorker(h.log, h.registry, h.dispatcher, h.timings.HeartbeatInterval),
		workers.NewCleanupWorker(h.log, h.registry, h, h.comments, h.reactions,
			h.timings.CleanupInterval, h.timings.StaleTimeout, h.timings.TypingWindow),
	)
	h.log.Info("Starting hub and all supervised workers")
	h.supervisor.Run(ctx)
}

// Stop cancels the supervised workers.
func (h *Hub) Stop() { h.supervisor.Stop() }

// Router returns the inbound message router for the transport layer.
func (h *Hub) Router() *Router { return h.router }

// Admit registers an authenticated connection with its sink and sends
// the welcome unicast.
func (h *Hub) Admit(ctx context.Context, identity contract.Identity, sink contract.EventSink) *domain.Connection {
	conn := domain.NewConnection(domain.ConnectionID(uuid.NewString()), identity.UserID, identity.DisplayName, time.Now())
	h.registry.Admit(conn, sink)
	h.log.Info("Connection admitted", "connection", conn.ID, "user", conn.UserID)

	if err := h.dispatcher.SendToOne(ctx, conn.ID, event.ConnectionEstablished{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		ServerTime:   time.Now(),
		Features:     serverFeatures,
	}); err != nil {
		h.log.Warn("Welcome message undeliverable", "connection", conn.ID, "err", err)
	}
	return conn
}

// Disconnect removes the connection from every room it joined and
// broadcasts offline presence before the session object is discarded.
// In-flight broadcasts already targeting it simply fail that one send.
func (h *Hub) Disconnect(ctx context.Context, id domain.ConnectionID, reason string) {
	conn, rooms := h.registry.Remove(id)
	if conn == nil {
		return
	}
	h.log.Info("Connection removed", "connection", id, "user", conn.UserID, "reason", reason)

	for _, roomID := range rooms {
		h.dispatcher.Broadcast(ctx, roomID, event.MemberOffline{
			Room:        roomID,
			UserID:      conn.UserID,
			DisplayName: conn.DisplayName,
		}, id)
	}
}

// WarmthFor computes the post's live warmth score from its current
// comments and reactions, resolving each actor's relationship through
// the family circle.
func (h *Hub) WarmthFor(ctx context.Context, postID uuid.UUID) (domain.WarmthScore, error) {
	pregnancyID, err := h.directory.PregnancyOfPost(ctx, postID.String())
	if err != nil {
		return domain.WarmthScore{}, err
	}
	members, err := h.directory.FamilyOf(ctx, pregnancyID)
	if err != nil {
		return domain.WarmthScore{}, err
	}

	byUser := make(map[string]domain.Relationship, len(members))
	for _, member := range members {
		byUser[member.UserID] = member.Relationship
	}

	interactions := h.comments.Interactions(postID)
	interactions = append(interactions,
		h.reactions.Interactions(domain.Target{ID: postID, Kind: domain.TargetPost})...)
	for i := range interactions {
		interactions[i].Relationship = byUser[interactions[i].ActorID]
	}

	return h.scorer.Score(warmth.ScopeForPost(postID.String()), members, interactions, time.Now()), nil
}
