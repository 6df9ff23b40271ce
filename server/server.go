// Package server exposes the engine's HTTP surface: the WebSocket
// entry point, the optimistic-reaction fallback path, the warmth read
// and the health snapshot.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"bumpfeed/auth"
	"bumpfeed/contract"
	"bumpfeed/domain"
	"bumpfeed/engagement"
	apperrors "bumpfeed/errors"
	"bumpfeed/observability"
	"bumpfeed/runtime"
)

type optimisticReactionRequest struct {
	PostID       string `json:"post_id" validate:"required_without=CommentID,omitempty,uuid"`
	CommentID    string `json:"comment_id" validate:"omitempty,uuid"`
	ReactionType string `json:"reaction_type" validate:"required"`
	Intensity    int    `json:"intensity" validate:"required,min=1,max=3"`
	Message      string `json:"message" validate:"max=500"`
	Milestone    bool   `json:"milestone"`
	ClientID     string `json:"client_id" validate:"max=128"`
}

type optimisticReactionResponse struct {
	ReactionID        string                      `json:"reaction_id"`
	Optimistic        bool                        `json:"optimistic"`
	UpdatedCounts     map[domain.ReactionType]int `json:"updated_counts"`
	FamilyWarmthDelta float64                     `json:"family_warmth_delta"`
	LatencyMs         float64                     `json:"latency_ms"`
	ClientDedupID     string                      `json:"client_dedup_id"`
	BroadcastQueued   bool                        `json:"broadcast_queued"`
}

type reactionCountsResponse struct {
	PostID       string                      `json:"post_id"`
	Counts       map[domain.ReactionType]int `json:"counts"`
	TargetWarmth float64                     `json:"target_warmth"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server is the HTTP edge of the engagement engine.
type Server struct {
	log        *slog.Logger
	validate   *validator.Validate
	hub        *runtime.Hub
	reactions  *engagement.ReactionProcessor
	registry   contract.IRegistry
	verifier   contract.TokenVerifier
	monitoring *observability.Monitoring
	ws         http.Handler
}

func New(log *slog.Logger, hub *runtime.Hub, reactions *engagement.ReactionProcessor,
	registry contract.IRegistry, verifier contract.TokenVerifier,
	monitoring *observability.Monitoring, ws http.Handler) *Server {
	return &Server{
		log:        log,
		validate:   validator.New(),
		hub:        hub,
		reactions:  reactions,
		registry:   registry,
		verifier:   verifier,
		monitoring: monitoring,
		ws:         ws,
	}
}

// Routes assembles the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.ws)
	mux.HandleFunc("POST /reactions/optimistic", s.handleOptimisticReaction)
	mux.HandleFunc("GET /reactions/counts", s.handleReactionCounts)
	mux.HandleFunc("GET /warmth", s.handleWarmth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// handleOptimisticReaction is the complementary path outside the
// socket: same processor contract, same dedup and upsert semantics.
func (s *Server) handleOptimisticReaction(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identify(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var request optimisticReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, apperrors.Newf(apperrors.KindValidation, "malformed body: %v", err))
		return
	}
	if err := s.validate.Struct(request); err != nil {
		s.writeError(w, apperrors.New(apperrors.KindValidation, err))
		return
	}

	target, err := targetOf(request)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.reactions.Apply(r.Context(), engagement.ApplyReaction{
		UserID:    identity.UserID,
		Target:    target,
		Type:      domain.ReactionType(request.ReactionType),
		Intensity: request.Intensity,
		Message:   request.Message,
		Milestone: request.Milestone,
		ClientID:  request.ClientID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.monitoring.IncrReactionsProcessed()
	s.monitoring.ObserveReaction(result.LatencyMs)

	s.writeJSON(w, http.StatusOK, optimisticReactionResponse{
		ReactionID:        result.Reaction.ID.String(),
		Optimistic:        true,
		UpdatedCounts:     result.Counts,
		FamilyWarmthDelta: result.WarmthDelta,
		LatencyMs:         result.LatencyMs,
		ClientDedupID:     request.ClientID,
		BroadcastQueued:   !result.Replayed,
	})
}

func targetOf(request optimisticReactionRequest) (domain.Target, error) {
	if request.CommentID != "" {
		id, err := uuid.Parse(request.CommentID)
		if err != nil {
			return domain.Target{}, apperrors.New(apperrors.KindValidation, err)
		}
		return domain.Target{ID: id, Kind: domain.TargetComment}, nil
	}
	id, err := uuid.Parse(request.PostID)
	if err != nil {
		return domain.Target{}, apperrors.New(apperrors.KindValidation, err)
	}
	return domain.Target{ID: id, Kind: domain.TargetPost}, nil
}

// handleReactionCounts serves a post's current reaction summary.
func (s *Server) handleReactionCounts(w http.ResponseWriter, r *http.Request) {
	if _, err := s.identify(r); err != nil {
		s.writeError(w, err)
		return
	}
	postID, err := uuid.Parse(r.URL.Query().Get("post_id"))
	if err != nil {
		s.writeError(w, apperrors.Newf(apperrors.KindValidation, "invalid post_id: %v", err))
		return
	}

	counts, targetWarmth := s.reactions.CountsFor(domain.Target{ID: postID, Kind: domain.TargetPost})
	s.writeJSON(w, http.StatusOK, reactionCountsResponse{
		PostID:       postID.String(),
		Counts:       counts,
		TargetWarmth: targetWarmth,
	})
}

// handleWarmth serves the live family-warmth score of a post.
func (s *Server) handleWarmth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.identify(r); err != nil {
		s.writeError(w, err)
		return
	}
	postID, err := uuid.Parse(r.URL.Query().Get("post_id"))
	if err != nil {
		s.writeError(w, apperrors.Newf(apperrors.KindValidation, "invalid post_id: %v", err))
		return
	}

	score, err := s.hub.WarmthFor(r.Context(), postID)
	if err != nil {
		s.writeError(w, apperrors.New(apperrors.KindNotFound, apperrors.ErrTargetNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.monitoring.Snapshot(s.registry.Count(), s.registry.RoomCount())
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) identify(r *http.Request) (contract.Identity, error) {
	return s.verifier.Verify(auth.TokenFromRequest(r))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	s.writeJSON(w, statusOf(kind), errorResponse{Error: string(kind), Message: err.Error()})
}

func statusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindAuth:
		return http.StatusUnauthorized
	case apperrors.KindAuthorization:
		return http.StatusForbidden
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Run serves the mux until the context is canceled, then drains within
// the shutdown deadline.
func (s *Server) Run(ctx context.Context, addr string, shutdownDeadline time.Duration) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down HTTP server...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
