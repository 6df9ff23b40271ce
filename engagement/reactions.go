package engagement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"bumpfeed/contract"
	"bumpfeed/domain"
	"bumpfeed/domain/event"
	apperrors "bumpfeed/errors"
)

// CommentReactionTarget is the slice of the comment engine the
// processor needs: existence checks and cached summary refreshes.
type CommentReactionTarget interface {
	Get(commentID uuid.UUID) (domain.Comment, bool)
	UpdateReactionSummary(commentID uuid.UUID, counts map[domain.ReactionType]int, warmth float64) bool
}

// ApplyReaction is the input of ReactionProcessor.Apply.
type ApplyReaction struct {
	UserID    string
	Target    domain.Target
	Type      domain.ReactionType
	Intensity int
	Message   string
	Milestone bool
	ClientID  string
	Origin    domain.ConnectionID
}

// ApplyResult is the caller-visible outcome of the synchronous part of
// the pipeline; broadcasting happens after the latency is measured.
type ApplyResult struct {
	Reaction     domain.Reaction
	Counts       map[domain.ReactionType]int
	TargetWarmth float64
	WarmthDelta  float64
	Replayed     bool // idempotent replay via client id
	LatencyMs    float64
}

// reactionTarget owns all reactions on one post or comment. Its mutex
// serializes concurrent writers on the same target so upserts and
// warmth aggregates never lose updates.
type reactionTarget struct {
	mu          sync.Mutex
	pregnancyID string
	byUser      map[string]*domain.Reaction
	warmth      float64
}

func (t *reactionTarget) counts() map[domain.ReactionType]int {
	counts := make(map[domain.ReactionType]int, len(t.byUser))
	for _, reaction := range t.byUser {
		counts[reaction.Type]++
	}
	return counts
}

type dedupEntry struct {
	reaction  *domain.Reaction
	createdAt time.Time
}

// ReactionProcessor is the optimistic reaction pipeline: client-id
// dedup, one-active-reaction-per-user-per-target upsert, warmth
// contribution, and asynchronous fan-out handoff.
type ReactionProcessor struct {
	log         *slog.Logger
	tuning      domain.ReactionTuning
	dedupWindow time.Duration
	directory   contract.FamilyDirectory
	comments    CommentReactionTarget
	events      chan<- event.Outbound
	clock       func() time.Time

	mu       sync.RWMutex
	targets  map[domain.Target]*reactionTarget
	byClient map[string]dedupEntry // userID|clientID -> last accepted reaction
}

func NewReactionProcessor(log *slog.Logger, tuning domain.ReactionTuning, dedupWindow time.Duration,
	directory contract.FamilyDirectory, comments CommentReactionTarget, events chan<- event.Outbound) *ReactionProcessor {
	return &ReactionProcessor{
		log:         log,
		tuning:      tuning,
		dedupWindow: dedupWindow,
		directory:   directory,
		comments:    comments,
		events:      events,
		clock:       time.Now,
		targets:     make(map[domain.Target]*reactionTarget),
		byClient:    make(map[string]dedupEntry),
	}
}

func dedupKey(userID, clientID string) string { return userID + "|" + clientID }

// Apply runs the optimistic pipeline. The reported latency covers only
// the synchronous steps; broadcasting and summary refresh on the
// comment side are fire-and-forget relative to the caller.
func (p *ReactionProcessor) Apply(ctx context.Context, cmd ApplyReaction) (ApplyResult, error) {
	started := p.clock()

	if !p.tuning.KnownReactionType(cmd.Type) {
		return ApplyResult{}, apperrors.Newf(apperrors.KindValidation, "unknown reaction type %q", cmd.Type)
	}
	if cmd.Intensity < 1 || cmd.Intensity > 3 {
		return ApplyResult{}, apperrors.Newf(apperrors.KindValidation, "intensity %d out of range", cmd.Intensity)
	}

	// Step 1: idempotent replay inside the dedup window.
	if cmd.ClientID != "" {
		p.mu.RLock()
		entry, ok := p.byClient[dedupKey(cmd.UserID, cmd.ClientID)]
		var target *reactionTarget
		if ok {
			target = p.targets[entry.reaction.Target]
		}
		p.mu.RUnlock()
		if ok && target != nil && started.Sub(entry.createdAt) <= p.dedupWindow {
			target.mu.Lock()
			result := ApplyResult{
				Reaction:     *entry.reaction,
				Counts:       target.counts(),
				TargetWarmth: target.warmth,
				Replayed:     true,
			}
			target.mu.Unlock()
			result.LatencyMs = p.latencyMs(started)
			return result, nil
		}
	}

	target, err := p.targetFor(ctx, cmd.Target)
	if err != nil {
		return ApplyResult{}, err
	}

	// Step 2: warmth contribution.
	warmth := p.tuning.ReactionWarmth(cmd.Type, cmd.Intensity, cmd.Milestone)

	// Steps 3-4: upsert and aggregate refresh, atomic per target.
	target.mu.Lock()
	now := p.clock()
	reaction, existed := target.byUser[cmd.UserID]
	var delta float64
	if existed {
		delta = warmth - reaction.Warmth
		reaction.Type = cmd.Type
		reaction.Intensity = cmd.Intensity
		reaction.Message = cmd.Message
		reaction.Milestone = cmd.Milestone
		reaction.Warmth = warmth
		reaction.ClientID = cmd.ClientID
		reaction.UpdatedAt = now
	} else {
		delta = warmth
		reaction = &domain.Reaction{
			ID:        uuid.New(),
			UserID:    cmd.UserID,
			Target:    cmd.Target,
			Type:      cmd.Type,
			Intensity: cmd.Intensity,
			Message:   cmd.Message,
			Milestone: cmd.Milestone,
			Warmth:    warmth,
			ClientID:  cmd.ClientID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		target.byUser[cmd.UserID] = reaction
	}
	target.warmth += delta
	stored := *reaction
	counts := target.counts()
	targetWarmth := target.warmth
	target.mu.Unlock()

	if cmd.ClientID != "" {
		p.mu.Lock()
		p.byClient[dedupKey(cmd.UserID, cmd.ClientID)] = dedupEntry{reaction: reaction, createdAt: now}
		p.mu.Unlock()
	}

	result := ApplyResult{
		Reaction:     stored,
		Counts:       counts,
		TargetWarmth: targetWarmth,
		WarmthDelta:  delta,
		LatencyMs:    p.latencyMs(started),
	}

	// Step 5: everything past this point is off the caller's clock.
	room := domain.PregnancyRoom(target.pregnancyID)
	if cmd.Target.Kind == domain.TargetComment {
		p.comments.UpdateReactionSummary(cmd.Target.ID, counts, targetWarmth)
	}
	p.emit(event.ReactionAdded{
		Room:         room,
		Reaction:     stored,
		Counts:       counts,
		TargetWarmth: targetWarmth,
	}, cmd.Origin)
	if stored.Milestone {
		p.emit(event.MilestoneCelebration{Room: room, Reaction: stored}, cmd.Origin)
	}

	return result, nil
}

// Remove deletes the caller's active reaction on the target, reverses
// its warmth contribution and broadcasts the removal.
func (p *ReactionProcessor) Remove(ctx context.Context, userID string, targetRef domain.Target) error {
	target, err := p.targetFor(ctx, targetRef)
	if err != nil {
		return err
	}

	target.mu.Lock()
	reaction, ok := target.byUser[userID]
	if !ok {
		target.mu.Unlock()
		return apperrors.New(apperrors.KindNotFound, apperrors.ErrReactionNotFound)
	}
	delete(target.byUser, userID)
	target.warmth -= reaction.Warmth
	counts := target.counts()
	targetWarmth := target.warmth
	target.mu.Unlock()

	// A removed reaction must not be replayable from the dedup window
	if clientID := reaction.ClientID; clientID != "" {
		key := dedupKey(userID, clientID)
		p.mu.Lock()
		if entry, ok := p.byClient[key]; ok && entry.reaction == reaction {
			delete(p.byClient, key)
		}
		p.mu.Unlock()
	}

	room := domain.PregnancyRoom(target.pregnancyID)
	if targetRef.Kind == domain.TargetComment {
		p.comments.UpdateReactionSummary(targetRef.ID, counts, targetWarmth)
	}
	p.emit(event.ReactionRemoved{
		Room:         room,
		UserID:       userID,
		Target:       targetRef,
		Counts:       counts,
		TargetWarmth: targetWarmth,
	}, "")
	return nil
}

// CountsFor returns the target's current reaction summary.
func (p *ReactionProcessor) CountsFor(targetRef domain.Target) (map[domain.ReactionType]int, float64) {
	p.mu.RLock()
	target, ok := p.targets[targetRef]
	p.mu.RUnlock()
	if !ok {
		return map[domain.ReactionType]int{}, 0
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	return target.counts(), target.warmth
}

// Interactions lists the target's active reactions as scoring records.
func (p *ReactionProcessor) Interactions(targetRef domain.Target) []domain.Interaction {
	p.mu.RLock()
	target, ok := p.targets[targetRef]
	p.mu.RUnlock()
	if !ok {
		return nil
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	return lo.MapToSlice(target.byUser, func(_ string, reaction *domain.Reaction) domain.Interaction {
		return domain.Interaction{
			ActorID:      reaction.UserID,
			Kind:         domain.InteractionReaction,
			Warmth:       reaction.Warmth,
			ReactionType: reaction.Type,
			At:           reaction.UpdatedAt,
		}
	})
}

// PruneDedup drops replay entries older than the dedup window. Called
// by the cleanup worker.
func (p *ReactionProcessor) PruneDedup() int {
	now := p.clock()
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for key, entry := range p.byClient {
		if now.Sub(entry.createdAt) > p.dedupWindow {
			delete(p.byClient, key)
			removed++
		}
	}
	return removed
}

// targetFor resolves the target's state, creating it lazily after an
// existence check: comments against the engine, posts against the
// external directory.
func (p *ReactionProcessor) targetFor(ctx context.Context, targetRef domain.Target) (*reactionTarget, error) {
	p.mu.RLock()
	target, ok := p.targets[targetRef]
	p.mu.RUnlock()
	if ok {
		return target, nil
	}

	var pregnancyID string
	switch targetRef.Kind {
	case domain.TargetComment:
		comment, found := p.comments.Get(targetRef.ID)
		if !found {
			return nil, apperrors.New(apperrors.KindNotFound, apperrors.ErrTargetNotFound)
		}
		id, err := p.directory.PregnancyOfPost(ctx, comment.PostID.String())
		if err != nil {
			return nil, apperrors.New(apperrors.KindNotFound, apperrors.ErrTargetNotFound)
		}
		pregnancyID = id
	default:
		id, err := p.directory.PregnancyOfPost(ctx, targetRef.ID.String())
		if err != nil {
			return nil, apperrors.New(apperrors.KindNotFound, apperrors.ErrTargetNotFound)
		}
		pregnancyID = id
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if target, ok = p.targets[targetRef]; ok {
		return target, nil
	}
	target = &reactionTarget{
		pregnancyID: pregnancyID,
		byUser:      make(map[string]*domain.Reaction),
	}
	p.targets[targetRef] = target
	return target, nil
}

func (p *ReactionProcessor) latencyMs(started time.Time) float64 {
	return float64(p.clock().Sub(started).Microseconds()) / 1000
}

func (p *ReactionProcessor) emit(evt event.DomainEvent, exclude domain.ConnectionID) {
	select {
	case p.events <- event.Outbound{Event: evt, Exclude: exclude}:
	default:
		p.log.Warn("Event channel full, dropping event", "kind", evt.Kind(), "room", evt.RoomID())
	}
}
