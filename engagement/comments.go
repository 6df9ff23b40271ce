// Package engagement holds the two hot write paths of the feed: the
// optimistic reaction processor and the threaded comment engine.
// Comments live in a flat store keyed by id; parent and root are
// indices, never live references.
package engagement

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"bumpfeed/contract"
	"bumpfeed/domain"
	"bumpfeed/domain/event"
	apperrors "bumpfeed/errors"
)

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// postThread serializes all structural writes under one post. Thread
// path ordinals only ever grow, so a deleted sibling can never cause a
// duplicate path.
type postThread struct {
	mu           sync.Mutex
	pregnancyID  string
	rootOrdinal  int
	nextOrdinal  map[uuid.UUID]int    // parent id -> next child ordinal
	commentCount int                  // live comments on the post
	typing       map[string]time.Time // user id -> last typing signal
}

// CreateComment is the input of CommentEngine.Create.
type CreateComment struct {
	PostID   uuid.UUID
	AuthorID string
	Content  string
	ParentID *uuid.UUID
	Mentions []string            // explicit mention user ids, optional
	Origin   domain.ConnectionID // connection to exclude from the broadcast
}

// CommentMetadata is returned alongside a created comment.
type CommentMetadata struct {
	PostCommentCount int
	PregnancyID      string
}

// CommentEngine allocates thread positions, resolves mentions and
// computes each comment's warmth contribution.
type CommentEngine struct {
	log       *slog.Logger
	tuning    domain.CommentTuning
	directory contract.FamilyDirectory
	events    chan<- event.Outbound
	clock     func() time.Time

	mu       sync.RWMutex
	comments map[uuid.UUID]*domain.Comment
	threads  map[uuid.UUID]*postThread
}

func NewCommentEngine(log *slog.Logger, tuning domain.CommentTuning,
	directory contract.FamilyDirectory, events chan<- event.Outbound) *CommentEngine {
	return &CommentEngine{
		log:       log,
		tuning:    tuning,
		directory: directory,
		events:    events,
		clock:     time.Now,
		comments:  make(map[uuid.UUID]*domain.Comment),
		threads:   make(map[uuid.UUID]*postThread),
	}
}

// Create validates thread position, resolves mentions against the
// family circle, computes the warmth contribution and emits the
// comment_added event to the post's room.
func (e *CommentEngine) Create(ctx context.Context, cmd CreateComment) (domain.Comment, CommentMetadata, error) {
	if len(cmd.Content) > e.tuning.MaxContentLength {
		return domain.Comment{}, CommentMetadata{}, apperrors.New(apperrors.KindValidation, apperrors.ErrContentTooLong)
	}

	thread, err := e.threadFor(ctx, cmd.PostID)
	if err != nil {
		return domain.Comment{}, CommentMetadata{}, err
	}

	family, err := e.directory.FamilyOf(ctx, thread.pregnancyID)
	if err != nil {
		return domain.Comment{}, CommentMetadata{}, err
	}
	mentions := e.resolveMentions(cmd.Content, cmd.Mentions, family)

	author, authorKnown := lo.Find(family, func(m domain.FamilyMember) bool {
		return m.UserID == cmd.AuthorID
	})
	nonOwnerFamily := authorKnown && !author.Owner

	now := e.clock()
	comment := &domain.Comment{
		ID:             uuid.New(),
		PostID:         cmd.PostID,
		AuthorID:       cmd.AuthorID,
		Content:        cmd.Content,
		Mentions:       mentions,
		ReactionCounts: make(map[domain.ReactionType]int),
		Warmth:         e.tuning.CommentWarmth(len(cmd.Content), len(mentions), nonOwnerFamily),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Thread position allocation is atomic per post.
	thread.mu.Lock()
	if cmd.ParentID != nil {
		parent, ok := e.lookup(*cmd.ParentID)
		if !ok || parent.PostID != cmd.PostID {
			thread.mu.Unlock()
			return domain.Comment{}, CommentMetadata{}, apperrors.New(apperrors.KindNotFound, apperrors.ErrCommentNotFound)
		}
		if parent.Depth >= domain.MaxThreadDepth {
			thread.mu.Unlock()
			return domain.Comment{}, CommentMetadata{}, apperrors.New(apperrors.KindValidation, apperrors.ErrMaxDepthReached)
		}

		ordinal := thread.nextOrdinal[parent.ID] + 1
		thread.nextOrdinal[parent.ID] = ordinal

		comment.ParentID = &parent.ID
		comment.Depth = parent.Depth + 1
		comment.ThreadPath = domain.ChildPath(parent.ThreadPath, ordinal)
		if parent.RootID != nil {
			comment.RootID = parent.RootID
		} else {
			comment.RootID = &parent.ID
		}
	} else {
		thread.rootOrdinal++
		comment.ThreadPath = domain.RootPath(thread.rootOrdinal)
	}

	e.mu.Lock()
	e.comments[comment.ID] = comment
	if comment.ParentID != nil {
		e.comments[*comment.ParentID].ReplyCount++
	}
	if comment.RootID != nil {
		e.comments[*comment.RootID].DescendantCount++
	}
	// Snapshot before unlocking; a concurrent Update may touch the
	// stored comment the moment the lock drops
	created := *comment
	e.mu.Unlock()

	thread.commentCount++
	metadata := CommentMetadata{PostCommentCount: thread.commentCount, PregnancyID: thread.pregnancyID}
	thread.mu.Unlock()

	e.emit(event.CommentAdded{
		Room:    domain.PregnancyRoom(thread.pregnancyID),
		Comment: created,
	}, cmd.Origin)
	return created, metadata, nil
}

// Update appends an edit-history entry. Only the comment author or the
// pregnancy owner (moderation) may edit; thread position never moves.
func (e *CommentEngine) Update(ctx context.Context, commentID uuid.UUID, userID, newContent string) (domain.Comment, error) {
	if len(newContent) > e.tuning.MaxContentLength {
		return domain.Comment{}, apperrors.New(apperrors.KindValidation, apperrors.ErrContentTooLong)
	}

	e.mu.Lock()
	comment, ok := e.comments[commentID]
	if !ok {
		e.mu.Unlock()
		return domain.Comment{}, apperrors.New(apperrors.KindNotFound, apperrors.ErrCommentNotFound)
	}
	postID := comment.PostID
	e.mu.Unlock()

	allowed, pregnancyID, err := e.canModerate(ctx, postID, comment.AuthorID, userID)
	if err != nil {
		return domain.Comment{}, err
	}
	if !allowed {
		return domain.Comment{}, apperrors.New(apperrors.KindAuthorization, apperrors.ErrNotCommentAuthor)
	}

	e.mu.Lock()
	comment.Edits = append(comment.Edits, domain.CommentEdit{
		EditorID: userID,
		Previous: comment.Content,
		EditedAt: e.clock(),
	})
	comment.Content = newContent
	comment.UpdatedAt = e.clock()
	updated := *comment
	e.mu.Unlock()

	e.emit(event.CommentUpdated{Room: domain.PregnancyRoom(pregnancyID), Comment: updated}, "")
	return updated, nil
}

// Delete removes a leaf comment entirely; a comment with replies keeps
// its row and becomes a tombstone so descendants stay reachable.
func (e *CommentEngine) Delete(ctx context.Context, commentID uuid.UUID, userID string) error {
	e.mu.Lock()
	comment, ok := e.comments[commentID]
	if !ok {
		e.mu.Unlock()
		return apperrors.New(apperrors.KindNotFound, apperrors.ErrCommentNotFound)
	}
	postID := comment.PostID
	e.mu.Unlock()

	allowed, pregnancyID, err := e.canModerate(ctx, postID, comment.AuthorID, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.New(apperrors.KindAuthorization, apperrors.ErrNotCommentAuthor)
	}

	thread, err := e.threadFor(ctx, postID)
	if err != nil {
		return err
	}

	thread.mu.Lock()
	e.mu.Lock()
	tombstoned := comment.ReplyCount > 0
	if tombstoned {
		comment.Content = domain.TombstoneContent
		comment.Deleted = true
		comment.Mentions = nil
		comment.UpdatedAt = e.clock()
	} else {
		delete(e.comments, commentID)
		if comment.ParentID != nil {
			if parent, ok := e.comments[*comment.ParentID]; ok {
				parent.ReplyCount--
			}
		}
		if comment.RootID != nil {
			if root, ok := e.comments[*comment.RootID]; ok {
				root.DescendantCount--
			}
		}
		thread.commentCount--
	}
	e.mu.Unlock()
	thread.mu.Unlock()

	e.emit(event.CommentDeleted{
		Room:       domain.PregnancyRoom(pregnancyID),
		CommentID:  commentID.String(),
		PostID:     postID.String(),
		Tombstoned: tombstoned,
	}, "")
	return nil
}

// Get returns a copy of the stored comment.
func (e *CommentEngine) Get(commentID uuid.UUID) (domain.Comment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	comment, ok := e.comments[commentID]
	if !ok {
		return domain.Comment{}, false
	}
	return *comment, true
}

// UpdateReactionSummary refreshes a comment's cached reaction counts
// and aggregate warmth. Returns false when the comment is unknown.
func (e *CommentEngine) UpdateReactionSummary(commentID uuid.UUID, counts map[domain.ReactionType]int, warmth float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	comment, ok := e.comments[commentID]
	if !ok {
		return false
	}
	comment.ReactionCounts = counts
	comment.Warmth = warmth
	return true
}

// SetTyping records an ephemeral typing signal on a post and broadcasts
// it. Indicators are never persisted; the cleanup cycle expires them.
func (e *CommentEngine) SetTyping(ctx context.Context, userID string, postID uuid.UUID, isTyping bool, origin domain.ConnectionID) error {
	thread, err := e.threadFor(ctx, postID)
	if err != nil {
		return err
	}

	thread.mu.Lock()
	if isTyping {
		thread.typing[userID] = e.clock()
	} else {
		delete(thread.typing, userID)
	}
	pregnancyID := thread.pregnancyID
	thread.mu.Unlock()

	e.emit(event.TypingIndicator{
		Room:     domain.PregnancyRoom(pregnancyID),
		UserID:   userID,
		PostID:   postID.String(),
		IsTyping: isTyping,
	}, origin)
	return nil
}

// ExpireTyping clears indicators older than the window and emits the
// implicit stop events. Called by the cleanup worker.
func (e *CommentEngine) ExpireTyping(window time.Duration) []event.TypingIndicator {
	now := e.clock()
	var expired []event.TypingIndicator

	e.mu.RLock()
	threads := lo.MapToSlice(e.threads, func(postID uuid.UUID, thread *postThread) lo.Tuple2[uuid.UUID, *postThread] {
		return lo.T2(postID, thread)
	})
	e.mu.RUnlock()

	for _, pair := range threads {
		postID, thread := pair.A, pair.B
		thread.mu.Lock()
		for userID, at := range thread.typing {
			if now.Sub(at) > window {
				delete(thread.typing, userID)
				expired = append(expired, event.TypingIndicator{
					Room:     domain.PregnancyRoom(thread.pregnancyID),
					UserID:   userID,
					PostID:   postID.String(),
					IsTyping: false,
				})
			}
		}
		thread.mu.Unlock()
	}

	for _, stop := range expired {
		e.emit(stop, "")
	}
	return expired
}

// Interactions lists the post's live comments as scoring records.
// Relationship is filled later by the caller from the family circle.
func (e *CommentEngine) Interactions(postID uuid.UUID) []domain.Interaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []domain.Interaction
	for _, comment := range e.comments {
		if comment.PostID != postID || comment.Deleted {
			continue
		}
		out = append(out, domain.Interaction{
			ActorID: comment.AuthorID,
			Kind:    domain.InteractionComment,
			Warmth:  comment.Warmth,
			Content: comment.Content,
			At:      comment.CreatedAt,
		})
	}
	return out
}

func (e *CommentEngine) lookup(id uuid.UUID) (*domain.Comment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	comment, ok := e.comments[id]
	return comment, ok
}

// threadFor resolves a post's thread state, creating it lazily. An
// unknown post surfaces as a not-found error from the directory.
func (e *CommentEngine) threadFor(ctx context.Context, postID uuid.UUID) (*postThread, error) {
	e.mu.RLock()
	thread, ok := e.threads[postID]
	e.mu.RUnlock()
	if ok {
		return thread, nil
	}

	pregnancyID, err := e.directory.PregnancyOfPost(ctx, postID.String())
	if err != nil {
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.ErrTargetNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if thread, ok = e.threads[postID]; ok {
		return thread, nil
	}
	thread = &postThread{
		pregnancyID: pregnancyID,
		nextOrdinal: make(map[uuid.UUID]int),
		typing:      make(map[string]time.Time),
	}
	e.threads[postID] = thread
	return thread, nil
}

// canModerate reports whether userID may mutate a comment authored by
// authorID: the author always can, the pregnancy owner moderates.
func (e *CommentEngine) canModerate(ctx context.Context, postID uuid.UUID, authorID, userID string) (bool, string, error) {
	thread, err := e.threadFor(ctx, postID)
	if err != nil {
		return false, "", err
	}
	if authorID == userID {
		return true, thread.pregnancyID, nil
	}

	family, err := e.directory.FamilyOf(ctx, thread.pregnancyID)
	if err != nil {
		return false, "", err
	}
	owner, found := lo.Find(family, func(m domain.FamilyMember) bool { return m.Owner })
	return found && owner.UserID == userID, thread.pregnancyID, nil
}

// resolveMentions validates an explicit mention list against the
// family circle, or autodetects @tokens in the content. Unresolvable
// tokens are silently dropped.
func (e *CommentEngine) resolveMentions(content string, explicit []string, family []domain.FamilyMember) []domain.Mention {
	byUserID := lo.KeyBy(family, func(m domain.FamilyMember) string { return m.UserID })
	byName := make(map[string]domain.FamilyMember, len(family))
	for _, member := range family {
		byName[strings.ToLower(strings.ReplaceAll(member.DisplayName, " ", ""))] = member
	}

	var resolved []domain.Mention
	seen := make(map[string]struct{})
	add := func(member domain.FamilyMember) {
		if _, dup := seen[member.UserID]; dup {
			return
		}
		seen[member.UserID] = struct{}{}
		resolved = append(resolved, domain.Mention{UserID: member.UserID, DisplayName: member.DisplayName})
	}

	if len(explicit) > 0 {
		for _, userID := range explicit {
			if member, ok := byUserID[userID]; ok {
				add(member)
			}
		}
		return resolved
	}

	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		token := strings.ToLower(match[1])
		if member, ok := byName[token]; ok {
			add(member)
			continue
		}
		if member, ok := byUserID[match[1]]; ok {
			add(member)
		}
	}
	return resolved
}

// emit hands an event to the pipeline without ever blocking the write
// path. A full channel drops the event and logs it.
func (e *CommentEngine) emit(evt event.DomainEvent, exclude domain.ConnectionID) {
	select {
	case e.events <- event.Outbound{Event: evt, Exclude: exclude}:
	default:
		e.log.Warn("Event channel full, dropping event", "kind", evt.Kind(), "room", evt.RoomID())
	}
}
