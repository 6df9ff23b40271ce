//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"bumpfeed/domain"
	"bumpfeed/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself; the supervisor owns restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision without forcing a naming method on
// every worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one consumer of outbound events, typically the write
// side of a live connection.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry owns live sessions and room membership.
type IRegistry interface {
	Admit(conn *domain.Connection, sink EventSink)
	Remove(id domain.ConnectionID) (*domain.Connection, []domain.RoomID)
	Heartbeat(id domain.ConnectionID) bool
	ListStale(timeout time.Duration) []domain.ConnectionID
	Subscribe(id domain.ConnectionID, roomID domain.RoomID) bool
	Unsubscribe(id domain.ConnectionID, roomID domain.RoomID)
	Members(roomID domain.RoomID) []domain.ConnectionID
	SinksForRoom(roomID domain.RoomID, exclude domain.ConnectionID) map[domain.ConnectionID]EventSink
	Sink(id domain.ConnectionID) (EventSink, bool)
	Connection(id domain.ConnectionID) (*domain.Connection, bool)
	MarkInactive(id domain.ConnectionID)
	OnlineUsers(roomID domain.RoomID) []string
	ConnectionIDs() []domain.ConnectionID
	Count() int
	RoomCount() int
}

// IDispatcher fans outbound events to room members.
type IDispatcher interface {
	Broadcast(ctx context.Context, roomID domain.RoomID, e event.DomainEvent, exclude domain.ConnectionID) int
	SendToOne(ctx context.Context, id domain.ConnectionID, e event.DomainEvent) error
}

// TokenVerifier validates a handshake token and extracts the stable
// identity; issuance and rotation live outside the engine.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

type Identity struct {
	UserID      string
	DisplayName string
}

// RoomAuthorizer answers room access questions from family-membership
// records. Positive answers are never cached across sessions.
type RoomAuthorizer interface {
	CanAccessRoom(ctx context.Context, userID string, roomID domain.RoomID) bool
}

// FamilyDirectory resolves the family circle of a pregnancy, backing
// mention resolution and warmth scoring.
type FamilyDirectory interface {
	FamilyOf(ctx context.Context, pregnancyID string) ([]domain.FamilyMember, error)
	PregnancyOfPost(ctx context.Context, postID string) (string, error)
}

// Classifier decides whether a piece of text reads as emotional
// support; implementations are pluggable strategies.
type Classifier interface {
	Classify(text string) (Category, float64)
}

type Category string

const (
	CategorySupport     Category = "support"
	CategoryReassurance Category = "reassurance"
	CategoryCelebration Category = "celebration"
	CategoryNeutral     Category = "neutral"
)

// Supportive reports whether the category counts toward the
// emotional-support sub-score.
func (c Category) Supportive() bool {
	return c == CategorySupport || c == CategoryReassurance || c == CategoryCelebration
}

// ActivityStore is the append-only engagement log.
type ActivityStore interface {
	Append(e domain.ActivityEvent) error
	EventsSince(roomID domain.RoomID, since time.Time) ([]domain.ActivityEvent, error)
}

// WarmthHistory retains prior score calculations per scope for trend
// classification.
type WarmthHistory interface {
	Record(scope string, overall float64, at time.Time) error
	Recent(scope string, n int) ([]float64, error)
}
