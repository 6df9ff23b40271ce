package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"bumpfeed/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	options := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestActivityRepository_Append_And_Window_Scan(t *testing.T) {
	req := require.New(t)
	repository := NewActivityRepository(openTestDB(t), slog.Default(), 0)
	room := domain.PregnancyRoom("42")
	at := time.Now().UTC()

	events := []domain.ActivityEvent{
		{ID: uuid.New(), Room: room, ActorID: "a", Kind: domain.ActivityReaction, Priority: 3, CreatedAt: at.Add(-2 * time.Hour)},
		{ID: uuid.New(), Room: room, ActorID: "b", Kind: domain.ActivityComment, Priority: 3, CreatedAt: at.Add(-time.Hour)},
		{ID: uuid.New(), Room: room, ActorID: "c", Kind: domain.ActivityPresence, Priority: 1, CreatedAt: at},
	}
	for _, e := range events {
		req.NoError(repository.Append(e))
	}

	// Noise in another room must not leak into the scan.
	req.NoError(repository.Append(domain.ActivityEvent{
		ID: uuid.New(), Room: domain.PregnancyRoom("99"), ActorID: "x",
		Kind: domain.ActivityReaction, CreatedAt: at,
	}))

	// When fetching everything since 90 minutes ago
	fetched, err := repository.EventsSince(room, at.Add(-90*time.Minute))
	req.NoError(err)

	// Then only the two newest events come back, oldest first
	req.Len(fetched, 2)
	req.Equal("b", fetched[0].ActorID)
	req.Equal("c", fetched[1].ActorID)
}

func TestActivityRepository_Empty_Room(t *testing.T) {
	req := require.New(t)
	repository := NewActivityRepository(openTestDB(t), slog.Default(), 0)

	fetched, err := repository.EventsSince(domain.PregnancyRoom("none"), time.Now().Add(-time.Hour))

	req.NoError(err)
	req.Empty(fetched)
}

func TestWarmthHistoryRepository_Recent_Returns_Newest_First_Capped(t *testing.T) {
	req := require.New(t)
	repository := NewWarmthHistoryRepository(openTestDB(t), slog.Default())
	scope := "post:p1"
	at := time.Now().UTC()

	for i, overall := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		req.NoError(repository.Record(scope, overall, at.Add(time.Duration(i)*time.Minute)))
	}

	recent, err := repository.Recent(scope, 3)
	req.NoError(err)

	// The three newest calculations, oldest first.
	req.Equal([]float64{0.3, 0.4, 0.5}, recent)
}

func TestWarmthHistoryRepository_Empty_Scope(t *testing.T) {
	req := require.New(t)
	repository := NewWarmthHistoryRepository(openTestDB(t), slog.Default())

	recent, err := repository.Recent("post:unknown", 3)

	req.NoError(err)
	req.Empty(recent)
}
