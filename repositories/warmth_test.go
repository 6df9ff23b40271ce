package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWarmthHistoryRepository_RecentKeepsNewest(t *testing.T) {
	req := require.New(t)
	repository := NewWarmthHistoryRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()

	for i, overall := range []float64{0.2, 0.4, 0.5, 0.7, 0.6} {
		req.NoError(repository.Record("post:p1", overall, at.Add(time.Duration(i)*time.Minute)))
	}
	// Another scope must not leak in.
	req.NoError(repository.Record("post:p2", 0.9, at))

	recent, err := repository.Recent("post:p1", 3)

	req.NoError(err)
	// Newest three, oldest first
	req.Equal([]float64{0.5, 0.7, 0.6}, recent)
}

func TestWarmthHistoryRepository_EmptyScope(t *testing.T) {
	req := require.New(t)
	repository := NewWarmthHistoryRepository(openTestDB(t), slog.Default())

	recent, err := repository.Recent("post:unknown", 3)

	req.NoError(err)
	req.Empty(recent)
}
