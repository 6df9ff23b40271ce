//go:generate go run go.uber.org/mock/mockgen -source=activity.go -destination=../mocks/mock_activity_repository.go -package=mocks
// Package repositories persists the engagement engine's durable state
// in BadgerDB: the append-only activity log and the warmth score
// history. Everything else (posts, pregnancies, family membership)
// belongs to external collaborators.
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"bumpfeed/domain"
)

// ActivityRepository is the append-only engagement log.
// The key is formatted as "act:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if
//     two events arrive at the same nanosecond.
type ActivityRepository struct {
	db        *badger.DB
	log       *slog.Logger
	retention time.Duration // events expire via badger TTL, zero keeps them forever
}

func NewActivityRepository(db *badger.DB, log *slog.Logger, retention time.Duration) ActivityRepository {
	return ActivityRepository{db: db, log: log, retention: retention}
}

func activityKey(room domain.RoomID, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("act:%s:%019d:%s", room, at.UnixNano(), id))
}

func activityPrefix(room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("act:%s:", room))
}

// Append persists one activity event.
func (r ActivityRepository) Append(e domain.ActivityEvent) error {
	bytes, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(activityKey(e.Room, e.CreatedAt, e.ID.String()), bytes)
		if r.retention > 0 {
			entry = entry.WithTTL(r.retention)
		}
		return txn.SetEntry(entry)
	})
}

// EventsSince retrieves the room's events created at or after the given
// instant, oldest first. Thanks to the padded timestamp in the key the
// scan can seek straight to the window start.
func (r ActivityRepository) EventsSince(room domain.RoomID, since time.Time) ([]domain.ActivityEvent, error) {
	var events []domain.ActivityEvent
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := activityPrefix(room)
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), fmt.Sprintf("%019d", since.UnixNano())...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var e domain.ActivityEvent
				if err := json.Unmarshal(value, &e); err != nil {
					return err
				}
				events = append(events, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
