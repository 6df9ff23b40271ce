package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// WarmthHistoryRepository retains prior warmth calculations per scope
// so the scorer can classify its trend. Keys follow the same padded
// timestamp scheme as the activity log: "wrm:{scope}:{timestamp_padded}".
type WarmthHistoryRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewWarmthHistoryRepository(db *badger.DB, log *slog.Logger) WarmthHistoryRepository {
	return WarmthHistoryRepository{db: db, log: log}
}

type warmthEntry struct {
	Overall float64   `json:"overall"`
	At      time.Time `json:"at"`
}

func warmthKey(scope string, at time.Time) []byte {
	return []byte(fmt.Sprintf("wrm:%s:%019d", scope, at.UnixNano()))
}

func warmthPrefix(scope string) []byte {
	return []byte(fmt.Sprintf("wrm:%s:", scope))
}

// Record appends one calculation result for the scope.
func (r WarmthHistoryRepository) Record(scope string, overall float64, at time.Time) error {
	bytes, err := json.Marshal(warmthEntry{Overall: overall, At: at})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(warmthKey(scope, at), bytes)
	})
}

// Recent returns up to n most recent calculations for the scope,
// oldest first. A reverse scan from the highest possible timestamp
// collects the newest entries without reading the whole history.
func (r WarmthHistoryRepository) Recent(scope string, n int) ([]float64, error) {
	var reversed []float64
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := warmthPrefix(scope)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(reversed) < n; it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var entry warmthEntry
				if err := json.Unmarshal(value, &entry); err != nil {
					return err
				}
				reversed = append(reversed, entry.Overall)
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

	out := make([]float64, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		out = append(out, reversed[i])
	}
	return out, nil
}
