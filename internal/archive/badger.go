package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var ErrRecordNotFound = errors.New("archived game not found")

const badgerPrefix = "game:"

// Badger is a local embedded archive for single-node deployments.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the archive directory.
func OpenBadger(dir string) (*badger.DB, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("badger archive path is required")
	}
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	return badger.Open(opts)
}

var _ Reader = (*Badger)(nil)

func NewBadger(db *badger.DB) *Badger { return &Badger{db: db} }

func (b *Badger) Name() string { return "badger" }

func (b *Badger) ArchiveGame(_ context.Context, gameID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerPrefix+gameID), data)
	})
}

// Get returns the archived record of a game.
func (b *Badger) Get(_ context.Context, gameID string) (Record, error) {
	var rec Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + gameID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// List returns up to limit archived records involving playerID, or all
// players when playerID is empty.
func (b *Badger) List(_ context.Context, playerID string, limit int) ([]Record, error) {
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if playerID != "" && rec.WhiteID != playerID && rec.BlackID != playerID {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}
