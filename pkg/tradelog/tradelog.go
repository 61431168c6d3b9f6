package tradelog

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const keyPrefix = "log:"

// Entry is one recorded gateway action: an order input, a placed order,
// a position close, or a forwarded client diagnostic.
type Entry struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Status    string          `json:"status"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is a Badger-backed append-only action log. Keys are
// zero-padded sequence numbers under a common prefix so reverse
// iteration yields newest-first.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open opens (or creates) the log at path. An empty path opens an
// in-memory store, used by tests.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open trade log")
	}
	seq, err := db.GetSequence([]byte("tradelog-seq"), 64)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "open trade log sequence")
	}
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) Close() error {
	if s.seq != nil {
		s.seq.Release()
	}
	return s.db.Close()
}

// Append records one action. request and response are marshaled as-is;
// either may be nil.
func (s *Store) Append(action, status string, request, response any, errText string) error {
	entry := Entry{
		ID:        uuid.NewString(),
		Action:    action,
		Status:    status,
		Error:     errText,
		CreatedAt: time.Now().UTC(),
	}
	var err error
	if request != nil {
		if entry.Request, err = json.Marshal(request); err != nil {
			return errors.Wrap(err, "marshal request")
		}
	}
	if response != nil {
		if entry.Response, err = json.Marshal(response); err != nil {
			return errors.Wrap(err, "marshal response")
		}
	}

	n, err := s.seq.Next()
	if err != nil {
		return errors.Wrap(err, "next sequence")
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal entry")
	}

	key := []byte(fmt.Sprintf("%s%020d", keyPrefix, n))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	entries := make([]Entry, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the highest key under the prefix.
		seek := append([]byte(keyPrefix), 0xff)
		for it.Seek(seek); it.Valid() && len(entries) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return entries, err
}
