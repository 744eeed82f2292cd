// Package prefstore is the durable preference layer: an origin-scoped
// key/value store with change notifications for the other contexts of the
// same origin, and a Bridge bound to the theme preference key.
package prefstore

import (
	"errors"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/cfilipov/blogd/internal/db"
)

var ErrEmptyOrigin = errors.New("prefstore: empty origin")

// Event describes a change to one key. A nil value means the key is absent.
type Event struct {
	Origin   string
	Key      string
	OldValue *string
	NewValue *string
	Source   string // context that performed the write
}

type subscriber struct {
	source string
	fn     func(Event)
}

// Store keeps one nested bbolt bucket per origin. Writes are serialized so
// every subscriber observes the changes of a key in the order they happened.
type Store struct {
	db *bolt.DB

	mu     sync.Mutex // serializes writes and fan-out; guards subs
	nextID uint64
	subs   map[string]map[uint64]subscriber
}

func NewStore(database *bolt.DB) *Store {
	return &Store{
		db:   database,
		subs: make(map[string]map[uint64]subscriber),
	}
}

// Get returns the value for key in origin and whether it exists.
func (s *Store) Get(origin, key string) (string, bool, error) {
	if origin == "" {
		return "", false, ErrEmptyOrigin
	}
	var (
		val string
		ok  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketStorage).Bucket([]byte(origin))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			val, ok = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return val, ok, nil
}

// Items returns every key stored for origin.
func (s *Store) Items(origin string) (map[string]string, error) {
	if origin == "" {
		return nil, ErrEmptyOrigin
	}
	items := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketStorage).Bucket([]byte(origin))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			items[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Set stores value under key and notifies the other contexts of origin.
// source identifies the writing context; it is never notified of its own write.
func (s *Store) Set(origin, source, key, value string) error {
	return s.write(origin, source, key, &value)
}

// Remove deletes key. Observers see a nil NewValue.
func (s *Store) Remove(origin, source, key string) error {
	return s.write(origin, source, key, nil)
}

func (s *Store) write(origin, source, key string, value *string) error {
	if origin == "" {
		return ErrEmptyOrigin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var old *string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(db.BucketStorage).CreateBucketIfNotExists([]byte(origin))
		if err != nil {
			return err
		}
		if v := b.Get([]byte(key)); v != nil {
			prev := string(v)
			old = &prev
		}
		if value == nil {
			return b.Delete([]byte(key))
		}
		return b.Put([]byte(key), []byte(*value))
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	if sameValue(old, value) {
		return nil
	}

	ev := Event{Origin: origin, Key: key, OldValue: old, NewValue: value, Source: source}
	for _, sub := range s.subs[origin] {
		if sub.source == source {
			continue
		}
		sub.fn(ev)
	}
	return nil
}

// Subscribe registers fn for changes made to origin by any context other than
// source. fn runs with the store locked: it must hand the event off (for
// example to an event loop) and must not call back into the Store.
// The returned cancel func is idempotent.
func (s *Store) Subscribe(origin, source string, fn func(Event)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[origin] == nil {
		s.subs[origin] = make(map[uint64]subscriber)
	}
	s.subs[origin][id] = subscriber{source: source, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[origin], id)
			if len(s.subs[origin]) == 0 {
				delete(s.subs, origin)
			}
			s.mu.Unlock()
		})
	}
}

// SubscriberCount returns how many contexts are listening on origin.
func (s *Store) SubscriberCount(origin string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[origin])
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
