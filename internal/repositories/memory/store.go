// Package memory provides an in-process implementation of the ledger store used
// for tests, demos and single-instance deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
)

var _ repositories.Store = (*Store)(nil)

// Store keeps every ledger in maps. Writers serialize on per-key locks
// ("item:1", "book:7", "slot:L1|2024-01-10", ...) taken entity key first,
// resource key second; mu only guards the maps themselves.
type Store struct {
	mu    sync.RWMutex
	locks keyedMutex
	nowFn func() time.Time

	seq       int64
	items     map[int64]models.InventoryItem
	movements map[int64][]models.InventoryMovement
	requests  map[int64]models.ResourceRequest
	books     map[int64]models.Book
	loans     map[int64]models.BorrowRecord
	labs      map[string]models.Lab
	bookings  map[int64]models.LabBooking
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		locks:     keyedMutex{locks: make(map[string]*keyLock)},
		nowFn:     func() time.Time { return time.Now().UTC() },
		items:     make(map[int64]models.InventoryItem),
		movements: make(map[int64][]models.InventoryMovement),
		requests:  make(map[int64]models.ResourceRequest),
		books:     make(map[int64]models.Book),
		loans:     make(map[int64]models.BorrowRecord),
		labs:      make(map[string]models.Lab),
		bookings:  make(map[int64]models.LabBooking),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// nextID must be called with mu held for writing.
func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) read(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

func (s *Store) write(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// keyedMutex hands out one mutex per key and drops it when nobody holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// lock acquires keys in the given order and returns the matching unlock.
func (k *keyedMutex) lock(keys ...string) (unlock func()) {
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if contains(held, key) {
			continue
		}
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.Lock()
		held = append(held, key)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.mu.Lock()
			l := k.locks[held[i]]
			l.refs--
			if l.refs == 0 {
				delete(k.locks, held[i])
			}
			k.mu.Unlock()
			l.Unlock()
		}
	}
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// page slices an already sorted list; pageSize <= 0 returns everything.
func page[T any](all []T, pageNum, pageSize int) []T {
	if pageSize <= 0 {
		return all
	}
	if pageNum <= 0 {
		pageNum = 1
	}
	start := (pageNum - 1) * pageSize
	if start >= len(all) {
		return []T{}
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func sortByIDDesc[T any](list []T, id func(T) int64) {
	sort.Slice(list, func(i, j int) bool { return id(list[i]) > id(list[j]) })
}
