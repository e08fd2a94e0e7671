package report

import (
	"slices"
	"sync"

	"github.com/deixis/redgreen/internal/runner"
)

// LRUStore is an in-memory LRU cache that delegates to a backing Store on miss.
type LRUStore struct {
	mu   sync.Mutex
	cap  int
	back Store

	// Doubly-linked list for LRU ordering (most recent at head).
	head, tail *lruEntry
	items      map[string]*lruEntry
}

type lruEntry struct {
	key    string
	result *runner.Result
	prev   *lruEntry
	next   *lruEntry
}

// NewLRUStore creates an LRU cache with the given capacity that delegates
// to back on cache misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		items: make(map[string]*lruEntry, cap),
	}
}

// Save writes the result to the LRU cache and delegates to the backing store.
func (s *LRUStore) Save(result *runner.Result) error {
	s.mu.Lock()
	// Update or insert into the LRU cache.
	if e, ok := s.items[result.RunID]; ok {
		e.result = result
		s.moveToFront(e)
	} else {
		e := &lruEntry{key: result.RunID, result: result}
		s.items[result.RunID] = e
		s.pushFront(e)
		if len(s.items) > s.cap {
			s.evict()
		}
	}
	s.mu.Unlock()

	// Delegate to backing store.
	return s.back.Save(result)
}

// Load checks the LRU cache first. On miss, loads from the backing store
// and promotes the result into the cache.
func (s *LRUStore) Load(runID string) (*runner.Result, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.moveToFront(e)
		r := e.result
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	// Cache miss; load from backing store.
	result, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}

	// Promote into cache.
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		// Concurrent load already inserted it.
		e.result = result
		s.moveToFront(e)
	} else {
		e := &lruEntry{key: runID, result: result}
		s.items[runID] = e
		s.pushFront(e)
		if len(s.items) > s.cap {
			s.evict()
		}
	}
	s.mu.Unlock()

	return result, nil
}

// Recent returns up to n cached results, newest run first. n <= 0 returns
// every cached result.
func (s *LRUStore) Recent(n int) []*runner.Result {
	s.mu.Lock()
	out := make([]*runner.Result, 0, len(s.items))
	for e := s.head; e != nil; e = e.next {
		out = append(out, e.result)
	}
	s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b *runner.Result) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Latest returns the most recently started cached result, or nil.
func (s *LRUStore) Latest() *runner.Result {
	if r := s.Recent(1); len(r) == 1 {
		return r[0]
	}
	return nil
}

func (s *LRUStore) pushFront(e *lruEntry) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *LRUStore) moveToFront(e *lruEntry) {
	if s.head == e {
		return
	}
	s.remove(e)
	s.pushFront(e)
}

func (s *LRUStore) remove(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (s *LRUStore) evict() {
	if s.tail == nil {
		return
	}
	e := s.tail
	s.remove(e)
	delete(s.items, e.key)
}
