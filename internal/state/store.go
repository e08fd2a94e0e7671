// Package state holds the session's application snapshot and notifies a
// subscriber whenever an update actually changes it.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber receives a private copy of every changed snapshot.
// It may call Current but must not call Update or Close on the store that
// invoked it.
type Subscriber func(Snapshot)

// Counter is incremented once per delivered notification.
// prometheus.Counter satisfies it.
type Counter interface {
	Inc()
}

// Store owns one Snapshot. Reads and notifications hand out deep copies,
// so no caller ever holds a reference into the stored state.
type Store struct {
	mu      sync.Mutex
	snap    Snapshot
	encoded []byte
	sub     Subscriber
	subID   uint64
	closed  bool

	// deliverMu serializes updates end to end so that notifications reach
	// the subscriber in merge order. It is always taken before mu and never
	// while mu is held, so Current does not wait on a delivery.
	deliverMu sync.Mutex

	log      zerolog.Logger
	notified Counter
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for notification tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithNotifyCounter counts delivered notifications.
func WithNotifyCounter(c Counter) Option {
	return func(s *Store) { s.notified = c }
}

// NewStore returns a store holding a copy of initial.
func NewStore(initial Snapshot, opts ...Option) *Store {
	s := &Store{snap: initial.Clone(), log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.encoded = mustEncode(s.snap)
	return s
}

// Current returns a deep copy of the stored snapshot.
func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Subscribe installs fn as the store's only subscriber, replacing any
// previous one. The returned function removes fn if it is still installed.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	s.subID++
	id := s.subID
	s.sub = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.subID == id {
			s.sub = nil
		}
	}
}

// Update merges p into the snapshot. If the merged snapshot serialises
// differently from the previous one, the subscriber is notified with a
// copy of it and Update reports true. Identical updates are silent.
func (s *Store) Update(p Patch) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	next := s.snap.Clone()
	p.apply(&next)
	encoded := mustEncode(next)
	if bytes.Equal(encoded, s.encoded) {
		s.mu.Unlock()
		return false
	}
	s.snap = next
	s.encoded = encoded

	sub := s.sub
	if sub == nil || s.closed {
		s.mu.Unlock()
		return true
	}
	out := next.Clone()
	s.mu.Unlock()

	if s.notified != nil {
		s.notified.Inc()
	}
	s.log.Trace().Str("runner_status", string(out.TestRunner.Status)).Msg("state changed")
	sub(out)
	return true
}

// Close releases the subscriber. No notification is delivered after Close
// returns; later updates still merge.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.sub = nil
	s.mu.Unlock()

	// Wait out a delivery that started before Close.
	s.deliverMu.Lock()
	s.deliverMu.Unlock() //nolint:staticcheck // empty critical section is the barrier
}

func mustEncode(s Snapshot) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("state: encoding snapshot: %v", err))
	}
	return b
}
