package services

import (
	"sync"

	"github.com/openmuni/pulse-backend/internal/core/domain"
)

// DefaultStoreBound is the maximum number of notifications retained per
// session before FIFO eviction kicks in.
const DefaultStoreBound = 200

// NotificationStore is the single source of truth for client-side
// notification state: insertion-ordered, deduplicated by timestamp, bounded.
// Safe for one writer and many readers.
type NotificationStore struct {
	mu     sync.RWMutex
	bound  int
	events []domain.Notification
	seen   map[int64]struct{}
}

// NewNotificationStore creates a store bounded at the given size. A bound of
// zero or less falls back to DefaultStoreBound.
func NewNotificationStore(bound int) *NotificationStore {
	if bound <= 0 {
		bound = DefaultStoreBound
	}
	return &NotificationStore{
		bound: bound,
		seen:  make(map[int64]struct{}),
	}
}

// Insert appends the notification, evicting the oldest entry when full.
// A timestamp already present makes this a no-op; the return value reports
// whether the store changed.
func (s *NotificationStore) Insert(n domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[n.Timestamp]; dup {
		return false
	}

	s.events = append(s.events, n)
	s.seen[n.Timestamp] = struct{}{}

	if len(s.events) > s.bound {
		evicted := s.events[0]
		delete(s.seen, evicted.Timestamp)
		s.events = append(s.events[:0], s.events[1:]...)
	}

	return true
}

// MarkRead flags the matching notification as read. Marking an already-read
// or unknown timestamp is a no-op, never an error. Returns whether anything
// changed.
func (s *NotificationStore) MarkRead(timestamp int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].Timestamp == timestamp {
			if s.events[i].Read {
				return false
			}
			s.events[i].Read = true
			return true
		}
	}
	return false
}

// Clear empties the store.
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
	s.seen = make(map[int64]struct{})
}

// Snapshot returns a copy of the notifications in insertion order together
// with the unread count. The count is computed by scanning the collection so
// it can never drift from the read flags.
func (s *NotificationStore) Snapshot() ([]domain.Notification, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]domain.Notification, len(s.events))
	copy(events, s.events)

	unread := 0
	for i := range events {
		if !events[i].Read {
			unread++
		}
	}
	return events, unread
}

// Len returns the number of stored notifications.
func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
