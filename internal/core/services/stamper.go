package services

import (
	"sync"
	"time"
)

// Stamper hands out unique, strictly increasing event timestamps. Wall-clock
// milliseconds are used when they advance; a tie-break increment covers
// frames arriving within the same millisecond.
type Stamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewStamper creates a stamper backed by the system clock.
func NewStamper() *Stamper {
	return &Stamper{now: time.Now}
}

// Next returns the next unique timestamp.
func (s *Stamper) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}
