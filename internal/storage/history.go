// Package storage keeps the operator log history shown by the display.
package storage

import (
	"sync"
	"time"

	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// DefaultCapacity is how many log lines are kept.
const DefaultCapacity = 50

// Entry is one line of the operator log.
type Entry struct {
	At     time.Time
	Text   string
	Urgent bool
}

// LogStore is a bounded in-memory log history. Safe for concurrent access.
// Once full, the oldest entry is dropped for each new one.
type LogStore struct {
	mu       sync.RWMutex
	entries  []Entry
	start    int // index of the oldest entry
	capacity int
	log      *logger.Logger
}

// NewLogStore creates an empty store holding up to capacity entries.
// A non-positive capacity uses DefaultCapacity.
func NewLogStore(capacity int, log *logger.Logger) *LogStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LogStore{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		log:      log,
	}
}

// Append records an entry, evicting the oldest when full.
func (s *LogStore) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.At.IsZero() {
		e.At = time.Now()
	}
	if len(s.entries) < s.capacity {
		s.entries = append(s.entries, e)
		return
	}
	s.entries[s.start] = e
	s.start = (s.start + 1) % s.capacity
	s.log.Debug("log history full, dropped oldest entry (capacity=%d)", s.capacity)
}

// Recent returns up to n entries, oldest first. n <= 0 returns all.
func (s *LogStore) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := len(s.entries)
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, s.entries[(s.start+i)%size])
	}
	return out
}

// Last returns the newest entry.
func (s *LogStore) Last() (Entry, bool) {
	recent := s.Recent(1)
	if len(recent) == 0 {
		return Entry{}, false
	}
	return recent[0], true
}

// Len returns the number of stored entries.
func (s *LogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
