// Package logring keeps the most recent log entries in memory so polling
// clients can retrieve them without access to the server's stdout.
package logring

import (
	"sync"
	"time"
)

// DefaultCapacity matches the service default of 100 retained entries.
const DefaultCapacity = 100

// Level classifies a ring entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARNING"
	LevelError Level = "ERROR"
)

// Entry is one retained log line. The timestamp is pre-rendered so the JSON
// shape matches what clients already parse.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     Level  `json:"level"`
	Message   string `json:"message"`
}

const timestampLayout = "2006-01-02 15:04:05"

// Ring is a fixed-capacity ring buffer of log entries. Appends never block
// and never fail; once full, the oldest entry is overwritten.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// New creates a ring with the given capacity. Capacities below 1 fall back
// to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Append records one entry, stamping it with the current time.
func (r *Ring) Append(level Level, message string) {
	r.AppendAt(time.Now(), level, message)
}

// AppendAt records one entry with an explicit timestamp.
func (r *Ring) AppendAt(ts time.Time, level Level, message string) {
	e := Entry{
		Timestamp: ts.Format(timestampLayout),
		Level:     level,
		Message:   message,
	}

	r.mu.Lock()
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Snapshot returns the retained entries, oldest first. The returned slice is
// a copy; callers may keep it as long as they like.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}

	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// Len reports how many entries are currently retained.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}
