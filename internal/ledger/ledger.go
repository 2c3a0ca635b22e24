// Package ledger keeps a bounded, time-limited history of recent ingest
// operations keyed by item identifier. It backs progress replay for clients
// that reconnect; nothing in it survives a restart.
package ledger

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/status"
)

const (
	DefaultTTL     = 15 * time.Minute
	DefaultCeiling = 50
)

// Status is the coarse state of an operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Entry is the ledger's view of one identifier's recent activity.
type Entry struct {
	Identifier string         `json:"identifier"`
	Events     []status.Event `json:"events"`
	Status     Status         `json:"status"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Result     any            `json:"result,omitempty"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
	ttl     time.Duration
	ceiling int
	clock   Clock
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithTTL sets how long an idle entry is retained.
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithCeiling sets the target size. Prune always trims back to it; Record and
// Snapshot only trim once the table grows past twice the ceiling.
func WithCeiling(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.ceiling = n
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		entries: make(map[string]*Entry),
		ttl:     DefaultTTL,
		ceiling: DefaultCeiling,
		clock:   ClockFunc(time.Now),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends e to the entry for identifier, creating it if absent, and
// recomputes the coarse status.
func (l *Ledger) Record(identifier string, e status.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[identifier]
	if !ok {
		entry = &Entry{Identifier: identifier, Status: StatusPending}
		l.entries[identifier] = entry
	}
	entry.Events = append(entry.Events, e)
	entry.UpdatedAt = l.clock.Now()

	switch {
	case e.Stage.IsFailure():
		entry.Status = StatusError
	case e.Stage == status.StageCompleted:
		entry.Status = StatusCompleted
		entry.Result = e.Data
	case e.Stage == status.StageQueued:
		// A new invocation starts over from pending; the previous result stays
		// until this one completes.
		entry.Status = StatusPending
	default:
		entry.Status = StatusInProgress
	}

	l.pruneLocked(2 * l.ceiling)
}

// Emit implements status.Sink so the ledger can subscribe to a pipeline run.
func (l *Ledger) Emit(e status.Event) {
	l.Record(e.Identifier, e)
}

// Snapshot returns up to limit entries, most recently updated first. Expired
// entries are pruned before the snapshot is taken.
func (l *Ledger) Snapshot(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(2 * l.ceiling)

	entries := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *Entry) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Identifier, b.Identifier)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = *e
		out[i].Events = slices.Clone(e.Events)
	}
	return out
}

// Get returns a copy of the entry for identifier.
func (l *Ledger) Get(identifier string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[identifier]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Events = slices.Clone(e.Events)
	return out, true
}

// Prune evicts expired entries and trims the table to the ceiling, oldest
// first. After it returns Len is at most the ceiling. It returns the number
// of entries removed.
func (l *Ledger) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(l.ceiling)
}

// Len returns the number of live entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// pruneLocked evicts expired entries and, when more than threshold remain,
// trims to the ceiling. It must be called with l.mu held.
func (l *Ledger) pruneLocked(threshold int) int {
	removed := 0
	cutoff := l.clock.Now().Add(-l.ttl)
	for id, e := range l.entries {
		if e.UpdatedAt.Before(cutoff) {
			delete(l.entries, id)
			removed++
		}
	}

	if len(l.entries) <= threshold {
		return removed
	}

	oldest := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		oldest = append(oldest, e)
	}
	slices.SortFunc(oldest, func(a, b *Entry) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	for _, e := range oldest[:len(oldest)-l.ceiling] {
		delete(l.entries, e.Identifier)
		removed++
	}
	return removed
}
