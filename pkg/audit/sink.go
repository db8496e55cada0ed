package audit

import (
	"context"
	"errors"
	"sync"
)

// Sink persists audit entries
type Sink interface {
	Write(ctx context.Context, entry *Entry) error
}

// MultiSink writes every entry to each sink in order. A failing sink does
// not stop the others; the errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink fans out to several sinks
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write implements Sink
func (m *MultiSink) Write(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps entries in memory, for tests and local runs
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write implements Sink
func (m *MemorySink) Write(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	entry.ID = int64(len(m.entries))
	m.entries[len(m.entries)-1].ID = entry.ID
	return nil
}

// Entries returns a copy of everything written so far
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, entry *Entry) error

// Write implements Sink
func (f SinkFunc) Write(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}
