// Package logbook holds per-request log buffers and their live
// subscriptions.
//
// Every stage of a provisioning run appends lines keyed by request id;
// the web layer subscribes to the same key and pushes lines to the
// waiting browser. Buffers are created lazily, bounded, and torn down
// when the request's files are cleaned up.
package logbook

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// BufferCap bounds a buffer to the most recent lines.
	BufferCap = 10000

	// MaxLineLength truncates a single appended line.
	MaxLineLength = 1000

	defaultPollInterval   = 300 * time.Millisecond
	defaultKeepAliveEvery = 10 * time.Second
	defaultStreamCeiling  = 3 * time.Hour
)

// Event is one item of a subscription: either a buffered log line or
// a keep-alive marker emitted during idle periods.
type Event struct {
	Line      string
	KeepAlive bool
}

type book struct {
	mu    sync.Mutex
	lines []string
}

// Registry is the process-wide map of request id -> log buffer.
// All access is by explicit request id; there is no ambient
// "current request" state.
type Registry struct {
	mu    sync.Mutex
	books map[string]*book

	// knobs below are fixed in production, shortened in tests.
	pollInterval   time.Duration
	keepAliveEvery time.Duration
	streamCeiling  time.Duration
}

func New() *Registry {
	return &Registry{
		books:          map[string]*book{},
		pollInterval:   defaultPollInterval,
		keepAliveEvery: defaultKeepAliveEvery,
		streamCeiling:  defaultStreamCeiling,
	}
}

// getOrCreate returns the buffer for requestID, creating it if absent.
// Creation is atomic under the registry lock, so concurrent first
// writers never produce two buffers for one id.
func (r *Registry) getOrCreate(requestID string) *book {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[requestID]
	if !ok {
		b = &book{}
		r.books[requestID] = b
	}
	return b
}

// Append sanitizes message (newlines stripped, length capped) and
// appends it to the buffer for requestID, creating the buffer when
// this is the first write for the id.
func (r *Registry) Append(requestID, message string) {
	if requestID == "" {
		return
	}
	line := sanitizeLine(message)

	b := r.getOrCreate(requestID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > BufferCap {
		b.lines = b.lines[len(b.lines)-BufferCap:]
	}
}

// Snapshot copies the current buffer contents for requestID.
// Unknown ids give an empty slice.
func (r *Registry) Snapshot(requestID string) []string {
	r.mu.Lock()
	b, ok := r.books[requestID]
	r.mu.Unlock()
	if !ok {
		return []string{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Release tears down the buffer for requestID. Idempotent; a released
// id behaves like an unseen one afterwards.
func (r *Registry) Release(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.books, requestID)
}

// Subscribe produces a live sequence of log events for requestID:
// first every line already buffered, then newly appended lines polled
// at a fixed interval, with keep-alive markers during idle stretches.
//
// The channel closes when ctx is done or after a hard wall-clock
// ceiling, whichever comes first. Creating the buffer eagerly here
// lets a stream that connects before the first write still see
// everything.
func (r *Registry) Subscribe(ctx context.Context, requestID string) <-chan Event {
	r.getOrCreate(requestID)

	out := make(chan Event, 64)
	go func() {
		defer close(out)

		deadline := time.NewTimer(r.streamCeiling)
		defer deadline.Stop()
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		lastIndex := 0
		lastActivity := time.Now()

		emit := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			case <-deadline.C:
				return false
			}
		}

		for {
			lines := r.Snapshot(requestID)
			if lastIndex > len(lines) {
				// buffer truncation or release+recreate; resync.
				lastIndex = len(lines)
			}
			for _, line := range lines[lastIndex:] {
				if !emit(Event{Line: line}) {
					return
				}
				lastActivity = time.Now()
			}
			lastIndex = len(lines)

			if time.Since(lastActivity) >= r.keepAliveEvery {
				if !emit(Event{KeepAlive: true}) {
					return
				}
				lastActivity = time.Now()
			}

			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

func sanitizeLine(message string) string {
	line := strings.ReplaceAll(message, "\n", " ")
	line = strings.ReplaceAll(line, "\r", "")
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength]
	}
	return line
}
