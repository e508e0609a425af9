// Package counter tracks the lifetime number of generated servers in a
// single file shared across processes.
package counter

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockWait bounds the wait for the counter file lock. When it cannot
// be acquired the increment falls back to memory only, so a wedged
// peer never blocks provisioning.
const lockWait = 5 * time.Second

// Counter persists a monotonically increasing count. File corruption
// or lock starvation degrades to an in-memory count rather than
// failing the request.
type Counter struct {
	path string
	lock *flock.Flock

	mu     sync.Mutex
	memory int64
}

func New(path string) *Counter {
	return &Counter{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Value reads the current count. A missing or unreadable file reports
// the in-memory count.
func (c *Counter) Value() int64 {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.memory
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.memory
	}
	return n
}

// Increment bumps the persisted count by one and returns the new
// value. The mutex serializes writers in this process; the file lock
// fences other processes (it is reentrant within one process, so it
// cannot replace the mutex). Every failure path still bumps the
// in-memory count so /api/count keeps moving.
func (c *Counter) Increment(ctx context.Context) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory++
	fallback := c.memory

	lctx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	ok, err := c.lock.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil || !ok {
		return fallback
	}
	defer c.lock.Unlock()

	var current int64
	if raw, err := os.ReadFile(c.path); err == nil {
		if n, perr := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); perr == nil {
			current = n
		}
	}
	next := current + 1
	if err := os.WriteFile(c.path, []byte(strconv.FormatInt(next, 10)), 0o644); err != nil {
		return fallback
	}

	c.memory = next
	return next
}
