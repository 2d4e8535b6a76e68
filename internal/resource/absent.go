package resource

import (
	"sync"
	"time"
)

// AbsentTracker records identifiers whose fetch failed, suppressing
// redundant fetch attempts for a cool-down window. There is no automatic
// retry: the next EnsureFetchStarted after the cool-down expires is the
// only retry path.
type AbsentTracker struct {
	mu       sync.RWMutex
	entries  map[string]time.Time // identifier -> markedAt
	coolDown time.Duration
}

// NewAbsentTracker creates a tracker with the given cool-down window.
func NewAbsentTracker(coolDown time.Duration) *AbsentTracker {
	return &AbsentTracker{
		entries:  make(map[string]time.Time),
		coolDown: coolDown,
	}
}

// Mark records a failed identifier at the given time.
func (t *AbsentTracker) Mark(identifier string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[identifier] = now
}

// Clear removes any absent mark for the identifier.
func (t *AbsentTracker) Clear(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, identifier)
}

// Suppressed reports whether the identifier failed within the cool-down
// window. Expired marks are pruned on the way out.
func (t *AbsentTracker) Suppressed(identifier string, now time.Time) bool {
	t.mu.RLock()
	markedAt, exists := t.entries[identifier]
	t.mu.RUnlock()

	if !exists {
		return false
	}
	if now.Sub(markedAt) < t.coolDown {
		return true
	}

	t.mu.Lock()
	// Re-check under the write lock; a concurrent failure may have
	// re-marked the identifier in the meantime.
	if markedAt, exists := t.entries[identifier]; exists && now.Sub(markedAt) >= t.coolDown {
		delete(t.entries, identifier)
	}
	t.mu.Unlock()
	return false
}

// MarkedAt returns when the identifier was last marked absent.
func (t *AbsentTracker) MarkedAt(identifier string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	markedAt, exists := t.entries[identifier]
	return markedAt, exists
}

// Len returns the number of currently tracked identifiers.
func (t *AbsentTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
