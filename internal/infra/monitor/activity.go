package monitor

import (
	"sync"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// DefaultActivityWindow bounds the per-user activity ring.
const DefaultActivityWindow = 100

// ActivityTracker keeps a bounded window of recent activity per user in
// memory. It backs behavioural context in user activity reports; the durable
// record lives in the audit store.
type ActivityTracker struct {
	mu     sync.RWMutex
	window int
	users  map[string][]domain.Activity
	now    func() time.Time
}

func NewActivityTracker(window int) *ActivityTracker {
	if window <= 0 {
		window = DefaultActivityWindow
	}
	return &ActivityTracker{
		window: window,
		users:  make(map[string][]domain.Activity),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (t *ActivityTracker) WithClock(now func() time.Time) *ActivityTracker {
	if now != nil {
		t.now = now
	}
	return t
}

// Record appends an activity entry, evicting the oldest entry once the
// window is full.
func (t *ActivityTracker) Record(userID, activityType string, details map[string]any) {
	if userID == "" {
		return
	}

	entry := domain.Activity{
		Type:       activityType,
		OccurredAt: t.now(),
		Details:    details,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := append(t.users[userID], entry)
	if len(entries) > t.window {
		entries = entries[len(entries)-t.window:]
	}
	t.users[userID] = entries
}

// Recent returns up to limit entries for the user, newest first. limit <= 0
// returns the whole window.
func (t *ActivityTracker) Recent(userID string, limit int) []domain.Activity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.users[userID]
	if len(entries) == 0 {
		return nil
	}

	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	out := make([]domain.Activity, limit)
	for i := 0; i < limit; i++ {
		out[i] = entries[len(entries)-1-i]
	}
	return out
}

// ActivitySummary aggregates a user's tracked window.
type ActivitySummary struct {
	Total    int
	ByType   map[string]int
	First    time.Time
	Last     time.Time
	TrackedN int
}

// Summary aggregates the user's current window by activity type.
func (t *ActivityTracker) Summary(userID string) ActivitySummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.users[userID]
	summary := ActivitySummary{
		Total:    len(entries),
		ByType:   make(map[string]int, 8),
		TrackedN: t.window,
	}
	if len(entries) == 0 {
		return summary
	}

	summary.First = entries[0].OccurredAt
	summary.Last = entries[len(entries)-1].OccurredAt
	for _, entry := range entries {
		summary.ByType[entry.Type]++
	}
	return summary
}
