package port

import (
	"context"
	"time"
)

// RateLimitStore persists sliding-window attempt counters for throttling.
// Unlike the in-process SecurityMonitor, this store survives restarts and may
// back hard enforcement.
type RateLimitStore interface {
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
	ClearAttempts(ctx context.Context, identifier string) error
}
