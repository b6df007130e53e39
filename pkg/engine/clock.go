package engine

import (
	"context"
	"time"
)

// Clock abstracts time for retry backoff so tests run instantly.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is cancelled.
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

// RealClock is the production clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
