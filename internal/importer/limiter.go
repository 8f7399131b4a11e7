package importer

// limiter.go implements concurrency control for import jobs.
//
// A semaphore restricts parallel imports to a configurable maximum so a burst
// of uploads cannot exhaust database connections or disk bandwidth. When all
// slots are occupied, new requests wait up to maxWait before failing with
// ErrTooManyImports.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

const (
	defaultMaxConcurrentImports = 5
	defaultMaxWaitTime          = 30 * time.Second
)

// limiter is a semaphore with a bounded acquire wait.
type limiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	active int
}

func newLimiter(maxConcurrent int, maxWait time.Duration) *limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWaitTime
	}
	return &limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// acquire blocks for a slot up to maxWait. The caller must release() exactly
// once after a successful acquire.
func (l *limiter) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
}

func (l *limiter) release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.slots
}

// activeCount returns the number of imports currently holding a slot.
func (l *limiter) activeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}
