package pipeline

import (
	"context"
	"sync"
)

// Latch is a countdown barrier that can also be cancelled, which releases
// waiters immediately regardless of the remaining count.
type Latch struct {
	mu        sync.Mutex
	count     int
	cancelled bool
	done      chan struct{}
}

// NewLatch returns a latch armed with n counts. A latch with n <= 0 is already open.
func NewLatch(n int) *Latch {
	l := &Latch{count: n, done: make(chan struct{})}
	if n <= 0 {
		l.count = 0
		close(l.done)
	}
	return l
}

// CountDown decrements the count, opening the latch when it reaches zero.
func (l *Latch) CountDown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return
	}
	l.count--
	if l.count == 0 && !l.cancelled {
		close(l.done)
	}
}

// Cancel opens the latch without draining it.
func (l *Latch) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancelled || l.count == 0 {
		return
	}
	l.cancelled = true
	close(l.done)
}

// Count returns the remaining count.
func (l *Latch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Cancelled reports whether Cancel opened the latch.
func (l *Latch) Cancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelled
}

// Done is closed once the latch is drained or cancelled.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Await blocks until the latch opens or ctx is done, returning ctx.Err() in
// the latter case.
func (l *Latch) Await(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		// Prefer the latch when both are ready.
		select {
		case <-l.done:
			return nil
		default:
			return ctx.Err()
		}
	}
}
