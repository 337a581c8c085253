package bridge

import (
	"context"
	"sync"
)

// connLimiter bounds the number of connections served at once. A limit of
// zero or less means unlimited.
type connLimiter struct {
	mu    sync.Mutex
	cond  *sync.Cond
	limit int
	inUse int
}

func newConnLimiter(limit int) *connLimiter {
	if limit < 0 {
		limit = 0
	}
	l := &connLimiter{limit: limit}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until a slot is free or ctx is done.
func (l *connLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit == 0 {
		l.inUse++
		return nil
	}

	// Waiters must wake on cancellation as well as on Release.
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()

	for l.inUse >= l.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.inUse++
	return nil
}

// Release frees a slot.
func (l *connLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse > 0 {
		l.inUse--
	}
	l.cond.Signal()
}

// InUse returns the number of held slots.
func (l *connLimiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}
