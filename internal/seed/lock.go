package seed

import (
	"context"
	"fmt"
)

// Locker serializes seeding. Acquire blocks until the lock is held or ctx
// is done and returns the release function.
type Locker interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

// LocalLock is a Locker for a single process
type LocalLock struct {
	sem chan struct{}
}

// NewLocalLock creates an unlocked LocalLock
func NewLocalLock() *LocalLock {
	return &LocalLock{sem: make(chan struct{}, 1)}
}

// Acquire implements Locker
func (l *LocalLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	select {
	case l.sem <- struct{}{}:
		return func(context.Context) error {
			<-l.sem
			return nil
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for seed lock: %w", ctx.Err())
	}
}
