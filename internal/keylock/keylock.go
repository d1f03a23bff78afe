// Package keylock serializes work per key (one auction at a time) without a global lock.
package keylock

import (
	"context"
	"fmt"
	"sync"

	"auction-engine/internal/biddingerrors"
)

// Locker hands out one exclusive slot per key. Slots are created lazily and
// dropped once nobody holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// New creates an empty Locker
func New() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

// Lock waits for the slot of key until ctx is done. The returned func releases
// the slot and is safe to call more than once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		l.release(key, s)
		return nil, fmt.Errorf("lock %s: %w", key, biddingerrors.ErrLockTimeout)
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, fmt.Errorf("lock %s: %w", key, biddingerrors.ErrLockTimeout)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Locker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Len returns the number of keys currently held or waited on
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
