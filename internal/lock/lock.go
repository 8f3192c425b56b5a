// Package lock provides per-card mutual exclusion for the transfer and lifecycle paths.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrTimeout is returned when a lock could not be acquired before the context ended.
var ErrTimeout = errors.New("lock acquisition timed out")

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker hands out one mutex per card id. Entries are created on demand and
// dropped once nobody holds or waits for them.
type Locker struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewLocker creates an empty Locker
func NewLocker() *Locker {
	return &Locker{entries: make(map[int64]*entry)}
}

func (l *Locker) acquireRef(id int64) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	return e
}

func (l *Locker) releaseRef(id int64, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

// Lock blocks until the card's lock is held or ctx is done.
// The returned func releases the lock and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, id int64) (func(), error) {
	e := l.acquireRef(id)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(id, e)
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.releaseRef(id, e)
		})
	}, nil
}

// LockPair locks both cards in ascending id order so that two transfers over
// the same pair of cards in opposite directions cannot deadlock.
func (l *Locker) LockPair(ctx context.Context, a, b int64) (func(), error) {
	if a == b {
		return l.Lock(ctx, a)
	}

	ids := []int64{a, b}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	unlockFirst, err := l.Lock(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	unlockSecond, err := l.Lock(ctx, ids[1])
	if err != nil {
		unlockFirst()
		return nil, err
	}

	return func() {
		unlockSecond()
		unlockFirst()
	}, nil
}

// Len returns the number of cards currently locked or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
