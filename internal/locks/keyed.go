package locks

import (
	"context"
	"sync"
)

// Keyed provides mutual exclusion per key. Operations on the same
// ticket serialize; operations on different tickets proceed in
// parallel. Entries are reference counted and removed once the last
// holder or waiter releases, so the table does not grow with the
// number of tickets ever seen.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	held chan struct{}
	refs int
}

// NewKeyed returns an empty lock table.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Acquire blocks until the key's lock is free or ctx is done. On
// success it returns a release function that must be called exactly
// once, on every path.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{held: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.held <- struct{}{}:
		return func() {
			<-e.held
			k.release(key, e)
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

// Held reports whether the key is currently locked. Intended for tests
// and metrics, not for lock decisions.
func (k *Keyed) Held(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		return false
	}
	return len(e.held) == 1
}
