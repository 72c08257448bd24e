package tileservice

import (
	"context"
	"sync"
)

// inflightEntry tracks one in-progress render shared by every peer waiting
// on the same Key. Work runs under entry.ctx, which is cancelled only once
// every waiter has dropped out (spec §5): unlike golang.org/x/sync/
// singleflight, which has no notion of a waiter leaving early, this keeps a
// per-peer refcount so a single impatient client can't starve the others
// nor keep the render alive alone.
type inflightEntry struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	refs   int

	result *Tile
	err    error
}

// inflightTable coalesces concurrent requests for the same Key into one
// underlying render.
type inflightTable struct {
	mu      sync.Mutex
	entries map[Key]*inflightEntry
}

func newInflightTable() *inflightTable {
	return &inflightTable{entries: make(map[Key]*inflightEntry)}
}

// join either attaches the caller to an existing in-flight render for key,
// or starts a new one by invoking render in a new goroutine. It returns the
// result once available, honoring ctx's cancellation without cancelling
// other peers' wait on the same render.
func (t *inflightTable) join(ctx context.Context, key Key, render func(context.Context) (*Tile, error)) (*Tile, error) {
	t.mu.Lock()
	entry, exists := t.entries[key]
	if !exists {
		entryCtx, cancel := context.WithCancel(context.Background())
		entry = &inflightEntry{ctx: entryCtx, cancel: cancel, done: make(chan struct{})}
		t.entries[key] = entry
		entry.refs = 1
		t.mu.Unlock()

		go func() {
			result, err := render(entry.ctx)
			entry.result, entry.err = result, err
			close(entry.done)
			t.mu.Lock()
			delete(t.entries, key)
			t.mu.Unlock()
		}()
	} else {
		entry.refs++
		t.mu.Unlock()
	}

	defer t.leave(key, entry)

	select {
	case <-entry.done:
		return entry.result, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// leave decrements the entry's refcount and cancels the shared render once
// the last peer has stopped waiting on it.
func (t *inflightTable) leave(key Key, entry *inflightEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		entry.cancel()
	}
}
