package commitsync

import (
	"context"
	"sync"
	"time"

	"github.com/rivermark/scmcore/scmtypes"
)

// pairKey identifies one (source_repo, target_repo) rendezvous coalescer,
// keyed exactly as spec.md §4.2/§9 describe.
type pairKey struct {
	Source, Target scmtypes.RepositoryId
}

type batchState int

const (
	accumulating batchState = iota
	fetching
	drained
)

// fetchFunc issues the single batched query for a set of ids.
type fetchFunc func(ctx context.Context, ids []scmtypes.ChangesetId) (map[scmtypes.ChangesetId][]FetchedEntry, error)

type batchResult struct {
	results map[scmtypes.ChangesetId][]FetchedEntry
	err     error
}

// batch accumulates ids from concurrent Dispatch callers for one pairKey
// during a short coalescing window, then issues one fetch for the union.
type batch struct {
	mu      sync.Mutex
	state   batchState
	ids     map[scmtypes.ChangesetId]struct{}
	waiters []chan batchResult
}

// Coalescer is the per-repo-pair read-through batcher described in
// spec.md §4.2 and §9: "a thread-safe map from pair-key to a small state
// machine (Accumulating | Fetching | Drained) protected by a short
// critical section; concurrent producers attach result channels before
// the fetch fires." Long-lived, created lazily per (source, target) pair.
type Coalescer struct {
	mu      sync.Mutex
	pending map[pairKey]*batch
	// Window is how long a batch accumulates concurrent callers' ids
	// before firing the underlying fetch. Zero adds no wait: the batch
	// fires as soon as its firing goroutine runs, and callers that join
	// before then still share the fetch.
	Window time.Duration
}

// NewCoalescer returns a Coalescer with the given accumulation window.
func NewCoalescer(window time.Duration) *Coalescer {
	return &Coalescer{pending: map[pairKey]*batch{}, Window: window}
}

// Dispatch joins (or creates) the rendezvous batch for (source, target),
// contributes ids to it, and waits for the batched fetch to complete. The
// caller receives a map of its own holding only the ids it asked for;
// ids with no rows are absent from it.
func (c *Coalescer) Dispatch(ctx context.Context, source, target scmtypes.RepositoryId, ids []scmtypes.ChangesetId, fetch fetchFunc) (map[scmtypes.ChangesetId][]FetchedEntry, error) {
	if len(ids) == 0 {
		return map[scmtypes.ChangesetId][]FetchedEntry{}, nil
	}
	key := pairKey{Source: source, Target: target}

	c.mu.Lock()
	b, ok := c.pending[key]
	isCreator := false
	if !ok || b.isDrained() {
		b = &batch{state: accumulating, ids: map[scmtypes.ChangesetId]struct{}{}}
		c.pending[key] = b
		isCreator = true
	}
	wait := make(chan batchResult, 1)
	b.mu.Lock()
	for _, id := range ids {
		b.ids[id] = struct{}{}
	}
	b.waiters = append(b.waiters, wait)
	b.mu.Unlock()
	c.mu.Unlock()

	if isCreator {
		go c.fire(ctx, key, b, fetch)
	}

	select {
	case res := <-wait:
		if res.err != nil {
			return nil, res.err
		}
		own := make(map[scmtypes.ChangesetId][]FetchedEntry, len(ids))
		for _, id := range ids {
			if entries, ok := res.results[id]; ok {
				own[id] = entries
			}
		}
		return own, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *batch) isDrained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == drained
}

func (c *Coalescer) fire(ctx context.Context, key pairKey, b *batch, fetch fetchFunc) {
	if c.Window > 0 {
		time.Sleep(c.Window)
	}

	b.mu.Lock()
	b.state = fetching
	ids := make([]scmtypes.ChangesetId, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
	}
	waiters := b.waiters
	b.mu.Unlock()

	c.mu.Lock()
	if c.pending[key] == b {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	results, err := fetch(ctx, ids)

	b.mu.Lock()
	b.state = drained
	b.mu.Unlock()

	for _, w := range waiters {
		w <- batchResult{results: results, err: err}
	}
}
