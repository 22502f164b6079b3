package bookmarks

import (
	"context"
	"sync"

	"github.com/dgraph-io/ristretto"

	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

// BookmarksSubscription is the pollable, bounded-memory snapshot of
// spec.md §4.3/§9 ("Bookmark subscription without unbounded memory"): an
// initial snapshot plus a last-seen log id, refreshed by folding new log
// rows into an in-memory cache. The stream is at-least-once with respect
// to log ids; Poll may report the same terminal state for a bookmark
// more than once.
type BookmarksSubscription struct {
	store    *Store
	repoId   scmtypes.RepositoryId
	cache    *ristretto.Cache
	mu       sync.Mutex
	lastSeen int64
}

// NewSubscription bootstraps the cursor from GetLargestLogId (skipping a
// full history scan) and seeds the snapshot from the current unordered
// bookmark listing.
func NewSubscription(ctx context.Context, store *Store, repoId scmtypes.RepositoryId) (*BookmarksSubscription, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, scmerr.Wrap(err, "while constructing bookmark subscription cache")
	}

	sub := &BookmarksSubscription{store: store, repoId: repoId, cache: cache}

	lastSeen, ok, err := store.GetLargestLogId(ctx, repoId)
	if err != nil {
		return nil, scmerr.Wrap(err, "while bootstrapping bookmark subscription cursor")
	}
	if ok {
		sub.lastSeen = lastSeen
	}

	bookmarks, err := store.ListUnordered(ctx, repoId, MaybeStale, "", nil)
	if err != nil {
		return nil, scmerr.Wrap(err, "while seeding bookmark subscription snapshot")
	}
	for _, bm := range bookmarks {
		id := bm.ChangesetId
		sub.cache.Set(bm.Name, &id, 1)
	}
	sub.cache.Wait()

	return sub, nil
}

// Poll reads log rows with id > lastSeen, folds each into the snapshot
// (nil ChangesetId means the bookmark was deleted), and returns the set
// of bookmarks that changed in this poll.
func (s *BookmarksSubscription) Poll(ctx context.Context) (map[string]*scmtypes.ChangesetId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.ReadNextBookmarkLogEntries(ctx, s.repoId, s.lastSeen, 1000, MaybeStale)
	if err != nil {
		return nil, scmerr.Wrap(err, "while polling bookmark update log")
	}
	if len(entries) == 0 {
		return map[string]*scmtypes.ChangesetId{}, nil
	}

	changed := map[string]*scmtypes.ChangesetId{}
	for _, e := range entries {
		changed[e.Name] = e.ToChangesetId
		if e.ToChangesetId == nil {
			s.cache.Del(e.Name)
		} else {
			id := *e.ToChangesetId
			s.cache.Set(e.Name, &id, 1)
		}
		if e.Id > s.lastSeen {
			s.lastSeen = e.Id
		}
	}
	s.cache.Wait()
	return changed, nil
}

// Get returns the current cached changeset for name, if any.
func (s *BookmarksSubscription) Get(name string) (scmtypes.ChangesetId, bool) {
	v, ok := s.cache.Get(name)
	if !ok {
		return scmtypes.ChangesetId{}, false
	}
	id, ok := v.(*scmtypes.ChangesetId)
	if !ok || id == nil {
		return scmtypes.ChangesetId{}, false
	}
	return *id, true
}

// LastSeen returns the subscription's current log-id cursor.
func (s *BookmarksSubscription) LastSeen() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close releases the underlying cache.
func (s *BookmarksSubscription) Close() {
	s.cache.Close()
}
