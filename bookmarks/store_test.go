package bookmarks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivermark/scmcore/internal/sqlstore"
	"github.com/rivermark/scmcore/scmtypes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	roles, err := sqlstore.OpenSQLiteForTests(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = roles.Close() })
	s := NewStore(roles, nil)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func cs(b byte) scmtypes.ChangesetId {
	var id scmtypes.ChangesetId
	id[0] = b
	return id
}

func TestTransaction_CreateThenGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	target := cs(1)

	tx := s.NewTransaction(0)
	tx.Create("master", target)
	require.NoError(t, tx.Commit(ctx, TestMove, time.Unix(100, 0)))

	got, ok, err := s.Get(ctx, 0, "master", MostRecent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, target, got)
}

func TestTransaction_CreateTwiceFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := s.NewTransaction(0)
	tx.Create("master", cs(1))
	require.NoError(t, tx.Commit(ctx, TestMove, time.Unix(100, 0)))

	tx2 := s.NewTransaction(0)
	tx2.Create("master", cs(2))
	err := tx2.Commit(ctx, TestMove, time.Unix(101, 0))
	var casErr *CASError
	require.ErrorAs(t, err, &casErr)

	// failed commit left the bookmark at its original value.
	got, ok, err := s.Get(ctx, 0, "master", MostRecent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cs(1), got)
}

func TestTransaction_UpdateWithWrongExpectedOldFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := s.NewTransaction(0)
	tx.Create("master", cs(1))
	require.NoError(t, tx.Commit(ctx, TestMove, time.Unix(100, 0)))

	tx2 := s.NewTransaction(0)
	tx2.Update("master", cs(2), cs(99))
	err := tx2.Commit(ctx, Push, time.Unix(101, 0))
	var casErr *CASError
	require.ErrorAs(t, err, &casErr)
}

func TestTransaction_UpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := s.NewTransaction(0)
	tx.Create("master", cs(1))
	require.NoError(t, tx.Commit(ctx, TestMove, time.Unix(100, 0)))

	tx2 := s.NewTransaction(0)
	tx2.Update("master", cs(2), cs(1))
	require.NoError(t, tx2.Commit(ctx, Push, time.Unix(101, 0)))

	got, ok, err := s.Get(ctx, 0, "master", MostRecent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cs(2), got)

	tx3 := s.NewTransaction(0)
	tx3.Delete("master", cs(2))
	require.NoError(t, tx3.Commit(ctx, ManualMove, time.Unix(102, 0)))

	_, ok, err = s.Get(ctx, 0, "master", MostRecent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_List_PrefixAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"releases/a", "releases/b", "releases/c", "scratch/x"} {
		tx := s.NewTransaction(0)
		tx.Create(name, cs(1))
		require.NoError(t, tx.Commit(ctx, TestMove, time.Unix(100, 0)))
	}

	all, err := s.List(ctx, 0, MostRecent, "releases/", nil, FromStart, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "releases/a", all[0].Name)

	rest, err := s.List(ctx, 0, MostRecent, "releases/", nil, After("releases/a"), 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "releases/b", rest[0].Name)
}

func TestStore_ListPublishing_FiltersOutScratch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertBookmark := func(name string, kind Kind) {
		_, err := s.roles.WritePrimary.ExecContext(ctx,
			`INSERT INTO bookmarks (repo_id, name, hg_kind, changeset_id) VALUES (?, ?, ?, ?)`,
			0, name, kind.String(), cs(1).String())
		require.NoError(t, err)
	}
	insertBookmark("releases/a", PullDefaultPublishing)
	insertBookmark("releases/b", PublishingNotPullDefault)
	insertBookmark("scratch/x", Scratch)

	got, err := s.ListPublishing(ctx, 0, MostRecent, "", FromStart, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, bm := range got {
		assert.NotEqual(t, Scratch, bm.HgKind)
	}
}

// spec.md §8 scenario 4: log rows (ids 1..5) with reasons
// [Blobimport, Blobimport, Push, Blobimport, Push];
// skip_over_bookmark_log_entries_with_reason(min_id=0, Blobimport) == Some(2).
func TestStore_SkipOverBookmarkLogEntriesWithReason_Scenario4(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reasons := []Reason{Blobimport, Blobimport, Push, Blobimport, Push}
	for i, r := range reasons {
		tx := s.NewTransaction(0)
		name := "master"
		if i == 0 {
			tx.Create(name, cs(byte(i+1)))
		} else {
			tx.ForceSet(name, cs(byte(i+1)))
		}
		require.NoError(t, tx.Commit(ctx, r, time.Unix(int64(100+i), 0)))
	}

	id, ok, err := s.SkipOverBookmarkLogEntriesWithReason(ctx, 0, "master", 0, Blobimport)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, id)
}

func TestStore_CountFurtherBookmarkLogEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, r := range []Reason{Blobimport, Push, Blobimport} {
		tx := s.NewTransaction(0)
		if i == 0 {
			tx.Create("master", cs(byte(i+1)))
		} else {
			tx.ForceSet("master", cs(byte(i+1)))
		}
		require.NoError(t, tx.Commit(ctx, r, time.Unix(int64(100+i), 0)))
	}

	count, err := s.CountFurtherBookmarkLogEntries(ctx, 0, "master", 0, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	excluded := Push
	count, err = s.CountFurtherBookmarkLogEntries(ctx, 0, "master", 0, &excluded)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestSubscription_PollFoldsLogIntoSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := s.NewTransaction(0)
	tx.Create("master", cs(1))
	require.NoError(t, tx.Commit(ctx, TestMove, time.Unix(100, 0)))

	sub, err := NewSubscription(ctx, s, 0)
	require.NoError(t, err)
	defer sub.Close()

	got, ok := sub.Get("master")
	require.True(t, ok)
	assert.Equal(t, cs(1), got)

	tx2 := s.NewTransaction(0)
	tx2.Update("master", cs(2), cs(1))
	require.NoError(t, tx2.Commit(ctx, Push, time.Unix(101, 0)))

	changed, err := sub.Poll(ctx)
	require.NoError(t, err)
	require.Contains(t, changed, "master")
	assert.Equal(t, cs(2), *changed["master"])

	got, ok = sub.Get("master")
	require.True(t, ok)
	assert.Equal(t, cs(2), got)
}
