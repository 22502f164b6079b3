package commitsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivermark/scmcore/internal/sqlstore"
	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

func newTestMapping(t *testing.T) *Mapping {
	t.Helper()
	roles, err := sqlstore.OpenSQLiteForTests(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = roles.Close() })
	m := NewMapping(roles, nil, 0)
	require.NoError(t, m.EnsureSchema(context.Background()))
	return m
}

func csid(b byte) scmtypes.ChangesetId {
	var id scmtypes.ChangesetId
	id[0] = b
	return id
}

func strPtr(s string) *string { return &s }

func TestMapping_AddAndGetMany(t *testing.T) {
	m := newTestMapping(t)
	ctx := context.Background()

	large, small := csid(1), csid(2)
	inserted, err := m.Add(ctx, MappingEntry{
		LargeRepoId: 0, LargeBcsId: large,
		SmallRepoId: 1, SmallBcsId: small,
		VersionName: strPtr("v1"), SourceRepo: SourceSmall,
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	// re-adding the identical row is a no-op, not an error.
	inserted, err = m.Add(ctx, MappingEntry{
		LargeRepoId: 0, LargeBcsId: large,
		SmallRepoId: 1, SmallBcsId: small,
		VersionName: strPtr("v1"), SourceRepo: SourceSmall,
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := m.GetMany(ctx, 0, 1, []scmtypes.ChangesetId{large})
	require.NoError(t, err)
	require.Len(t, got[large], 1)
	assert.Equal(t, small, got[large][0].ChangesetId)
	assert.Equal(t, "v1", *got[large][0].VersionName)
}

func TestMapping_Add_ConflictingVersionName(t *testing.T) {
	m := newTestMapping(t)
	ctx := context.Background()
	large, small := csid(3), csid(4)

	_, err := m.Add(ctx, MappingEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: small,
		VersionName: strPtr("v1"),
	})
	require.NoError(t, err)

	otherSmall := csid(5)
	_, err = m.Add(ctx, MappingEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 2, SmallBcsId: otherSmall,
		VersionName: strPtr("v2"),
	})
	var versionErr *scmerr.InconsistentLargeRepoCommitVersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, "v1", versionErr.Expected)
	assert.Equal(t, "v2", versionErr.Actual)
}

// scenario 3 from spec.md §8: inserting a conflicting working-copy
// equivalence for an already-recorded key fails with
// InconsistentWorkingCopyEntryError{expected, actual}.
func TestMapping_InsertEquivalentWorkingCopy_Conflict(t *testing.T) {
	m := newTestMapping(t)
	ctx := context.Background()
	large := csid(6)
	first := csid(7)

	require.NoError(t, m.InsertEquivalentWorkingCopy(ctx, WorkingCopyEquivalenceEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: &first,
	}))

	second := csid(8)
	err := m.InsertEquivalentWorkingCopy(ctx, WorkingCopyEquivalenceEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: &second,
	})
	var wceErr *scmerr.InconsistentWorkingCopyEntryError
	require.ErrorAs(t, err, &wceErr)
	assert.Equal(t, first, *wceErr.Expected)
	assert.Equal(t, second, *wceErr.Actual)

	// identical re-insert is a no-op.
	require.NoError(t, m.InsertEquivalentWorkingCopy(ctx, WorkingCopyEquivalenceEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: &first,
	}))
}

func TestMapping_InsertEquivalentWorkingCopy_NoWorkingCopy(t *testing.T) {
	m := newTestMapping(t)
	ctx := context.Background()
	large := csid(9)

	require.NoError(t, m.InsertEquivalentWorkingCopy(ctx, WorkingCopyEquivalenceEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: nil,
	}))

	wce, err := m.GetEquivalentWorkingCopy(ctx, 0, large, 1)
	require.NoError(t, err)
	require.NotNil(t, wce)
	assert.Equal(t, NoWorkingCopy, wce.Kind)
}

func TestMapping_OverwriteEquivalentWorkingCopy(t *testing.T) {
	m := newTestMapping(t)
	ctx := context.Background()
	large := csid(10)
	first := csid(11)

	require.NoError(t, m.InsertEquivalentWorkingCopy(ctx, WorkingCopyEquivalenceEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: &first,
	}))

	second := csid(12)
	require.NoError(t, m.OverwriteEquivalentWorkingCopy(ctx, WorkingCopyEquivalenceEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: &second,
	}))

	wce, err := m.GetEquivalentWorkingCopy(ctx, 0, large, 1)
	require.NoError(t, err)
	require.NotNil(t, wce)
	assert.Equal(t, WorkingCopy, wce.Kind)
	assert.Equal(t, second, wce.ChangesetId)
}

func TestMapping_GetLargeRepoCommitVersion(t *testing.T) {
	m := newTestMapping(t)
	ctx := context.Background()
	large, small := csid(13), csid(14)

	_, err := m.Add(ctx, MappingEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: small,
		VersionName: strPtr("v7"),
	})
	require.NoError(t, err)

	v, ok, err := m.GetLargeRepoCommitVersion(ctx, 0, large)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v7", v)

	_, ok, err = m.GetLargeRepoCommitVersion(ctx, 0, csid(99))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMapping_GetAllVersionsForLargeBcsId(t *testing.T) {
	m := newTestMapping(t)
	ctx := context.Background()
	large := csid(20)
	smallA, smallB := csid(21), csid(22)

	_, err := m.Add(ctx, MappingEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 1, SmallBcsId: smallA,
		VersionName: strPtr("v1"),
	})
	require.NoError(t, err)
	_, err = m.Add(ctx, MappingEntry{
		LargeRepoId: 0, LargeBcsId: large, SmallRepoId: 2, SmallBcsId: smallB,
		VersionName: strPtr("v1"),
	})
	require.NoError(t, err)

	entries, err := m.GetAllVersionsForLargeBcsId(ctx, 0, large)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	bySmallRepo := map[scmtypes.RepositoryId]FetchedEntry{}
	for _, e := range entries {
		bySmallRepo[e.SmallRepoId] = e
	}
	assert.Equal(t, smallA, bySmallRepo[1].ChangesetId)
	assert.Equal(t, smallB, bySmallRepo[2].ChangesetId)
}

func TestMapping_GetMany_Empty(t *testing.T) {
	m := newTestMapping(t)
	got, err := m.GetMany(context.Background(), 0, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
