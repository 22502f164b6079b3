package pathmover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

func mustMove(t *testing.T, m *Mover, path string) string {
	t.Helper()
	dst, ok, err := m.Move(scmtypes.NewPath(path))
	require.NoError(t, err)
	if !ok {
		return "<do-not-sync>"
	}
	return dst.String()
}

func nonOverlappingConfig() *CommitSyncConfig {
	return &CommitSyncConfig{
		LargeRepoId: 0,
		Direction:   SmallToLarge,
		SmallRepos: map[scmtypes.RepositoryId]SmallRepoConfig{
			1: {
				DefaultAction: DefaultAction{Kind: DefaultPreserve},
				Map: []SmallRepoMapEntry{
					{SmallPrefix: scmtypes.NewPath("preserved2"), LargePrefix: scmtypes.NewPath("repo1-rest/preserved2")},
				},
			},
			2: {
				DefaultAction: DefaultAction{Kind: DefaultPrependPrefix, Prefix: scmtypes.NewPath("shifted2")},
				Map: []SmallRepoMapEntry{
					{SmallPrefix: scmtypes.NewPath("preserved2"), LargePrefix: scmtypes.NewPath("preserved2")},
					{SmallPrefix: scmtypes.NewPath("sub1"), LargePrefix: scmtypes.NewPath("repo2-rest/sub1")},
					{SmallPrefix: scmtypes.NewPath("sub2"), LargePrefix: scmtypes.NewPath("repo2-rest/sub2")},
				},
			},
		},
	}
}

func TestMover_NonOverlapping_SmallToLarge(t *testing.T) {
	cfg := nonOverlappingConfig()

	m1, err := NewMoverFromConfig(cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, "repo1-rest/preserved2/f", mustMove(t, m1, "preserved2/f"))
	assert.Equal(t, "sub1/f", mustMove(t, m1, "sub1/f"))
	assert.Equal(t, "aeneas/was/a/lively/fellow", mustMove(t, m1, "aeneas/was/a/lively/fellow"))

	m2, err := NewMoverFromConfig(cfg, 2)
	require.NoError(t, err)
	assert.Equal(t, "preserved2/f", mustMove(t, m2, "preserved2/f"))
	assert.Equal(t, "repo2-rest/sub1/f", mustMove(t, m2, "sub1/f"))
	assert.Equal(t, "shifted2/aeneas/was/a/lively/fellow", mustMove(t, m2, "aeneas/was/a/lively/fellow"))
}

func TestMover_NonOverlapping_LargeToSmall(t *testing.T) {
	cfg := nonOverlappingConfig()
	cfg.Direction = LargeToSmall

	m1, err := NewMoverFromConfig(cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, "<do-not-sync>", mustMove(t, m1, "shifted2/f"))
	assert.Equal(t, "preserved2/f", mustMove(t, m1, "repo1-rest/preserved2/f"))

	m2, err := NewMoverFromConfig(cfg, 2)
	require.NoError(t, err)
	assert.Equal(t, "f", mustMove(t, m2, "shifted2/f"))
	assert.Equal(t, "<do-not-sync>", mustMove(t, m2, "repo1-rest/preserved2/f"))
}

func TestMover_NonPrefixFreeMap(t *testing.T) {
	_, err := NewMover([]PrefixMapEntry{
		{Key: scmtypes.NewPath("a"), Action: PrefixActionSpec{Kind: ActionDoNotSync}},
		{Key: scmtypes.NewPath("a/b"), Action: PrefixActionSpec{Kind: ActionDoNotSync}},
	}, DefaultAction{Kind: DefaultPreserve})
	require.Error(t, err)
	var target *scmerr.NonPrefixFreeMapError
	assert.ErrorAs(t, err, &target)
}

func TestMover_RemovePrefixWholePath(t *testing.T) {
	m, err := NewMover([]PrefixMapEntry{
		{Key: scmtypes.NewPath("sub"), Action: PrefixActionSpec{Kind: ActionRemovePrefix}},
	}, DefaultAction{Kind: DefaultDoNotSync})
	require.NoError(t, err)
	_, _, err = m.Move(scmtypes.NewPath("sub"))
	require.Error(t, err)
	var target *scmerr.PrefixActionFailureError
	assert.ErrorAs(t, err, &target)
}

func TestMover_PrefixFreeConstructionSucceedsIffNoOverlap(t *testing.T) {
	_, err := NewMover([]PrefixMapEntry{
		{Key: scmtypes.NewPath("a/b"), Action: PrefixActionSpec{Kind: ActionDoNotSync}},
		{Key: scmtypes.NewPath("a/c"), Action: PrefixActionSpec{Kind: ActionDoNotSync}},
	}, DefaultAction{Kind: DefaultPreserve})
	assert.NoError(t, err)
}

func TestMultiMover_WrapsMover(t *testing.T) {
	m, err := NewMover([]PrefixMapEntry{
		{Key: scmtypes.NewPath("a"), Action: PrefixActionSpec{Kind: ActionChange, NewPrefix: scmtypes.NewPath("z")}},
	}, DefaultAction{Kind: DefaultDoNotSync})
	require.NoError(t, err)
	mm := m.AsMultiMover()
	dsts, err := mm.MultiMove(scmtypes.NewPath("a/f"))
	require.NoError(t, err)
	require.Len(t, dsts, 1)
	assert.Equal(t, "z/f", dsts[0].String())

	dsts, err = mm.MultiMove(scmtypes.NewPath("b/f"))
	require.NoError(t, err)
	assert.Empty(t, dsts)

	assert.True(t, mm.ConflictsWith(scmtypes.NewPath("a/f")))
	assert.False(t, mm.ConflictsWith(scmtypes.NewPath("b/f")))
}
