package hooks

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivermark/scmcore/scmtypes"
)

func csid(b byte) scmtypes.ChangesetId {
	var id scmtypes.ChangesetId
	id[0] = b
	return id
}

func TestRunBookmarkHooksForBookmark_DirectAndRegex(t *testing.T) {
	m := NewManager(4, nil)

	var directCalled, regexCalled bool
	m.RegisterBookmarkHook("direct", func(ctx context.Context, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy string) (Outcome, error) {
		directCalled = true
		return Accepted(), nil
	}, Config{})
	m.RegisterBookmarkHook("regexy", func(ctx context.Context, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy string) (Outcome, error) {
		regexCalled = true
		return Accepted(), nil
	}, Config{})

	m.SetHooksForBookmark(Exact("master"), []string{"direct"})
	m.SetHooksForBookmark(Pattern(regexp.MustCompile(`^releases/`)), []string{"regexy"})

	results, err := m.RunBookmarkHooksForBookmark(context.Background(), csid(1), "releases/v1", nil, nil, "", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, regexCalled)
	assert.False(t, directCalled)
	assert.True(t, results[0].Outcome.Accepted)
}

func TestRunBookmarkHooksForBookmark_CommitMessageBypass(t *testing.T) {
	m := NewManager(4, nil)
	called := false
	m.RegisterBookmarkHook("h", func(ctx context.Context, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy string) (Outcome, error) {
		called = true
		return Rejected("would reject"), nil
	}, Config{Bypass: CommitMessageBypass{Substring: "SKIP_HOOKS"}})
	m.SetHooksForBookmark(Exact("master"), []string{"h"})

	results, err := m.RunBookmarkHooksForBookmark(context.Background(), csid(1), "master", nil, nil, "", "commit with SKIP_HOOKS marker")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, called)
	assert.True(t, results[0].Bypassed)
	assert.True(t, results[0].Outcome.Accepted)
}

func TestRunBookmarkHooksForBookmark_LogOnlyConvertsRejection(t *testing.T) {
	m := NewManager(4, nil)
	m.RegisterBookmarkHook("h", func(ctx context.Context, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy string) (Outcome, error) {
		return Rejected("policy violation"), nil
	}, Config{LogOnly: true})
	m.SetHooksForBookmark(Exact("master"), []string{"h"})

	results, err := m.RunBookmarkHooksForBookmark(context.Background(), csid(1), "master", nil, nil, "", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Outcome.Accepted)
	assert.True(t, results[0].LogOnly)
}

func TestRunBookmarkHooksForBookmark_ErrorSurfacesButAllOutcomesKept(t *testing.T) {
	m := NewManager(4, nil)
	m.RegisterBookmarkHook("ok", func(ctx context.Context, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy string) (Outcome, error) {
		return Accepted(), nil
	}, Config{})
	m.RegisterBookmarkHook("broken", func(ctx context.Context, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy string) (Outcome, error) {
		return Outcome{}, errors.New("hook body panicked internally")
	}, Config{})
	m.SetHooksForBookmark(Exact("master"), []string{"ok", "broken"})

	results, err := m.RunBookmarkHooksForBookmark(context.Background(), csid(1), "master", nil, nil, "", "")
	require.Error(t, err)
	assert.Len(t, results, 2)
}

func TestRunChangesetsHooksForBookmark_FileHookPerFileChange(t *testing.T) {
	m := NewManager(4, nil)
	var fileCalls int
	m.RegisterFileHook("f", func(ctx context.Context, path scmtypes.Path, change scmtypes.FileChange, csId scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte) (Outcome, error) {
		fileCalls++
		return Accepted(), nil
	}, Config{})
	m.SetHooksForBookmark(Exact("master"), []string{"f"})

	cs := scmtypes.NewBonsaiChangeset()
	cs.FileChanges.Set(scmtypes.NewPath("a/b"), scmtypes.Deletion{})
	cs.FileChanges.Set(scmtypes.NewPath("a/c"), scmtypes.Deletion{})

	results, err := m.RunChangesetsHooksForBookmark(context.Background(), []ChangesetWithId{{Id: csid(1), Changeset: *cs}}, "master", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fileCalls)
	assert.Len(t, results, 2)
}
