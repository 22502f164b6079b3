package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivermark/scmcore/bookmarks"
	"github.com/rivermark/scmcore/commitsync"
	"github.com/rivermark/scmcore/scmtypes"
)

func csid(b byte) scmtypes.ChangesetId {
	var id scmtypes.ChangesetId
	id[0] = b
	return id
}

func TestWriteHeader(t *testing.T) {
	var buf strings.Builder
	j := New("")
	j.SetWriter(&buf)

	require.NoError(t, j.WriteHeader())
	assert.Contains(t, buf.String(), "@journal@ @opened@")
}

func TestWriteBookmarkLogEntry(t *testing.T) {
	var buf strings.Builder
	j := New("")
	j.SetWriter(&buf)

	to := csid(1)
	entry := bookmarks.LogEntry{
		Id:            7,
		RepoId:        1,
		Name:          "main",
		ToChangesetId: &to,
		Reason:        bookmarks.Pushrebase,
		Timestamp:     time.Unix(1700000000, 0),
	}
	require.NoError(t, j.WriteBookmarkLogEntry(entry))

	line := buf.String()
	assert.Contains(t, line, "@bookmark_move@")
	assert.Contains(t, line, "@main@")
	assert.Contains(t, line, "pushrebase")
	assert.Contains(t, line, to.String())
}

func TestWriteMappingInsert(t *testing.T) {
	var buf strings.Builder
	j := New("")
	j.SetWriter(&buf)

	version := "v1"
	entry := commitsync.MappingEntry{
		LargeRepoId: 1,
		LargeBcsId:  csid(1),
		SmallRepoId: 2,
		SmallBcsId:  csid(2),
		VersionName: &version,
		SourceRepo:  commitsync.SourceLarge,
	}
	require.NoError(t, j.WriteMappingInsert(entry))

	line := buf.String()
	assert.Contains(t, line, "@mapping_insert@")
	assert.Contains(t, line, "v1")
	assert.Contains(t, line, "large")
}

func TestWriteWorkingCopyEquivalenceInsertNoWorkingCopy(t *testing.T) {
	var buf strings.Builder
	j := New("")
	j.SetWriter(&buf)

	entry := commitsync.WorkingCopyEquivalenceEntry{
		LargeRepoId: 1,
		LargeBcsId:  csid(1),
		SmallRepoId: 2,
		SmallBcsId:  nil,
	}
	require.NoError(t, j.WriteWorkingCopyEquivalenceInsert(entry))

	assert.Contains(t, buf.String(), "<none>")
}

func TestCreateJournalWritesToFile(t *testing.T) {
	path := t.TempDir() + "/audit.journal"
	j := New(path)
	require.NoError(t, j.CreateJournal())
	require.NoError(t, j.WriteHeader())
}
