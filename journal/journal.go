// Package journal is the append-only audit trail for bookmark moves and
// synced-commit mapping inserts (SPEC_FULL.md §2 "repurposed as the
// audit/event journal for bookmark log + mapping inserts"). It keeps the
// teacher journal's shape — a Journal wraps an io.Writer, CreateJournal
// opens a file, WriteHeader stamps a banner, and one Write* method per
// record kind emits a single tagged line — generalized from Perforce's
// db.rev/db.desc journal records into records for this domain's two
// append-only logs (spec.md §4.2, §4.3).
package journal

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rivermark/scmcore/bookmarks"
	"github.com/rivermark/scmcore/commitsync"
	"github.com/rivermark/scmcore/scmtypes"
)

// Journal appends one line per event to w. Safe for a single writer goroutine;
// callers that fan writes in from multiple goroutines must serialize them,
// the same contract the teacher's Journal placed on its caller.
type Journal struct {
	filename string
	w        io.Writer
}

func New(filename string) *Journal {
	return &Journal{filename: filename}
}

// CreateJournal opens (truncating) the configured filename for writing.
func (j *Journal) CreateJournal() error {
	f, err := os.Create(j.filename)
	if err != nil {
		return fmt.Errorf("journal: creating %s: %w", j.filename, err)
	}
	j.w = f
	return nil
}

// SetWriter points the journal at an arbitrary writer, bypassing the file
// open in CreateJournal — used by tests and by in-process replay.
func (j *Journal) SetWriter(w io.Writer) {
	j.w = w
}

// WriteHeader stamps a banner line identifying the journal format, the way
// the teacher's WriteHeader wrote the depot/domain/user bootstrap records
// before any change records.
func (j *Journal) WriteHeader() error {
	_, err := fmt.Fprintf(j.w, "@scmcore@ 1 @journal@ @opened@ %d\n", time.Now().UTC().Unix())
	return err
}

// WriteBookmarkLogEntry appends one bookmarks_update_log row (spec.md §4.3).
func (j *Journal) WriteBookmarkLogEntry(e bookmarks.LogEntry) error {
	_, err := fmt.Fprintf(j.w, "@scmcore@ 1 @bookmark_move@ %d @%s@ %d @%s@ @%s@ %s @%s@\n",
		e.Id, e.Name, e.RepoId, fmtCs(e.FromChangesetId), fmtCs(e.ToChangesetId),
		e.Reason.String(), e.Timestamp.UTC().Format(time.RFC3339))
	return err
}

// WriteMappingInsert appends one synced_commit_mapping row (spec.md §4.2).
func (j *Journal) WriteMappingInsert(e commitsync.MappingEntry) error {
	version := ""
	if e.VersionName != nil {
		version = *e.VersionName
	}
	_, err := fmt.Fprintf(j.w, "@scmcore@ 1 @mapping_insert@ %d @%s@ %d @%s@ @%s@ %s\n",
		e.LargeRepoId, e.LargeBcsId.String(), e.SmallRepoId, e.SmallBcsId.String(),
		version, e.SourceRepo.String())
	return err
}

// WriteWorkingCopyEquivalenceInsert appends one
// synced_working_copy_equivalence row (spec.md §4.2).
func (j *Journal) WriteWorkingCopyEquivalenceInsert(e commitsync.WorkingCopyEquivalenceEntry) error {
	version := ""
	if e.VersionName != nil {
		version = *e.VersionName
	}
	small := "<none>"
	if e.SmallBcsId != nil {
		small = e.SmallBcsId.String()
	}
	_, err := fmt.Fprintf(j.w, "@scmcore@ 1 @wce_insert@ %d @%s@ %d @%s@ @%s@\n",
		e.LargeRepoId, e.LargeBcsId.String(), e.SmallRepoId, small, version)
	return err
}

func fmtCs(c *scmtypes.ChangesetId) string {
	if c == nil {
		return "<none>"
	}
	return c.String()
}
