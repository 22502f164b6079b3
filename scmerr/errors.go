// Package scmerr collects the error taxonomy from spec.md §7: named kinds
// rather than one flat error type, wrapped with a context chain using
// github.com/pkg/errors the way the rest of the module names the
// operation that failed ("while executing hook X", "Error fetching
// successors: Y").
package scmerr

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rivermark/scmcore/scmtypes"
)

// Wrap attaches an operation-naming context frame to err, or returns nil
// if err is nil. Used at every package boundary so failures carry a
// readable chain instead of a single flat message.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// --- Configuration errors: raised at mover-factory time (§4.1, §7) ---

// NonPrefixFreeMapError reports that p1 is a path-prefix of p2 (or vice
// versa) in a mover's configured map, violating prefix-freedom.
type NonPrefixFreeMapError struct {
	P1, P2 scmtypes.Path
}

func (e *NonPrefixFreeMapError) Error() string {
	return fmt.Sprintf("non prefix free map: %q overlaps %q", e.P1, e.P2)
}

// SmallRepoNotFoundError reports that a CommitSyncConfig has no entry for
// the requested small repo id.
type SmallRepoNotFoundError struct {
	RepoId scmtypes.RepositoryId
}

func (e *SmallRepoNotFoundError) Error() string {
	return fmt.Sprintf("small repo not found: %d", e.RepoId)
}

// --- Translation errors: fatal to the current rewrite; do not retry (§4.1, §4.5, §7) ---

// RemovePrefixWholePathError reports that a RemovePrefix action consumed
// the entire path, leaving an empty suffix.
type RemovePrefixWholePathError struct {
	Path scmtypes.Path
}

func (e *RemovePrefixWholePathError) Error() string {
	return fmt.Sprintf("RemovePrefix would remove the whole path: %q", e.Path)
}

// PrefixActionFailureError wraps a failure applying a PrefixAction to a path.
type PrefixActionFailureError struct {
	Action string
	Path   scmtypes.Path
	Cause  error
}

func (e *PrefixActionFailureError) Error() string {
	return fmt.Sprintf("prefix action %s failed for path %q: %v", e.Action, e.Path, e.Cause)
}

func (e *PrefixActionFailureError) Unwrap() error {
	return e.Cause
}

// MissingRemappedCommitError reports that a source parent or copy_from
// commit has no entry in remapped_parents (§4.5 step 3, step 8).
type MissingRemappedCommitError struct {
	ChangesetId scmtypes.ChangesetId
}

func (e *MissingRemappedCommitError) Error() string {
	return fmt.Sprintf("missing remapped commit: %s", e.ChangesetId)
}

// MissingForcedParentError reports that force_first_parent named a
// changeset that is not among the rewritten parents (§4.5 step 8).
type MissingForcedParentError struct {
	ChangesetId scmtypes.ChangesetId
}

func (e *MissingForcedParentError) Error() string {
	return fmt.Sprintf("missing forced parent: %s", e.ChangesetId)
}

// --- Mapping-consistency errors: fatal; never auto-overwritten (§4.2, §7) ---

// InconsistentWorkingCopyEntryError reports that insert_equivalent_working_copy
// was asked to record a value that conflicts with an already-stored entry.
type InconsistentWorkingCopyEntryError struct {
	Expected, Actual *scmtypes.ChangesetId // nil means "no working copy"
}

func (e *InconsistentWorkingCopyEntryError) Error() string {
	return fmt.Sprintf("inconsistent working copy entry: expected %s, actual %s", fmtCsPtr(e.Expected), fmtCsPtr(e.Actual))
}

// InconsistentLargeRepoCommitVersionError reports that an add/add_bulk
// tried to associate a large-repo commit with a version different from
// the one already recorded for it.
type InconsistentLargeRepoCommitVersionError struct {
	Expected, Actual string
}

func (e *InconsistentLargeRepoCommitVersionError) Error() string {
	return fmt.Sprintf("inconsistent large repo commit version: expected %q, actual %q", e.Expected, e.Actual)
}

// InconsistentSourceRepoError reports that add/add_bulk tried to flip the
// recorded source_repo provenance of an existing mapping row (additive
// detail from SPEC_FULL.md §3.2).
type InconsistentSourceRepoError struct {
	Expected, Actual string
}

func (e *InconsistentSourceRepoError) Error() string {
	return fmt.Sprintf("inconsistent source repo: expected %q, actual %q", e.Expected, e.Actual)
}

func fmtCsPtr(c *scmtypes.ChangesetId) string {
	if c == nil {
		return "<none>"
	}
	return c.String()
}

// --- Storage errors (§7) ---

// ErrNoRowsExpected is returned by reads that must always produce a
// count, e.g. count_further_bookmark_log_entries, when the underlying
// query returns no rows at all (spec.md §4.3).
var ErrNoRowsExpected = errors.New("storage: expected a row, found none")

// --- Protocol errors (§7) ---

// Bundle2InvalidError reports a malformed bundle2 stream on the wire.
type Bundle2InvalidError struct {
	Reason string
}

func (e *Bundle2InvalidError) Error() string {
	return fmt.Sprintf("bundle2 invalid: %s", e.Reason)
}

// UnconsumedDataError reports trailing bytes left after a wire command
// was fully parsed.
type UnconsumedDataError struct {
	Tail []byte
}

func (e *UnconsumedDataError) Error() string {
	return fmt.Sprintf("unconsumed data: %d bytes", len(e.Tail))
}
