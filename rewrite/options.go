// Package rewrite implements the commit rewriter of spec.md §4.5: given a
// source bonsai changeset and a path-mover, produce the rewritten
// changeset suitable for insertion into the target repo, or nil if the
// rewrite collapsed the commit to nothing.
package rewrite

import "github.com/rivermark/scmcore/scmtypes"

// EmptyCommitPolicy governs what happens to a commit that rewrites to no
// file changes (spec.md §4.5 rewrite_opts).
type EmptyCommitPolicy int

const (
	Keep EmptyCommitPolicy = iota
	Discard
)

// ExtrasStripPolicy governs strip_commit_extras.
type ExtrasStripPolicy int

const (
	StripNone ExtrasStripPolicy = iota
	StripHg
	StripGit
)

// Options bundles rewrite_opts (spec.md §4.5).
type Options struct {
	CommitRewrittenToEmpty                 EmptyCommitPolicy
	EmptyCommitFromLargeRepo               EmptyCommitPolicy
	StripCommitExtras                      ExtrasStripPolicy
	AddHgExtras                            map[string][]byte
	ShouldSetCommitterInfoToAuthorIfEmpty  bool
}

// FileChangeFilter is an ordered predicate applied during the rewrite
// (spec.md §4.5 inputs: "file_change_filters"). AppliesToMultiMover
// gates whether the filter runs during the multi-mover rewrite step.
// Rewrite does not read AppliesToImplicitDeletes: the renamedImplicitDeletes
// it is given are appended without filtering.
type FileChangeFilter struct {
	AppliesToMultiMover      bool
	AppliesToImplicitDeletes bool
	Keep                     func(path scmtypes.Path, change scmtypes.FileChange) bool
}
