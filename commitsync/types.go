// Package commitsync implements the synced-commit mapping store of
// spec.md §4.2: a durable, transactional record of bidirectional commit
// mappings and working-copy equivalences, with a read-through coalescer
// and replica-then-primary fallback reads.
package commitsync

import "github.com/rivermark/scmcore/scmtypes"

// SourceRepo records which side of a mapping a row was produced from.
type SourceRepo int

const (
	SourceUnknown SourceRepo = iota
	SourceLarge
	SourceSmall
)

func (s SourceRepo) String() string {
	switch s {
	case SourceLarge:
		return "large"
	case SourceSmall:
		return "small"
	default:
		return ""
	}
}

func parseSourceRepo(s string) SourceRepo {
	switch s {
	case "large":
		return SourceLarge
	case "small":
		return SourceSmall
	default:
		return SourceUnknown
	}
}

// MappingEntry is one row of the synced_commit_mapping table (spec.md §3/§6).
type MappingEntry struct {
	LargeRepoId scmtypes.RepositoryId
	LargeBcsId  scmtypes.ChangesetId
	SmallRepoId scmtypes.RepositoryId
	SmallBcsId  scmtypes.ChangesetId
	VersionName *string
	SourceRepo  SourceRepo
}

// FetchedEntry is what get_many returns per requested id: the mapped
// commit plus whatever version/provenance metadata was recorded.
// SmallRepoId is only populated by GetAllVersionsForLargeBcsId, which
// fans across every small repo a large commit has been synced to; every
// other caller already knows the target repo from its own request and
// leaves it zero.
type FetchedEntry struct {
	ChangesetId scmtypes.ChangesetId
	SmallRepoId scmtypes.RepositoryId
	VersionName *string
	SourceRepo  SourceRepo
}

// WorkingCopyEquivalenceEntry is one row of synced_working_copy_equivalence.
// SmallBcsId == nil means "no matching working copy" (spec.md §3).
type WorkingCopyEquivalenceEntry struct {
	LargeRepoId scmtypes.RepositoryId
	LargeBcsId  scmtypes.ChangesetId
	SmallRepoId scmtypes.RepositoryId
	SmallBcsId  *scmtypes.ChangesetId
	VersionName *string
}

// WCEKind distinguishes the two non-absent outcomes of
// get_equivalent_working_copy.
type WCEKind int

const (
	WorkingCopy WCEKind = iota
	NoWorkingCopy
)

// WorkingCopyEquivalence is the result of get_equivalent_working_copy
// (spec.md §4.2): WorkingCopy(changeset_id, version_name),
// NoWorkingCopy(version_name), or absent (nil *WorkingCopyEquivalence).
type WorkingCopyEquivalence struct {
	Kind        WCEKind
	ChangesetId scmtypes.ChangesetId // only set when Kind == WorkingCopy
	VersionName *string
}
