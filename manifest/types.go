// Package manifest implements the BFS manifest diff of spec.md §4.6: a
// layered breadth-first comparison of two content-addressed tree
// manifests that issues at most one batched prefetch per depth level per
// side, producing a stream of file-level DiffEntry values.
package manifest

import (
	"context"

	"github.com/rivermark/scmcore/scmtypes"
)

// TreeId is the content hash of a tree manifest node.
type TreeId [32]byte

// FileId is the content hash of a file's data, shared with
// scmtypes.ContentId's addressing scheme (spec.md §3: "A file id is
// content-addressed").
type FileId = scmtypes.ContentId

// EntryKind distinguishes the two things a named tree entry can be.
type EntryKind int

const (
	EntryLeaf EntryKind = iota
	EntryTree
)

// Entry is one manifest entry: Leaf(file_type, file_id) or Tree(tree_id)
// (spec.md §3).
type Entry struct {
	Kind     EntryKind
	FileType scmtypes.FileType // meaningful when Kind == EntryLeaf
	FileId   FileId            // meaningful when Kind == EntryLeaf
	TreeId   TreeId            // meaningful when Kind == EntryTree
}

// NamedEntry is one (name, Entry) pair as returned by a directory listing.
type NamedEntry struct {
	Name  string
	Entry Entry
}

// Store lists a tree's direct children and, best-effort, prefetches a
// batch of trees ahead of use. Listings MUST be returned in ascending
// name order (spec.md §4.6 invariant: "listings are sorted"). Prefetch
// failures must never be treated as fatal by callers — it exists purely
// to cut round trips, never to gate correctness.
type Store interface {
	List(ctx context.Context, id TreeId) ([]NamedEntry, error)
	Prefetch(ctx context.Context, ids []TreeId) error
}

// DirMatch is a directory matcher's verdict: Nothing prunes the subtree,
// Everything and Something both mean "descend" (spec.md §4.6).
type DirMatch int

const (
	Nothing DirMatch = iota
	Everything
	Something
)

// Matcher gates which paths participate in a diff.
type Matcher interface {
	MatchesDirectory(path scmtypes.Path) DirMatch
	MatchesFile(path scmtypes.Path) bool
}

// AlwaysMatcher admits every path.
type AlwaysMatcher struct{}

func (AlwaysMatcher) MatchesDirectory(scmtypes.Path) DirMatch { return Everything }
func (AlwaysMatcher) MatchesFile(scmtypes.Path) bool          { return true }

// FileMeta is a leaf's observable state for diffing purposes.
type FileMeta struct {
	FileType scmtypes.FileType
	FileId   FileId
}

// DiffKind distinguishes the three shapes a DiffEntry can take.
type DiffKind int

const (
	LeftOnly DiffKind = iota
	RightOnly
	Changed
)

// DiffEntry is one file-level difference produced by a BFSDiff (spec.md
// §4.6).
type DiffEntry struct {
	Path  scmtypes.Path
	Kind  DiffKind
	Left  *FileMeta // set for LeftOnly and Changed
	Right *FileMeta // set for RightOnly and Changed
}
