package scmtypes

import (
	"sort"
	"time"
)

// FileChangeEntry is one (path, change) pair of an ordered file-change map.
type FileChangeEntry struct {
	Path   Path
	Change FileChange
}

// FileChanges is the ordered map Path -> FileChange described in spec.md
// §3. Ordering is significant: the rewriter (§4.5) and the wire encoders
// must produce deterministic, path-sorted output for rewrite idempotence
// (spec.md §8).
type FileChanges struct {
	entries []FileChangeEntry
}

// NewFileChanges builds an empty ordered file-change map.
func NewFileChanges() *FileChanges {
	return &FileChanges{}
}

// Set inserts or replaces the change at path, keeping entries sorted.
func (fc *FileChanges) Set(path Path, change FileChange) {
	i := fc.search(path)
	if i < len(fc.entries) && fc.entries[i].Path.Equal(path) {
		fc.entries[i].Change = change
		return
	}
	fc.entries = append(fc.entries, FileChangeEntry{})
	copy(fc.entries[i+1:], fc.entries[i:])
	fc.entries[i] = FileChangeEntry{Path: path, Change: change}
}

// Get returns the change recorded at path, if any.
func (fc *FileChanges) Get(path Path) (FileChange, bool) {
	i := fc.search(path)
	if i < len(fc.entries) && fc.entries[i].Path.Equal(path) {
		return fc.entries[i].Change, true
	}
	return nil, false
}

// Delete removes any entry at path.
func (fc *FileChanges) Delete(path Path) {
	i := fc.search(path)
	if i < len(fc.entries) && fc.entries[i].Path.Equal(path) {
		fc.entries = append(fc.entries[:i], fc.entries[i+1:]...)
	}
}

// Len returns the number of entries.
func (fc *FileChanges) Len() int {
	return len(fc.entries)
}

// Range iterates entries in path order. Returning false from fn stops
// iteration early.
func (fc *FileChanges) Range(fn func(path Path, change FileChange) bool) {
	for _, e := range fc.entries {
		if !fn(e.Path, e.Change) {
			return
		}
	}
}

// Entries returns a copy of the ordered entries.
func (fc *FileChanges) Entries() []FileChangeEntry {
	out := make([]FileChangeEntry, len(fc.entries))
	copy(out, fc.entries)
	return out
}

func (fc *FileChanges) search(path Path) int {
	return sort.Search(len(fc.entries), func(i int) bool {
		return fc.entries[i].Path.Compare(path) >= 0
	})
}

// SubtreeChange describes a subtree-level operation (grafting a whole
// directory from another commit) that the commit rewriter must either
// translate through the mover or strip with a lossy-conversion marker
// (spec.md §4.5 step 1).
type SubtreeChange struct {
	Path              Path // destination path of the subtree in this commit
	SourcePath        Path
	SourceChangesetId ChangesetId
}

// BonsaiChangeset is the content-addressed, language-neutral commit
// representation described in spec.md §3. It is used both as the
// immutable record fetched from storage and as the mutable working value
// the commit rewriter (§4.5) builds up — Go has no separate "Mut" type and
// there is no freeze step: callers that need an immutable view simply stop
// mutating it.
type BonsaiChangeset struct {
	Parents         []ChangesetId
	FileChanges     *FileChanges
	Author          string
	Date            time.Time
	Committer       *string
	CommitterDate   *time.Time
	Message         string
	HgExtra         map[string][]byte
	GitExtraHeaders map[string][]byte
	SubtreeChanges  []SubtreeChange
}

// NewBonsaiChangeset returns an empty changeset ready for mutation.
func NewBonsaiChangeset() *BonsaiChangeset {
	return &BonsaiChangeset{
		FileChanges: NewFileChanges(),
		HgExtra:     map[string][]byte{},
	}
}

// Clone returns a deep-enough copy for the rewriter to mutate without
// aliasing the source changeset's slices and maps.
func (b *BonsaiChangeset) Clone() *BonsaiChangeset {
	out := &BonsaiChangeset{
		Parents:       append([]ChangesetId(nil), b.Parents...),
		FileChanges:   NewFileChanges(),
		Author:        b.Author,
		Date:          b.Date,
		CommitterDate: b.CommitterDate,
		Message:       b.Message,
		HgExtra:       make(map[string][]byte, len(b.HgExtra)),
	}
	if b.Committer != nil {
		c := *b.Committer
		out.Committer = &c
	}
	b.FileChanges.Range(func(p Path, c FileChange) bool {
		out.FileChanges.Set(p, c)
		return true
	})
	for k, v := range b.HgExtra {
		out.HgExtra[k] = append([]byte(nil), v...)
	}
	if b.GitExtraHeaders != nil {
		out.GitExtraHeaders = make(map[string][]byte, len(b.GitExtraHeaders))
		for k, v := range b.GitExtraHeaders {
			out.GitExtraHeaders[k] = append([]byte(nil), v...)
		}
	}
	out.SubtreeChanges = append([]SubtreeChange(nil), b.SubtreeChanges...)
	return out
}

// IsMerge reports whether the changeset has more than one parent.
func (b *BonsaiChangeset) IsMerge() bool {
	return len(b.Parents) > 1
}
