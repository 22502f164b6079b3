package manifest

import (
	"context"

	"github.com/rivermark/scmcore/scmtypes"
)

type side int

const (
	sideLeft side = iota
	sideRight
)

type directory struct {
	path scmtypes.Path
	id   TreeId
}

type diffItemKind int

const (
	itemSingle diffItemKind = iota
	itemChanged
)

// diffItem is either a directory present on only one side, or a pair of
// same-path directories whose contents differ (spec.md §4.6 DiffItem).
type diffItem struct {
	kind diffItemKind

	dir  directory // itemSingle
	side side      // itemSingle

	left  directory // itemChanged
	right directory // itemChanged
}

func (it diffItem) path() scmtypes.Path {
	if it.kind == itemSingle {
		return it.dir.path
	}
	return it.left.path
}

// BFSDiff walks two tree manifests breadth-first, layer by layer,
// prefetching each layer's directory contents from the correct store
// before descending into it. Construct with NewBFSDiff and drain with
// Next until it reports no more entries.
type BFSDiff struct {
	lstore  Store
	rstore  Store
	matcher Matcher

	output  []DiffEntry
	current []diffItem
	next    []diffItem
}

// NewBFSDiff seeds the traversal with the two roots, unless their ids are
// already equal (spec.md §4.6 step 1, §8 scenario 5: identical root hash
// produces an empty stream with zero fetches beyond the root).
func NewBFSDiff(leftRoot, rightRoot TreeId, lstore, rstore Store, matcher Matcher) *BFSDiff {
	b := &BFSDiff{lstore: lstore, rstore: rstore, matcher: matcher}
	if leftRoot != rightRoot {
		b.current = []diffItem{{
			kind:  itemChanged,
			left:  directory{id: leftRoot},
			right: directory{id: rightRoot},
		}}
	}
	return b
}

// Next returns the next diff entry, or ok == false once the traversal is
// exhausted. Entries within one depth layer are produced before the
// traversal advances to the next (spec.md §5 ordering guarantee).
func (b *BFSDiff) Next(ctx context.Context) (entry DiffEntry, ok bool, err error) {
	for len(b.output) == 0 {
		more, err := b.processNextItem(ctx)
		if err != nil {
			return DiffEntry{}, false, err
		}
		if !more {
			return DiffEntry{}, false, nil
		}
	}
	entry, b.output = b.output[0], b.output[1:]
	return entry, true, nil
}

func (b *BFSDiff) processNextItem(ctx context.Context) (bool, error) {
	if len(b.current) == 0 {
		b.prefetch(ctx)
		b.current, b.next = b.next, nil
	}
	if len(b.current) == 0 {
		return false, nil
	}

	item := b.current[0]
	b.current = b.current[1:]

	var (
		entries []DiffEntry
		err     error
	)
	if item.kind == itemSingle {
		entries, err = b.diffSingle(ctx, item.dir, item.side)
	} else {
		entries, err = b.diffChanged(ctx, item.left, item.right)
	}
	if err != nil {
		return false, err
	}
	b.output = append(b.output, entries...)
	return true, nil
}

// prefetch batches every directory queued for the next layer by which
// store it belongs to and issues at most one prefetch call per store.
// Failures are swallowed: prefetch is an optimization, never a
// correctness requirement (spec.md §4.6 invariant).
func (b *BFSDiff) prefetch(ctx context.Context) {
	var lids, rids []TreeId
	for _, it := range b.next {
		switch it.kind {
		case itemSingle:
			if it.side == sideLeft {
				lids = append(lids, it.dir.id)
			} else {
				rids = append(rids, it.dir.id)
			}
		case itemChanged:
			lids = append(lids, it.left.id)
			rids = append(rids, it.right.id)
		}
	}
	if len(lids) > 0 {
		_ = b.lstore.Prefetch(ctx, lids)
	}
	if len(rids) > 0 {
		_ = b.rstore.Prefetch(ctx, rids)
	}
}

func (b *BFSDiff) diffSingle(ctx context.Context, dir directory, s side) ([]DiffEntry, error) {
	store := b.lstore
	if s == sideRight {
		store = b.rstore
	}
	entries, err := store.List(ctx, dir.id)
	if err != nil {
		return nil, err
	}
	files, dirs := splitEntries(dir.path, entries)

	for _, d := range dirs {
		if b.matcher.MatchesDirectory(d.path) == Nothing {
			continue
		}
		b.next = append(b.next, diffItem{kind: itemSingle, dir: d, side: s})
	}

	var out []DiffEntry
	for _, f := range files {
		if !b.matcher.MatchesFile(f.path) {
			continue
		}
		meta := f.meta
		if s == sideLeft {
			out = append(out, DiffEntry{Path: f.path, Kind: LeftOnly, Left: &meta})
		} else {
			out = append(out, DiffEntry{Path: f.path, Kind: RightOnly, Right: &meta})
		}
	}
	return out, nil
}

func (b *BFSDiff) diffChanged(ctx context.Context, l, r directory) ([]DiffEntry, error) {
	lEntries, err := b.lstore.List(ctx, l.id)
	if err != nil {
		return nil, err
	}
	rEntries, err := b.rstore.List(ctx, r.id)
	if err != nil {
		return nil, err
	}

	lFiles, lDirs := splitEntries(l.path, lEntries)
	rFiles, rDirs := splitEntries(r.path, rEntries)

	b.next = append(b.next, b.diffDirs(lDirs, rDirs)...)
	return b.diffFiles(lFiles, rFiles), nil
}

type fileEntry struct {
	path scmtypes.Path
	meta FileMeta
}

func splitEntries(parent scmtypes.Path, entries []NamedEntry) ([]fileEntry, []directory) {
	var files []fileEntry
	var dirs []directory
	for _, e := range entries {
		p := parent.Join(scmtypes.NewPath(e.Name))
		switch e.Entry.Kind {
		case EntryLeaf:
			files = append(files, fileEntry{path: p, meta: FileMeta{FileType: e.Entry.FileType, FileId: e.Entry.FileId}})
		case EntryTree:
			dirs = append(dirs, directory{path: p, id: e.Entry.TreeId})
		}
	}
	return files, dirs
}

// diffFiles merge-joins two sorted file lists (spec.md §4.6 step 3,
// "Same path on both sides").
func (b *BFSDiff) diffFiles(l, r []fileEntry) []DiffEntry {
	var out []DiffEntry
	i, j := 0, 0
	for i < len(l) || j < len(r) {
		switch {
		case i < len(l) && (j >= len(r) || l[i].path.Compare(r[j].path) < 0):
			if b.matcher.MatchesFile(l[i].path) {
				meta := l[i].meta
				out = append(out, DiffEntry{Path: l[i].path, Kind: LeftOnly, Left: &meta})
			}
			i++
		case j < len(r) && (i >= len(l) || l[i].path.Compare(r[j].path) > 0):
			if b.matcher.MatchesFile(r[j].path) {
				meta := r[j].meta
				out = append(out, DiffEntry{Path: r[j].path, Kind: RightOnly, Right: &meta})
			}
			j++
		default:
			if l[i].meta != r[j].meta && b.matcher.MatchesFile(l[i].path) {
				lm, rm := l[i].meta, r[j].meta
				out = append(out, DiffEntry{Path: l[i].path, Kind: Changed, Left: &lm, Right: &rm})
			}
			i++
			j++
		}
	}
	return out
}

// diffDirs merge-joins two sorted directory lists, emitting a Single for
// each one-sided entry and a Changed for any same-path pair with
// differing ids (spec.md §4.6 step 3). Equal-id pairs are pruned: their
// subtrees are identical.
func (b *BFSDiff) diffDirs(l, r []directory) []diffItem {
	var out []diffItem
	add := func(it diffItem) {
		if b.matcher.MatchesDirectory(it.path()) != Nothing {
			out = append(out, it)
		}
	}
	i, j := 0, 0
	for i < len(l) || j < len(r) {
		switch {
		case i < len(l) && (j >= len(r) || l[i].path.Compare(r[j].path) < 0):
			add(diffItem{kind: itemSingle, dir: l[i], side: sideLeft})
			i++
		case j < len(r) && (i >= len(l) || l[i].path.Compare(r[j].path) > 0):
			add(diffItem{kind: itemSingle, dir: r[j], side: sideRight})
			j++
		default:
			if l[i].id != r[j].id {
				add(diffItem{kind: itemChanged, left: l[i], right: r[j]})
			}
			i++
			j++
		}
	}
	return out
}
