// Package pathmover implements the cross-repo path translation described
// in spec.md §4.1: a pure function from a source path to zero or one
// destination paths, driven by a prefix-free map of path-prefix actions
// plus a default action.
package pathmover

import (
	"fmt"

	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

// PrefixActionKind distinguishes the three things a matched prefix can do.
type PrefixActionKind int

const (
	ActionChange PrefixActionKind = iota
	ActionRemovePrefix
	ActionDoNotSync
)

// PrefixActionSpec is one entry of a Mover's prefix_map: PrefixAction ∈
// {Change(newPrefix), RemovePrefix, DoNotSync}.
type PrefixActionSpec struct {
	Kind      PrefixActionKind
	NewPrefix scmtypes.Path // only meaningful when Kind == ActionChange
}

func (a PrefixActionSpec) String() string {
	switch a.Kind {
	case ActionChange:
		return fmt.Sprintf("Change(%q)", a.NewPrefix)
	case ActionRemovePrefix:
		return "RemovePrefix"
	case ActionDoNotSync:
		return "DoNotSync"
	default:
		return "Unknown"
	}
}

// DefaultActionKind distinguishes the three default behaviors.
type DefaultActionKind int

const (
	DefaultPrependPrefix DefaultActionKind = iota
	DefaultPreserve
	DefaultDoNotSync
)

// DefaultAction is the fallback applied when no prefix-map entry matches.
type DefaultAction struct {
	Kind   DefaultActionKind
	Prefix scmtypes.Path // only meaningful when Kind == DefaultPrependPrefix
}

// Mover translates a single source path to zero or one destination paths.
// Construction validates prefix-freedom of the supplied map; translation
// never fails except for the documented RemovePrefixWholePath case.
type Mover struct {
	trie    *prefixTrie
	keys    []scmtypes.Path
	def     DefaultAction
}

// PrefixMapEntry is one (key path -> action) pair supplied to NewMover.
type PrefixMapEntry struct {
	Key    scmtypes.Path
	Action PrefixActionSpec
}

// NewMover builds a Mover from a prefix_map and a default action. It fails
// with *scmerr.NonPrefixFreeMapError if any key in entries is a
// path-prefix of another key.
func NewMover(entries []PrefixMapEntry, def DefaultAction) (*Mover, error) {
	trie := newPrefixTrie()
	keys := make([]scmtypes.Path, 0, len(entries))
	for _, e := range entries {
		trie.insert(e.Key, e.Action)
		keys = append(keys, e.Key)
	}
	for i := 0; i < len(keys); i++ {
		for j := 0; j < len(keys); j++ {
			if i == j {
				continue
			}
			if keys[i].Equal(keys[j]) {
				continue
			}
			if keys[i].IsPrefixOf(keys[j]) {
				return nil, &scmerr.NonPrefixFreeMapError{P1: keys[i], P2: keys[j]}
			}
		}
	}
	return &Mover{trie: trie, keys: keys, def: def}, nil
}

// Move implements the contract of spec.md §4.1: find the longest matching
// map key (if any) and apply its action, else apply the default action.
// It returns (dest, true, nil) when the path should sync to dest,
// (zero-Path, false, nil) when it should not sync, and a non-nil error
// only for RemovePrefixWholePath.
func (m *Mover) Move(p scmtypes.Path) (scmtypes.Path, bool, error) {
	if action, key, ok := m.trie.longestMatch(p); ok {
		switch action.Kind {
		case ActionChange:
			return action.NewPrefix.Join(p.Suffix(key)), true, nil
		case ActionRemovePrefix:
			suffix := p.Suffix(key)
			if suffix.IsRoot() {
				err := &scmerr.RemovePrefixWholePathError{Path: p}
				return scmtypes.Path{}, false, &scmerr.PrefixActionFailureError{
					Action: action.String(), Path: p, Cause: err,
				}
			}
			return suffix, true, nil
		case ActionDoNotSync:
			return scmtypes.Path{}, false, nil
		}
	}
	switch m.def.Kind {
	case DefaultPrependPrefix:
		return m.def.Prefix.Join(p), true, nil
	case DefaultPreserve:
		return p, true, nil
	case DefaultDoNotSync:
		return scmtypes.Path{}, false, nil
	}
	return scmtypes.Path{}, false, nil
}

// MultiMover generalizes Mover to split one path into several
// destinations, as used by the commit rewriter (spec.md §4.5). A plain
// Mover is trivially a MultiMover that returns at most one path.
type MultiMover interface {
	// MultiMove returns every destination path p should be rewritten to;
	// an empty slice means "do not sync".
	MultiMove(p scmtypes.Path) ([]scmtypes.Path, error)
	// ConflictsWith reports whether p collides with any destination this
	// mover could produce, used by subtree-change validation.
	ConflictsWith(p scmtypes.Path) bool
}

// singleMultiMover adapts a Mover to the MultiMover interface.
type singleMultiMover struct {
	mover *Mover
}

// AsMultiMover wraps m so it can be used wherever a MultiMover is
// expected.
func (m *Mover) AsMultiMover() MultiMover {
	return &singleMultiMover{mover: m}
}

func (s *singleMultiMover) MultiMove(p scmtypes.Path) ([]scmtypes.Path, error) {
	dst, ok, err := s.mover.Move(p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []scmtypes.Path{dst}, nil
}

func (s *singleMultiMover) ConflictsWith(p scmtypes.Path) bool {
	dst, ok, err := s.mover.Move(p)
	return err == nil && ok && !dst.IsRoot()
}
