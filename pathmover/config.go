package pathmover

import (
	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

// Direction selects which way a Mover built from a CommitSyncConfig
// translates paths.
type Direction int

const (
	SmallToLarge Direction = iota
	LargeToSmall
)

// SmallRepoConfig is one small repo's half of a CommitSyncConfig
// (spec.md §3): a default action plus a prefix-free small-side-prefix ->
// large-side-prefix map.
type SmallRepoConfig struct {
	DefaultAction  DefaultAction
	Map            []SmallRepoMapEntry
	BookmarkPrefix string
}

// SmallRepoMapEntry is one small-side-prefix -> large-side-prefix pair.
type SmallRepoMapEntry struct {
	SmallPrefix scmtypes.Path
	LargePrefix scmtypes.Path
}

// CommitSyncConfig is the megarepo federation configuration described in
// spec.md §3.
type CommitSyncConfig struct {
	LargeRepoId               scmtypes.RepositoryId
	SmallRepos                map[scmtypes.RepositoryId]SmallRepoConfig
	CommonPushrebaseBookmarks []string
	Direction                 Direction
}

// NewMoverFromConfig builds the Mover for one small repo in one direction,
// implementing spec.md §4.1's "reverse direction" construction:
//
// small->large: each map entry becomes Change(largePrefix); default
// carries over unchanged.
//
// large->small: each map entry is inverted to Change(smallPrefix) keyed
// by the large prefix. Large-side prefixes used by a sibling small repo's
// PrependPrefix default are always added as DoNotSync (a concrete single
// prefix can always be named for PrependPrefix). Large-side prefixes from
// a sibling's explicit map are added as DoNotSync only when this repo's
// own default is not Preserve — Preserve already acts as an intentional
// catch-all for paths multiple small repos legitimately share (see
// DESIGN.md's resolution of this spec.md §9 open area). If this repo's
// default was PrependPrefix(p), the reverse default becomes DoNotSync
// with an explicit p -> RemovePrefix entry; if Preserve, the reverse
// default stays Preserve; if DoNotSync, it stays DoNotSync.
func NewMoverFromConfig(cfg *CommitSyncConfig, smallRepoId scmtypes.RepositoryId) (*Mover, error) {
	small, ok := cfg.SmallRepos[smallRepoId]
	if !ok {
		return nil, &scmerr.SmallRepoNotFoundError{RepoId: smallRepoId}
	}

	if cfg.Direction == SmallToLarge {
		entries := make([]PrefixMapEntry, 0, len(small.Map))
		for _, e := range small.Map {
			entries = append(entries, PrefixMapEntry{
				Key:    e.SmallPrefix,
				Action: PrefixActionSpec{Kind: ActionChange, NewPrefix: e.LargePrefix},
			})
		}
		return NewMover(entries, small.DefaultAction)
	}

	entries := make([]PrefixMapEntry, 0, len(small.Map)+2)
	ownLarge := map[string]bool{}
	for _, e := range small.Map {
		entries = append(entries, PrefixMapEntry{
			Key:    e.LargePrefix,
			Action: PrefixActionSpec{Kind: ActionChange, NewPrefix: e.SmallPrefix},
		})
		ownLarge[e.LargePrefix.String()] = true
	}

	var reverseDefault DefaultAction
	switch small.DefaultAction.Kind {
	case DefaultPrependPrefix:
		reverseDefault = DefaultAction{Kind: DefaultDoNotSync}
		p := small.DefaultAction.Prefix
		if !ownLarge[p.String()] {
			entries = append(entries, PrefixMapEntry{
				Key:    p,
				Action: PrefixActionSpec{Kind: ActionRemovePrefix},
			})
			ownLarge[p.String()] = true
		}
	case DefaultPreserve:
		reverseDefault = DefaultAction{Kind: DefaultPreserve}
	case DefaultDoNotSync:
		reverseDefault = DefaultAction{Kind: DefaultDoNotSync}
	}

	for siblingId, sibling := range cfg.SmallRepos {
		if siblingId == smallRepoId {
			continue
		}
		if small.DefaultAction.Kind != DefaultPreserve {
			for _, e := range sibling.Map {
				key := e.LargePrefix.String()
				if ownLarge[key] {
					continue
				}
				entries = append(entries, PrefixMapEntry{
					Key:    e.LargePrefix,
					Action: PrefixActionSpec{Kind: ActionDoNotSync},
				})
				ownLarge[key] = true
			}
		}
		if sibling.DefaultAction.Kind == DefaultPrependPrefix {
			key := sibling.DefaultAction.Prefix.String()
			if !ownLarge[key] {
				entries = append(entries, PrefixMapEntry{
					Key:    sibling.DefaultAction.Prefix,
					Action: PrefixActionSpec{Kind: ActionDoNotSync},
				})
				ownLarge[key] = true
			}
		}
	}

	return NewMover(entries, reverseDefault)
}
