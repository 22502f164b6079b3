// Package bookmarks implements the current-state bookmark store and its
// append-only update log described in spec.md §4.3: CAS-guarded
// transactions, paginated state listing, log-skip queries, and a
// pollable subscription that folds new log rows into an in-memory
// snapshot.
package bookmarks

import (
	"time"

	"github.com/rivermark/scmcore/scmtypes"
)

// Kind is the hg_kind of a bookmark row (spec.md §3).
type Kind int

const (
	Scratch Kind = iota
	PullDefaultPublishing
	PublishingNotPullDefault
)

func (k Kind) String() string {
	switch k {
	case Scratch:
		return "scratch"
	case PullDefaultPublishing:
		return "pull_default_publishing"
	case PublishingNotPullDefault:
		return "publishing_not_pull_default"
	default:
		return "unknown"
	}
}

func parseKind(s string) Kind {
	switch s {
	case "pull_default_publishing":
		return PullDefaultPublishing
	case "publishing_not_pull_default":
		return PublishingNotPullDefault
	default:
		return Scratch
	}
}

// Reason is the bookmark-update-log row reason (spec.md §3).
type Reason int

const (
	Pushrebase Reason = iota
	Push
	Blobimport
	ManualMove
	TestMove
	Backsyncer
	XRepoSync
	ApiRequest
)

var reasonNames = [...]string{
	"pushrebase", "push", "blobimport", "manual_move",
	"test_move", "backsyncer", "xrepo_sync", "api_request",
}

func (r Reason) String() string {
	if int(r) < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

func parseReason(s string) Reason {
	for i, name := range reasonNames {
		if name == s {
			return Reason(i)
		}
	}
	return Push
}

// Freshness selects which SQL role a read is served from (spec.md §4.3).
type Freshness int

const (
	MaybeStale Freshness = iota
	MostRecent
)

// Bookmark is a bookmark row (spec.md §3).
type Bookmark struct {
	RepoId      scmtypes.RepositoryId
	Name        string
	HgKind      Kind
	ChangesetId scmtypes.ChangesetId
	LogId       *int64
}

// LogEntry is a bookmark update log row (spec.md §3). ToChangesetId ==
// nil means the entry recorded a deletion; FromChangesetId == nil means
// creation.
type LogEntry struct {
	Id              int64
	RepoId          scmtypes.RepositoryId
	Name            string
	ToChangesetId   *scmtypes.ChangesetId
	FromChangesetId *scmtypes.ChangesetId
	Reason          Reason
	Timestamp       time.Time
}

// Pagination selects where a list() call resumes.
type Pagination struct {
	After string // empty means FromStart
}

// FromStart is the zero-value Pagination cursor.
var FromStart = Pagination{}

// After returns a Pagination cursor that resumes strictly after name.
func After(name string) Pagination {
	return Pagination{After: name}
}
