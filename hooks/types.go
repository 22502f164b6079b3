// Package hooks implements the three-kind hook dispatch of spec.md §4.4:
// bookmark hooks run once per bookmark move, changeset hooks once per
// affected commit, file hooks once per changed file. Concurrency is
// bounded by an alitto/pond worker pool and fanned out with
// golang.org/x/sync/errgroup so the first hook-body error surfaces while
// every outcome is still collected for logging.
package hooks

import (
	"bytes"
	"context"
	"strings"

	"github.com/rivermark/scmcore/scmtypes"
)

// Outcome is a hook's verdict — not an error (spec.md §4.4, §7).
type Outcome struct {
	Accepted bool
	Info     string // populated when Accepted is false
}

func Accepted() Outcome            { return Outcome{Accepted: true} }
func Rejected(info string) Outcome { return Outcome{Accepted: false, Info: info} }
func (o Outcome) IsRejected() bool  { return !o.Accepted }

// BookmarkHookFunc runs once per bookmark move.
type BookmarkHookFunc func(ctx context.Context, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy string) (Outcome, error)

// ChangesetHookFunc runs once per affected commit.
type ChangesetHookFunc func(ctx context.Context, cs scmtypes.BonsaiChangeset, csId scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte) (Outcome, error)

// FileHookFunc runs once per changed file in a commit.
type FileHookFunc func(ctx context.Context, path scmtypes.Path, change scmtypes.FileChange, csId scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte) (Outcome, error)

// Bypass is the hook bypass vocabulary of spec.md §4.4/§6: a commit
// message substring, or a pushvar name/value pair.
type Bypass interface {
	matches(commitMessage string, pushvars map[string][]byte) bool
	reason() string
}

// CommitMessageBypass skips the hook when the commit message contains s.
type CommitMessageBypass struct{ Substring string }

func (b CommitMessageBypass) matches(msg string, _ map[string][]byte) bool {
	return strings.Contains(msg, b.Substring)
}
func (b CommitMessageBypass) reason() string { return "commit_message:" + b.Substring }

// PushvarBypass skips the hook when pushvars[Name] == Value.
type PushvarBypass struct {
	Name  string
	Value []byte
}

func (b PushvarBypass) matches(_ string, pushvars map[string][]byte) bool {
	v, ok := pushvars[b.Name]
	return ok && bytes.Equal(v, b.Value)
}
func (b PushvarBypass) reason() string { return "pushvar:" + b.Name }

// Config is a hook's attached configuration (spec.md §4.4).
type Config struct {
	Bypass  Bypass
	LogOnly bool
}

// Result is one hook execution's outcome, collected for logging
// regardless of whether it was the error that short-circuited dispatch.
type Result struct {
	HookName   string
	Kind       string // "bookmark", "changeset", "file"
	Outcome    Outcome
	Bypassed   bool
	BypassInfo string
	LogOnly    bool // Outcome was forced to Accepted because of log_only
	Err        error
}
