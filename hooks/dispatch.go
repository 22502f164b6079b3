package hooks

import (
	"context"

	"github.com/alitto/pond"
	"golang.org/x/sync/errgroup"

	"github.com/rivermark/scmcore/scmtypes"
)

// ChangesetWithId pairs a changeset with the id hooks are dispatched
// under (spec.md §4.4: "run_changesets_hooks_for_bookmark(ctx,
// changesets, bookmark, ...)").
type ChangesetWithId struct {
	Id        scmtypes.ChangesetId
	Changeset scmtypes.BonsaiChangeset
}

// RunBookmarkHooksForBookmark executes every bookmark hook attached to
// bookmark, direct or regex (spec.md §4.4).
func (m *Manager) RunBookmarkHooksForBookmark(ctx context.Context, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy, commitMessage string) ([]Result, error) {
	m.mu.RLock()
	names := m.hooksForBookmark(bookmark)
	tasks := make([]func(context.Context) Result, 0, len(names))
	for _, name := range names {
		reg, ok := m.bookmarkHooks[name]
		if !ok {
			continue
		}
		name, reg := name, reg
		tasks = append(tasks, func(ctx context.Context) Result {
			return m.runBookmarkHook(ctx, name, reg, toCs, bookmark, pushvars, crossRepoSource, pushAuthoredBy, commitMessage)
		})
	}
	m.mu.RUnlock()

	return m.runConcurrent(ctx, tasks)
}

func (m *Manager) runBookmarkHook(ctx context.Context, name string, reg registeredBookmarkHook, toCs scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte, crossRepoSource *scmtypes.RepositoryId, pushAuthoredBy, commitMessage string) Result {
	if reg.config.Bypass != nil && reg.config.Bypass.matches(commitMessage, pushvars) {
		return Result{HookName: name, Kind: "bookmark", Outcome: Accepted(), Bypassed: true, BypassInfo: reg.config.Bypass.reason()}
	}
	outcome, err := reg.fn(ctx, toCs, bookmark, pushvars, crossRepoSource, pushAuthoredBy)
	return finishResult(name, "bookmark", reg.config, outcome, err)
}

// RunChangesetsHooksForBookmark runs, for every (changeset × hook) pair,
// the changeset hook exactly once per changeset, and for file hooks one
// invocation per file change in that changeset (spec.md §4.4).
func (m *Manager) RunChangesetsHooksForBookmark(ctx context.Context, changesets []ChangesetWithId, bookmark string, pushvars map[string][]byte) ([]Result, error) {
	m.mu.RLock()
	names := m.hooksForBookmark(bookmark)
	var tasks []func(context.Context) Result

	for _, name := range names {
		if reg, ok := m.changesetHooks[name]; ok {
			name, reg := name, reg
			for _, cs := range changesets {
				cs := cs
				tasks = append(tasks, func(ctx context.Context) Result {
					return m.runChangesetHook(ctx, name, reg, cs, bookmark, pushvars)
				})
			}
		}
		if reg, ok := m.fileHooks[name]; ok {
			name, reg := name, reg
			for _, cs := range changesets {
				cs := cs
				cs.Changeset.FileChanges.Range(func(path scmtypes.Path, change scmtypes.FileChange) bool {
					path, change := path, change
					tasks = append(tasks, func(ctx context.Context) Result {
						return m.runFileHook(ctx, name, reg, path, change, cs.Id, bookmark, pushvars)
					})
					return true
				})
			}
		}
	}
	m.mu.RUnlock()

	return m.runConcurrent(ctx, tasks)
}

func (m *Manager) runChangesetHook(ctx context.Context, name string, reg registeredChangesetHook, cs ChangesetWithId, bookmark string, pushvars map[string][]byte) Result {
	if reg.config.Bypass != nil && reg.config.Bypass.matches(cs.Changeset.Message, pushvars) {
		return Result{HookName: name, Kind: "changeset", Outcome: Accepted(), Bypassed: true, BypassInfo: reg.config.Bypass.reason()}
	}
	outcome, err := reg.fn(ctx, cs.Changeset, cs.Id, bookmark, pushvars)
	return finishResult(name, "changeset", reg.config, outcome, err)
}

func (m *Manager) runFileHook(ctx context.Context, name string, reg registeredFileHook, path scmtypes.Path, change scmtypes.FileChange, csId scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte) Result {
	if reg.config.Bypass != nil && reg.config.Bypass.matches("", pushvars) {
		return Result{HookName: name, Kind: "file", Outcome: Accepted(), Bypassed: true, BypassInfo: reg.config.Bypass.reason()}
	}
	outcome, err := reg.fn(ctx, path, change, csId, bookmark, pushvars)
	return finishResult(name, "file", reg.config, outcome, err)
}

func finishResult(name, kind string, cfg Config, outcome Outcome, err error) Result {
	res := Result{HookName: name, Kind: kind, Outcome: outcome, Err: err}
	if err == nil && outcome.IsRejected() && cfg.LogOnly {
		res.LogOnly = true
		res.Outcome = Accepted()
	}
	return res
}

// runConcurrent launches every task unordered, bounding concurrency with
// a pond worker pool and surfacing the first error via errgroup while
// still collecting every outcome (spec.md §4.4: "the first error
// surfaces, but all outcomes are kept for logging"). Cancelling ctx
// aborts in-flight hooks.
func (m *Manager) runConcurrent(ctx context.Context, tasks []func(context.Context) Result) ([]Result, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	results := make([]Result, len(tasks))
	pool := pond.New(m.poolSize, 0, pond.MinWorkers(1))
	defer pool.StopAndWait()

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			done := make(chan struct{})
			pool.Submit(func() {
				defer close(done)
				results[i] = task(gctx)
			})
			select {
			case <-done:
				return results[i].Err
			case <-gctx.Done():
				results[i] = Result{Err: gctx.Err()}
				return gctx.Err()
			}
		})
	}
	err := g.Wait()
	return results, err
}
