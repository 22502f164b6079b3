package hooks

import (
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
)

type registeredBookmarkHook struct {
	fn     BookmarkHookFunc
	config Config
}

type registeredChangesetHook struct {
	fn     ChangesetHookFunc
	config Config
}

type registeredFileHook struct {
	fn     FileHookFunc
	config Config
}

// BookmarkOrRegex names either an exact bookmark or a regex pattern used
// by set_hooks_for_bookmark (spec.md §4.4).
type BookmarkOrRegex struct {
	Exact string
	Regex *regexp.Regexp
}

// Exact builds an exact-name binding.
func Exact(name string) BookmarkOrRegex { return BookmarkOrRegex{Exact: name} }

// Pattern builds a regex binding.
func Pattern(re *regexp.Regexp) BookmarkOrRegex { return BookmarkOrRegex{Regex: re} }

func (b BookmarkOrRegex) matches(bookmark string) bool {
	if b.Regex != nil {
		return b.Regex.MatchString(bookmark)
	}
	return b.Exact == bookmark
}

type binding struct {
	pattern BookmarkOrRegex
	hooks   []string
}

// Manager registers hooks of all three kinds, binds them to bookmarks,
// and dispatches them concurrently (spec.md §4.4).
type Manager struct {
	mu             sync.RWMutex
	bookmarkHooks  map[string]registeredBookmarkHook
	changesetHooks map[string]registeredChangesetHook
	fileHooks      map[string]registeredFileHook
	bindings       []binding
	poolSize       int
	log            *logrus.Entry
}

// NewManager constructs an empty Manager. poolSize bounds concurrent
// hook-body executions per dispatch call.
func NewManager(poolSize int, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	if poolSize <= 0 {
		poolSize = 8
	}
	return &Manager{
		bookmarkHooks:  map[string]registeredBookmarkHook{},
		changesetHooks: map[string]registeredChangesetHook{},
		fileHooks:      map[string]registeredFileHook{},
		poolSize:       poolSize,
		log:            log.WithField("component", "hooks"),
	}
}

func (m *Manager) RegisterBookmarkHook(name string, fn BookmarkHookFunc, config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookmarkHooks[name] = registeredBookmarkHook{fn: fn, config: config}
}

func (m *Manager) RegisterChangesetHook(name string, fn ChangesetHookFunc, config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changesetHooks[name] = registeredChangesetHook{fn: fn, config: config}
}

func (m *Manager) RegisterFileHook(name string, fn FileHookFunc, config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileHooks[name] = registeredFileHook{fn: fn, config: config}
}

// SetHooksForBookmark binds hookNames to every bookmark matching pattern
// (exact name or regex), replacing any prior binding for the identical
// pattern.
func (m *Manager) SetHooksForBookmark(pattern BookmarkOrRegex, hookNames []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.bindings {
		if b.pattern == pattern {
			m.bindings[i].hooks = hookNames
			return
		}
	}
	m.bindings = append(m.bindings, binding{pattern: pattern, hooks: hookNames})
}

// hooksForBookmark returns the de-duplicated union of hook names
// attached to bookmark via every matching binding (direct or regex).
func (m *Manager) hooksForBookmark(bookmark string) []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range m.bindings {
		if !b.pattern.matches(bookmark) {
			continue
		}
		for _, name := range b.hooks {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
