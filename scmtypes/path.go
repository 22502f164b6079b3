// Package scmtypes defines the identifiers and content types shared by every
// subsystem in scmcore: changeset and repository identifiers, paths, file
// changes and the bonsai changeset itself (spec.md §3).
package scmtypes

import "strings"

// Path is an ordered sequence of non-empty path elements, e.g. "a/b/c" is
// []string{"a", "b", "c"}. The zero value is the repository root.
type Path struct {
	elements []string
}

// NewPath splits s on "/", dropping empty elements so that "a//b" and
// "/a/b/" both normalize to the same Path as "a/b".
func NewPath(s string) Path {
	if s == "" {
		return Path{}
	}
	parts := strings.Split(s, "/")
	elements := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			elements = append(elements, p)
		}
	}
	return Path{elements: elements}
}

// PathFromElements builds a Path from already-split, non-empty elements.
// The caller owns the backing slice; PathFromElements does not copy it.
func PathFromElements(elements ...string) Path {
	return Path{elements: elements}
}

// Elements returns the path's segments. Callers must not mutate the result.
func (p Path) Elements() []string {
	return p.elements
}

// IsRoot reports whether p is the repository root (zero elements).
func (p Path) IsRoot() bool {
	return len(p.elements) == 0
}

// String renders the path using "/" as separator. The root renders as "".
func (p Path) String() string {
	return strings.Join(p.elements, "/")
}

// Len returns the number of elements in the path.
func (p Path) Len() int {
	return len(p.elements)
}

// Equal reports whether two paths have identical elements.
func (p Path) Equal(o Path) bool {
	if len(p.elements) != len(o.elements) {
		return false
	}
	for i, e := range p.elements {
		if e != o.elements[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether p is a path-prefix of o: every element of p
// appears, in order, as the leading elements of o. The root is a prefix of
// every path, including itself.
func (p Path) IsPrefixOf(o Path) bool {
	if len(p.elements) > len(o.elements) {
		return false
	}
	for i, e := range p.elements {
		if e != o.elements[i] {
			return false
		}
	}
	return true
}

// Suffix returns the elements of p that follow the given prefix. Suffix
// panics if prefix is not actually a prefix of p — callers are expected to
// have checked IsPrefixOf first, mirroring the mover's own contract.
func (p Path) Suffix(prefix Path) Path {
	if !prefix.IsPrefixOf(p) {
		panic("scmtypes: Suffix called with a non-prefix")
	}
	rest := p.elements[len(prefix.elements):]
	out := make([]string, len(rest))
	copy(out, rest)
	return Path{elements: out}
}

// Join appends the elements of o after p's, returning a new Path. Neither
// receiver is mutated.
func (p Path) Join(o Path) Path {
	out := make([]string, 0, len(p.elements)+len(o.elements))
	out = append(out, p.elements...)
	out = append(out, o.elements...)
	return Path{elements: out}
}

// Compare orders paths lexicographically by element, matching the sort
// order manifest listings and bookmark-name pagination rely on.
func (p Path) Compare(o Path) int {
	for i := 0; i < len(p.elements) && i < len(o.elements); i++ {
		if p.elements[i] != o.elements[i] {
			if p.elements[i] < o.elements[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(p.elements) < len(o.elements):
		return -1
	case len(p.elements) > len(o.elements):
		return 1
	default:
		return 0
	}
}
