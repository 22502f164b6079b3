package pathmover

import "github.com/rivermark/scmcore/scmtypes"

// prefixTrie is a radix-ish trie over path elements, used for the longest
// matching prefix lookup described in spec.md §9 ("a faster structure is a
// radix trie over path elements; prefix-freedom makes at most one match per
// lookup"). The shape is deliberately the same recursive per-segment
// child-walk as node.PathTree (node/node.go), generalized from "has an
// ancestor of this path been inserted" to "what action is configured for the
// longest prefix of this path".
type prefixTrie struct {
	children map[string]*prefixTrie
	action   *PrefixActionSpec
	path     scmtypes.Path // only meaningful when action != nil
}

func newPrefixTrie() *prefixTrie {
	return &prefixTrie{children: map[string]*prefixTrie{}}
}

func (t *prefixTrie) insert(p scmtypes.Path, action PrefixActionSpec) {
	node := t
	for _, elem := range p.Elements() {
		child, ok := node.children[elem]
		if !ok {
			child = newPrefixTrie()
			node.children[elem] = child
		}
		node = child
	}
	node.action = &action
	node.path = p
}

// longestMatch walks the trie following p's elements, remembering the
// deepest node that carries a configured action. Because the trie is only
// ever built from a prefix-free set of keys, at most one key can match —
// the deepest annotated node reached is that match.
func (t *prefixTrie) longestMatch(p scmtypes.Path) (PrefixActionSpec, scmtypes.Path, bool) {
	node := t
	var best *prefixTrie
	for _, elem := range p.Elements() {
		child, ok := node.children[elem]
		if !ok {
			break
		}
		node = child
		if node.action != nil {
			best = node
		}
	}
	if best == nil {
		return PrefixActionSpec{}, scmtypes.Path{}, false
	}
	return *best.action, best.path, true
}

// allPrefixPaths returns the path of every inserted key, in no
// particular order.
func (t *prefixTrie) allPrefixPaths() []scmtypes.Path {
	var out []scmtypes.Path
	var walk func(n *prefixTrie)
	walk = func(n *prefixTrie) {
		if n.action != nil {
			out = append(out, n.path)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t)
	return out
}
