package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathTree_StrictAncestorDetected(t *testing.T) {
	tree := NewPathTree()
	tree.Insert([]string{"a", "b"})

	assert.True(t, tree.HasStrictAncestor([]string{"a", "b", "c"}))
}

func TestPathTree_SamePathIsNotStrictAncestor(t *testing.T) {
	tree := NewPathTree()
	tree.Insert([]string{"a", "b"})

	assert.False(t, tree.HasStrictAncestor([]string{"a", "b"}))
}

func TestPathTree_UnrelatedPathNotAncestor(t *testing.T) {
	tree := NewPathTree()
	tree.Insert([]string{"a", "b"})

	assert.False(t, tree.HasStrictAncestor([]string{"x", "y"}))
}

func TestPathTree_RootNeverHasAncestors(t *testing.T) {
	tree := NewPathTree()
	assert.False(t, tree.HasStrictAncestor([]string{}))
}
