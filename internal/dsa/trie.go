// Package dsa provides the index structures behind knowledge retrieval.
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie is a typed wrapper over a compressed radix tree. Keys sharing a
// prefix (file names in one directory, say) share nodes.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates an empty tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert stores value under key, replacing any previous value.
func (t *Trie[V]) Insert(key string, value V) {
	t.tree.Insert(key, value)
}

// Get returns the value stored under key.
func (t *Trie[V]) Get(key string) (V, bool) {
	raw, ok := t.tree.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	v, ok := raw.(V)
	return v, ok
}

// WithPrefix returns the keys starting with prefix in lexicographic order.
func (t *Trie[V]) WithPrefix(prefix string) []string {
	var keys []string
	t.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		keys = append(keys, k)
		return false
	})
	return keys
}

// Len returns the number of keys.
func (t *Trie[V]) Len() int {
	return t.tree.Len()
}
