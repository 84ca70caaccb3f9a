package insts

import (
	"errors"
	"fmt"
)

// Pattern errors.
var (
	// ErrDuplicatePattern is returned when a pattern is inserted twice.
	ErrDuplicatePattern = errors.New("duplicate instruction pattern")

	// ErrBadPattern is returned for patterns with invalid characters or length.
	ErrBadPattern = errors.New("malformed instruction pattern")
)

const (
	branchZero = iota
	branchOne
	branchAny
)

type trieNode struct {
	next     [3]*trieNode
	terminal bool
	op       Op
}

// Trie classifies instruction words by bit patterns read most significant
// bit first. Each node has a branch for 0, for 1 and for "don't care", so a
// pattern with wildcards is stored once.
//
// Lookup prefers the concrete branch at every level and falls back to the
// wildcard branch only when the concrete subtree has no match, so the most
// specific pattern wins.
type Trie struct {
	root *trieNode
}

// NewTrie creates an empty trie.
func NewTrie() *Trie {
	return &Trie{root: &trieNode{}}
}

// Insert registers pattern as denoting op. Pattern characters are '0', '1'
// and 'x'; apostrophes and spaces are separators. The pattern must be 16 or
// 32 bits long.
func (t *Trie) Insert(pattern string, op Op) error {
	node := t.root
	bits := 0

	for _, ch := range pattern {
		var b int
		switch ch {
		case '\'', ' ':
			continue
		case '0':
			b = branchZero
		case '1':
			b = branchOne
		case 'x':
			b = branchAny
		default:
			return fmt.Errorf("%q: character %q: %w", pattern, ch, ErrBadPattern)
		}

		if node.next[b] == nil {
			node.next[b] = &trieNode{}
		}
		node = node.next[b]
		bits++
	}

	if bits != 16 && bits != 32 {
		return fmt.Errorf("%q: %d bits: %w", pattern, bits, ErrBadPattern)
	}

	if node.terminal {
		return fmt.Errorf("%q (%v and %v): %w", pattern, node.op, op, ErrDuplicatePattern)
	}

	node.terminal = true
	node.op = op

	return nil
}

// Lookup returns the operation of the most specific pattern matching the
// low width bits of word.
func (t *Trie) Lookup(word uint32, width int) (Op, bool) {
	return t.root.search(word, width-1)
}

func (n *trieNode) search(word uint32, bit int) (Op, bool) {
	if bit < 0 {
		return n.op, n.terminal
	}

	b := (word >> uint(bit)) & 1
	if child := n.next[b]; child != nil {
		if op, ok := child.search(word, bit-1); ok {
			return op, true
		}
	}

	if child := n.next[branchAny]; child != nil {
		return child.search(word, bit-1)
	}

	return OpUnknown, false
}
