package roadmap

import (
	"errors"
	"sort"
)

var (
	ErrNodeLocked     = errors.New("complete the previous step first")
	ErrNodeOutOfRange = errors.New("no such step in this roadmap")
)

// CompletedSet holds the keys of node labels the learner has passed.
type CompletedSet map[string]struct{}

// NewCompletedSet builds a set from raw labels.
func NewCompletedSet(labels ...string) CompletedSet {
	s := make(CompletedSet, len(labels))
	for _, l := range labels {
		s.Add(l)
	}
	return s
}

// Add marks a label as completed.
func (s CompletedSet) Add(label string) {
	s[Key(label)] = struct{}{}
}

// Has reports whether the label is completed.
func (s CompletedSet) Has(label string) bool {
	_, ok := s[Key(label)]
	return ok
}

// Keys returns the completed keys in sorted order.
func (s CompletedSet) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Gate decides which nodes of a roadmap are clickable. The chain is strictly
// linear: node k opens once node k-1 is completed.
type Gate struct {
	nodes     []Node
	completed CompletedSet
}

// NewGate creates a gate over a roadmap's nodes.
func NewGate(nodes []Node, completed CompletedSet) *Gate {
	if completed == nil {
		completed = CompletedSet{}
	}
	return &Gate{nodes: nodes, completed: completed}
}

// Unlocked reports whether node k may be opened.
func (g *Gate) Unlocked(k int) bool {
	if k < 0 || k >= len(g.nodes) {
		return false
	}
	return k == 0 || g.completed.Has(g.nodes[k-1].Label)
}

// Completed reports whether node k has been passed.
func (g *Gate) Completed(k int) bool {
	if k < 0 || k >= len(g.nodes) {
		return false
	}
	return g.completed.Has(g.nodes[k].Label)
}

// Check returns nil when node k may be opened.
func (g *Gate) Check(k int) error {
	if k < 0 || k >= len(g.nodes) {
		return ErrNodeOutOfRange
	}
	if !g.Unlocked(k) {
		return ErrNodeLocked
	}
	return nil
}

// NextOpen returns the first unlocked node that is not yet completed, or -1
// when every node is done.
func (g *Gate) NextOpen() int {
	for k := range g.nodes {
		if g.Unlocked(k) && !g.Completed(k) {
			return k
		}
	}
	return -1
}
