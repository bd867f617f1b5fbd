package ast

import "iter"

// Mode selects the traversal order of a Walker.
type Mode uint8

const (
	// Breadth visits nodes level by level.
	Breadth Mode = iota
	// Depth visits a node before its descendants, last child first.
	Depth
)

// Visit is one step of a walk.
type Visit struct {
	Handle Handle
	Node   *Node
	Depth  int
}

type pending struct {
	handle Handle
	depth  int
}

// Walker traverses a subtree of a Graph. A Walker is single-pass.
type Walker struct {
	g        *Graph
	queue    []pending
	head     int
	mode     Mode
	maxDepth int
	prune    func(Visit) bool
}

// Walk starts a breadth-first, unbounded walk at h.
func (g *Graph) Walk(h Handle) *Walker {
	return &Walker{
		g:        g,
		queue:    []pending{{handle: h}},
		mode:     Breadth,
		maxDepth: -1,
	}
}

// Mode sets the traversal order.
func (w *Walker) Mode(m Mode) *Walker {
	w.mode = m
	return w
}

// MaxDepth bounds the depth of yielded nodes to n. A negative n removes the
// bound.
func (w *Walker) MaxDepth(n int) *Walker {
	w.maxDepth = n
	return w
}

// Prune sets a predicate: a visited node for which it returns true is still
// yielded but its children are not explored.
func (w *Walker) Prune(fn func(Visit) bool) *Walker {
	w.prune = fn
	return w
}

func (w *Walker) pop() (pending, bool) {
	if w.head >= len(w.queue) {
		return pending{}, false
	}
	var p pending
	if w.mode == Depth {
		p = w.queue[len(w.queue)-1]
		w.queue = w.queue[:len(w.queue)-1]
	} else {
		p = w.queue[w.head]
		w.head++
	}
	if w.head == len(w.queue) {
		w.queue = w.queue[:0]
		w.head = 0
	}
	return p, true
}

// Next returns the next visit, or false once the walk is exhausted.
func (w *Walker) Next() (Visit, bool) {
	for {
		p, ok := w.pop()
		if !ok {
			return Visit{}, false
		}
		n := w.g.Get(p.handle)
		if n == nil {
			continue
		}
		v := Visit{Handle: p.handle, Node: n, Depth: p.depth}
		if w.expand(v) {
			for _, c := range n.Children {
				w.queue = append(w.queue, pending{handle: c, depth: p.depth + 1})
			}
		}
		return v, true
	}
}

func (w *Walker) expand(v Visit) bool {
	if w.maxDepth >= 0 && v.Depth >= w.maxDepth {
		return false
	}
	return w.prune == nil || !w.prune(v)
}

// All drains the walker as an iterator.
func (w *Walker) All() iter.Seq[Visit] {
	return func(yield func(Visit) bool) {
		for {
			v, ok := w.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}
