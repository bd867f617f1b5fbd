package ast

import (
	"github.com/gpabois/emerald/internal/arena"
)

// Graph owns every node of one document. Nodes reference their children by
// Handle; a Graph is not safe for concurrent mutation.
type Graph struct {
	nodes *arena.Arena[Node]
	root  Handle
}

// New returns an empty graph without a root.
func New() *Graph {
	return &Graph{nodes: arena.New[Node](64)}
}

// Insert stores a node and returns its handle. Children must already live in
// g. Children given to a leaf kind are dropped.
func (g *Graph) Insert(p Payload, children []Handle, pos *Position) Handle {
	if p.Kind().IsLeaf() {
		children = nil
	}
	return g.nodes.Insert(Node{Position: pos, Children: children, Payload: p})
}

// Get returns the node behind h or nil when h does not resolve. The pointer
// is only valid until the next Insert.
func (g *Graph) Get(h Handle) *Node {
	return g.nodes.Get(h)
}

// Root returns the root handle, if one was set.
func (g *Graph) Root() (Handle, bool) {
	if g.root.IsZero() || !g.nodes.Contains(g.root) {
		return Handle{}, false
	}
	return g.root, true
}

// SetRoot marks h as the document root.
func (g *Graph) SetRoot(h Handle) {
	g.root = h
}

// Len returns the number of live nodes.
func (g *Graph) Len() int { return g.nodes.Len() }

// Children returns the child handles of h.
func (g *Graph) Children(h Handle) []Handle {
	if n := g.Get(h); n != nil {
		return n.Children
	}
	return nil
}

// Payload returns the payload of h, or nil when h does not resolve.
func (g *Graph) Payload(h Handle) Payload {
	if n := g.Get(h); n != nil {
		return n.Payload
	}
	return nil
}

// Fork copies the subtree rooted at h into a new graph whose root is the copy
// of h. g is left untouched.
func (g *Graph) Fork(h Handle) (*Graph, bool) {
	if g.Get(h) == nil {
		return nil, false
	}
	out := New()
	out.root = out.copyFrom(g, h)
	return out, true
}

func (g *Graph) copyFrom(src *Graph, h Handle) Handle {
	n := src.Get(h)
	children := make([]Handle, 0, len(n.Children))
	for _, c := range n.Children {
		if src.Get(c) == nil {
			continue
		}
		children = append(children, g.copyFrom(src, c))
	}
	var pos *Position
	if n.Position != nil {
		p := *n.Position
		pos = &p
	}
	return g.Insert(clonePayload(n.Payload), children, pos)
}

// Detach removes child from the children of parent and frees the whole
// subtree under it. Handles into that subtree stop resolving.
func (g *Graph) Detach(parent, child Handle) bool {
	p := g.Get(parent)
	if p == nil {
		return false
	}
	idx := -1
	for i, c := range p.Children {
		if c == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	p.Children = append(p.Children[:idx:idx], p.Children[idx+1:]...)
	g.free(child)
	return true
}

func (g *Graph) free(h Handle) {
	n, ok := g.nodes.Remove(h)
	if !ok {
		return
	}
	for _, c := range n.Children {
		g.free(c)
	}
}
