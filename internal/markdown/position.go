package markdown

import (
	"sort"

	gast "github.com/yuin/goldmark/ast"

	"github.com/gpabois/emerald/internal/ast"
)

// lineIndex maps byte offsets to line and column numbers.
type lineIndex []int

func newLineIndex(source []byte) lineIndex {
	idx := lineIndex{0}
	for i, b := range source {
		if b == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (l lineIndex) point(offset int) ast.Point {
	line := sort.Search(len(l), func(i int) bool { return l[i] > offset }) - 1
	line = max(line, 0)
	return ast.Point{Line: line + 1, Column: offset - l[line] + 1, Offset: offset}
}

func (l lineIndex) span(start, stop int) *ast.Position {
	return &ast.Position{Start: l.point(start), End: l.point(stop)}
}

// position derives the span of n from its own segments. Containers without
// segments get the union of their children instead.
func (c *converter) position(n gast.Node) *ast.Position {
	switch n := n.(type) {
	case *gast.Text:
		return c.lines.span(n.Segment.Start, n.Segment.Stop)
	case *InlineMath:
		return c.lines.span(n.Segment.Start-1, n.Segment.Stop+1)
	}
	if n.Type() != gast.TypeBlock {
		return nil
	}
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return nil
	}
	return c.lines.span(lines.At(0).Start, lines.At(lines.Len()-1).Stop)
}

func union(a, b *ast.Position) *ast.Position {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	out := *a
	if b.Start.Offset < out.Start.Offset {
		out.Start = b.Start
	}
	if b.End.Offset > out.End.Offset {
		out.End = b.End
	}
	return &out
}
