package ast

import "strings"

// PlainText concatenates the literal text found under h, ignoring markup.
func (g *Graph) PlainText(h Handle) string {
	var b strings.Builder
	g.plainText(&b, h)
	return b.String()
}

func (g *Graph) plainText(b *strings.Builder, h Handle) {
	n := g.Get(h)
	if n == nil {
		return
	}
	switch p := n.Payload.(type) {
	case Text:
		b.WriteString(p.Value)
	case InlineCode:
		b.WriteString(p.Value)
	case InlineMath:
		b.WriteString(p.Value)
	case Image:
		b.WriteString(p.Alt)
	case Break:
		b.WriteString("\n")
	}
	for _, c := range n.Children {
		g.plainText(b, c)
	}
}

// FirstChild returns the first child of h whose kind is k.
func (g *Graph) FirstChild(h Handle, k Kind) (Handle, bool) {
	for _, c := range g.Children(h) {
		if n := g.Get(c); n != nil && n.Kind() == k {
			return c, true
		}
	}
	return Handle{}, false
}
