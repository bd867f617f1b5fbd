package markdown

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gast "github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"

	"github.com/gpabois/emerald/internal/apperr"
	"github.com/gpabois/emerald/internal/ast"
	"github.com/gpabois/emerald/internal/value"
)

// errAbsorbed marks external nodes that are folded into their parent.
var errAbsorbed = errors.New("absorbed")

// Convert turns a goldmark document into a graph. source must be the text the
// document was parsed from.
func Convert(doc gast.Node, source []byte, opts ...Option) (*ast.Graph, error) {
	c := &converter{
		g:       ast.New(),
		source:  source,
		lines:   newLineIndex(source),
		options: newOptions(opts),
	}
	root, _, err := c.convert(doc)
	if err != nil {
		return nil, fmt.Errorf("markdown: convert: %w", err)
	}
	c.g.SetRoot(root)
	return c.g, nil
}

type converter struct {
	g      *ast.Graph
	source []byte
	lines  lineIndex
	options
}

// convert inserts n and its subtree, children first, and returns the handle
// of n together with its source span.
func (c *converter) convert(n gast.Node) (ast.Handle, *ast.Position, error) {
	payload, err := c.payload(n)
	if err != nil {
		return ast.Handle{}, nil, err
	}
	var children []ast.Handle
	var span *ast.Position
	if !payload.Kind().IsLeaf() {
		children, span, err = c.children(n)
		if err != nil {
			return ast.Handle{}, nil, err
		}
	}
	if al, ok := n.(*gast.AutoLink); ok {
		children = append(children, c.autoLinkLabel(al))
	}
	pos := c.position(n)
	if pos == nil {
		pos = span
	}
	return c.g.Insert(payload, children, pos), pos, nil
}

func (c *converter) children(n gast.Node) ([]ast.Handle, *ast.Position, error) {
	var out []ast.Handle
	var span *ast.Position
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		h, pos, err := c.convert(child)
		switch {
		case errors.Is(err, errAbsorbed):
			continue
		case err != nil && c.strict:
			return nil, nil, err
		case err != nil:
			c.logger.Warn("markdown: dropped node",
				slog.String("source", c.name),
				slog.String("kind", child.Kind().String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, h)
		span = union(span, pos)
		if t, ok := child.(*gast.Text); ok && t.HardLineBreak() {
			out = append(out, c.g.Insert(ast.Break{}, nil, nil))
		}
	}
	return out, span, nil
}

func (c *converter) payload(n gast.Node) (ast.Payload, error) {
	switch n := n.(type) {
	case *gast.Document:
		return ast.Root{}, nil
	case *gast.Paragraph, *gast.TextBlock:
		return ast.Paragraph{}, nil
	case *gast.Heading:
		return ast.Heading{Depth: n.Level}, nil
	case *gast.ThematicBreak:
		return ast.ThematicBreak{}, nil
	case *gast.CodeBlock:
		return ast.Code{Value: c.linesValue(n)}, nil
	case *gast.FencedCodeBlock:
		code := ast.Code{Value: c.linesValue(n)}
		if n.Info != nil {
			info := strings.TrimSpace(string(n.Info.Segment.Value(c.source)))
			code.Lang, code.Meta, _ = strings.Cut(info, " ")
			code.Meta = strings.TrimSpace(code.Meta)
		}
		return code, nil
	case *gast.Blockquote:
		return ast.BlockQuote{}, nil
	case *gast.List:
		return ast.List{Ordered: n.IsOrdered(), Start: n.Start, Spread: !n.IsTight}, nil
	case *gast.ListItem:
		item := ast.ListItem{Checked: checkbox(n)}
		if l, ok := n.Parent().(*gast.List); ok {
			item.Spread = !l.IsTight
		}
		return item, nil
	case *gast.HTMLBlock:
		v := c.linesValue(n)
		if n.HasClosure() {
			v += "\n" + string(n.ClosureLine.Value(c.source))
		}
		return ast.HTML{Value: strings.TrimRight(v, "\n")}, nil
	case *gast.RawHTML:
		var b strings.Builder
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(c.source))
		}
		return ast.HTML{Value: b.String()}, nil
	case *gast.Text:
		v := string(n.Segment.Value(c.source))
		if n.SoftLineBreak() {
			v += "\n"
		}
		return ast.Text{Value: v}, nil
	case *gast.String:
		return ast.Text{Value: string(n.Value)}, nil
	case *gast.CodeSpan:
		return ast.InlineCode{Value: c.inlineText(n)}, nil
	case *gast.Emphasis:
		if n.Level >= 2 {
			return ast.Strong{}, nil
		}
		return ast.Emphasis{}, nil
	case *gast.Link:
		return ast.Link{URL: string(n.Destination), Title: string(n.Title)}, nil
	case *gast.AutoLink:
		return ast.Link{URL: string(n.URL(c.source))}, nil
	case *gast.Image:
		return ast.Image{Alt: c.inlineText(n), URL: string(n.Destination), Title: string(n.Title)}, nil
	case *extast.Strikethrough:
		return ast.Delete{}, nil
	case *extast.Table:
		align := make([]ast.Alignment, len(n.Alignments))
		for i, a := range n.Alignments {
			align[i] = alignment(a)
		}
		return ast.Table{Align: align}, nil
	case *extast.TableHeader, *extast.TableRow:
		return ast.TableRow{}, nil
	case *extast.TableCell:
		return ast.TableCell{}, nil
	case *extast.TaskCheckBox:
		return nil, errAbsorbed
	case *FrontMatterBlock:
		return c.frontMatter(n)
	case *MathBlock:
		return ast.Math{Value: c.linesValue(n), Meta: n.Meta}, nil
	case *InlineMath:
		return ast.InlineMath{Value: string(n.Segment.Value(c.source))}, nil
	}
	return nil, fmt.Errorf("%w: unsupported node %s", apperr.ErrMalformed, n.Kind())
}

func (c *converter) frontMatter(n *FrontMatterBlock) (ast.Payload, error) {
	raw := c.rawLines(n)
	decode := value.DecodeYAML
	if n.Format == ast.FormatTOML {
		decode = value.DecodeTOML
	}
	v, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}
	return ast.FrontMatter{Format: n.Format, Value: v}, nil
}

// goldmark keeps the auto link label on the node itself.
func (c *converter) autoLinkLabel(n *gast.AutoLink) ast.Handle {
	return c.g.Insert(ast.Text{Value: string(n.Label(c.source))}, nil, nil)
}

func (c *converter) rawLines(n gast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(c.source))
	}
	return b.String()
}

// linesValue is the raw block text without its final line ending.
func (c *converter) linesValue(n gast.Node) string {
	return strings.TrimSuffix(c.rawLines(n), "\n")
}

// inlineText concatenates the text of the descendants of n.
func (c *converter) inlineText(n gast.Node) string {
	var b strings.Builder
	_ = gast.Walk(n, func(child gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *gast.Text:
			b.Write(t.Segment.Value(c.source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *gast.String:
			b.Write(t.Value)
		}
		return gast.WalkContinue, nil
	})
	return b.String()
}

func checkbox(item *gast.ListItem) ast.Checkbox {
	first := item.FirstChild()
	if first == nil {
		return ast.NoCheckbox
	}
	box, ok := first.FirstChild().(*extast.TaskCheckBox)
	switch {
	case !ok:
		return ast.NoCheckbox
	case box.IsChecked:
		return ast.Checked
	}
	return ast.Unchecked
}

func alignment(a extast.Alignment) ast.Alignment {
	switch a {
	case extast.AlignLeft:
		return ast.AlignLeft
	case extast.AlignRight:
		return ast.AlignRight
	case extast.AlignCenter:
		return ast.AlignCenter
	}
	return ast.AlignNone
}
