package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/gpabois/emerald/internal/ast"
)

// KindFrontMatterBlock is the goldmark node kind of a front-matter block.
var KindFrontMatterBlock = gast.NewNodeKind("FrontMatterBlock")

// FrontMatterBlock is the raw front-matter block at the top of a document.
// Its lines hold the text between the fences.
type FrontMatterBlock struct {
	gast.BaseBlock
	Format ast.FrontMatterFormat
}

// Kind implements gast.Node.
func (n *FrontMatterBlock) Kind() gast.NodeKind { return KindFrontMatterBlock }

// IsRaw implements gast.Node.
func (n *FrontMatterBlock) IsRaw() bool { return true }

// Dump implements gast.Node.
func (n *FrontMatterBlock) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Format": n.Format.String()}, nil)
}

type frontMatterParser struct{}

func fence(line []byte) (byte, bool) {
	line = util.TrimRightSpace(line)
	if len(line) != 3 {
		return 0, false
	}
	switch string(line) {
	case "---":
		return '-', true
	case "+++":
		return '+', true
	}
	return 0, false
}

func (p *frontMatterParser) Trigger() []byte { return []byte{'-', '+'} }

// Open only fires on the first line of the document and only when a closing
// fence follows; otherwise the line is left to the thematic break parser.
func (p *frontMatterParser) Open(parent gast.Node, reader text.Reader, pc parser.Context) (gast.Node, parser.State) {
	if lineNum, _ := reader.Position(); lineNum != 0 {
		return nil, parser.NoChildren
	}
	if _, ok := parent.(*gast.Document); !ok {
		return nil, parser.NoChildren
	}
	line, segment := reader.PeekLine()
	c, ok := fence(line)
	if !ok || !hasClosingFence(reader.Source()[segment.Stop:], c) {
		return nil, parser.NoChildren
	}
	node := &FrontMatterBlock{}
	if c == '+' {
		node.Format = ast.FormatTOML
	}
	reader.Advance(segment.Len() - 1)
	return node, parser.NoChildren
}

func hasClosingFence(rest []byte, c byte) bool {
	for len(rest) > 0 {
		line := rest
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i+1], rest[i+1:]
		} else {
			rest = nil
		}
		if got, ok := fence(line); ok && got == c {
			return true
		}
	}
	return false
}

func (p *frontMatterParser) Continue(node gast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, segment := reader.PeekLine()
	want := byte('-')
	if node.(*FrontMatterBlock).Format == ast.FormatTOML {
		want = '+'
	}
	if c, ok := fence(line); ok && c == want {
		reader.Advance(segment.Len())
		return parser.Close
	}
	node.Lines().Append(segment)
	return parser.Continue | parser.NoChildren
}

func (p *frontMatterParser) Close(node gast.Node, reader text.Reader, pc parser.Context) {}

func (p *frontMatterParser) CanInterruptParagraph() bool { return false }

func (p *frontMatterParser) CanAcceptIndentedLine() bool { return false }

type frontMatter struct{}

// FrontMatter is a goldmark extension recognising a YAML (---) or TOML (+++)
// block on the first line of a document.
var FrontMatter goldmark.Extender = &frontMatter{}

func (e *frontMatter) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithBlockParsers(
		util.Prioritized(&frontMatterParser{}, 0),
	))
}
