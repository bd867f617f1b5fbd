package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	// KindMathBlock is the goldmark node kind of a $$ display math block.
	KindMathBlock = gast.NewNodeKind("MathBlock")
	// KindInlineMath is the goldmark node kind of $inline$ math.
	KindInlineMath = gast.NewNodeKind("InlineMath")
)

// MathBlock is a display math block fenced by $$ lines.
type MathBlock struct {
	gast.BaseBlock
	Meta string
}

func (n *MathBlock) Kind() gast.NodeKind { return KindMathBlock }
func (n *MathBlock) IsRaw() bool         { return true }
func (n *MathBlock) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Meta": n.Meta}, nil)
}

// InlineMath is math delimited by single dollars inside a paragraph.
type InlineMath struct {
	gast.BaseInline
	Segment text.Segment
}

func (n *InlineMath) Kind() gast.NodeKind { return KindInlineMath }
func (n *InlineMath) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Value": string(n.Segment.Value(source))}, nil)
}

type mathBlockParser struct{}

func (p *mathBlockParser) Trigger() []byte { return []byte{'$'} }

func (p *mathBlockParser) Open(parent gast.Node, reader text.Reader, pc parser.Context) (gast.Node, parser.State) {
	line, segment := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || !bytes.HasPrefix(line[pos:], []byte("$$")) {
		return nil, parser.NoChildren
	}
	meta := util.TrimRightSpace(util.TrimLeftSpace(line[pos+2:]))
	if bytes.Contains(meta, []byte("$")) {
		return nil, parser.NoChildren
	}
	reader.Advance(segment.Len() - 1)
	return &MathBlock{Meta: string(meta)}, parser.NoChildren
}

func (p *mathBlockParser) Continue(node gast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, segment := reader.PeekLine()
	if string(util.TrimRightSpace(util.TrimLeftSpace(line))) == "$$" {
		reader.Advance(segment.Len())
		return parser.Close
	}
	node.Lines().Append(segment)
	return parser.Continue | parser.NoChildren
}

func (p *mathBlockParser) Close(node gast.Node, reader text.Reader, pc parser.Context) {}

func (p *mathBlockParser) CanInterruptParagraph() bool { return true }

func (p *mathBlockParser) CanAcceptIndentedLine() bool { return false }

type inlineMathParser struct{}

func (p *inlineMathParser) Trigger() []byte { return []byte{'$'} }

// Parse accepts $x$ where the content is non-empty and neither starts nor
// ends with a space. A doubled $$ is left as text.
func (p *inlineMathParser) Parse(parent gast.Node, block text.Reader, pc parser.Context) gast.Node {
	line, segment := block.PeekLine()
	if len(line) < 3 || line[1] == '$' || line[1] == ' ' {
		return nil
	}
	end := -1
	for i := 1; i < len(line); i++ {
		if line[i] == '\\' {
			i++
			continue
		}
		if line[i] == '$' {
			end = i
			break
		}
	}
	if end < 0 || line[end-1] == ' ' {
		return nil
	}
	block.Advance(end + 1)
	return &InlineMath{Segment: text.NewSegment(segment.Start+1, segment.Start+end)}
}

type math struct{}

// Math is a goldmark extension for $inline$ and $$ display math.
var Math goldmark.Extender = &math{}

func (e *math) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithBlockParsers(util.Prioritized(&mathBlockParser{}, 150)),
		parser.WithInlineParsers(util.Prioritized(&inlineMathParser{}, 150)),
	)
}
