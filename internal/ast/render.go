package ast

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/gpabois/emerald/internal/value"
)

// Render serializes the subtree at h back to markdown text.
func (g *Graph) Render(h Handle) string {
	var b strings.Builder
	_ = g.RenderTo(&b, h)
	return b.String()
}

// RenderTo writes the markdown text of the subtree at h to w. Front-matter
// values that cannot be encoded are written as an empty block and reported
// in the returned error.
func (g *Graph) RenderTo(w io.Writer, h Handle) error {
	r := renderer{g: g}
	out := r.node(h)
	if _, ok := g.Payload(h).(Root); ok && out != "" {
		out += "\n"
	}
	if _, err := io.WriteString(w, out); err != nil {
		return err
	}
	return r.err
}

type renderer struct {
	g   *Graph
	err error
}

func (r *renderer) node(h Handle) string {
	n := r.g.Get(h)
	if n == nil {
		return ""
	}
	switch p := n.Payload.(type) {
	case Root:
		return r.blocks(n.Children, "\n\n")
	case BlockQuote:
		return prefixLines(r.blocks(n.Children, "\n\n"), "> ", ">")
	case Paragraph, TableCell:
		return r.inlines(n.Children)
	case Heading:
		return strings.Repeat("#", max(p.Depth, 1)) + " " + r.inlines(n.Children)
	case ThematicBreak:
		return "***"
	case Code:
		fence := fenceFor(p.Value, '`')
		info := strings.TrimSpace(p.Lang + " " + p.Meta)
		return fence + info + "\n" + withNewline(p.Value) + fence
	case Math:
		return "$$" + p.Meta + "\n" + withNewline(p.Value) + "$$"
	case HTML:
		return strings.TrimRight(p.Value, "\n")
	case List:
		return r.list(p, n.Children)
	case ListItem:
		return r.item(p, "-", n.Children)
	case Definition:
		return "[" + labelOr(p.Label, p.Identifier) + "]: " + destination(p.URL) + title(p.Title)
	case FootnoteDefinition:
		body := r.blocks(n.Children, "\n\n")
		return "[^" + labelOr(p.Label, p.Identifier) + "]: " + indent(body, "    ")
	case Table:
		return r.table(p, n.Children)
	case TableRow:
		return pipeRow(r.cells(n.Children))
	case FrontMatter:
		return r.frontMatter(p)
	case FlowExpression:
		return "{" + p.Value + "}"
	case TextExpression:
		return "{" + p.Value + "}"
	case FlowElement:
		return r.element(p.Name, p.Attributes, r.blocks(n.Children, "\n\n"), true)
	case TextElement:
		return r.element(p.Name, p.Attributes, r.inlines(n.Children), false)
	case Text:
		return p.Value
	case Emphasis:
		return "*" + r.inlines(n.Children) + "*"
	case Strong:
		return "**" + r.inlines(n.Children) + "**"
	case Delete:
		return "~~" + r.inlines(n.Children) + "~~"
	case InlineCode:
		return inlineCode(p.Value)
	case InlineMath:
		return "$" + p.Value + "$"
	case Break:
		return "\\\n"
	case Link:
		return "[" + r.inlines(n.Children) + "](" + destination(p.URL) + title(p.Title) + ")"
	case Image:
		return "![" + p.Alt + "](" + destination(p.URL) + title(p.Title) + ")"
	case LinkReference:
		return reference("["+r.inlines(n.Children)+"]", p.ReferenceKind, labelOr(p.Label, p.Identifier))
	case ImageReference:
		return reference("!["+p.Alt+"]", p.ReferenceKind, labelOr(p.Label, p.Identifier))
	case FootnoteReference:
		return "[^" + labelOr(p.Label, p.Identifier) + "]"
	}
	return ""
}

func (r *renderer) blocks(children []Handle, sep string) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		if s := r.node(c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func (r *renderer) inlines(children []Handle) string {
	var b strings.Builder
	for _, c := range children {
		b.WriteString(r.node(c))
	}
	return b.String()
}

func (r *renderer) list(l List, items []Handle) string {
	sep := "\n"
	if l.Spread {
		sep = "\n\n"
	}
	parts := make([]string, 0, len(items))
	num := l.Start
	for _, h := range items {
		n := r.g.Get(h)
		if n == nil {
			continue
		}
		marker := "-"
		if l.Ordered {
			marker = strconv.Itoa(num) + "."
			num++
		}
		item, _ := n.Payload.(ListItem)
		parts = append(parts, r.item(item, marker, n.Children))
	}
	return strings.Join(parts, sep)
}

func (r *renderer) item(it ListItem, marker string, children []Handle) string {
	sep := "\n"
	if it.Spread {
		sep = "\n\n"
	}
	head := marker
	switch it.Checked {
	case Checked:
		head += " [x]"
	case Unchecked:
		head += " [ ]"
	}
	body := r.blocks(children, sep)
	if body == "" {
		return head
	}
	return head + " " + indent(body, strings.Repeat(" ", len(marker)+1))
}

func (r *renderer) cells(children []Handle) []string {
	out := make([]string, 0, len(children))
	for _, c := range children {
		out = append(out, strings.ReplaceAll(r.node(c), "|", "\\|"))
	}
	return out
}

func (r *renderer) table(t Table, rows []Handle) string {
	var grid [][]string
	cols := len(t.Align)
	for _, h := range rows {
		n := r.g.Get(h)
		if n == nil {
			continue
		}
		row := r.cells(n.Children)
		cols = max(cols, len(row))
		grid = append(grid, row)
	}
	if len(grid) == 0 {
		return ""
	}
	widths := make([]int, cols)
	for i := range widths {
		widths[i] = 3
	}
	for _, row := range grid {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	lines := make([]string, 0, len(grid)+1)
	lines = append(lines, pipeRow(pad(grid[0], widths)))
	delim := make([]string, cols)
	for i, w := range widths {
		var a Alignment
		if i < len(t.Align) {
			a = t.Align[i]
		}
		delim[i] = delimiter(a, w)
	}
	lines = append(lines, pipeRow(delim))
	for _, row := range grid[1:] {
		lines = append(lines, pipeRow(pad(row, widths)))
	}
	return strings.Join(lines, "\n")
}

func (r *renderer) frontMatter(fm FrontMatter) string {
	open, closing := "---", "---"
	encode := value.EncodeYAML
	if fm.Format == FormatTOML {
		open, closing = "+++", "+++"
		encode = value.EncodeTOML
	}
	if fm.Value.IsNull() {
		return open + "\n" + closing
	}
	body, err := encode(fm.Value)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("ast: render front matter: %w", err)
		}
		body = ""
	}
	return open + "\n" + withNewline(body) + closing
}

func (r *renderer) element(name string, attrs []Attribute, inner string, flow bool) string {
	var b strings.Builder
	b.WriteString("<" + name)
	for _, a := range attrs {
		switch {
		case a.Expression:
			b.WriteString(" {" + a.Value + "}")
		case a.Value == "":
			b.WriteString(" " + a.Name)
		default:
			b.WriteString(" " + a.Name + "=" + strconv.Quote(a.Value))
		}
	}
	if inner == "" {
		b.WriteString(" />")
		return b.String()
	}
	b.WriteString(">")
	if flow {
		b.WriteString("\n" + inner + "\n")
	} else {
		b.WriteString(inner)
	}
	b.WriteString("</" + name + ">")
	return b.String()
}

func pad(row []string, widths []int) []string {
	out := make([]string, len(widths))
	for i, w := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		out[i] = runewidth.FillRight(cell, w)
	}
	return out
}

func pipeRow(cells []string) string {
	if len(cells) == 0 {
		return "||"
	}
	return "| " + strings.Join(cells, " | ") + " |"
}

func delimiter(a Alignment, w int) string {
	switch a {
	case AlignLeft:
		return ":" + strings.Repeat("-", w-1)
	case AlignRight:
		return strings.Repeat("-", w-1) + ":"
	case AlignCenter:
		return ":" + strings.Repeat("-", w-2) + ":"
	}
	return strings.Repeat("-", w)
}

// prefixLines prefixes every line of s; empty lines get bare instead.
func prefixLines(s, prefix, bare string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = bare
		} else {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// indent indents every line after the first one.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = prefix + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// fenceFor returns a fence of c longer than any run of c inside body.
func fenceFor(body string, c byte) string {
	longest, run := 0, 0
	for i := 0; i < len(body); i++ {
		if body[i] == c {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat(string(c), max(3, longest+1))
}

func inlineCode(v string) string {
	longest, run := 0, 0
	for i := 0; i < len(v); i++ {
		if v[i] == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	ticks := strings.Repeat("`", longest+1)
	if strings.HasPrefix(v, "`") || strings.HasSuffix(v, "`") {
		return ticks + " " + v + " " + ticks
	}
	return ticks + v + ticks
}

func destination(url string) string {
	if url == "" || strings.ContainsAny(url, " ()<>") {
		return "<" + url + ">"
	}
	return url
}

func title(t string) string {
	if t == "" {
		return ""
	}
	return " " + strconv.Quote(t)
}

func labelOr(label, identifier string) string {
	if label != "" {
		return label
	}
	return identifier
}

func reference(text string, kind ReferenceKind, label string) string {
	switch kind {
	case ReferenceFull:
		return text + "[" + label + "]"
	case ReferenceCollapsed:
		return text + "[]"
	}
	return text
}
