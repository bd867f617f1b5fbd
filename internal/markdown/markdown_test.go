package markdown

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gpabois/emerald/internal/apperr"
	"github.com/gpabois/emerald/internal/ast"
)

// shape renders the kinds of a subtree as nested s-expressions.
func shape(g *ast.Graph, h ast.Handle) string {
	n := g.Get(h)
	if len(n.Children) == 0 {
		return n.Kind().String()
	}
	parts := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		parts = append(parts, shape(g, c))
	}
	return "(" + n.Kind().String() + " " + strings.Join(parts, " ") + ")"
}

func mustParse(t *testing.T, src string, opts ...Option) (*ast.Graph, ast.Handle) {
	t.Helper()
	g, err := Parse([]byte(src), opts...)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	root, ok := g.Root()
	if !ok {
		t.Fatal("graph has no root")
	}
	return g, root
}

func TestParse_FrontMatterHeadingTask(t *testing.T) {
	g, root := mustParse(t, "---\ntitle: X\n---\n# T\n- [ ] a\n")

	want := "(root frontMatter (heading text) (list (listItem (paragraph text))))"
	if got := shape(g, root); got != want {
		t.Fatalf("shape = %s, want %s", got, want)
	}

	children := g.Children(root)
	fm := g.Get(children[0]).Payload.(ast.FrontMatter)
	if fm.Format != ast.FormatYAML {
		t.Errorf("format = %s, want yaml", fm.Format)
	}
	if title, _ := fm.Value.Lookup("title"); title.String() != "X" {
		t.Errorf("title = %s, want X", title)
	}

	if h := g.Get(children[1]).Payload.(ast.Heading); h.Depth != 1 {
		t.Errorf("heading depth = %d, want 1", h.Depth)
	}

	item := g.Get(g.Children(children[2])[0]).Payload.(ast.ListItem)
	if item.Checked != ast.Unchecked {
		t.Errorf("checkbox = %v, want unchecked", item.Checked)
	}
	para := g.Children(g.Children(children[2])[0])[0]
	if got := g.PlainText(para); got != "a" {
		t.Errorf("item text = %q, want %q", got, "a")
	}
}

func TestParse_TOMLFrontMatter(t *testing.T) {
	g, root := mustParse(t, "+++\ntitle = \"X\"\ncount = 2\n+++\nbody\n")

	fm := g.Get(g.Children(root)[0]).Payload.(ast.FrontMatter)
	if fm.Format != ast.FormatTOML {
		t.Fatalf("format = %s, want toml", fm.Format)
	}
	if n, _ := fm.Value.Lookup("count"); n.String() != "2" {
		t.Errorf("count = %s, want 2", n)
	}
}

func TestParse_UnclosedFenceIsNotFrontMatter(t *testing.T) {
	g, root := mustParse(t, "---\ntitle: X\n")
	if got := g.Get(g.Children(root)[0]).Kind(); got == ast.KindFrontMatter {
		t.Error("unclosed fence parsed as front matter")
	}
}

func TestParse_MalformedFrontMatter(t *testing.T) {
	src := "---\ntitle: [\n---\nbody\n"

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	g, root := mustParse(t, src, WithLogger(logger), WithSource("bad.md"))
	if got, want := shape(g, root), "(root (paragraph text))"; got != want {
		t.Errorf("lenient shape = %s, want %s", got, want)
	}
	if !strings.Contains(logs.String(), "dropped node") || !strings.Contains(logs.String(), "bad.md") {
		t.Errorf("missing warning in logs: %s", logs.String())
	}

	_, err := Parse([]byte(src), WithStrict(true))
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Errorf("strict err = %v, want ErrMalformed", err)
	}
}

func TestParse_Inlines(t *testing.T) {
	g, root := mustParse(t, "**b** *i* ~~d~~ `c` [l](u \"t\") ![alt](img.png) <https://go.dev> $x^2$\n")

	para := g.Children(root)[0]
	var kinds []ast.Kind
	for _, c := range g.Children(para) {
		if k := g.Get(c).Kind(); k != ast.KindText {
			kinds = append(kinds, k)
		}
	}
	want := []ast.Kind{
		ast.KindStrong, ast.KindEmphasis, ast.KindDelete, ast.KindInlineCode,
		ast.KindLink, ast.KindImage, ast.KindLink, ast.KindInlineMath,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("inline kinds mismatch (-want +got):\n%s", diff)
	}

	for _, c := range g.Children(para) {
		switch p := g.Get(c).Payload.(type) {
		case ast.Image:
			if p.Alt != "alt" || p.URL != "img.png" {
				t.Errorf("image = %+v", p)
			}
		case ast.InlineMath:
			if p.Value != "x^2" {
				t.Errorf("inline math = %q, want %q", p.Value, "x^2")
			}
		case ast.InlineCode:
			if p.Value != "c" {
				t.Errorf("inline code = %q, want %q", p.Value, "c")
			}
		}
	}
}

func TestParse_Blocks(t *testing.T) {
	src := "> quote\n\n```go title=x\nfmt.Println()\n```\n\n$$\nE=mc^2\n$$\n\n***\n\n| a | b |\n|:--|--:|\n| 1 | 2 |\n"
	g, root := mustParse(t, src)

	want := "(root (blockquote (paragraph text)) code math thematicBreak (table (tableRow (tableCell text) (tableCell text)) (tableRow (tableCell text) (tableCell text))))"
	if got := shape(g, root); got != want {
		t.Fatalf("shape = %s\nwant  %s", got, want)
	}

	children := g.Children(root)
	code := g.Get(children[1]).Payload.(ast.Code)
	if diff := cmp.Diff(ast.Code{Value: "fmt.Println()", Lang: "go", Meta: "title=x"}, code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	if m := g.Get(children[2]).Payload.(ast.Math); m.Value != "E=mc^2" {
		t.Errorf("math = %q", m.Value)
	}
	table := g.Get(children[4]).Payload.(ast.Table)
	if diff := cmp.Diff([]ast.Alignment{ast.AlignLeft, ast.AlignRight}, table.Align); diff != "" {
		t.Errorf("align mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_OrderedSpreadList(t *testing.T) {
	g, root := mustParse(t, "3. one\n\n4. two\n")
	l := g.Get(g.Children(root)[0]).Payload.(ast.List)
	if !l.Ordered || l.Start != 3 || !l.Spread {
		t.Errorf("list = %+v, want ordered start 3 spread", l)
	}
}

func TestParse_CheckedTask(t *testing.T) {
	g, root := mustParse(t, "- [x] done\n- plain\n")
	items := g.Children(g.Children(root)[0])
	if got := g.Get(items[0]).Payload.(ast.ListItem).Checked; got != ast.Checked {
		t.Errorf("first = %v, want checked", got)
	}
	if got := g.Get(items[1]).Payload.(ast.ListItem).Checked; got != ast.NoCheckbox {
		t.Errorf("second = %v, want no checkbox", got)
	}
}

func TestParse_Positions(t *testing.T) {
	g, root := mustParse(t, "# T\n\nsecond para\n")
	para := g.Get(g.Children(root)[1])
	if para.Position == nil {
		t.Fatal("paragraph has no position")
	}
	if para.Position.Start.Line != 3 || para.Position.Start.Column != 1 {
		t.Errorf("start = %+v, want line 3 column 1", para.Position.Start)
	}
	if g.Get(root).Position == nil {
		t.Error("root has no position")
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []string{
		"---\ntitle: X\ntags:\n  - a\n---\n\n# T\n\n- [ ] a\n- [x] b\n",
		"Some **bold** and *it* with `code`.\n\n> quoted\n",
		"1. one\n2. two\n\n```go\nx := 1\n```\n",
	}
	for _, src := range tests {
		g, root := mustParse(t, src)
		once := g.Render(root)

		g2, root2 := mustParse(t, once)
		if diff := cmp.Diff(shape(g, root), shape(g2, root2)); diff != "" {
			t.Errorf("shape changed after round trip (-first +second):\n%s", diff)
		}
		if twice := g2.Render(root2); twice != once {
			t.Errorf("render not stable:\nfirst  %q\nsecond %q", once, twice)
		}
	}
}

func TestRender_KeepsListStart(t *testing.T) {
	g, root := mustParse(t, "0. zero\n1. one\n")
	if got, want := g.Render(root), "0. zero\n1. one"; !strings.HasPrefix(got, want) {
		t.Errorf("Render = %q, want prefix %q", got, want)
	}
}
