// Package shard turns vault documents into parsed shards and derives their
// title, tags, links and tasks.
package shard

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gpabois/emerald/internal/ast"
	"github.com/gpabois/emerald/internal/markdown"
	"github.com/gpabois/emerald/internal/value"
	"github.com/gpabois/emerald/internal/vault"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Shard is a parsed document of the vault.
type Shard struct {
	Path  vault.Path
	Graph *ast.Graph
	// FrontMatter is nil when the document has none.
	FrontMatter *value.Value
	FrontFormat ast.FrontMatterFormat
}

// Parse parses data as the shard at path.
func Parse(path vault.Path, data []byte, opts ...markdown.Option) (*Shard, error) {
	opts = append([]markdown.Option{markdown.WithSource(path.String())}, opts...)
	g, err := markdown.Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("shard: parse %s: %w", path, err)
	}
	s := &Shard{Path: path, Graph: g}
	if fm, ok := g.FirstChild(s.Root(), ast.KindFrontMatter); ok {
		p := g.Get(fm).Payload.(ast.FrontMatter)
		s.FrontMatter = &p.Value
		s.FrontFormat = p.Format
	}
	return s, nil
}

// Read parses the shard content available from r.
func Read(path vault.Path, r io.Reader, opts ...markdown.Option) (*Shard, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("shard: read %s: %w", path, err)
	}
	return Parse(path, data, opts...)
}

// Load opens and parses the shard at p.
func Load(v *vault.Vault, p vault.Path, opts ...markdown.Option) (*Shard, error) {
	f, err := v.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(p, f, opts...)
}

// LoadEntry opens and parses a shard yielded by a vault listing, including
// one reached through a linked directory.
func LoadEntry(v *vault.Vault, e vault.DirEntry, opts ...markdown.Option) (*Shard, error) {
	f, err := v.OpenEntry(e)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(e.Path, f, opts...)
}

// Root returns the document root.
func (s *Shard) Root() ast.Handle {
	h, _ := s.Graph.Root()
	return h
}

// Render serializes the shard back to markdown.
func (s *Shard) Render() string {
	return s.Graph.Render(s.Root())
}

func (s *Shard) lookup(key string) (value.Value, bool) {
	if s.FrontMatter == nil {
		return value.Value{}, false
	}
	return s.FrontMatter.Lookup(key)
}

// Title returns the front-matter title, else the text of the first level-1
// heading, else "".
func (s *Shard) Title() string {
	if v, ok := s.lookup("title"); ok {
		if t, ok := v.AsString(); ok && t != "" {
			return t
		}
	}
	for v := range s.Graph.Walk(s.Root()).All() {
		if h, ok := v.Node.Payload.(ast.Heading); ok && h.Depth == 1 {
			return strings.TrimSpace(s.Graph.PlainText(v.Handle))
		}
	}
	return ""
}

// Tags returns front-matter tags followed by inline #tags, deduplicated in
// first-seen order.
func (s *Shard) Tags() []string {
	var d dedup
	if v, ok := s.lookup("tags"); ok {
		for _, t := range v.Strings() {
			d.add(strings.TrimSpace(t))
		}
	}
	for _, text := range s.prose() {
		for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
			d.add(m[1])
		}
	}
	return d.out
}

// Links returns link destinations and [[wikilink]] targets, deduplicated.
// An aliased wikilink [[target|alias]] yields target.
func (s *Shard) Links() []string {
	var d dedup
	for v := range s.Graph.Walk(s.Root()).Mode(ast.Depth).All() {
		if l, ok := v.Node.Payload.(ast.Link); ok {
			d.add(l.URL)
		}
	}
	for _, text := range s.prose() {
		for _, m := range wikilinkRe.FindAllStringSubmatch(text, -1) {
			target, _, _ := strings.Cut(m[1], "|")
			d.add(strings.TrimSpace(target))
		}
	}
	return d.out
}

// Body returns the prose of the shard as plain text, one block per line.
func (s *Shard) Body() string {
	return strings.Join(s.prose(), "\n")
}

// prose returns the text of every paragraph, heading and table cell in
// document order. Code is left out.
func (s *Shard) prose() []string {
	var out []string
	var visit func(h ast.Handle)
	visit = func(h ast.Handle) {
		n := s.Graph.Get(h)
		if n == nil {
			return
		}
		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading, ast.KindTableCell:
			var b strings.Builder
			s.proseText(&b, h)
			if t := b.String(); t != "" {
				out = append(out, t)
			}
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(s.Root())
	return out
}

func (s *Shard) proseText(b *strings.Builder, h ast.Handle) {
	n := s.Graph.Get(h)
	if n == nil {
		return
	}
	switch p := n.Payload.(type) {
	case ast.Text:
		b.WriteString(p.Value)
	case ast.Break:
		b.WriteByte('\n')
	}
	for _, c := range n.Children {
		s.proseText(b, c)
	}
}

type dedup struct {
	seen map[string]struct{}
	out  []string
}

func (d *dedup) add(s string) {
	if s == "" {
		return
	}
	if d.seen == nil {
		d.seen = make(map[string]struct{})
	}
	if _, ok := d.seen[s]; ok {
		return
	}
	d.seen[s] = struct{}{}
	d.out = append(d.out, s)
}
