// Package markdown parses shard text with goldmark and converts the resulting
// tree into an ast.Graph.
package markdown

import (
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/gpabois/emerald/internal/ast"
)

var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		FrontMatter,
		Math,
	),
)

// Option configures parsing and conversion.
type Option func(*options)

type options struct {
	strict bool
	logger *slog.Logger
	name   string
}

// WithStrict makes the first conversion failure abort the whole document
// instead of dropping the failing subtree.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithLogger sets the logger used to report dropped subtrees.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSource names the document in log records.
func WithSource(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Parse parses markdown source into a document graph.
func Parse(source []byte, opts ...Option) (*ast.Graph, error) {
	doc := md.Parser().Parse(text.NewReader(source))
	return Convert(doc, source, opts...)
}
