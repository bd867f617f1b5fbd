// Package ast holds the document graph of a shard: every syntax node of one
// document lives in a single arena and refers to its children by handle.
package ast

import (
	"strconv"

	"github.com/gpabois/emerald/internal/arena"
	"github.com/gpabois/emerald/internal/value"
)

// Handle identifies a node inside one Graph.
type Handle = arena.Handle

// Kind enumerates the node variants.
type Kind uint8

const (
	KindRoot Kind = iota + 1
	KindBlockQuote
	KindParagraph
	KindHeading
	KindList
	KindListItem
	KindText
	KindEmphasis
	KindStrong
	KindDelete
	KindInlineCode
	KindCode
	KindInlineMath
	KindMath
	KindBreak
	KindThematicBreak
	KindLink
	KindLinkReference
	KindImage
	KindImageReference
	KindDefinition
	KindFootnoteReference
	KindFootnoteDefinition
	KindTable
	KindTableRow
	KindTableCell
	KindFrontMatter
	KindFlowExpression
	KindTextExpression
	KindFlowElement
	KindTextElement
	KindHTML
)

var kindNames = map[Kind]string{
	KindRoot:               "root",
	KindBlockQuote:         "blockquote",
	KindParagraph:          "paragraph",
	KindHeading:            "heading",
	KindList:               "list",
	KindListItem:           "listItem",
	KindText:               "text",
	KindEmphasis:           "emphasis",
	KindStrong:             "strong",
	KindDelete:             "delete",
	KindInlineCode:         "inlineCode",
	KindCode:               "code",
	KindInlineMath:         "inlineMath",
	KindMath:               "math",
	KindBreak:              "break",
	KindThematicBreak:      "thematicBreak",
	KindLink:               "link",
	KindLinkReference:      "linkReference",
	KindImage:              "image",
	KindImageReference:     "imageReference",
	KindDefinition:         "definition",
	KindFootnoteReference:  "footnoteReference",
	KindFootnoteDefinition: "footnoteDefinition",
	KindTable:              "table",
	KindTableRow:           "tableRow",
	KindTableCell:          "tableCell",
	KindFrontMatter:        "frontMatter",
	KindFlowExpression:     "flowExpression",
	KindTextExpression:     "textExpression",
	KindFlowElement:        "flowElement",
	KindTextElement:        "textElement",
	KindHTML:               "html",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// IsLeaf reports whether nodes of kind k never own children.
func (k Kind) IsLeaf() bool {
	switch k {
	case KindText, KindInlineCode, KindCode, KindInlineMath, KindMath, KindBreak,
		KindThematicBreak, KindImage, KindImageReference, KindDefinition,
		KindFootnoteReference, KindFrontMatter, KindFlowExpression,
		KindTextExpression, KindHTML:
		return true
	}
	return false
}

// Point is a location in the source text. Line and Column are 1-based,
// Offset is a 0-based byte offset.
type Point struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

// Position is the source span of a node.
type Position struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Node is one syntax element.
type Node struct {
	Position *Position
	Children []Handle
	Payload  Payload
}

// Kind returns the kind of the node payload.
func (n *Node) Kind() Kind { return n.Payload.Kind() }

// Payload is the closed set of node variants. Every implementation lives in
// this package.
type Payload interface {
	Kind() Kind
	payload()
}

// ReferenceKind tells how a reference names its definition.
type ReferenceKind uint8

const (
	ReferenceShortcut ReferenceKind = iota
	ReferenceCollapsed
	ReferenceFull
)

// Alignment is the alignment of one table column.
type Alignment uint8

const (
	AlignNone Alignment = iota
	AlignLeft
	AlignRight
	AlignCenter
)

// Checkbox is the tri-state task marker of a list item.
type Checkbox uint8

const (
	NoCheckbox Checkbox = iota
	Unchecked
	Checked
)

// Checkable reports whether the item carries a task checkbox.
func (c Checkbox) Checkable() bool { return c != NoCheckbox }

// FrontMatterFormat is the source syntax of a front-matter block.
type FrontMatterFormat uint8

const (
	FormatYAML FrontMatterFormat = iota
	FormatTOML
)

func (f FrontMatterFormat) String() string {
	if f == FormatTOML {
		return "toml"
	}
	return "yaml"
}

// Attribute is one attribute of an embedded markup element. Expression
// attributes carry their source in Value and have no Name.
type Attribute struct {
	Name       string
	Value      string
	Expression bool
}

type (
	Root       struct{}
	BlockQuote struct{}
	Paragraph  struct{}
	Heading    struct{ Depth int }
	List       struct {
		Ordered bool
		Start   int
		Spread  bool
	}
	ListItem struct {
		Checked Checkbox
		Spread  bool
	}
	Text       struct{ Value string }
	Emphasis   struct{}
	Strong     struct{}
	Delete     struct{}
	InlineCode struct{ Value string }
	Code       struct{ Value, Lang, Meta string }
	InlineMath struct{ Value string }
	Math       struct{ Value, Meta string }
	Break         struct{}
	ThematicBreak struct{}
	Link          struct{ URL, Title string }
	LinkReference struct {
		ReferenceKind ReferenceKind
		Identifier    string
		Label         string
	}
	Image          struct{ Alt, URL, Title string }
	ImageReference struct {
		Alt           string
		Identifier    string
		ReferenceKind ReferenceKind
		Label         string
	}
	Definition         struct{ URL, Title, Identifier, Label string }
	FootnoteReference  struct{ Identifier, Label string }
	FootnoteDefinition struct{ Identifier, Label string }
	Table              struct{ Align []Alignment }
	TableRow           struct{}
	TableCell          struct{}
	FrontMatter        struct {
		Format FrontMatterFormat
		Value  value.Value
	}
	FlowExpression struct{ Value string }
	TextExpression struct{ Value string }
	FlowElement    struct {
		Name       string
		Attributes []Attribute
	}
	TextElement struct {
		Name       string
		Attributes []Attribute
	}
	HTML struct{ Value string }
)

func (Root) Kind() Kind               { return KindRoot }
func (BlockQuote) Kind() Kind         { return KindBlockQuote }
func (Paragraph) Kind() Kind          { return KindParagraph }
func (Heading) Kind() Kind            { return KindHeading }
func (List) Kind() Kind               { return KindList }
func (ListItem) Kind() Kind           { return KindListItem }
func (Text) Kind() Kind               { return KindText }
func (Emphasis) Kind() Kind           { return KindEmphasis }
func (Strong) Kind() Kind             { return KindStrong }
func (Delete) Kind() Kind             { return KindDelete }
func (InlineCode) Kind() Kind         { return KindInlineCode }
func (Code) Kind() Kind               { return KindCode }
func (InlineMath) Kind() Kind         { return KindInlineMath }
func (Math) Kind() Kind               { return KindMath }
func (Break) Kind() Kind              { return KindBreak }
func (ThematicBreak) Kind() Kind      { return KindThematicBreak }
func (Link) Kind() Kind               { return KindLink }
func (LinkReference) Kind() Kind      { return KindLinkReference }
func (Image) Kind() Kind              { return KindImage }
func (ImageReference) Kind() Kind     { return KindImageReference }
func (Definition) Kind() Kind         { return KindDefinition }
func (FootnoteReference) Kind() Kind  { return KindFootnoteReference }
func (FootnoteDefinition) Kind() Kind { return KindFootnoteDefinition }
func (Table) Kind() Kind              { return KindTable }
func (TableRow) Kind() Kind           { return KindTableRow }
func (TableCell) Kind() Kind          { return KindTableCell }
func (FrontMatter) Kind() Kind        { return KindFrontMatter }
func (FlowExpression) Kind() Kind     { return KindFlowExpression }
func (TextExpression) Kind() Kind     { return KindTextExpression }
func (FlowElement) Kind() Kind        { return KindFlowElement }
func (TextElement) Kind() Kind        { return KindTextElement }
func (HTML) Kind() Kind               { return KindHTML }

func (Root) payload()               {}
func (BlockQuote) payload()         {}
func (Paragraph) payload()          {}
func (Heading) payload()            {}
func (List) payload()               {}
func (ListItem) payload()           {}
func (Text) payload()               {}
func (Emphasis) payload()           {}
func (Strong) payload()             {}
func (Delete) payload()             {}
func (InlineCode) payload()         {}
func (Code) payload()               {}
func (InlineMath) payload()         {}
func (Math) payload()               {}
func (Break) payload()              {}
func (ThematicBreak) payload()      {}
func (Link) payload()               {}
func (LinkReference) payload()      {}
func (Image) payload()              {}
func (ImageReference) payload()     {}
func (Definition) payload()         {}
func (FootnoteReference) payload()  {}
func (FootnoteDefinition) payload() {}
func (Table) payload()              {}
func (TableRow) payload()           {}
func (TableCell) payload()          {}
func (FrontMatter) payload()        {}
func (FlowExpression) payload()     {}
func (TextExpression) payload()     {}
func (FlowElement) payload()        {}
func (TextElement) payload()        {}
func (HTML) payload()               {}

// clonePayload deep-copies the parts of p that would otherwise be shared.
func clonePayload(p Payload) Payload {
	switch t := p.(type) {
	case Table:
		t.Align = append([]Alignment(nil), t.Align...)
		return t
	case FrontMatter:
		t.Value = t.Value.Clone()
		return t
	case FlowElement:
		t.Attributes = append([]Attribute(nil), t.Attributes...)
		return t
	case TextElement:
		t.Attributes = append([]Attribute(nil), t.Attributes...)
		return t
	}
	return p
}
