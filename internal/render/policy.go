// Package render turns untrusted bot replies into display markup. Only the
// constructs listed in Rules are ever emitted; everything else in a reply
// is shown as literal text.
package render

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/util"
)

// Construct names a Markdown element bot replies may use.
type Construct string

const (
	Paragraph       Construct = "paragraph"
	OrderedList     Construct = "ordered_list"
	UnorderedList   Construct = "unordered_list"
	ListItem        Construct = "list_item"
	Bold            Construct = "bold"
	Heading3        Construct = "heading3"
	Table           Construct = "table"
	TableHead       Construct = "table_head"
	TableBody       Construct = "table_body"
	TableRow        Construct = "table_row"
	TableHeaderCell Construct = "table_header_cell"
	TableCell       Construct = "table_cell"
)

// Rule is the fixed presentation of one construct.
type Rule struct {
	Tag   string
	Class string

	// Wrapper encloses the element, for tables the horizontal scroller.
	WrapperTag   string
	WrapperClass string
	WrapperStyle string
}

// Rules is the whole whitelist.
var Rules = map[Construct]Rule{
	Paragraph:     {Tag: "p", Class: "chat-md-p"},
	OrderedList:   {Tag: "ol", Class: "chat-md-ol"},
	UnorderedList: {Tag: "ul", Class: "chat-md-ul"},
	ListItem:      {Tag: "li", Class: "chat-md-li"},
	Bold:          {Tag: "strong", Class: "chat-md-strong"},
	Heading3:      {Tag: "h3", Class: "chat-md-h3"},
	Table: {
		Tag:          "table",
		Class:        "chat-md-table",
		WrapperTag:   "div",
		WrapperClass: "chat-md-table-scroll",
		WrapperStyle: "overflow-x: auto",
	},
	TableHead:       {Tag: "thead", Class: "chat-md-thead"},
	TableBody:       {Tag: "tbody", Class: "chat-md-tbody"},
	TableRow:        {Tag: "tr", Class: "chat-md-tr"},
	TableHeaderCell: {Tag: "th", Class: "chat-md-th"},
	TableCell:       {Tag: "td", Class: "chat-md-td"},
}

var lineBreakTag = regexp.MustCompile(`(?i)<br\s*/?>`)

// Normalize turns literal <br> tags and CRLF line endings into newlines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return lineBreakTag.ReplaceAllString(text, "\n")
}

// classify maps a parsed node onto the whitelist.
func classify(n ast.Node) (Construct, bool) {
	switch node := n.(type) {
	case *ast.Paragraph:
		return Paragraph, true
	case *ast.List:
		if node.IsOrdered() {
			return OrderedList, true
		}
		return UnorderedList, true
	case *ast.ListItem:
		return ListItem, true
	case *ast.Emphasis:
		if node.Level == 2 {
			return Bold, true
		}
	case *ast.Heading:
		if node.Level == 3 {
			return Heading3, true
		}
	case *extast.Table:
		return Table, true
	case *extast.TableHeader:
		return TableHead, true
	case *extast.TableRow:
		return TableRow, true
	case *extast.TableCell:
		if _, ok := node.Parent().(*extast.TableHeader); ok {
			return TableHeaderCell, true
		}
		return TableCell, true
	}
	return "", false
}

// newParser builds a goldmark parser that only recognises whitelisted
// syntax. Raw HTML, links, images, code and block quotes are never parsed,
// so their source stays plain text.
func newParser() parser.Parser {
	return parser.NewParser(
		parser.WithBlockParsers(
			util.Prioritized(parser.NewListParser(), 300),
			util.Prioritized(parser.NewListItemParser(), 400),
			util.Prioritized(parser.NewATXHeadingParser(), 600),
			util.Prioritized(parser.NewParagraphParser(), 1000),
		),
		parser.WithInlineParsers(
			util.Prioritized(parser.NewEmphasisParser(), 500),
		),
		parser.WithParagraphTransformers(
			util.Prioritized(extension.NewTableParagraphTransformer(), 200),
		),
		parser.WithASTTransformers(
			util.Prioritized(extension.NewTableASTTransformer(), 0),
		),
	)
}

// emphasisMarker recovers the delimiter character used in the source.
func emphasisMarker(n ast.Node, source []byte) string {
	for c := n.FirstChild(); c != nil; c = c.FirstChild() {
		if t, ok := c.(*ast.Text); ok {
			if i := t.Segment.Start - 1; i >= 0 && i < len(source) && (source[i] == '*' || source[i] == '_') {
				return string(source[i])
			}
			break
		}
	}
	return "*"
}
