package render

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// HTML renders replies for the web widget.
type HTML struct {
	parser   parser.Parser
	sanitize *bluemonday.Policy
}

// NewHTML creates an HTML renderer.
func NewHTML() *HTML {
	return &HTML{parser: newParser(), sanitize: newSanitizer()}
}

// Render converts one reply into safe HTML.
func (r *HTML) Render(reply string) string {
	source := []byte(Normalize(reply))
	doc := r.parser.Parse(text.NewReader(source))

	var b strings.Builder
	r.children(&b, doc, source)
	return r.sanitize.Sanitize(b.String())
}

func (r *HTML) children(b *strings.Builder, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		r.node(b, c, source)
	}
}

func (r *HTML) node(b *strings.Builder, n ast.Node, source []byte) {
	if t, ok := n.(*ast.Text); ok {
		b.WriteString(html.EscapeString(string(t.Value(source))))
		if t.SoftLineBreak() || t.HardLineBreak() {
			b.WriteByte('\n')
		}
		return
	}

	construct, ok := classify(n)
	if !ok {
		r.literal(b, n, source)
		return
	}

	switch construct {
	case Table:
		r.table(b, n, source)
		return
	case OrderedList:
		if list := n.(*ast.List); list.Start > 1 {
			openTag(b, Rules[construct], ` start="`+strconv.Itoa(list.Start)+`"`)
			r.children(b, n, source)
			closeTag(b, Rules[construct])
			return
		}
	}

	rule := Rules[construct]
	openTag(b, rule, "")
	r.children(b, n, source)
	closeTag(b, rule)
	if n.Type() == ast.TypeBlock {
		b.WriteByte('\n')
	}
}

func (r *HTML) table(b *strings.Builder, n ast.Node, source []byte) {
	rule := Rules[Table]
	b.WriteString("<" + rule.WrapperTag + ` class="` + rule.WrapperClass + `" style="` + rule.WrapperStyle + `">`)
	openTag(b, rule, "")

	bodyOpen := false
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.(type) {
		case *extast.TableHeader:
			openTag(b, Rules[TableHead], "")
			openTag(b, Rules[TableRow], "")
			r.children(b, c, source)
			closeTag(b, Rules[TableRow])
			closeTag(b, Rules[TableHead])
		case *extast.TableRow:
			if !bodyOpen {
				openTag(b, Rules[TableBody], "")
				bodyOpen = true
			}
			r.node(b, c, source)
		}
	}
	if bodyOpen {
		closeTag(b, Rules[TableBody])
	}

	closeTag(b, rule)
	b.WriteString("</" + rule.WrapperTag + ">\n")
}

// literal writes a node that is not on the whitelist as the text it was
// written with.
func (r *HTML) literal(b *strings.Builder, n ast.Node, source []byte) {
	switch node := n.(type) {
	case *ast.Emphasis:
		marker := strings.Repeat(emphasisMarker(node, source), node.Level)
		b.WriteString(marker)
		r.children(b, n, source)
		b.WriteString(marker)
	case *ast.Heading:
		rule := Rules[Paragraph]
		openTag(b, rule, "")
		b.WriteString(strings.Repeat("#", node.Level) + " ")
		r.children(b, n, source)
		closeTag(b, rule)
		b.WriteByte('\n')
	case *ast.String:
		b.WriteString(html.EscapeString(string(node.Value)))
	default:
		if n.Type() == ast.TypeBlock && n.ChildCount() == 0 {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.WriteString(html.EscapeString(string(line.Value(source))))
			}
			return
		}
		r.children(b, n, source)
	}
}

func openTag(b *strings.Builder, rule Rule, attrs string) {
	b.WriteString("<" + rule.Tag + ` class="` + rule.Class + `"` + attrs + ">")
}

func closeTag(b *strings.Builder, rule Rule) {
	b.WriteString("</" + rule.Tag + ">")
}

func newSanitizer() *bluemonday.Policy {
	tags := make([]string, 0, len(Rules)+1)
	for _, rule := range Rules {
		tags = append(tags, rule.Tag)
		if rule.WrapperTag != "" {
			tags = append(tags, rule.WrapperTag)
		}
	}

	p := bluemonday.NewPolicy()
	p.AllowElements(tags...)
	p.AllowAttrs("class").OnElements(tags...)
	p.AllowAttrs("start").Matching(regexp.MustCompile(`^[0-9]+$`)).OnElements("ol")
	p.AllowStyles("overflow-x").MatchingEnum("auto").OnElements("div")
	return p
}
