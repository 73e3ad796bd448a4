package render

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// TerminalStyles holds the lipgloss styles of the terminal target.
type TerminalStyles struct {
	Bold        lipgloss.Style
	Heading     lipgloss.Style
	TableHeader lipgloss.Style
	TableCell   lipgloss.Style
	TableBorder lipgloss.Style
}

// DefaultTerminalStyles mirrors the widget's look on a colour terminal.
func DefaultTerminalStyles() TerminalStyles {
	return TerminalStyles{
		Bold:        lipgloss.NewStyle().Bold(true),
		Heading:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		TableHeader: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		TableCell:   lipgloss.NewStyle().Padding(0, 1),
		TableBorder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Terminal renders replies for the command-line client.
type Terminal struct {
	parser parser.Parser
	styles TerminalStyles
	width  int
}

// NewTerminal creates a terminal renderer. A positive width wraps paragraphs.
func NewTerminal(width int, styles TerminalStyles) *Terminal {
	return &Terminal{parser: newParser(), styles: styles, width: width}
}

// Render converts one reply into styled terminal text.
func (r *Terminal) Render(reply string) string {
	source := []byte(stripControl(Normalize(reply)))
	doc := r.parser.Parse(text.NewReader(source))

	blocks := make([]string, 0, doc.ChildCount())
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		if out := r.block(c, source); out != "" {
			blocks = append(blocks, out)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (r *Terminal) block(n ast.Node, source []byte) string {
	construct, ok := classify(n)
	if !ok {
		if h, isHeading := n.(*ast.Heading); isHeading {
			return r.wrap(strings.Repeat("#", h.Level) + " " + r.inline(n, source))
		}
		return r.wrap(r.inline(n, source))
	}

	switch construct {
	case Heading3:
		return r.styles.Heading.Render(r.inline(n, source))
	case OrderedList, UnorderedList:
		return r.list(n.(*ast.List), source)
	case Table:
		return r.table(n, source)
	default:
		return r.wrap(r.inline(n, source))
	}
}

func (r *Terminal) list(list *ast.List, source []byte) string {
	lines := make([]string, 0, list.ChildCount())
	number := list.Start
	if number == 0 {
		number = 1
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		prefix := "• "
		if list.IsOrdered() {
			prefix = strconv.Itoa(number) + ". "
			number++
		}
		parts := make([]string, 0, item.ChildCount())
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			parts = append(parts, r.block(c, source))
		}
		body := strings.Join(parts, "\n")
		lines = append(lines, prefix+strings.ReplaceAll(body, "\n", "\n"+strings.Repeat(" ", len([]rune(prefix)))))
	}
	return strings.Join(lines, "\n")
}

func (r *Terminal) table(n ast.Node, source []byte) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.styles.TableBorder).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.styles.TableHeader
			}
			return r.styles.TableCell
		})

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		cells := make([]string, 0, c.ChildCount())
		for cell := c.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, r.inline(cell, source))
		}
		if _, header := c.(*extast.TableHeader); header {
			t.Headers(cells...)
			continue
		}
		t.Row(cells...)
	}
	return t.String()
}

func (r *Terminal) inline(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			b.Write(node.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.Emphasis:
			inner := r.inline(node, source)
			if node.Level == 2 {
				b.WriteString(r.styles.Bold.Render(inner))
				continue
			}
			marker := strings.Repeat(emphasisMarker(node, source), node.Level)
			b.WriteString(marker + inner + marker)
		default:
			b.WriteString(r.inline(node, source))
		}
	}
	return b.String()
}

func (r *Terminal) wrap(s string) string {
	if r.width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(r.width).Render(s)
}

// stripControl drops control characters other than newline and tab so a
// reply cannot smuggle terminal escape sequences.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0) {
			return -1
		}
		return r
	}, s)
}
