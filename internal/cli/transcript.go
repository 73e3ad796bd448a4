package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/render"
	"github.com/transport-university/chatbot/backend/internal/session"
)

var (
	userLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	botLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	noteStyle = lipgloss.NewStyle().Faint(true)
)

// transcript prints conversation messages once each.
type transcript struct {
	out      io.Writer
	renderer *render.Terminal
	printed  map[string]bool
}

func newTranscript(out io.Writer, width int) *transcript {
	return &transcript{
		out:      out,
		renderer: render.NewTerminal(width, render.DefaultTerminalStyles()),
		printed:  make(map[string]bool),
	}
}

// reset prints the whole view, forgetting what was shown before.
func (t *transcript) reset(state session.State) {
	t.printed = make(map[string]bool)
	t.update(state, true)
}

// update prints messages not shown yet. Typed user messages are already on
// screen, so they are only printed when withUser is set.
func (t *transcript) update(state session.State, withUser bool) {
	for _, m := range state.Messages {
		if t.printed[m.ID] {
			continue
		}
		t.printed[m.ID] = true
		if m.IsUser() && !withUser {
			continue
		}
		t.print(m)
	}
}

func (t *transcript) print(m chat.Message) {
	if m.IsUser() {
		label := "Bạn:"
		if n, _, ok := strings.Cut(m.ID, ":"); ok && isNumber(n) {
			label = "Bạn #" + n + ":"
		}
		fmt.Fprintf(t.out, "%s %s\n\n", userLabel.Render(label), m.Text)
		return
	}
	fmt.Fprintf(t.out, "%s\n%s\n\n", botLabel.Render("Trợ lý:"), t.renderer.Render(m.Text))
}

func (t *transcript) note(format string, args ...any) {
	fmt.Fprintln(t.out, noteStyle.Render(strings.TrimSpace(fmt.Sprintf(format, args...))))
}

// printExchange prints one stored exchange for the history command.
func (t *transcript) printExchange(ex chat.Exchange) {
	fmt.Fprintln(t.out, noteStyle.Render(fmt.Sprintf("#%d  %s", ex.ID, ex.CreatedAt.Local().Format("2006-01-02 15:04"))))
	fmt.Fprintf(t.out, "%s %s\n", userLabel.Render("Bạn:"), ex.Message)
	if ex.Answered() {
		fmt.Fprintf(t.out, "%s\n%s\n", botLabel.Render("Trợ lý:"), t.renderer.Render(*ex.Response))
	} else {
		fmt.Fprintln(t.out, noteStyle.Render("(no reply)"))
	}
	fmt.Fprintln(t.out)
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
