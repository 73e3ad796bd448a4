package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/transport-university/chatbot/backend/internal/exchangelog"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
	"github.com/transport-university/chatbot/backend/internal/session"
)

const historyPage = 50

const chatHelp = `Commands:
  /older        load older messages
  /history      reload the latest messages
  /restart      start over from the welcome message
  /delete <id>  delete an exchange by number
  /quit         leave the chat`

// lineReader abstracts liner for non-interactive input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

type plainReader struct {
	in  *bufio.Reader
	out io.Writer
}

func (r *plainReader) Prompt(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *plainReader) Close() error { return nil }

type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(historyFile string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	r := &linerReader{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

func (r *linerReader) Close() error {
	if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
		_, _ = r.line.WriteHistory(f)
		f.Close()
	}
	return r.line.Close()
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, server, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			if !creds.IsAuthenticated() {
				return errNotSignedIn
			}

			client := a.client(server)
			catalog := a.catalog(cmd.Context(), client)
			ctrl := session.NewController(client, creds, session.Options{
				Welcome:      catalog.Welcome,
				Apology:      catalog.Apology,
				HistoryLimit: historyPage,
				Logger:       a.logger,
			})

			width, interactive := a.terminal()
			var reader lineReader = &plainReader{in: a.input(), out: a.stdout}
			if interactive {
				reader = newLinerReader(filepath.Join(filepath.Dir(a.credPath), "chat_history"))
			}
			defer reader.Close()

			return runChat(cmd.Context(), ctrl, reader, newTranscript(a.stdout, width))
		},
	}
}

// catalog asks the server for its sentences and falls back to the built-in
// catalogs when it cannot be reached.
func (a *app) catalog(ctx context.Context, client *exchangelog.Client) locale.Catalog {
	catalog, err := client.Catalog(ctx)
	if err == nil && catalog.Welcome != "" && catalog.Apology != "" {
		return catalog
	}
	if err != nil {
		a.logger.Debug("catalog unavailable, using built-in sentences", "err", err)
	}
	return locale.NewMemoryStore(locale.Seed()).Match(a.lang)
}

// terminal reports the output width and whether stdin is interactive.
func (a *app) terminal() (int, bool) {
	width := 0
	if f, ok := a.stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = w
		}
	}
	f, ok := a.stdin.(*os.File)
	return width, ok && term.IsTerminal(int(f.Fd()))
}

func runChat(ctx context.Context, ctrl *session.Controller, reader lineReader, out *transcript) error {
	ctrl.Open(ctx)
	defer ctrl.Close()

	out.reset(ctrl.Snapshot())
	out.note("/help for commands")

	for {
		line, err := reader.Prompt("› ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := ctrl.Send(ctx, line); err != nil {
				out.note("%v", err)
				continue
			}
			out.update(ctrl.Snapshot(), false)
			continue
		}

		name, arg, _ := strings.Cut(line, " ")
		switch name {
		case "/quit", "/exit":
			return nil
		case "/help":
			out.note(chatHelp)
		case "/restart":
			ctrl.Restart()
			out.reset(ctrl.Snapshot())
		case "/history":
			if err := ctrl.LoadHistory(ctx, historyPage, 0); err != nil {
				out.note("could not load history: %v", err)
				continue
			}
			out.reset(ctrl.Snapshot())
		case "/older":
			more, err := ctrl.LoadOlder(ctx)
			if err != nil {
				out.note("could not load older messages: %v", err)
				continue
			}
			out.note("── older messages ──")
			out.update(ctrl.Snapshot(), true)
			if !more {
				out.note("── start of conversation ──")
			}
		case "/delete":
			id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(arg), "#"), 10, 64)
			if err != nil || id <= 0 {
				out.note("usage: /delete <id>")
				continue
			}
			if err := ctrl.Delete(ctx, id); err != nil {
				out.note("could not delete #%d: %v", id, err)
				continue
			}
			out.note("deleted #%d", id)
		default:
			out.note("unknown command %s, /help lists commands", name)
		}
	}
}
