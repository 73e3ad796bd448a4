// Package cli implements campuschat, the terminal client of the support chat.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/transport-university/chatbot/backend/internal/credentials"
	"github.com/transport-university/chatbot/backend/internal/exchangelog"
)

var (
	version = "dev"
	commit  = "unknown"
)

const defaultServer = "http://localhost:8080"

// app carries the state shared by every subcommand.
type app struct {
	server   string
	lang     string
	credPath string
	verbose  bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// client builds an API client for the configured server.
func (a *app) client(server string) *exchangelog.Client {
	return exchangelog.New(server, exchangelog.WithLanguage(a.lang), exchangelog.WithLogger(a.logger))
}

// credentials loads the stored token. The server flag wins over the stored
// server only when it was set explicitly.
func (a *app) credentials(cmd *cobra.Command) (credentials.Credentials, string, error) {
	creds, err := credentials.Load(a.credPath)
	if err != nil {
		return credentials.Credentials{}, "", err
	}
	server := a.server
	if !cmd.Flags().Changed("server") && creds.Server != "" {
		server = creds.Server
	}
	return creds, server, nil
}

// NewRootCmd assembles the command tree writing to the given streams.
func NewRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "campuschat",
		Short: "Terminal client for the university support assistant",
		Long: `campuschat talks to the university support assistant from a terminal.
Sign in once with "campuschat login", then start a conversation with
"campuschat chat".`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

			if a.credPath == "" {
				p, err := credentials.DefaultPath()
				if err != nil {
					return err
				}
				a.credPath = p
			}
			return nil
		},
	}

	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	server := os.Getenv("CAMPUSCHAT_SERVER")
	if server == "" {
		server = defaultServer
	}
	lang := os.Getenv("CAMPUSCHAT_LANG")
	if lang == "" {
		lang = "vi"
	}

	root.PersistentFlags().StringVarP(&a.server, "server", "s", server, "chat server base URL")
	root.PersistentFlags().StringVarP(&a.lang, "lang", "l", lang, "preferred language (vi or en)")
	root.PersistentFlags().StringVar(&a.credPath, "credentials", "", "credentials file (default is the user config dir)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newChatCmd(a),
		newHistoryCmd(a),
		newDeleteCmd(a),
	)
	return root
}

// Execute runs the command tree against the process streams.
func Execute() {
	if err := NewRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
