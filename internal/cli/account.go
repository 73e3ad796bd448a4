package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/transport-university/chatbot/backend/internal/credentials"
	"github.com/transport-university/chatbot/backend/internal/model/user"
)

var errNotSignedIn = errors.New(`not signed in, run "campuschat login" first`)

func newRegisterCmd(a *app) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := a.input()
			var err error
			if username, err = a.ask(in, "Username: ", username); err != nil {
				return err
			}
			if email, err = a.ask(in, "Email: ", email); err != nil {
				return err
			}
			password, err := a.askSecret(in, "Password: ")
			if err != nil {
				return err
			}

			u, err := a.client(a.server).Register(cmd.Context(), user.RegisterRequest{
				Username: username,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Registered %s. Sign in with \"campuschat login\".\n", u.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := a.input()
			var err error
			if username, err = a.ask(in, "Username: ", username); err != nil {
				return err
			}
			password, err := a.askSecret(in, "Password: ")
			if err != nil {
				return err
			}

			tok, err := a.client(a.server).Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			creds := credentials.Credentials{
				Server:      a.server,
				Username:    username,
				AccessToken: tok.AccessToken,
				Language:    a.lang,
			}
			if tok.ExpiresIn > 0 {
				creds.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
			}
			if err := credentials.Save(a.credPath, creds); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Signed in as %s.\n", username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.Remove(a.credPath); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, server, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			if !creds.IsAuthenticated() {
				return errNotSignedIn
			}

			me, err := a.client(server).Me(cmd.Context(), creds.Token())
			if err != nil {
				return err
			}
			role := "student"
			if me.IsAdmin {
				role = "admin"
			}
			fmt.Fprintf(a.stdout, "%s <%s> (%s) on %s\n", me.Username, me.Email, role, server)
			return nil
		},
	}
}

func (a *app) input() *bufio.Reader {
	return bufio.NewReader(a.stdin)
}

// ask returns preset when given, otherwise prompts for one line.
func (a *app) ask(in *bufio.Reader, prompt, preset string) (string, error) {
	if preset = strings.TrimSpace(preset); preset != "" {
		return preset, nil
	}
	fmt.Fprint(a.stdout, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(strings.TrimSpace(prompt), ":"))
	}
	return line, nil
}

// askSecret reads a password without echo when stdin is a terminal.
func (a *app) askSecret(in *bufio.Reader, prompt string) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stdout, prompt)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stdout)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(secret), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
