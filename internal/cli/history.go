package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored exchanges, newest page first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, server, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			if !creds.IsAuthenticated() {
				return errNotSignedIn
			}

			page, err := a.client(server).FetchHistory(cmd.Context(), creds.Token(), limit, offset)
			if err != nil {
				return err
			}

			width, _ := a.terminal()
			out := newTranscript(a.stdout, width)
			if len(page.Items) == 0 {
				out.note("no exchanges")
				return nil
			}
			for _, ex := range page.Items {
				out.printExchange(ex)
			}
			out.note("showing %d of %d (offset %d)", len(page.Items), page.Total, page.Offset)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", historyPage, "exchanges per page (1-200)")
	cmd.Flags().IntVarP(&offset, "offset", "o", 0, "skip this many newest exchanges")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete stored exchanges",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid exchange id %q", arg)
				}
				ids = append(ids, id)
			}

			creds, server, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			if !creds.IsAuthenticated() {
				return errNotSignedIn
			}

			client := a.client(server)
			for _, id := range ids {
				if err := client.DeleteExchange(cmd.Context(), creds.Token(), id); err != nil {
					return fmt.Errorf("delete #%d: %w", id, err)
				}
				fmt.Fprintf(a.stdout, "Deleted #%d.\n", id)
			}
			return nil
		},
	}
}
