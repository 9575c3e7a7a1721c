package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/statuscast/internal/client"
)

var (
	postURL  string
	postJSON bool
)

var postCmd = &cobra.Command{
	Use:   "post <user> <text...>",
	Short: "Post a status update to a running server",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(postURL)
		res, err := c.PostStatus(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if postJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Fprintln(out, res.Message.Text())
		if !res.Persisted {
			fmt.Fprintln(out, "\n(warning: the update could not be saved)")
		}
		return nil
	},
}

func init() {
	postCmd.Flags().StringVar(&postURL, "url", "", "server URL (default $STATUSCAST_URL or http://127.0.0.1:37778)")
	postCmd.Flags().BoolVar(&postJSON, "json", false, "print the full JSON response")
}
