package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/statuscast/internal/profile"
	"github.com/lazypower/statuscast/internal/render"
)

var (
	historyLimit int
	historyJSON  bool
	purgeYes     bool
)

var historyCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "Show a user's stored updates, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.GetHistory(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No updates.")
			return nil
		}
		for _, e := range entries {
			when := e.Timestamp
			if at, err := e.Time(); err == nil {
				when = humanize.Time(at)
			}
			s := e.ProcessedStatus
			fmt.Fprintf(out, "%-16s %s %s\n", when, s.MoodEmoji, s.OverallStatus)
			fmt.Fprintf(out, "%-16s %q\n", "", e.RawInput)
		}
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest <user>",
	Short: "Render a user's latest status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		le, err := db.GetLatest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if le == nil {
			return fmt.Errorf("no status for %s", args[0])
		}
		prefs, err := db.GetPreferences(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		msg := render.Render(render.Input{
			UserID:      args[0],
			Snapshot:    profile.Apply(le.ProcessedStatus, prefs),
			Preferences: prefs,
			Now:         time.Now(),
		})
		fmt.Fprintln(cmd.OutOrStdout(), msg.Text())
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge <user>",
	Short: "Delete everything stored for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes {
			return fmt.Errorf("refusing to purge %s without --yes", args[0])
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PurgeAll(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d records for %s\n", n, args[0])
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show only the newest N entries")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print entries as JSON")
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "confirm deletion")
}
