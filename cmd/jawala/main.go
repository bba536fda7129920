package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/jawala/cmd/jawala/commands"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
)

var rootCmd = &cobra.Command{
	Use:   "jawala",
	Short: "jawala - Village business directory",
	Long: `jawala - Browse, rate and maintain the village business directory.

Listings are cached locally and only refetched when the backend reports a
new data version, so the directory keeps working on a poor connection.

Available commands:
  sync   - Bring the local cache up to date
  ls     - List and search businesses
  show   - Show one business with share links
  rate   - Rate a business
  watch  - Follow live directory changes
  ask    - Ask the assistant about local businesses
  admin  - Add, edit, delete and import listings
  am     - Manage configuration ("I am")
  db     - Inspect the local cache

Examples:
  jawala sync                 # Check the data version and refresh if needed
  jawala ls --grouped         # Every listing by category
  jawala rate b1 5            # Five stars for business b1
  jawala watch                # Stay up to date live`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.InitializeWithLevel(jsonLogs, logger.VerbosityToLevel(verbosity)); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.LsCmd)
	rootCmd.AddCommand(commands.ShowCmd)
	rootCmd.AddCommand(commands.RateCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.AskCmd)
	rootCmd.AddCommand(commands.AdminCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "  "+hint)
		}
		os.Exit(1)
	}
}
