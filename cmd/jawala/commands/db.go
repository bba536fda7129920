package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jawala/display"
	"github.com/teranos/jawala/sym"
)

// DbCmd represents the db (local cache) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.Short("db"),
	Long: sym.DB + ` db — Inspect the local cache

Examples:
  jawala db stats                   # Row counts and the stored data version`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE:  runDbStats,
}

func init() {
	dbStatsCmd.Flags().Bool("json", false, "Output as JSON")
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	d, err := openDirectory()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := d.Store().Stats(ctx)
	if err != nil {
		return err
	}
	st.Path = d.Config().GetDatabasePath()
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(st)
	}

	fmt.Printf("%s Cache Statistics\n\n", sym.DB)
	if !st.Available {
		pterm.Warning.Println("Local cache is disabled or could not be opened; every run fetches from the backend")
		return nil
	}
	rows := [][]string{
		{"Setting", "Value"},
		{"Path", st.Path},
		{"Schema version", st.SchemaVersion},
		{"Categories", fmt.Sprint(st.Categories)},
		{"Businesses", fmt.Sprint(st.Businesses)},
		{"Last synced", st.LastSyncedAt},
	}
	if st.HasVersion {
		rows = append(rows,
			[]string{"Remote count", fmt.Sprint(st.Version.BusinessCount)},
			[]string{"Remote updated", st.Version.LastUpdated},
		)
		if st.Version.ContentHash != "" {
			rows = append(rows, []string{"Content hash", st.Version.ContentHash})
		}
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
