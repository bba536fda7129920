package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jawala/am"
	"github.com/teranos/jawala/app"
	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
	smartsync "github.com/teranos/jawala/sync"
)

// openDirectory loads and validates am config and builds the directory client
func openDirectory() (*app.Directory, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(err, "Run `jawala am validate` for details.")
	}
	logger.SetTheme(cfg.GetLogTheme())
	return app.New(app.Options{Config: cfg, Logger: logger.ComponentLogger("jawala")})
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// categoryName resolves a category id for display
func categoryName(state *directory.State, id string) string {
	if c, ok := state.Category(id); ok {
		return c.Name
	}
	return id
}

// businessRows renders listings as table rows with a header
func businessRows(state *directory.State, list []types.Business) [][]string {
	rows := [][]string{{"ID", "Shop", "Owner", "Category", "Phone", "Rating"}}
	for _, b := range list {
		rows = append(rows, []string{
			b.ID,
			b.ShopName,
			b.OwnerName,
			categoryName(state, b.Category),
			directory.FormatPhoneNumber(b.ContactNumber),
			directory.RatingSummary(b),
		})
	}
	return rows
}

// loadDirectory runs SmartSync and reports the outcome on stderr according to -v
func loadDirectory(ctx context.Context, cmd *cobra.Command, d *app.Directory) smartsync.Result {
	res := d.Load(ctx)
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if res.Err != nil && logger.ShouldOutput(verbosity, logger.OutputErrors) {
		fmt.Fprintln(os.Stderr, pterm.Yellow("Backend unavailable, showing the cached directory"))
	}
	if logger.ShouldOutput(verbosity, logger.OutputSyncStatus) {
		fmt.Fprintf(os.Stderr, "synced %d businesses (%s, from cache: %t)\n", len(res.Businesses), res.Action, res.FromCache)
	}
	return res
}
