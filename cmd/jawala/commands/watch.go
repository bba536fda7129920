package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jawala/am"
	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/display"
	"github.com/teranos/jawala/logger"
	"github.com/teranos/jawala/sym"
)

// WatchCmd follows the realtime change feed
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: sym.Short("watch"),
	Long: sym.Watch + ` watch — Follow live directory changes

Syncs once, then applies every business and rating change pushed by the
backend to the local cache as it happens. Lost connections are retried with
backoff and each reconnect resyncs before new changes are applied. Edits to
~/.jawala/am.toml are picked up while watching.

Press Ctrl+C to stop.`,
	RunE: runWatch,
}

func init() {
	WatchCmd.Flags().Bool("json", false, "Print each change as a JSON line")
}

func describeChange(state *directory.State, ev types.ChangeEvent) string {
	switch ev.Table {
	case types.TableRatings:
		b, _ := state.Lookup(ev.ID)
		return fmt.Sprintf("%s %s now %s", sym.Star, b.ShopName, directory.RatingSummary(b))
	case types.TableBusinesses:
		if ev.Type == types.ChangeDelete {
			return fmt.Sprintf("%s removed %s", sym.Shop, ev.ID)
		}
		name := ev.ID
		if ev.Business != nil {
			name = ev.Business.ShopName
		}
		verb := "updated"
		if ev.Type == types.ChangeInsert {
			verb = "added"
		}
		return fmt.Sprintf("%s %s %s", sym.Shop, verb, name)
	}
	return fmt.Sprintf("%s %s %s", ev.Table, ev.Type, ev.ID)
}

func runWatch(cmd *cobra.Command, args []string) error {
	d, err := openDirectory()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res := loadDirectory(ctx, cmd, d)
	jsonOut := display.ShouldOutputJSON(cmd)
	if !jsonOut {
		pterm.Info.Printf("%s Watching %d businesses (Ctrl+C to stop)\n", sym.Watch, len(res.Businesses))
	}

	sub, err := d.Watch(ctx, func(ev types.ChangeEvent) {
		if jsonOut {
			_ = display.OutputJSON(ev)
			return
		}
		fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), describeChange(d.State(), ev))
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	if watcher, err := am.NewConfigWatcher(am.UserConfigPath()); err != nil {
		logger.Warnw("Config changes will not be picked up", logger.FieldError, err)
	} else {
		watcher.OnReload(func(cfg *am.Config) error {
			logger.SetTheme(cfg.GetLogTheme())
			d.Config().Rating.UserName = cfg.Rating.UserName
			return nil
		})
		am.SetGlobalWatcher(watcher)
		watcher.Start()
		defer watcher.Stop()
	}

	select {
	case <-ctx.Done():
		if !jsonOut {
			pterm.Info.Println("Stopped")
		}
	case <-sub.Done():
		pterm.Warning.Println("Change feed stopped after repeated connection failures")
	}
	return nil
}
