package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jawala/am"
	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/display"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
	"github.com/teranos/jawala/rating"
	"github.com/teranos/jawala/sym"
)

var rateName string

// RateCmd rates a business from this device
var RateCmd = &cobra.Command{
	Use:   "rate <business-id> <1-5>",
	Short: sym.Short("rate"),
	Long: sym.Rate + ` rate — Rate a business

Each device rates a business once; rating again edits the earlier score.
The new average is shown immediately and replaced by the server's figure
once the rating is stored. A display name is asked for on first use and
saved to ~/.jawala/am.toml.

Examples:
  jawala rate b1 5
  jawala rate b1 4 --name "Asha"`,
	Args: cobra.ExactArgs(2),
	RunE: runRate,
}

func init() {
	RateCmd.Flags().StringVar(&rateName, "name", "", "Display name attached to the rating (saved for next time)")
	RateCmd.Flags().Bool("json", false, "Output as JSON")
}

// parseScore reads a 1-5 star score
func parseScore(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 5 {
		return 0, errors.WithHint(
			errors.NewInvalidRequestError("invalid score %q", s),
			"Give a score from 1 to 5.",
		)
	}
	return n, nil
}

// resolveUserName picks the flag, then the configured name, then prompts.
// A new name is validated and persisted.
func resolveUserName(flag, configured string, interactive bool) (string, error) {
	name := flag
	if name == "" {
		name = configured
	}
	if name == "" && interactive {
		var err error
		name, err = pterm.DefaultInteractiveTextInput.Show("Your name (shown with your rating)")
		if err != nil {
			return "", errors.Wrap(err, "read name")
		}
	}
	if name == "" {
		return "", nil
	}
	valid, err := rating.ValidateUserName(name)
	if err != nil {
		return "", err
	}
	if valid != configured {
		if err := am.UpdateUserName(valid); err != nil {
			logger.Warnw("Display name not saved", logger.FieldError, err)
		}
	}
	return valid, nil
}

func runRate(cmd *cobra.Command, args []string) error {
	score, err := parseScore(args[1])
	if err != nil {
		return err
	}

	d, err := openDirectory()
	if err != nil {
		return err
	}
	defer d.Close()

	jsonOut := display.ShouldOutputJSON(cmd)
	name, err := resolveUserName(rateName, d.Config().Rating.UserName, !jsonOut)
	if err != nil {
		return err
	}
	d.Config().Rating.UserName = name

	ctx, cancel := signalContext()
	defer cancel()
	loadDirectory(ctx, cmd, d)

	w, err := d.OpenRating(ctx, args[0])
	if err != nil {
		return err
	}
	defer w.Close()
	<-w.Checked()

	before := w.View()
	v, err := w.Submit(ctx, score)
	if err != nil {
		return err
	}
	if jsonOut {
		return display.OutputJSON(v)
	}

	b, _ := d.State().Lookup(args[0])
	verb := "Rated"
	if before.HasRated {
		verb = fmt.Sprintf("Changed your rating from %d to", before.MyRating)
	}
	pterm.Success.Printf("%s %d %s for %s\n", verb, score, sym.Star, b.ShopName)
	fmt.Printf("  Now %s\n", directory.RatingSummary(b))
	return nil
}
