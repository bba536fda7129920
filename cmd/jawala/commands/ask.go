package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jawala/assistant"
	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/display"
	"github.com/teranos/jawala/sym"
)

// AskCmd asks the assistant about local businesses
var AskCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: sym.Short("ask"),
	Long: sym.Ask + ` ask — Ask the assistant about local businesses

The question, usually in Marathi, is answered from the cached directory by an
OpenRouter model. Set assistant.api_key in am.toml or OPENROUTER_API_KEY.

Examples:
  jawala ask "किराणा दुकान कुठे आहे?"
  jawala ask who repairs bicycles`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	AskCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	d, err := openDirectory()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()
	loadDirectory(ctx, cmd, d)

	jsonOut := display.ShouldOutputJSON(cmd)
	var spinner *pterm.SpinnerPrinter
	if !jsonOut {
		spinner, _ = pterm.DefaultSpinner.Start("Thinking...")
	}
	answer, err := d.Assistant().Ask(ctx, strings.Join(args, " "))
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}
	if jsonOut {
		return display.OutputJSON(answer)
	}

	fmt.Printf("%s %s\n\n", sym.Ask, answer.Summary)
	for _, r := range answer.Results {
		switch r.Type {
		case assistant.ResultBusiness:
			b := *r.Business
			fmt.Printf("  %s %s (%s) %s %s  %s\n", sym.Shop, b.ShopName, b.OwnerName,
				sym.Phone, directory.FormatPhoneNumber(b.ContactNumber), directory.RatingSummary(b))
		case assistant.ResultText:
			fmt.Printf("  %s\n", r.Text)
		}
	}
	return nil
}
