package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/display"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/sym"
)

// DefaultShareBaseURL is the public directory site used in share links
const DefaultShareBaseURL = "https://jawala.example/"

var (
	lsCategory string
	lsGrouped  bool
	shareBase  string
)

// LsCmd lists and searches businesses
var LsCmd = &cobra.Command{
	Use:   "ls [SEARCH...]",
	Short: sym.Short("ls"),
	Long: sym.LS + ` ls — List and search businesses

Without arguments every business is listed, ordered by shop name. Words are
matched case-insensitively against shop name, owner and services.

Examples:
  jawala ls                       # Everything
  jawala ls --category grocery    # One category
  jawala ls atta                  # Search
  jawala ls --grouped             # Grouped by category with counts`,
	RunE: runLs,
}

// ShowCmd prints one business in full
var ShowCmd = &cobra.Command{
	Use:   "show <business-id>",
	Short: sym.Shop + " Show one business with share links",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	LsCmd.Flags().StringVarP(&lsCategory, "category", "c", "", "Only list this category id")
	LsCmd.Flags().BoolVarP(&lsGrouped, "grouped", "g", false, "Group by category")
	LsCmd.Flags().Bool("json", false, "Output as JSON")

	ShowCmd.Flags().StringVar(&shareBase, "share-base", DefaultShareBaseURL, "Base URL of share links")
	ShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func runLs(cmd *cobra.Command, args []string) error {
	d, err := openDirectory()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()
	loadDirectory(ctx, cmd, d)
	state := d.State()

	var list []types.Business
	if query := strings.Join(args, " "); query != "" {
		list = state.Search(query)
		if lsCategory != "" {
			list = filterCategory(list, lsCategory)
		}
	} else {
		list = state.Filter(lsCategory)
	}

	if display.ShouldOutputJSON(cmd) {
		if lsGrouped {
			return display.OutputJSON(state.Grouped())
		}
		return display.OutputJSON(list)
	}

	if lsGrouped {
		counts := state.Counts()
		for _, g := range state.Grouped() {
			pterm.DefaultSection.Println(fmt.Sprintf("%s %s (%d)", g.Category.Icon, g.Category.Name, counts[g.Category.ID]))
			if err := pterm.DefaultTable.WithHasHeader().WithData(businessRows(state, g.Businesses)).Render(); err != nil {
				return err
			}
		}
		return nil
	}

	if len(list) == 0 {
		pterm.Info.Println("No businesses found")
		return nil
	}
	fmt.Printf("%s Found %d businesses\n\n", sym.LS, len(list))
	return pterm.DefaultTable.WithHasHeader().WithData(businessRows(state, list)).Render()
}

func filterCategory(list []types.Business, category string) []types.Business {
	out := make([]types.Business, 0, len(list))
	for _, b := range list {
		if b.Category == category {
			out = append(out, b)
		}
	}
	return out
}

func runShow(cmd *cobra.Command, args []string) error {
	d, err := openDirectory()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()
	loadDirectory(ctx, cmd, d)

	b, ok := d.State().Lookup(args[0])
	if !ok {
		return errors.WithHint(errors.NewNotFoundError("business %s", args[0]), "Run `jawala ls` to see listings.")
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(b)
	}

	pterm.DefaultHeader.Println(b.ShopName)
	fmt.Printf("  Owner:     %s\n", b.OwnerName)
	fmt.Printf("  %s Category: %s\n", sym.Category, categoryName(d.State(), b.Category))
	fmt.Printf("  %s Phone:    %s\n", sym.Phone, directory.FormatPhoneNumber(b.ContactNumber))
	if b.Address != nil {
		fmt.Printf("  Address:   %s\n", *b.Address)
	}
	if b.OpeningHours != nil {
		fmt.Printf("  Hours:     %s\n", *b.OpeningHours)
	}
	if len(b.Services) > 0 {
		fmt.Printf("  Services:  %s\n", strings.Join(b.Services, ", "))
	}
	if len(b.PaymentOptions) > 0 {
		fmt.Printf("  Payment:   %s\n", strings.Join(b.PaymentOptions, ", "))
	}
	if b.HomeDelivery {
		fmt.Println("  Home delivery available")
	}
	fmt.Printf("  %s Rating:   %s\n", sym.Star, directory.RatingSummary(b))
	if score, ok := d.Ledger().Marker(ctx, b.ID); ok {
		fmt.Printf("  You rated: %d\n", score)
	}

	fmt.Printf("\n%s Share\n", sym.Share)
	fmt.Printf("  %s\n", directory.ShareURL(shareBase, b))
	fmt.Printf("  %s\n\n", directory.WhatsAppURL(b))
	fmt.Println(directory.ShareText(b))
	return nil
}
