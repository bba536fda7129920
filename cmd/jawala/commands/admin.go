package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teranos/jawala/admin"
	"github.com/teranos/jawala/app"
	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/display"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/util"
	"github.com/teranos/jawala/sym"
)

var adminEmail string

// AdminCmd groups listing maintenance for signed-in administrators
var AdminCmd = &cobra.Command{
	Use:   "admin",
	Short: sym.Short("admin"),
	Long: sym.Admin + ` admin — Add, edit, delete and import listings

Signs in with email and password and requires an admin profile. The email
comes from --email or admin.email; the password from JAWALA_ADMIN_PASSWORD
or a prompt. Saved listings are applied to the local cache right away.

Examples:
  jawala admin add --category grocery --shop "Sharma Kirana" --owner Ramesh --contact 9876543210
  jawala admin edit b1 --services "Atta,Rice"
  jawala admin delete b1
  jawala admin import seed.yaml`,
}

var adminAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a business",
	Args:  cobra.NoArgs,
	RunE:  runAdminAdd,
}

var adminEditCmd = &cobra.Command{
	Use:   "edit <business-id>",
	Short: "Change fields of a business",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminEdit,
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete <business-id>",
	Short: "Delete a business",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminDelete,
}

var adminImportCmd = &cobra.Command{
	Use:   "import <seed.yaml|seed.toml>",
	Short: "Add every business from a seed file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminImport,
}

func init() {
	AdminCmd.PersistentFlags().StringVar(&adminEmail, "email", "", "Admin email (default admin.email)")

	for _, c := range []*cobra.Command{adminAddCmd, adminEditCmd} {
		f := c.Flags()
		f.String("category", "", "Category id")
		f.String("shop", "", "Shop name")
		f.String("owner", "", "Owner name")
		f.String("contact", "", "10-digit mobile number")
		f.String("address", "", "Address")
		f.String("hours", "", "Opening hours")
		f.StringSlice("services", nil, "Services offered (comma separated)")
		f.StringSlice("payment", nil, "Payment options (comma separated)")
		f.Bool("delivery", false, "Home delivery available")
	}
	adminImportCmd.Flags().Bool("json", false, "Output the import report as JSON")

	AdminCmd.AddCommand(adminAddCmd)
	AdminCmd.AddCommand(adminEditCmd)
	AdminCmd.AddCommand(adminDeleteCmd)
	AdminCmd.AddCommand(adminImportCmd)
}

// applyBusinessFlags copies every flag the user set onto b
func applyBusinessFlags(f *pflag.FlagSet, b types.Business) types.Business {
	str := func(name string) (string, bool) {
		if !f.Changed(name) {
			return "", false
		}
		v, _ := f.GetString(name)
		return strings.TrimSpace(v), true
	}
	if v, ok := str("category"); ok {
		b.Category = v
	}
	if v, ok := str("shop"); ok {
		b.ShopName = v
	}
	if v, ok := str("owner"); ok {
		b.OwnerName = v
	}
	if v, ok := str("contact"); ok {
		b.ContactNumber = v
	}
	if v, ok := str("address"); ok {
		b.Address = util.Optional(v)
	}
	if v, ok := str("hours"); ok {
		b.OpeningHours = util.Optional(v)
	}
	if f.Changed("services") {
		b.Services, _ = f.GetStringSlice("services")
	}
	if f.Changed("payment") {
		b.PaymentOptions, _ = f.GetStringSlice("payment")
	}
	if f.Changed("delivery") {
		b.HomeDelivery, _ = f.GetBool("delivery")
	}
	return b
}

// signInAdmin loads the directory and signs in
func signInAdmin(ctx context.Context, d *app.Directory) (*admin.Session, error) {
	email := adminEmail
	if email == "" {
		email = d.Config().Admin.Email
	}
	if email == "" {
		var err error
		if email, err = pterm.DefaultInteractiveTextInput.Show("Admin email"); err != nil {
			return nil, errors.Wrap(err, "read email")
		}
	}
	password := os.Getenv("JAWALA_ADMIN_PASSWORD")
	if password == "" {
		var err error
		if password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password"); err != nil {
			return nil, errors.Wrap(err, "read password")
		}
	}

	d.Load(ctx)
	return d.Admin().SignIn(ctx, email, password)
}

func withAdmin(fn func(ctx context.Context, d *app.Directory, s *admin.Session) error) error {
	d, err := openDirectory()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	s, err := signInAdmin(ctx, d)
	if err != nil {
		return err
	}
	return fn(ctx, d, s)
}

func runAdminAdd(cmd *cobra.Command, args []string) error {
	return withAdmin(func(ctx context.Context, d *app.Directory, s *admin.Session) error {
		saved, err := s.Add(ctx, applyBusinessFlags(cmd.Flags(), types.Business{}))
		if err != nil {
			return err
		}
		pterm.Success.Printf("Added %s (%s)\n", saved.ShopName, saved.ID)
		return nil
	})
}

func runAdminEdit(cmd *cobra.Command, args []string) error {
	return withAdmin(func(ctx context.Context, d *app.Directory, s *admin.Session) error {
		current, ok := d.State().Lookup(args[0])
		if !ok {
			return errors.WithHint(errors.NewNotFoundError("business %s", args[0]), "The business no longer exists.")
		}
		saved, err := s.Update(ctx, applyBusinessFlags(cmd.Flags(), current))
		if err != nil {
			return err
		}
		pterm.Success.Printf("Updated %s\n", saved.ShopName)
		return nil
	})
}

func runAdminDelete(cmd *cobra.Command, args []string) error {
	return withAdmin(func(ctx context.Context, d *app.Directory, s *admin.Session) error {
		name := args[0]
		if b, ok := d.State().Lookup(args[0]); ok {
			name = b.ShopName
		}
		if err := s.Delete(ctx, args[0]); err != nil {
			return err
		}
		pterm.Success.Printf("Deleted %s\n", name)
		return nil
	})
}

type importOutput struct {
	Added    []string `json:"added"`
	Failures []struct {
		Index    int    `json:"index"`
		ShopName string `json:"shop_name"`
		Error    string `json:"error"`
	} `json:"failures"`
}

func runAdminImport(cmd *cobra.Command, args []string) error {
	seed, err := directory.LoadSeed(args[0])
	if err != nil {
		return err
	}
	return withAdmin(func(ctx context.Context, d *app.Directory, s *admin.Session) error {
		report, err := s.Import(ctx, seed)
		if err != nil {
			return err
		}

		if display.ShouldOutputJSON(cmd) {
			out := importOutput{Added: []string{}}
			for _, b := range report.Added {
				out.Added = append(out.Added, b.ID)
			}
			out.Failures = make([]struct {
				Index    int    `json:"index"`
				ShopName string `json:"shop_name"`
				Error    string `json:"error"`
			}, len(report.Failures))
			for i, f := range report.Failures {
				out.Failures[i].Index = f.Index
				out.Failures[i].ShopName = f.ShopName
				out.Failures[i].Error = errors.UserMessage(f.Err)
			}
			return display.OutputJSON(out)
		}

		pterm.Success.Printf("Imported %d of %d businesses\n", len(report.Added), len(seed.Businesses))
		for _, f := range report.Failures {
			pterm.Warning.Println(fmt.Sprintf("#%d %s: %s", f.Index+1, f.ShopName, errors.UserMessage(f.Err)))
		}
		return nil
	})
}
