package commands

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/jawala/am"
	"github.com/teranos/jawala/display"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/rating"
	"github.com/teranos/jawala/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.Short("am"),
	Long: sym.AM + ` am — Manage jawala configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (JAWALA_* prefix, OPENROUTER_API_KEY)
2. Project config (./am.toml, searching up directories)
3. User config (~/.jawala/am.toml)
4. System config (/etc/jawala/config.toml)
5. Default values

Examples:
  jawala am show                    # Show current configuration
  jawala am show --format json      # Show configuration in JSON format
  jawala am get backend.url         # Get specific config value
  jawala am where                   # Show which file set each value
  jawala am set-name "Asha"         # Change the display name used for ratings`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., backend.url, realtime.enabled)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var amSetNameCmd = &cobra.Command{
	Use:   "set-name <name>",
	Short: "Save the display name attached to ratings",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmSetName,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amWhereCmd.Flags().Bool("json", false, "Output as JSON")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amSetNameCmd)
}

// redacted hides secrets before printing
func redacted(cfg am.Config) am.Config {
	if cfg.Assistant.APIKey != "" {
		cfg.Assistant.APIKey = "********"
	}
	return cfg
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	out := redacted(*cfg)

	switch configFormat {
	case "json":
		return display.OutputJSON(out)
	case "yaml":
		data, err := yaml.Marshal(out)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# jawala configuration\n%s", data)
	case "toml":
		data, err := toml.Marshal(out)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Printf("# jawala configuration\n%s", data)
	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !am.GetViper().IsSet(key) {
		return errors.WithHint(
			errors.NewNotFoundError("configuration key %q", key),
			"Run `jawala am show` to list keys.",
		)
	}
	fmt.Println(am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	if cfg.Backend.URL == "" {
		pterm.Warning.Println("backend.url is empty; every command except `am` needs it")
		return nil
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return errors.Wrap(err, "failed to get config introspection")
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(intro)
	}

	fmt.Println("Configuration files checked:")
	for _, path := range am.ConfigPaths() {
		state := "missing"
		if _, err := os.Stat(path); err == nil {
			state = "found"
		}
		fmt.Printf("  %-8s %s\n", state, path)
	}
	fmt.Println()

	rows := [][]string{{"Key", "Value", "Source", "From"}}
	for _, s := range intro.Settings {
		value := fmt.Sprint(s.Value)
		if s.Key == "assistant.api_key" && value != "" {
			value = "********"
		}
		rows = append(rows, []string{s.Key, value, string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runAmSetName(cmd *cobra.Command, args []string) error {
	name, err := rating.ValidateUserName(args[0])
	if err != nil {
		return err
	}
	if err := am.UpdateUserName(name); err != nil {
		return err
	}
	pterm.Success.Printf("Ratings will be shown as %s\n", name)
	return nil
}
