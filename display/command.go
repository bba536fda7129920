package display

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ShouldOutputJSON reports whether a command should print JSON: an explicit
// --json flag wins, then JAWALA_OUTPUT=json.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd != nil {
		if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
			v, _ := cmd.Flags().GetBool("json")
			return v
		}
	}
	return os.Getenv("JAWALA_OUTPUT") == "json"
}

// OutputJSON marshals and prints JSON using display.MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
