package display

import (
	"encoding/json"
	"os"
)

// MarshalJSON marshals v indented for terminals, compact when
// JAWALA_JSON_COMPACT is set for piping into other tools
func MarshalJSON(v interface{}) ([]byte, error) {
	if os.Getenv("JAWALA_JSON_COMPACT") != "" {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
