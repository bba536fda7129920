// Package sym defines the glyphs the CLI prefixes command output with.
// They are stable across commands, help text and log lines.
package sym

// Directory glyphs
const (
	Shop     = "▣" // a business listing
	Category = "∈" // category membership
	Star     = "★" // rating
	Phone    = "☎" // contact number
	Share    = "⟶" // share links
)

// Command glyphs
const (
	AM    = "≡" // am: configuration
	DB    = "⊔" // db: local cache
	Sync  = "⟳" // sync: SmartSync against the backend
	LS    = "⋈" // ls: list and search listings
	Watch = "◉" // watch: realtime change feed
	Rate  = Star
	Ask   = "⊨" // ask: assistant search
	Admin = "⌬" // admin: listing maintenance
)

// SymbolToCommand maps glyph strings to their command names.
var SymbolToCommand = map[string]string{
	AM:    "am",
	DB:    "db",
	Sync:  "sync",
	LS:    "ls",
	Watch: "watch",
	Rate:  "rate",
	Ask:   "ask",
	Admin: "admin",
}

// CommandToSymbol maps command names to their glyphs.
var CommandToSymbol = map[string]string{
	"am":    AM,
	"db":    DB,
	"sync":  Sync,
	"ls":    LS,
	"watch": Watch,
	"rate":  Rate,
	"ask":   Ask,
	"admin": Admin,
}

// CommandDescriptions are the one-line summaries used in help text.
var CommandDescriptions = map[string]string{
	"am":    "Configuration",
	"db":    "Local cache statistics",
	"sync":  "Bring the local cache up to date",
	"ls":    "List and search businesses",
	"watch": "Follow live directory changes",
	"rate":  "Rate a business",
	"ask":   "Ask the assistant about local businesses",
	"admin": "Add, edit, delete and import listings",
}

// Short returns "<glyph> <description>" for a command, or the description
// alone for a command without a glyph.
func Short(command string) string {
	desc := CommandDescriptions[command]
	if g, ok := CommandToSymbol[command]; ok {
		return g + " " + desc
	}
	return desc
}
