package logger

// Output controls what categories of information the CLI prints at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
//	0 (default) - listings, rating results, errors with hints
//	1 (-v)      - + sync action, cache source, realtime connection status
//	2 (-vv)     - + timing, resolved config values
//	3 (-vvv)    - + every realtime change as it is applied

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	OutputResults OutputCategory = iota // Listings and command output
	OutputErrors                        // Errors with hints

	OutputSyncStatus     // "synced N businesses (full_sync)" lines
	OutputRealtimeStatus // connect, reconnect, resync notices

	OutputTiming // Operation timing
	OutputConfig // Config values loaded/applied

	OutputChanges // Individual realtime change events
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults: VerbosityUser,
	OutputErrors:  VerbosityUser,

	OutputSyncStatus:     VerbosityInfo,
	OutputRealtimeStatus: VerbosityInfo,

	OutputTiming: VerbosityDebug,
	OutputConfig: VerbosityDebug,

	OutputChanges: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}
