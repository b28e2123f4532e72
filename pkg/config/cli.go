package config

import "strings"

// NotSet is stored in metadata for CLI options that were not given.
const NotSet = "NOT SET"

// CLIArgs records the options of one invocation for the event file
// metadata.
type CLIArgs struct {
	// Events is the requested number of events
	Events string
	// Early are settings applied before the run configuration is frozen
	Early []string
	// Late are settings applied after the run configuration is frozen
	Late []string
	// Macro is the configuration file the run was loaded from
	Macro string
	// Gui names the visualization setup, unused in batch runs
	Gui string
}

// AsMap renders the invocation under the keys -n, -e, -l, -m and -g.
// Repeated settings are joined with "; ".
func (a CLIArgs) AsMap() map[string]string {
	return map[string]string{
		"-n": orNotSet(a.Events),
		"-e": orNotSet(strings.Join(a.Early, "; ")),
		"-l": orNotSet(strings.Join(a.Late, "; ")),
		"-m": orNotSet(a.Macro),
		"-g": orNotSet(a.Gui),
	}
}

func orNotSet(s string) string {
	if s == "" {
		return NotSet
	}
	return s
}
