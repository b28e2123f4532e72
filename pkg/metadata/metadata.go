// Package metadata assembles the flat key/value metadata stored in every
// event file from the run configuration, the CLI invocation and the build
// provenance.
package metadata

import (
	"sort"
)

// ReservedSchemaKey holds the serialized Arrow schema written by the
// Parquet layer. No metadata source may supply it.
const ReservedSchemaKey = "ARROW:schema"

// Source names, in precedence order (later sources win).
const (
	SourceConfig     = "config"
	SourceCLI        = "cli"
	SourceProvenance = "provenance"
)

// Sources bundles the three metadata inputs of a writer.
type Sources struct {
	Config     map[string]string
	CLI        map[string]string
	Provenance map[string]string
}

// Collision records a key supplied by more than one source.
type Collision struct {
	Key     string
	Sources []string // sources that supplied the key, in precedence order
	Winner  string   // source whose value was kept
	Value   string   // the kept value
}

// Assemble merges config, cli and provenance into one map. Sources are
// applied in that order and later sources overwrite earlier ones, so a CLI
// argument overrides a configuration field of the same name and build
// provenance overrides both. Every overwritten key is reported once in the
// returned collisions, sorted by key. The result is allocated with the
// exact size of the key union.
func Assemble(config, cli, provenance map[string]string) (map[string]string, []Collision) {
	ordered := []struct {
		name   string
		values map[string]string
	}{
		{SourceConfig, config},
		{SourceCLI, cli},
		{SourceProvenance, provenance},
	}

	seen := make(map[string][]string, len(config)+len(cli)+len(provenance))
	for _, src := range ordered {
		for k := range src.values {
			seen[k] = append(seen[k], src.name)
		}
	}

	out := make(map[string]string, len(seen))
	for _, src := range ordered {
		for k, v := range src.values {
			out[k] = v
		}
	}

	var collisions []Collision
	for k, srcs := range seen {
		if len(srcs) < 2 {
			continue
		}
		collisions = append(collisions, Collision{
			Key:     k,
			Sources: srcs,
			Winner:  srcs[len(srcs)-1],
			Value:   out[k],
		})
	}
	sort.Slice(collisions, func(i, j int) bool { return collisions[i].Key < collisions[j].Key })

	return out, collisions
}

// Assemble merges the sources; see the package-level Assemble.
func (s Sources) Assemble() (map[string]string, []Collision) {
	return Assemble(s.Config, s.CLI, s.Provenance)
}

// SortedKeys returns the keys of md in ascending order.
func SortedKeys(md map[string]string) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Split returns the keys and values of md as parallel slices sorted by key.
func Split(md map[string]string) (keys, values []string) {
	keys = SortedKeys(md)
	values = make([]string, len(keys))
	for i, k := range keys {
		values[i] = md[k]
	}
	return keys, values
}
