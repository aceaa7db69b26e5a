package rules

import (
	"path/filepath"
	"slices"
)

// Payload is a parsed set of collection rules.
type Payload map[string]any

// Version returns the rules version and whether a string version is present.
func (p Payload) Version() (string, bool) {
	v, ok := p["version"].(string)
	return v, ok
}

// RemovalRules lists what must never be collected. Entries from every
// removal file are concatenated in file order; duplicates are kept.
type RemovalRules struct {
	Files    []string `json:"files,omitempty"`
	Commands []string `json:"commands,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Empty reports whether no removal entries are configured.
func (r RemovalRules) Empty() bool {
	return len(r.Files) == 0 && len(r.Commands) == 0 &&
		len(r.Patterns) == 0 && len(r.Keywords) == 0
}

// RemovesFile reports whether path is excluded from collection. Paths are
// compared in cleaned form.
func (r RemovalRules) RemovesFile(path string) bool {
	path = filepath.Clean(path)
	return slices.ContainsFunc(r.Files, func(f string) bool {
		return f != "" && filepath.Clean(f) == path
	})
}

// ResolvedConfig is the validated result of one resolution.
type ResolvedConfig struct {
	// Source is the name of the source the rules came from ("stdin" or "file").
	Source string `json:"source"`

	// Origin identifies the accepted candidate: "stdin" or the file path.
	Origin string `json:"origin"`

	CollectionRules Payload      `json:"collection_rules"`
	RemovalRules    RemovalRules `json:"removal_rules"`
}
