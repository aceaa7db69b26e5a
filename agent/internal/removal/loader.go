package removal

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/insightsagent/insights-agent/agent/internal/rules"
)

// Section is the INI section removal lists are read from.
const Section = "remove"

// Recognised keys.
const (
	KeyFiles    = "files"
	KeyCommands = "commands"
	KeyPatterns = "patterns"
	KeyKeywords = "keywords"
)

// Item is one key/value pair of a removal file.
type Item struct {
	Key   string
	Value string
}

// Reader returns the key/value pairs of a removal file in file order.
type Reader interface {
	Items(path string) ([]Item, error)
}

// Loader merges the removal files at Paths.
type Loader struct {
	Paths  []string
	Exists func(path string) bool
	Reader Reader
}

// New returns a Loader over paths, reading INI files from the local disk.
func New(paths ...string) *Loader {
	return &Loader{Paths: paths, Exists: isFile, Reader: INIReader{}}
}

// Load reads every existing removal file. When none exists the result is
// empty and no error is returned.
func (l *Loader) Load() (rules.RemovalRules, error) {
	var out rules.RemovalRules
	for _, path := range l.Paths {
		if path == "" || !l.Exists(path) {
			continue
		}
		items, err := l.Reader.Items(path)
		if err != nil {
			return rules.RemovalRules{}, fmt.Errorf("removal: %s: %w", path, err)
		}
		for _, it := range items {
			switch strings.ToLower(it.Key) {
			case KeyFiles:
				out.Files = append(out.Files, split(it.Value)...)
			case KeyCommands:
				out.Commands = append(out.Commands, split(it.Value)...)
			case KeyPatterns:
				out.Patterns = append(out.Patterns, split(it.Value)...)
			case KeyKeywords:
				out.Keywords = append(out.Keywords, split(it.Value)...)
			default:
				slog.Warn("removal: unknown key ignored", "path", path, "key", it.Key)
			}
		}
		slog.Debug("removal: loaded", "path", path, "items", len(items))
	}
	return out, nil
}

func split(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// INIReader reads removal files with gopkg.in/ini.v1. Keys come from the
// [remove] section when present, otherwise from the default section.
type INIReader struct{}

func (INIReader) Items(path string) ([]Item, error) {
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, path)
	if err != nil {
		return nil, err
	}
	sec, err := f.GetSection(Section)
	if err != nil {
		sec = f.Section(ini.DefaultSection)
	}
	keys := sec.Keys()
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, Item{Key: k.Name(), Value: k.Value()})
	}
	return items, nil
}
