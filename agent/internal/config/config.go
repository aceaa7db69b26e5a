package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default locations, matching the layout of an installed client.
const (
	DefaultConfigFile             = "/etc/insights-client/insights-agent.yaml"
	DefaultGPGKeyFile             = "/etc/insights-client/redhattools.pub.gpg"
	DefaultCollectionRulesFile    = "/etc/insights-client/.cache.json"
	DefaultCollectionFallbackFile = "/etc/insights-client/.fallback.json"
	DefaultRemoveFile             = "/etc/insights-client/remove.conf"
	DefaultRemoveOverrideFile     = "/etc/insights-client/remove.override.conf"
	DefaultBranchInfoFile         = "/var/lib/insights/branch_info"
	DefaultOutputDir              = "/var/tmp/insights-client"
	DefaultLogLevel               = "info"
)

// Config is the agent configuration. Fields map 1:1 to insights-agent.yaml.
type Config struct {
	// GPG enables signature validation of collection rules.
	GPG bool `yaml:"gpg"`

	// FromStdin reads collection rules from standard input instead of the
	// on-disk cache.
	FromStdin bool `yaml:"from_stdin"`

	// Offline skips the cached branch info and uses the unmanaged default.
	Offline bool `yaml:"offline"`

	// GPGKeyFile is the trusted public key ring used to verify rules.
	GPGKeyFile string `yaml:"gpg_key_file"`

	// CollectionRulesFile is the primary rules cache; CollectionFallbackFile
	// is tried when the primary is missing or fails verification.
	CollectionRulesFile    string `yaml:"collection_rules_file"`
	CollectionFallbackFile string `yaml:"collection_fallback_file"`

	// RemoveFile is the system removal config; RemoveOverrideFile adds
	// site-specific entries on top of it.
	RemoveFile         string `yaml:"remove_file"`
	RemoveOverrideFile string `yaml:"remove_override_file"`

	// BranchInfoFile caches the branch info of a satellite-managed host.
	BranchInfoFile string `yaml:"branch_info_file"`

	// OutputDir receives one directory per collection run.
	OutputDir string `yaml:"output_dir"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults. A missing file at the
// default location yields the defaults; any other missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultConfigFile:
		slog.Debug("config: no config file, using defaults", "path", path)
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		GPG:                    true,
		GPGKeyFile:             DefaultGPGKeyFile,
		CollectionRulesFile:    DefaultCollectionRulesFile,
		CollectionFallbackFile: DefaultCollectionFallbackFile,
		RemoveFile:             DefaultRemoveFile,
		RemoveOverrideFile:     DefaultRemoveOverrideFile,
		BranchInfoFile:         DefaultBranchInfoFile,
		OutputDir:              DefaultOutputDir,
		LogLevel:               DefaultLogLevel,
	}
}

// Validate checks required fields and enums. It is run by Load and should be
// run again after flag overrides.
func (c *Config) Validate() error {
	if c.GPG && c.GPGKeyFile == "" {
		return errors.New("gpg_key_file is required when gpg is enabled")
	}
	if !c.FromStdin && c.CollectionRulesFile == "" && c.CollectionFallbackFile == "" {
		return errors.New("collection_rules_file or collection_fallback_file is required")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RulesFiles returns the rules cache paths in preference order.
func (c *Config) RulesFiles() []string {
	var out []string
	for _, p := range []string{c.CollectionRulesFile, c.CollectionFallbackFile} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RemovalFiles returns the removal config paths, system file first.
func (c *Config) RemovalFiles() []string {
	var out []string
	for _, p := range []string{c.RemoveFile, c.RemoveOverrideFile} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLevel maps a log_level value to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
}
