// Package client is the entry point of a collection run: it resolves the
// collection rules, fetches branch info and drives the data collector.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/insightsagent/insights-agent/agent/internal/branch"
	"github.com/insightsagent/insights-agent/agent/internal/collector"
	"github.com/insightsagent/insights-agent/agent/internal/config"
	"github.com/insightsagent/insights-agent/agent/internal/gpg"
	"github.com/insightsagent/insights-agent/agent/internal/removal"
	"github.com/insightsagent/insights-agent/agent/internal/rules"
)

// Client holds the collaborators of a collection run. Every field is
// replaceable so tests can substitute fakes.
type Client struct {
	Config *config.Config

	// Stdin supplies the rules envelope when Config.FromStdin is set.
	Stdin io.Reader

	Disk     rules.DiskReader
	Verifier rules.Verifier
	Removals rules.RemovalLoader
	Branch   branch.Lookup

	// NewCollector returns the collector for one run.
	NewCollector func(cfg *config.Config) collector.Collector
}

// New wires a Client to the local host.
func New(cfg *config.Config, stdin io.Reader) *Client {
	var lookup branch.Lookup = branch.FileLookup{Path: cfg.BranchInfoFile}
	if cfg.Offline {
		lookup = branch.Static{}
	}
	return &Client{
		Config:   cfg,
		Stdin:    stdin,
		Disk:     rules.OSDisk{},
		Verifier: gpg.New(cfg.GPGKeyFile),
		Removals: removal.New(cfg.RemovalFiles()...),
		Branch:   lookup,
		NewCollector: func(cfg *config.Config) collector.Collector {
			return collector.NewFiles(cfg.OutputDir)
		},
	}
}

// Resolve runs one rules resolution with a freshly built source.
func (c *Client) Resolve(ctx context.Context) (*rules.ResolvedConfig, error) {
	if c.Config == nil {
		return nil, errors.New("client: no config")
	}
	r := &rules.Resolver{
		Source:             c.source(),
		Removals:           c.Removals,
		ValidateSignatures: c.Config.GPG,
	}
	if c.Config.GPG {
		r.Verifier = c.Verifier
	}
	return r.Resolve(ctx)
}

// Collect resolves the configuration and runs one collection with it. It
// returns the directory produced by the collector. When resolution fails the
// collector is never invoked.
func (c *Client) Collect(ctx context.Context) (string, error) {
	if c.Branch == nil {
		return "", errors.New("client: no branch lookup")
	}
	info, err := c.Branch.BranchInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("client: branch info: %w", err)
	}

	resolved, err := c.Resolve(ctx)
	if err != nil {
		return "", err
	}
	slog.Info("client: collection rules resolved",
		"source", resolved.Source,
		"origin", resolved.Origin,
		"removal_rules", !resolved.RemovalRules.Empty(),
		"removed_files", len(resolved.RemovalRules.Files),
	)

	dc := c.NewCollector(c.Config)
	if _, err := dc.RunCollection(ctx, resolved.CollectionRules, resolved.RemovalRules, info); err != nil {
		return "", fmt.Errorf("client: run collection: %w", err)
	}
	out, err := dc.Done(ctx, resolved.CollectionRules, resolved.RemovalRules)
	if err != nil {
		return "", fmt.Errorf("client: finish collection: %w", err)
	}
	return out, nil
}

// WatchPaths returns the files whose changes should trigger a new run of a
// file-sourced client.
func (c *Client) WatchPaths() []string {
	return append(c.Config.RulesFiles(), c.Config.RemovalFiles()...)
}

func (c *Client) source() rules.Source {
	if c.Config.FromStdin {
		return rules.NewStdinSource(c.Stdin)
	}
	return rules.NewFileSource(c.Disk, c.Config.RulesFiles()...)
}
