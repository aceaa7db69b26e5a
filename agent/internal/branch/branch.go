// Package branch supplies the branch info attached to every collection run.
package branch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// Info is an opaque identity token. It is passed to the collector unchanged.
type Info map[string]any

// Lookup returns the branch info for the current run.
type Lookup interface {
	BranchInfo(ctx context.Context) (Info, error)
}

// Default is the branch info of a host that is not managed by a satellite.
func Default() Info {
	return Info{"remote_branch": -1, "remote_leaf": -1}
}

// Static always returns the same Info. The zero value returns Default().
type Static struct {
	Info Info
}

func (s Static) BranchInfo(context.Context) (Info, error) {
	if s.Info == nil {
		return Default(), nil
	}
	return s.Info, nil
}

// FileLookup reads branch info cached as JSON at Path. A missing cache
// yields Default().
type FileLookup struct {
	Path string
}

func (l FileLookup) BranchInfo(context.Context) (Info, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("branch: no cached branch info, using default", "path", l.Path)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("branch: read %s: %w", l.Path, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("branch: decode %s: %w", l.Path, err)
	}
	if info == nil {
		return Default(), nil
	}
	return info, nil
}
