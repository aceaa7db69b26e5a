package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/insightsagent/insights-agent/agent/internal/branch"
	"github.com/insightsagent/insights-agent/agent/internal/rules"
)

// Collector consumes a resolved configuration.
type Collector interface {
	RunCollection(ctx context.Context, p rules.Payload, removals rules.RemovalRules, info branch.Info) (*Result, error)
	Done(ctx context.Context, p rules.Payload, removals rules.RemovalRules) (string, error)
}

// Result summarises one collection run.
type Result struct {
	RunID string
	Dir   string

	Collected       int // files copied
	Missing         int // files named by the rules but absent on the host
	RemovedFiles    int
	RemovedCommands int
	SkippedCommands int // command specs not run by this collector
	Rejected        int // file specs with a relative path
}

// FileSpec is one files[] entry of the collection rules.
type FileSpec struct {
	Path     string
	Name     string
	Patterns []string
}

// Files collects plain files. A Files value serves a single run.
type Files struct {
	outputDir string
	newID     func() string

	result *Result
}

// NewFiles returns a Files collector writing under outputDir.
func NewFiles(outputDir string) *Files {
	return &Files{outputDir: outputDir, newID: uuid.NewString}
}

// RunCollection copies the files named by p into a fresh run directory.
func (c *Files) RunCollection(ctx context.Context, p rules.Payload, removals rules.RemovalRules, info branch.Info) (*Result, error) {
	if c.result != nil {
		return nil, errors.New("collector: run already started")
	}
	id := c.newID()
	res := &Result{RunID: id, Dir: filepath.Join(c.outputDir, "insights-"+id)}
	if err := os.MkdirAll(filepath.Join(res.Dir, "data"), 0o700); err != nil {
		return nil, fmt.Errorf("collector: create run dir: %w", err)
	}

	b, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("collector: encode branch info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(res.Dir, "branch_info"), b, 0o600); err != nil {
		return nil, fmt.Errorf("collector: write branch info: %w", err)
	}

	f := newFilter(removals)
	for _, spec := range FileSpecs(p) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !filepath.IsAbs(spec.Path) {
			slog.Warn("collector: file spec path is not absolute", "path", spec.Path)
			res.Rejected++
			continue
		}
		if removals.RemovesFile(spec.Path) {
			slog.Info("collector: file removed by removal rules", "path", spec.Path)
			res.RemovedFiles++
			continue
		}
		ok, err := c.copyFile(res.Dir, spec, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			res.Missing++
			continue
		}
		res.Collected++
	}

	for _, cmd := range commandSpecs(p) {
		if slices.Contains(removals.Commands, cmd) {
			res.RemovedCommands++
			continue
		}
		slog.Debug("collector: command spec not run", "command", cmd)
		res.SkippedCommands++
	}

	slog.Info("collector: collection finished",
		"run_id", res.RunID,
		"collected", res.Collected,
		"removed", res.RemovedFiles+res.RemovedCommands,
		"missing", res.Missing,
		"rejected", res.Rejected,
	)
	c.result = res
	return res, nil
}

// Done writes the run report and returns the run directory.
func (c *Files) Done(_ context.Context, p rules.Payload, removals rules.RemovalRules) (string, error) {
	if c.result == nil {
		return "", errors.New("collector: Done called before RunCollection")
	}
	path := filepath.Join(c.result.Dir, MetricsFile)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("collector: create report: %w", err)
	}
	defer out.Close()

	if err := writeReport(out, c.result, p, removals); err != nil {
		return "", fmt.Errorf("collector: write report: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("collector: close report: %w", err)
	}
	return c.result.Dir, nil
}

// copyFile reports false when spec.Path does not exist.
func (c *Files) copyFile(runDir string, spec FileSpec, f *filter) (bool, error) {
	in, err := os.Open(spec.Path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("collector: file not found", "path", spec.Path)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("collector: open %s: %w", spec.Path, err)
	}
	defer in.Close()

	dataDir := filepath.Join(runDir, "data")
	dst := filepath.Join(dataDir, spec.Path)
	if rel, err := filepath.Rel(dataDir, dst); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, fmt.Errorf("collector: %s resolves outside the run directory", spec.Path)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return false, fmt.Errorf("collector: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return false, fmt.Errorf("collector: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	r := bufio.NewReader(in)
	for {
		line, rerr := r.ReadString('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return false, fmt.Errorf("collector: read %s: %w", spec.Path, rerr)
		}
		if line != "" {
			if kept, keep := f.apply(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), spec.Patterns); keep {
				if _, err := w.WriteString(kept + "\n"); err != nil {
					return false, fmt.Errorf("collector: write %s: %w", dst, err)
				}
			}
		}
		if rerr != nil {
			break
		}
	}
	if err := w.Flush(); err != nil {
		return false, fmt.Errorf("collector: write %s: %w", dst, err)
	}
	return true, out.Close()
}

// filter applies removal patterns and keyword obfuscation to collected lines.
type filter struct {
	patterns []string
	keywords *strings.Replacer
}

func newFilter(r rules.RemovalRules) *filter {
	if r.Empty() {
		return &filter{}
	}
	f := &filter{patterns: r.Patterns}
	if len(r.Keywords) > 0 {
		var pairs []string
		for i, kw := range r.Keywords {
			pairs = append(pairs, kw, fmt.Sprintf("keyword%d", i))
		}
		f.keywords = strings.NewReplacer(pairs...)
	}
	return f
}

// apply returns the line to write and whether to keep it. A non-empty
// include list keeps only lines matching one of its entries.
func (f *filter) apply(line string, include []string) (string, bool) {
	if len(include) > 0 && !containsAny(line, include) {
		return "", false
	}
	if containsAny(line, f.patterns) {
		return "", false
	}
	if f.keywords != nil {
		line = f.keywords.Replace(line)
	}
	return line, true
}

// FileSpecs extracts the files[] entries of p with cleaned paths. Malformed
// entries are skipped.
func FileSpecs(p rules.Payload) []FileSpec {
	list, _ := p["files"].([]any)
	var out []FileSpec
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		path, _ := m["file"].(string)
		if path == "" {
			continue
		}
		spec := FileSpec{Path: filepath.Clean(path)}
		spec.Name, _ = m["symbolic_name"].(string)
		spec.Patterns = stringList(m["pattern"])
		out = append(out, spec)
	}
	return out
}

func commandSpecs(p rules.Payload) []string {
	list, _ := p["commands"].([]any)
	var out []string
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if cmd, _ := m["command"].(string); cmd != "" {
			out = append(out, cmd)
		}
	}
	return out
}

func stringList(v any) []string {
	list, _ := v.([]any)
	var out []string
	for _, e := range list {
		if s, ok := e.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
