package client

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/insightsagent/insights-agent/agent/internal/branch"
	"github.com/insightsagent/insights-agent/agent/internal/collector"
	"github.com/insightsagent/insights-agent/agent/internal/config"
	"github.com/insightsagent/insights-agent/agent/internal/removal"
	"github.com/insightsagent/insights-agent/agent/internal/rules"
)

const stdinPayload = `{"uploader.json": "{\"some key\": \"some value\"}", "sig": "some signature"}`

var (
	stdinRules  = rules.Payload{"some key": "some value"}
	removeFiles = []string{"/etc/insights-client/remove.conf", "/tmp/remove.conf"}
	branchInfo  = branch.Info{"remote_branch": "b", "remote_leaf": "l"}
)

// countingReader counts reads so tests can assert stdin was never touched.
type countingReader struct {
	r     *strings.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

type fakeDisk struct {
	files map[string]*rules.CachedFile
	calls []string
}

func (d *fakeDisk) TryDisk(path string) (*rules.CachedFile, error) {
	d.calls = append(d.calls, path)
	return d.files[path], nil
}

type fakeVerifier struct {
	ok    bool
	calls int
}

func (v *fakeVerifier) Verify(_, _ []byte) (bool, error) {
	v.calls++
	return v.ok, nil
}

type fakeRemovals struct {
	rules rules.RemovalRules
	calls int
}

func (f *fakeRemovals) Load() (rules.RemovalRules, error) {
	f.calls++
	return f.rules, nil
}

type fakeBranch struct {
	info  branch.Info
	err   error
	calls int
}

func (b *fakeBranch) BranchInfo(context.Context) (branch.Info, error) {
	b.calls++
	return b.info, b.err
}

type runCall struct {
	Rules    rules.Payload
	Removals rules.RemovalRules
	Branch   branch.Info
}

type fakeCollector struct {
	runs  []runCall
	dones []runCall
}

func (f *fakeCollector) RunCollection(_ context.Context, p rules.Payload, rm rules.RemovalRules, info branch.Info) (*collector.Result, error) {
	f.runs = append(f.runs, runCall{Rules: p, Removals: rm, Branch: info})
	return &collector.Result{}, nil
}

func (f *fakeCollector) Done(_ context.Context, p rules.Payload, rm rules.RemovalRules) (string, error) {
	f.dones = append(f.dones, runCall{Rules: p, Removals: rm})
	return "/var/tmp/insights-client/insights-test", nil
}

type harness struct {
	client    *Client
	stdin     *countingReader
	disk      *fakeDisk
	verifier  *fakeVerifier
	removals  *fakeRemovals
	branch    *fakeBranch
	collector *fakeCollector
	built     int
}

// newHarness wires a Client to fakes. The rules cache holds a valid file
// unless a test replaces h.disk.files.
func newHarness(fromStdin, gpg bool) *harness {
	h := &harness{
		stdin: &countingReader{r: strings.NewReader(stdinPayload)},
		disk: &fakeDisk{files: map[string]*rules.CachedFile{
			config.DefaultCollectionRulesFile: {Raw: []byte(`{"version": "1.2.3"}`), Signature: []byte("sig")},
		}},
		verifier:  &fakeVerifier{ok: true},
		removals:  &fakeRemovals{rules: rules.RemovalRules{Files: removeFiles}},
		branch:    &fakeBranch{info: branchInfo},
		collector: &fakeCollector{},
	}
	cfg := config.Defaults()
	cfg.FromStdin = fromStdin
	cfg.GPG = gpg
	h.client = &Client{
		Config:   cfg,
		Stdin:    h.stdin,
		Disk:     h.disk,
		Verifier: h.verifier,
		Removals: h.removals,
		Branch:   h.branch,
		NewCollector: func(*config.Config) collector.Collector {
			h.built++
			return h.collector
		},
	}
	return h
}

func (h *harness) assertCollected(t *testing.T, wantRules rules.Payload) {
	t.Helper()
	if len(h.collector.runs) != 1 {
		t.Fatalf("RunCollection called %d times, want 1", len(h.collector.runs))
	}
	if len(h.collector.dones) != 1 {
		t.Fatalf("Done called %d times, want 1", len(h.collector.dones))
	}
	wantRun := runCall{Rules: wantRules, Removals: rules.RemovalRules{Files: removeFiles}, Branch: branchInfo}
	if diff := cmp.Diff(wantRun, h.collector.runs[0]); diff != "" {
		t.Errorf("RunCollection args mismatch (-want +got):\n%s", diff)
	}
	wantDone := runCall{Rules: wantRules, Removals: rules.RemovalRules{Files: removeFiles}}
	if diff := cmp.Diff(wantDone, h.collector.dones[0]); diff != "" {
		t.Errorf("Done args mismatch (-want +got):\n%s", diff)
	}
	if h.branch.calls != 1 {
		t.Errorf("BranchInfo called %d times, want 1", h.branch.calls)
	}
}

func (h *harness) assertNotCollected(t *testing.T) {
	t.Helper()
	if len(h.collector.runs) != 0 || len(h.collector.dones) != 0 {
		t.Errorf("collector invoked after failed resolution: runs=%d dones=%d",
			len(h.collector.runs), len(h.collector.dones))
	}
}

func TestCollect_FileSourceDoesNotReadStdin(t *testing.T) {
	h := newHarness(false, true)
	if _, err := h.client.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if h.stdin.reads != 0 {
		t.Errorf("stdin read %d times, want 0", h.stdin.reads)
	}
	if len(h.disk.calls) == 0 {
		t.Error("rules cache was never read")
	}
}

func TestCollect_StdinSourceDoesNotReadFiles(t *testing.T) {
	h := newHarness(true, true)
	if _, err := h.client.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(h.disk.calls) != 0 {
		t.Errorf("rules cache read for %v, want no reads", h.disk.calls)
	}
	if h.stdin.reads == 0 {
		t.Error("stdin was never read")
	}
}

func TestCollect_RemovalRulesLoadedForEverySource(t *testing.T) {
	for _, fromStdin := range []bool{true, false} {
		h := newHarness(fromStdin, false)
		if _, err := h.client.Collect(context.Background()); err != nil {
			t.Fatalf("from_stdin=%v: Collect() error = %v", fromStdin, err)
		}
		if h.removals.calls != 1 {
			t.Errorf("from_stdin=%v: removal rules loaded %d times, want 1", fromStdin, h.removals.calls)
		}
	}
}

func TestCollect_StdinResult(t *testing.T) {
	h := newHarness(true, true)
	out, err := h.client.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if out != "/var/tmp/insights-client/insights-test" {
		t.Errorf("Collect() = %q", out)
	}
	h.assertCollected(t, stdinRules)
	if h.built != 1 {
		t.Errorf("collector built %d times, want 1", h.built)
	}
}

func TestCollect_FileResult(t *testing.T) {
	h := newHarness(false, true)
	if _, err := h.client.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	h.assertCollected(t, rules.Payload{"version": "1.2.3", "file": config.DefaultCollectionRulesFile})
}

func TestCollect_SignatureIgnoredWhenDisabled(t *testing.T) {
	for _, fromStdin := range []bool{true, false} {
		h := newHarness(fromStdin, false)
		h.verifier.ok = false
		if _, err := h.client.Collect(context.Background()); err != nil {
			t.Fatalf("from_stdin=%v: Collect() error = %v", fromStdin, err)
		}
		if h.verifier.calls != 0 {
			t.Errorf("from_stdin=%v: verifier called %d times, want 0", fromStdin, h.verifier.calls)
		}
	}
}

func TestCollect_SignatureValid(t *testing.T) {
	for _, fromStdin := range []bool{true, false} {
		h := newHarness(fromStdin, true)
		if _, err := h.client.Collect(context.Background()); err != nil {
			t.Fatalf("from_stdin=%v: Collect() error = %v", fromStdin, err)
		}
		if h.verifier.calls != 1 {
			t.Errorf("from_stdin=%v: verifier called %d times, want 1", fromStdin, h.verifier.calls)
		}
	}
}

func TestCollect_StdinSignatureInvalid(t *testing.T) {
	h := newHarness(true, true)
	h.verifier.ok = false

	_, err := h.client.Collect(context.Background())
	if !errors.Is(err, rules.ErrInvalidSignature) {
		t.Fatalf("Collect() error = %v, want ErrInvalidSignature", err)
	}
	if h.verifier.calls != 1 {
		t.Errorf("verifier called %d times, want 1", h.verifier.calls)
	}
	h.assertNotCollected(t)
}

func TestCollect_FileSignatureInvalidSkipsFile(t *testing.T) {
	h := newHarness(false, true)
	h.verifier.ok = false

	_, err := h.client.Collect(context.Background())
	if !errors.Is(err, rules.ErrInvalidRules) {
		t.Fatalf("Collect() error = %v, want ErrInvalidRules", err)
	}
	if h.verifier.calls == 0 {
		t.Error("verifier never called")
	}
	h.assertNotCollected(t)
}

func TestCollect_FileSignatureInvalidUsesFallback(t *testing.T) {
	h := newHarness(false, true)
	h.disk.files[config.DefaultCollectionFallbackFile] = &rules.CachedFile{Raw: []byte(`{"version": "1.0.0"}`)}
	h.client.Verifier = verifierFunc(func(payload []byte) bool {
		return strings.Contains(string(payload), "1.0.0")
	})

	if _, err := h.client.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	h.assertCollected(t, rules.Payload{"version": "1.0.0", "file": config.DefaultCollectionFallbackFile})
}

type verifierFunc func(payload []byte) bool

func (f verifierFunc) Verify(payload, _ []byte) (bool, error) { return f(payload), nil }

func TestCollect_FileNoVersion(t *testing.T) {
	h := newHarness(false, false)
	h.disk.files[config.DefaultCollectionRulesFile] = &rules.CachedFile{Raw: []byte(`{"value": "abc"}`)}

	_, err := h.client.Collect(context.Background())
	if !errors.Is(err, rules.ErrMissingVersion) {
		t.Fatalf("Collect() error = %v, want ErrMissingVersion", err)
	}
	h.assertNotCollected(t)
	if h.built != 0 {
		t.Errorf("collector built %d times, want 0", h.built)
	}
}

func TestCollect_FileNoData(t *testing.T) {
	h := newHarness(false, false)
	h.disk.files = nil

	_, err := h.client.Collect(context.Background())
	if !errors.Is(err, rules.ErrMissingPayload) {
		t.Fatalf("Collect() error = %v, want ErrMissingPayload", err)
	}
	h.assertNotCollected(t)
}

func TestCollect_BranchInfoNotGatedBySignature(t *testing.T) {
	h := newHarness(true, true)
	h.verifier.ok = false

	if _, err := h.client.Collect(context.Background()); err == nil {
		t.Fatal("Collect() error = nil, want failure")
	}
	if h.branch.calls != 1 {
		t.Errorf("BranchInfo called %d times, want 1", h.branch.calls)
	}
}

func TestCollect_BranchInfoError(t *testing.T) {
	h := newHarness(false, false)
	boom := errors.New("lookup failed")
	h.branch.err = boom

	if _, err := h.client.Collect(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Collect() error = %v, want %v", err, boom)
	}
	h.assertNotCollected(t)
}

func TestResolve_FreshSourcePerCall(t *testing.T) {
	h := newHarness(false, false)
	for i := 0; i < 2; i++ {
		if _, err := h.client.Resolve(context.Background()); err != nil {
			t.Fatalf("Resolve() #%d error = %v", i, err)
		}
	}
	if h.removals.calls != 2 {
		t.Errorf("removal rules loaded %d times, want 2", h.removals.calls)
	}
}

func TestNew_Wiring(t *testing.T) {
	cfg := config.Defaults()
	cfg.Offline = true
	c := New(cfg, strings.NewReader(""))

	if _, ok := c.Branch.(branch.Static); !ok {
		t.Errorf("offline branch lookup = %T, want branch.Static", c.Branch)
	}
	if l, ok := c.Removals.(*removal.Loader); !ok || len(l.Paths) != 2 {
		t.Errorf("removal loader = %#v", c.Removals)
	}
	if _, ok := c.NewCollector(cfg).(*collector.Files); !ok {
		t.Errorf("collector = %T, want *collector.Files", c.NewCollector(cfg))
	}

	cfg.Offline = false
	if _, ok := New(cfg, nil).Branch.(branch.FileLookup); !ok {
		t.Error("online branch lookup is not a FileLookup")
	}
}

func TestWatchPaths(t *testing.T) {
	h := newHarness(false, false)
	want := []string{
		config.DefaultCollectionRulesFile, config.DefaultCollectionFallbackFile,
		config.DefaultRemoveFile, config.DefaultRemoveOverrideFile,
	}
	if diff := cmp.Diff(want, h.client.WatchPaths()); diff != "" {
		t.Errorf("WatchPaths() mismatch (-want +got):\n%s", diff)
	}
}
