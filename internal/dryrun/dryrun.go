// Package dryrun implements the dry-run coordinator from spec §4.4: a
// single instrumented pass over the test suite that builds the
// test→spans coverage map the trial scheduler needs to avoid running
// every test against every candidate.
package dryrun

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/model"
	"github.com/necessist/necessist/internal/runner"
	"github.com/necessist/necessist/internal/warning"
)

// cacheFileName is written under the project root's .necessist dotdir
// (the outcome database itself is <root>/necessist.db), so the map
// survives across invocations of the CLI.
const cacheFileName = "dryrun_cache.json"

// Runner is the subset of runner.Process the coordinator depends on,
// narrowed to an interface so tests can substitute a fake process.
type Runner interface {
	Run(ctx context.Context, cmd backend.Command, timeout time.Duration) runner.Result
}

// Map is the coverage mapping produced by a dry run: which tests cover
// which spans, and which tests never ran (whose spans are Irrelevant).
type Map struct {
	Fingerprint string              `json:"fingerprint"`
	SpanTests   map[string][]string `json:"span_tests"` // span key -> test IDs covering it
	RanTests    map[string]bool     `json:"ran_tests"`   // test ID -> ran to completion (pass or fail, not built/timed out)
}

// TestsForSpan returns the tests that emit span's sentinel, in
// deterministic order.
func (m *Map) TestsForSpan(spanKey string) []string {
	return m.SpanTests[spanKey]
}

// Irrelevant reports whether span has no tests covering it, or every
// covering test failed to run to completion during the dry run — in
// either case a mutation trial against it can never observe a difference.
func (m *Map) Irrelevant(spanKey string) bool {
	tests := m.SpanTests[spanKey]
	if len(tests) == 0 {
		return true
	}

	for _, id := range tests {
		if m.RanTests[id] {
			return false
		}
	}

	return true
}

// Coordinator runs the dry-run algorithm for one backend against one
// project tree.
type Coordinator struct {
	Root    string
	Backend backend.Backend
	Runner  Runner
	Logger  *zap.Logger
	Timeout time.Duration
}

// New constructs a Coordinator with a no-op logger if logger is nil.
func New(root string, be backend.Backend, r Runner, logger *zap.Logger, timeout time.Duration) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{Root: root, Backend: be, Runner: r, Logger: logger, Timeout: timeout}
}

// Run produces the coverage map for tests and candidates, reusing a
// cached map from a previous run when the tree's fingerprint matches
// (spec §4.4's "fingerprinted with a hash of the source tree" policy).
func (c *Coordinator) Run(ctx context.Context, tests []model.Test, candidates []model.Candidate, collector *warning.Collector) (*Map, error) {
	fp, err := c.fingerprint()
	if err != nil {
		c.Logger.Warn("dry-run fingerprint unavailable, skipping cache", zap.Error(err))
	} else if cached, ok := c.loadCache(fp); ok {
		c.Logger.Info("reusing cached dry-run map", zap.String("fingerprint", fp))
		return cached, nil
	}

	byFile := make(map[*model.SourceFile][]model.Candidate)
	for _, cand := range candidates {
		byFile[cand.Span.File] = append(byFile[cand.Span.File], cand)
	}

	restore, err := c.instrument(byFile)
	if err != nil {
		return nil, fmt.Errorf("instrument dry-run sentinels: %w", err)
	}
	defer restore()

	m := &Map{Fingerprint: fp, SpanTests: make(map[string][]string), RanTests: make(map[string]bool)}

	for _, test := range tests {
		sentinels, ran, err := c.runOneTest(ctx, test)
		if err != nil {
			return nil, err
		}

		m.RanTests[test.ID] = ran

		if !ran {
			if err := collector.Report(warning.New(warning.DryRunIrrelevant,
				"test %s did not run to completion during dry run; its spans are marked irrelevant", test.ID)); err != nil {
				return nil, err
			}

			continue
		}

		for _, cand := range byFile[test.File] {
			if sentinels[sentinelID(cand.Span)] {
				key := cand.Span.Key()
				m.SpanTests[key] = append(m.SpanTests[key], test.ID)
			}
		}
	}

	for key := range m.SpanTests {
		sort.Strings(m.SpanTests[key])
	}

	if fp != "" {
		if err := c.saveCache(m); err != nil {
			c.Logger.Warn("failed to persist dry-run cache", zap.Error(err))
		}
	}

	return m, nil
}

// runOneTest instruments nothing further (the whole tree is already
// instrumented by instrument); it just invokes the test command scoped
// to one test id and reports which sentinels it printed.
func (c *Coordinator) runOneTest(ctx context.Context, test model.Test) (sentinels map[string]bool, ran bool, err error) {
	cmd := c.Backend.TestCommand(c.Root, []string{test.ID}, nil)

	res := c.Runner.Run(ctx, cmd, c.Timeout)
	if res.TimedOut {
		c.Logger.Warn("test timed out during dry run", zap.String("test", test.ID))
		return nil, false, nil
	}

	sentinels = parseSentinels(res.Stdout + "\n" + res.Stderr)

	// A test that produced no sentinels at all either has no candidates
	// (nothing to instrument) or never ran; either way it contributes no
	// coverage, but only the latter should suppress trials — a test whose
	// own body contains no candidates is legitimately "ran to completion".
	return sentinels, res.Err == nil || isTestFailure(res), nil
}

// isTestFailure reports whether a non-zero exit reflects the test suite
// actually running and one or more assertions failing, as opposed to a
// build/harness-level failure. Framework test runners conventionally use
// exit code 1 for "ran, some tests failed"; anything else (crash, missing
// binary) is treated as not having run.
func isTestFailure(res runner.Result) bool {
	return res.ExitCode == 1
}

func sentinelID(span model.Span) string {
	return span.Key()
}

func parseSentinels(output string) map[string]bool {
	found := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, backend.SentinelPrefix)
		if idx < 0 {
			continue
		}

		id := strings.TrimSpace(line[idx+len(backend.SentinelPrefix):])
		found[id] = true
	}

	return found
}

// instrument rewrites each file with candidates in place, inserting one
// SentinelStatement per candidate immediately before that candidate's
// span, and returns a function that restores every rewritten file to its
// original bytes. Insertions are applied back-to-front within a file so
// earlier offsets are never invalidated by a later insertion.
func (c *Coordinator) instrument(byFile map[*model.SourceFile][]model.Candidate) (restore func(), err error) {
	type backup struct {
		path     string
		original []byte
	}

	var backups []backup

	restore = func() {
		for i := len(backups) - 1; i >= 0; i-- {
			b := backups[i]
			if writeErr := os.WriteFile(b.path, b.original, 0o644); writeErr != nil {
				c.Logger.Error("failed to restore instrumented file", zap.String("path", b.path), zap.Error(writeErr))
			}
		}
	}

	for file, cands := range byFile {
		sort.Slice(cands, func(i, j int) bool { return cands[i].Span.Start > cands[j].Span.Start })

		content := append([]byte(nil), file.Content...)

		for _, cand := range cands {
			stmt := c.Backend.SentinelStatement(sentinelID(cand.Span))
			insertion := []byte("\n" + stmt + "\n")

			content = append(content[:cand.Span.Start], append(insertion, content[cand.Span.Start:]...)...)
		}

		path := string(file.Path)

		if err := os.WriteFile(path, content, 0o644); err != nil {
			restore()
			return nil, fmt.Errorf("write instrumented %s: %w", path, err)
		}

		backups = append(backups, backup{path: path, original: file.Content})
	}

	return restore, nil
}

// fingerprint hashes the git HEAD tree object plus a digest of any dirty
// files, so an unmodified tree reuses the cached map and any edit
// (including an uncommitted one) invalidates it (spec §4.4).
func (c *Coordinator) fingerprint() (string, error) {
	tree, err := runGit(c.Root, "rev-parse", "HEAD^{tree}")
	if err != nil {
		return "", err
	}

	dirty, err := runGit(c.Root, "status", "--porcelain")
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(tree)))
	h.Write([]byte(dirty))

	return hex.EncodeToString(h.Sum(nil)), nil
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return string(out), nil
}

func (c *Coordinator) cachePath() string {
	return filepath.Join(c.Root, ".necessist", cacheFileName)
}

func (c *Coordinator) loadCache(fp string) (*Map, bool) {
	data, err := os.ReadFile(c.cachePath())
	if err != nil {
		return nil, false
	}

	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}

	if m.Fingerprint != fp {
		return nil, false
	}

	return &m, true
}

func (c *Coordinator) saveCache(m *Map) error {
	dir := filepath.Dir(c.cachePath())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tmp := c.cachePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, c.cachePath())
}
