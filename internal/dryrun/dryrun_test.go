package dryrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
	"github.com/necessist/necessist/internal/runner"
	"github.com/necessist/necessist/internal/warning"
)

// stubBackend is a minimal backend.Backend double: only TestCommand and
// SentinelStatement are exercised by the coordinator.
type stubBackend struct{}

func (stubBackend) Name() model.Framework          { return model.FrameworkGo }
func (stubBackend) TestFilePatterns() []string     { return []string{"_test.go"} }
func (stubBackend) PathDisambiguation() backend.PathDisambiguation { return backend.Method }
func (stubBackend) Applicable(string) bool         { return true }

func (stubBackend) Parse(*model.SourceFile, ignore.Rules) (backend.ParseResult, error) {
	return backend.ParseResult{}, nil
}

func (stubBackend) TestCommand(root string, testIDs []string, extra []string) backend.Command {
	return backend.Command{Program: "go", Args: append([]string{"test", "-run", testIDs[0]}, extra...), Dir: root}
}

func (stubBackend) BuildCommand(string, []string) (backend.Command, bool) {
	return backend.Command{}, false
}

func (stubBackend) SentinelStatement(id string) string {
	return fmt.Sprintf("println(%q)", backend.SentinelPrefix+id)
}

// stubRunner replies with a canned sentinel line per test id, simulating
// a test binary that printed the sentinel for its one candidate span.
type stubRunner struct {
	outputByTest map[string]string
}

func (r *stubRunner) Run(_ context.Context, cmd backend.Command, _ time.Duration) runner.Result {
	testID := cmd.Args[len(cmd.Args)-1]
	return runner.Result{Stdout: r.outputByTest[testID]}
}

func TestCoordinatorBuildsCoverageMap(t *testing.T) {
	root := t.TempDir()

	file := model.NewSourceFile(model.Path(filepath.Join(root, "sample_test.go")), []byte(
		"package sample\n\nfunc TestSample(t *T) {\n\tdoWork()\n}\n"))
	if err := os.WriteFile(string(file.Path), file.Content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	span := model.NewSpan(file, len("package sample\n\nfunc TestSample(t *T) {\n\t"), len("package sample\n\nfunc TestSample(t *T) {\n\tdoWork()"))
	cand := model.Candidate{Span: span, Kind: model.Statement, Excerpt: "doWork()"}
	test := model.Test{ID: "TestSample", File: file}

	sentinelLine := backend.SentinelPrefix + span.Key()

	rn := &stubRunner{outputByTest: map[string]string{"TestSample": sentinelLine}}

	coord := New(root, stubBackend{}, rn, nil, 0)

	collector := warning.NewCollector(warning.NewPolicy(false, nil, nil))

	m, err := coord.Run(context.Background(), []model.Test{test}, []model.Candidate{cand}, collector)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !m.RanTests["TestSample"] {
		t.Fatalf("expected TestSample to be marked as ran")
	}

	tests := m.TestsForSpan(span.Key())
	if len(tests) != 1 || tests[0] != "TestSample" {
		t.Fatalf("expected TestSample to cover its own span, got %v", tests)
	}

	if m.Irrelevant(span.Key()) {
		t.Fatalf("span with a covering, ran test must not be irrelevant")
	}

	restored, err := os.ReadFile(string(file.Path))
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}

	if string(restored) != string(file.Content) {
		t.Fatalf("expected instrumented file to be restored to original contents")
	}
}

func TestMapIrrelevantWhenNoTestsCover(t *testing.T) {
	m := &Map{SpanTests: map[string][]string{}, RanTests: map[string]bool{}}

	if !m.Irrelevant("some:1:1-1:5") {
		t.Fatalf("expected span with no covering tests to be irrelevant")
	}
}
