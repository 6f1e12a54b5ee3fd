package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/dryrun"
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
	"github.com/necessist/necessist/internal/mutation"
	"github.com/necessist/necessist/internal/runner"
	"github.com/necessist/necessist/internal/sourceurl"
	"github.com/necessist/necessist/internal/store"
)

type fakeBackend struct{}

func (fakeBackend) Name() model.Framework          { return model.FrameworkGo }
func (fakeBackend) TestFilePatterns() []string     { return nil }
func (fakeBackend) PathDisambiguation() backend.PathDisambiguation { return backend.Method }
func (fakeBackend) Applicable(string) bool         { return true }

func (fakeBackend) Parse(*model.SourceFile, ignore.Rules) (backend.ParseResult, error) {
	return backend.ParseResult{}, nil
}

func (b fakeBackend) BuildCommand(root string, _ []string) (backend.Command, bool) {
	return backend.Command{Program: "build", Dir: root}, true
}

func (fakeBackend) TestCommand(root string, testIDs []string, _ []string) backend.Command {
	return backend.Command{Program: "test", Dir: root, Args: testIDs}
}

func (fakeBackend) SentinelStatement(id string) string { return "println(\"" + id + "\")" }

type fakeRunner struct {
	buildFails bool
	testExit   int
}

func (r fakeRunner) Run(_ context.Context, cmd backend.Command, _ time.Duration) runner.Result {
	if cmd.Program == "build" {
		if r.buildFails {
			return runner.Result{ExitCode: 2, Err: errNonZero}
		}

		return runner.Result{}
	}

	if r.testExit == 0 {
		return runner.Result{}
	}

	return runner.Result{ExitCode: r.testExit, Err: errNonZero}
}

var errNonZero = &exitError{}

type exitError struct{}

func (*exitError) Error() string { return "exit status nonzero" }

func newFixture(t *testing.T, testExit int, buildFails bool) (*Scheduler, model.Candidate) {
	t.Helper()

	root := t.TempDir()

	path := filepath.Join(root, "sample_test.go")
	content := []byte("package sample\n\nfunc TestSample(t *T) {\n\tdoWork()\n\tdoOther()\n}\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	file := model.NewSourceFile(model.Path(path), content)

	start := len("package sample\n\nfunc TestSample(t *T) {\n\t")
	end := start + len("doWork()")

	span := model.NewSpan(file, start, end)
	cand := model.Candidate{Span: span, Kind: model.Statement, Excerpt: "doWork()"}

	j, err := mutation.OpenJournal(model.Path(root))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}

	dm := &dryrun.Map{SpanTests: map[string][]string{span.Key(): {"TestSample"}}, RanTests: map[string]bool{"TestSample": true}}

	s := New(model.Path(root), fakeBackend{}, fakeRunner{testExit: testExit, buildFails: buildFails}, j, store.NewMemory(), dm, sourceurl.Base{}, time.Second, false, false)

	return s, cand
}

func TestSchedulerPassedOutcomeRevertsMutation(t *testing.T) {
	s, cand := newFixture(t, 0, false)

	summary, err := s.Run(context.Background(), []model.Candidate{cand})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Counts[model.Passed] != 1 {
		t.Fatalf("expected one Passed outcome, got %+v", summary.Counts)
	}

	restored, err := os.ReadFile(string(cand.Span.File.Path))
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}

	if string(restored) != string(cand.Span.File.Content) {
		t.Fatalf("expected file to be restored after trial")
	}

	empty, err := s.Journal.Empty()
	if err != nil || !empty {
		t.Fatalf("expected journal to be empty after trial, empty=%v err=%v", empty, err)
	}
}

func TestSchedulerFailedOutcome(t *testing.T) {
	s, cand := newFixture(t, 1, false)

	summary, err := s.Run(context.Background(), []model.Candidate{cand})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Counts[model.Failed] != 1 {
		t.Fatalf("expected one Failed outcome, got %+v", summary.Counts)
	}
}

func TestSchedulerNonbuildableOutcome(t *testing.T) {
	s, cand := newFixture(t, 0, true)

	summary, err := s.Run(context.Background(), []model.Candidate{cand})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Counts[model.Nonbuildable] != 1 {
		t.Fatalf("expected one Nonbuildable outcome, got %+v", summary.Counts)
	}
}

func TestSchedulerIrrelevantWhenNoTestsCoverSpan(t *testing.T) {
	s, cand := newFixture(t, 0, false)
	s.DryRun = &dryrun.Map{SpanTests: map[string][]string{}, RanTests: map[string]bool{}}

	summary, err := s.Run(context.Background(), []model.Candidate{cand})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Counts[model.Irrelevant] != 1 {
		t.Fatalf("expected one Irrelevant outcome, got %+v", summary.Counts)
	}

	restored, err := os.ReadFile(string(cand.Span.File.Path))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}

	if string(restored) != string(cand.Span.File.Content) {
		t.Fatalf("expected an Irrelevant candidate to never be mutated")
	}
}

func TestSchedulerResumeSkipsExistingRecord(t *testing.T) {
	s, cand := newFixture(t, 0, false)
	s.Resume = true

	if err := s.Store.Put(model.RemovalRecord{SpanKey: cand.Span.Key(), Excerpt: cand.Excerpt, Outcome: model.Passed, URL: ""}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	summary, err := s.Run(context.Background(), []model.Candidate{cand})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Total != 0 {
		t.Fatalf("expected --resume to skip the candidate entirely, got %+v", summary)
	}
}
