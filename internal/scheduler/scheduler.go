// Package scheduler implements the trial scheduler from spec §4.6: for
// each removal candidate, in canonical order, mutate the span, build,
// run the covering tests, classify the outcome, persist it, and reverse
// the mutation — reaching Reverted on every exit path.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/dryrun"
	"github.com/necessist/necessist/internal/model"
	"github.com/necessist/necessist/internal/mutation"
	"github.com/necessist/necessist/internal/runner"
	"github.com/necessist/necessist/internal/sourceurl"
	"github.com/necessist/necessist/internal/store"
)

// Runner is the process-execution dependency, narrowed to what the
// scheduler needs so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, cmd backend.Command, timeout time.Duration) runner.Result
}

// Reporter observes each trial as it completes. Verbosity policy (spec
// §4.6: "printing an individual record only when the outcome is Passed"
// in the default mode) lives in the Reporter implementation, not here.
type Reporter interface {
	Trial(rec model.RemovalRecord)
}

// NopReporter discards every trial notification.
type NopReporter struct{}

func (NopReporter) Trial(model.RemovalRecord) {}

// Summary tallies how many trials landed in each outcome bucket.
type Summary struct {
	Counts map[model.Outcome]int
	Total  int
}

func newSummary() Summary {
	return Summary{Counts: make(map[model.Outcome]int)}
}

func (s *Summary) record(o model.Outcome) {
	s.Counts[o]++
	s.Total++
}

// Scheduler drives one project's trials to completion.
type Scheduler struct {
	Root      model.Path
	Backend   backend.Backend
	Runner    Runner
	Journal   *mutation.Journal
	Store     store.Store
	DryRun    *dryrun.Map
	URLBase   sourceurl.Base
	Timeout   time.Duration
	Resume    bool
	KeepGoing bool
	ExtraArgs []string
	Logger    *zap.Logger
	Reporter  Reporter
}

// New constructs a Scheduler, defaulting Logger and Reporter to no-ops.
func New(root model.Path, be backend.Backend, r Runner, j *mutation.Journal, st store.Store, dr *dryrun.Map, urlBase sourceurl.Base, timeout time.Duration, resume, keepGoing bool) *Scheduler {
	return &Scheduler{
		Root:      root,
		Backend:   be,
		Runner:    r,
		Journal:   j,
		Store:     st,
		DryRun:    dr,
		URLBase:   urlBase,
		Timeout:   timeout,
		Resume:    resume,
		KeepGoing: keepGoing,
		Logger:    zap.NewNop(),
		Reporter:  NopReporter{},
	}
}

// Run processes every candidate in canonical order (file path ascending,
// then span start ascending), stopping early if ctx is cancelled between
// trials — a trial already underway always finishes its Revert before
// Run returns.
func (s *Scheduler) Run(ctx context.Context, candidates []model.Candidate) (Summary, error) {
	ordered := canonicalOrder(candidates)
	summary := newSummary()

	for _, cand := range ordered {
		if err := ctx.Err(); err != nil {
			s.Logger.Info("scheduler stopping: context cancelled", zap.Error(err))
			return summary, nil
		}

		outcome, err := s.runOne(ctx, cand)
		if err != nil {
			s.Logger.Error("trial failed unexpectedly", zap.String("span", cand.Span.Key()), zap.Error(err))

			if !s.KeepGoing {
				return summary, err
			}

			continue
		}

		if outcome == "" {
			// Skipped by --resume: not counted as a fresh trial.
			continue
		}

		summary.record(outcome)
	}

	return summary, nil
}

// runOne executes the state machine for a single candidate. It returns
// ("", nil) if the trial was skipped outright (an existing --resume
// record), and otherwise always reaches Reverted before returning,
// including on every error path.
func (s *Scheduler) runOne(ctx context.Context, cand model.Candidate) (model.Outcome, error) {
	spanKey := cand.Span.Key()

	if s.Resume {
		if _, ok, err := s.Store.Get(spanKey); err != nil {
			return "", fmt.Errorf("check resume state for %s: %w", spanKey, err)
		} else if ok {
			return "", nil
		}
	}

	tests := s.DryRun.TestsForSpan(spanKey)
	if len(tests) == 0 {
		return s.finish(cand, model.Irrelevant)
	}

	// Mutated: apply the in-place edit and journal its reversal.
	rec, err := s.Journal.Apply(cand.Span.File.Path, cand.Span.Start, cand.Span.End)
	if err != nil {
		return "", fmt.Errorf("apply mutation for %s: %w", spanKey, err)
	}

	defer func() {
		if revertErr := s.Journal.Revert(rec); revertErr != nil {
			s.Logger.Error("failed to revert mutation", zap.String("span", spanKey), zap.Error(revertErr))
		}
	}()

	outcome, err := s.buildAndTest(ctx, tests)
	if err != nil {
		return "", err
	}

	return s.finish(cand, outcome)
}

// buildAndTest covers the Built/Executed/Classified states: an optional
// build fast-fail, then the actual test invocation.
func (s *Scheduler) buildAndTest(ctx context.Context, tests []string) (model.Outcome, error) {
	if buildCmd, ok := s.Backend.BuildCommand(string(s.Root), tests); ok {
		res := s.Runner.Run(ctx, buildCmd, s.Timeout)
		if res.TimedOut {
			return model.TimedOut, nil
		}

		if res.Err != nil {
			return model.Nonbuildable, nil
		}
	}

	testCmd := s.Backend.TestCommand(string(s.Root), tests, s.ExtraArgs)

	res := s.Runner.Run(ctx, testCmd, s.Timeout)

	switch {
	case res.TimedOut:
		return model.TimedOut, nil
	case res.Err == nil:
		return model.Passed, nil
	case isTestFailureExit(res):
		return model.Failed, nil
	default:
		return model.Nonbuildable, nil
	}
}

// isTestFailureExit distinguishes "the tests ran and some failed" (exit
// code 1 by convention across go test, cargo test, forge test, and the
// Node test runners) from a harness-level failure that means the tests
// never actually started.
func isTestFailureExit(res runner.Result) bool {
	return res.ExitCode == 1
}

// finish covers Recorded: it persists rec and returns the outcome so Run
// can tally it. Reverted happens in the caller's deferred Journal.Revert.
func (s *Scheduler) finish(cand model.Candidate, outcome model.Outcome) (model.Outcome, error) {
	relPath := string(cand.Span.File.Path)
	if rel, err := filepath.Rel(string(s.Root), relPath); err == nil {
		relPath = rel
	}

	rec := model.RemovalRecord{
		SpanKey: cand.Span.Key(),
		Excerpt: cand.Excerpt,
		Outcome: outcome,
		URL:     s.URLBase.URL(relPath, cand.Span.StartLine, cand.Span.EndLine),
	}

	if err := s.Store.Put(rec); err != nil {
		return "", fmt.Errorf("persist %s: %w", rec.SpanKey, err)
	}

	s.Reporter.Trial(rec)

	return outcome, nil
}

// canonicalOrder sorts candidates by file path, then span start, per
// spec §4.6's reproducibility requirement.
func canonicalOrder(candidates []model.Candidate) []model.Candidate {
	out := append([]model.Candidate(nil), candidates...)

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Span.File.Path, out[j].Span.File.Path
		if pi != pj {
			return pi < pj
		}

		return out[i].Span.Start < out[j].Span.Start
	})

	return out
}

// Recover replays any journal entries left over from a crashed run,
// restoring the tree to a clean state before the root lock is acquired
// (spec §4.3, §9). It must be called once at process start.
func Recover(j *mutation.Journal, logger *zap.Logger) error {
	pending, err := j.Pending()
	if err != nil {
		return fmt.Errorf("list pending journal entries: %w", err)
	}

	var errs []error

	for _, rec := range pending {
		logger.Warn("reverting mutation left over from a previous run", zap.String("file", rec.File))

		if err := j.Revert(rec); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
