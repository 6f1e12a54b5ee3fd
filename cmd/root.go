// Package cmd provides the necessist CLI surface: one root command,
// since necessist has no subcommands, wiring a pluggable multi-language
// backend registry to a single cobra.Command.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/backend/foundryback"
	"github.com/necessist/necessist/internal/backend/goback"
	"github.com/necessist/necessist/internal/backend/rustback"
	"github.com/necessist/necessist/internal/backend/tsback"
	"github.com/necessist/necessist/internal/config"
	"github.com/necessist/necessist/internal/discover"
	"github.com/necessist/necessist/internal/dryrun"
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/lock"
	"github.com/necessist/necessist/internal/model"
	"github.com/necessist/necessist/internal/mutation"
	"github.com/necessist/necessist/internal/runner"
	"github.com/necessist/necessist/internal/scheduler"
	"github.com/necessist/necessist/internal/sourceurl"
	"github.com/necessist/necessist/internal/store"
	"github.com/necessist/necessist/internal/ui"
	"github.com/necessist/necessist/internal/warning"
)

var registry = backend.NewRegistry(
	goback.New(),
	rustback.New(),
	foundryback.New(),
	tsback.New(tsback.Anchor),
	tsback.New(tsback.Hardhat),
	tsback.New(tsback.Vitest),
)

var (
	allowFlags        []string
	denyFlags         []string
	defaultConfigFlag bool
	dumpFlag          bool
	dumpCandidates    bool
	dumpCandCounts    bool
	frameworkFlag     string
	noSQLiteFlag      bool
	quietFlag         bool
	resetFlag         bool
	resumeFlag        bool
	rootFlag          string
	timeoutFlag       int
	verboseFlag       bool
)

// rootCmd is necessist's entire CLI surface (spec §6): a single command
// taking test files/directories plus trailing `-- ARGS` forwarded to
// every test-runner invocation.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "necessist [OPTIONS] [TEST_FILES_OR_DIRS]... [-- <ARGS>...]",
		Short: "Mutation-adjacent test-suite auditor: measures which tests actually exercise which code",
		Long: `necessist removes statements and method calls from test bodies one at a
time and re-runs the tests that a dry run showed cover them. If the tests
still pass with the removal in place, the removed code was not actually
exercised by the suite.`,
		RunE: runRoot,
	}

	cmd.Flags().StringArrayVar(&allowFlags, "allow", nil, "allow a warning name (repeatable)")
	cmd.Flags().StringArrayVar(&denyFlags, "deny", nil, `promote a warning name, or "all", to a hard error (repeatable)`)
	cmd.Flags().BoolVar(&defaultConfigFlag, "default-config", false, "write a starter necessist.toml and exit")
	cmd.Flags().BoolVar(&dumpFlag, "dump", false, "print the outcome store and exit")
	cmd.Flags().BoolVar(&dumpCandidates, "dump-candidates", false, "print discovered candidates and exit, without running any tests")
	cmd.Flags().BoolVar(&dumpCandCounts, "dump-candidate-counts", false, "print per-file candidate counts and exit, without running any tests")
	cmd.Flags().StringVar(&frameworkFlag, "framework", "auto", "auto|rust|go|foundry|anchor|hardhat|vitest")
	cmd.Flags().BoolVar(&noSQLiteFlag, "no-sqlite", false, "route outcomes to an in-memory store instead of necessist.db")
	cmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress all per-trial output")
	cmd.Flags().BoolVar(&resetFlag, "reset", false, "truncate the outcome store before running")
	cmd.Flags().BoolVar(&resumeFlag, "resume", false, "skip spans that already have a stored outcome")
	cmd.Flags().StringVar(&rootFlag, "root", ".", "project root")
	cmd.Flags().IntVar(&timeoutFlag, "timeout", 60, "per-test timeout in seconds")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "print every trial outcome, not just Passed")

	return cmd
}

// Execute runs the root command. It is called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	root := model.Path(rootFlag)

	if defaultConfigFlag {
		return config.WriteDefault(root)
	}

	testPaths, extraArgs := splitTrailingArgs(cmd, args)

	logger, err := newLogger(verboseFlag)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	journal, err := mutation.OpenJournal(root)
	if err != nil {
		return err
	}

	if err := scheduler.Recover(journal, logger); err != nil {
		return fmt.Errorf("recover journal: %w", err)
	}

	l, err := lock.Acquire(string(root))
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	st, err := openStore(root)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if resetFlag {
		if err := st.Reset(); err != nil {
			return fmt.Errorf("reset outcome store: %w", err)
		}
	}

	if dumpFlag {
		records, err := st.All()
		if err != nil {
			return fmt.Errorf("read outcome store: %w", err)
		}

		ui.New(cmd.OutOrStdout(), verboseFlag, quietFlag).Dump(records)

		return nil
	}

	be, err := resolveBackend(string(root))
	if err != nil {
		return err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	rules := ignore.CompileRules(cfg)

	allow, deny, denyAll, err := parseWarningFlags(allowFlags, denyFlags)
	if err != nil {
		return err
	}

	collector := warning.NewCollector(warning.NewPolicy(denyAll, deny, allow))

	result, err := discover.Run(testPaths, be, rules, collector)
	if err != nil {
		return err
	}

	reporter := ui.New(cmd.OutOrStdout(), verboseFlag, quietFlag)

	if dumpCandidates {
		reporter.DumpCandidates(result.Candidates)
		return finishWarnings(reporter, collector)
	}

	if dumpCandCounts {
		reporter.DumpCandidateCounts(result.Candidates)
		return finishWarnings(reporter, collector)
	}

	urlBase, err := sourceurl.Resolve(root, collector)
	if err != nil {
		return err
	}

	timeout := time.Duration(timeoutFlag) * time.Second
	proc := runner.New()

	dc := dryrun.New(string(root), be, proc, logger, timeout)

	dryMap, err := dc.Run(cmd.Context(), result.Tests, result.Candidates, collector)
	if err != nil {
		return err
	}

	sched := scheduler.New(root, be, proc, journal, st, dryMap, urlBase, timeout, resumeFlag, false)
	sched.Logger = logger
	sched.Reporter = reporter
	sched.ExtraArgs = extraArgs

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := sched.Run(ctx, result.Candidates)
	if err != nil {
		return err
	}

	reporter.Summary(summary)

	if err := finishWarnings(reporter, collector); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}

	return nil
}

func finishWarnings(reporter *ui.SimpleUI, collector *warning.Collector) error {
	reporter.Warnings(collector.All())
	return nil
}

// splitTrailingArgs separates leading TEST_FILES_OR_DIRS positional
// arguments from ARGS following a literal "--", cobra's own convention
// for pass-through arguments.
func splitTrailingArgs(cmd *cobra.Command, args []string) (testPaths, extraArgs []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil
	}

	return args[:dash], args[dash:]
}

func resolveBackend(root string) (backend.Backend, error) {
	if frameworkFlag == "" || frameworkFlag == string(model.FrameworkAuto) {
		be, ok := registry.DetectConcurrent(root)
		if !ok {
			return nil, fmt.Errorf("no supported test framework detected at %s", root)
		}

		return be, nil
	}

	be, ok := registry.Get(model.Framework(frameworkFlag))
	if !ok {
		return nil, fmt.Errorf("unknown --framework %q", frameworkFlag)
	}

	return be, nil
}

func openStore(root model.Path) (store.Store, error) {
	if noSQLiteFlag {
		return store.NewMemory(), nil
	}

	return store.Open(string(root) + "/necessist.db")
}

// parseWarningFlags turns the raw --allow/--deny strings (each either a
// warning.Name or the literal "all") into a Policy's inputs.
func parseWarningFlags(allow, deny []string) (allowNames, denyNames []warning.Name, denyAll bool, err error) {
	for _, d := range deny {
		if strings.EqualFold(d, "all") {
			denyAll = true
			continue
		}

		denyNames = append(denyNames, warning.Name(d))
	}

	for _, a := range allow {
		if strings.EqualFold(a, "all") {
			return nil, nil, false, fmt.Errorf("--allow all is not meaningful; use --deny all to opt into strict mode instead")
		}

		allowNames = append(allowNames, warning.Name(a))
	}

	return allowNames, denyNames, denyAll, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
