// Package backend defines the capability set every language backend
// implements and a registry used for --framework auto detection. There
// is no inheritance hierarchy here — each backend is a distinct type
// satisfying the same small interface, kept narrow and independent
// rather than a shared base type.
package backend

import (
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

// PathDisambiguation matches spec §4.1's ignored_path_disambiguation()
// capability: a backend advertises which of its call-expression shapes
// are inherently unambiguous.
type PathDisambiguation string

const (
	Either PathDisambiguation = "Either"
	Function PathDisambiguation = "Function"
	Method PathDisambiguation = "Method"
)

// SentinelPrefix marks a dry-run sentinel line in a test runner's
// stdout/stderr, chosen to survive interleaving with a framework's own
// colorized output once ANSI escapes are stripped (spec §4.4, SPEC_FULL §3).
const SentinelPrefix = "NECESSIST_SENTINEL:"

// Command is an external command line, e.g. `go test -run TestFoo ./...`.
type Command struct {
	Program string
	Args    []string
	Dir     string
}

// ParseResult is one file's parse output: the tests it declares and the
// candidates found in (and, for backends supporting a walkable-function
// hop, reachable from) those tests. A parse failure surfaces as a warning
// and yields a zero ParseResult for that file (spec §7 policy) — the run
// continues with the remaining files.
type ParseResult struct {
	Tests      []model.Test
	Candidates []model.Candidate
}

// Backend is the capability set every language backend implements.
type Backend interface {
	// Name identifies the backend for --framework and log output.
	Name() model.Framework

	// Applicable detects presence of the framework at root (manifest
	// files, file extensions).
	Applicable(root string) bool

	// TestFilePatterns lists the glob suffixes (e.g. "_test.go",
	// ".t.sol") this backend's Parse method understands, used by the
	// candidate-discovery walk to decide which files to hand it.
	TestFilePatterns() []string

	// Parse parses one file's content and enumerates its tests and
	// removal candidates, applying rules to skip the exclusion described
	// in §4.2 and the ignore rules in §4.5.
	Parse(file *model.SourceFile, rules ignore.Rules) (ParseResult, error)

	// TestCommand produces the external command that runs exactly the
	// given set of tests.
	TestCommand(root string, testIDs []string, extraArgs []string) Command

	// BuildCommand produces a build-only command used as a fast-fail
	// before TestCommand, or false if the framework has no separate
	// build step.
	BuildCommand(root string, testIDs []string) (Command, bool)

	// PathDisambiguation reports which ignore lists this backend's call
	// paths are inherently disambiguated against.
	PathDisambiguation() PathDisambiguation

	// SentinelStatement renders one line of source, valid at any statement
	// position in this backend's language, that prints id prefixed with
	// SentinelPrefix to stdout/stderr with no additional imports required.
	// The dry-run coordinator inserts one such line at the entry of every
	// candidate span in a scratch copy of the tree (spec §4.4).
	SentinelStatement(id string) string
}
