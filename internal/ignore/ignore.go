// Package ignore implements a pattern-based path filter. Patterns are
// glob-like: letters/digits/_/. match literally, '*' matches any byte
// sequence including empty. A pattern is compiled once into a
// deterministic matcher and cached rather than re-parsed per candidate.
//
// Patterns match dotted paths reconstructed from a call-expression AST,
// not bare identifiers: "a.b.c" is ambiguous between "call into module
// a.b" and "method call on receiver a"; Disambiguation decides which list
// a path must appear in to be ignored.
package ignore

import (
	"regexp"
	"strings"

	"github.com/necessist/necessist/internal/model"
)

// Matcher is a compiled set of glob patterns.
type Matcher struct {
	patterns []*regexp.Regexp
	literal  map[string]struct{} // fast path for patterns with no '*'
}

// Compile builds a Matcher from raw glob patterns. It never returns an
// error: the grammar is small enough (§9 design notes) that every input
// string is a valid pattern once special regexp metacharacters other than
// '*' are escaped.
func Compile(patterns []string) *Matcher {
	m := &Matcher{literal: make(map[string]struct{})}

	for _, p := range patterns {
		if !strings.Contains(p, "*") {
			m.literal[p] = struct{}{}
			continue
		}

		m.patterns = append(m.patterns, regexp.MustCompile("^"+globToRegexp(p)+"$"))
	}

	return m
}

// globToRegexp translates the tiny glob grammar (literal identifier
// characters plus '*' as "any byte sequence") into an anchored regexp
// fragment. A hand-rolled translator is used instead of a filesystem-glob
// library such as github.com/bmatcuk/doublestar, because doublestar's
// grammar is built around '/'-separated path segments and doesn't fit
// dotted, separator-free identifier paths; see DESIGN.md.
func globToRegexp(pattern string) string {
	var b strings.Builder

	for _, r := range pattern {
		if r == '*' {
			b.WriteString(".*")
			continue
		}

		b.WriteString(regexp.QuoteMeta(string(r)))
	}

	return b.String()
}

// Match reports whether path matches any compiled pattern.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}

	if _, ok := m.literal[path]; ok {
		return true
	}

	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}

// Rules bundles the three ignore lists plus the disambiguation policy
// from necessist.toml (spec §4.5, §6) into one compiled unit that a
// backend consults per call-expression path. The raw pattern slices are
// kept alongside the compiled matchers so a backend can layer its
// framework-specific default ignore list underneath the user's
// configuration via WithDefaults without losing what the user configured.
type Rules struct {
	functionPatterns []string
	methodPatterns   []string
	macroPatterns    []string

	functions      *Matcher
	methods        *Matcher
	macros         *Matcher
	walkable       *Matcher
	disambiguation model.Disambiguation
	ignoredTests   map[string]struct{}
}

// CompileRules builds Rules from a Config, defaulting
// IgnoredPathDisambiguation to Either when unset (the config's zero
// value).
func CompileRules(cfg model.Config) Rules {
	disambig := cfg.IgnoredPathDisambiguation
	if disambig == "" {
		disambig = model.DisambiguateEither
	}

	tests := make(map[string]struct{}, len(cfg.IgnoredTests))
	for _, t := range cfg.IgnoredTests {
		tests[t] = struct{}{}
	}

	return Rules{
		functionPatterns: cfg.IgnoredFunctions,
		methodPatterns:   cfg.IgnoredMethods,
		macroPatterns:    cfg.IgnoredMacros,
		functions:        Compile(cfg.IgnoredFunctions),
		methods:          Compile(cfg.IgnoredMethods),
		macros:           Compile(cfg.IgnoredMacros),
		walkable:         Compile(cfg.WalkableFunctions),
		disambiguation:   disambig,
		ignoredTests:     tests,
	}
}

// WithDefaults returns a copy of r with defaultFunctions/Methods/Macros
// compiled in addition to whatever the user configured — every
// per-backend default_ignored_paths list from spec §4.2's table is layered
// this way, so a user's necessist.toml only ever adds exclusions, never
// has to repeat the framework's built-in ones.
func (r Rules) WithDefaults(defaultMacros, defaultMethods, defaultFunctions []string) Rules {
	out := r
	out.functions = Compile(append(append([]string{}, defaultFunctions...), r.functionPatterns...))
	out.methods = Compile(append(append([]string{}, defaultMethods...), r.methodPatterns...))
	out.macros = Compile(append(append([]string{}, defaultMacros...), r.macroPatterns...))

	return out
}

// PathKind classifies how a call-expression path should be interpreted
// when checking it against the function/method ignore lists.
type PathKind int

const (
	// PathAmbiguous means the path's shape (e.g. "a.b.c") could be either
	// a qualified function call or a method call; Disambiguation decides
	// which list(s) get consulted.
	PathAmbiguous PathKind = iota
	// PathFunction is unambiguously a free-function/qualified-function
	// call path (e.g. a package-qualified call).
	PathFunction
	// PathMethod is unambiguously a method call on a receiver.
	PathMethod
)

// IgnoresCall reports whether a call-expression path should be excluded
// from candidate discovery, per the disambiguation policy in §4.5.
func (r Rules) IgnoresCall(path string, kind PathKind) bool {
	switch kind {
	case PathFunction:
		return r.functions.Match(path)
	case PathMethod:
		return r.methods.Match(path)
	default:
		switch r.disambiguation {
		case model.DisambiguateFunction:
			return r.functions.Match(path)
		case model.DisambiguateMethod:
			return r.methods.Match(path)
		default: // Either
			return r.functions.Match(path) || r.methods.Match(path)
		}
	}
}

// IgnoresMacro reports whether a macro invocation path is on the
// ignored_macros list. Only the Rust backend consults this list.
func (r Rules) IgnoresMacro(path string) bool {
	return r.macros.Match(path)
}

// IgnoresTest reports whether a discovered test id is on ignored_tests
// and should be skipped entirely during dry-run and scheduling.
func (r Rules) IgnoresTest(id string) bool {
	_, ok := r.ignoredTests[id]
	return ok
}

// IsWalkable reports whether a function name is on walkable_functions:
// a backend may enumerate candidates inside such a helper's body, one
// hop from a test that calls it directly, in addition to the test body
// itself.
func (r Rules) IsWalkable(name string) bool {
	return r.walkable.Match(name)
}
