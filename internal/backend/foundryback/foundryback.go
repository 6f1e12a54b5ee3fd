// Package foundryback implements the Solidity/Foundry backend from spec
// §4.2's table. No Solidity grammar exists among github.com/smacker/go-
// tree-sitter's bundled languages (nor anywhere else in the retrieval
// pack), so unlike the other five backends this one is a small hand-
// rolled scanner over Solidity's brace/statement structure; see
// DESIGN.md for why no third-party parser could be substituted here.
package foundryback

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

var defaultIgnoredFunctions = []string{
	"assert*", "vm.expect*", "console.log*", "console2.log*", "vm.getLabel", "vm.label",
}

var testFuncRE = regexp.MustCompile(`(?m)^\s*function\s+(test\w*)\s*\([^)]*\)[^{;]*\{`)

// Backend implements backend.Backend for forge test's function-based
// test discovery (any public/external function on a *Test contract whose
// name starts with "test").
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() model.Framework { return model.FrameworkFoundry }

func (b *Backend) TestFilePatterns() []string { return []string{".t.sol"} }

func (b *Backend) PathDisambiguation() backend.PathDisambiguation { return backend.Function }

// SentinelStatement emits via forge-std's console2, which every forge
// test contract in this backend's target ecosystem already imports
// (transitively through forge-std/Test.sol) for cheatcode access.
func (b *Backend) SentinelStatement(id string) string {
	return fmt.Sprintf("console2.log(%q);", backend.SentinelPrefix+id)
}

func (b *Backend) Applicable(root string) bool {
	_, err := os.Stat(filepath.Join(root, "foundry.toml"))
	return err == nil
}

// Parse scans one .t.sol file for test functions using brace-depth
// tracking to find each function's body, then walks the body's
// statements one by one: Solidity's grammar is regular enough at the
// statement level (each ends in ';' or is a brace-delimited block) that
// a scanner avoids needing a real parser for this backend's purposes.
func (b *Backend) Parse(file *model.SourceFile, rules ignore.Rules) (backend.ParseResult, error) {
	rules = rules.WithDefaults(nil, nil, defaultIgnoredFunctions)

	src := string(file.Content)

	var result backend.ParseResult

	for _, m := range testFuncRE.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		braceOpen := m[1] - 1 // index of the '{' the regexp matched

		bodyStart, bodyEnd, ok := matchBrace(src, braceOpen)
		if !ok {
			continue
		}

		result.Tests = append(result.Tests, model.Test{
			ID:       name,
			File:     file,
			NameSpan: model.NewSpan(file, m[0], m[1]),
		})

		stmts := topLevelStatements(src, bodyStart+1, bodyEnd)

		guarded := false

		for idx, stmt := range stmts {
			isLast := idx == len(stmts)-1
			text := strings.TrimSpace(src[stmt.start:stmt.end])

			result.Candidates = append(result.Candidates, candidatesForStatement(file, src, stmt, rules, isLast || guarded)...)

			guarded = guardsNextStatement(text)
		}
	}

	result.Candidates = backend.SoleMethodCallFilter(result.Candidates)

	return result, nil
}

type stmtSpan struct {
	start, end int // half-open byte range within src, includes trailing ';' or '}'
}

// matchBrace returns the byte offsets of the '{' at openIdx and its
// matching '}', both inclusive of the braces themselves ([start,end)
// where src[end-1] == '}').
func matchBrace(src string, openIdx int) (start, end int, ok bool) {
	depth := 0

	for i := openIdx; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return openIdx, i + 1, true
			}
		}
	}

	return 0, 0, false
}

// topLevelStatements splits a function body into its top-level
// statements by tracking paren/brace depth and only breaking at ';' or
// a closing '}' when depth is zero, so nested blocks (if/for/{}) are
// each returned as one statement spanning to their closing brace.
func topLevelStatements(src string, from, to int) []stmtSpan {
	var stmts []stmtSpan

	depth := 0
	stmtStart := from

	for i := from; i < to; i++ {
		switch src[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '{':
			if depth == 0 {
				_, end, ok := matchBrace(src, i)
				if ok {
					stmts = append(stmts, stmtSpan{start: stmtStart, end: end})
					i = end - 1
					stmtStart = end
				}
			}
		case ';':
			if depth == 0 {
				stmts = append(stmts, stmtSpan{start: stmtStart, end: i + 1})
				stmtStart = i + 1
			}
		}
	}

	return stmts
}

// candidatesForStatement applies the Foundry-specific exclusions from
// §4.2: emit statements, declarations, and control-flow. isLast also
// covers the statement immediately following a vm.prank/vm.expect*
// cheatcode call — a cheatcode that only takes effect for the single
// statement after it, so removing that statement would silently disable
// the cheatcode rather than test anything; removing the cheatcode call
// itself is unaffected and goes through the normal ignored-function-call
// path.
func candidatesForStatement(file *model.SourceFile, src string, stmt stmtSpan, rules ignore.Rules, isLast bool) []model.Candidate {
	text := strings.TrimSpace(src[stmt.start:stmt.end])

	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "emit ") {
		return methodCallCandidates(file, src, stmt, rules)
	}

	if isDeclaration(text) || isControlFlow(text) {
		return methodCallCandidates(file, src, stmt, rules)
	}

	var out []model.Candidate

	if !isLast {
		out = append(out, model.Candidate{
			Span:    model.NewSpan(file, stmt.start, stmt.end),
			Kind:    model.Statement,
			Excerpt: text,
		})
	}

	out = append(out, methodCallCandidates(file, src, stmt, rules)...)

	return out
}

var declKeywords = regexp.MustCompile(`^(uint\d*|int\d*|address|bool|bytes\d*|string|mapping|struct|enum)\b`)

func isDeclaration(text string) bool {
	return declKeywords.MatchString(text)
}

func isControlFlow(text string) bool {
	for _, kw := range []string{"if ", "if(", "for ", "for(", "while ", "while(", "return", "break;", "continue;", "revert", "try "} {
		if strings.HasPrefix(text, kw) {
			return true
		}
	}

	return strings.HasPrefix(text, "{")
}

// guardsNextStatement matches the cheatcode calls whose effect applies
// only to the transaction/statement immediately following them.
func guardsNextStatement(text string) bool {
	for _, prefix := range []string{"vm.prank(", "vm.startPrank(", "vm.expect"} {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}

	return false
}

// callRE matches a dotted call path optionally followed by a
// FunctionCallBlock value block (`{value: x, gas: y}`, single level of
// nesting) before the argument list's opening paren, so a call like
// `token.transfer{value: x}(bob, 1)` is peeled the same way solang-parser
// peels a FunctionCallBlock: the value block is skipped rather than
// causing the whole call to go undetected.
var callRE = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*(?:\{[^{}]*\}\s*)?\(`)

// methodCallCandidates finds dotted call expressions within one
// statement's text, treating "vm.foo(...)" and "console.log(...)" style
// paths the same way the tree-sitter backends treat a dotted call path.
// Unlike a tree walk, the regex scan has no notion of nesting, so an
// ignored call's own argument list (e.g. the balanceOf(...) call nested
// inside an ignored assertEq(...) call) is tracked explicitly in
// ignoredSpans and any later match starting inside one is skipped —
// the flat-text equivalent of not descending into an ignored call's
// arguments.
func methodCallCandidates(file *model.SourceFile, src string, stmt stmtSpan, rules ignore.Rules) []model.Candidate {
	text := src[stmt.start:stmt.end]

	var out []model.Candidate
	var ignoredSpans [][2]int

	for _, m := range callRE.FindAllStringSubmatchIndex(text, -1) {
		if withinSpan(m[2], ignoredSpans) {
			continue
		}

		path := text[m[2]:m[3]]

		callEnd := matchCallParen(text, m[1]-1)
		if callEnd < 0 {
			continue
		}

		if rules.IgnoresCall(path, ignore.PathFunction) {
			ignoredSpans = append(ignoredSpans, [2]int{m[1] - 1, callEnd})
			continue
		}

		if !strings.Contains(path, ".") {
			continue
		}

		out = append(out, model.Candidate{
			Span:    model.NewSpan(file, stmt.start+m[2], stmt.start+callEnd),
			Kind:    model.MethodCall,
			Excerpt: strings.TrimSpace(text[m[2]:callEnd]),
		})
	}

	return out
}

func withinSpan(pos int, spans [][2]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}

	return false
}

func matchCallParen(text string, openIdx int) int {
	depth := 0

	for i := openIdx; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}

	return -1
}

// TestCommand runs `forge test --match-test <regex>` restricted to
// testIDs, OR'd into one anchored alternation.
func (b *Backend) TestCommand(root string, testIDs []string, extraArgs []string) backend.Command {
	args := []string{"test"}

	if len(testIDs) > 0 {
		args = append(args, "--match-test", fmt.Sprintf("^(%s)$", strings.Join(testIDs, "|")))
	}

	args = append(args, extraArgs...)

	return backend.Command{Program: "forge", Args: args, Dir: root}
}

// BuildCommand runs `forge build` as a fast-fail before TestCommand.
func (b *Backend) BuildCommand(root string, _ []string) (backend.Command, bool) {
	return backend.Command{Program: "forge", Args: []string{"build"}, Dir: root}, true
}
