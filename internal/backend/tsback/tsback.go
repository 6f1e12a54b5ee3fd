// Package tsback implements the three TypeScript-family backends from
// spec §4.2's table — Anchor-TS, Hardhat-TS, and Vitest — as one
// parameterized Backend type, since all three share a grammar (swc_core
// in the original; here the tree-sitter TypeScript grammar via
// github.com/smacker/go-tree-sitter, grounded the same way as the Go and
// Rust backends) and the same Mocha-shaped `it("name", () => { ... })`
// test declaration. What differs per framework is applicability
// detection and the command line used to run a subset of tests.
package tsback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

var defaultIgnoredFunctions = []string{"assert", "assert.*", "console.*", "expect"}
var defaultIgnoredMethods = []string{"toNumber", "toString"}

// Framework distinguishes the three flavors sharing this backend.
type Framework int

const (
	Anchor Framework = iota
	Hardhat
	Vitest
)

// Backend implements backend.Backend for one TypeScript-family framework.
type Backend struct {
	framework Framework
}

// New constructs a TS-family backend for the given framework flavor.
func New(f Framework) *Backend { return &Backend{framework: f} }

func (b *Backend) Name() model.Framework {
	switch b.framework {
	case Anchor:
		return model.FrameworkAnchor
	case Hardhat:
		return model.FrameworkHardhat
	default:
		return model.FrameworkVitest
	}
}

func (b *Backend) TestFilePatterns() []string {
	return []string{".test.ts", ".spec.ts"}
}

func (b *Backend) PathDisambiguation() backend.PathDisambiguation { return backend.Either }

// SentinelStatement uses the global console object, present in every
// Node/browser runtime this backend targets, so no import is needed.
func (b *Backend) SentinelStatement(id string) string {
	return fmt.Sprintf("console.error(%q);", backend.SentinelPrefix+id)
}

// Applicable detects the framework's manifest signature: Anchor.toml for
// Anchor, a hardhat.config.{ts,js} for Hardhat, and a
// vitest.config.{ts,js,mts} otherwise. package.json dependencies are not
// inspected.
func (b *Backend) Applicable(root string) bool {
	switch b.framework {
	case Anchor:
		return exists(filepath.Join(root, "Anchor.toml"))
	case Hardhat:
		return existsAny(root, "hardhat.config.ts", "hardhat.config.js")
	default:
		return existsAny(root, "vitest.config.ts", "vitest.config.js", "vitest.config.mts")
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func existsAny(root string, names ...string) bool {
	for _, n := range names {
		if exists(filepath.Join(root, n)) {
			return true
		}
	}

	return false
}

// Parse walks one .test.ts/.spec.ts file, finding it(...)/test(...) calls
// (Mocha test name = the string literal passed to it(...), per §4.2) and
// their removable statements/method calls.
func (b *Backend) Parse(file *model.SourceFile, rules ignore.Rules) (backend.ParseResult, error) {
	rules = rules.WithDefaults(nil, defaultIgnoredMethods, defaultIgnoredFunctions)

	parser := sitter.NewParser()
	parser.SetLanguage(typescript.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, file.Content)
	if err != nil {
		return backend.ParseResult{}, fmt.Errorf("parse %s: %w", file.Path, err)
	}
	defer tree.Close()

	var result backend.ParseResult

	lastStmtEnd := make(map[int]bool)

	var walk func(n *sitter.Node)

	walk = func(n *sitter.Node) {
		if n.Type() == "call_expression" {
			if title, body := itCall(n, file.Content); body != nil {
				result.Tests = append(result.Tests, model.Test{
					ID:       title,
					File:     file,
					NameSpan: nodeSpan(file, n),
				})

				stmts := blockStatements(body)
				markLastStatement(stmts, lastStmtEnd)

				for idx, stmt := range stmts {
					isLast := idx == len(stmts)-1
					result.Candidates = append(result.Candidates, candidatesForStatement(file, stmt, rules, isLast)...)
				}

				return // don't also walk into nested it()s as top-level code
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}

	walk(tree.RootNode())

	result.Candidates = backend.LastStatementFilter(result.Candidates, lastStmtEnd)
	result.Candidates = backend.SoleMethodCallFilter(result.Candidates)

	return result, nil
}

// itCall recognizes `it("name", async () => { ... })` and `test("name",
// function () { ... })` shapes, returning the literal test title and the
// callback's block body (nil if n isn't such a call).
func itCall(n *sitter.Node, src []byte) (title string, body *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return "", nil
	}

	name := fn.Content(src)
	if name != "it" && name != "test" {
		return "", nil
	}

	args := n.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() < 2 {
		return "", nil
	}

	titleNode := args.NamedChild(0)
	if titleNode.Type() != "string" {
		return "", nil
	}

	callback := args.NamedChild(1)

	fnBody := callback.ChildByFieldName("body")
	if fnBody == nil || fnBody.Type() != "statement_block" {
		return "", nil
	}

	title, err := strconv.Unquote(normalizeQuotes(titleNode.Content(src)))
	if err != nil {
		title = strings.Trim(titleNode.Content(src), "\"'`")
	}

	return title, fnBody
}

// normalizeQuotes rewrites single/backtick-quoted JS strings to
// double-quoted Go syntax so strconv.Unquote can decode escapes; if the
// literal already uses double quotes it is returned unchanged.
func normalizeQuotes(raw string) string {
	if strings.HasPrefix(raw, "\"") {
		return raw
	}

	inner := raw[1 : len(raw)-1]

	return "\"" + strings.ReplaceAll(inner, "\"", "\\\"") + "\""
}

func blockStatements(block *sitter.Node) []*sitter.Node {
	var stmts []*sitter.Node

	for i := 0; i < int(block.NamedChildCount()); i++ {
		stmts = append(stmts, block.NamedChild(i))
	}

	return stmts
}

func markLastStatement(stmts []*sitter.Node, lastStmtEnd map[int]bool) {
	if len(stmts) == 0 {
		return
	}

	lastStmtEnd[int(stmts[len(stmts)-1].EndByte())] = true
}

// candidatesForStatement applies the TS-family exclusions from §4.2:
// declarations, control-flow exits, compound statements, and this
// family's extra ignored statement, `throw`, never themselves become a
// Statement candidate — but a call nested inside one (a `const`/`let`
// initializer, a loop condition, an `if`'s body) is still walked for
// MethodCall candidates, only the enclosing form's own removal is
// excluded.
func candidatesForStatement(file *model.SourceFile, stmt *sitter.Node, rules ignore.Rules, isLast bool) []model.Candidate {
	switch stmt.Type() {
	case "lexical_declaration", "variable_declaration",
		"break_statement", "continue_statement", "return_statement", "throw_statement",
		"if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement", "try_statement", "switch_statement", "statement_block":
		return methodCallCandidates(file, stmt, rules)
	}

	var out []model.Candidate

	if !isLast && !isSoleCallStatement(stmt) {
		out = append(out, model.Candidate{
			Span:    nodeSpan(file, stmt),
			Kind:    model.Statement,
			Excerpt: strings.TrimSpace(stmt.Content(file.Content)),
		})
	}

	out = append(out, methodCallCandidates(file, stmt, rules)...)

	return out
}

// isSoleCallStatement reports whether stmt is an expression statement
// whose entire content is one call expression — such a statement never
// gets its own Statement candidate even when the call itself is ignored,
// mirroring the Go/Rust backends' identical rule.
func isSoleCallStatement(stmt *sitter.Node) bool {
	return stmt.Type() == "expression_statement" &&
		stmt.NamedChildCount() == 1 &&
		stmt.NamedChild(0).Type() == "call_expression"
}

// methodCallCandidates walks stmt's descendants for call expressions,
// mirroring the original GenericVisitor's visit_call rule: an ignored
// call's own argument list is never inspected for nested candidates,
// though its callee expression is still walked in case it embeds another
// call (a chained `a().b()`).
func methodCallCandidates(file *model.SourceFile, stmt *sitter.Node, rules ignore.Rules) []model.Candidate {
	var out []model.Candidate

	var walk func(n *sitter.Node)

	walk = func(n *sitter.Node) {
		if n.Type() == "call_expression" {
			c, ok, ignored := callCandidate(file, n, rules)
			if ok {
				out = append(out, c)
			}

			if ignored {
				if fn := n.ChildByFieldName("function"); fn != nil {
					walk(fn)
				}

				return
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}

	walk(stmt)

	return out
}

func callCandidate(file *model.SourceFile, call *sitter.Node, rules ignore.Rules) (cand model.Candidate, ok bool, ignored bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return model.Candidate{}, false, false
	}

	path, kind, method := dottedPath(fn, file.Content)
	if path == "" {
		return model.Candidate{}, false, false
	}

	if method != "" && rules.IgnoresCall(method, ignore.PathMethod) {
		return model.Candidate{}, false, true
	}

	if rules.IgnoresCall(path, kind) {
		return model.Candidate{}, false, true
	}

	return model.Candidate{
		Span:    nodeSpan(file, call),
		Kind:    model.MethodCall,
		Excerpt: strings.TrimSpace(call.Content(file.Content)),
	}, true, false
}

func dottedPath(fn *sitter.Node, src []byte) (path string, kind ignore.PathKind, method string) {
	switch fn.Type() {
	case "identifier":
		return fn.Content(src), ignore.PathFunction, ""
	case "member_expression":
		object := fn.ChildByFieldName("object")
		property := fn.ChildByFieldName("property")

		if object == nil || property == nil {
			return "", ignore.PathMethod, ""
		}

		return object.Content(src) + "." + property.Content(src), ignore.PathAmbiguous, property.Content(src)
	default:
		return "", ignore.PathMethod, ""
	}
}

func nodeSpan(file *model.SourceFile, n *sitter.Node) model.Span {
	return model.NewSpan(file, int(n.StartByte()), int(n.EndByte()))
}

// TestCommand produces the runner invocation per framework: `anchor test
// -- --grep <title>`, `pnpm hardhat test --grep <title>`, or `pnpm vitest
// run -t <title>` — all three tools support Mocha-style -g/-t title
// filters, so testIDs (the it() titles) are OR'd into one regex.
func (b *Backend) TestCommand(root string, testIDs []string, extraArgs []string) backend.Command {
	grep := strings.Join(escapeAll(testIDs), "|")

	var args []string

	switch b.framework {
	case Anchor:
		args = []string{"test"}
		if grep != "" {
			args = append(args, "--", "--grep", grep)
		}
	case Hardhat:
		args = []string{"hardhat", "test"}
		if grep != "" {
			args = append(args, "--grep", grep)
		}
	default:
		args = []string{"vitest", "run"}
		if grep != "" {
			args = append(args, "-t", grep)
		}
	}

	args = append(args, extraArgs...)

	program := "pnpm"
	if b.framework == Anchor {
		program = "anchor" // anchor is invoked directly, not via pnpm
	}

	return backend.Command{Program: program, Args: args, Dir: root}
}

func escapeAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.NewReplacer("(", "\\(", ")", "\\)", ".", "\\.").Replace(s)
	}

	return out
}

// BuildCommand: none of the three frameworks has a separate build-only
// step distinct from running the tests (TypeScript compilation happens
// on the fly via ts-node/hardhat's own toolchain).
func (b *Backend) BuildCommand(root string, testIDs []string) (backend.Command, bool) {
	return backend.Command{}, false
}
