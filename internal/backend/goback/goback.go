// Package goback implements the Go test backend: parsing is done with
// the tree-sitter Go grammar (github.com/smacker/go-tree-sitter) rather
// than go/parser+go/ast, so the Go backend shares one parsing technology
// and one tree-walking idiom with its Rust/TypeScript siblings (the
// Solidity backend is a hand-rolled scanner instead).
package goback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

// defaultMethodNames is the default_ignored_paths method list from spec's
// table for the Go backend: testing.T/B/F helper methods whose removal
// changes control flow or output but never the assertion under test,
// matched regardless of receiver name, plus testify's ubiquitous
// assert.*/require.* helpers, matched on their package alias.
var defaultMethodNames = []string{
	"*.Close", "*.Error", "*.Errorf", "*.Fail", "*.FailNow",
	"*.Fatal", "*.Fatalf", "*.Log", "*.Logf", "*.Parallel",
	"*.Skip", "*.Skipf", "*.SkipNow", "*.Helper",
	"assert.*", "require.*",
}

// Backend implements backend.Backend for Go's testing package.
type Backend struct{}

// New constructs the Go backend.
func New() *Backend { return &Backend{} }

func (b *Backend) Name() model.Framework { return model.FrameworkGo }

func (b *Backend) TestFilePatterns() []string { return []string{"_test.go"} }

func (b *Backend) PathDisambiguation() backend.PathDisambiguation { return backend.Method }

// SentinelStatement uses Go's builtin println, which writes to stderr
// without requiring an import.
func (b *Backend) SentinelStatement(id string) string {
	return fmt.Sprintf("println(%q)", backend.SentinelPrefix+id)
}

// Applicable reports whether root looks like a Go module.
func (b *Backend) Applicable(root string) bool {
	_, err := os.Stat(filepath.Join(root, "go.mod"))
	return err == nil
}

// Parse walks one _test.go file's syntax tree, collecting Test-func
// declarations and their removable statements/method calls.
func (b *Backend) Parse(file *model.SourceFile, rules ignore.Rules) (backend.ParseResult, error) {
	rules = rules.WithDefaults(nil, defaultMethodNames, nil)

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, file.Content)
	if err != nil {
		return backend.ParseResult{}, fmt.Errorf("parse %s: %w", file.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()

	var result backend.ParseResult

	lastStmtEnd := make(map[int]bool)
	funcsByName := collectFuncDecls(root, file.Content)
	walkedHelpers := make(map[string]bool)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl.Type() != "function_declaration" {
			continue
		}

		name := funcName(decl, file.Content)
		if name == "" || !strings.HasPrefix(name, "Test") || name == "TestMain" {
			continue
		}

		body := decl.ChildByFieldName("body")
		if body == nil {
			continue
		}

		test := model.Test{
			ID:       name,
			File:     file,
			NameSpan: nodeSpan(file, decl),
		}
		result.Tests = append(result.Tests, test)

		stmts := topLevelStatements(body)
		markLastStatement(stmts, lastStmtEnd)

		for idx, stmt := range stmts {
			isLast := idx == len(stmts)-1
			result.Candidates = append(result.Candidates, candidatesForStatement(file, stmt, rules, isLast)...)
		}

		result.Candidates = append(result.Candidates, walkableHelperCandidates(file, body, funcsByName, rules, walkedHelpers, lastStmtEnd)...)
	}

	result.Candidates = backend.LastStatementFilter(result.Candidates, lastStmtEnd)
	result.Candidates = backend.SoleMethodCallFilter(result.Candidates)

	return result, nil
}

// collectFuncDecls indexes every top-level function_declaration by name,
// the set walkableHelperCandidates consults to resolve a direct call
// into a helper's body.
func collectFuncDecls(root *sitter.Node, src []byte) map[string]*sitter.Node {
	out := make(map[string]*sitter.Node)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		d := root.NamedChild(i)
		if d.Type() != "function_declaration" {
			continue
		}

		if name := funcName(d, src); name != "" {
			out[name] = d
		}
	}

	return out
}

// walkableHelperCandidates implements walkable_functions: a direct call
// from a test body to a same-file helper function whose name matches the
// config's walkable_functions patterns also has its body's statements
// and method calls enumerated as candidates, one hop deep — a helper's
// own direct calls are not walked further.
func walkableHelperCandidates(file *model.SourceFile, testBody *sitter.Node, funcsByName map[string]*sitter.Node, rules ignore.Rules, walked map[string]bool, lastStmtEnd map[int]bool) []model.Candidate {
	var out []model.Candidate

	var find func(n *sitter.Node)

	find = func(n *sitter.Node) {
		if n.Type() == "call_expression" {
			if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
				name := fn.Content(file.Content)

				if !walked[name] && rules.IsWalkable(name) {
					if helper, ok := funcsByName[name]; ok {
						walked[name] = true
						out = append(out, helperCandidates(file, helper, rules, lastStmtEnd)...)
					}
				}
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			find(n.NamedChild(i))
		}
	}

	find(testBody)

	return out
}

// helperCandidates enumerates a walked helper's own top-level statements
// the same way a test body's are enumerated.
func helperCandidates(file *model.SourceFile, helper *sitter.Node, rules ignore.Rules, lastStmtEnd map[int]bool) []model.Candidate {
	body := helper.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	stmts := topLevelStatements(body)
	markLastStatement(stmts, lastStmtEnd)

	var out []model.Candidate

	for idx, stmt := range stmts {
		isLast := idx == len(stmts)-1
		out = append(out, candidatesForStatement(file, stmt, rules, isLast)...)
	}

	return out
}

// topLevelStatements returns the direct statement children of a block
// node, i.e. the '{' and '}' delimiters excluded.
func topLevelStatements(block *sitter.Node) []*sitter.Node {
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

	last := stmts[len(stmts)-1]
	lastStmtEnd[int(last.EndByte())] = true
}

// candidatesForStatement applies the Go backend's exclusion rules from
// spec §4.2: declarations, control-flow exits, compound statements, and
// defer statements never themselves become a Statement candidate, but a
// call nested inside one of them (e.g. the initializer of a `:=`, or a
// call inside an `if`'s condition or body) is still reachable and is
// walked for MethodCall candidates the same as a bare statement's calls
// would be — only the enclosing statement's own removal is excluded. A
// bare method-call statement additionally yields a MethodCall candidate
// instead of (or alongside, pending SoleMethodCallFilter) a Statement one.
func candidatesForStatement(file *model.SourceFile, stmt *sitter.Node, rules ignore.Rules, isLast bool) []model.Candidate {
	switch stmt.Type() {
	case "short_var_declaration", "var_declaration", "const_declaration", "type_declaration",
		"break_statement", "continue_statement", "return_statement",
		"for_statement", "if_statement", "block", "labeled_statement", "select_statement", "switch_statement", "type_switch_statement",
		"defer_statement":
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
// whose entire content is one call expression (e.g. `x.foo();`) — per
// spec §4.2, such a statement never gets its own Statement candidate
// even when the call itself is ignored, since the call is the statement's
// only content either way.
func isSoleCallStatement(stmt *sitter.Node) bool {
	return stmt.Type() == "expression_statement" &&
		stmt.NamedChildCount() == 1 &&
		stmt.NamedChild(0).Type() == "call_expression"
}

// methodCallCandidates finds every call_expression within stmt whose
// callee is a selector (method-call shape) or bare identifier
// (function-call shape), filtering by the ignore rules, and yields a
// MethodCall candidate for each survivor.
func methodCallCandidates(file *model.SourceFile, stmt *sitter.Node, rules ignore.Rules) []model.Candidate {
	var out []model.Candidate

	var walk func(n *sitter.Node)

	walk = func(n *sitter.Node) {
		if n.Type() == "call_expression" {
			if c, ok := callCandidate(file, n, rules); ok {
				out = append(out, c)
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}

	walk(stmt)

	return out
}

func callCandidate(file *model.SourceFile, call *sitter.Node, rules ignore.Rules) (model.Candidate, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return model.Candidate{}, false
	}

	path, kind := dottedPath(fn, file.Content)
	if path == "" {
		return model.Candidate{}, false
	}

	if path == "panic" {
		return model.Candidate{}, false
	}

	if rules.IgnoresCall(path, kind) {
		return model.Candidate{}, false
	}

	return model.Candidate{
		Span:    nodeSpan(file, call),
		Kind:    model.MethodCall,
		Excerpt: strings.TrimSpace(call.Content(file.Content)),
	}, true
}

// dottedPath reconstructs the dotted call path from a call's function
// expression: "assert.Equal" for a selector_expression, "helper" for a
// bare identifier. It also returns the ignore.PathKind: selector
// expressions always look like a method call syntactically, even when
// the receiver is really a package — Go has no separate "module call"
// syntax, so PathMethod is always reported for selectors.
func dottedPath(fn *sitter.Node, src []byte) (path string, kind ignore.PathKind) {
	switch fn.Type() {
	case "identifier":
		return fn.Content(src), ignore.PathFunction
	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		field := fn.ChildByFieldName("field")

		if operand == nil || field == nil {
			return "", ignore.PathMethod
		}

		return operand.Content(src) + "." + field.Content(src), ignore.PathMethod
	default:
		return "", ignore.PathMethod
	}
}

func funcName(decl *sitter.Node, src []byte) string {
	n := decl.ChildByFieldName("name")
	if n == nil {
		return ""
	}

	return n.Content(src)
}

func nodeSpan(file *model.SourceFile, n *sitter.Node) model.Span {
	return model.NewSpan(file, int(n.StartByte()), int(n.EndByte()))
}

// TestCommand runs `go test -run '^(Foo|Bar)$' ./...` restricted to
// testIDs.
func (b *Backend) TestCommand(root string, testIDs []string, extraArgs []string) backend.Command {
	args := []string{"test"}
	if len(testIDs) > 0 {
		args = append(args, "-run", "^("+strings.Join(testIDs, "|")+")$")
	}

	args = append(args, "./...")
	args = append(args, extraArgs...)

	return backend.Command{Program: "go", Args: args, Dir: root}
}

// BuildCommand runs `go build ./...` as a fast-fail before TestCommand.
func (b *Backend) BuildCommand(root string, _ []string) (backend.Command, bool) {
	return backend.Command{Program: "go", Args: []string{"build", "./..."}, Dir: root}, true
}
