// Package rustback implements the Rust test backend from spec §4.2's
// table. The original necessist parses Rust with syn, a Rust-native
// crate with no Go equivalent; this reimplementation instead drives the
// tree-sitter Rust grammar through github.com/smacker/go-tree-sitter (the
// same library the Go and TypeScript backends use), so every backend in
// this module except the hand-rolled Foundry scanner shares one parsing
// technology (spec §9 "Parser diversity").
package rustback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

// defaultIgnoredMacros and defaultIgnoredMethods are the v2.0 sentinel
// lists from spec §9 ("the source contains conflicting sentinel lists
// across versions; adopt the most-recent (v2.0) list as authoritative").
var defaultIgnoredMacros = []string{
	"assert", "assert_eq", "assert_matches", "assert_ne", "debug", "eprint",
	"eprintln", "error", "info", "panic", "print", "println", "trace",
	"unimplemented", "unreachable", "warn",
}

var defaultIgnoredMethods = []string{
	"as_bytes", "as_ref", "as_slice", "as_str", "borrow", "clone", "cloned",
	"copied", "deref", "expect", "expect_err", "into_*", "iter", "iter_mut",
	"success", "to_*", "unwrap", "unwrap_err",
}

// Backend implements backend.Backend for Rust's built-in #[test] harness.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() model.Framework { return model.FrameworkRust }

func (b *Backend) TestFilePatterns() []string { return []string{".rs"} }

func (b *Backend) PathDisambiguation() backend.PathDisambiguation { return backend.Either }

// SentinelStatement uses eprintln!, part of the prelude, so no `use`
// declaration is needed at the injection site.
func (b *Backend) SentinelStatement(id string) string {
	return fmt.Sprintf("eprintln!(%q);", backend.SentinelPrefix+id)
}

func (b *Backend) Applicable(root string) bool {
	_, err := os.Stat(filepath.Join(root, "Cargo.toml"))
	return err == nil
}

// Parse walks one .rs file's syntax tree, finding #[test]-attributed
// functions and their removable statements/method calls/macro calls.
func (b *Backend) Parse(file *model.SourceFile, rules ignore.Rules) (backend.ParseResult, error) {
	rules = withDefaults(rules)

	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, file.Content)
	if err != nil {
		return backend.ParseResult{}, fmt.Errorf("parse %s: %w", file.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()

	var result backend.ParseResult

	lastStmtEnd := make(map[int]bool)

	walkItems(root, file.Content, nil, func(item *sitter.Node, attrs []*sitter.Node, modPath []string) {
		if item.Type() != "function_item" || !hasTestAttribute(attrs, file.Content) {
			return
		}

		name := fieldContent(item, "name", file.Content)
		if name == "" {
			return
		}

		if len(modPath) > 0 {
			name = strings.Join(modPath, "::") + "::" + name
		}

		body := item.ChildByFieldName("body")
		if body == nil {
			return
		}

		result.Tests = append(result.Tests, model.Test{
			ID:       name,
			File:     file,
			NameSpan: nodeSpan(file, item),
		})

		stmts := blockStatements(body)
		markLastStatement(stmts, lastStmtEnd)

		for idx, stmt := range stmts {
			isLast := idx == len(stmts)-1
			result.Candidates = append(result.Candidates, candidatesForStatement(file, stmt, rules, isLast)...)
		}
	})

	result.Candidates = backend.LastStatementFilter(result.Candidates, lastStmtEnd)
	result.Candidates = backend.SoleMethodCallFilter(result.Candidates)

	return result, nil
}

// walkItems visits every function_item in the tree along with the
// attribute_item nodes immediately preceding it (its #[...] annotations)
// and the chain of enclosing module names, recursing into mod blocks. The
// module path lets Parse build a fully qualified `mod_a::mod_b::name`
// test ID, since `cargo test --exact` matches against the qualified path
// cargo itself reports, not the bare function name — the idiomatic
// `#[cfg(test)] mod tests { #[test] fn foo() {} }` shape means most real
// test functions live at least one module deep.
func walkItems(n *sitter.Node, src []byte, modPath []string, visit func(item *sitter.Node, attrs []*sitter.Node, modPath []string)) {
	var pending []*sitter.Node

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)

		switch child.Type() {
		case "attribute_item":
			pending = append(pending, child)
			continue
		case "function_item":
			visit(child, pending, modPath)
		case "mod_item":
			if body := child.ChildByFieldName("body"); body != nil {
				if modName := fieldContent(child, "name", src); modName != "" {
					walkItems(body, src, append(append([]string{}, modPath...), modName), visit)
				} else {
					walkItems(body, src, modPath, visit)
				}
			}
		}

		pending = nil
	}
}

func hasTestAttribute(attrs []*sitter.Node, src []byte) bool {
	for _, a := range attrs {
		text := a.Content(src)
		if strings.Contains(text, "test") {
			return true
		}
	}

	return false
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

// candidatesForStatement applies the Rust backend's exclusions: local
// bindings, control-flow exits, compound statements, and — per §4.2's
// Rust-specific row — a tail expression that terminates a block whose
// value is used (tree-sitter represents this as a named child of `block`
// with no trailing expression_statement wrapper, i.e. any non-statement
// expression node reached as the final block child) never themselves
// become a Statement candidate — but a call nested inside one (a `let`
// binding's initializer, a loop condition, a match arm) is still walked
// for MethodCall/macro candidates, only the enclosing form's own removal
// is excluded.
func candidatesForStatement(file *model.SourceFile, stmt *sitter.Node, rules ignore.Rules, isLast bool) []model.Candidate {
	switch stmt.Type() {
	case "let_declaration",
		"break_expression", "continue_expression", "return_expression",
		"for_expression", "while_expression", "loop_expression", "if_expression", "match_expression", "block", "try_expression":
		return methodCallCandidates(file, stmt, rules)
	}

	if stmt.Type() != "expression_statement" && stmt.Type() != "macro_invocation" {
		// A bare tail expression (block value) — never removable.
		return methodCallCandidates(file, stmt, rules)
	}

	var out []model.Candidate

	if macroCall(stmt) != nil {
		if c, ok := macroCandidate(file, macroCall(stmt), rules); ok {
			out = append(out, c)
		}

		return out
	}

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
// mirroring the Go backend's identical rule.
func isSoleCallStatement(stmt *sitter.Node) bool {
	return stmt.Type() == "expression_statement" &&
		stmt.NamedChildCount() == 1 &&
		stmt.NamedChild(0).Type() == "call_expression"
}

func macroCall(stmt *sitter.Node) *sitter.Node {
	if stmt.Type() == "macro_invocation" {
		return stmt
	}

	if stmt.NamedChildCount() == 1 && stmt.NamedChild(0).Type() == "macro_invocation" {
		return stmt.NamedChild(0)
	}

	return nil
}

func macroCandidate(file *model.SourceFile, mac *sitter.Node, rules ignore.Rules) (model.Candidate, bool) {
	macroName := fieldContent(mac, "macro", file.Content)
	if macroName == "" {
		return model.Candidate{}, false
	}

	if rules.IgnoresMacro(macroName) {
		return model.Candidate{}, false
	}

	return model.Candidate{
		Span:    nodeSpan(file, mac),
		Kind:    model.Statement,
		Excerpt: strings.TrimSpace(mac.Content(file.Content)),
	}, true
}

// methodCallCandidates walks n's descendants for call expressions,
// mirroring the original GenericVisitor's visit_call rule: it only
// descends into a call's own argument list when that call is not itself
// ignored — an ignored call's callee can still turn out to hold a nested
// call (a chained `a().b()`), so the callee subtree is always walked, but
// an ignored call's arguments are never inspected for candidates.
func methodCallCandidates(file *model.SourceFile, n *sitter.Node, rules ignore.Rules) []model.Candidate {
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

	walk(n)

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

	if method != "" {
		if rules.IgnoresCall(method, ignore.PathMethod) {
			return model.Candidate{}, false, true
		}
	} else if rules.IgnoresCall(path, kind) {
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
	case "scoped_identifier":
		return strings.ReplaceAll(fn.Content(src), "::", "."), ignore.PathFunction, ""
	case "field_expression":
		field := fn.ChildByFieldName("field")
		if field == nil {
			return "", ignore.PathMethod, ""
		}

		return field.Content(src), ignore.PathMethod, field.Content(src)
	default:
		return "", ignore.PathMethod, ""
	}
}

func fieldContent(n *sitter.Node, field string, src []byte) string {
	c := n.ChildByFieldName(field)
	if c == nil {
		return ""
	}

	return c.Content(src)
}

func nodeSpan(file *model.SourceFile, n *sitter.Node) model.Span {
	return model.NewSpan(file, int(n.StartByte()), int(n.EndByte()))
}

// withDefaults seeds the Rust-specific default ignore lists (spec §4.2's
// table) underneath whatever necessist.toml configured, matching the
// original's "always ignore these plus whatever the user added" policy.
func withDefaults(rules ignore.Rules) ignore.Rules {
	return rules.WithDefaults(defaultIgnoredMacros, defaultIgnoredMethods, nil)
}

// TestCommand runs `cargo test <extraArgs> -- --exact <id> --exact <id>...`
// restricted to testIDs.
func (b *Backend) TestCommand(root string, testIDs []string, extraArgs []string) backend.Command {
	args := []string{"test"}
	args = append(args, extraArgs...)

	if len(testIDs) > 0 {
		args = append(args, "--")

		for _, id := range testIDs {
			args = append(args, "--exact", id)
		}
	}

	return backend.Command{Program: "cargo", Args: args, Dir: root}
}

// BuildCommand runs `cargo build --tests` as a fast-fail before TestCommand.
func (b *Backend) BuildCommand(root string, _ []string) (backend.Command, bool) {
	return backend.Command{Program: "cargo", Args: []string{"build", "--tests"}, Dir: root}, true
}
