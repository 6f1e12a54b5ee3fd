package tsback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

const vitestSample = `
import { it, expect } from "vitest";

it("adds numbers", () => {
  const sum = add(1, 2);
  console.log(sum);
  expect(sum).toBe(3);
});
`

func TestParseFindsTestAndCandidates(t *testing.T) {
	file := model.NewSourceFile("sum.test.ts", []byte(vitestSample))
	rules := ignore.CompileRules(model.Config{})

	b := New(Vitest)

	result, err := b.Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(result.Tests) != 1 || result.Tests[0].ID != "adds numbers" {
		t.Fatalf("expected one test named %q, got %+v", "adds numbers", result.Tests)
	}

	foundConsoleLog := false

	for _, c := range result.Candidates {
		if c.Excerpt != "" && containsConsoleLog(c.Excerpt) {
			foundConsoleLog = true
		}
	}

	if foundConsoleLog {
		t.Fatalf("expected console.log to be excluded by default ignore list, got %+v", result.Candidates)
	}
}

func TestParseFindsCallsNestedInDeclarations(t *testing.T) {
	file := model.NewSourceFile("sum.test.ts", []byte(vitestSample))
	rules := ignore.CompileRules(model.Config{})

	b := New(Vitest)

	result, err := b.Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	foundAdd := false

	for _, c := range result.Candidates {
		if c.Kind == model.MethodCall && c.Excerpt == "add(1, 2)" {
			foundAdd = true
		}
	}

	if !foundAdd {
		t.Fatalf("expected add(1, 2) nested in the const declaration to surface as a candidate, got %+v", result.Candidates)
	}
}

func containsConsoleLog(s string) bool {
	for i := 0; i+len("console.log") <= len(s); i++ {
		if s[i:i+len("console.log")] == "console.log" {
			return true
		}
	}

	return false
}

func TestApplicableDetectsVitestConfig(t *testing.T) {
	dir := t.TempDir()

	b := New(Vitest)
	if b.Applicable(dir) {
		t.Fatalf("expected no config to mean not applicable")
	}

	if err := os.WriteFile(filepath.Join(dir, "vitest.config.ts"), []byte("export default {}\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if !b.Applicable(dir) {
		t.Fatalf("expected vitest.config.ts to mean applicable")
	}
}

func TestTestCommandGrepsTitles(t *testing.T) {
	b := New(Hardhat)
	cmd := b.TestCommand("/proj", []string{"does the thing"}, nil)

	if cmd.Program != "pnpm" {
		t.Fatalf("expected pnpm, got %s", cmd.Program)
	}

	found := false

	for _, a := range cmd.Args {
		if a == "does the thing" {
			found = true
		}
	}

	if !found {
		t.Fatalf("expected test title in args, got %v", cmd.Args)
	}
}
