package ignore

import (
	"testing"

	"github.com/necessist/necessist/internal/model"
)

func TestMatcherLiteral(t *testing.T) {
	m := Compile([]string{"unwrap", "expect"})

	if !m.Match("unwrap") {
		t.Fatalf("expected unwrap to match")
	}

	if m.Match("unwrapped") {
		t.Fatalf("did not expect unwrapped to match a literal pattern")
	}
}

func TestMatcherWildcard(t *testing.T) {
	m := Compile([]string{"as_*", "vm.expect*"})

	for _, path := range []string{"as_bytes", "as_str", "vm.expectRevert", "vm.expectEmit"} {
		if !m.Match(path) {
			t.Fatalf("expected %q to match", path)
		}
	}

	if m.Match("as") {
		t.Fatalf("did not expect bare 'as' to match 'as_*'")
	}
}

func TestMatcherEmptyStarMatchesEmptySuffix(t *testing.T) {
	m := Compile([]string{"console.*"})
	if !m.Match("console.") {
		t.Fatalf("expected '*' to match the empty suffix")
	}
}

func TestRulesDisambiguationEither(t *testing.T) {
	r := CompileRules(model.Config{
		IgnoredFunctions: []string{"assert*"},
		IgnoredMethods:   []string{"unwrap"},
	})

	if !r.IgnoresCall("assert.equal", PathAmbiguous) {
		t.Fatalf("expected function-list match under Either")
	}

	if !r.IgnoresCall("unwrap", PathAmbiguous) {
		t.Fatalf("expected method-list match under Either")
	}
}

func TestRulesDisambiguationMethodOnly(t *testing.T) {
	r := CompileRules(model.Config{
		IgnoredFunctions:          []string{"assert*"},
		IgnoredMethods:            []string{"unwrap"},
		IgnoredPathDisambiguation: model.DisambiguateMethod,
	})

	if r.IgnoresCall("assert.equal", PathAmbiguous) {
		t.Fatalf("did not expect function-list match when disambiguation is Method")
	}

	if !r.IgnoresCall("unwrap", PathAmbiguous) {
		t.Fatalf("expected method-list match")
	}
}

func TestRulesWithDefaults(t *testing.T) {
	r := CompileRules(model.Config{IgnoredMethods: []string{"customHelper"}})
	r = r.WithDefaults(nil, []string{"unwrap", "expect"}, nil)

	if !r.IgnoresCall("unwrap", PathMethod) {
		t.Fatalf("expected backend default to be ignored")
	}

	if !r.IgnoresCall("customHelper", PathMethod) {
		t.Fatalf("expected user-configured method to still be ignored")
	}
}

func TestRulesIgnoredTests(t *testing.T) {
	r := CompileRules(model.Config{IgnoredTests: []string{"TestProgWideChdir"}})

	if !r.IgnoresTest("TestProgWideChdir") {
		t.Fatalf("expected ignored test to be reported as ignored")
	}

	if r.IgnoresTest("TestOther") {
		t.Fatalf("did not expect unrelated test to be ignored")
	}
}
