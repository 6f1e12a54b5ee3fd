package rustback

import (
	"strings"
	"testing"

	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

const loginExampleSample = `
#[test]
fn login() {
    let s = Session::new();
    s.send_username("u").unwrap();
    s.send_password("p").unwrap();
    assert!(s.read().unwrap().contains("W"));
}
`

// TestLoginExampleScenario covers spec §8's "Rust — login example" worked
// example: send_password is a candidate, unwrap calls never are, and the
// assert! macro produces no candidate of its own.
func TestLoginExampleScenario(t *testing.T) {
	file := model.NewSourceFile("lib.rs", []byte(loginExampleSample))
	rules := ignore.CompileRules(model.Config{})

	result, err := New().Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(result.Tests) != 1 || result.Tests[0].ID != "login" {
		t.Fatalf("unexpected tests: %+v", result.Tests)
	}

	foundSendPassword := false

	for _, c := range result.Candidates {
		if c.Kind == model.MethodCall && strings.HasSuffix(c.Excerpt, "unwrap()") {
			t.Fatalf("expected unwrap calls to be excluded by default, got %+v", c)
		}

		if strings.HasPrefix(c.Excerpt, "assert!") {
			t.Fatalf("expected assert! to be excluded by default, got %+v", c)
		}

		if c.Kind == model.MethodCall && strings.Contains(c.Excerpt, "send_password") {
			foundSendPassword = true
		}
	}

	if !foundSendPassword {
		t.Fatalf("expected send_password to be a MethodCall candidate, got %+v", result.Candidates)
	}
}

const ignoredCallArgumentSample = `
#[test]
fn login() {
    let s = Session::new();
    s.send_username("u").expect(build_message());
}
`

// TestIgnoredCallArgumentsAreNotCandidates covers comment 2: expect is on
// the default ignored-methods list, so build_message(), nested inside its
// argument list, must not surface as its own MethodCall candidate either.
func TestIgnoredCallArgumentsAreNotCandidates(t *testing.T) {
	file := model.NewSourceFile("lib.rs", []byte(ignoredCallArgumentSample))
	rules := ignore.CompileRules(model.Config{})

	result, err := New().Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	for _, c := range result.Candidates {
		if c.Kind == model.MethodCall && strings.HasPrefix(c.Excerpt, "build_message") {
			t.Fatalf("build_message() nested inside ignored expect(...) should not surface as a candidate, got %+v", c)
		}
	}
}

const nestedTestModSample = `
fn helper() {}

#[cfg(test)]
mod tests {
    #[test]
    fn foo() {
        helper();
    }
}
`

// TestQualifiesTestIDsWithEnclosingModulePath covers comment 6: a #[test]
// function declared inside a #[cfg(test)] mod block must report an ID
// qualified with that module's name, since `cargo test --exact` matches
// against the fully qualified path cargo itself reports.
func TestQualifiesTestIDsWithEnclosingModulePath(t *testing.T) {
	file := model.NewSourceFile("lib.rs", []byte(nestedTestModSample))
	rules := ignore.CompileRules(model.Config{})

	result, err := New().Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(result.Tests) != 1 || result.Tests[0].ID != "tests::foo" {
		t.Fatalf("expected test ID %q, got %+v", "tests::foo", result.Tests)
	}
}

func TestTestCommandUsesExactQualifiedIDs(t *testing.T) {
	b := New()

	cmd := b.TestCommand("/proj", []string{"tests::foo"}, nil)

	if cmd.Program != "cargo" {
		t.Fatalf("expected cargo, got %s", cmd.Program)
	}

	joined := strings.Join(cmd.Args, " ")
	if !strings.Contains(joined, "--exact tests::foo") {
		t.Fatalf("expected --exact tests::foo in args, got %v", cmd.Args)
	}
}
