package goback

import (
	"strings"
	"testing"

	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

const deferFilterSample = `
package pkg

import "testing"

func TestX(t *testing.T) {
	f, _ := os.Open("x")
	defer f.Close()
	t.Log("hi")
	got := read(f)
	if got != "y" {
		t.Fail()
	}
}
`

// TestDeferFilterScenario covers spec §8's "Go — defer filter" worked
// example: the read(f) call is a candidate; defer, t.Log, t.Fail, and the
// if statement are not.
func TestDeferFilterScenario(t *testing.T) {
	file := model.NewSourceFile("x_test.go", []byte(deferFilterSample))
	rules := ignore.CompileRules(model.Config{})

	result, err := New().Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(result.Tests) != 1 || result.Tests[0].ID != "TestX" {
		t.Fatalf("unexpected tests: %+v", result.Tests)
	}

	foundReadCall := false

	for _, c := range result.Candidates {
		if c.Kind == model.MethodCall && strings.HasPrefix(c.Excerpt, "read(") {
			foundReadCall = true
		}

		if strings.Contains(c.Excerpt, "f.Close()") {
			t.Fatalf("expected defer f.Close() to be excluded, got %+v", c)
		}

		if strings.HasPrefix(c.Excerpt, "t.Log") {
			t.Fatalf("expected t.Log to be excluded by default ignore list, got %+v", c)
		}

		if strings.HasPrefix(c.Excerpt, "t.Fail") {
			t.Fatalf("expected t.Fail to be excluded by default ignore list, got %+v", c)
		}

		if c.Kind == model.Statement && strings.HasPrefix(c.Excerpt, "if ") {
			t.Fatalf("expected the if statement to be excluded, got %+v", c)
		}
	}

	if !foundReadCall {
		t.Fatalf("expected read(f) to be a candidate, got %+v", result.Candidates)
	}
}

// TestAssertAndRequireCallsAreIgnoredByDefault covers comment 1: testify's
// assert.*/require.* helpers must be excluded the same way as testing.T's
// own helper methods, without the caller configuring anything.
func TestAssertAndRequireCallsAreIgnoredByDefault(t *testing.T) {
	const sample = `
package pkg

import "testing"

func TestY(t *testing.T) {
	got := compute()
	assert.Equal(t, "want", got)
	require.NoError(t, err)
}
`

	file := model.NewSourceFile("y_test.go", []byte(sample))
	rules := ignore.CompileRules(model.Config{})

	result, err := New().Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	for _, c := range result.Candidates {
		if strings.HasPrefix(c.Excerpt, "assert.") || strings.HasPrefix(c.Excerpt, "require.") {
			t.Fatalf("expected assert.*/require.* to be excluded by default, got %+v", c)
		}
	}
}

// TestWalkableFunctionsWalksHelperBody covers walkable_functions: a helper
// called directly from a test has its own body's candidates enumerated
// too, one hop deep.
func TestWalkableFunctionsWalksHelperBody(t *testing.T) {
	const sample = `
package pkg

import "testing"

func TestZ(t *testing.T) {
	setupHelper()
	t.Log("done")
}

func setupHelper() {
	prepare()
	seed()
}
`

	file := model.NewSourceFile("z_test.go", []byte(sample))
	rules := ignore.CompileRules(model.Config{WalkableFunctions: []string{"setupHelper"}})

	result, err := New().Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var foundPrepare, foundSeed bool

	for _, c := range result.Candidates {
		if strings.HasPrefix(c.Excerpt, "prepare(") {
			foundPrepare = true
		}

		if strings.HasPrefix(c.Excerpt, "seed(") {
			foundSeed = true
		}
	}

	if !foundPrepare || !foundSeed {
		t.Fatalf("expected setupHelper's body to be walked, got %+v", result.Candidates)
	}
}
