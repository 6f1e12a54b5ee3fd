package foundryback

import (
	"strings"
	"testing"

	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

const counterTestSample = `
pragma solidity ^0.8.13;

import "forge-std/Test.sol";
import "../src/Counter.sol";

contract CounterTest is Test {
    Counter public counter;

    function setUp() public {
        counter = new Counter();
    }

    function testIncrement() public {
        counter.increment();
        assertEq(counter.number(), 1);
    }

    function testPrankedCall() public {
        vm.prank(address(1));
        counter.increment();
        assertEq(counter.number(), 1);
    }
}
`

func TestParseFindsTestFunctionsAndCandidates(t *testing.T) {
	file := model.NewSourceFile("Counter.t.sol", []byte(counterTestSample))
	rules := ignore.CompileRules(model.Config{})

	b := New()

	result, err := b.Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var names []string
	for _, tst := range result.Tests {
		names = append(names, tst.ID)
	}

	if len(names) != 2 || names[0] != "testIncrement" || names[1] != "testPrankedCall" {
		t.Fatalf("unexpected tests: %v", names)
	}

	foundIncrementCall := false

	for _, c := range result.Candidates {
		if strings.Contains(c.Excerpt, "counter.increment()") && c.Kind == model.Statement {
			foundIncrementCall = true
		}

		if strings.HasPrefix(c.Excerpt, "assertEq") {
			t.Fatalf("expected assertEq to be excluded by default ignore list, got %+v", c)
		}
	}

	if !foundIncrementCall {
		t.Fatalf("expected counter.increment() statement candidate, got %+v", result.Candidates)
	}
}

func TestIgnoredCallArgumentsAreNotCandidates(t *testing.T) {
	file := model.NewSourceFile("Counter.t.sol", []byte(counterTestSample))
	rules := ignore.CompileRules(model.Config{})

	b := New()

	result, err := b.Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	for _, c := range result.Candidates {
		if c.Kind == model.MethodCall && strings.HasPrefix(c.Excerpt, "counter.number()") {
			t.Fatalf("counter.number() nested inside ignored assertEq(...) should not surface as a candidate, got %+v", c)
		}
	}
}

func TestPrankGuardedStatementIsNotACandidate(t *testing.T) {
	file := model.NewSourceFile("Counter.t.sol", []byte(counterTestSample))
	rules := ignore.CompileRules(model.Config{})

	b := New()

	result, err := b.Parse(file, rules)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	incrementStmtCandidates := 0

	for _, c := range result.Candidates {
		if c.Kind == model.Statement && strings.Contains(c.Excerpt, "counter.increment()") {
			incrementStmtCandidates++
		}
	}

	// testIncrement's unguarded increment() call is a candidate; the one
	// in testPrankedCall, immediately after vm.prank, is not.
	if incrementStmtCandidates != 1 {
		t.Fatalf("expected exactly one unguarded increment() statement candidate, got %d", incrementStmtCandidates)
	}
}

func TestTestCommandBuildsMatchTestRegex(t *testing.T) {
	b := New()
	cmd := b.TestCommand("/proj", []string{"testIncrement", "testPrankedCall"}, nil)

	if cmd.Program != "forge" {
		t.Fatalf("expected forge, got %s", cmd.Program)
	}

	joined := strings.Join(cmd.Args, " ")
	if !strings.Contains(joined, "testIncrement|testPrankedCall") {
		t.Fatalf("expected combined regex in args, got %v", cmd.Args)
	}
}
