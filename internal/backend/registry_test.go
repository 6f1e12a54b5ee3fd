package backend

import (
	"testing"

	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
)

type fakeBackend struct {
	name       model.Framework
	applicable bool
}

func (f fakeBackend) Name() model.Framework      { return f.name }
func (f fakeBackend) Applicable(string) bool     { return f.applicable }
func (f fakeBackend) TestFilePatterns() []string { return nil }

func (fakeBackend) Parse(*model.SourceFile, ignore.Rules) (ParseResult, error) {
	return ParseResult{}, nil
}

func (fakeBackend) TestCommand(string, []string, []string) Command  { return Command{} }
func (fakeBackend) BuildCommand(string, []string) (Command, bool)   { return Command{}, false }
func (fakeBackend) PathDisambiguation() PathDisambiguation          { return Either }
func (fakeBackend) SentinelStatement(string) string                 { return "" }

func newFixtureRegistry() *Registry {
	return NewRegistry(
		fakeBackend{name: model.FrameworkGo, applicable: true},
		fakeBackend{name: model.FrameworkRust, applicable: false},
		fakeBackend{name: model.FrameworkFoundry, applicable: true},
	)
}

func TestDetectResolvesTiesByDetectOrder(t *testing.T) {
	r := newFixtureRegistry()

	be, ok := r.Detect("/proj")
	if !ok {
		t.Fatalf("expected a match")
	}

	// Go and Foundry both claim the root; Go precedes Foundry in DetectOrder.
	if be.Name() != model.FrameworkGo {
		t.Fatalf("expected go to win the tie, got %s", be.Name())
	}
}

func TestDetectNoMatch(t *testing.T) {
	r := NewRegistry(fakeBackend{name: model.FrameworkRust, applicable: false})

	if _, ok := r.Detect("/proj"); ok {
		t.Fatalf("expected no match")
	}
}

func TestDetectConcurrentResolvesTiesByDetectOrder(t *testing.T) {
	r := newFixtureRegistry()

	be, ok := r.DetectConcurrent("/proj")
	if !ok {
		t.Fatalf("expected a match")
	}

	if be.Name() != model.FrameworkGo {
		t.Fatalf("expected go to win the tie, got %s", be.Name())
	}
}

func TestDetectConcurrentNoMatch(t *testing.T) {
	r := NewRegistry(fakeBackend{name: model.FrameworkVitest, applicable: false})

	if _, ok := r.DetectConcurrent("/proj"); ok {
		t.Fatalf("expected no match")
	}
}
