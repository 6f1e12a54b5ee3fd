// Package warning implements the structured, allow/deny-filterable warning
// taxonomy from spec §7: parse failures, dry-run irrelevance, and other
// non-fatal issues are named warnings rather than ad-hoc log lines, so a
// user can promote any of them (or "all") to a hard error with --deny.
package warning

import "fmt"

// Name is a stable warning identifier, e.g. "parse-error" or
// "dirty-source-url". Names are never localized or reworded across
// releases so scripts can grep for them.
type Name string

const (
	ParseError       Name = "parse-error"
	DirtySourceURL   Name = "dirty-source-url"
	DryRunIrrelevant Name = "dry-run-irrelevant"
	NoGitRemote      Name = "no-git-remote"
	StaleTestMap     Name = "stale-test-map"
	BuildFailed      Name = "build-failed"
)

// All lists every warning name the taxonomy knows about, used to expand
// "--deny all" ("--allow all" is rejected by the CLI).
var All = []Name{ParseError, DirtySourceURL, DryRunIrrelevant, NoGitRemote, StaleTestMap, BuildFailed}

// Warning is one non-fatal issue surfaced during a run.
type Warning struct {
	Name    Name
	Message string
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %s", w.Name, w.Message)
}

// New constructs a Warning.
func New(name Name, format string, args ...interface{}) Warning {
	return Warning{Name: name, Message: fmt.Sprintf(format, args...)}
}

// Policy decides, per warning name, whether it is allowed (default,
// collected and printed at end of run) or denied (promoted to a hard
// error that aborts the run). It mirrors the CLI's repeated
// --allow/--deny flags (§6): denials ("all" or a name) are applied first
// and allowances after, so --allow wins over --deny for the same name
// regardless of the order the flags were given.
type Policy struct {
	denied map[Name]bool
}

// NewPolicy builds a Policy from the CLI's --allow/--deny directives.
// Each directive is either a warning Name or the literal "all".
func NewPolicy(denyAll bool, deny, allow []Name) Policy {
	p := Policy{denied: make(map[Name]bool, len(All))}

	if denyAll {
		for _, n := range All {
			p.denied[n] = true
		}
	}

	for _, n := range deny {
		p.denied[n] = true
	}

	for _, n := range allow {
		p.denied[n] = false
	}

	return p
}

// Denied reports whether name is currently promoted to a hard error.
func (p Policy) Denied(name Name) bool {
	return p.denied[name]
}

// Check applies the policy to w: it returns w unchanged (as a plain
// warning to collect) if allowed, or wraps it in a fatal Error if denied.
func (p Policy) Check(w Warning) (Warning, error) {
	if p.Denied(w.Name) {
		return w, fmt.Errorf("denied warning promoted to error: %w", w)
	}

	return w, nil
}

// Collector accumulates warnings observed during a run for the final
// summary (spec §7: "on default verbosity, only Passed trials and
// end-of-run summaries print").
type Collector struct {
	policy   Policy
	warnings []Warning
}

// NewCollector builds a Collector bound to policy.
func NewCollector(policy Policy) *Collector {
	return &Collector{policy: policy}
}

// Report records w, or returns a fatal error if policy denies w.Name.
func (c *Collector) Report(w Warning) error {
	_, err := c.policy.Check(w)
	if err != nil {
		return err
	}

	c.warnings = append(c.warnings, w)

	return nil
}

// All returns every warning collected so far, in report order.
func (c *Collector) All() []Warning {
	return c.warnings
}
