// Package ui implements console-facing reporting: aggregate trial
// statistics plus individual Passed records by default, every record in
// verbose mode, and a tablewriter dump of the outcome store for --dump. It prints through
// a cobra Command's writer rather than directly to os.Stdout so tests
// can capture output.
package ui

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/necessist/necessist/internal/model"
	"github.com/necessist/necessist/internal/scheduler"
	"github.com/necessist/necessist/internal/warning"
)

// SimpleUI reports scheduler.Reporter events and end-of-run summaries to
// an io.Writer (a cobra Command's OutOrStdout in normal use).
type SimpleUI struct {
	out     io.Writer
	verbose bool
	quiet   bool
}

// New constructs a SimpleUI. verbose prints every trial record; quiet
// suppresses trial records and warnings, leaving the final summary and
// the --dump/--dump-candidates/--dump-candidate-counts output.
func New(out io.Writer, verbose, quiet bool) *SimpleUI {
	return &SimpleUI{out: out, verbose: verbose, quiet: quiet}
}

// Trial implements scheduler.Reporter: on default verbosity only a
// Passed record — the interesting case, per spec §4.6 — is printed
// individually; --verbose prints every outcome; --quiet prints none.
func (u *SimpleUI) Trial(rec model.RemovalRecord) {
	if u.quiet {
		return
	}

	if !u.verbose && rec.Outcome != model.Passed {
		return
	}

	u.printf("%-11s %s\n             %s\n", rec.Outcome, rec.SpanKey, rec.Excerpt)
}

var _ scheduler.Reporter = (*SimpleUI)(nil)

// Summary prints the aggregate outcome counts at the end of a run.
func (u *SimpleUI) Summary(s scheduler.Summary) {
	if s.Total == 0 {
		u.printf("no candidates were tried\n")
		return
	}

	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Outcome", "Count"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	for _, outcome := range []model.Outcome{model.Passed, model.Failed, model.TimedOut, model.Nonbuildable, model.Irrelevant} {
		if n := s.Counts[outcome]; n > 0 {
			table.Append([]string{string(outcome), fmt.Sprintf("%d", n)})
		}
	}

	table.SetFooter([]string{"Total", fmt.Sprintf("%d", s.Total)})
	table.Render()

	u.printf("\n%s", tableBuffer.String())
}

// Warnings prints the collected non-fatal warnings from a run.
func (u *SimpleUI) Warnings(warnings []warning.Warning) {
	if u.quiet || len(warnings) == 0 {
		return
	}

	for _, w := range warnings {
		u.printf("warning: %s\n", w.Error())
	}
}

// Dump renders every stored removal record as a table, for --dump.
func (u *SimpleUI) Dump(records []model.RemovalRecord) {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Span", "Outcome", "URL"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})

	for _, rec := range records {
		table.Append([]string{rec.SpanKey, string(rec.Outcome), rec.URL})
	}

	table.SetFooter([]string{fmt.Sprintf("%d records", len(records)), "", ""})
	table.Render()

	u.printf("%s", tableBuffer.String())
}

// DumpCandidates renders the discovered candidate list, for
// --dump-candidates.
func (u *SimpleUI) DumpCandidates(candidates []model.Candidate) {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Span", "Kind", "Excerpt"})
	table.SetBorder(false)
	table.SetCenterSeparator("")

	for _, c := range candidates {
		table.Append([]string{c.Span.Key(), c.Kind.String(), c.Excerpt})
	}

	table.SetFooter([]string{fmt.Sprintf("%d candidates", len(candidates)), "", ""})
	table.Render()

	u.printf("%s", tableBuffer.String())
}

// DumpCandidateCounts renders per-file candidate counts for
// --dump-candidate-counts as a sorted table with a footer total.
func (u *SimpleUI) DumpCandidateCounts(candidates []model.Candidate) {
	counts := make(map[string]int)

	var paths []string

	for _, c := range candidates {
		path := string(c.Span.File.Path)
		if counts[path] == 0 {
			paths = append(paths, path)
		}

		counts[path]++
	}

	sort.Strings(paths)

	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Candidates"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER})

	for _, path := range paths {
		table.Append([]string{path, fmt.Sprintf("%d", counts[path])})
	}

	table.SetFooter([]string{fmt.Sprintf("Total files %d", len(paths)), fmt.Sprintf("%d", len(candidates))})
	table.Render()

	u.printf("\n%s", tableBuffer.String())
}

func (u *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(u.out, format, args...)
}
