package model

import (
	"fmt"
	"strings"
)

// Span is a half-open byte range [Start, End) within a single SourceFile,
// with a cached (start_line, start_col, end_line, end_col). Spans are
// context-free: removing one means replacing its bytes with whitespace of
// equal length (see internal/mutation). Two spans compare equal iff they
// denote the identical file and range.
type Span struct {
	File      *SourceFile
	Start     int
	End       int
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// NewSpan builds a Span over file, resolving and caching its line/column
// bounds. It panics if the invariant 0 <= start <= end <= len(file) does
// not hold, since a violation there is an internal bug in a backend, not a
// recoverable condition.
func NewSpan(file *SourceFile, start, end int) Span {
	if start < 0 || start > end || end > file.Len() {
		panic(fmt.Sprintf("invalid span [%d,%d) in %s (len %d)", start, end, file.Path, file.Len()))
	}

	sl, sc := file.Position(start)
	el, ec := file.Position(end)

	return Span{File: file, Start: start, End: end, StartLine: sl, StartCol: sc, EndLine: el, EndCol: ec}
}

// Equal reports whether two spans denote the identical file and range.
func (s Span) Equal(o Span) bool {
	return s.File == o.File && s.Start == o.Start && s.End == o.End
}

// Text returns the trimmed textual content of the span.
func (s Span) Text() string {
	return strings.TrimSpace(string(s.File.Slice(s.Start, s.End)))
}

// Key returns the stable primary-key string used by the outcome store:
// path:start_line:start_col-end_line:end_col.
func (s Span) Key() string {
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File.Path, s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Kind classifies what syntactic form a Candidate's span takes.
type Kind int

const (
	// Statement is a full statement span.
	Statement Kind = iota
	// MethodCall is a method-call sub-expression span.
	MethodCall
)

func (k Kind) String() string {
	switch k {
	case Statement:
		return "statement"
	case MethodCall:
		return "method-call"
	default:
		return "unknown"
	}
}

// Candidate is a span the backend deems legally removable, together with
// the trimmed textual excerpt of that span (cached at discovery time since
// the underlying file may later be mutated in place).
type Candidate struct {
	Span    Span
	Kind    Kind
	Excerpt string
}

// Test identifies one discovered test: its backend-specific opaque id
// (used to filter the runner's command line), the file it lives in, and
// the span of its name/declaration.
type Test struct {
	ID       string
	File     *SourceFile
	NameSpan Span
}
