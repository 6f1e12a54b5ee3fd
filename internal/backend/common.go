package backend

import "github.com/necessist/necessist/internal/model"

// LastStatementFilter drops any Statement candidate that ends where the
// last statement of its enclosing test body ends — its weakest
// precondition is True, so removing it is meaningless (spec §4.2,
// invariant tested in §8 "Last-statement rule"). lastStmtEnd holds, as
// keys, the end offset of each test body's final top-level statement; the
// Go, Rust and TypeScript backends populate it as they walk each test
// body, while the Foundry backend excludes the last statement itself and
// does not call this filter.
func LastStatementFilter(candidates []model.Candidate, lastStmtEnd map[int]bool) []model.Candidate {
	out := make([]model.Candidate, 0, len(candidates))

	for _, c := range candidates {
		if lastStmtEnd[c.Span.End] && c.Kind == model.Statement {
			continue
		}

		out = append(out, c)
	}

	return out
}

// SoleMethodCallFilter drops a Statement candidate whose entire text is
// exactly the same span as a MethodCall candidate already discovered —
// "a statement that is a single method-call expression" is redundant
// with the method-call candidate that already covers its content (§4.2).
func SoleMethodCallFilter(candidates []model.Candidate) []model.Candidate {
	methodSpans := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if c.Kind == model.MethodCall {
			methodSpans[c.Span.Key()] = struct{}{}
		}
	}

	out := make([]model.Candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.Kind == model.Statement {
			if _, dup := methodSpans[c.Span.Key()]; dup {
				continue
			}
		}

		out = append(out, c)
	}

	return out
}
