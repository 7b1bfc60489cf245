// Package report renders mismatch lists and verification results into the
// diagnostic text shared by the mock provider and the verifier.
package report

import (
	"fmt"
	"strings"

	"github.com/pactum-oss/pactum/pkg/match"
)

// Outcome labels for Entry values.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeErrored = "errored"
)

// Entry is one interaction's outcome in a verification run.
type Entry struct {
	Description string
	State       string
	Outcome     string
	Mismatches  []match.Mismatch
	Err         string
	Rerun       string
}

// Mismatches renders one line per mismatch plus a summary count.
func Mismatches(description string, mismatches []match.Mismatch) string {
	var b strings.Builder
	for _, m := range mismatches {
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	b.WriteString(countLine(description, len(mismatches)))
	b.WriteByte('\n')
	return b.String()
}

// Results renders a verification run: one line per interaction with its
// outcome, failed entries expanded with their mismatches and diffs, and a
// closing totals line.
func Results(entries []Entry) string {
	var b strings.Builder
	passed, failed, errored := 0, 0, 0

	for _, e := range entries {
		switch e.Outcome {
		case OutcomeFailed:
			failed++
			fmt.Fprintf(&b, "FAIL %s\n", title(e))
			for _, m := range e.Mismatches {
				fmt.Fprintf(&b, "  %s\n", m)
				if diff, ok := Diff(m.Expected, m.Actual); ok {
					b.WriteString(indent(diff))
				}
			}
			fmt.Fprintf(&b, "  %s\n", countLine(e.Description, len(e.Mismatches)))
			writeRerun(&b, e)
		case OutcomeErrored:
			errored++
			fmt.Fprintf(&b, "ERROR %s\n", title(e))
			if e.Err != "" {
				fmt.Fprintf(&b, "  %s\n", e.Err)
			}
			writeRerun(&b, e)
		default:
			passed++
			fmt.Fprintf(&b, "PASS %s\n", title(e))
		}
	}

	noun := "interactions"
	if len(entries) == 1 {
		noun = "interaction"
	}
	fmt.Fprintf(&b, "%d %s: %d passed, %d failed, %d errored\n", len(entries), noun, passed, failed, errored)
	return b.String()
}

func writeRerun(b *strings.Builder, e Entry) {
	if e.Rerun != "" {
		fmt.Fprintf(b, "  rerun: %s\n", e.Rerun)
	}
}

func title(e Entry) string {
	if e.State == "" {
		return e.Description
	}
	return fmt.Sprintf("%s (given %s)", e.Description, e.State)
}

func countLine(description string, n int) string {
	if n == 1 {
		return fmt.Sprintf("1 mismatch for %q", description)
	}
	return fmt.Sprintf("%d mismatches for %q", n, description)
}

func indent(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
