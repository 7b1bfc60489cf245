package report

import (
	"encoding/json"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/pactum-oss/pactum/pkg/match"
)

// Diff renders a unified diff of the pretty-printed expected and actual
// values. Only pairs where both sides are composite produce a diff; scalar
// divergences are already fully described by their mismatch line.
func Diff(expected, actual match.Node) (string, bool) {
	if expected == nil || actual == nil {
		return "", false
	}
	if !composite(expected) || !composite(actual) {
		return "", false
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(pretty(expected)),
		B:        difflib.SplitLines(pretty(actual)),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil || text == "" {
		return "", false
	}
	return text, true
}

func composite(n match.Node) bool {
	switch match.Render(n).(type) {
	case match.Sequence, match.Mapping:
		return true
	}
	return false
}

func pretty(n match.Node) string {
	data, err := json.MarshalIndent(match.ToJSON(n), "", "  ")
	if err != nil {
		return match.Stringify(n)
	}
	return string(data)
}
