package verifier

import (
	"fmt"

	"github.com/pactum-oss/pactum/pkg/match"
	"github.com/pactum-oss/pactum/pkg/pact"
	"github.com/pactum-oss/pactum/pkg/report"
)

// Outcome of one replayed interaction. Errored covers everything that
// prevented a verdict: transport failures, state hook failures, missing
// handlers. Failed means the provider answered and the answer diverged.
type Outcome int

const (
	Passed Outcome = iota
	Failed
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Result is the outcome of replaying one interaction.
type Result struct {
	Interaction *pact.Interaction
	Outcome     Outcome
	Mismatches  []match.Mismatch
	Err         error
	Phases      []Phase
}

// Rerun is the filter expression that replays just this interaction.
func (r Result) Rerun() string {
	expr := fmt.Sprintf("description=%q", r.Interaction.Description)
	if r.Interaction.ProviderState != nil {
		expr += fmt.Sprintf(" providerState=%q", r.Interaction.ProviderState.Name)
	}
	return expr
}

// Report aggregates a verification run in document order.
type Report struct {
	Results []Result
}

func (r Report) Success() bool {
	for _, result := range r.Results {
		if result.Outcome != Passed {
			return false
		}
	}
	return true
}

// Counts tallies the outcomes.
func (r Report) Counts() (passed, failed, errored int) {
	for _, result := range r.Results {
		switch result.Outcome {
		case Passed:
			passed++
		case Failed:
			failed++
		case Errored:
			errored++
		}
	}
	return passed, failed, errored
}

// String renders the run as diagnostic text.
func (r Report) String() string {
	entries := make([]report.Entry, len(r.Results))
	for i, result := range r.Results {
		entry := report.Entry{
			Description: result.Interaction.Description,
			Mismatches:  result.Mismatches,
			Rerun:       result.Rerun(),
		}
		if result.Interaction.ProviderState != nil {
			entry.State = result.Interaction.ProviderState.Name
		}
		switch result.Outcome {
		case Passed:
			entry.Outcome = report.OutcomePassed
		case Failed:
			entry.Outcome = report.OutcomeFailed
		case Errored:
			entry.Outcome = report.OutcomeErrored
			if result.Err != nil {
				entry.Err = result.Err.Error()
			}
		}
		entries[i] = entry
	}
	return report.Results(entries)
}
