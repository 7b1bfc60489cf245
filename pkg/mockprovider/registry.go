package mockprovider

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/pactum-oss/pactum/pkg/match"
	"github.com/pactum-oss/pactum/pkg/pact"
)

// registration tracks one expected interaction and how often it matched.
type registration struct {
	interaction *pact.Interaction
	hits        atomic.Int64
}

func (r *registration) fulfilled() bool {
	return r.hits.Load() > 0
}

// registry holds the current interaction set. Handlers read it concurrently;
// replacement is only legal between examples, while no request is in flight.
type registry struct {
	mu       sync.RWMutex
	inFlight atomic.Int64
	entries  []*registration
}

func (r *registry) enter() { r.inFlight.Add(1) }
func (r *registry) leave() { r.inFlight.Add(-1) }

// replace installs a new interaction set, refusing duplicates, provably
// ambiguous pairs and any attempt to swap the set under live traffic.
func (r *registry) replace(interactions []*pact.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := r.inFlight.Load(); n > 0 {
		return errors.Errorf("cannot change registration with %d request(s) in flight", n)
	}

	seen := make(map[uint64]struct{}, len(interactions))
	entries := make([]*registration, 0, len(interactions))
	for _, interaction := range interactions {
		if _, ok := seen[interaction.Key()]; ok {
			return errors.Errorf("duplicate registration for %s", interaction)
		}
		seen[interaction.Key()] = struct{}{}
		entries = append(entries, &registration{interaction: interaction})
	}

	if first, second, ok := findOverlap(interactions); ok {
		return &AmbiguousRegistrationError{First: first, Second: second}
	}

	r.entries = entries
	return nil
}

// findOverlap probes each interaction's rendered example request against the
// others. A probe that satisfies its own template and a second one proves
// the registration ambiguous.
func findOverlap(interactions []*pact.Interaction) (string, string, bool) {
	for i, a := range interactions {
		probe := exampleRequest(a)
		if probe == nil || len(pact.MatchRequest(a.Request, probe)) > 0 {
			continue
		}
		for j, b := range interactions {
			if j == i {
				continue
			}
			if len(pact.MatchRequest(b.Request, probe)) == 0 {
				return a.String(), b.String(), true
			}
		}
	}
	return "", "", false
}

func exampleRequest(i *pact.Interaction) *pact.ActualRequest {
	req, err := i.Request.ToHTTP(context.Background(), "http://mock.invalid")
	if err != nil {
		return nil
	}
	actual, err := pact.ActualRequestFromHTTP(req)
	if err != nil {
		return nil
	}
	return actual
}

// verdict is the outcome of matching one inbound request across the set.
type verdict struct {
	matches           []*registration
	nearest           *registration
	nearestMismatches []match.Mismatch
}

// evaluate runs the full engine for every registration and keeps the
// nearest miss for diagnostics: route matches beat route mismatches, fewer
// mismatches beat more, registration order breaks ties.
func (r *registry) evaluate(actual *pact.ActualRequest) verdict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var v verdict
	nearestOnRoute := false
	for _, reg := range r.entries {
		mismatches := pact.MatchRequest(reg.interaction.Request, actual)
		if len(mismatches) == 0 {
			v.matches = append(v.matches, reg)
			continue
		}
		onRoute := !touchesRoute(mismatches)
		better := v.nearest == nil ||
			(onRoute && !nearestOnRoute) ||
			(onRoute == nearestOnRoute && len(mismatches) < len(v.nearestMismatches))
		if better {
			v.nearest = reg
			v.nearestMismatches = mismatches
			nearestOnRoute = onRoute
		}
	}
	return v
}

// touchesRoute reports whether a mismatch sits on the method or path, the
// part of the template used for candidate selection.
func touchesRoute(mismatches []match.Mismatch) bool {
	for _, m := range mismatches {
		path := m.Path.String()
		if strings.HasPrefix(path, "$.method") || strings.HasPrefix(path, "$.path") {
			return true
		}
	}
	return false
}

func (r *registry) unfulfilled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, reg := range r.entries {
		if !reg.fulfilled() {
			missing = append(missing, reg.interaction.Description)
		}
	}
	return missing
}

func (r *registry) allFulfilled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.entries {
		if !reg.fulfilled() {
			return false
		}
	}
	return true
}

// hits sums the matched request count over every registration with the
// given description.
func (r *registry) hits(description string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	found := false
	for _, reg := range r.entries {
		if reg.interaction.Description == description {
			total += reg.hits.Load()
			found = true
		}
	}
	return total, found
}

func (r *registry) fulfilledInteractions() []*pact.Interaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*pact.Interaction
	for _, reg := range r.entries {
		if reg.fulfilled() {
			out = append(out, reg.interaction)
		}
	}
	return out
}
