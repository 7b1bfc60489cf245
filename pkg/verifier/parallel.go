package verifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/pactum-oss/pactum/pkg/pact"
)

// runParallel executes provider-state-disjoint groups concurrently on a
// bounded pool. Interactions sharing a state name stay sequential relative
// to each other; stateless interactions form singleton groups. The report
// keeps document order regardless of completion order.
func (v *Verifier) runParallel(ctx context.Context, interactions []*pact.Interaction) Report {
	type item struct {
		index       int
		interaction *pact.Interaction
	}

	groups := make(map[string][]item)
	var order []string
	for i, interaction := range interactions {
		key := stateName(interaction)
		if key == "" {
			key = fmt.Sprintf("stateless %d", i)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item{index: i, interaction: interaction})
	}

	results := make([]Result, len(interactions))
	sem := make(chan struct{}, v.config.MaxWorkers)
	wg := sync.WaitGroup{}

	for _, key := range order {
		group := groups[key]
		wg.Add(1)
		go func(group []item) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			for _, it := range group {
				results[it.index] = v.verifyOne(ctx, it.interaction)
			}
		}(group)
	}
	wg.Wait()

	return Report{Results: results}
}
