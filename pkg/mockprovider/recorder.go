package mockprovider

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pactum-oss/pactum/pkg/match"
	"github.com/pactum-oss/pactum/pkg/pact"
)

// Exchange outcomes.
const (
	ExchangeMatched   = "matched"
	ExchangeUnmatched = "unmatched"
	ExchangeAmbiguous = "ambiguous"
)

// Exchange is one request the mock served, successfully or not.
type Exchange struct {
	ID          string
	Description string // matched interaction, empty otherwise
	Outcome     string
	StatusSent  int
	Request     *pact.ActualRequest
	Mismatches  []match.Mismatch // nearest candidate's mismatches for unmatched exchanges
	At          time.Time
}

// recorder is the append-only exchange log. Requests complete out of order,
// so appends happen under the mutex.
type recorder struct {
	mu        sync.Mutex
	exchanges []Exchange
}

func (r *recorder) add(e Exchange) Exchange {
	e.ID = uuid.NewString()
	e.At = time.Now().UTC()
	r.mu.Lock()
	r.exchanges = append(r.exchanges, e)
	r.mu.Unlock()
	return e
}

func (r *recorder) snapshot() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Exchange, len(r.exchanges))
	copy(out, r.exchanges)
	return out
}

func (r *recorder) clear() {
	r.mu.Lock()
	r.exchanges = nil
	r.mu.Unlock()
}
