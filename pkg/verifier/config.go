package verifier

import "time"

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxWorkers     = 4
)

// Config holds the verifier settings. internal/app/configuration loads it
// from the environment.
type Config struct {
	ProviderBaseURL   string        `env:"PROVIDER_BASE_URL"`   // base URL of the provider under verification
	PactFile          string        `env:"PACT_FILE"`           // pact document to replay
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"`     // per-request timeout, a hang becomes an errored outcome
	Parallel          bool          `env:"PARALLEL"`            // opt-in concurrency across state-disjoint groups
	MaxWorkers        int           `env:"MAX_WORKERS"`         // bound on concurrent groups when Parallel is set
	FilterDescription string        `env:"PACT_DESCRIPTION"`    // replay only interactions with this description
	FilterState       string        `env:"PACT_PROVIDER_STATE"` // replay only interactions with this provider state
}
