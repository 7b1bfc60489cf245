package mockprovider

import "time"

const (
	defaultDelay    = 500 * time.Millisecond
	defaultDuration = 15 * time.Second
)

// Config holds the mock provider settings. internal/app/configuration loads
// it from the environment.
type Config struct {
	ServerAddress string        `env:"SERVER_ADDRESS"` // host:port to bind, empty picks a free localhost port
	Consumer      string        `env:"CONSUMER"`       // consumer name written into saved pacts
	Provider      string        `env:"PROVIDER"`       // provider name written into saved pacts
	PactDir       string        `env:"PACT_DIR"`       // directory WritePact saves into
	WaitDelay     time.Duration `env:"WAIT_DELAY"`     // poll interval for the wait helpers
	WaitDuration  time.Duration `env:"WAIT_DURATION"`  // default timeout for the wait helpers
}
