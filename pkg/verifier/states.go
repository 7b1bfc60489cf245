package verifier

// StateHandler seeds and tears down one named provider state. Params carry
// the state parameters recorded in the pact. Either hook may be nil.
type StateHandler struct {
	Setup    func(params map[string]interface{}) error
	Teardown func(params map[string]interface{}) error
}

// StateHandlers maps provider-state names to their handlers. The verifier
// only orchestrates the calls; the seeding logic belongs to the provider's
// test harness. An interaction declaring a state with no handler here is an
// errored outcome, not a mismatch.
type StateHandlers map[string]StateHandler
