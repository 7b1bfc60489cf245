package verifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactum-oss/pactum/pkg/mockprovider"
	"github.com/pactum-oss/pactum/pkg/pact"
)

type VerifyStage struct {
	t            *testing.T
	assert       *assert.Assertions
	require      *require.Assertions
	mu           sync.Mutex
	routes       map[string]http.HandlerFunc
	served       []string
	server       *httptest.Server
	pactPath     string
	interactions []*pact.Interaction
	handlers     StateHandlers
	stateCalls   []string
	stateParams  map[string]interface{}
	config       Config
	report       Report
	verifyErr    error
}

func NewVerifyStage(t *testing.T) (*VerifyStage, *VerifyStage, *VerifyStage, func()) {
	s := &VerifyStage{
		t:        t,
		assert:   assert.New(t),
		require:  require.New(t),
		routes:   map[string]http.HandlerFunc{},
		handlers: StateHandlers{},
		pactPath: filepath.Join(t.TempDir(), "order-service-thing-service.json"),
	}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		handler := s.routes[r.URL.Path]
		s.served = append(s.served, r.URL.Path)
		s.mu.Unlock()
		if handler == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handler(w, r)
	}))

	s.config = Config{
		PactFile:        s.pactPath,
		ProviderBaseURL: s.server.URL,
		RequestTimeout:  2 * time.Second,
	}

	teardown := func() {
		s.server.Close()
	}
	return s, s, s, teardown
}

func (s *VerifyStage) and() *VerifyStage {
	return s
}

func (s *VerifyStage) recordStateCall(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateCalls = append(s.stateCalls, call)
}

func (s *VerifyStage) an_interaction_for_something() *VerifyStage {
	interaction, err := pact.NewInteraction("a request for something").
		Given("something exists", nil).
		WithRequest("GET", "/something").
		WillRespondWith(200).
		JSONBody(map[string]interface{}{"name": "A small something"}).
		Build()
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *VerifyStage) an_interaction_listing_things() *VerifyStage {
	interaction, err := pact.NewInteraction("list things").
		WithRequest("GET", "/things").
		WillRespondWith(200).
		JSONBody(map[string]interface{}{"things": []interface{}{1, 2, 3}}).
		Build()
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *VerifyStage) an_interaction_removing_a_thing() *VerifyStage {
	interaction, err := pact.NewInteraction("remove a thing").
		Given("a thing exists", map[string]interface{}{"id": 42}).
		WithRequest("DELETE", "/things/42").
		WillRespondWith(204).
		Build()
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *VerifyStage) an_interaction_with_an_unhandled_state() *VerifyStage {
	interaction, err := pact.NewInteraction("a request needing seeding").
		Given("never seeded", nil).
		WithRequest("GET", "/unseeded").
		WillRespondWith(200).
		TextBody("ok").
		Build()
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *VerifyStage) the_pact_is_saved() *VerifyStage {
	p := pact.NewPact("order-service", "thing-service")
	for _, interaction := range s.interactions {
		p.Upsert(interaction)
	}
	s.require.NoError(pact.Save(p, s.pactPath))
	return s
}

func (s *VerifyStage) a_corrupt_pact_file() *VerifyStage {
	s.require.NoError(os.WriteFile(s.pactPath, []byte("not a pact"), 0o600))
	return s
}

// a_consumer_run_records_the_pact drives the staged interactions through a
// mock provider and writes the resulting pact to the file the verifier
// will load.
func (s *VerifyStage) a_consumer_run_records_the_pact() *VerifyStage {
	mock := mockprovider.New(mockprovider.Config{Consumer: "order-service", Provider: "thing-service"})
	s.require.NoError(mock.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.assert.NoError(mock.Stop(ctx))
	}()

	s.require.NoError(mock.WaitUntilReady(context.Background()))
	s.require.NoError(mock.Register(s.interactions...))

	client := &http.Client{Timeout: 2 * time.Second}
	for _, interaction := range s.interactions {
		req, err := interaction.Request.ToHTTP(context.Background(), mock.URL())
		s.require.NoError(err)
		res, err := client.Do(req)
		s.require.NoError(err)
		_, _ = io.Copy(io.Discard, res.Body)
		s.require.NoError(res.Body.Close())
		s.require.Equal(interaction.Response.Status, res.StatusCode)
	}

	s.require.NoError(mock.AssertFulfilled())
	s.require.NoError(mock.WritePact(s.pactPath))
	return s
}

func (s *VerifyStage) the_provider_answers_(path string, status int, body string) *VerifyStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = func(w http.ResponseWriter, r *http.Request) {
		if body != "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.WriteHeader(status)
		if body != "" {
			_, _ = w.Write([]byte(body))
		}
	}
	return s
}

func (s *VerifyStage) a_provider_serving_a_richer_something() *VerifyStage {
	return s.the_provider_answers_("/something", 200, `{"id":7,"name":"A small something"}`)
}

func (s *VerifyStage) a_provider_serving_the_wrong_something() *VerifyStage {
	return s.the_provider_answers_("/something", 200, `{"name":"Something else"}`)
}

func (s *VerifyStage) a_provider_listing_fewer_things() *VerifyStage {
	return s.the_provider_answers_("/things", 200, `{"things":[1,2]}`)
}

func (s *VerifyStage) a_provider_accepting_the_delete() *VerifyStage {
	return s.the_provider_answers_("/things/42", 204, "")
}

func (s *VerifyStage) a_hanging_provider_on_(path string) *VerifyStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}
	return s
}

func (s *VerifyStage) the_provider_is_down() *VerifyStage {
	s.server.Close()
	return s
}

func (s *VerifyStage) a_request_timeout_of_(timeout time.Duration) *VerifyStage {
	s.config.RequestTimeout = timeout
	return s
}

func (s *VerifyStage) recording_handlers_for_(state string) *VerifyStage {
	s.handlers[state] = StateHandler{
		Setup: func(params map[string]interface{}) error {
			s.recordStateCall("setup:" + state)
			return nil
		},
		Teardown: func(params map[string]interface{}) error {
			s.recordStateCall("teardown:" + state)
			return nil
		},
	}
	return s
}

func (s *VerifyStage) a_handler_capturing_params_for_(state string) *VerifyStage {
	s.handlers[state] = StateHandler{
		Setup: func(params map[string]interface{}) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.stateParams = params
			return nil
		},
	}
	return s
}

func (s *VerifyStage) a_failing_setup_for_(state string) *VerifyStage {
	s.handlers[state] = StateHandler{
		Setup: func(params map[string]interface{}) error {
			return errors.New("seed failed")
		},
		Teardown: func(params map[string]interface{}) error {
			s.recordStateCall("teardown:" + state)
			return nil
		},
	}
	return s
}

func (s *VerifyStage) a_failing_teardown_for_(state string) *VerifyStage {
	s.handlers[state] = StateHandler{
		Teardown: func(params map[string]interface{}) error {
			return errors.New("cleanup failed")
		},
	}
	return s
}

func (s *VerifyStage) filtering_by_description_(description string) *VerifyStage {
	s.config.FilterDescription = description
	return s
}

func (s *VerifyStage) filtering_by_state_(state string) *VerifyStage {
	s.config.FilterState = state
	return s
}

func (s *VerifyStage) parallel_execution_with_(workers int) *VerifyStage {
	s.config.Parallel = true
	s.config.MaxWorkers = workers
	return s
}

func (s *VerifyStage) the_pact_is_verified() *VerifyStage {
	s.report, s.verifyErr = New(s.config, s.handlers).Verify(context.Background())
	return s
}

func (s *VerifyStage) the_run_succeeds() *VerifyStage {
	s.require.NoError(s.verifyErr)
	s.assert.True(s.report.Success())
	return s
}

func (s *VerifyStage) verification_aborts_with_a_parse_error() *VerifyStage {
	var parseErr *pact.ParseError
	s.require.Error(s.verifyErr)
	s.assert.ErrorAs(s.verifyErr, &parseErr)
	s.assert.Empty(s.report.Results)
	return s
}

func (s *VerifyStage) the_report_lists_(count int) *VerifyStage {
	s.require.NoError(s.verifyErr)
	s.require.Len(s.report.Results, count)
	return s
}

func (s *VerifyStage) result(description string) Result {
	s.t.Helper()
	for _, result := range s.report.Results {
		if result.Interaction.Description == description {
			return result
		}
	}
	s.t.Fatalf("no result for %q", description)
	return Result{}
}

func (s *VerifyStage) the_outcome_of_(description string, outcome Outcome) *VerifyStage {
	s.assert.Equal(outcome, s.result(description).Outcome)
	return s
}

func (s *VerifyStage) the_first_mismatch_of_(description, rendered string) *VerifyStage {
	result := s.result(description)
	s.require.NotEmpty(result.Mismatches)
	s.assert.Equal(rendered, result.Mismatches[0].String())
	return s
}

func (s *VerifyStage) the_failure_of_carries_no_error(description string) *VerifyStage {
	s.assert.NoError(s.result(description).Err)
	return s
}

func (s *VerifyStage) the_error_of_(description string, sentinel error) *VerifyStage {
	s.assert.ErrorIs(s.result(description).Err, sentinel)
	return s
}

func (s *VerifyStage) the_error_of_names_(description, fragment string) *VerifyStage {
	result := s.result(description)
	s.require.Error(result.Err)
	s.assert.Contains(result.Err.Error(), fragment)
	return s
}

func (s *VerifyStage) the_phases_of_(description string, phases ...Phase) *VerifyStage {
	s.assert.Equal(phases, s.result(description).Phases)
	return s
}

func (s *VerifyStage) state_calls_were_(calls ...string) *VerifyStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(calls) == 0 {
		s.assert.Empty(s.stateCalls)
		return s
	}
	s.assert.Equal(calls, s.stateCalls)
	return s
}

func (s *VerifyStage) the_captured_params_have_(key string, value interface{}) *VerifyStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.require.NotNil(s.stateParams)
	s.assert.EqualValues(value, s.stateParams[key])
	return s
}

func (s *VerifyStage) the_provider_never_received_(path string) *VerifyStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assert.NotContains(s.served, path)
	return s
}

func (s *VerifyStage) the_report_orders_(descriptions ...string) *VerifyStage {
	s.require.Len(s.report.Results, len(descriptions))
	for i, description := range descriptions {
		s.assert.Equal(description, s.report.Results[i].Interaction.Description)
	}
	return s
}

func (s *VerifyStage) the_rendered_report_contains_(fragment string) *VerifyStage {
	s.assert.Contains(s.report.String(), fragment)
	return s
}
