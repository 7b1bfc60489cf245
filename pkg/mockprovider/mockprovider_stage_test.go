package mockprovider

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/pactum-oss/pactum/pkg/match"
	"github.com/pactum-oss/pactum/pkg/pact"
)

type MockStage struct {
	t               *testing.T
	assert          *assert.Assertions
	require         *require.Assertions
	service         *Service
	pactDir         string
	pactPath        string
	interactions    []*pact.Interaction
	registerErr     error
	waitErr         error
	responses       []*http.Response
	bodies          [][]byte
	concurrentCodes []int
}

func NewMockStage(t *testing.T) (*MockStage, *MockStage, *MockStage, func()) {
	pactDir := t.TempDir()
	s := &MockStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
		pactDir: pactDir,
		service: New(Config{
			Consumer: "order-service",
			Provider: "thing-service",
			PactDir:  pactDir,
		}),
	}

	s.require.NoError(s.service.Start())
	s.require.NoError(s.service.WaitUntilReady(context.Background()))

	teardown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.assert.NoError(s.service.Stop(ctx))
	}
	return s, s, s, teardown
}

func (s *MockStage) and() *MockStage {
	return s
}

func (s *MockStage) an_interaction_returning_a_small_something() *MockStage {
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

func (s *MockStage) a_conflicting_interaction_on_the_same_route() *MockStage {
	interaction, err := pact.NewInteraction("another request for something").
		WithRequest("GET", "/something").
		WillRespondWith(404).
		Build()
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *MockStage) an_interaction_matching_any_thing_id() *MockStage {
	interaction, err := pact.NewInteraction("a request for a thing").
		WithRequest("GET", match.Term("/things/42", `/things/\d+`)).
		WillRespondWith(200).
		JSONBody(map[string]interface{}{"id": match.Like(42)}).
		Build()
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *MockStage) orderInteraction() *pact.Interaction {
	interaction, err := pact.NewInteraction("an order creation request").
		WithRequest("POST", "/orders").
		JSONBody(map[string]interface{}{"id": match.Like(7)}).
		WillRespondWith(201).
		JSONBody(map[string]interface{}{"id": 7}).
		Build()
	s.require.NoError(err)
	return interaction
}

func (s *MockStage) an_interaction_expecting_a_typed_order() *MockStage {
	s.interactions = append(s.interactions, s.orderInteraction())
	return s
}

func (s *MockStage) an_interaction_expecting_body_key_(description, key string) *MockStage {
	interaction, err := pact.NewInteraction(description).
		WithRequest("POST", "/mixed").
		JSONBody(map[string]interface{}{key: match.Like(1)}).
		WillRespondWith(200).
		Build()
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *MockStage) the_interactions_are_registered() *MockStage {
	s.require.NoError(s.service.Register(s.interactions...))
	return s
}

func (s *MockStage) registration_is_attempted() *MockStage {
	s.registerErr = s.service.Register(s.interactions...)
	return s
}

func (s *MockStage) the_registration_is_replaced_with_the_order_interaction() *MockStage {
	s.require.NoError(s.service.Register(s.orderInteraction()))
	return s
}

func (s *MockStage) the_mock_is_reset() *MockStage {
	s.require.NoError(s.service.Reset())
	return s
}

func (s *MockStage) a_get_request_is_sent_to_(path string) *MockStage {
	res, err := http.Get(s.service.URL() + path)
	s.require.NoError(err)
	s.record(res)
	return s
}

func (s *MockStage) a_post_request_is_sent_to_(path, body string) *MockStage {
	res, err := http.Post(s.service.URL()+path, "application/json", strings.NewReader(body))
	s.require.NoError(err)
	s.record(res)
	return s
}

func (s *MockStage) record(res *http.Response) {
	body, err := io.ReadAll(res.Body)
	s.require.NoError(err)
	s.require.NoError(res.Body.Close())
	s.responses = append(s.responses, res)
	s.bodies = append(s.bodies, body)
}

func (s *MockStage) n_get_requests_are_sent_concurrently_to_(n int, path string) *MockStage {
	codes := make(chan int, n)
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := http.Get(s.service.URL() + path)
			if err != nil {
				codes <- 0
				return
			}
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
			codes <- res.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		s.concurrentCodes = append(s.concurrentCodes, code)
	}
	return s
}

func (s *MockStage) a_request_is_fired_after_(delay time.Duration, path string) *MockStage {
	go func() {
		time.Sleep(delay)
		res, err := http.Get(s.service.URL() + path)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()
	return s
}

func (s *MockStage) waiting_for_interaction_(description string, count int) *MockStage {
	s.waitErr = s.service.WaitForInteraction(description, count, 3*time.Second)
	return s
}

func (s *MockStage) the_pact_is_written() *MockStage {
	s.require.NoError(s.service.WritePact(""))
	s.pactPath = filepath.Join(s.pactDir, "order-service-thing-service.json")
	return s
}

func (s *MockStage) the_response_code_is_(code int) *MockStage {
	s.require.NotEmpty(s.responses)
	s.assert.Equal(code, s.responses[len(s.responses)-1].StatusCode)
	return s
}

func (s *MockStage) the_response_body_has_(path, value string) *MockStage {
	s.require.NotEmpty(s.bodies)
	body := s.bodies[len(s.bodies)-1]
	s.assert.Equal(value, gjson.GetBytes(body, path).String())
	return s
}

func (s *MockStage) the_response_content_type_is_(mediaType string) *MockStage {
	s.require.NotEmpty(s.responses)
	res := s.responses[len(s.responses)-1]
	s.assert.Contains(res.Header.Get("Content-Type"), mediaType)
	return s
}

func (s *MockStage) registration_fails_as_ambiguous() *MockStage {
	var ambiguous *AmbiguousRegistrationError
	s.require.ErrorAs(s.registerErr, &ambiguous)
	return s
}

func (s *MockStage) all_concurrent_requests_succeeded() *MockStage {
	for _, code := range s.concurrentCodes {
		s.assert.Equal(http.StatusOK, code)
	}
	return s
}

func (s *MockStage) the_exchange_log_records_(n int, outcome string) *MockStage {
	count := 0
	for _, e := range s.service.Exchanges() {
		if e.Outcome == outcome {
			count++
		}
	}
	s.assert.Equal(n, count, "exchanges with outcome %s", outcome)
	return s
}

func (s *MockStage) every_interaction_is_fulfilled() *MockStage {
	s.assert.NoError(s.service.AssertFulfilled())
	return s
}

func (s *MockStage) fulfilment_fails_naming_(description string) *MockStage {
	var unfulfilled *UnfulfilledError
	s.require.ErrorAs(s.service.AssertFulfilled(), &unfulfilled)
	s.assert.Contains(unfulfilled.Descriptions, description)
	return s
}

func (s *MockStage) the_wait_succeeds() *MockStage {
	s.assert.NoError(s.waitErr)
	return s
}

func (s *MockStage) the_diagnostic_names_candidate_(title string) *MockStage {
	s.require.NotEmpty(s.bodies)
	body := s.bodies[len(s.bodies)-1]
	s.assert.Equal(title, gjson.GetBytes(body, "candidate").String())
	s.assert.NotEmpty(gjson.GetBytes(body, "mismatches").Array())
	return s
}

func (s *MockStage) the_diagnostic_reports_ambiguity() *MockStage {
	s.require.NotEmpty(s.bodies)
	body := s.bodies[len(s.bodies)-1]
	s.assert.Contains(gjson.GetBytes(body, "error_message").String(), "ambiguous")
	return s
}

func (s *MockStage) the_saved_pact_contains_(description string) *MockStage {
	p, err := pact.Load(s.pactPath)
	s.require.NoError(err)
	s.assert.True(s.pactHas(p, description), "interaction %q missing from pact file", description)
	return s
}

func (s *MockStage) the_saved_pact_omits_(description string) *MockStage {
	p, err := pact.Load(s.pactPath)
	s.require.NoError(err)
	s.assert.False(s.pactHas(p, description), "interaction %q should not be in pact file", description)
	return s
}

func (s *MockStage) pactHas(p *pact.Pact, description string) bool {
	for _, interaction := range p.Interactions {
		if interaction.Description == description {
			return true
		}
	}
	return false
}
