// Package verifier replays pact documents against a live provider and
// judges every response with the matching engine.
package verifier

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pactum-oss/pactum/pkg/pact"
)

// Sentinel causes for errored outcomes, reachable with errors.Is through
// the wrapping.
var (
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrTimeout             = errors.New("provider timed out")
)

// Verifier replays a pact against a provider. It only ever reads the pact
// file.
type Verifier struct {
	config Config
	states StateHandlers
	client *http.Client
}

func New(config Config, states StateHandlers) *Verifier {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = defaultMaxWorkers
	}
	return &Verifier{
		config: config,
		states: states,
		client: &http.Client{Timeout: config.RequestTimeout},
	}
}

// Verify loads the configured pact and replays every interaction passing
// the filters, in document order. A malformed pact aborts before any
// request; a failing interaction never stops the rest of the run.
func (v *Verifier) Verify(ctx context.Context) (Report, error) {
	p, err := pact.Load(v.config.PactFile)
	if err != nil {
		return Report{}, err
	}

	interactions := v.filter(p.Interactions)
	log.WithFields(log.Fields{
		"file":         v.config.PactFile,
		"interactions": len(interactions),
	}).Info("Verifying pact")

	if v.config.Parallel {
		return v.runParallel(ctx, interactions), nil
	}

	results := make([]Result, 0, len(interactions))
	for _, interaction := range interactions {
		results = append(results, v.verifyOne(ctx, interaction))
	}
	return Report{Results: results}, nil
}

func (v *Verifier) filter(interactions []*pact.Interaction) []*pact.Interaction {
	description := v.config.FilterDescription
	state := v.config.FilterState
	if description == "" && state == "" {
		return interactions
	}

	var out []*pact.Interaction
	for _, interaction := range interactions {
		if description != "" && interaction.Description != description {
			continue
		}
		if state != "" && stateName(interaction) != state {
			continue
		}
		out = append(out, interaction)
	}
	return out
}

func stateName(i *pact.Interaction) string {
	if i.ProviderState == nil {
		return ""
	}
	return i.ProviderState.Name
}

// verifyOne walks a single interaction through the replay machine.
func (v *Verifier) verifyOne(ctx context.Context, interaction *pact.Interaction) Result {
	m := newMachine()
	result := Result{Interaction: interaction}

	state := interaction.ProviderState
	var handler StateHandler
	if state != nil {
		var ok bool
		handler, ok = v.states[state.Name]
		if !ok {
			result.Outcome = Errored
			result.Err = errors.Errorf("no handler for provider state %q", state.Name)
			return finish(m, result)
		}

		m.transition(PhaseStateSetup)
		if handler.Setup != nil {
			if err := handler.Setup(state.Params); err != nil {
				result.Outcome = Errored
				result.Err = errors.Wrapf(err, "state setup %q failed", state.Name)
				return finish(m, result)
			}
		}
	}

	m.transition(PhaseRequestSent)
	actual, err := v.send(ctx, interaction)
	if err != nil {
		result.Outcome = Errored
		result.Err = err
	} else {
		result.Mismatches = pact.MatchResponse(interaction.Response, actual)
		if len(result.Mismatches) == 0 {
			result.Outcome = Passed
			m.transition(PhaseMatched)
		} else {
			result.Outcome = Failed
			m.transition(PhaseMismatched)
		}
	}

	if state != nil {
		m.transition(PhaseStateTeardown)
		if handler.Teardown != nil {
			if err := handler.Teardown(state.Params); err != nil {
				result.Outcome = Errored
				if result.Err == nil {
					result.Err = errors.Wrapf(err, "state teardown %q failed", state.Name)
				}
			}
		}
	}
	return finish(m, result)
}

func finish(m *machine, result Result) Result {
	m.transition(PhaseDone)
	result.Phases = m.trace

	log.WithFields(log.Fields{
		"interaction": result.Interaction.Description,
		"outcome":     result.Outcome.String(),
	}).Info("Interaction verified")
	return result
}

// send fires the interaction's literal request and captures the response.
func (v *Verifier) send(ctx context.Context, interaction *pact.Interaction) (*pact.ActualResponse, error) {
	req, err := interaction.Request.ToHTTP(ctx, v.config.ProviderBaseURL)
	if err != nil {
		return nil, err
	}

	res, err := v.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer res.Body.Close()

	return pact.ActualResponseFromHTTP(res)
}

// classifyTransportError folds transport failures onto the sentinel causes.
func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return errors.Wrap(ErrTimeout, urlErr.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	return errors.Wrap(ErrProviderUnreachable, err.Error())
}

// WaitForProvider polls the provider address until a TCP dial succeeds.
func (v *Verifier) WaitForProvider(ctx context.Context) error {
	target, err := url.Parse(v.config.ProviderBaseURL)
	if err != nil {
		return errors.Wrap(err, "unable to parse provider base URL")
	}
	host := target.Host
	if target.Port() == "" {
		switch target.Scheme {
		case "https":
			host += ":443"
		default:
			host += ":80"
		}
	}

	err = retry.Do(func() error {
		conn, err := net.DialTimeout("tcp", host, time.Second)
		if err != nil {
			return err
		}
		return conn.Close()
	}, retry.Context(ctx), retry.Delay(100*time.Millisecond), retry.DelayType(retry.FixedDelay))
	return errors.Wrap(err, "provider not ready")
}
