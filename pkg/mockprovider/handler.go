package mockprovider

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/pactum-oss/pactum/internal/app/httpresponse"
	"github.com/pactum-oss/pactum/pkg/match"
	"github.com/pactum-oss/pactum/pkg/pact"
)

// handle serves every inbound request: run the engine over the registered
// set, then answer with the single match's literal response or a diagnostic.
// Every request is recorded, including the ones nothing matched.
func (s *Service) handle(c echo.Context) error {
	s.registry.enter()
	defer s.registry.leave()
	defer s.notify.Notify()

	actual, err := pact.ActualRequestFromHTTP(c.Request())
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read request: %s", err))
	}

	v := s.registry.evaluate(actual)
	switch {
	case len(v.matches) == 1:
		reg := v.matches[0]
		reg.hits.Add(1)
		s.recorder.add(Exchange{
			Description: reg.interaction.Description,
			Outcome:     ExchangeMatched,
			StatusSent:  reg.interaction.Response.Status,
			Request:     actual,
		})
		log.WithFields(log.Fields{
			"method":      actual.Method,
			"path":        actual.Path,
			"interaction": reg.interaction.Description,
		}).Info("Request matched")
		return s.serve(c, reg.interaction)

	case len(v.matches) > 1:
		titles := make([]string, len(v.matches))
		for i, reg := range v.matches {
			titles[i] = reg.interaction.String()
		}
		s.recorder.add(Exchange{
			Outcome:    ExchangeAmbiguous,
			StatusSent: http.StatusInternalServerError,
			Request:    actual,
		})
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf(
			"request %s %s is ambiguous, it matches %s",
			actual.Method, actual.Path, strings.Join(titles, " and ")))

	default:
		diag := httpresponse.Errorf("no interaction matches %s %s", actual.Method, actual.Path)
		var nearest []match.Mismatch
		if v.nearest != nil {
			lines := make([]string, len(v.nearestMismatches))
			for i, m := range v.nearestMismatches {
				lines[i] = m.String()
			}
			diag = diag.WithCandidate(v.nearest.interaction.String(), lines)
			nearest = v.nearestMismatches
		}
		s.recorder.add(Exchange{
			Outcome:    ExchangeUnmatched,
			StatusSent: http.StatusInternalServerError,
			Request:    actual,
			Mismatches: nearest,
		})
		return c.JSON(http.StatusInternalServerError, diag)
	}
}

// serve writes the interaction's literal response, matchers rendered to
// their example values.
func (s *Service) serve(c echo.Context, i *pact.Interaction) error {
	header := c.Response().Header()
	for key, values := range pact.RenderHeaders(i.Response.Headers) {
		for _, value := range values {
			header.Add(key, value)
		}
	}

	body := pact.RenderBody(i.Response.Body)
	if body == nil {
		return c.NoContent(i.Response.Status)
	}
	contentType := header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = contentTypeFor(i.Response.Body)
	}
	return c.Blob(i.Response.Status, contentType, body)
}

func contentTypeFor(body match.Node) string {
	if _, ok := match.Render(body).(match.String); ok {
		return "text/plain; charset=utf-8"
	}
	return "application/json"
}
