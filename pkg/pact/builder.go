package pact

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/pactum-oss/pactum/pkg/match"
)

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// InteractionBuilder assembles an interaction in declaration order:
// description, optional provider state, request, response. The terminal
// Build call validates the whole value.
type InteractionBuilder struct {
	interaction Interaction
}

// NewInteraction starts building an interaction with the given description.
func NewInteraction(description string) *InteractionBuilder {
	return &InteractionBuilder{
		interaction: Interaction{Description: description},
	}
}

// Given scopes the interaction to a named provider state. Params may be nil.
func (b *InteractionBuilder) Given(state string, params map[string]interface{}) *InteractionBuilder {
	b.interaction.ProviderState = &ProviderState{Name: state, Params: params}
	return b
}

// WithRequest sets the request method and path and moves the builder into
// its request stage. Path accepts a plain string or a match.Node, so
// matcher paths read as WithRequest("GET", match.Term("/things/1", `/things/\d+`)).
func (b *InteractionBuilder) WithRequest(method string, path interface{}) *RequestBuilder {
	b.interaction.Request.Method = strings.ToUpper(method)
	b.interaction.Request.Path = match.FromJSON(path)
	return &RequestBuilder{parent: b}
}

// RequestBuilder fills in the request template.
type RequestBuilder struct {
	parent *InteractionBuilder
}

// Query sets one expected query parameter. Value accepts a string, a
// matcher, or a slice for multi-valued parameters.
func (rb *RequestBuilder) Query(key string, value interface{}) *RequestBuilder {
	req := &rb.parent.interaction.Request
	if req.Query == nil {
		req.Query = match.Mapping{}
	}
	req.Query[key] = match.FromJSON(value)
	return rb
}

// Header sets one expected request header.
func (rb *RequestBuilder) Header(key string, value interface{}) *RequestBuilder {
	req := &rb.parent.interaction.Request
	if req.Headers == nil {
		req.Headers = match.Mapping{}
	}
	req.Headers[http.CanonicalHeaderKey(key)] = match.FromJSON(value)
	return rb
}

// JSONBody sets the expected request body and defaults the Content-Type
// header to application/json.
func (rb *RequestBuilder) JSONBody(body interface{}) *RequestBuilder {
	rb.parent.interaction.Request.Body = match.FromJSON(body)
	return rb.defaultContentType("application/json")
}

// TextBody sets the expected request body to a plain string and defaults
// the Content-Type header to text/plain.
func (rb *RequestBuilder) TextBody(body string) *RequestBuilder {
	rb.parent.interaction.Request.Body = match.String(body)
	return rb.defaultContentType("text/plain")
}

func (rb *RequestBuilder) defaultContentType(mediaType string) *RequestBuilder {
	req := &rb.parent.interaction.Request
	if req.Headers == nil {
		req.Headers = match.Mapping{}
	}
	if _, ok := req.Headers["Content-Type"]; !ok {
		req.Headers["Content-Type"] = match.String(mediaType)
	}
	return rb
}

// WillRespondWith sets the response status and moves the builder into its
// response stage.
func (rb *RequestBuilder) WillRespondWith(status int) *ResponseBuilder {
	rb.parent.interaction.Response.Status = status
	return &ResponseBuilder{parent: rb.parent}
}

// ResponseBuilder fills in the response template.
type ResponseBuilder struct {
	parent *InteractionBuilder
}

// Header sets one response header to serve and match on.
func (rb *ResponseBuilder) Header(key string, value interface{}) *ResponseBuilder {
	resp := &rb.parent.interaction.Response
	if resp.Headers == nil {
		resp.Headers = match.Mapping{}
	}
	resp.Headers[http.CanonicalHeaderKey(key)] = match.FromJSON(value)
	return rb
}

// JSONBody sets the response body and defaults Content-Type to
// application/json.
func (rb *ResponseBuilder) JSONBody(body interface{}) *ResponseBuilder {
	resp := &rb.parent.interaction.Response
	resp.Body = match.FromJSON(body)
	if resp.Headers == nil {
		resp.Headers = match.Mapping{}
	}
	if _, ok := resp.Headers["Content-Type"]; !ok {
		resp.Headers["Content-Type"] = match.String("application/json")
	}
	return rb
}

// TextBody sets the response body to a plain string.
func (rb *ResponseBuilder) TextBody(body string) *ResponseBuilder {
	resp := &rb.parent.interaction.Response
	resp.Body = match.String(body)
	if resp.Headers == nil {
		resp.Headers = match.Mapping{}
	}
	if _, ok := resp.Headers["Content-Type"]; !ok {
		resp.Headers["Content-Type"] = match.String("text/plain")
	}
	return rb
}

// Build validates the assembled interaction and returns it. The returned
// value is never mutated by the builder afterwards.
func (rb *ResponseBuilder) Build() (*Interaction, error) {
	i := rb.parent.interaction
	if err := validateInteraction(&i); err != nil {
		return nil, errors.Wrapf(err, "invalid interaction %q", i.Description)
	}
	return &i, nil
}

func validateInteraction(i *Interaction) error {
	if strings.TrimSpace(i.Description) == "" {
		return errors.New("description must not be empty")
	}
	if !knownMethods[i.Request.Method] {
		return errors.Errorf("unknown request method %q", i.Request.Method)
	}
	if i.Request.Path == nil {
		return errors.New("request path must be set")
	}
	if match.ClassOf(i.Request.Path) != match.ClassString {
		return errors.Errorf("request path must be a string, got %s", match.ClassOf(i.Request.Path))
	}
	if i.Response.Status < 100 || i.Response.Status > 599 {
		return errors.Errorf("response status %d out of range", i.Response.Status)
	}

	for name, node := range map[string]match.Node{
		"request path":  i.Request.Path,
		"request body":  i.Request.Body,
		"response body": i.Response.Body,
	} {
		if err := match.Validate(node); err != nil {
			return errors.Wrap(err, name)
		}
	}
	for name, mapping := range map[string]match.Mapping{
		"request query":    i.Request.Query,
		"request headers":  i.Request.Headers,
		"response headers": i.Response.Headers,
	} {
		for key, node := range mapping {
			if err := match.Validate(node); err != nil {
				return errors.Wrapf(err, "%s %q", name, key)
			}
		}
	}
	return nil
}
