package pact

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/pactum-oss/pactum/pkg/match"
)

// ActualRequest is a received HTTP request reduced to the fields the
// matching engine examines.
type ActualRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// ActualRequestFromHTTP captures an inbound request, draining its body.
// Outbound requests without a body are accepted too.
func ActualRequestFromHTTP(r *http.Request) (*ActualRequest, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read request body")
		}
	}
	return &ActualRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: r.Header,
		Body:    body,
	}, nil
}

// ActualResponse is a received HTTP response reduced to the fields the
// matching engine examines.
type ActualResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// ActualResponseFromHTTP captures a provider response, draining its body.
func ActualResponseFromHTTP(r *http.Response) (*ActualResponse, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read response body")
	}
	return &ActualResponse{
		Status:  r.StatusCode,
		Headers: r.Header,
		Body:    body,
	}, nil
}

// MatchRequest judges an actual request against the expected template.
// Mismatch paths are scoped $.method, $.path, $.query, $.headers, $.body.
func MatchRequest(expected Request, actual *ActualRequest) []match.Mismatch {
	var mismatches []match.Mismatch

	if !strings.EqualFold(expected.Method, actual.Method) {
		mismatches = append(mismatches, match.Mismatch{
			Path:     match.RootPath.Key("method"),
			Kind:     match.ValueMismatch,
			Expected: match.String(expected.Method),
			Actual:   match.String(actual.Method),
		})
	}
	if expected.Path != nil {
		mismatches = append(mismatches, match.MatchAt(match.RootPath.Key("path"), expected.Path, match.String(actual.Path))...)
	}
	mismatches = append(mismatches, matchQuery(expected.Query, actual.Query)...)
	mismatches = append(mismatches, matchHeaders(expected.Headers, actual.Headers)...)
	mismatches = append(mismatches, matchBody(expected.Body, actual.Body)...)
	return mismatches
}

// MatchResponse judges an actual response against the expected template.
// Status is compared by equality, headers and body through the engine.
func MatchResponse(expected Response, actual *ActualResponse) []match.Mismatch {
	var mismatches []match.Mismatch

	if expected.Status != actual.Status {
		mismatches = append(mismatches, match.Mismatch{
			Path:     match.RootPath.Key("status"),
			Kind:     match.ValueMismatch,
			Expected: match.Number(float64(expected.Status)),
			Actual:   match.Number(float64(actual.Status)),
		})
	}
	mismatches = append(mismatches, matchHeaders(expected.Headers, actual.Headers)...)
	mismatches = append(mismatches, matchBody(expected.Body, actual.Body)...)
	return mismatches
}

func matchQuery(expected match.Mapping, actual url.Values) []match.Mismatch {
	if len(expected) == 0 {
		return nil
	}
	actualNode := match.Mapping{}
	for key, values := range actual {
		if len(values) == 1 {
			actualNode[key] = match.String(values[0])
			continue
		}
		seq := make(match.Sequence, len(values))
		for n, v := range values {
			seq[n] = match.String(v)
		}
		actualNode[key] = seq
	}
	engineExpected := match.Mapping{}
	for key, node := range expected {
		engineExpected[key] = textual(node)
	}
	return match.MatchAt(match.RootPath.Key("query"), engineExpected, actualNode)
}

// textual converts scalar literals to their wire form. Query and header
// values always arrive as text, so an expected 10 means the text "10".
func textual(n match.Node) match.Node {
	switch node := n.(type) {
	case match.Number, match.Bool:
		return match.String(match.Stringify(node))
	case match.Sequence:
		seq := make(match.Sequence, len(node))
		for i, element := range node {
			seq[i] = textual(element)
		}
		return seq
	}
	return n
}

func matchHeaders(expected match.Mapping, actual http.Header) []match.Mismatch {
	if len(expected) == 0 {
		return nil
	}
	base := match.RootPath.Key("headers")
	actualNode := match.Mapping{}
	for key, values := range actual {
		actualNode[http.CanonicalHeaderKey(key)] = match.String(strings.Join(values, ", "))
	}

	var mismatches []match.Mismatch
	engineExpected := match.Mapping{}
	for key, node := range expected {
		key = http.CanonicalHeaderKey(key)
		literal, isString := node.(match.String)
		if key != "Content-Type" || !isString {
			engineExpected[key] = textual(node)
			continue
		}
		// Content-Type is compared on its media type so an actual value
		// carrying extra parameters such as charset still matches.
		actualValue, present := actualNode[key]
		if !present {
			mismatches = append(mismatches, match.Mismatch{
				Path:     base.Key(key),
				Kind:     match.MissingKey,
				Expected: node,
			})
			continue
		}
		if !mediaTypeMatches(string(literal), string(actualValue.(match.String))) {
			mismatches = append(mismatches, match.Mismatch{
				Path:     base.Key(key),
				Kind:     match.ValueMismatch,
				Expected: node,
				Actual:   actualValue,
			})
		}
	}
	return append(mismatches, match.MatchAt(base, engineExpected, actualNode)...)
}

// mediaTypeMatches reports whether an actual Content-Type value satisfies
// the expected one. Parameters the expectation does not name are ignored.
func mediaTypeMatches(expected, actual string) bool {
	expType, expParams, err := mime.ParseMediaType(expected)
	if err != nil {
		return expected == actual
	}
	actType, actParams, err := mime.ParseMediaType(actual)
	if err != nil {
		return false
	}
	if expType != actType {
		return false
	}
	for k, v := range expParams {
		if actParams[k] != v {
			return false
		}
	}
	return true
}

func matchBody(expected match.Node, body []byte) []match.Mismatch {
	if expected == nil {
		return nil
	}
	base := match.RootPath.Key("body")
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []match.Mismatch{{Path: base, Kind: match.MissingKey, Expected: expected}}
	}
	return match.MatchAt(base, expected, actualBodyNode(expected, trimmed))
}

// actualBodyNode decodes the payload as JSON when possible and falls back
// to the raw text. A string expectation keeps the raw text for scalar
// payloads, so a text/plain body of "42" still matches String("42").
func actualBodyNode(expected match.Node, body []byte) match.Node {
	parsed, ok := parseJSONBody(body)
	if !ok {
		return match.String(string(body))
	}
	if match.ClassOf(expected) == match.ClassString {
		switch parsed.(type) {
		case match.String, match.Sequence, match.Mapping:
		default:
			return match.String(string(body))
		}
	}
	return parsed
}

func parseJSONBody(body []byte) (match.Node, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return match.FromJSON(v), true
}

// RenderBody materializes the literal bytes for an expected body node.
// Strings are served verbatim, everything else as compact JSON.
func RenderBody(n match.Node) []byte {
	if n == nil {
		return nil
	}
	rendered := match.Render(n)
	if s, ok := rendered.(match.String); ok {
		return []byte(s)
	}
	b, _ := json.Marshal(match.ToJSON(rendered))
	return b
}

// RenderHeaders materializes literal header values for serving.
func RenderHeaders(m match.Mapping) http.Header {
	h := http.Header{}
	for key, node := range m {
		h.Set(http.CanonicalHeaderKey(key), match.Stringify(match.Render(node)))
	}
	return h
}

// ToHTTP builds the literal outbound request for this template against a
// provider base URL, with matchers rendered to their example values.
func (r Request) ToHTTP(ctx context.Context, baseURL string) (*http.Request, error) {
	path := match.Stringify(match.Render(r.Path))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := strings.TrimSuffix(baseURL, "/") + path

	if len(r.Query) > 0 {
		values := url.Values{}
		for key, node := range r.Query {
			switch rendered := match.Render(node).(type) {
			case match.Sequence:
				for _, element := range rendered {
					values.Add(key, match.Stringify(element))
				}
			default:
				values.Add(key, match.Stringify(rendered))
			}
		}
		target += "?" + values.Encode()
	}

	var body io.Reader
	if rendered := RenderBody(r.Body); rendered != nil {
		body = bytes.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to build request for %s %s", r.Method, path)
	}
	for key, values := range RenderHeaders(r.Headers) {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	return req, nil
}
