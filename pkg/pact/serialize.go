package pact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/pactum-oss/pactum/pkg/match"
)

// Document shapes. Field order here is the canonical field order of the
// serialized form; mapping keys inside bodies are sorted by the encoder.

type document struct {
	Consumer     pacticipant       `json:"consumer"`
	Provider     pacticipant       `json:"provider"`
	Interactions []json.RawMessage `json:"interactions"`
	Metadata     documentMetadata  `json:"metadata"`
}

type pacticipant struct {
	Name string `json:"name"`
}

type documentMetadata struct {
	PactSpecification specification `json:"pactSpecification"`
}

type specification struct {
	Version string `json:"version"`
}

type interactionDocument struct {
	Description   string          `json:"description"`
	ProviderState json.RawMessage `json:"providerState,omitempty"`
	Request       json.RawMessage `json:"request"`
	Response      json.RawMessage `json:"response"`
}

type stateDocument struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type requestDocument struct {
	Method        string          `json:"method"`
	Path          json.RawMessage `json:"path"`
	Query         json.RawMessage `json:"query,omitempty"`
	Headers       json.RawMessage `json:"headers,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
	MatchingRules json.RawMessage `json:"matchingRules,omitempty"`
}

type responseDocument struct {
	Status        int             `json:"status"`
	Headers       json.RawMessage `json:"headers,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
	MatchingRules json.RawMessage `json:"matchingRules,omitempty"`
}

type ruleDocument struct {
	Match string `json:"match"`
	Regex string `json:"regex,omitempty"`
	Min   int    `json:"min,omitempty"`
}

// Marshal renders the pact into its canonical document form: fixed field
// order, sorted mapping keys, two-space indentation and a trailing
// newline. Matchers are serialized as literal example values plus a
// matchingRules map keyed by JSON path, so the document stays plain JSON
// for readers that do not understand rules.
func Marshal(p *Pact) ([]byte, error) {
	doc := document{
		Consumer:     pacticipant{Name: p.Consumer},
		Provider:     pacticipant{Name: p.Provider},
		Interactions: make([]json.RawMessage, 0, len(p.Interactions)),
	}
	doc.Metadata.PactSpecification.Version = p.SpecVersion
	if doc.Metadata.PactSpecification.Version == "" {
		doc.Metadata.PactSpecification.Version = defaultSpecVersion
	}

	for _, i := range p.Interactions {
		raw, err := marshalInteraction(i)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to serialize interaction %q", i.Description)
		}
		doc.Interactions = append(doc.Interactions, raw)
	}

	compact, err := marshalCompact(doc)
	if err != nil {
		return nil, errors.Wrap(err, "unable to serialize pact document")
	}
	return indentDocument(compact)
}

func indentDocument(compact []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, errors.Wrap(err, "unable to indent pact document")
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// marshalCompact encodes without HTML escaping, which json.Marshal would
// apply to <, > and & inside body strings.
func marshalCompact(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalInteraction(i *Interaction) (json.RawMessage, error) {
	request, err := marshalRequest(i.Request)
	if err != nil {
		return nil, err
	}
	response, err := marshalResponse(i.Response)
	if err != nil {
		return nil, err
	}

	doc := interactionDocument{
		Description: i.Description,
		Request:     request,
		Response:    response,
	}
	if i.ProviderState != nil {
		state, err := marshalCompact(stateDocument{Name: i.ProviderState.Name, Params: i.ProviderState.Params})
		if err != nil {
			return nil, err
		}
		doc.ProviderState = state
	}
	return marshalCompact(doc)
}

func marshalRequest(r Request) (json.RawMessage, error) {
	rules := map[string]ruleDocument{}
	doc := requestDocument{Method: r.Method, Path: json.RawMessage(`""`)}

	if r.Path != nil {
		collectRules("$.path", r.Path, rules)
		path, err := marshalNode(r.Path)
		if err != nil {
			return nil, err
		}
		doc.Path = path
	}
	if len(r.Query) > 0 {
		collectRules("$.query", r.Query, rules)
		query, err := marshalNode(r.Query)
		if err != nil {
			return nil, err
		}
		doc.Query = query
	}
	if len(r.Headers) > 0 {
		collectRules("$.headers", r.Headers, rules)
		headers, err := marshalNode(r.Headers)
		if err != nil {
			return nil, err
		}
		doc.Headers = headers
	}
	if r.Body != nil {
		collectRules("$.body", r.Body, rules)
		body, err := marshalNode(r.Body)
		if err != nil {
			return nil, err
		}
		doc.Body = body
	}

	var err error
	if doc.MatchingRules, err = marshalRules(rules); err != nil {
		return nil, err
	}
	return marshalCompact(doc)
}

func marshalResponse(r Response) (json.RawMessage, error) {
	rules := map[string]ruleDocument{}
	doc := responseDocument{Status: r.Status}

	if len(r.Headers) > 0 {
		collectRules("$.headers", r.Headers, rules)
		headers, err := marshalNode(r.Headers)
		if err != nil {
			return nil, err
		}
		doc.Headers = headers
	}
	if r.Body != nil {
		collectRules("$.body", r.Body, rules)
		body, err := marshalNode(r.Body)
		if err != nil {
			return nil, err
		}
		doc.Body = body
	}

	var err error
	if doc.MatchingRules, err = marshalRules(rules); err != nil {
		return nil, err
	}
	return marshalCompact(doc)
}

func marshalNode(n match.Node) (json.RawMessage, error) {
	return marshalCompact(match.ToJSON(n))
}

func marshalRules(rules map[string]ruleDocument) (json.RawMessage, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	return marshalCompact(rules)
}

// collectRules walks an expected tree and records one v2-style rule per
// matcher position. EachLike templates are keyed with a [*] segment.
func collectRules(prefix string, n match.Node, rules map[string]ruleDocument) {
	switch v := n.(type) {
	case match.Equality:
		collectRules(prefix, v.Value, rules)
	case match.Type:
		rules[prefix] = ruleDocument{Match: "type"}
		collectRules(prefix, v.Example, rules)
	case match.Regex:
		rules[prefix] = ruleDocument{Match: "regex", Regex: v.Pattern}
		collectRules(prefix, v.Example, rules)
	case match.EachLike:
		min := v.Min
		if min < 1 {
			min = 1
		}
		rules[prefix] = ruleDocument{Match: "type", Min: min}
		collectRules(prefix+"[*]", v.Template, rules)
	case match.Sequence:
		for idx, element := range v {
			collectRules(fmt.Sprintf("%s[%d]", prefix, idx), element, rules)
		}
	case match.Mapping:
		for key, element := range v {
			collectRules(appendRuleKey(prefix, key), element, rules)
		}
	}
}

func appendRuleKey(prefix, key string) string {
	if isRuleIdentifier(key) {
		return prefix + "." + key
	}
	return fmt.Sprintf("%s[%q]", prefix, key)
}

func isRuleIdentifier(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return !strings.ContainsAny(key[:1], "0123456789")
}
