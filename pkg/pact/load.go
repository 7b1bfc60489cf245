package pact

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	version "github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/pactum-oss/pactum/pkg/match"
)

// ParseError reports a malformed pact document. Verification treats it as
// fatal and aborts before any request is sent.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("malformed pact document: %v", e.Err)
	}
	return fmt.Sprintf("malformed pact document %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a pact document. Unknown fields are retained opaquely on
// the returned value so a later save round-trips them.
func Parse(data []byte) (*Pact, error) {
	return parseDocument(data, "")
}

func parseDocument(data []byte, source string) (*Pact, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ParseError{Source: source, Err: errors.New("invalid JSON")}
	}
	doc := gjson.ParseBytes(data)

	consumer := doc.Get("consumer.name")
	provider := doc.Get("provider.name")
	if !consumer.Exists() || !provider.Exists() {
		return nil, &ParseError{Source: source, Err: errors.New("consumer and provider names are required")}
	}

	specVersion := defaultSpecVersion
	if v := doc.Get("metadata.pactSpecification.version"); v.Exists() {
		specVersion = v.String()
	} else if v := doc.Get("metadata.pact-specification.version"); v.Exists() {
		specVersion = v.String()
	}
	ver, err := version.NewVersion(specVersion)
	if err != nil {
		return nil, &ParseError{Source: source, Err: errors.Wrapf(err, "invalid pact specification version %q", specVersion)}
	}

	p := &Pact{
		Consumer:    consumer.String(),
		Provider:    provider.String(),
		SpecVersion: specVersion,
		raw:         append([]byte(nil), data...),
	}

	var parseErr error
	doc.Get("interactions").ForEach(func(_, item gjson.Result) bool {
		interaction, err := parseInteraction(item, ver)
		if err != nil {
			parseErr = err
			return false
		}
		p.Interactions = append(p.Interactions, interaction)
		return true
	})
	if parseErr != nil {
		return nil, &ParseError{Source: source, Err: parseErr}
	}
	if err := p.validate(); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	return p, nil
}

func parseInteraction(item gjson.Result, ver *version.Version) (*Interaction, error) {
	description := item.Get("description")
	if !description.Exists() || strings.TrimSpace(description.String()) == "" {
		return nil, errors.New("interaction without description")
	}

	i := &Interaction{
		Description: description.String(),
		raw:         []byte(item.Raw),
	}

	state, err := parseProviderState(item)
	if err != nil {
		return nil, errors.Wrapf(err, "interaction %q", i.Description)
	}
	i.ProviderState = state

	request := item.Get("request")
	if !request.IsObject() {
		return nil, errors.Errorf("interaction %q has no request", i.Description)
	}
	if i.Request, err = parseRequest(request, ver); err != nil {
		return nil, errors.Wrapf(err, "interaction %q", i.Description)
	}

	response := item.Get("response")
	if !response.IsObject() {
		return nil, errors.Errorf("interaction %q has no response", i.Description)
	}
	if i.Response, err = parseResponse(response, ver); err != nil {
		return nil, errors.Wrapf(err, "interaction %q", i.Description)
	}
	return i, nil
}

// parseProviderState understands the canonical object form, the legacy
// v2 string form, and the v3 providerStates array.
func parseProviderState(item gjson.Result) (*ProviderState, error) {
	if state := item.Get("providerState"); state.Exists() {
		switch {
		case state.Type == gjson.String:
			return &ProviderState{Name: state.String()}, nil
		case state.IsObject():
			return stateFromObject(state)
		default:
			return nil, errors.New("providerState must be a string or an object")
		}
	}

	states := item.Get("providerStates")
	if !states.Exists() {
		return nil, nil
	}
	if !states.IsArray() {
		return nil, errors.New("providerStates must be an array")
	}
	all := states.Array()
	if len(all) == 0 {
		return nil, nil
	}
	if len(all) > 1 {
		log.WithField("count", len(all)).Warn("Interaction declares multiple provider states - using the first")
	}
	return stateFromObject(all[0])
}

func stateFromObject(state gjson.Result) (*ProviderState, error) {
	name := state.Get("name")
	if !name.Exists() {
		return nil, errors.New("provider state without name")
	}
	ps := &ProviderState{Name: name.String()}
	if params := state.Get("params"); params.IsObject() {
		ps.Params, _ = params.Value().(map[string]interface{})
	}
	return ps, nil
}

func parseRequest(request gjson.Result, ver *version.Version) (Request, error) {
	method := request.Get("method")
	if !method.Exists() {
		return Request{}, errors.New("request without method")
	}
	r := Request{
		Method: strings.ToUpper(method.String()),
		Path:   match.String(request.Get("path").String()),
	}

	if query := request.Get("query"); query.Exists() {
		q, err := parseQuery(query)
		if err != nil {
			return Request{}, err
		}
		r.Query = q
	}
	if headers := request.Get("headers"); headers.IsObject() {
		r.Headers = parseHeaderMapping(headers)
	}
	if body := request.Get("body"); body.Exists() {
		r.Body = match.FromJSON(body.Value())
	}

	for _, rule := range parseRules(request, ver) {
		root, rest := rule.segments[0].key, rule.segments[1:]
		switch root {
		case "path":
			if len(rest) > 0 {
				dropRule(rule, "path rules cannot be nested")
				continue
			}
			r.Path = wrapMatcher(r.Path, rule.spec)
		case "query":
			r.Query = graftMapping(r.Query, rule, rest)
		case "headers":
			r.Headers = graftMapping(r.Headers, rule, rest)
		case "body":
			if !bodyRuleResolves(rest, request.Get("body").Value()) {
				dropRule(rule, "path does not resolve against the body")
				continue
			}
			grafted, err := graft(r.Body, rest, rule.spec)
			if err != nil {
				dropRule(rule, err.Error())
				continue
			}
			r.Body = grafted
		default:
			dropRule(rule, "unrecognized rule target")
		}
	}
	return r, nil
}

func parseResponse(response gjson.Result, ver *version.Version) (Response, error) {
	status := response.Get("status")
	if !status.Exists() {
		return Response{}, errors.New("response without status")
	}
	r := Response{Status: int(status.Int())}

	if headers := response.Get("headers"); headers.IsObject() {
		r.Headers = parseHeaderMapping(headers)
	}
	if body := response.Get("body"); body.Exists() {
		r.Body = match.FromJSON(body.Value())
	}

	for _, rule := range parseRules(response, ver) {
		root, rest := rule.segments[0].key, rule.segments[1:]
		switch root {
		case "headers":
			r.Headers = graftMapping(r.Headers, rule, rest)
		case "body":
			if !bodyRuleResolves(rest, response.Get("body").Value()) {
				dropRule(rule, "path does not resolve against the body")
				continue
			}
			grafted, err := graft(r.Body, rest, rule.spec)
			if err != nil {
				dropRule(rule, err.Error())
				continue
			}
			r.Body = grafted
		default:
			dropRule(rule, "unrecognized rule target")
		}
	}
	return r, nil
}

func parseQuery(query gjson.Result) (match.Mapping, error) {
	switch {
	case query.Type == gjson.String:
		if query.String() == "" {
			return nil, nil
		}
		values, err := url.ParseQuery(query.String())
		if err != nil {
			return nil, errors.Wrap(err, "unable to parse query string")
		}
		q := match.Mapping{}
		for key, vals := range values {
			if len(vals) == 1 {
				q[key] = match.String(vals[0])
				continue
			}
			seq := make(match.Sequence, len(vals))
			for n, v := range vals {
				seq[n] = match.String(v)
			}
			q[key] = seq
		}
		return q, nil
	case query.IsObject():
		q := match.Mapping{}
		query.ForEach(func(key, value gjson.Result) bool {
			q[key.String()] = match.FromJSON(value.Value())
			return true
		})
		return q, nil
	default:
		return nil, errors.New("query must be a string or an object")
	}
}

func parseHeaderMapping(headers gjson.Result) match.Mapping {
	m := match.Mapping{}
	headers.ForEach(func(key, value gjson.Result) bool {
		m[http.CanonicalHeaderKey(key.String())] = match.FromJSON(value.Value())
		return true
	})
	return m
}

// Matching rule handling. Rules are normalized from both the v2 flat form
// ("$.body.data.id": {"match": "type"}) and the v3 nested form
// ("body": {"$.data.id": {"matchers": [...]}}) into full document paths,
// then grafted deepest-first so rules inside each-like templates land
// before the template itself is captured.

type ruleSpec struct {
	match  string
	regex  string
	min    int
	hasMin bool
}

type parsedRule struct {
	path     string
	segments []pathSegment
	spec     ruleSpec
}

type segmentKind int

const (
	segKey segmentKind = iota
	segIndex
	segStar
)

type pathSegment struct {
	kind  segmentKind
	key   string
	index int
}

func parseRules(section gjson.Result, ver *version.Version) []parsedRule {
	rules := section.Get("matchingRules")
	if !rules.IsObject() {
		return nil
	}

	flat := map[string]ruleSpec{}
	sawNested := false
	rules.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		switch {
		case strings.HasPrefix(k, "$"):
			if spec, ok := flatRule(value); ok {
				flat[k] = spec
			} else {
				log.WithField("rule", k).Warn("Ignoring matching rule with unrecognized shape")
			}
		case k == "path":
			sawNested = true
			if spec, ok := nestedRule(value); ok {
				flat["$.path"] = spec
			}
		case k == "query", k == "header", k == "headers":
			sawNested = true
			target := "$.headers"
			if k == "query" {
				target = "$.query"
			}
			value.ForEach(func(name, matchers gjson.Result) bool {
				if spec, ok := nestedRule(matchers); ok {
					flat[appendRuleKey(target, name.String())] = spec
				}
				return true
			})
		case k == "body":
			sawNested = true
			value.ForEach(func(sub, matchers gjson.Result) bool {
				full := "$.body" + strings.TrimPrefix(sub.String(), "$")
				if spec, ok := nestedRule(matchers); ok {
					flat[full] = spec
				}
				return true
			})
		default:
			log.WithField("rule", k).Warn("Ignoring matching rule with unrecognized target")
		}
		return true
	})

	if sawNested && ver.Segments()[0] < 3 {
		log.WithField("version", ver.Original()).Debug("Accepting v3-style matching rules in an older document")
	}

	parsed := make([]parsedRule, 0, len(flat))
	for path, spec := range flat {
		segments, err := parseRulePath(path)
		if err != nil {
			log.WithField("rule", path).Warn("Ignoring matching rule with invalid path")
			continue
		}
		if len(segments) == 0 || segments[0].kind != segKey {
			log.WithField("rule", path).Warn("Ignoring matching rule outside request or response sections")
			continue
		}
		parsed = append(parsed, parsedRule{path: path, segments: segments, spec: spec})
	}
	sort.Slice(parsed, func(a, b int) bool {
		if len(parsed[a].segments) != len(parsed[b].segments) {
			return len(parsed[a].segments) > len(parsed[b].segments)
		}
		return parsed[a].path < parsed[b].path
	})
	return parsed
}

func flatRule(value gjson.Result) (ruleSpec, bool) {
	if !value.IsObject() {
		return ruleSpec{}, false
	}
	kind := value.Get("match").String()
	if regex := value.Get("regex"); regex.Exists() {
		return ruleSpec{match: "regex", regex: regex.String()}, true
	}
	if min := value.Get("min"); min.Exists() && (kind == "type" || kind == "") {
		return ruleSpec{match: "type", min: int(min.Int()), hasMin: true}, true
	}
	switch kind {
	case "type":
		return ruleSpec{match: "type"}, true
	case "equality":
		return ruleSpec{match: "equality"}, true
	}
	return ruleSpec{}, false
}

func nestedRule(value gjson.Result) (ruleSpec, bool) {
	matchers := value.Get("matchers")
	if !matchers.IsArray() {
		return ruleSpec{}, false
	}
	all := matchers.Array()
	if len(all) == 0 {
		return ruleSpec{}, false
	}
	if len(all) > 1 {
		log.Warn("Rule declares multiple matchers - using the first")
	}
	return flatRule(all[0])
}

func parseRulePath(path string) ([]pathSegment, error) {
	if !strings.HasPrefix(path, "$") {
		return nil, errors.Errorf("rule path %q must start with $", path)
	}
	rest := path[1:]
	var segments []pathSegment
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end == -1 {
				end = len(rest)
			}
			if end == 0 {
				return nil, errors.Errorf("empty segment in rule path %q", path)
			}
			segments = append(segments, pathSegment{kind: segKey, key: rest[:end]})
			rest = rest[end:]
		case '[':
			closing := strings.IndexByte(rest, ']')
			if closing == -1 {
				return nil, errors.Errorf("unterminated bracket in rule path %q", path)
			}
			inner := rest[1:closing]
			rest = rest[closing+1:]
			switch {
			case inner == "*":
				segments = append(segments, pathSegment{kind: segStar})
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"'):
				if inner[len(inner)-1] != inner[0] {
					return nil, errors.Errorf("unterminated quote in rule path %q", path)
				}
				segments = append(segments, pathSegment{kind: segKey, key: inner[1 : len(inner)-1]})
			default:
				idx, err := strconv.Atoi(inner)
				if err != nil || idx < 0 {
					return nil, errors.Errorf("invalid index %q in rule path %q", inner, path)
				}
				segments = append(segments, pathSegment{kind: segIndex, index: idx})
			}
		default:
			return nil, errors.Errorf("unexpected character %q in rule path %q", rest[0], path)
		}
	}
	return segments, nil
}

func dropRule(rule parsedRule, reason string) {
	log.WithFields(log.Fields{"rule": rule.path, "reason": reason}).Warn("Dropping matching rule")
}

// bodyRuleResolves checks the rule path against the literal body before
// grafting, so rules dangling off renamed fields are dropped instead of
// silently rewriting the wrong position.
func bodyRuleResolves(segments []pathSegment, body interface{}) bool {
	if body == nil {
		return false
	}
	if len(segments) == 0 {
		return true
	}
	var jp strings.Builder
	jp.WriteString("$")
	for _, seg := range segments {
		switch seg.kind {
		case segKey:
			fmt.Fprintf(&jp, "[%q]", seg.key)
		case segIndex:
			fmt.Fprintf(&jp, "[%d]", seg.index)
		case segStar:
			jp.WriteString("[*]")
		}
	}
	_, err := jsonpath.Get(jp.String(), body)
	return err == nil
}

func wrapMatcher(n match.Node, spec ruleSpec) match.Node {
	switch spec.match {
	case "regex":
		return match.Regex{Pattern: spec.regex, Example: n}
	case "equality":
		return match.Equality{Value: n}
	default:
		if spec.hasMin {
			min := spec.min
			if min < 1 {
				min = 1
			}
			template := match.Node(match.Null{})
			if seq, ok := n.(match.Sequence); ok && len(seq) > 0 {
				template = seq[0]
			}
			return match.EachLike{Template: template, Min: min}
		}
		return match.Type{Example: n}
	}
}

func graft(n match.Node, segments []pathSegment, spec ruleSpec) (match.Node, error) {
	if len(segments) == 0 {
		if spec.hasMin {
			if _, ok := n.(match.Sequence); !ok {
				return nil, errors.New("each-like rule applied to a non-array position")
			}
		}
		return wrapMatcher(n, spec), nil
	}

	seg := segments[0]
	switch seg.kind {
	case segKey:
		mapping, ok := n.(match.Mapping)
		if !ok {
			return nil, errors.Errorf("segment %q applied to a non-object position", seg.key)
		}
		child, ok := mapping[seg.key]
		if !ok {
			return nil, errors.Errorf("key %q not present", seg.key)
		}
		grafted, err := graft(child, segments[1:], spec)
		if err != nil {
			return nil, err
		}
		out := make(match.Mapping, len(mapping))
		for k, v := range mapping {
			out[k] = v
		}
		out[seg.key] = grafted
		return out, nil
	case segIndex:
		seq, ok := n.(match.Sequence)
		if !ok {
			return nil, errors.Errorf("index %d applied to a non-array position", seg.index)
		}
		if seg.index >= len(seq) {
			return nil, errors.Errorf("index %d out of range", seg.index)
		}
		grafted, err := graft(seq[seg.index], segments[1:], spec)
		if err != nil {
			return nil, err
		}
		out := append(match.Sequence(nil), seq...)
		out[seg.index] = grafted
		return out, nil
	case segStar:
		seq, ok := n.(match.Sequence)
		if !ok {
			return nil, errors.New("wildcard applied to a non-array position")
		}
		out := append(match.Sequence(nil), seq...)
		for idx, element := range out {
			grafted, err := graft(element, segments[1:], spec)
			if err != nil {
				return nil, err
			}
			out[idx] = grafted
		}
		return out, nil
	}
	return n, nil
}

func graftMapping(m match.Mapping, rule parsedRule, rest []pathSegment) match.Mapping {
	if len(rest) == 0 {
		dropRule(rule, "rule must name a key")
		return m
	}
	grafted, err := graft(m, rest, rule.spec)
	if err != nil {
		dropRule(rule, err.Error())
		return m
	}
	out, ok := grafted.(match.Mapping)
	if !ok {
		dropRule(rule, "rule would replace the whole section")
		return m
	}
	return out
}
