package pact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/pactum-oss/pactum/pkg/match"
)

// ProviderState names a precondition the provider must be seeded with
// before the interaction is exercised.
type ProviderState struct {
	Name   string
	Params map[string]interface{}
}

func (s *ProviderState) String() string {
	if s == nil {
		return ""
	}
	if len(s.Params) == 0 {
		return s.Name
	}
	params, _ := json.Marshal(s.Params)
	return fmt.Sprintf("%s %s", s.Name, params)
}

// Request is the expected request half of an interaction. Path may be a
// plain string node or a matcher; query and header values likewise.
type Request struct {
	Method  string
	Path    match.Node
	Query   match.Mapping
	Headers match.Mapping
	Body    match.Node
}

// Response is the expected response half of an interaction.
type Response struct {
	Status  int
	Headers match.Mapping
	Body    match.Node
}

// Interaction is one expected request/response exchange, optionally
// scoped to a provider state. Values are built once and never mutated.
type Interaction struct {
	Description   string
	ProviderState *ProviderState
	Request       Request
	Response      Response

	// raw holds the interaction's original document bytes when it was
	// loaded from disk, so fields this model does not understand survive
	// a load/save cycle untouched.
	raw []byte
}

// Key returns the interaction's identity digest. Two interactions with the
// same description, state name and state params are the same expectation;
// params are encoded canonically so key order never changes the digest.
func (i *Interaction) Key() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(i.Description)
	_, _ = d.Write([]byte{0})
	if i.ProviderState != nil {
		_, _ = d.WriteString(i.ProviderState.Name)
		_, _ = d.Write([]byte{0})
		if len(i.ProviderState.Params) > 0 {
			params, _ := json.Marshal(i.ProviderState.Params)
			_, _ = d.Write(params)
		}
	}
	return d.Sum64()
}

func (i *Interaction) String() string {
	if i.ProviderState == nil {
		return i.Description
	}
	return fmt.Sprintf("%s (given %s)", i.Description, i.ProviderState)
}

// Pact is an ordered set of interactions between one consumer and one
// provider.
type Pact struct {
	Consumer     string
	Provider     string
	Interactions []*Interaction
	SpecVersion  string

	// raw holds the document bytes the pact was loaded from, nil for a
	// pact assembled in memory.
	raw []byte
}

const defaultSpecVersion = "2.0.0"

// NewPact returns an empty pact for the given consumer/provider pair.
func NewPact(consumer, provider string) *Pact {
	return &Pact{
		Consumer:    consumer,
		Provider:    provider,
		SpecVersion: defaultSpecVersion,
	}
}

// Upsert adds the interaction to the pact, replacing any existing
// interaction with the same identity key in place.
func (p *Pact) Upsert(i *Interaction) {
	key := i.Key()
	for n, existing := range p.Interactions {
		if existing.Key() == key {
			p.Interactions[n] = i
			return
		}
	}
	p.Interactions = append(p.Interactions, i)
}

// Find returns the interaction matching the description and, when state is
// non-empty, the provider state name.
func (p *Pact) Find(description, state string) (*Interaction, bool) {
	for _, i := range p.Interactions {
		if i.Description != description {
			continue
		}
		if state != "" && (i.ProviderState == nil || i.ProviderState.Name != state) {
			continue
		}
		return i, true
	}
	return nil, false
}

func (p *Pact) validate() error {
	seen := map[uint64]string{}
	for _, i := range p.Interactions {
		if strings.TrimSpace(i.Description) == "" {
			return errors.New("interaction with empty description")
		}
		key := i.Key()
		if dup, ok := seen[key]; ok {
			return errors.Errorf("duplicate interaction %q", dup)
		}
		seen[key] = i.String()
	}
	return nil
}
