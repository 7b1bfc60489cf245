package match

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a single divergence between expected and actual trees.
type Kind int

const (
	MissingKey Kind = iota
	TypeMismatch
	RegexMismatch
	ValueMismatch
	LengthMismatch
)

func (k Kind) String() string {
	switch k {
	case MissingKey:
		return "missing key"
	case TypeMismatch:
		return "type mismatch"
	case RegexMismatch:
		return "regex mismatch"
	case ValueMismatch:
		return "value mismatch"
	case LengthMismatch:
		return "length mismatch"
	}
	return "mismatch"
}

// Mismatch is one reported divergence at an exact path. Expected carries the
// expected node (matchers included); Actual is nil when the location is
// absent from the actual tree.
type Mismatch struct {
	Path     Path
	Kind     Kind
	Expected Node
	Actual   Node
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected=%s actual=%s (%s)",
		m.Path, DisplayValue(m.Expected), DisplayValue(m.Actual), m.Kind)
}

// DisplayValue renders a node for diagnostics: literals as compact JSON,
// matchers by their rule, absent values as <none>.
func DisplayValue(n Node) string {
	if n == nil {
		return "<none>"
	}
	if _, ok := n.(Matcher); ok {
		return describeMatcher(n)
	}
	data, err := json.Marshal(ToJSON(n))
	if err != nil {
		return Stringify(n)
	}
	return string(data)
}
