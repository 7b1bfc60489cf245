package match

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Node is a JSON-like value generalized with embedded match rules. A Node is
// one of Null, Bool, Number, String, Sequence, Mapping, or a Matcher.
type Node interface {
	node()
}

type Null struct{}

type Bool bool

type Number float64

type String string

type Sequence []Node

type Mapping map[string]Node

func (Null) node()     {}
func (Bool) node()     {}
func (Number) node()   {}
func (String) node()   {}
func (Sequence) node() {}
func (Mapping) node()  {}

// Class is the runtime type class of a Node, as used by type matching.
type Class int

const (
	ClassNull Class = iota
	ClassBool
	ClassNumber
	ClassString
	ClassSequence
	ClassMapping
)

func (c Class) String() string {
	switch c {
	case ClassNull:
		return "null"
	case ClassBool:
		return "boolean"
	case ClassNumber:
		return "number"
	case ClassString:
		return "string"
	case ClassSequence:
		return "array"
	case ClassMapping:
		return "object"
	}
	return "unknown"
}

// ClassOf reports the type class of a node. Matchers report the class of
// their rendered example.
func ClassOf(n Node) Class {
	switch n.(type) {
	case Null:
		return ClassNull
	case Bool:
		return ClassBool
	case Number:
		return ClassNumber
	case String:
		return ClassString
	case Sequence:
		return ClassSequence
	case Mapping:
		return ClassMapping
	case Matcher:
		return ClassOf(Render(n))
	}
	return ClassNull
}

// FromJSON converts a decoded JSON value into a Node. Nodes (including
// matchers) pass through unchanged, so matcher nodes can be mixed into plain
// maps and slices when building expectations. Values of other types are
// round-tripped through encoding/json.
func FromJSON(v interface{}) Node {
	switch val := v.(type) {
	case nil:
		return Null{}
	case Node:
		return val
	case bool:
		return Bool(val)
	case float64:
		return Number(val)
	case float32:
		return Number(val)
	case int:
		return Number(val)
	case int32:
		return Number(val)
	case int64:
		return Number(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return String(val.String())
		}
		return Number(f)
	case string:
		return String(val)
	case []interface{}:
		seq := make(Sequence, len(val))
		for i, el := range val {
			seq[i] = FromJSON(el)
		}
		return seq
	case map[string]interface{}:
		m := make(Mapping, len(val))
		for k, el := range val {
			m[k] = FromJSON(el)
		}
		return m
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Null{}
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Null{}
	}
	return FromJSON(decoded)
}

// ToJSON renders a node into a plain decoded-JSON value, with matchers
// replaced by their example values.
func ToJSON(n Node) interface{} {
	switch val := Render(n).(type) {
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Number:
		return float64(val)
	case String:
		return string(val)
	case Sequence:
		out := make([]interface{}, len(val))
		for i, el := range val {
			out[i] = ToJSON(el)
		}
		return out
	case Mapping:
		out := make(map[string]interface{}, len(val))
		for k, el := range val {
			out[k] = ToJSON(el)
		}
		return out
	}
	return nil
}

// Equal reports deep equality of two rendered nodes. Two absent values are
// equal.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	a, b = Render(a), Render(b)
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Sequence:
		bv, ok := b.(Sequence)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Mapping:
		bv, ok := b.(Mapping)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	}
	return false
}

// Stringify returns the literal string form of a rendered node: strings
// unquoted, scalars in their JSON literal form, composites as compact JSON.
func Stringify(n Node) string {
	switch val := Render(n).(type) {
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(val))
	case Number:
		return formatNumber(float64(val))
	case String:
		return string(val)
	default:
		data, err := json.Marshal(ToJSON(val))
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func sortedKeys(m Mapping) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
