package match

import (
	"fmt"

	"github.com/pkg/errors"
)

// Matcher is a node that replaces literal equality with a rule at its
// position in the expected tree. Every matcher carries an example value used
// when the tree is rendered into a literal request or response.
type Matcher interface {
	Node
	matcher()
}

// Equality matches the actual value by deep equality, exactly like a plain
// literal node.
type Equality struct {
	Value Node
}

// Type matches any actual value whose type class equals the example's class.
type Type struct {
	Example Node
}

// Regex matches when the actual value, stringified, satisfies Pattern.
type Regex struct {
	Pattern string
	Example Node
}

// EachLike matches a sequence of at least Min elements, each of which must
// independently match Template.
type EachLike struct {
	Template Node
	Min      int
}

func (Equality) node() {}
func (Type) node()     {}
func (Regex) node()    {}
func (EachLike) node() {}

func (Equality) matcher() {}
func (Type) matcher()     {}
func (Regex) matcher()    {}
func (EachLike) matcher() {}

// Exactly wraps a literal value in an explicit equality rule.
func Exactly(value interface{}) Node {
	return Equality{Value: FromJSON(value)}
}

// Like matches on the type class of example rather than its value.
func Like(example interface{}) Node {
	return Type{Example: FromJSON(example)}
}

// Term matches the stringified actual value against a regular expression,
// with example as the literal used when rendering.
func Term(example interface{}, pattern string) Node {
	return Regex{Pattern: pattern, Example: FromJSON(example)}
}

// Each expects a sequence of at least min elements each matching template.
// A minimum below one is raised to one.
func Each(template interface{}, min int) Node {
	if min < 1 {
		min = 1
	}
	return EachLike{Template: FromJSON(template), Min: min}
}

// Render produces the literal tree for a node, replacing every matcher with
// its example value. An EachLike renders as max(1, Min) copies of its
// rendered template.
func Render(n Node) Node {
	switch val := n.(type) {
	case Equality:
		return Render(val.Value)
	case Type:
		return Render(val.Example)
	case Regex:
		return Render(val.Example)
	case EachLike:
		count := val.Min
		if count < 1 {
			count = 1
		}
		seq := make(Sequence, count)
		element := Render(val.Template)
		for i := range seq {
			seq[i] = element
		}
		return seq
	case Sequence:
		seq := make(Sequence, len(val))
		for i, el := range val {
			seq[i] = Render(el)
		}
		return seq
	case Mapping:
		m := make(Mapping, len(val))
		for k, el := range val {
			m[k] = Render(el)
		}
		return m
	}
	return n
}

// Validate checks that every matcher example in the tree satisfies its own
// rule, by matching the tree against its own rendering. A regex example that
// does not satisfy its pattern, or an each-like template whose example does
// not match the template, fails here rather than at request time.
func Validate(n Node) error {
	if n == nil {
		return nil
	}
	mismatches := Match(n, Render(n))
	if len(mismatches) == 0 {
		return nil
	}
	return errors.Errorf("matcher example does not satisfy its own rule: %s", mismatches[0])
}

func describeMatcher(n Node) string {
	switch val := n.(type) {
	case Equality:
		return Stringify(val.Value)
	case Type:
		return fmt.Sprintf("type(%s)", ClassOf(val.Example))
	case Regex:
		return fmt.Sprintf("regex(%s)", val.Pattern)
	case EachLike:
		return fmt.Sprintf("eachLike(min=%d)", val.Min)
	}
	return ""
}
