package match

import (
	"fmt"
	"strings"
)

// Segment is one step of a path into a JSON-like tree: either a mapping key
// or a sequence index.
type Segment struct {
	key   string
	index int
	isKey bool
}

// Key returns a mapping-key segment.
func Key(k string) Segment {
	return Segment{key: k, isKey: true}
}

// Index returns a sequence-index segment.
func Index(i int) Segment {
	return Segment{index: i}
}

// Path locates a node within an expected or actual tree, rooted at the
// document ($). Paths are value-like: Key and Index return extended copies so
// sibling branches of a comparison never share backing storage.
type Path []Segment

// RootPath is the document root, rendered as "$".
var RootPath = Path{}

func (p Path) Key(k string) Path {
	return p.extend(Key(k))
}

func (p Path) Index(i int) Path {
	return p.extend(Index(i))
}

func (p Path) extend(s Segment) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, s)
}

// String renders the path in JSON-path style, e.g. $.body.items[2].id.
// Keys that are not plain identifiers are bracket-quoted.
func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('$')
	for _, seg := range p {
		if !seg.isKey {
			fmt.Fprintf(&b, "[%d]", seg.index)
			continue
		}
		if isIdentifier(seg.key) {
			b.WriteByte('.')
			b.WriteString(seg.key)
		} else {
			fmt.Fprintf(&b, "[%q]", seg.key)
		}
	}
	return b.String()
}

// Identifier keys keep the dot form used by peer pact implementations, which
// includes '-' so header names like Content-Type stay readable.
func isIdentifier(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
