package match

import "regexp"

// Match compares an actual tree against an expected one and returns every
// divergence found. The comparison is driven by the expected tree: mapping
// keys present only in the actual tree are ignored, so a provider may return
// fields the consumer never declared an interest in. Plain sequences require
// equal length and order; EachLike relaxes that to a minimum length with
// every element matched against the template.
//
// Match never mutates its inputs and is safe for concurrent use. Mismatch
// order is deterministic for a given pair of trees.
func Match(expected, actual Node) []Mismatch {
	return MatchAt(RootPath, expected, actual)
}

// MatchAt runs Match with mismatch paths rooted at base instead of $, which
// lets callers scope comparisons into a larger document (e.g. $.body).
func MatchAt(base Path, expected, actual Node) []Mismatch {
	if expected == nil {
		return nil
	}
	return matchNode(base, expected, actual)
}

func matchNode(path Path, expected, actual Node) []Mismatch {
	switch exp := expected.(type) {
	case Equality:
		return matchNode(path, exp.Value, actual)
	case Type:
		return matchType(path, exp, actual)
	case Regex:
		return matchRegex(path, exp, actual)
	case EachLike:
		return matchEachLike(path, exp, actual)
	case Mapping:
		return matchMapping(path, exp, actual)
	case Sequence:
		return matchSequence(path, exp, actual)
	}
	return matchScalar(path, expected, actual)
}

func matchScalar(path Path, expected, actual Node) []Mismatch {
	if actual == nil {
		return []Mismatch{{Path: path, Kind: MissingKey, Expected: expected}}
	}
	switch actual.(type) {
	case Sequence, Mapping:
		return []Mismatch{{Path: path, Kind: TypeMismatch, Expected: expected, Actual: actual}}
	}
	if Equal(expected, actual) {
		return nil
	}
	return []Mismatch{{Path: path, Kind: ValueMismatch, Expected: expected, Actual: actual}}
}

func matchType(path Path, expected Type, actual Node) []Mismatch {
	if actual == nil {
		return []Mismatch{{Path: path, Kind: MissingKey, Expected: expected}}
	}
	if ClassOf(expected.Example) != ClassOf(actual) {
		return []Mismatch{{Path: path, Kind: TypeMismatch, Expected: expected, Actual: actual}}
	}
	return nil
}

func matchRegex(path Path, expected Regex, actual Node) []Mismatch {
	if actual == nil {
		return []Mismatch{{Path: path, Kind: MissingKey, Expected: expected}}
	}
	re, err := regexp.Compile(expected.Pattern)
	if err != nil {
		return []Mismatch{{Path: path, Kind: RegexMismatch, Expected: expected, Actual: actual}}
	}
	if re.MatchString(Stringify(actual)) {
		return nil
	}
	return []Mismatch{{Path: path, Kind: RegexMismatch, Expected: expected, Actual: actual}}
}

func matchEachLike(path Path, expected EachLike, actual Node) []Mismatch {
	if actual == nil {
		return []Mismatch{{Path: path, Kind: MissingKey, Expected: expected}}
	}
	seq, ok := actual.(Sequence)
	if !ok {
		return []Mismatch{{Path: path, Kind: TypeMismatch, Expected: expected, Actual: actual}}
	}

	var mismatches []Mismatch
	if len(seq) < expected.Min {
		mismatches = append(mismatches, Mismatch{Path: path, Kind: LengthMismatch, Expected: expected, Actual: actual})
	}
	for i, el := range seq {
		mismatches = append(mismatches, matchNode(path.Index(i), expected.Template, el)...)
	}
	return mismatches
}

func matchMapping(path Path, expected Mapping, actual Node) []Mismatch {
	if actual == nil {
		return []Mismatch{{Path: path, Kind: MissingKey, Expected: expected}}
	}
	actualMap, ok := actual.(Mapping)
	if !ok {
		return []Mismatch{{Path: path, Kind: TypeMismatch, Expected: expected, Actual: actual}}
	}

	var mismatches []Mismatch
	for _, key := range sortedKeys(expected) {
		value, present := actualMap[key]
		if !present {
			mismatches = append(mismatches, Mismatch{Path: path.Key(key), Kind: MissingKey, Expected: expected[key]})
			continue
		}
		mismatches = append(mismatches, matchNode(path.Key(key), expected[key], value)...)
	}
	return mismatches
}

// Plain sequences are strict: order is significant and lengths must agree.
// On a length divergence the common prefix is still compared so every
// element-level difference surfaces in one pass.
func matchSequence(path Path, expected Sequence, actual Node) []Mismatch {
	if actual == nil {
		return []Mismatch{{Path: path, Kind: MissingKey, Expected: expected}}
	}
	actualSeq, ok := actual.(Sequence)
	if !ok {
		return []Mismatch{{Path: path, Kind: TypeMismatch, Expected: expected, Actual: actual}}
	}

	var mismatches []Mismatch
	if len(expected) != len(actualSeq) {
		mismatches = append(mismatches, Mismatch{Path: path, Kind: LengthMismatch, Expected: expected, Actual: actual})
	}
	limit := len(expected)
	if len(actualSeq) < limit {
		limit = len(actualSeq)
	}
	for i := 0; i < limit; i++ {
		mismatches = append(mismatches, matchNode(path.Index(i), expected[i], actualSeq[i])...)
	}
	return mismatches
}
