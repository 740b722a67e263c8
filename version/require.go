package version

import "regexp"

// Result is the outcome of evaluating a dependency's range predicate
// against a baseline version (spec §4.1, §8 property 2).
type Result int

const (
	Met Result = iota
	Unmet
	Malformed
)

func (r Result) String() string {
	switch r {
	case Met:
		return "MET"
	case Unmet:
		return "UNMET"
	default:
		return "MALFORMED"
	}
}

// clauseRE matches one "<op><version>" clause: an operator from
// {<, <=, >, >=} followed by everything up to the next operator (or
// end of string).
var clauseRE = regexp.MustCompile(`(<=|>=|<|>)([^<>]+)`)

// RequireCheck evaluates a dependency's range predicate against a
// baseline version. The language accepts a single clause ("OP
// VERSION") or a compound of exactly two clauses bracketing a range
// ("OP1 V1 OP2 V2"), per spec §4.1. Anything else — including leading
// junk before the first operator, or more than two clauses — is
// Malformed.
func RequireCheck(baseline, require string) Result {
	if len(require) < 2 {
		return Malformed
	}

	matches := clauseRE.FindAllStringSubmatchIndex(require, -1)
	if len(matches) == 0 || len(matches) > 2 {
		return Malformed
	}
	// Reject any byte of `require` not covered by a matched clause —
	// that's what catches leading junk such as "x>=1.0".
	covered := 0
	for _, m := range matches {
		covered += m[1] - m[0]
	}
	if covered != len(require) {
		return Malformed
	}

	for _, m := range matches {
		op := require[m[2]:m[3]]
		val := require[m[4]:m[5]]
		c := Compare(baseline, val)
		var ok bool
		switch op {
		case "<":
			ok = c < 0
		case "<=":
			ok = c <= 0
		case ">":
			ok = c > 0
		case ">=":
			ok = c >= 0
		default:
			return Malformed
		}
		if !ok {
			return Unmet
		}
	}
	return Met
}
