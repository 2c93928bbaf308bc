// Package access compiles role-gating expressions into rank predicates.
//
// An expression is a flat sequence of comparison terms joined by && or ||:
//
//	>=admin
//	>=player && <admin
//	==guest || >=owner
//
// Each term compares the caller's rank against the rank of the named role.
// Terms fold strictly left to right; there is no precedence and no grouping,
// so "a || b && c" means "(a || b) && c". Role names are resolved once at
// compile time and the resulting predicate only does integer comparisons.
package access

import (
	"strings"

	"github.com/artpar/roomkit/core/roles"
)

// Predicate reports whether a caller with the given rank is allowed.
type Predicate func(rank int) bool

// Allow is the predicate of an empty expression.
func Allow(int) bool { return true }

var comparators = map[string]func(have, want int) bool{
	">=": func(have, want int) bool { return have >= want },
	"<=": func(have, want int) bool { return have <= want },
	">":  func(have, want int) bool { return have > want },
	"<":  func(have, want int) bool { return have < want },
	"==": func(have, want int) bool { return have == want },
	"!=": func(have, want int) bool { return have != want },
}

type term struct {
	cmp  func(have, want int) bool
	want int
}

// Compile parses expr against table. An empty or blank expression compiles to
// Allow. Unknown comparators, unknown roles and malformed sequences return an
// *ExpressionError.
func Compile(expr string, table roles.Table) (Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return Allow, nil
	}

	tokens, err := lex(expr)
	if err != nil {
		return nil, err
	}

	var (
		terms []term
		ands  []bool // ands[i] joins terms[i] and terms[i+1]
	)
	i := 0
	for {
		t, next, err := parseTerm(expr, tokens, i, table)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
		i = next

		tok := tokens[i]
		switch tok.kind {
		case tokEOF:
			return fold(terms, ands), nil
		case tokLogical:
			if tokens[i+1].kind == tokEOF {
				return nil, newError(expr, tok.pos, "dangling operator %q", tok.text)
			}
			ands = append(ands, tok.text == "&&")
			i++
		default:
			return nil, newError(expr, tok.pos, "expected && or || before %s %q", tok.kind, tok.text)
		}
	}
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string, table roles.Table) Predicate {
	p, err := Compile(expr, table)
	if err != nil {
		panic(err)
	}
	return p
}

func parseTerm(expr string, tokens []token, i int, table roles.Table) (term, int, error) {
	tok := tokens[i]
	switch tok.kind {
	case tokComparator:
	case tokEOF:
		return term{}, i, newError(expr, tok.pos, "empty term")
	default:
		return term{}, i, newError(expr, tok.pos, "expected comparator, found %s %q", tok.kind, tok.text)
	}

	role := tokens[i+1]
	if role.kind != tokRole {
		return term{}, i, newError(expr, role.pos, "comparator %q is not followed by a role name", tok.text)
	}
	rank, ok := table.Lookup(role.text)
	if !ok {
		return term{}, i, newError(expr, role.pos, "unknown role %q", role.text)
	}
	return term{cmp: comparators[tok.text], want: rank}, i + 2, nil
}

func fold(terms []term, ands []bool) Predicate {
	if len(terms) == 1 {
		t := terms[0]
		return func(rank int) bool { return t.cmp(rank, t.want) }
	}
	return func(rank int) bool {
		result := terms[0].cmp(rank, terms[0].want)
		for i, and := range ands {
			next := terms[i+1].cmp(rank, terms[i+1].want)
			if and {
				result = result && next
			} else {
				result = result || next
			}
		}
		return result
	}
}
