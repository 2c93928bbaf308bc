package access

import "strings"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokComparator
	tokLogical
	tokRole
)

func (k tokenKind) String() string {
	switch k {
	case tokComparator:
		return "comparator"
	case tokLogical:
		return "logical operator"
	case tokRole:
		return "role name"
	default:
		return "end of expression"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits an expression into tokens. Operator runs are read greedily so
// that "=>" or "&|" surface as a single bad token instead of two good ones.
func lex(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.IndexByte("<>=!", c) >= 0:
			start := i
			for i < len(expr) && strings.IndexByte("<>=!", expr[i]) >= 0 {
				i++
			}
			text := expr[start:i]
			if _, ok := comparators[text]; !ok {
				return nil, newError(expr, start, "unknown comparator %q", text)
			}
			tokens = append(tokens, token{kind: tokComparator, text: text, pos: start})
		case c == '&' || c == '|':
			start := i
			for i < len(expr) && (expr[i] == '&' || expr[i] == '|') {
				i++
			}
			text := expr[start:i]
			if text != "&&" && text != "||" {
				return nil, newError(expr, start, "unknown logical operator %q", text)
			}
			tokens = append(tokens, token{kind: tokLogical, text: text, pos: start})
		case isRoleByte(c):
			start := i
			for i < len(expr) && isRoleByte(expr[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokRole, text: expr[start:i], pos: start})
		default:
			return nil, newError(expr, i, "unexpected character %q", c)
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(expr)}), nil
}

func isRoleByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}
