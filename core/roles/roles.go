// Package roles defines the linear role ordering used to gate commands.
//
// A role's rank is its position in the configured list. Rank 0 is the
// implicit baseline: any name that is not in the table resolves to it.
package roles

import (
	"errors"
	"fmt"
	"strings"
)

// Baseline is the rank of players without a known role.
const Baseline = 0

// ErrInvalidTable is returned when a role list cannot form a table.
var ErrInvalidTable = errors.New("roles: invalid role table")

// Table maps role names to ranks. The zero value is an empty table in which
// every name resolves to Baseline.
type Table struct {
	names []string
	ranks map[string]int
}

// New builds a table from names in ascending rank order.
func New(names ...string) (Table, error) {
	t := Table{
		names: make([]string, 0, len(names)),
		ranks: make(map[string]int, len(names)),
	}
	for i, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return Table{}, fmt.Errorf("%w: empty role name at position %d", ErrInvalidTable, i)
		}
		if !validName(name) {
			return Table{}, fmt.Errorf("%w: role %q may only contain letters, digits, '_' and '-'", ErrInvalidTable, name)
		}
		if _, dup := t.ranks[name]; dup {
			return Table{}, fmt.Errorf("%w: duplicate role %q", ErrInvalidTable, name)
		}
		t.ranks[name] = i
		t.names = append(t.names, name)
	}
	return t, nil
}

// validName matches the role tokens an access expression can spell.
func validName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return false
		}
	}
	return true
}

// MustNew is like New but panics on error. Intended for static tables.
func MustNew(names ...string) Table {
	t, err := New(names...)
	if err != nil {
		panic(err)
	}
	return t
}

// Rank returns the rank of name, or Baseline if the name is unknown.
func (t Table) Rank(name string) int {
	if rank, ok := t.ranks[name]; ok {
		return rank
	}
	return Baseline
}

// Lookup returns the rank of name and whether the table contains it.
func (t Table) Lookup(name string) (int, bool) {
	rank, ok := t.ranks[name]
	return rank, ok
}

// Name returns the role at rank.
func (t Table) Name(rank int) (string, bool) {
	if rank < 0 || rank >= len(t.names) {
		return "", false
	}
	return t.names[rank], true
}

// Names returns the role names in rank order.
func (t Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len returns the number of explicit roles.
func (t Table) Len() int {
	return len(t.names)
}
