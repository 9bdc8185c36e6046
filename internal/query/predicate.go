// Package query compiles loosely-typed filter maps into safe, composable SQL
// predicates. Filter values are normalized into a small tagged union before
// compilation; malformed shapes degrade to the safest applicable predicate
// instead of erroring.
package query

import (
	"regexp"
	"strings"
)

var columnNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidColumn reports whether a caller-supplied field name is safe to splice
// into a statement. Filter maps carry column names, never SQL, and this is
// where that invariant is enforced.
func ValidColumn(name string) bool {
	return columnNameRE.MatchString(name)
}

// Predicate is a rendered SQL condition with its bound arguments. The zero
// value means "no restriction".
type Predicate struct {
	expr string
	args []any
}

// NewPredicate builds a predicate from a raw condition. The expression must
// use placeholder parameters for every value.
func NewPredicate(expr string, args ...any) Predicate {
	return Predicate{expr: expr, args: args}
}

// IsZero reports whether the predicate restricts nothing.
func (p Predicate) IsZero() bool { return p.expr == "" }

// SQL returns the condition text, or "" for the unrestricted predicate.
func (p Predicate) SQL() string { return p.expr }

// Args returns the bound arguments in placeholder order.
func (p Predicate) Args() []any { return p.args }

// Where renders the predicate as a WHERE clause, or "" when unrestricted.
func (p Predicate) Where() string {
	if p.IsZero() {
		return ""
	}
	return " WHERE " + p.expr
}

// Eq matches a column exactly.
func Eq(field string, value any) Predicate {
	if !ValidColumn(field) {
		return Predicate{}
	}
	return Predicate{expr: field + " = ?", args: []any{value}}
}

// Gte matches column >= value.
func Gte(field string, value any) Predicate {
	if !ValidColumn(field) {
		return Predicate{}
	}
	return Predicate{expr: field + " >= ?", args: []any{value}}
}

// Lte matches column <= value.
func Lte(field string, value any) Predicate {
	if !ValidColumn(field) {
		return Predicate{}
	}
	return Predicate{expr: field + " <= ?", args: []any{value}}
}

// likeEscape is the LIKE escape character. sqlite has no default escape
// character and mysql's default backslash collides with its string syntax,
// so every LIKE predicate declares this one explicitly.
const likeEscape = "|"

// Like matches a column against a LIKE pattern. The pattern is passed through
// as given; callers escape user input with EscapeLike first.
func Like(field, pattern string) Predicate {
	if !ValidColumn(field) {
		return Predicate{}
	}
	return Predicate{expr: field + " LIKE ? ESCAPE '" + likeEscape + "'", args: []any{pattern}}
}

// Contains matches one element of a JSON-encoded string array column. Array
// columns are stored as JSON text, so membership is a match on the quoted
// element.
func Contains(field, elem string) Predicate {
	if !ValidColumn(field) {
		return Predicate{}
	}
	return Like(field, "%\""+EscapeLike(elem)+"\"%")
}

// EscapeLike neutralizes LIKE metacharacters in user-supplied text, using the
// escape character every Like predicate declares.
func EscapeLike(s string) string {
	s = strings.ReplaceAll(s, likeEscape, likeEscape+likeEscape)
	s = strings.ReplaceAll(s, "%", likeEscape+"%")
	s = strings.ReplaceAll(s, "_", likeEscape+"_")
	return s
}

// And conjoins predicates, skipping unrestricted ones.
func And(preds ...Predicate) Predicate {
	return combine(" AND ", preds)
}

// Or disjoins predicates, skipping unrestricted ones.
func Or(preds ...Predicate) Predicate {
	return combine(" OR ", preds)
}

func combine(sep string, preds []Predicate) Predicate {
	var parts []string
	var args []any
	for _, p := range preds {
		if p.IsZero() {
			continue
		}
		parts = append(parts, p.expr)
		args = append(args, p.args...)
	}
	switch len(parts) {
	case 0:
		return Predicate{}
	case 1:
		return Predicate{expr: parts[0], args: args}
	}
	for i, part := range parts {
		parts[i] = "(" + part + ")"
	}
	return Predicate{expr: strings.Join(parts, sep), args: args}
}
