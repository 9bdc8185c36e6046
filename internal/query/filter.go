package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FilterKind tags the normalized shape of one filter value.
type FilterKind int

const (
	KindScalar FilterKind = iota
	KindContains
	KindDateRange
)

// FilterValue is the tagged union a loose filter payload is normalized into
// before it reaches the compiler: a bare scalar, an array-membership check, or
// an inclusive date range.
type FilterValue struct {
	Kind   FilterKind
	Scalar any
	Elems  []string
	Start  string
	End    string
}

var intLikeRE = regexp.MustCompile(`^-?\d+$`)

// ParseFilterValue normalizes a raw filter value. Maps with a "contains" key
// become membership checks, maps with "start"/"end" become date ranges, and
// every other shape (including unknown map layouts) degrades to a scalar.
func ParseFilterValue(raw any) FilterValue {
	switch v := raw.(type) {
	case map[string]any:
		if elem, ok := v["contains"]; ok {
			return FilterValue{Kind: KindContains, Elems: stringElems(elem)}
		}
		start, hasStart := v["start"]
		end, hasEnd := v["end"]
		if hasStart || hasEnd {
			fv := FilterValue{Kind: KindDateRange}
			if hasStart {
				fv.Start = strings.TrimSpace(toString(start))
			}
			if hasEnd {
				fv.End = strings.TrimSpace(toString(end))
			}
			return fv
		}
		// Unknown dict shape: compare against its rendered form rather
		// than guessing at intent.
		return FilterValue{Kind: KindScalar, Scalar: toString(v)}
	case []any:
		return FilterValue{Kind: KindContains, Elems: stringElems(v)}
	case []string:
		return FilterValue{Kind: KindContains, Elems: v}
	default:
		return FilterValue{Kind: KindScalar, Scalar: raw}
	}
}

// Compile turns one (field, value) pair into a predicate. It is total over
// the three filter shapes plus bare scalars and never errors:
//   - membership values add one contains clause per element
//   - date ranges apply only the bounds that are present and non-empty
//   - integer-like scalars compare numerically
//   - strings of length <= 4 prefix-match, longer strings substring-match
//   - everything else falls back to exact equality
func Compile(field string, value FilterValue) Predicate {
	if !ValidColumn(field) {
		return Predicate{}
	}
	switch value.Kind {
	case KindContains:
		var preds []Predicate
		for _, elem := range value.Elems {
			preds = append(preds, Contains(field, elem))
		}
		return And(preds...)
	case KindDateRange:
		var preds []Predicate
		if value.Start != "" {
			preds = append(preds, Gte(field, value.Start))
		}
		if value.End != "" {
			preds = append(preds, Lte(field, value.End))
		}
		return And(preds...)
	default:
		return compileScalar(field, value.Scalar)
	}
}

// CompileFilters compiles a whole filter map into one conjoined predicate,
// skipping nil and empty-string values before they reach the compiler.
func CompileFilters(filters map[string]any) Predicate {
	var preds []Predicate
	for field, raw := range filters {
		if raw == nil {
			continue
		}
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		preds = append(preds, Compile(field, ParseFilterValue(raw)))
	}
	return And(preds...)
}

func compileScalar(field string, value any) Predicate {
	if IntLike(value) {
		if n, err := strconv.ParseInt(strings.TrimSpace(toString(value)), 10, 64); err == nil {
			return Eq(field, n)
		}
	}
	if s, ok := value.(string); ok {
		v := strings.TrimSpace(s)
		// Short tokens prefix-match to keep result sets bounded; longer
		// free text gets a forgiving substring match.
		if len(v) <= 4 {
			return Like(field, EscapeLike(v)+"%")
		}
		return Like(field, "%"+EscapeLike(v)+"%")
	}
	return Eq(field, value)
}

// IntLike reports whether a value represents a whole number, so equality is
// used instead of pattern matching.
func IntLike(value any) bool {
	switch value.(type) {
	case int, int32, int64:
		return true
	case float32, float64:
		s := toString(value)
		return intLikeRE.MatchString(s)
	}
	return intLikeRE.MatchString(strings.TrimSpace(toString(value)))
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stringElems(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		elems := make([]string, 0, len(v))
		for _, e := range v {
			elems = append(elems, toString(e))
		}
		return elems
	default:
		return []string{toString(raw)}
	}
}
