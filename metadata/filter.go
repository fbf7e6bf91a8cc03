package metadata

import "strings"

// Operator identifies a filter comparison.
type Operator int

const (
	// OpEqual matches documents whose value equals the filter value.
	OpEqual Operator = iota

	// OpNotEqual matches documents whose value differs from the filter value.
	OpNotEqual

	// OpIn matches documents whose value is any of the filter values.
	OpIn

	// OpContains matches string values containing the filter value as a
	// substring.
	OpContains
)

// Filter is a single predicate over one metadata key.
type Filter struct {
	Key      string
	Operator Operator
	Value    any
	Values   []any // used by OpIn
}

// Eq returns an equality filter.
func Eq(key string, value any) Filter {
	return Filter{Key: key, Operator: OpEqual, Value: value}
}

// Ne returns an inequality filter.
func Ne(key string, value any) Filter {
	return Filter{Key: key, Operator: OpNotEqual, Value: value}
}

// In returns a membership filter.
func In(key string, values ...any) Filter {
	return Filter{Key: key, Operator: OpIn, Values: values}
}

// Contains returns a substring filter for string values.
func Contains(key string, substr string) Filter {
	return Filter{Key: key, Operator: OpContains, Value: substr}
}

// Matches reports whether the document satisfies this filter. A missing key
// never matches, including for OpNotEqual.
func (f Filter) Matches(doc Metadata) bool {
	value, ok := doc[f.Key]
	if !ok {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return equal(value, f.Value)
	case OpNotEqual:
		return !equal(value, f.Value)
	case OpIn:
		for _, v := range f.Values {
			if equal(value, v) {
				return true
			}
		}
		return false
	case OpContains:
		s, sok := value.(string)
		sub, subok := f.Value.(string)
		return sok && subok && strings.Contains(s, sub)
	default:
		return false
	}
}

// FilterSet is the conjunction of multiple filters.
type FilterSet struct {
	Filters []Filter
}

// Matches reports whether the document satisfies every filter in the set.
// The empty set matches everything.
func (fs FilterSet) Matches(doc Metadata) bool {
	for _, f := range fs.Filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

// equal compares metadata values. Numeric values compare by float64 value so
// JSON round-trips (which decode numbers as float64) keep matching ints.
func equal(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
