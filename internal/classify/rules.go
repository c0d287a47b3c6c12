package classify

import "fmt"

// Rule is one categorical band. A rule with Equals set matches that exact
// value; otherwise it matches the half-open range [Min, Max), where a nil
// bound is open.
type Rule struct {
	Equals *float64 `json:"equals,omitempty" yaml:"equals,omitempty"`
	Min    *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Band   `yaml:",inline"`
}

// Match reports whether v falls in the rule. NaN never matches.
func (r Rule) Match(v float64) bool {
	if r.Equals != nil {
		return v == *r.Equals
	}
	if r.Min != nil && !(v >= *r.Min) {
		return false
	}
	if r.Max != nil && !(v < *r.Max) {
		return false
	}
	return !Missing(v)
}

// Rules is an ordered rule list with a catch-all band used when no rule
// matches, including for missing values.
type Rules struct {
	List     []Rule
	CatchAll Band
}

// NewRules validates and returns a rule set.
func NewRules(list []Rule, catchAll Band) (Rules, error) {
	rs := Rules{List: list, CatchAll: catchAll}
	if err := rs.Validate(); err != nil {
		return Rules{}, err
	}
	return rs, nil
}

// Validate checks that every rule has a colour and a well-formed range.
func (rs Rules) Validate() error {
	if len(rs.List) == 0 {
		return fmt.Errorf("%w: rule list is empty", ErrInvalidScale)
	}
	if rs.CatchAll.Color == "" {
		return fmt.Errorf("%w: catch-all color is required", ErrInvalidScale)
	}
	for i, r := range rs.List {
		if r.Color == "" {
			return fmt.Errorf("%w: rule %d has no color", ErrInvalidScale, i)
		}
		if r.Equals != nil && (r.Min != nil || r.Max != nil) {
			return fmt.Errorf("%w: rule %d mixes equals with a range", ErrInvalidScale, i)
		}
		if r.Equals == nil && r.Min == nil && r.Max == nil {
			return fmt.Errorf("%w: rule %d matches nothing", ErrInvalidScale, i)
		}
		if r.Min != nil && r.Max != nil && !(*r.Min < *r.Max) {
			return fmt.Errorf("%w: rule %d has empty range [%v, %v)", ErrInvalidScale, i, *r.Min, *r.Max)
		}
	}
	return nil
}

// Band returns the first matching rule's band, or the catch-all.
func (rs Rules) Band(v float64) Band {
	for _, r := range rs.List {
		if r.Match(v) {
			return r.Band
		}
	}
	return rs.CatchAll
}

// Classify returns the colour for v.
func (rs Rules) Classify(v float64) string {
	return rs.Band(v).Color
}

// Legend lists the rule bands in order. The catch-all is appended only when
// its colour is not already shown.
func (rs Rules) Legend() []Band {
	items := make([]Band, 0, len(rs.List)+1)
	seen := make(map[string]bool, len(rs.List))
	for _, r := range rs.List {
		items = append(items, r.Band)
		seen[r.Color] = true
	}
	if !seen[rs.CatchAll.Color] {
		items = append(items, rs.CatchAll)
	}
	return items
}
