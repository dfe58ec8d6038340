package mapview

import "slices"

// Filter restricts which features of a layer are drawn. The zero value
// matches every feature.
type Filter struct {
	Property  string   `json:"property,omitempty"`
	Values    []string `json:"values,omitempty"`
	MatchNone bool     `json:"match_none,omitempty"`
}

// AllowList matches features whose property is one of values. An empty list
// matches nothing.
func AllowList(property string, values []string) Filter {
	if len(values) == 0 {
		return MatchNothing()
	}
	return Filter{Property: property, Values: slices.Clone(values)}
}

// MatchNothing hides every feature.
func MatchNothing() Filter {
	return Filter{MatchNone: true}
}

// Matches evaluates the filter against a feature's properties.
func (f Filter) Matches(props map[string]any) bool {
	if f.MatchNone {
		return false
	}
	if f.Property == "" {
		return true
	}
	v, ok := props[f.Property].(string)
	return ok && slices.Contains(f.Values, v)
}

// Expression renders the filter in the style expression form map
// engines accept, e.g. ["in", ["get", "apn"], ["literal", [...]]].
func (f Filter) Expression() []any {
	if f.MatchNone {
		return []any{"boolean", false}
	}
	if f.Property == "" {
		return []any{"boolean", true}
	}
	vals := make([]any, len(f.Values))
	for i, v := range f.Values {
		vals[i] = v
	}
	return []any{"in", []any{"get", f.Property}, []any{"literal", vals}}
}
