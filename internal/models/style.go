// Package models provides the shared type definitions for editor actions,
// code diff requests and code diffs.
package models

// StyleChangeType distinguishes ordinary CSS values from custom theme values.
type StyleChangeType string

const (
	StyleChangeValue  StyleChangeType = "value"
	StyleChangeCustom StyleChangeType = "custom"
)

// StyleChange is a single CSS property change.
type StyleChange struct {
	Value string          `json:"value" yaml:"value"`
	Type  StyleChangeType `json:"type" yaml:"type"`
}

// IsCustom reports whether the value is a theme token rather than raw CSS.
func (s StyleChange) IsCustom() bool {
	return s.Type == StyleChangeCustom
}

// Change holds the before and after values of an edit.
type Change[T any] struct {
	Original T `json:"original" yaml:"original"`
	Updated  T `json:"updated" yaml:"updated"`
}

// Reverse swaps the original and updated values.
func (c Change[T]) Reverse() Change[T] {
	return Change[T]{Original: c.Updated, Updated: c.Original}
}

// StyleMap maps a CSS property (camelCase or kebab-case) to its change.
type StyleMap map[string]StyleChange

// Clone returns a shallow copy of the map.
func (m StyleMap) Clone() StyleMap {
	if m == nil {
		return nil
	}
	out := make(StyleMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
