// Package types provides common type definitions shared by the pool, the
// visibility engine and the consumer registry. Keeping them here avoids
// import cycles between those packages.
package types

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Element types known to the default rule table. The engine accepts any
// element type; these are the ones the visual surfaces use today.
const (
	ElementMotion = "motion"
	ElementGlyph  = "glyph"
	ElementGrid   = "grid"
)

var elementPartPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ElementKey identifies a visibility flag by element type and name,
// e.g. (motion, blue), (glyph, TKA) or (grid, non_radial_points).
type ElementKey struct {
	// Type is the element category ("motion", "glyph", "grid", ...)
	Type string `json:"type" yaml:"type"`
	// Name is the element identifier within its category
	Name string `json:"name" yaml:"name"`
}

// Key is a shorthand constructor for ElementKey.
func Key(elementType, name string) ElementKey {
	return ElementKey{Type: elementType, Name: name}
}

// String returns the "type:name" form used in configuration files.
func (k ElementKey) String() string {
	return k.Type + ":" + k.Name
}

// Validate reports whether both parts of the key are non-empty identifiers.
func (k ElementKey) Validate() error {
	if !elementPartPattern.MatchString(k.Type) {
		return fmt.Errorf("invalid element type %q", k.Type)
	}
	if !elementPartPattern.MatchString(k.Name) {
		return fmt.Errorf("invalid element name %q", k.Name)
	}

	return nil
}

// ParseElementKey parses the "type:name" form.
func ParseElementKey(s string) (ElementKey, error) {
	elementType, name, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ElementKey{}, fmt.Errorf("element %q must be in type:name form", s)
	}

	key := ElementKey{Type: elementType, Name: name}
	if err := key.Validate(); err != nil {
		return ElementKey{}, err
	}

	return key, nil
}

// SortKeys orders keys by type then name so output and event order are stable.
func SortKeys(keys []ElementKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Name < keys[j].Name
	})
}

// DependencyRule gates an element's effective visibility on a set of
// prerequisite elements. All prerequisites must be effectively visible for
// the element's effective value to equal its base value.
type DependencyRule struct {
	Element  ElementKey   `json:"element" yaml:"element"`
	Requires []ElementKey `json:"requires" yaml:"requires"`
}

// VisibilityChangeEvent is produced once per element whose effective value
// changed as a direct or cascading result of a flag write.
type VisibilityChangeEvent struct {
	Element ElementKey `json:"element" yaml:"element"`
	Visible bool       `json:"visible" yaml:"visible"`
}

// String renders the event as "type:name=bool".
func (e VisibilityChangeEvent) String() string {
	return fmt.Sprintf("%s=%t", e.Element, e.Visible)
}
