package models

import "strings"

const (
	// MarkerOpen and MarkerClose delimit a placeholder in a template body
	MarkerOpen  = "{{"
	MarkerClose = "}}"
)

// Marker is a delimiter-enclosed placeholder token such as {{sirket_adi}}.
// It is identified by its exact text.
type Marker string

// MarkerFor wraps a bare name in delimiters
func MarkerFor(name string) Marker {
	return Marker(MarkerOpen + name + MarkerClose)
}

// Name returns the marker text without its delimiters
func (m Marker) Name() string {
	s := string(m)
	s = strings.TrimPrefix(s, MarkerOpen)
	s = strings.TrimSuffix(s, MarkerClose)
	return s
}

// Valid reports whether m matches the marker grammar: opening delimiter, one
// or more non-'}' characters, closing delimiter.
func (m Marker) Valid() bool {
	s := string(m)
	if !strings.HasPrefix(s, MarkerOpen) || !strings.HasSuffix(s, MarkerClose) {
		return false
	}
	inner := s[len(MarkerOpen) : len(s)-len(MarkerClose)]
	return inner != "" && !strings.Contains(inner, "}")
}

// Field is a static catalog entry pairing a marker with a human-readable label
type Field struct {
	Tag   Marker `yaml:"tag" json:"tag"`
	Label string `yaml:"label" json:"label"`
	Group string `yaml:"group" json:"group"`
}

// FillValues maps markers to user-supplied replacement text. A marker that
// is absent is rendered as the empty string.
type FillValues map[Marker]string

// Get returns the value for m, or "" when unset
func (v FillValues) Get(m Marker) string {
	if v == nil {
		return ""
	}
	return v[m]
}

// Clone returns an independent copy
func (v FillValues) Clone() FillValues {
	out := make(FillValues, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// FillValuesFromStrings converts a plain string map, as decoded from JSON
// or CLI flags. Keys may be given with or without delimiters.
func FillValuesFromStrings(in map[string]string) FillValues {
	out := make(FillValues, len(in))
	for k, val := range in {
		m := Marker(k)
		if !strings.HasPrefix(k, MarkerOpen) {
			m = MarkerFor(k)
		}
		out[m] = val
	}
	return out
}
