// Package placeholder finds placeholder markers in template bodies and maps
// them to human-readable labels.
package placeholder

import (
	"regexp"

	"github.com/dpshade/pocket-docs/internal/models"
)

// markerPattern is the marker grammar: "{{", one or more non-'}' characters, "}}".
var markerPattern = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Span is the byte range of one marker occurrence in a body
type Span struct {
	Start  int
	End    int
	Marker models.Marker
}

// Extract returns the distinct markers in body in first-occurrence order.
// A body without markers yields an empty, non-nil slice.
func Extract(body string) []models.Marker {
	found := markerPattern.FindAllString(body, -1)
	seen := make(map[string]struct{}, len(found))
	markers := make([]models.Marker, 0, len(found))
	for _, m := range found {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		markers = append(markers, models.Marker(m))
	}
	return markers
}

// Spans returns every marker occurrence in body, left to right and
// non-overlapping.
func Spans(body string) []Span {
	locs := markerPattern.FindAllStringIndex(body, -1)
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, Span{
			Start:  loc[0],
			End:    loc[1],
			Marker: models.Marker(body[loc[0]:loc[1]]),
		})
	}
	return spans
}

// Count returns the number of marker occurrences, duplicates included
func Count(body string) int {
	return len(markerPattern.FindAllStringIndex(body, -1))
}
