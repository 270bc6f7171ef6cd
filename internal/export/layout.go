package export

import (
	"fmt"
	"strings"
)

// Paper is a named sheet size in inches
type Paper struct {
	Name   string
	Width  float64
	Height float64
}

var papers = map[string]Paper{
	"a4":     {Name: "a4", Width: 8.27, Height: 11.69},
	"a5":     {Name: "a5", Width: 5.83, Height: 8.27},
	"letter": {Name: "letter", Width: 8.5, Height: 11},
	"legal":  {Name: "legal", Width: 8.5, Height: 14},
}

// LookupPaper returns the paper size for a case-insensitive name
func LookupPaper(name string) (Paper, error) {
	p, ok := papers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Paper{}, fmt.Errorf("unknown paper size %q", name)
	}
	return p, nil
}

// PageLayout holds the fixed page settings handed to the PDF renderer.
// These are configuration constants and are never computed from content.
type PageLayout struct {
	Paper           Paper
	Landscape       bool
	MarginIn        float64
	Scale           float64
	PrintBackground bool

	// ImageQuality and RasterScale apply to renderers that rasterize the
	// page before building the PDF.
	ImageQuality float64
	RasterScale  float64
}

// DefaultLayout is A4 portrait with one inch margins
func DefaultLayout() PageLayout {
	return PageLayout{
		Paper:           papers["a4"],
		Landscape:       false,
		MarginIn:        1,
		Scale:           1,
		PrintBackground: true,
		ImageQuality:    0.98,
		RasterScale:     2,
	}
}

// NewLayout builds a layout from configuration values. Empty values keep
// the defaults.
func NewLayout(paper, orientation string, marginIn float64) (PageLayout, error) {
	layout := DefaultLayout()

	if paper != "" {
		p, err := LookupPaper(paper)
		if err != nil {
			return layout, err
		}
		layout.Paper = p
	}

	switch strings.ToLower(strings.TrimSpace(orientation)) {
	case "", "portrait":
		layout.Landscape = false
	case "landscape":
		layout.Landscape = true
	default:
		return layout, fmt.Errorf("unknown orientation %q", orientation)
	}

	if marginIn < 0 {
		return layout, fmt.Errorf("margin must not be negative, got %v", marginIn)
	}
	if marginIn > 0 {
		layout.MarginIn = marginIn
	}

	if 2*layout.MarginIn >= layout.Width() || 2*layout.MarginIn >= layout.Height() {
		return layout, fmt.Errorf("margin %vin leaves no printable area on %s", layout.MarginIn, layout.Paper.Name)
	}

	return layout, nil
}

// Width is the sheet width in inches after orientation
func (l PageLayout) Width() float64 {
	if l.Landscape {
		return l.Paper.Height
	}
	return l.Paper.Width
}

// Height is the sheet height in inches after orientation
func (l PageLayout) Height() float64 {
	if l.Landscape {
		return l.Paper.Width
	}
	return l.Paper.Height
}

// CSSPageSize returns the value for an @page size declaration
func (l PageLayout) CSSPageSize() string {
	orientation := "portrait"
	if l.Landscape {
		orientation = "landscape"
	}
	return l.Paper.Name + " " + orientation
}
