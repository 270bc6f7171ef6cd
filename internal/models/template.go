package models

import (
	"fmt"
	"strings"
	"time"
)

// Category is the closed set of document kinds a template can belong to
type Category string

const (
	CategoryContract       Category = "contract"
	CategoryPromissoryNote Category = "promissory_note"
	CategoryReport         Category = "report"
)

// Categories lists every valid category in display order
func Categories() []Category {
	return []Category{CategoryContract, CategoryPromissoryNote, CategoryReport}
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryContract, CategoryPromissoryNote, CategoryReport:
		return true
	}
	return false
}

// Label returns the display name used in the CRM
func (c Category) Label() string {
	switch c {
	case CategoryContract:
		return "Sözleşme"
	case CategoryPromissoryNote:
		return "Senet"
	case CategoryReport:
		return "Rapor"
	default:
		return string(c)
	}
}

// ParseCategory accepts both API values and the legacy form codes
// (SOZLESME, SENET, RAPOR).
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contract", "sozlesme":
		return CategoryContract, nil
	case "promissory_note", "senet":
		return CategoryPromissoryNote, nil
	case "report", "rapor":
		return CategoryReport, nil
	}
	return "", fmt.Errorf("unknown template category %q", s)
}

// Template represents a CRM document template with placeholder markers in its body
type Template struct {
	// Frontmatter fields
	ID           string    `yaml:"id" json:"id"`
	Title        string    `yaml:"title" json:"title"`
	Category     Category  `yaml:"category" json:"template_type"`
	Placeholders []Marker  `yaml:"placeholders,omitempty" json:"placeholders,omitempty"`
	UsageCount   int       `yaml:"usage_count" json:"usage_count"`
	CreatedAt    time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time `yaml:"updated_at" json:"updated_at"`

	// Content fields
	Body     string `yaml:"-" json:"content_html"` // Raw HTML body
	FilePath string `yaml:"-" json:"-"`            // Path to the cache file
}

// FilterValue returns the value used for filtering in lists
func (t *Template) FilterValue() string {
	return cleanString(t.Title + " " + t.Category.Label())
}

// Name returns the title, falling back to the ID
func (t *Template) Name() string {
	if t.Title != "" {
		return cleanString(t.Title)
	}
	return cleanString(t.ID)
}

// Summary is the one-line description shown under the title in lists
func (t *Template) Summary() string {
	parts := []string{t.Category.Label()}

	if t.UsageCount > 0 {
		parts = append(parts, fmt.Sprintf("used %d×", t.UsageCount))
	}

	if !t.UpdatedAt.IsZero() {
		parts = append(parts, "Last edited: "+t.UpdatedAt.Format("2006-01-02 15:04"))
	}

	result := strings.Join(parts, " • ")

	// Leave space for list indicator and margins
	maxTotalLength := 100
	if len([]rune(result)) > maxTotalLength {
		result = string([]rune(result)[:maxTotalLength-3]) + "..."
	}

	return cleanString(result)
}

// cleanString removes problematic characters that might cause rendering issues
func cleanString(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(' ')
		} else if r >= 32 && r != 127 { // Keep printable ASCII + unicode
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
