package renderer

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/placeholder"
)

// Decorator turns a marker's fill-in value into the text that replaces the
// marker in the output.
type Decorator func(marker models.Marker, value string) string

// Plain inserts the value as escaped text, used for export
func Plain(_ models.Marker, value string) string {
	return html.EscapeString(value)
}

// Emphasis wraps the escaped value so the preview shows what was filled in
func Emphasis(_ models.Marker, value string) string {
	return `<strong class="marker-value">` + html.EscapeString(value) + `</strong>`
}

// Substitute replaces every marker occurrence in body with the decorated
// value. The body is scanned once for exact marker tokens and the output is
// never re-scanned, so values are always literal text.
func Substitute(body string, values models.FillValues, decorate Decorator) string {
	if decorate == nil {
		decorate = Plain
	}

	spans := placeholder.Spans(body)
	if len(spans) == 0 {
		return body
	}

	var b strings.Builder
	b.Grow(len(body))
	last := 0
	for _, s := range spans {
		b.WriteString(body[last:s.Start])
		b.WriteString(decorate(s.Marker, values.Get(s.Marker)))
		last = s.End
	}
	b.WriteString(body[last:])
	return b.String()
}

// Renderer fills a single template
type Renderer struct {
	template *models.Template
	markers  []models.Marker
}

// NewRenderer creates a new renderer instance
func NewRenderer(tmpl *models.Template) *Renderer {
	return &Renderer{
		template: tmpl,
		markers:  placeholder.Extract(tmpl.Body),
	}
}

// Markers returns the distinct markers of the template body
func (r *Renderer) Markers() []models.Marker {
	out := make([]models.Marker, len(r.markers))
	copy(out, r.markers)
	return out
}

// Missing returns the markers that have no non-empty value
func (r *Renderer) Missing(values models.FillValues) []models.Marker {
	var missing []models.Marker
	for _, m := range r.markers {
		if strings.TrimSpace(values.Get(m)) == "" {
			missing = append(missing, m)
		}
	}
	return missing
}

// RenderPreview renders the body with filled values emphasised
func (r *Renderer) RenderPreview(values models.FillValues) string {
	return Substitute(r.template.Body, values, Emphasis)
}

// RenderExport renders the body with plain values. A body without markers
// is returned unchanged.
func (r *Renderer) RenderExport(values models.FillValues) string {
	return Substitute(r.template.Body, values, Plain)
}

// Sentinels bracket values so they survive tag stripping and can be styled
// afterwards. Both are in the Unicode private use area.
const (
	valueStart = "\uE000"
	valueEnd   = "\uE001"
)

var (
	blockEndPattern = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|table|ul|ol)>|<br\s*/?>`)
	blankLines      = regexp.MustCompile(`\n{3,}`)

	stripOnce   sync.Once
	stripPolicy *bluemonday.Policy
)

func textPolicy() *bluemonday.Policy {
	stripOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()
	})
	return stripPolicy
}

// RenderTerminal renders the filled body as plain text for a terminal, with
// every filled value rendered through highlight.
func (r *Renderer) RenderTerminal(values models.FillValues, highlight lipgloss.Style) string {
	marked := Substitute(r.template.Body, values, func(_ models.Marker, value string) string {
		return valueStart + html.EscapeString(value) + valueEnd
	})

	marked = blockEndPattern.ReplaceAllStringFunc(marked, func(tag string) string {
		return tag + "\n"
	})
	text := html.UnescapeString(textPolicy().Sanitize(marked))
	text = blankLines.ReplaceAllString(text, "\n\n")

	var b strings.Builder
	for {
		start := strings.Index(text, valueStart)
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.Index(text[start:], valueEnd)
		if end < 0 {
			b.WriteString(strings.ReplaceAll(text, valueStart, ""))
			break
		}
		end += start
		b.WriteString(text[:start])
		b.WriteString(highlight.Render(text[start+len(valueStart) : end]))
		text = text[end+len(valueEnd):]
	}

	return strings.TrimSpace(b.String())
}

// Document is the JSON shape of a rendered template
type Document struct {
	TemplateID string          `json:"template_id"`
	Title      string          `json:"title"`
	Markers    []models.Marker `json:"markers"`
	Missing    []models.Marker `json:"missing,omitempty"`
	HTML       string          `json:"html"`
}

// RenderDocument returns the filled preview as a Document
func (r *Renderer) RenderDocument(values models.FillValues, decorate Decorator) Document {
	return Document{
		TemplateID: r.template.ID,
		Title:      r.template.Title,
		Markers:    r.Markers(),
		Missing:    r.Missing(values),
		HTML:       Substitute(r.template.Body, values, decorate),
	}
}

// RenderJSON renders the filled preview as indented JSON
func (r *Renderer) RenderJSON(values models.FillValues) (string, error) {
	doc := r.RenderDocument(values, Emphasis)

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	return string(jsonBytes), nil
}
