package renderer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/placeholder"
)

func TestSubstituteScenario(t *testing.T) {
	body := "<p>{{kisi_tam_adi}} signs on {{tarih_bugun}}</p>"
	values := models.FillValues{
		"{{kisi_tam_adi}}": "Ahmet Yılmaz",
		"{{tarih_bugun}}":  "01.01.2025",
	}

	got := Substitute(body, values, Plain)
	want := "<p>Ahmet Yılmaz signs on 01.01.2025</p>"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Substitute() mismatch (-want +got):\n%s", diff)
	}

	preview := Substitute(body, values, Emphasis)
	wantPreview := `<p><strong class="marker-value">Ahmet Yılmaz</strong> signs on <strong class="marker-value">01.01.2025</strong></p>`
	if diff := cmp.Diff(wantPreview, preview); diff != "" {
		t.Errorf("Substitute(Emphasis) mismatch (-want +got):\n%s", diff)
	}
}

func TestSubstituteReplacesEveryOccurrence(t *testing.T) {
	body := "{{a}} and {{a}} and {{a}}"
	got := Substitute(body, models.FillValues{"{{a}}": "x"}, Plain)
	assert.Equal(t, "x and x and x", got)
}

func TestSubstituteEmptyValues(t *testing.T) {
	body := "<p>Sayın {{kisi_tam_adi}},</p><p>{{sirket_adi}} adına</p>"

	got := Substitute(body, nil, Plain)
	assert.Equal(t, "<p>Sayın ,</p><p> adına</p>", got)

	// Only marker spans change: removing the markers from the source gives
	// the same text.
	stripped := body
	for _, m := range placeholder.Extract(body) {
		stripped = strings.ReplaceAll(stripped, string(m), "")
	}
	assert.Equal(t, stripped, got)
}

func TestSubstituteDoesNotConsumeSource(t *testing.T) {
	body := "{{x}} {{y}} {{x}}"
	before := placeholder.Extract(body)
	_ = Substitute(body, models.FillValues{"{{x}}": "1", "{{y}}": "2"}, Emphasis)
	assert.Equal(t, before, placeholder.Extract(body))
}

func TestSubstituteSubstringMarkers(t *testing.T) {
	body := "[{{a}}][{{ab}}][{{a}}]"
	values := models.FillValues{"{{a}}": "short", "{{ab}}": "long"}
	assert.Equal(t, "[short][long][short]", Substitute(body, values, Plain))
}

func TestSubstituteValuesAreLiteral(t *testing.T) {
	body := "{{a}} {{b}}"
	values := models.FillValues{"{{a}}": "{{b}}", "{{b}}": "B"}
	assert.Equal(t, "{{b}} B", Substitute(body, values, Plain))
}

func TestSubstituteEscapesValues(t *testing.T) {
	body := "<p>{{a}}</p>"
	values := models.FillValues{"{{a}}": `<script>alert("x")</script> & co`}

	assert.Equal(t, `<p>&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; &amp; co</p>`, Substitute(body, values, Plain))
}

func TestRenderExportWithoutMarkersIsIdentical(t *testing.T) {
	body := "<h1>Kira Sözleşmesi</h1>\n<p>Taraflar & şartlar {not a marker} {{}}</p>"
	r := NewRenderer(&models.Template{ID: "t1", Body: body})

	assert.Empty(t, r.Markers())
	assert.Equal(t, body, r.RenderExport(nil))
	assert.Equal(t, body, r.RenderExport(models.FillValues{"{{x}}": "y"}))
}

func TestRendererMissing(t *testing.T) {
	r := NewRenderer(&models.Template{Body: "{{a}} {{b}} {{c}}"})
	missing := r.Missing(models.FillValues{"{{a}}": "1", "{{b}}": "   "})
	assert.Equal(t, []models.Marker{"{{b}}", "{{c}}"}, missing)
}

func TestRenderTerminal(t *testing.T) {
	r := NewRenderer(&models.Template{
		Body: "<h1>Senet</h1><p>Borçlu: {{kisi_tam_adi}}</p><p>Tutar &amp; faiz</p>",
	})

	got := r.RenderTerminal(models.FillValues{"{{kisi_tam_adi}}": "Ayşe <Kaya>"}, lipgloss.NewStyle())
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Senet", lines[0])
	assert.Contains(t, lines[1], "Ayşe <Kaya>")
	assert.Equal(t, "Tutar & faiz", lines[2])
	assert.NotContains(t, got, "<p>")
	assert.NotContains(t, got, valueStart)
}

func TestRenderJSON(t *testing.T) {
	r := NewRenderer(&models.Template{
		ID:    "6f1c1d3e-1f0a-4c55-9d0a-2d7f5c1b9e10",
		Title: "Hizmet Sözleşmesi",
		Body:  "<p>{{sirket_adi}} / {{sube_adi}}</p>",
	})

	out, err := r.RenderJSON(models.FillValues{"{{sirket_adi}}": "Acme"})
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "6f1c1d3e-1f0a-4c55-9d0a-2d7f5c1b9e10", doc.TemplateID)
	assert.Equal(t, []models.Marker{"{{sirket_adi}}", "{{sube_adi}}"}, doc.Markers)
	assert.Equal(t, []models.Marker{"{{sube_adi}}"}, doc.Missing)
	assert.Contains(t, doc.HTML, `<strong class="marker-value">Acme</strong>`)
}
