package placeholder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-docs/internal/models"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []models.Marker
	}{
		{
			name: "duplicates collapse in first-seen order",
			body: "Hello {{name}}, welcome to {{company}}. Regards, {{name}}",
			want: []models.Marker{"{{name}}", "{{company}}"},
		},
		{
			name: "empty body",
			body: "",
			want: []models.Marker{},
		},
		{
			name: "no markers",
			body: "<p>Plain contract text.</p>",
			want: []models.Marker{},
		},
		{
			name: "markers inside html",
			body: `<p><b>{{sirket_adi}}</b> ile <i>{{kisi_tam_adi}}</i> arasında</p>`,
			want: []models.Marker{"{{sirket_adi}}", "{{kisi_tam_adi}}"},
		},
		{
			name: "unicode and spaces inside delimiters",
			body: "{{şube adı}} / {{tarih}}",
			want: []models.Marker{"{{şube adı}}", "{{tarih}}"},
		},
		{
			name: "empty delimiters are not markers",
			body: "{{}} and {{x}}",
			want: []models.Marker{"{{x}}"},
		},
		{
			name: "substring markers stay distinct",
			body: "{{a}} {{ab}} {{a}}",
			want: []models.Marker{"{{a}}", "{{ab}}"},
		},
		{
			name: "inner open delimiter is part of the token",
			body: "{{open and {{closed}}",
			want: []models.Marker{"{{open and {{closed}}"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.body)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	body := "<p>{{kisi_tam_adi}} {{tarih_bugun}} {{kisi_tam_adi}}</p>"
	assert.Equal(t, Extract(body), Extract(body))
}

func TestSpans(t *testing.T) {
	body := "x{{a}}y{{bb}}z{{a}}"
	spans := Spans(body)

	require.Len(t, spans, 3)
	assert.Equal(t, Span{Start: 1, End: 6, Marker: "{{a}}"}, spans[0])
	assert.Equal(t, Span{Start: 7, End: 13, Marker: "{{bb}}"}, spans[1])
	assert.Equal(t, Span{Start: 14, End: 19, Marker: "{{a}}"}, spans[2])

	for _, s := range spans {
		assert.Equal(t, string(s.Marker), body[s.Start:s.End])
	}
	assert.Equal(t, 3, Count(body))
	assert.Equal(t, 0, Count("nothing here"))
}
