package ui

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/placeholder"
	"github.com/dpshade/pocket-docs/internal/preview"
	"github.com/dpshade/pocket-docs/internal/service/servicetest"
)

const exportedName = "Hizmet_Sözleşmesi_14.03.2025.pdf"

func newTestModel(t *testing.T) (Model, *servicetest.Harness) {
	t.Helper()
	t.Setenv("GLAMOUR_STYLE", "dark")

	h := servicetest.New(t)
	m, err := NewModel(h.Service, nil)
	require.NoError(t, err)
	return *m, h
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func openTemplate(t *testing.T, m Model, h *servicetest.Harness, id string) Model {
	t.Helper()
	tmpl, err := h.Service.GetTemplate(context.Background(), id)
	require.NoError(t, err)
	m, _ = update(t, m, templateLoadedMsg{template: tmpl})
	return m
}

// previewContract opens the contract, fills the person name and previews it
func previewContract(t *testing.T, m Model, h *servicetest.Harness) Model {
	t.Helper()
	m = openTemplate(t, m, h, servicetest.ContractID)
	m, _ = update(t, m, runes("Ayşe Yılmaz"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.Equal(t, ViewPreview, m.viewMode)
	return m
}

func TestInitLoadsTemplates(t *testing.T) {
	m, _ := newTestModel(t)
	assert.True(t, m.loading)

	m, _ = update(t, m, m.Init()())

	assert.False(t, m.loading)
	assert.Len(t, m.templates, 3)
	assert.Len(t, m.templateList.Items(), 3)
}

func TestLoadErrorShowsStatus(t *testing.T) {
	m, h := newTestModel(t)
	h.API.SetErr(assert.AnError)

	m, _ = update(t, m, m.Init()())

	assert.Equal(t, "error", m.statusType)
	assert.Contains(t, m.statusMsg, "Could not load templates")
}

func TestOpenTemplateBuildsForm(t *testing.T) {
	m, h := newTestModel(t)
	m = openTemplate(t, m, h, servicetest.ContractID)

	assert.Equal(t, ViewFill, m.viewMode)
	assert.Equal(t, preview.StateOpen, m.session.State())
	require.Len(t, m.markers, 3)
	assert.Equal(t, placeholder.PersonFullName, m.markers[0].Marker)
	assert.Equal(t, "Kişi Adı Soyadı", m.markers[0].Label)
	assert.Contains(t, m.View(), "Hizmet Sözleşmesi")
}

func TestFillAndPreview(t *testing.T) {
	m, h := newTestModel(t)
	m = previewContract(t, m, h)

	assert.Equal(t, preview.StateFilled, m.session.State())
	assert.Equal(t, "Ayşe Yılmaz", m.session.Value(placeholder.PersonFullName))
	assert.Contains(t, m.session.Preview(), `<strong class="marker-value">Ayşe Yılmaz</strong>`)

	content := m.viewport.View()
	assert.Contains(t, content, "Ayşe Yılmaz")
	assert.Contains(t, content, "Şirket Adı")
}

func TestEditKeepsValues(t *testing.T) {
	m, h := newTestModel(t)
	m = previewContract(t, m, h)

	m, _ = update(t, m, runes("e"))

	assert.Equal(t, ViewFill, m.viewMode)
	assert.Equal(t, "Ayşe Yılmaz", m.fillForm.Values()[placeholder.PersonFullName])
}

func TestExportSuccessClearsValues(t *testing.T) {
	m, h := newTestModel(t)
	m = previewContract(t, m, h)

	m, cmd := update(t, m, runes("x"))
	require.NotNil(t, cmd)
	assert.Equal(t, preview.StateExporting, m.session.State())

	// Input is ignored while exporting
	m, ignored := update(t, m, runes("e"))
	assert.Nil(t, ignored)
	assert.Equal(t, ViewPreview, m.viewMode)

	m, _ = update(t, m, cmd())

	assert.Equal(t, preview.StateOpen, m.session.State())
	assert.Equal(t, ViewFill, m.viewMode)
	assert.Empty(t, m.session.Value(placeholder.PersonFullName))
	assert.Empty(t, m.fillForm.Values()[placeholder.PersonFullName])
	assert.Equal(t, "success", m.statusType)
	assert.Contains(t, m.statusMsg, exportedName)

	data, err := os.ReadFile(filepath.Join(h.ExportDir(), exportedName))
	require.NoError(t, err)
	assert.Equal(t, servicetest.Content, data)
	assert.Contains(t, h.PDF.Last, "Ayşe Yılmaz")
}

func TestExportFailureKeepsPreview(t *testing.T) {
	m, h := newTestModel(t)
	h.PDF.Err = assert.AnError
	m = previewContract(t, m, h)

	m, cmd := update(t, m, runes("x"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, preview.StateFilled, m.session.State())
	assert.Equal(t, ViewPreview, m.viewMode)
	assert.Error(t, m.session.LastError())
	assert.Equal(t, "Ayşe Yılmaz", m.session.Value(placeholder.PersonFullName))
	assert.Equal(t, "error", m.statusType)
	assert.Contains(t, m.statusMsg, "Export failed")

	entries, err := os.ReadDir(h.ExportDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The export can be retried
	h.PDF.Err = nil
	m, cmd = update(t, m, runes("x"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, preview.StateOpen, m.session.State())
}

func TestTemplateWithoutMarkers(t *testing.T) {
	m, h := newTestModel(t)
	m = openTemplate(t, m, h, servicetest.ReportID)
	assert.Empty(t, m.markers)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})

	require.Equal(t, ViewPreview, m.viewMode)
	assert.True(t, m.session.Empty())
	assert.Contains(t, m.viewport.View(), "no markers")

	_, cmd := update(t, m, runes("x"))
	assert.NotNil(t, cmd)
}

func TestEscapeFromFormClosesSession(t *testing.T) {
	m, h := newTestModel(t)
	m = openTemplate(t, m, h, servicetest.NoteID)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, ViewLibrary, m.viewMode)
	assert.Equal(t, preview.StateClosed, m.session.State())
	assert.Nil(t, m.fillForm)
}

func TestCategoryFilter(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m, m.Init()())

	m, _ = update(t, m, runes("t"))
	require.Equal(t, ViewCategory, m.viewMode)

	m, _ = update(t, m, runes("j"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	first := models.Categories()[0]
	assert.Equal(t, ViewLibrary, m.viewMode)
	assert.Equal(t, first, m.category)

	m, _ = update(t, m, cmd())
	require.Len(t, m.templates, 1)
	assert.Equal(t, first, m.templates[0].Category)
}

func TestFieldsView(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = update(t, m, runes("f"))

	assert.Equal(t, ViewFields, m.viewMode)
	assert.Contains(t, m.viewport.View(), "Şirket")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewLibrary, m.viewMode)
}

func TestHistoryView(t *testing.T) {
	m, h := newTestModel(t)
	m = previewContract(t, m, h)
	m, cmd := update(t, m, runes("x"))
	m, _ = update(t, m, cmd())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, ViewLibrary, m.viewMode)

	m, cmd = update(t, m, runes("h"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, ViewHistory, m.viewMode)
	assert.Contains(t, m.viewport.View(), exportedName)
}
