package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/placeholder"
	"github.com/dpshade/pocket-docs/internal/service/servicetest"
	"github.com/dpshade/pocket-docs/internal/storage"
)

func newExecutor(t *testing.T) (*CommandExecutor, *servicetest.Harness) {
	t.Helper()
	h := servicetest.New(t)
	return NewCommandExecutor(h.Service), h
}

func TestRegistryListsCommands(t *testing.T) {
	executor, _ := newExecutor(t)

	assert.Equal(t, []string{
		"export", "fields", "get", "health", "history",
		"list", "markers", "preview", "render", "search",
	}, executor.Commands())

	desc, ok := executor.Describe("render")
	require.True(t, ok)
	assert.Contains(t, desc, "in memory")

	_, ok = executor.Describe("delete")
	assert.False(t, ok)
}

func TestExecuteUnknownCommand(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "frobnicate", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, string(errors.ErrCodeCommandNotFound), result.Error.Code)
	assert.True(t, errors.HasCode(result.Err(), errors.ErrCodeCommandNotFound))
}

func TestListCommand(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "list", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Len(t, result.Data, 3)
	assert.Nil(t, result.Err())

	result, err = executor.Execute(context.Background(), "list", map[string]interface{}{
		"category": "report",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	templates := result.Data.([]*models.Template)
	require.Len(t, templates, 1)
	assert.Equal(t, servicetest.ReportID, templates[0].ID)
}

func TestListCommandRejectsUnknownCategory(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "list", map[string]interface{}{
		"category": "invoice",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, string(errors.ErrCodeValidation), result.Error.Code)
	assert.Equal(t, string(errors.CategoryValidation), result.Error.Category)
}

func TestSearchCommand(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "search", map[string]interface{}{
		"query": "senet",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	templates := result.Data.([]*models.Template)
	require.Len(t, templates, 1)
	assert.Equal(t, servicetest.NoteID, templates[0].ID)

	result, err = executor.Execute(context.Background(), "search", map[string]interface{}{
		"query":    "senet",
		"category": "contract",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Empty(t, result.Data)

	result, err = executor.Execute(context.Background(), "search", nil)
	require.NoError(t, err)
	assert.False(t, result.Success, "query is required")
}

func TestGetCommand(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "get", map[string]interface{}{
		"id": servicetest.ContractID,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Hizmet Sözleşmesi", result.Data.(*models.Template).Title)

	result, err = executor.Execute(context.Background(), "get", map[string]interface{}{
		"id": "not-a-uuid",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, string(errors.ErrCodeValidation), result.Error.Code)

	result, err = executor.Execute(context.Background(), "get", map[string]interface{}{
		"id": "44444444-4444-4444-8444-444444444444",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, errors.HasCode(result.Err(), errors.ErrCodeNotFound))
}

func TestMarkersCommand(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "markers", map[string]interface{}{
		"id": servicetest.NoteID,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	data := result.Data.(TemplateMarkers)
	assert.Equal(t, models.CategoryPromissoryNote, data.Category)
	require.Len(t, data.Markers, 2)
	assert.Equal(t, placeholder.PersonFullName, data.Markers[0].Marker)
	assert.True(t, data.Markers[0].Known)
	assert.Equal(t, models.Marker("{{ozel_alan}}"), data.Markers[1].Marker)
	assert.False(t, data.Markers[1].Known)
}

func TestPreviewCommand(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "preview", map[string]interface{}{
		"template_id": servicetest.ContractID,
		"values": map[string]interface{}{
			"kisi_tam_adi": "Ayşe <Yılmaz>",
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	data := result.Data.(PreviewResult)
	assert.Len(t, data.Markers, 3)
	assert.Equal(t, []models.Marker{placeholder.DateToday, placeholder.CompanyName}, data.Missing)
	assert.Contains(t, data.HTML, "Ayşe &lt;Yılmaz&gt;")
	assert.NotContains(t, data.HTML, "{{")
}

func TestPreviewCommandRejectsBadValues(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "preview", map[string]interface{}{
		"template_id": servicetest.ContractID,
		"values": map[string]interface{}{
			"{{broken": "x",
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, string(errors.ErrCodeValidation), result.Error.Code)
}

func TestExportCommandWritesFileAndHistory(t *testing.T) {
	executor, h := newExecutor(t)
	ctx := context.Background()

	result, err := executor.Execute(ctx, "export", map[string]interface{}{
		"template_id": servicetest.ContractID,
		"values":      map[string]string{"kisi_tam_adi": "Ayşe"},
	})
	require.NoError(t, err)
	require.True(t, result.Success, "%+v", result.Error)

	res := result.Data.(*export.Result)
	assert.Equal(t, "Hizmet_Sözleşmesi_14.03.2025.pdf", res.FileName)
	assert.Equal(t, filepath.Join(h.ExportDir(), res.FileName), res.Path)

	content, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, servicetest.Content, content)
	assert.Contains(t, h.PDF.Last, "Ayşe")

	history, err := executor.Execute(ctx, "history", map[string]interface{}{"limit": 5})
	require.NoError(t, err)
	require.True(t, history.Success)
	records := history.Data.([]storage.ExportRecord)
	require.Len(t, records, 1)
	assert.Equal(t, servicetest.ContractID, records[0].TemplateID)
	assert.Equal(t, res.Path, records[0].Path)

	history, err = executor.Execute(ctx, "history", map[string]interface{}{"template_id": servicetest.NoteID})
	require.NoError(t, err)
	require.True(t, history.Success)
	assert.Empty(t, history.Data)

	history, err = executor.Execute(ctx, "history", map[string]interface{}{"template_id": "not-a-uuid"})
	require.NoError(t, err)
	assert.False(t, history.Success)
}

func TestExportCommandToOutputPath(t *testing.T) {
	executor, _ := newExecutor(t)
	out := t.TempDir()

	result, err := executor.Execute(context.Background(), "export", map[string]interface{}{
		"template_id": servicetest.ReportID,
		"out":         out,
	})
	require.NoError(t, err)
	require.True(t, result.Success, "%+v", result.Error)

	res := result.Data.(*export.Result)
	assert.Equal(t, filepath.Join(out, "Aylık_Rapor_14.03.2025.pdf"), res.Path)
	assert.FileExists(t, res.Path)

	named := filepath.Join(out, "nested", "rapor.pdf")
	result, err = executor.Execute(context.Background(), "export", map[string]interface{}{
		"template_id": servicetest.ReportID,
		"out":         named,
	})
	require.NoError(t, err)
	require.True(t, result.Success, "%+v", result.Error)
	assert.Equal(t, "rapor.pdf", result.Data.(*export.Result).FileName)
	assert.FileExists(t, named)
}

func TestExportCommandRenderFailure(t *testing.T) {
	executor, h := newExecutor(t)
	h.PDF.Err = assert.AnError

	result, err := executor.Execute(context.Background(), "export", map[string]interface{}{
		"template_id": servicetest.ContractID,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, string(errors.ErrCodeExportFailed), result.Error.Code)

	entries, err := os.ReadDir(h.ExportDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed export leaves nothing on disk")

	history, err := executor.Execute(context.Background(), "history", nil)
	require.NoError(t, err)
	assert.Empty(t, history.Data)
}

func TestRenderCommandKeepsPDFInMemory(t *testing.T) {
	executor, h := newExecutor(t)

	result, err := executor.Execute(context.Background(), "render", map[string]interface{}{
		"template_id": servicetest.NoteID,
	})
	require.NoError(t, err)
	require.True(t, result.Success, "%+v", result.Error)

	doc := result.Data.(RenderedDocument)
	assert.Equal(t, "Borç_Senedi_14.03.2025.pdf", doc.FileName)
	assert.Equal(t, servicetest.Content, doc.PDF)
	entries, err := os.ReadDir(h.ExportDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	result, err = executor.Execute(context.Background(), "render", map[string]interface{}{
		"template_id": servicetest.NoteID,
		"out":         "/tmp/x.pdf",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestFieldsCommand(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "fields", nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	groups := result.Data.([]placeholder.Group)
	require.NotEmpty(t, groups)
	total := 0
	for _, g := range groups {
		total += len(g.Fields)
	}
	assert.Equal(t, len(placeholder.DefaultCatalog().Fields()), total)
}

func TestHistoryCommandValidatesLimit(t *testing.T) {
	executor, _ := newExecutor(t)

	result, err := executor.Execute(context.Background(), "history", map[string]interface{}{"limit": 0})
	require.NoError(t, err)
	assert.False(t, result.Success)

	result, err = executor.Execute(context.Background(), "history", map[string]interface{}{"limit": "12"})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestHealthCommand(t *testing.T) {
	executor, h := newExecutor(t)

	result, err := executor.Execute(context.Background(), "health", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	data := result.Data.(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "reachable", data["api"])

	h.API.PingErr = errors.NetworkError("ping", assert.AnError)
	result, err = executor.Execute(context.Background(), "health", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	data = result.Data.(map[string]interface{})
	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, "unreachable", data["api"])
}

func TestServiceErrorsBecomeFailedResults(t *testing.T) {
	executor, h := newExecutor(t)
	h.API.SetErr(errors.NewAppError(errors.ErrCodeUnauthorized, "token rejected"))

	result, err := executor.Execute(context.Background(), "list", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, string(errors.ErrCodeUnauthorized), result.Error.Code)
	assert.Equal(t, "token rejected", result.Error.Message)
}

func TestFailureWrapsPlainErrors(t *testing.T) {
	result := failure(assert.AnError)
	assert.False(t, result.Success)
	assert.Equal(t, string(errors.ErrCodeCommandFailed), result.Error.Code)
	assert.ErrorIs(t, result.Err(), assert.AnError)
}

var _ ServiceAwareCommand = (*MarkersCommand)(nil)
var _ ParameterizedCommand = (*ExportCommand)(nil)
