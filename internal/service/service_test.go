package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/placeholder"
	"github.com/dpshade/pocket-docs/internal/storage"
)

type fakeAPI struct {
	mu        sync.Mutex
	templates map[string]*models.Template
	listErr   error
	getErr    error
	saved     []*models.Template
	companies map[string]*models.Company
	branches  map[string]*models.Branch
	people    map[string]*models.Person
}

func newFakeAPI(templates ...*models.Template) *fakeAPI {
	f := &fakeAPI{
		templates: make(map[string]*models.Template),
		companies: make(map[string]*models.Company),
		branches:  make(map[string]*models.Branch),
		people:    make(map[string]*models.Person),
	}
	for _, t := range templates {
		f.templates[t.ID] = t
	}
	return f
}

func (f *fakeAPI) ListTemplates(_ context.Context, category models.Category) ([]*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []*models.Template{}
	for _, t := range f.templates {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetTemplate(_ context.Context, id string) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.templates[id]
	if !ok {
		return nil, errors.NotFoundError("Template")
	}
	return t, nil
}

func (f *fakeAPI) SaveTemplate(_ context.Context, tmpl *models.Template) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := *tmpl
	if saved.ID == "" {
		saved.ID = "99999999-9999-4999-8999-999999999999"
	}
	f.saved = append(f.saved, &saved)
	f.templates[saved.ID] = &saved
	return &saved, nil
}

func (f *fakeAPI) GetCompany(_ context.Context, id string) (*models.Company, error) {
	if c, ok := f.companies[id]; ok {
		return c, nil
	}
	return nil, errors.NotFoundError("Company")
}

func (f *fakeAPI) GetBranch(_ context.Context, id string) (*models.Branch, error) {
	if b, ok := f.branches[id]; ok {
		return b, nil
	}
	return nil, errors.NotFoundError("Branch")
}

func (f *fakeAPI) GetPerson(_ context.Context, id string) (*models.Person, error) {
	if p, ok := f.people[id]; ok {
		return p, nil
	}
	return nil, errors.NotFoundError("Person")
}

type fakePDF struct {
	err error
}

func (f *fakePDF) RenderPDF(_ context.Context, _ string, _ export.PageLayout) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

var fixedNow = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.Local)

const (
	contractID = "11111111-1111-4111-8111-111111111111"
	noteID     = "22222222-2222-4222-8222-222222222222"
	reportID   = "33333333-3333-4333-8333-333333333333"
)

func fixtures() []*models.Template {
	return []*models.Template{
		{ID: contractID, Title: "Hizmet Sözleşmesi", Category: models.CategoryContract,
			Body: "<p>{{kisi_tam_adi}} signs on {{tarih_bugun}} for {{sirket_adi}}</p>"},
		{ID: noteID, Title: "Borç Senedi", Category: models.CategoryPromissoryNote,
			Body: "<p>{{kisi_tam_adi}} {{ozel_alan}}</p>"},
		{ID: reportID, Title: "Aylık Rapor", Category: models.CategoryReport,
			Body: "<p>No markers</p>"},
	}
}

type harness struct {
	svc     *Service
	api     *fakeAPI
	pdf     *fakePDF
	store   *storage.Storage
	history *storage.History
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewStorage(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.InitLibrary())

	history, err := storage.OpenHistory(dir)
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	api := newFakeAPI(fixtures()...)
	pdf := &fakePDF{}
	svc, err := New(Options{
		API:      api,
		Storage:  store,
		History:  history,
		Exporter: export.NewExporter(pdf, export.Options{Dir: dir + "/exports"}),
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	return &harness{svc: svc, api: api, pdf: pdf, store: store, history: history, dir: dir}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{API: newFakeAPI()})
	assert.Error(t, err)
}

func TestListTemplatesAllCategories(t *testing.T) {
	h := newHarness(t)

	all, err := h.svc.ListTemplates(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.CategoryContract, all[0].Category)
	assert.Equal(t, models.CategoryPromissoryNote, all[1].Category)
	assert.Equal(t, models.CategoryReport, all[2].Category)

	cached, err := h.store.ListTemplates("")
	require.NoError(t, err)
	assert.Len(t, cached, 3, "listing writes through to the cache")
}

func TestListTemplatesRejectsUnknownCategory(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ListTemplates(context.Background(), "invoice")
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
}

func TestListTemplatesFallsBackToCacheWhenOffline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ListTemplates(ctx, models.CategoryContract)
	require.NoError(t, err)

	h.api.listErr = errors.NetworkError("GET templates", os.ErrDeadlineExceeded)
	list, err := h.svc.ListTemplates(ctx, models.CategoryContract)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, contractID, list[0].ID)

	// Nothing cached for reports yet
	_, err = h.svc.ListTemplates(ctx, models.CategoryReport)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNetworkFailure))
}

func TestListTemplatesDoesNotHideAuthErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.ListTemplates(ctx, models.CategoryContract)
	require.NoError(t, err)

	h.api.listErr = errors.NewAppError(errors.ErrCodeUnauthorized, "token rejected")
	_, err = h.svc.ListTemplates(ctx, models.CategoryContract)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
}

func TestGetTemplateFallsBackToCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tmpl, err := h.svc.GetTemplate(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, "Borç Senedi", tmpl.Title)

	h.api.getErr = errors.NewAppError(errors.ErrCodeServiceUnavailable, "down")
	cached, err := h.svc.GetTemplate(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Body, cached.Body)

	_, err = h.svc.GetTemplate(ctx, reportID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeServiceUnavailable))
}

func TestSearchTemplates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	results, err := h.svc.SearchTemplates(ctx, "senet")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, noteID, results[0].ID)

	results, err = h.svc.SearchTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = h.svc.SearchTemplates(ctx, "zzzz")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveTemplateRecomputesPlaceholders(t *testing.T) {
	h := newHarness(t)

	saved, err := h.svc.SaveTemplate(context.Background(), &models.Template{
		Title:        "Yeni Sözleşme",
		Category:     models.CategoryContract,
		Body:         "<p>{{sube_adi}} {{kisi_tam_adi}} {{sube_adi}}</p>",
		Placeholders: []models.Marker{"{{stale}}"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	require.Len(t, h.api.saved, 1)
	assert.Equal(t, []models.Marker{"{{sube_adi}}", "{{kisi_tam_adi}}"}, h.api.saved[0].Placeholders)

	cached, err := h.store.GetTemplate(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Yeni Sözleşme", cached.Title)
}

func TestSaveTemplateValidates(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SaveTemplate(context.Background(), &models.Template{Title: "x", Category: "invoice"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTemplate))
	assert.Empty(t, h.api.saved)

	_, err = h.svc.SaveTemplate(context.Background(), nil)
	assert.Error(t, err)
}

func TestMarkers(t *testing.T) {
	h := newHarness(t)

	infos := h.svc.Markers(fixtures()[1])
	require.Len(t, infos, 2)
	assert.Equal(t, MarkerInfo{Marker: "{{kisi_tam_adi}}", Label: "Kişi Adı Soyadı", Group: "Kişi", Known: true}, infos[0])
	assert.Equal(t, MarkerInfo{Marker: "{{ozel_alan}}", Label: "ozel_alan"}, infos[1])

	assert.Empty(t, h.svc.Markers(fixtures()[2]))
}

func TestPreview(t *testing.T) {
	h := newHarness(t)
	html := h.svc.Preview(fixtures()[1], models.FillValues{"{{kisi_tam_adi}}": "Ahmet"})
	assert.Equal(t, `<p><strong class="marker-value">Ahmet</strong> <strong class="marker-value"></strong></p>`, html)
}

func TestExportRecordsHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.Export(ctx, fixtures()[0], models.FillValues{"{{kisi_tam_adi}}": "Ahmet Yılmaz"})
	require.NoError(t, err)
	assert.Equal(t, "Hizmet_Sözleşmesi_01.01.2025.pdf", result.FileName)
	assert.FileExists(t, result.Path)

	records, err := h.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, contractID, records[0].TemplateID)
	assert.Equal(t, result.Path, records[0].Path)
	assert.Equal(t, 3, records[0].Markers)
}

func TestExportFailureIsNotRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.pdf.err = assert.AnError

	_, err := h.svc.Export(ctx, fixtures()[0], nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExportFailed))

	records, err := h.svc.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRenderStreamsAndRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc, err := h.svc.Render(ctx, fixtures()[2], nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7 fake"), doc.PDF)
	assert.Contains(t, doc.HTML, "<p>No markers</p>")

	records, err := h.svc.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Path)
}

func TestHistoryWithoutDatabase(t *testing.T) {
	svc, err := New(Options{API: newFakeAPI(), Exporter: export.NewExporter(&fakePDF{}, export.Options{})})
	require.NoError(t, err)

	records, err := svc.History(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, svc.Catalog())
	assert.NoError(t, svc.Close())
}

func TestPrefill(t *testing.T) {
	h := newHarness(t)
	h.api.companies["c1"] = &models.Company{ID: "c1", Title: "Acme A.Ş.", Address: "İstanbul", TaxNumber: "123"}
	h.api.people["p1"] = &models.Person{ID: "p1", FullName: "Ahmet Yılmaz", NationalID: "111", Phone: "555"}
	h.api.branches["b1"] = &models.Branch{ID: "b1", Name: "Kadıköy", Address: "Moda"}

	values, err := h.svc.Prefill(context.Background(), nil, PrefillRequest{
		CompanyID: "c1",
		BranchID:  "b1",
		PersonID:  "p1",
		From:      time.Date(2025, 2, 1, 12, 0, 0, 0, time.Local),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme A.Ş.", values[placeholder.CompanyName])
	assert.Equal(t, "123", values[placeholder.CompanyTaxNo])
	assert.Equal(t, "Kadıköy", values[placeholder.BranchName])
	assert.Equal(t, "Ahmet Yılmaz", values[placeholder.PersonFullName])
	assert.Equal(t, "01.01.2025", values[placeholder.DateToday])
	assert.Equal(t, "01.02.2025", values[placeholder.DateRangeStart])
	_, hasEnd := values[placeholder.DateRangeEnd]
	assert.False(t, hasEnd)
}

func TestPrefillKeepsOnlyTemplateMarkers(t *testing.T) {
	h := newHarness(t)
	h.api.people["p1"] = &models.Person{ID: "p1", FullName: "Ahmet Yılmaz", Phone: "555"}

	values, err := h.svc.Prefill(context.Background(), fixtures()[0], PrefillRequest{PersonID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, models.FillValues{
		"{{kisi_tam_adi}}": "Ahmet Yılmaz",
		"{{tarih_bugun}}":  "01.01.2025",
	}, values)
}

func TestPrefillPropagatesLookupErrors(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Prefill(context.Background(), nil, PrefillRequest{PersonID: "missing"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}
