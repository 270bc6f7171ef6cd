// Package servicetest provides in-memory collaborators for tests of the
// layers above service.Service.
package servicetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/service"
	"github.com/dpshade/pocket-docs/internal/storage"
)

// Fixture template IDs
const (
	ContractID = "11111111-1111-4111-8111-111111111111"
	NoteID     = "22222222-2222-4222-8222-222222222222"
	ReportID   = "33333333-3333-4333-8333-333333333333"
)

// Now is the fixed clock of services built by New
var Now = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.Local)

// Fixtures returns one template per category
func Fixtures() []*models.Template {
	return []*models.Template{
		{ID: ContractID, Title: "Hizmet Sözleşmesi", Category: models.CategoryContract,
			Body: "<p>{{kisi_tam_adi}} signs on {{tarih_bugun}} for {{sirket_adi}}</p>"},
		{ID: NoteID, Title: "Borç Senedi", Category: models.CategoryPromissoryNote,
			Body: "<p>{{kisi_tam_adi}} {{ozel_alan}}</p>"},
		{ID: ReportID, Title: "Aylık Rapor", Category: models.CategoryReport,
			Body: "<p>No markers</p>"},
	}
}

// API is an in-memory CRM
type API struct {
	mu        sync.Mutex
	templates map[string]*models.Template
	Companies map[string]*models.Company
	Branches  map[string]*models.Branch
	People    map[string]*models.Person
	Err       error
	PingErr   error
}

// NewAPI returns an API serving templates
func NewAPI(templates ...*models.Template) *API {
	a := &API{
		templates: make(map[string]*models.Template),
		Companies: make(map[string]*models.Company),
		Branches:  make(map[string]*models.Branch),
		People:    make(map[string]*models.Person),
	}
	for _, t := range templates {
		a.templates[t.ID] = t
	}
	return a
}

func (a *API) fail() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Err
}

// SetErr makes every later template call fail with err
func (a *API) SetErr(err error) {
	a.mu.Lock()
	a.Err = err
	a.mu.Unlock()
}

func (a *API) ListTemplates(_ context.Context, category models.Category) ([]*models.Template, error) {
	if err := a.fail(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []*models.Template{}
	for _, t := range a.templates {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out, nil
}

func (a *API) GetTemplate(_ context.Context, id string) (*models.Template, error) {
	if err := a.fail(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.templates[id]
	if !ok {
		return nil, errors.NotFoundError("Template").WithContext("id", id)
	}
	return t, nil
}

func (a *API) SaveTemplate(_ context.Context, tmpl *models.Template) (*models.Template, error) {
	if err := a.fail(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	saved := *tmpl
	if saved.ID == "" {
		saved.ID = "99999999-9999-4999-8999-999999999999"
	}
	a.templates[saved.ID] = &saved
	return &saved, nil
}

func (a *API) GetCompany(_ context.Context, id string) (*models.Company, error) {
	if c, ok := a.Companies[id]; ok {
		return c, nil
	}
	return nil, errors.NotFoundError("Company")
}

func (a *API) GetBranch(_ context.Context, id string) (*models.Branch, error) {
	if b, ok := a.Branches[id]; ok {
		return b, nil
	}
	return nil, errors.NotFoundError("Branch")
}

func (a *API) GetPerson(_ context.Context, id string) (*models.Person, error) {
	if p, ok := a.People[id]; ok {
		return p, nil
	}
	return nil, errors.NotFoundError("Person")
}

func (a *API) Ping(_ context.Context) error {
	return a.PingErr
}

// PDF is a renderer that returns a fixed document
type PDF struct {
	mu    sync.Mutex
	Err   error
	Calls int
	Last  string
}

// Content is what PDF renders
var Content = []byte("%PDF-1.7 test")

func (p *PDF) RenderPDF(_ context.Context, html string, _ export.PageLayout) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	p.Last = html
	if p.Err != nil {
		return nil, p.Err
	}
	return Content, nil
}

// Harness bundles a service and its fakes
type Harness struct {
	Service *service.Service
	API     *API
	PDF     *PDF
	Dir     string
}

// ExportDir is where the harness exporter writes
func (h *Harness) ExportDir() string {
	return filepath.Join(h.Dir, "exports")
}

// New builds a Service over the fixtures with storage and history in a
// temporary directory
func New(t testing.TB) *Harness {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewStorage(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.InitLibrary())

	history, err := storage.OpenHistory(dir)
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	api := NewAPI(Fixtures()...)
	pdf := &PDF{}
	svc, err := service.New(service.Options{
		API:      api,
		Storage:  store,
		History:  history,
		Exporter: export.NewExporter(pdf, export.Options{Dir: filepath.Join(dir, "exports")}),
		Now:      func() time.Time { return Now },
	})
	require.NoError(t, err)

	return &Harness{Service: svc, API: api, PDF: pdf, Dir: dir}
}
