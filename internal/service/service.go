// Package service ties the CRM client, the local template cache, the
// renderer and the exporter together. The CLI, the TUI and the local HTTP
// API all go through it.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/placeholder"
	"github.com/dpshade/pocket-docs/internal/renderer"
	"github.com/dpshade/pocket-docs/internal/storage"
	"github.com/dpshade/pocket-docs/internal/validation"
)

// TemplateAPI is the part of the CRM client the service uses
type TemplateAPI interface {
	ListTemplates(ctx context.Context, category models.Category) ([]*models.Template, error)
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	SaveTemplate(ctx context.Context, tmpl *models.Template) (*models.Template, error)
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	GetBranch(ctx context.Context, id string) (*models.Branch, error)
	GetPerson(ctx context.Context, id string) (*models.Person, error)
}

// Options wires a Service. Storage and History are optional.
type Options struct {
	API      TemplateAPI
	Storage  *storage.Storage
	History  *storage.History
	Exporter *export.Exporter
	Catalog  *placeholder.Catalog
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service provides the template library and document operations
type Service struct {
	api      TemplateAPI
	storage  *storage.Storage
	history  *storage.History
	exporter *export.Exporter
	catalog  *placeholder.Catalog
	logger   *zap.Logger
	now      func() time.Time
	closers  []func() error
}

// MarkerInfo is a marker found in a template together with its label
type MarkerInfo struct {
	Marker models.Marker `json:"marker"`
	Label  string        `json:"label"`
	Group  string        `json:"group,omitempty"`
	Known  bool          `json:"known"`
}

// New creates a service from opts
func New(opts Options) (*Service, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("service requires a template API")
	}
	if opts.Exporter == nil {
		return nil, fmt.Errorf("service requires an exporter")
	}
	if opts.Catalog == nil {
		opts.Catalog = placeholder.DefaultCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		api:      opts.API,
		storage:  opts.Storage,
		history:  opts.History,
		exporter: opts.Exporter,
		catalog:  opts.Catalog,
		logger:   opts.Logger,
		now:      opts.Now,
	}, nil
}

// Close releases the browser and the history database
func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// Catalog returns the field catalog
func (s *Service) Catalog() *placeholder.Catalog {
	return s.catalog
}

// Exporter returns the exporter
func (s *Service) Exporter() *export.Exporter {
	return s.exporter
}

// offline reports whether err means the API could not be reached, as
// opposed to the API rejecting the request
func offline(err error) bool {
	if !errors.IsAppError(err) {
		return false
	}
	appErr := errors.GetAppError(err)
	if appErr.Category == errors.CategoryNetwork {
		return true
	}
	switch appErr.Code {
	case errors.ErrCodeServiceUnavailable, errors.ErrCodeServiceTimeout:
		return true
	}
	return false
}

// ListTemplates returns the templates of one category, or of every category
// when category is empty. Successful fetches replace the local cache; when
// the API is unreachable the cached copy is served instead.
func (s *Service) ListTemplates(ctx context.Context, category models.Category) ([]*models.Template, error) {
	if category != "" {
		if !category.Valid() {
			return nil, errors.ValidationError(fmt.Sprintf("unknown category %q", category))
		}
		return s.listCategory(ctx, category)
	}

	categories := models.Categories()
	results := make([][]*models.Template, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range categories {
		g.Go(func() error {
			templates, err := s.listCategory(gctx, c)
			if err != nil {
				return err
			}
			results[i] = templates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*models.Template
	for _, r := range results {
		all = append(all, r...)
	}
	if all == nil {
		all = []*models.Template{}
	}
	return all, nil
}

func (s *Service) listCategory(ctx context.Context, category models.Category) ([]*models.Template, error) {
	templates, err := s.api.ListTemplates(ctx, category)
	if err == nil {
		if s.storage != nil {
			if cerr := s.storage.ReplaceCategory(category, templates); cerr != nil {
				s.logger.Warn("failed to update template cache",
					zap.String("category", string(category)),
					zap.Error(cerr))
			}
		}
		return templates, nil
	}

	if !offline(err) || s.storage == nil {
		return nil, err
	}

	cached, cerr := s.storage.ListTemplates(category)
	if cerr != nil || len(cached) == 0 {
		return nil, err
	}
	s.logger.Warn("API unreachable, serving stale templates from cache",
		zap.String("category", string(category)),
		zap.Int("count", len(cached)),
		zap.Error(err))
	return cached, nil
}

// GetTemplate fetches one template, falling back to the cache when the API
// is unreachable
func (s *Service) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	tmpl, err := s.api.GetTemplate(ctx, id)
	if err == nil {
		s.cache(tmpl)
		return tmpl, nil
	}

	if !offline(err) || s.storage == nil {
		return nil, err
	}

	cached, cerr := s.storage.GetTemplate(id)
	if cerr != nil {
		return nil, err
	}
	s.logger.Warn("API unreachable, serving stale template from cache",
		zap.String("id", id),
		zap.Error(err))
	return cached, nil
}

// SearchTemplates fuzzy-matches query against template titles and
// categories. An empty query returns every template.
func (s *Service) SearchTemplates(ctx context.Context, query string) ([]*models.Template, error) {
	templates, err := s.ListTemplates(ctx, "")
	if err != nil {
		return nil, err
	}

	if query == "" {
		return templates, nil
	}

	var searchStrings []string
	for _, t := range templates {
		searchStrings = append(searchStrings, fmt.Sprintf("%s %s %s",
			t.Title,
			t.Category.Label(),
			t.Category))
	}

	matches := fuzzy.Find(query, searchStrings)

	results := make([]*models.Template, 0, len(matches))
	for _, match := range matches {
		results = append(results, templates[match.Index])
	}

	return results, nil
}

// SaveTemplate creates or updates a template on the server. The declared
// placeholder list is recomputed from the body first.
func (s *Service) SaveTemplate(ctx context.Context, tmpl *models.Template) (*models.Template, error) {
	if tmpl == nil {
		return nil, errors.InvalidTemplateError("template is required")
	}

	draft := *tmpl
	draft.Placeholders = placeholder.Extract(draft.Body)
	if err := validation.ValidateTemplate(&draft); err != nil {
		return nil, err
	}

	saved, err := s.api.SaveTemplate(ctx, &draft)
	if err != nil {
		return nil, err
	}

	s.logger.Info("template saved",
		zap.String("id", saved.ID),
		zap.String("category", string(saved.Category)),
		zap.Int("markers", len(draft.Placeholders)))

	s.cache(saved)
	return saved, nil
}

func (s *Service) cache(tmpl *models.Template) {
	if s.storage == nil || tmpl == nil {
		return
	}
	if err := s.storage.SaveTemplate(tmpl); err != nil {
		s.logger.Warn("failed to cache template", zap.String("id", tmpl.ID), zap.Error(err))
	}
}

// Markers lists the markers of tmpl in first-seen order with their labels
func (s *Service) Markers(tmpl *models.Template) []MarkerInfo {
	markers := placeholder.Extract(tmpl.Body)
	infos := make([]MarkerInfo, 0, len(markers))
	for _, m := range markers {
		info := MarkerInfo{Marker: m, Label: s.catalog.Label(m)}
		if field, ok := s.catalog.Lookup(m); ok {
			info.Group = field.Group
			info.Known = true
		}
		infos = append(infos, info)
	}
	return infos
}

// Preview returns the on-screen preview HTML
func (s *Service) Preview(tmpl *models.Template, values models.FillValues) string {
	return renderer.NewRenderer(tmpl).RenderPreview(values)
}

// Export renders tmpl to a PDF in the export directory and records it in
// the history
func (s *Service) Export(ctx context.Context, tmpl *models.Template, values models.FillValues) (*export.Result, error) {
	result, err := s.exporter.Export(ctx, tmpl, values, s.now())
	if err != nil {
		return nil, err
	}

	s.record(ctx, tmpl, result.FileName, result.Path, result.Bytes, len(result.Markers))
	return result, nil
}

// ExportTo renders tmpl and writes the PDF to path instead of the export
// directory. When path is an existing directory the generated file name is
// appended.
func (s *Service) ExportTo(ctx context.Context, tmpl *models.Template, values models.FillValues, path string) (*export.Result, error) {
	doc, err := s.exporter.Render(ctx, tmpl, values, s.now())
	if err != nil {
		return nil, err
	}

	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		path = filepath.Join(path, doc.FileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.StorageError("create export directory", err)
	}
	if err := os.WriteFile(path, doc.PDF, 0644); err != nil {
		return nil, errors.StorageError("write export file", err).WithContext("path", path)
	}

	s.logger.Info("document exported", zap.String("template_id", tmpl.ID), zap.String("path", path))
	s.record(ctx, tmpl, filepath.Base(path), path, len(doc.PDF), len(doc.Markers))

	return &export.Result{
		Path:     path,
		FileName: filepath.Base(path),
		Bytes:    len(doc.PDF),
		Markers:  doc.Markers,
	}, nil
}

// Render renders tmpl to a PDF in memory for streaming and records it in
// the history
func (s *Service) Render(ctx context.Context, tmpl *models.Template, values models.FillValues) (*export.Document, error) {
	doc, err := s.exporter.Render(ctx, tmpl, values, s.now())
	if err != nil {
		return nil, err
	}

	s.record(ctx, tmpl, doc.FileName, "", len(doc.PDF), len(doc.Markers))
	return doc, nil
}

func (s *Service) record(ctx context.Context, tmpl *models.Template, fileName, path string, size, markers int) {
	if s.history == nil {
		return
	}
	rec := &storage.ExportRecord{
		TemplateID: tmpl.ID,
		Title:      tmpl.Title,
		Category:   tmpl.Category,
		FileName:   fileName,
		Path:       path,
		Bytes:      size,
		Markers:    markers,
		CreatedAt:  s.now(),
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record export", zap.String("file", fileName), zap.Error(err))
	}
}

// History lists recent exports, newest first
func (s *Service) History(ctx context.Context, limit int) ([]storage.ExportRecord, error) {
	if s.history == nil {
		return []storage.ExportRecord{}, nil
	}
	return s.history.List(ctx, limit)
}

// TemplateHistory lists recent exports of one template, newest first
func (s *Service) TemplateHistory(ctx context.Context, templateID string, limit int) ([]storage.ExportRecord, error) {
	if s.history == nil {
		return []storage.ExportRecord{}, nil
	}
	return s.history.ListForTemplate(ctx, templateID, limit)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping reports whether the CRM API is reachable. APIs without a health
// probe always count as reachable.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.api.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
