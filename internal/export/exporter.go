// Package export fills a template and prints it to a fixed-layout PDF.
package export

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/renderer"
)

// Options configures an Exporter
type Options struct {
	Dir      string
	Layout   PageLayout
	Sanitize bool
	Logger   *zap.Logger
}

// Exporter runs fill, wrap, render and write for one template at a time
type Exporter struct {
	pdf      PDFRenderer
	dir      string
	layout   PageLayout
	sanitize bool
	logger   *zap.Logger
}

// Document is a filled template ready to be written or streamed
type Document struct {
	FileName string
	HTML     string
	PDF      []byte
	Markers  []models.Marker
}

// Result describes a written export
type Result struct {
	Path     string          `json:"path"`
	FileName string          `json:"file_name"`
	Bytes    int             `json:"bytes"`
	Markers  []models.Marker `json:"markers"`
}

// NewExporter creates an exporter around a PDF renderer
func NewExporter(pdf PDFRenderer, opts Options) *Exporter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Layout == (PageLayout{}) {
		opts.Layout = DefaultLayout()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Exporter{
		pdf:      pdf,
		dir:      opts.Dir,
		layout:   opts.Layout,
		sanitize: opts.Sanitize,
		logger:   opts.Logger,
	}
}

// Dir returns the directory exports are written to
func (e *Exporter) Dir() string {
	return e.dir
}

// Layout returns the page layout handed to the renderer
func (e *Exporter) Layout() PageLayout {
	return e.layout
}

// HTML fills the template with plain values and wraps it in the printable
// document shell.
func (e *Exporter) HTML(tmpl *models.Template, values models.FillValues) (string, error) {
	body := renderer.NewRenderer(tmpl).RenderExport(values)
	if e.sanitize {
		body = Sanitize(body)
	}
	doc, err := WrapDocument(tmpl.Title, body, e.layout)
	if err != nil {
		return "", apperrors.ExportError(FileName(tmpl.Title, time.Now()), err)
	}
	return doc, nil
}

// Render fills the template and prints it without touching the disk
func (e *Exporter) Render(ctx context.Context, tmpl *models.Template, values models.FillValues, now time.Time) (*Document, error) {
	fileName := FileName(tmpl.Title, now)

	html, err := e.HTML(tmpl, values)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pdf, err := e.pdf.RenderPDF(ctx, html, e.layout)
	if err != nil {
		e.logger.Error("pdf render failed",
			zap.String("template_id", tmpl.ID),
			zap.String("file", fileName),
			zap.Error(err))
		return nil, apperrors.ExportError(fileName, err).WithContext("template_id", tmpl.ID)
	}

	e.logger.Debug("pdf rendered",
		zap.String("template_id", tmpl.ID),
		zap.Int("bytes", len(pdf)),
		zap.Duration("took", time.Since(start)))

	return &Document{
		FileName: fileName,
		HTML:     html,
		PDF:      pdf,
		Markers:  renderer.NewRenderer(tmpl).Markers(),
	}, nil
}

// Export fills, renders and writes the PDF to the export directory. There
// is no retry; a failure leaves nothing on disk.
func (e *Exporter) Export(ctx context.Context, tmpl *models.Template, values models.FillValues, now time.Time) (*Result, error) {
	doc, err := e.Render(ctx, tmpl, values, now)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return nil, apperrors.StorageError("create export directory", err)
	}

	path := filepath.Join(e.dir, doc.FileName)
	if err := os.WriteFile(path, doc.PDF, 0644); err != nil {
		return nil, apperrors.StorageError("write export file", err).WithContext("path", path)
	}

	e.logger.Info("document exported",
		zap.String("template_id", tmpl.ID),
		zap.String("path", path))

	return &Result{
		Path:     path,
		FileName: doc.FileName,
		Bytes:    len(doc.PDF),
		Markers:  doc.Markers,
	}, nil
}
