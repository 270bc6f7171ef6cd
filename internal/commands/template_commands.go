// Package commands/template_commands implements the template library and
// document commands.
//
// COMMAND IMPLEMENTATIONS:
// - ListTemplatesCommand: lists templates, optionally for one category
// - SearchTemplatesCommand: fuzzy search over titles and categories
// - GetTemplateCommand: fetches one template with its body
// - MarkersCommand: lists the markers of a template with catalog labels
// - PreviewCommand: fills a template and returns the preview HTML
// - ExportCommand: fills a template and prints it to PDF, on disk or in memory
//
// Parameters arrive already validated by CommandExecutor; the commands only
// convert them and delegate to service.Service.
package commands

import (
	"context"
	"fmt"

	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/renderer"
	"github.com/dpshade/pocket-docs/internal/service"
)

// ListTemplatesCommand lists templates with an optional category filter
type ListTemplatesCommand struct {
	service  *service.Service
	Category models.Category
	Format   string
}

func (c *ListTemplatesCommand) SetService(svc *service.Service) {
	c.service = svc
}

func (c *ListTemplatesCommand) SetParameters(params map[string]interface{}) error {
	if category, ok := params["category"].(string); ok {
		c.Category = models.Category(category)
	}
	if format, ok := params["format"].(string); ok {
		c.Format = format
	}
	return nil
}

func (c *ListTemplatesCommand) Validate() error {
	if c.service == nil {
		return fmt.Errorf("service not set")
	}
	if c.Category != "" && !c.Category.Valid() {
		return fmt.Errorf("unknown category %q", c.Category)
	}
	return nil
}

func (c *ListTemplatesCommand) Execute(ctx context.Context) (*CommandResult, error) {
	templates, err := c.service.ListTemplates(ctx, c.Category)
	if err != nil {
		return nil, err
	}

	return &CommandResult{
		Success: true,
		Data:    templates,
		Message: fmt.Sprintf("Found %d templates", len(templates)),
	}, nil
}

func (c *ListTemplatesCommand) GetName() string {
	return "list"
}

func (c *ListTemplatesCommand) GetDescription() string {
	return "List templates, optionally filtered by category"
}

// SearchTemplatesCommand performs fuzzy search over templates
type SearchTemplatesCommand struct {
	service  *service.Service
	Query    string
	Category models.Category
}

func (c *SearchTemplatesCommand) SetService(svc *service.Service) {
	c.service = svc
}

func (c *SearchTemplatesCommand) SetParameters(params map[string]interface{}) error {
	if query, ok := params["query"].(string); ok {
		c.Query = query
	}
	if category, ok := params["category"].(string); ok {
		c.Category = models.Category(category)
	}
	return nil
}

func (c *SearchTemplatesCommand) Validate() error {
	if c.service == nil {
		return fmt.Errorf("service not set")
	}
	if c.Query == "" {
		return fmt.Errorf("search query is required")
	}
	return nil
}

func (c *SearchTemplatesCommand) Execute(ctx context.Context) (*CommandResult, error) {
	templates, err := c.service.SearchTemplates(ctx, c.Query)
	if err != nil {
		return nil, err
	}

	if c.Category != "" {
		filtered := templates[:0:0]
		for _, t := range templates {
			if t.Category == c.Category {
				filtered = append(filtered, t)
			}
		}
		templates = filtered
	}

	return &CommandResult{
		Success: true,
		Data:    templates,
		Message: fmt.Sprintf("Found %d templates matching '%s'", len(templates), c.Query),
	}, nil
}

func (c *SearchTemplatesCommand) GetName() string {
	return "search"
}

func (c *SearchTemplatesCommand) GetDescription() string {
	return "Fuzzy search templates by title and category"
}

// GetTemplateCommand retrieves a single template
type GetTemplateCommand struct {
	service *service.Service
	ID      string
}

func (c *GetTemplateCommand) SetService(svc *service.Service) {
	c.service = svc
}

func (c *GetTemplateCommand) SetParameters(params map[string]interface{}) error {
	if id, ok := params["id"].(string); ok {
		c.ID = id
	}
	return nil
}

func (c *GetTemplateCommand) Validate() error {
	if c.service == nil {
		return fmt.Errorf("service not set")
	}
	if c.ID == "" {
		return fmt.Errorf("template ID is required")
	}
	return nil
}

func (c *GetTemplateCommand) Execute(ctx context.Context) (*CommandResult, error) {
	tmpl, err := c.service.GetTemplate(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	return &CommandResult{
		Success: true,
		Data:    tmpl,
		Message: fmt.Sprintf("Retrieved template '%s'", tmpl.Title),
	}, nil
}

func (c *GetTemplateCommand) GetName() string {
	return "get"
}

func (c *GetTemplateCommand) GetDescription() string {
	return "Get a template by ID"
}

// TemplateMarkers is the result of MarkersCommand
type TemplateMarkers struct {
	TemplateID string               `json:"template_id"`
	Title      string               `json:"title"`
	Category   models.Category      `json:"category"`
	Markers    []service.MarkerInfo `json:"markers"`
}

// MarkersCommand lists the markers of one template
type MarkersCommand struct {
	GetTemplateCommand
}

func (c *MarkersCommand) Execute(ctx context.Context) (*CommandResult, error) {
	tmpl, err := c.service.GetTemplate(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	markers := c.service.Markers(tmpl)
	return &CommandResult{
		Success: true,
		Data: TemplateMarkers{
			TemplateID: tmpl.ID,
			Title:      tmpl.Title,
			Category:   tmpl.Category,
			Markers:    markers,
		},
		Message: fmt.Sprintf("Template '%s' has %d markers", tmpl.Title, len(markers)),
	}, nil
}

func (c *MarkersCommand) GetName() string {
	return "markers"
}

func (c *MarkersCommand) GetDescription() string {
	return "List the markers of a template with their field labels"
}

// fillParams holds the parameters shared by preview and export
type fillParams struct {
	service    *service.Service
	TemplateID string
	Values     models.FillValues
}

func (p *fillParams) SetService(svc *service.Service) {
	p.service = svc
}

func (p *fillParams) SetParameters(params map[string]interface{}) error {
	if id, ok := params["template_id"].(string); ok {
		p.TemplateID = id
	}
	p.Values = models.FillValues{}
	if raw, ok := params["values"].(map[string]interface{}); ok {
		strs := make(map[string]string, len(raw))
		for k, v := range raw {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("value for %s must be a string", k)
			}
			strs[k] = s
		}
		p.Values = models.FillValuesFromStrings(strs)
	}
	return nil
}

func (p *fillParams) Validate() error {
	if p.service == nil {
		return fmt.Errorf("service not set")
	}
	if p.TemplateID == "" {
		return fmt.Errorf("template ID is required")
	}
	return nil
}

// PreviewResult is the result of PreviewCommand
type PreviewResult struct {
	TemplateID string          `json:"template_id"`
	Title      string          `json:"title"`
	Markers    []models.Marker `json:"markers"`
	Missing    []models.Marker `json:"missing"`
	HTML       string          `json:"html"`
}

// PreviewCommand fills a template for on-screen preview
type PreviewCommand struct {
	fillParams
}

func (c *PreviewCommand) Execute(ctx context.Context) (*CommandResult, error) {
	tmpl, err := c.service.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}

	r := renderer.NewRenderer(tmpl)
	missing := r.Missing(c.Values)

	return &CommandResult{
		Success: true,
		Data: PreviewResult{
			TemplateID: tmpl.ID,
			Title:      tmpl.Title,
			Markers:    r.Markers(),
			Missing:    missing,
			HTML:       c.service.Preview(tmpl, c.Values),
		},
		Message: fmt.Sprintf("Preview of '%s' with %d unfilled markers", tmpl.Title, len(missing)),
	}, nil
}

func (c *PreviewCommand) GetName() string {
	return "preview"
}

func (c *PreviewCommand) GetDescription() string {
	return "Fill a template and return the preview HTML"
}

// RenderedDocument is the result of an in-memory export
type RenderedDocument struct {
	TemplateID string          `json:"template_id"`
	FileName   string          `json:"file_name"`
	Markers    []models.Marker `json:"markers"`
	PDF        []byte          `json:"-"`
}

// ExportCommand prints a filled template to PDF. With InMemory set the PDF
// is returned in a RenderedDocument instead of being written.
type ExportCommand struct {
	fillParams
	Out      string
	InMemory bool
}

func (c *ExportCommand) SetParameters(params map[string]interface{}) error {
	if err := c.fillParams.SetParameters(params); err != nil {
		return err
	}
	if out, ok := params["out"].(string); ok {
		c.Out = out
	}
	return nil
}

func (c *ExportCommand) Validate() error {
	if err := c.fillParams.Validate(); err != nil {
		return err
	}
	if c.InMemory && c.Out != "" {
		return fmt.Errorf("an output path cannot be used with an in-memory render")
	}
	return nil
}

func (c *ExportCommand) Execute(ctx context.Context) (*CommandResult, error) {
	tmpl, err := c.service.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}

	if c.InMemory {
		doc, err := c.service.Render(ctx, tmpl, c.Values)
		if err != nil {
			return nil, err
		}
		return &CommandResult{
			Success: true,
			Data: RenderedDocument{
				TemplateID: tmpl.ID,
				FileName:   doc.FileName,
				Markers:    doc.Markers,
				PDF:        doc.PDF,
			},
			Message: fmt.Sprintf("Rendered %s (%d bytes)", doc.FileName, len(doc.PDF)),
		}, nil
	}

	var res *export.Result
	if c.Out != "" {
		res, err = c.service.ExportTo(ctx, tmpl, c.Values, c.Out)
	} else {
		res, err = c.service.Export(ctx, tmpl, c.Values)
	}
	if err != nil {
		return nil, err
	}

	return &CommandResult{
		Success: true,
		Data:    res,
		Message: fmt.Sprintf("Exported '%s' to %s", tmpl.Title, res.Path),
	}, nil
}

func (c *ExportCommand) GetName() string {
	if c.InMemory {
		return "render"
	}
	return "export"
}

func (c *ExportCommand) GetDescription() string {
	if c.InMemory {
		return "Fill a template and render the PDF in memory"
	}
	return "Fill a template and export it as a PDF file"
}
