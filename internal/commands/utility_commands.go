// Package commands/utility_commands implements metadata and monitoring commands.
//
// COMMAND IMPLEMENTATIONS:
// - ListFieldsCommand: the field catalog grouped for display
// - HistoryCommand: recent exports, newest first
// - HealthCheckCommand: CRM reachability for the local API health endpoint
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dpshade/pocket-docs/internal/service"
	"github.com/dpshade/pocket-docs/internal/storage"
)

// ListFieldsCommand lists the known fields of the catalog
type ListFieldsCommand struct {
	service *service.Service
}

func (c *ListFieldsCommand) SetService(svc *service.Service) {
	c.service = svc
}

func (c *ListFieldsCommand) SetParameters(params map[string]interface{}) error {
	return nil
}

func (c *ListFieldsCommand) Validate() error {
	if c.service == nil {
		return fmt.Errorf("service not set")
	}
	return nil
}

func (c *ListFieldsCommand) GetName() string {
	return "fields"
}

func (c *ListFieldsCommand) GetDescription() string {
	return "List the fields that can be used as markers"
}

func (c *ListFieldsCommand) Execute(ctx context.Context) (*CommandResult, error) {
	groups := c.service.Catalog().Grouped()

	count := 0
	for _, g := range groups {
		count += len(g.Fields)
	}

	return &CommandResult{
		Success: true,
		Data:    groups,
		Message: fmt.Sprintf("Found %d fields in %d groups", count, len(groups)),
	}, nil
}

// HistoryCommand lists recent exports, optionally of one template
type HistoryCommand struct {
	service    *service.Service
	Limit      int
	TemplateID string
}

func (c *HistoryCommand) SetService(svc *service.Service) {
	c.service = svc
}

func (c *HistoryCommand) SetParameters(params map[string]interface{}) error {
	if limit, ok := params["limit"].(int); ok {
		c.Limit = limit
	}
	if id, ok := params["template_id"].(string); ok {
		c.TemplateID = id
	}
	return nil
}

func (c *HistoryCommand) Validate() error {
	if c.service == nil {
		return fmt.Errorf("service not set")
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

func (c *HistoryCommand) GetName() string {
	return "history"
}

func (c *HistoryCommand) GetDescription() string {
	return "List recent exports"
}

func (c *HistoryCommand) Execute(ctx context.Context) (*CommandResult, error) {
	limit := c.Limit
	if limit == 0 {
		limit = storage.DefaultHistoryLimit
	}

	var (
		records []storage.ExportRecord
		err     error
	)
	if c.TemplateID != "" {
		records, err = c.service.TemplateHistory(ctx, c.TemplateID, limit)
	} else {
		records, err = c.service.History(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	return &CommandResult{
		Success: true,
		Data:    records,
		Message: fmt.Sprintf("Found %d exports", len(records)),
	}, nil
}

// HealthCheckCommand reports whether the CRM API can be reached. An
// unreachable API still reports success with a degraded status, since
// cached templates and exports keep working.
type HealthCheckCommand struct {
	service *service.Service
}

func (c *HealthCheckCommand) SetService(svc *service.Service) {
	c.service = svc
}

func (c *HealthCheckCommand) SetParameters(params map[string]interface{}) error {
	return nil
}

func (c *HealthCheckCommand) Validate() error {
	if c.service == nil {
		return fmt.Errorf("service not set")
	}
	return nil
}

func (c *HealthCheckCommand) GetName() string {
	return "health"
}

func (c *HealthCheckCommand) GetDescription() string {
	return "Check CRM reachability and service status"
}

func (c *HealthCheckCommand) Execute(ctx context.Context) (*CommandResult, error) {
	healthData := map[string]interface{}{
		"status":     "healthy",
		"service":    "pocket-docs",
		"api":        "reachable",
		"export_dir": c.service.Exporter().Dir(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	message := "Service is healthy"

	if err := c.service.Ping(ctx); err != nil {
		healthData["status"] = "degraded"
		healthData["api"] = "unreachable"
		healthData["api_error"] = err.Error()
		message = "CRM API is unreachable, serving cached templates"
	}

	return &CommandResult{
		Success: true,
		Data:    healthData,
		Message: message,
	}, nil
}
