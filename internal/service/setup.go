package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dpshade/pocket-docs/internal/config"
	"github.com/dpshade/pocket-docs/internal/crmapi"
	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/placeholder"
	"github.com/dpshade/pocket-docs/internal/storage"
)

// Open builds a Service from configuration: the CRM client, the template
// cache, the export history and a go-rod PDF renderer. The browser is not
// started until the first export. Call Close when done.
func Open(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := placeholder.LoadCatalog(cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load field catalog: %w", err)
	}

	client, err := crmapi.New(crmapi.Config{
		BaseURL:           cfg.API.BaseURL,
		Token:             cfg.API.Token,
		Timeout:           cfg.API.Timeout(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		MaxRetries:        cfg.API.MaxRetries,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(cfg.Dir(), logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.InitLibrary(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	history, err := storage.OpenHistory(cfg.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to open export history: %w", err)
	}

	layout, err := cfg.Layout()
	if err != nil {
		history.Close()
		return nil, err
	}

	rodOpts := []export.RodOption{export.WithRodLogger(logger.Named("rod"))}
	if cfg.Export.ChromeBin != "" {
		rodOpts = append(rodOpts, export.WithBrowserBin(cfg.Export.ChromeBin))
	}
	pdf := export.NewRodRenderer(rodOpts...)

	exporter := export.NewExporter(pdf, export.Options{
		Dir:      cfg.Export.Dir,
		Layout:   layout,
		Sanitize: cfg.Export.Sanitize,
		Logger:   logger.Named("export"),
	})

	svc, err := New(Options{
		API:      client,
		Storage:  store,
		History:  history,
		Exporter: exporter,
		Catalog:  catalog,
		Logger:   logger,
	})
	if err != nil {
		history.Close()
		return nil, err
	}
	svc.closers = append(svc.closers, history.Close, pdf.Close)
	return svc, nil
}
