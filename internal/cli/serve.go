package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-docs/internal/api"
	"github.com/dpshade/pocket-docs/internal/config"
	"github.com/dpshade/pocket-docs/internal/ui"
)

const shutdownTimeout = 10 * time.Second

func (a *App) serveCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP API",
		Long: `Serve the template, preview and export operations over HTTP on
127.0.0.1. The OpenAPI document is served at /api/openapi.json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}
			server := api.NewAPIServer(a.service, port, a.logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://localhost:%d (docs at /api/docs)\n", port)

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			a.logger.Info("shutting down API server")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(ctx); err != nil {
				return fmt.Errorf("failed to stop server: %w", err)
			}
			return <-errCh
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (default from config)")
	return cmd
}

func (a *App) tuiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE:  a.runTUI,
	}
}

func (a *App) runTUI(cmd *cobra.Command, args []string) error {
	model, err := ui.NewModel(a.service, a.logger)
	if err != nil {
		return err
	}

	p := tea.NewProgram(*model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

func (a *App) initCommand() *cobra.Command {
	var apiURL, token string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write config.toml with the CRM API settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.dir)
			if err != nil {
				return err
			}
			if apiURL != "" {
				cfg.API.BaseURL = apiURL
			}
			if token != "" {
				cfg.API.Token = token
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			if a.logger != nil {
				a.logger.Info("config written", zap.String("path", cfg.Path()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", cfg.Path())
			fmt.Fprintf(cmd.OutOrStdout(), "  API: %s\n", cfg.API.BaseURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "CRM API base URL")
	cmd.Flags().StringVar(&token, "token", "", "CRM API token")
	return cmd
}
