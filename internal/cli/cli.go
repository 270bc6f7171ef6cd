// Package cli implements the pocket-docs command line. Every subcommand
// runs through commands.CommandExecutor so parameters are validated the same
// way as in the local HTTP API.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-docs/internal/clipboard"
	"github.com/dpshade/pocket-docs/internal/commands"
	"github.com/dpshade/pocket-docs/internal/config"
	apperrors "github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/logging"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/service"
)

// App holds what the subcommands share. Fields left nil are filled in
// from configuration before a command runs.
type App struct {
	verbose bool
	dir     string

	cfg      *config.Config
	logger   *zap.Logger
	service  *service.Service
	executor *commands.CommandExecutor
	handler  *apperrors.CLIErrorHandler

	// owned is set when the App opened the service and must close it
	owned bool

	openService func(cfg *config.Config, logger *zap.Logger) (*service.Service, error)
	prompter    Prompter
	copyText    func(text string) (string, error)
}

// NewApp returns an App wired to the real service, terminal and clipboard
func NewApp() *App {
	return &App{
		openService: service.Open,
		prompter:    surveyPrompter{},
		copyText:    clipboard.CopyWithFallback,
	}
}

// Execute runs the command line and returns the process exit code
func Execute(version string) int {
	app := NewApp()
	root := app.RootCommand()
	root.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// PersistentPostRun is skipped when a command fails
	defer app.close()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, app.formatError(err))
		return 1
	}
	return 0
}

// RootCommand builds the command tree. With no subcommand it starts the TUI.
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pocket-docs",
		Short: "Fill CRM document templates and export them as PDF",
		Long: `pocket-docs fetches contract, promissory note and report templates from
the CRM, fills their {{marker}} placeholders and exports the result as a
PDF named after the template and today's date.

Run without arguments to start the interactive terminal UI.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: a.runTUI,
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&a.dir, "dir", "", "Base directory (default: $"+config.EnvDir+" or ~/.pocket-docs)")

	root.AddCommand(
		a.templatesCommand(),
		a.showCommand(),
		a.markersCommand(),
		a.fieldsCommand(),
		a.searchCommand(),
		a.saveCommand(),
		a.previewCommand(),
		a.exportCommand(),
		a.copyCommand(),
		a.historyCommand(),
		a.serveCommand(),
		a.tuiCommand(),
		a.initCommand(),
	)
	return root
}

// interactive reports whether cmd takes over the terminal
func interactive(cmd *cobra.Command) bool {
	return cmd.Name() == "tui" || !cmd.HasParent()
}

// standalone reports whether cmd runs without config or service
func standalone(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "init", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

func (a *App) setup(cmd *cobra.Command, args []string) error {
	if standalone(cmd) {
		return nil
	}

	if a.cfg == nil {
		cfg, err := config.Load(a.dir)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	if a.logger == nil {
		opts := logging.Options{Level: a.cfg.Log.Level, Verbose: a.verbose, Console: true}
		if interactive(cmd) {
			opts.Console = false
			opts.File = a.cfg.Log.File
			if opts.File == "" {
				opts.File = filepath.Join(a.cfg.Dir(), "logs", "pocket-docs.log")
			}
		}
		logger, err := logging.New(opts)
		if err != nil {
			return err
		}
		a.logger = logger
	}

	if a.service == nil {
		svc, err := a.openService(a.cfg, a.logger)
		if err != nil {
			return err
		}
		a.service = svc
		a.owned = true
	}

	a.executor = commands.NewCommandExecutor(a.service)
	a.handler = apperrors.NewCLIErrorHandler(a.verbose, a.logger)
	return nil
}

func (a *App) close() {
	if a.owned && a.service != nil {
		if err := a.service.Close(); err != nil {
			a.logger.Warn("failed to close service", zap.Error(err))
		}
		a.service = nil
		a.owned = false
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// formatError renders err for stderr. Application errors go through the
// CLI handler; flag and argument errors from cobra are printed as is.
func (a *App) formatError(err error) string {
	if apperrors.IsAppError(err) {
		handler := a.handler
		if handler == nil {
			handler = apperrors.NewCLIErrorHandler(a.verbose, a.logger)
		}
		return handler.HandleError(err).Error()
	}
	return "Error: " + err.Error()
}

// run executes a registered command and turns a failed result into an error
func (a *App) run(cmd *cobra.Command, name string, params map[string]interface{}) (*commands.CommandResult, error) {
	result, err := a.executor.Execute(cmd.Context(), name, params)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, result.Err()
	}
	a.logger.Debug("command finished", zap.String("command", name), zap.String("message", result.Message))
	return result, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseVars turns --var arguments into fill-in values. Both '{{tag}}=value'
// and 'tag=value' are accepted; the value may itself contain '='.
func parseVars(vars []string) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		key, value, ok := splitVar(v)
		if !ok || key == "" {
			return nil, apperrors.ValidationError(fmt.Sprintf("invalid --var %q, expected {{tag}}=value or tag=value", v))
		}
		if !strings.HasPrefix(key, models.MarkerOpen) {
			key = string(models.MarkerFor(key))
		}
		out[key] = value
	}
	return out, nil
}

func splitVar(s string) (string, string, bool) {
	if !strings.HasPrefix(s, models.MarkerOpen) {
		return strings.Cut(s, "=")
	}
	end := strings.Index(s, models.MarkerClose)
	if end < 0 {
		return "", "", false
	}
	end += len(models.MarkerClose)
	if end >= len(s) || s[end] != '=' {
		return "", "", false
	}
	return s[:end], s[end+1:], true
}
