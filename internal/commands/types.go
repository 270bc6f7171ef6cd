// Package commands implements the unified command execution system for pocket-docs.
//
// SYSTEM ARCHITECTURE ROLE:
// This package sits between the user interfaces (CLI, local HTTP API) and the
// service layer. Every operation on templates is a named Command, so each
// interface validates and reports it the same way.
//
// COMMAND FLOW:
// 1. Interface converts its input to a parameter map
// 2. CommandExecutor validates the map against the command's schema
// 3. A fresh Command is created, given the service and the validated parameters
// 4. The command runs and returns a CommandResult
// 5. Interface renders CommandResult.Data, or reports CommandResult.Err()
//
// USAGE PATTERNS:
// - Register commands: implement Command and add a factory in registerCommands()
// - Execute commands: CommandExecutor.Execute(ctx, name, params)
// - Add validation: define a schema in internal/validation and map it in getValidationSchema()
package commands

import (
	"context"
	"sort"

	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/service"
	"github.com/dpshade/pocket-docs/internal/validation"
)

// CommandResult represents the result of executing a command
type CommandResult struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Success bool        `json:"success"`
	Error   *ErrorInfo  `json:"error,omitempty"`

	err *errors.AppError
}

// Err returns the failure as an AppError, or nil on success
func (r *CommandResult) Err() error {
	if r == nil || r.err == nil {
		return nil
	}
	return r.err
}

// ErrorInfo provides structured error information
type ErrorInfo struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Category string `json:"category,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// failure builds a failed result from any error
func failure(err error) *CommandResult {
	appErr := errors.Wrap(err, errors.ErrCodeCommandFailed, err.Error())
	if errors.IsAppError(err) {
		appErr = errors.GetAppError(err)
	}
	return &CommandResult{
		Success: false,
		Error: &ErrorInfo{
			Code:     string(appErr.Code),
			Message:  appErr.Message,
			Details:  appErr.Details,
			Category: string(appErr.Category),
			Severity: string(appErr.Severity),
		},
		err: appErr,
	}
}

// Command represents a unified command interface
type Command interface {
	Execute(ctx context.Context) (*CommandResult, error)
	Validate() error
	GetName() string
	GetDescription() string
}

// ParameterizedCommand interface for commands that accept parameters
type ParameterizedCommand interface {
	SetParameters(params map[string]interface{}) error
}

// ServiceAwareCommand interface for commands that need service access
type ServiceAwareCommand interface {
	SetService(svc *service.Service)
}

// CommandRegistry manages available commands
type CommandRegistry struct {
	commands map[string]func() Command
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]func() Command),
	}
}

// Register adds a command factory to the registry
func (r *CommandRegistry) Register(name string, factory func() Command) {
	r.commands[name] = factory
}

// Get retrieves a command factory by name
func (r *CommandRegistry) Get(name string) (func() Command, bool) {
	factory, exists := r.commands[name]
	return factory, exists
}

// List returns all available command names, sorted
func (r *CommandRegistry) List() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandExecutor provides a unified way to execute commands
type CommandExecutor struct {
	service   *service.Service
	registry  *CommandRegistry
	validator *validation.Validator
}

// NewCommandExecutor creates a new command executor
func NewCommandExecutor(svc *service.Service) *CommandExecutor {
	executor := &CommandExecutor{
		service:   svc,
		registry:  NewCommandRegistry(),
		validator: validation.Default(),
	}

	executor.registerCommands()

	return executor
}

// Commands lists the registered command names
func (e *CommandExecutor) Commands() []string {
	return e.registry.List()
}

// Describe returns the description of a registered command
func (e *CommandExecutor) Describe(name string) (string, bool) {
	factory, ok := e.registry.Get(name)
	if !ok {
		return "", false
	}
	return factory().GetDescription(), true
}

// Execute runs a command by name with the given parameters. Failures are
// reported in the result; the returned error is reserved for programming
// errors and is currently always nil.
func (e *CommandExecutor) Execute(ctx context.Context, commandName string, params map[string]interface{}) (*CommandResult, error) {
	factory, exists := e.registry.Get(commandName)
	if !exists {
		return failure(errors.CommandNotFoundError(commandName)), nil
	}

	if params == nil {
		params = make(map[string]interface{})
	}

	if schema := e.getValidationSchema(commandName); schema != "" {
		validated, appErr := e.validator.ValidateToAppError(schema, params)
		if appErr != nil {
			return failure(appErr), nil
		}
		params = validated
	}

	cmd := factory()

	if parameterized, ok := cmd.(ParameterizedCommand); ok {
		if err := parameterized.SetParameters(params); err != nil {
			return failure(errors.ValidationError(err.Error())), nil
		}
	}

	if err := cmd.Validate(); err != nil {
		return failure(errors.ValidationError(err.Error())), nil
	}

	result, err := cmd.Execute(ctx)
	if err != nil {
		return failure(err), nil
	}

	return result, nil
}

// getValidationSchema returns the validation schema name for a command
func (e *CommandExecutor) getValidationSchema(commandName string) string {
	switch commandName {
	case "list":
		return "list_templates"
	case "search":
		return "search_templates"
	case "get", "markers":
		return "get_template"
	case "preview", "export", "render":
		return "export_request"
	case "history":
		return "history"
	default:
		return ""
	}
}

// registerCommands registers all available commands
func (e *CommandExecutor) registerCommands() {
	factories := map[string]func() Command{
		"list":    func() Command { return &ListTemplatesCommand{} },
		"search":  func() Command { return &SearchTemplatesCommand{} },
		"get":     func() Command { return &GetTemplateCommand{} },
		"markers": func() Command { return &MarkersCommand{} },
		"preview": func() Command { return &PreviewCommand{} },
		"export":  func() Command { return &ExportCommand{} },
		"render":  func() Command { return &ExportCommand{InMemory: true} },
		"fields":  func() Command { return &ListFieldsCommand{} },
		"history": func() Command { return &HistoryCommand{} },
		"health":  func() Command { return &HealthCheckCommand{} },
	}

	for name, factory := range factories {
		e.registry.Register(name, func() Command {
			cmd := factory()
			if serviceAware, ok := cmd.(ServiceAwareCommand); ok {
				serviceAware.SetService(e.service)
			}
			return cmd
		})
	}
}
