package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrorHandler provides interface-specific error handling
type ErrorHandler interface {
	HandleError(err error) error
	FormatError(err error) string
}

// logFields returns the structured fields every handler logs
func logFields(appErr *AppError) []zap.Field {
	fields := []zap.Field{
		zap.String("code", string(appErr.Code)),
		zap.String("severity", string(appErr.Severity)),
		zap.String("category", string(appErr.Category)),
	}
	if appErr.Details != "" {
		fields = append(fields, zap.String("details", appErr.Details))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.NamedError("cause", appErr.Cause))
	}
	if len(appErr.Context) > 0 {
		fields = append(fields, zap.Any("context", appErr.Context))
	}
	return fields
}

func logAppError(logger *zap.Logger, iface string, appErr *AppError) {
	if logger == nil {
		return
	}
	fields := append(logFields(appErr), zap.String("interface", iface))
	switch appErr.Severity {
	case SeverityCritical, SeverityError:
		logger.Error(appErr.Message, fields...)
	case SeverityWarning:
		logger.Warn(appErr.Message, fields...)
	default:
		logger.Info(appErr.Message, fields...)
	}
}

// CLIErrorHandler handles errors for CLI interface
type CLIErrorHandler struct {
	Verbose bool
	Logger  *zap.Logger
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler(verbose bool, logger *zap.Logger) *CLIErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLIErrorHandler{
		Verbose: verbose,
		Logger:  logger,
	}
}

// HandleError handles errors for CLI interface
func (h *CLIErrorHandler) HandleError(err error) error {
	appErr := GetAppError(err)

	if h.Verbose {
		logAppError(h.Logger, "cli", appErr)
	}

	return fmt.Errorf("%s", h.FormatError(appErr))
}

// FormatError formats an error for CLI display
func (h *CLIErrorHandler) FormatError(err error) string {
	appErr := GetAppError(err)

	message := appErr.Message
	if h.Verbose && appErr.Details != "" {
		message = fmt.Sprintf("%s (%s)", message, appErr.Details)
	}
	if h.Verbose && appErr.Cause != nil {
		message = fmt.Sprintf("%s: %v", message, appErr.Cause)
	}

	switch appErr.Severity {
	case SeverityCritical:
		return fmt.Sprintf("❌ CRITICAL: %s", message)
	case SeverityError:
		return fmt.Sprintf("❌ ERROR: %s", message)
	case SeverityWarning:
		return fmt.Sprintf("⚠️  WARNING: %s", message)
	case SeverityInfo:
		return fmt.Sprintf("ℹ️  INFO: %s", message)
	default:
		return fmt.Sprintf("❌ %s", message)
	}
}

// HTTPErrorHandler handles errors for HTTP interface
type HTTPErrorHandler struct {
	IncludeDetails bool
	Logger         *zap.Logger
}

// NewHTTPErrorHandler creates a new HTTP error handler
func NewHTTPErrorHandler(includeDetails bool, logger *zap.Logger) *HTTPErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPErrorHandler{
		IncludeDetails: includeDetails,
		Logger:         logger,
	}
}

// HandleError handles errors for HTTP interface
func (h *HTTPErrorHandler) HandleError(err error) error {
	appErr := GetAppError(err)
	logAppError(h.Logger, "http", appErr)
	return appErr
}

// ErrorBody is the JSON error object returned by the local API
type ErrorBody struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
	Timestamp time.Time              `json:"timestamp"`
}

// Body builds the error object for a response
func (h *HTTPErrorHandler) Body(err error) ErrorBody {
	appErr := GetAppError(err)
	body := ErrorBody{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Retryable: appErr.Retryable,
		Timestamp: appErr.Timestamp,
	}
	if h.IncludeDetails {
		body.Details = appErr.Details
		body.Context = appErr.Context
	}
	return body
}

// FormatError formats an error for HTTP response
func (h *HTTPErrorHandler) FormatError(err error) string {
	jsonBytes, _ := json.Marshal(map[string]interface{}{"error": h.Body(err)})
	return string(jsonBytes)
}

// WriteHTTPError writes an error response to HTTP
func (h *HTTPErrorHandler) WriteHTTPError(w http.ResponseWriter, err error) {
	appErr := GetAppError(err)

	h.HandleError(appErr)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.StatusCode(appErr))
	w.Write([]byte(h.FormatError(appErr)))
}

// StatusCode maps error codes to HTTP status codes
func (h *HTTPErrorHandler) StatusCode(err error) int {
	appErr := GetAppError(err)
	switch appErr.Code {
	case ErrCodeValidation, ErrCodeInvalidInput, ErrCodeMissingField, ErrCodeInvalidFormat,
		ErrCodeInvalidMarker:
		return http.StatusBadRequest
	case ErrCodeInvalidTemplate:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidState:
		return http.StatusConflict
	case ErrCodeNotFound, ErrCodeFileNotFound, ErrCodeCommandNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidCommand:
		return http.StatusMethodNotAllowed
	case ErrCodeAlreadyExists:
		return http.StatusConflict
	case ErrCodeUnauthorized, ErrCodeInvalidToken, ErrCodeTokenExpired:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied, ErrCodeAccessDenied:
		return http.StatusForbidden
	case ErrCodeQuotaExceeded, ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeNetworkFailure, ErrCodeConnectionLost, ErrCodeExportFailed:
		return http.StatusBadGateway
	case ErrCodeServiceTimeout, ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// TUIErrorHandler handles errors for TUI interface
type TUIErrorHandler struct {
	ShowDetails bool
	Logger      *zap.Logger
}

// NewTUIErrorHandler creates a new TUI error handler. The logger should
// write to a file so log lines do not paint over the terminal UI.
func NewTUIErrorHandler(showDetails bool, logger *zap.Logger) *TUIErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TUIErrorHandler{
		ShowDetails: showDetails,
		Logger:      logger,
	}
}

// HandleError handles errors for TUI interface
func (h *TUIErrorHandler) HandleError(err error) error {
	appErr := GetAppError(err)
	logAppError(h.Logger, "tui", appErr)
	return appErr
}

// FormatError formats an error for TUI display
func (h *TUIErrorHandler) FormatError(err error) string {
	appErr := GetAppError(err)

	message := appErr.Message
	if h.ShowDetails && appErr.Details != "" {
		message = fmt.Sprintf("%s\nDetails: %s", message, appErr.Details)
	}
	if appErr.Cause != nil && appErr.Code == ErrCodeExportFailed {
		message = fmt.Sprintf("%s: %v", message, appErr.Cause)
	}

	return message
}

// GetErrorStyle returns an icon and colour for TUI display based on severity
func (h *TUIErrorHandler) GetErrorStyle(err error) (string, string) {
	appErr := GetAppError(err)

	switch appErr.Severity {
	case SeverityCritical:
		return "🔥", "#ff0000" // Red
	case SeverityError:
		return "❌", "#ff6b6b" // Light red
	case SeverityWarning:
		return "⚠️", "#feca57" // Yellow
	case SeverityInfo:
		return "ℹ️", "#48cae4" // Blue
	default:
		return "❌", "#ff6b6b"
	}
}

// ErrorRecovery decides whether idempotent operations are retried
type ErrorRecovery struct {
	MaxRetries int
	RetryDelay time.Duration
}

// NewErrorRecovery creates a new error recovery instance
func NewErrorRecovery(maxRetries int, retryDelay time.Duration) *ErrorRecovery {
	return &ErrorRecovery{
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
	}
}

// ShouldRetry determines if an operation should be retried
func (r *ErrorRecovery) ShouldRetry(err error, attempt int) bool {
	if r == nil || attempt >= r.MaxRetries {
		return false
	}

	return GetAppError(err).IsRetryable()
}

// GetRetryDelay returns the delay before next retry
func (r *ErrorRecovery) GetRetryDelay(attempt int) time.Duration {
	// Exponential backoff: delay * 2^attempt
	return r.RetryDelay * time.Duration(1<<attempt)
}
