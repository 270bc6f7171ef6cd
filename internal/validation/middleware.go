package validation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dpshade/pocket-docs/internal/errors"
)

// maxRequestBody bounds JSON bodies accepted by the local API
const maxRequestBody = 4 << 20

type validatedKey struct{}

// RequestValidator validates HTTP requests against a schema before the
// handler runs. Query parameters, the template id from the path and the
// JSON body are merged into one parameter map.
type RequestValidator struct {
	validator    *Validator
	errorHandler *errors.HTTPErrorHandler
}

// NewRequestValidator creates a new request validator middleware
func NewRequestValidator(logger *zap.Logger) *RequestValidator {
	return &RequestValidator{
		validator:    Default(),
		errorHandler: errors.NewHTTPErrorHandler(true, logger),
	}
}

// ValidateRequest middleware validates HTTP requests based on schema
func (rv *RequestValidator) ValidateRequest(schemaName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			data, err := rv.extractRequestData(r)
			if err != nil {
				rv.errorHandler.WriteHTTPError(w, err)
				return
			}

			validated, appErr := rv.validator.ValidateToAppError(schemaName, data)
			if appErr != nil {
				rv.errorHandler.WriteHTTPError(w, appErr)
				return
			}

			ctx := context.WithValue(r.Context(), validatedKey{}, validated)
			next(w, r.WithContext(ctx))
		}
	}
}

// Validated returns the parameter map stored by ValidateRequest
func Validated(r *http.Request) map[string]interface{} {
	data, _ := r.Context().Value(validatedKey{}).(map[string]interface{})
	return data
}

// extractRequestData extracts data from HTTP request based on method and content type
func (rv *RequestValidator) extractRequestData(r *http.Request) (map[string]interface{}, error) {
	data := make(map[string]interface{})

	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			data[key] = values[0]
		} else if len(values) > 1 {
			data[key] = values
		}
	}

	if id := TemplateIDFromPath(r.URL.Path); id != "" {
		data["template_id"] = id
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			bodyData, err := extractJSONBody(r)
			if err != nil {
				return nil, err
			}
			for key, value := range bodyData {
				data[key] = value
			}
		}
	}

	return data, nil
}

// TemplateIDFromPath returns the {id} segment of /api/v1/templates/{id}/...
func TemplateIDFromPath(path string) string {
	const prefix = "/api/v1/templates/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	id := strings.TrimPrefix(path, prefix)
	if idx := strings.Index(id, "/"); idx != -1 {
		id = id[:idx]
	}
	return id
}

// extractJSONBody reads the body and puts it back so handlers can decode
// it again.
func extractJSONBody(r *http.Request) (map[string]interface{}, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return nil, errors.ValidationError("Failed to read request body")
	}
	if len(body) > maxRequestBody {
		return nil, errors.ValidationError("Request body too large")
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))

	if len(body) == 0 {
		return make(map[string]interface{}), nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errors.ValidationError("Invalid JSON in request body")
	}

	return data, nil
}

// ValidateQueryParams maps the local API's query parameters to command
// parameters.
func ValidateQueryParams(values url.Values) map[string]interface{} {
	params := make(map[string]interface{})

	if q := values.Get("q"); q != "" {
		params["query"] = q
	}
	if category := values.Get("category"); category != "" {
		params["category"] = category
	}
	if format := values.Get("format"); format != "" {
		params["format"] = format
	}
	if id := values.Get("template_id"); id != "" {
		params["template_id"] = id
	}
	if limit := values.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			params["limit"] = n
		} else {
			params["limit"] = limit
		}
	}

	return params
}

// SanitizeString removes control characters other than newlines and tabs
func SanitizeString(input string) string {
	cleaned := strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range cleaned {
		if r == '\n' || r == '\t' || r == '\r' || r >= 32 {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// GetValidator returns the underlying validator instance
func (rv *RequestValidator) GetValidator() *Validator {
	return rv.validator
}
