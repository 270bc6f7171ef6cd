// Package validation checks user input and API records before they reach
// the service layer.
//
// Schemas describe parameter maps as they arrive from the CLI, the local
// HTTP API and the command layer. A ValidationResult lists every failing
// field and converts to an AppError with ToAppError.
//
// Built-in schemas:
//   - list_templates, get_template, search_templates: command parameters
//   - template_record: a template as read from or written to the CRM API
//   - fill_values: a marker to value map supplied by the user
//   - export_request: a template id plus fill values
//   - history: export history paging
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/models"
)

const (
	// MaxValueLength bounds a single fill-in value
	MaxValueLength = 10000
	// MaxBodyLength bounds a template body
	MaxBodyLength = 2 << 20
)

// FieldValidator provides validation rules for individual fields
type FieldValidator struct {
	Name      string
	Required  bool
	Type      string
	MinLength int
	MaxLength int
	Min       *int
	Max       *int
	Pattern   *regexp.Regexp
	Options   []string
	Custom    func(interface{}) error
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Valid    bool                   `json:"valid"`
	Errors   []ValidationError      `json:"errors,omitempty"`
	Warnings []ValidationWarning    `json:"warnings,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationWarning represents a field validation warning
type ValidationWarning struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Schema represents a validation schema
type Schema struct {
	Name   string
	Fields map[string]FieldValidator
	Rules  []func(map[string]interface{}) error
	// Code is the AppError code reported when the schema fails
	Code errors.ErrorCode
}

// Validator provides centralized validation functionality
type Validator struct {
	schemas map[string]*Schema
}

var defaultValidator = NewValidator()

// Default returns the shared validator with the built-in schemas
func Default() *Validator {
	return defaultValidator
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := &Validator{
		schemas: make(map[string]*Schema),
	}

	v.registerBuiltinSchemas()

	return v
}

// RegisterSchema registers a validation schema
func (v *Validator) RegisterSchema(schema *Schema) {
	v.schemas[schema.Name] = schema
}

// Validate validates data against a schema. Fields are checked in name
// order so error lists are stable.
func (v *Validator) Validate(schemaName string, data map[string]interface{}) *ValidationResult {
	schema, exists := v.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Code:    "SCHEMA_NOT_FOUND",
				Message: fmt.Sprintf("Validation schema '%s' not found", schemaName),
			}},
		}
	}

	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
		Data:     make(map[string]interface{}),
	}

	names := make([]string, 0, len(schema.Fields))
	for name := range schema.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, fieldName := range names {
		v.validateField(fieldName, schema.Fields[fieldName], data, result)
	}

	for _, rule := range schema.Rules {
		if err := rule(data); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "schema",
				Code:    "SCHEMA_RULE_VIOLATION",
				Message: err.Error(),
			})
		}
	}

	for key := range data {
		if _, known := schema.Fields[key]; !known {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   key,
				Message: fmt.Sprintf("Unknown field '%s' ignored", key),
			})
		}
	}
	sort.Slice(result.Warnings, func(i, j int) bool {
		return result.Warnings[i].Field < result.Warnings[j].Field
	})

	return result
}

// ValidateToAppError validates and returns the failure as an AppError
// carrying the schema's error code, or nil.
func (v *Validator) ValidateToAppError(schemaName string, data map[string]interface{}) (map[string]interface{}, *errors.AppError) {
	result := v.Validate(schemaName, data)
	if result.Valid {
		return result.Data, nil
	}
	appErr := result.ToAppError()
	if schema, ok := v.schemas[schemaName]; ok && schema.Code != "" {
		appErr.Code = schema.Code
	}
	return nil, appErr.WithContext("schema", schemaName)
}

func (result *ValidationResult) fail(field, code, message string, value interface{}) {
	result.Valid = false
	result.Errors = append(result.Errors, ValidationError{
		Field:   field,
		Code:    code,
		Message: message,
		Value:   value,
	})
}

// validateField validates a single field
func (v *Validator) validateField(fieldName string, validator FieldValidator, data map[string]interface{}, result *ValidationResult) {
	value, exists := data[fieldName]

	if validator.Required && (!exists || value == nil || value == "") {
		result.fail(fieldName, "REQUIRED_FIELD_MISSING", fmt.Sprintf("Field '%s' is required", fieldName), nil)
		return
	}

	if !exists || value == nil {
		return
	}

	convertedValue, err := v.validateAndConvertType(fieldName, validator.Type, value)
	if err != nil {
		result.fail(fieldName, "INVALID_TYPE", err.Error(), value)
		return
	}

	result.Data[fieldName] = convertedValue

	switch typed := convertedValue.(type) {
	case string:
		length := utf8.RuneCountInString(typed)
		if validator.MinLength > 0 && length < validator.MinLength {
			result.fail(fieldName, "MIN_LENGTH_VIOLATION",
				fmt.Sprintf("Field '%s' must be at least %d characters long", fieldName, validator.MinLength), typed)
		}
		if validator.MaxLength > 0 && length > validator.MaxLength {
			result.fail(fieldName, "MAX_LENGTH_VIOLATION",
				fmt.Sprintf("Field '%s' must be at most %d characters long", fieldName, validator.MaxLength), nil)
		}
		if validator.Pattern != nil && typed != "" && !validator.Pattern.MatchString(typed) {
			result.fail(fieldName, "PATTERN_MISMATCH",
				fmt.Sprintf("Field '%s' does not match required pattern", fieldName), typed)
		}
		if len(validator.Options) > 0 && !contains(validator.Options, typed) {
			result.fail(fieldName, "INVALID_OPTION",
				fmt.Sprintf("Field '%s' must be one of: %s", fieldName, strings.Join(validator.Options, ", ")), typed)
		}
	case int:
		if validator.Min != nil && typed < *validator.Min {
			result.fail(fieldName, "MIN_VALUE_VIOLATION",
				fmt.Sprintf("Field '%s' must be at least %d", fieldName, *validator.Min), typed)
		}
		if validator.Max != nil && typed > *validator.Max {
			result.fail(fieldName, "MAX_VALUE_VIOLATION",
				fmt.Sprintf("Field '%s' must be at most %d", fieldName, *validator.Max), typed)
		}
	}

	if validator.Custom != nil {
		if err := validator.Custom(convertedValue); err != nil {
			result.fail(fieldName, "CUSTOM_VALIDATION_FAILED",
				fmt.Sprintf("Field '%s': %s", fieldName, err.Error()), nil)
		}
	}
}

func contains(options []string, s string) bool {
	for _, option := range options {
		if s == option {
			return true
		}
	}
	return false
}

// validateAndConvertType validates and converts value to the specified type
func (v *Validator) validateAndConvertType(fieldName, expectedType string, value interface{}) (interface{}, error) {
	switch expectedType {
	case "string":
		switch val := value.(type) {
		case string:
			return val, nil
		case models.Marker:
			return string(val), nil
		case models.Category:
			return string(val), nil
		}
		return fmt.Sprintf("%v", value), nil

	case "int":
		switch val := value.(type) {
		case int:
			return val, nil
		case float64:
			return int(val), nil
		case string:
			if intVal, err := strconv.Atoi(val); err == nil {
				return intVal, nil
			}
		}
		return nil, fmt.Errorf("field '%s' must be an integer", fieldName)

	case "bool":
		switch val := value.(type) {
		case bool:
			return val, nil
		case string:
			if boolVal, err := strconv.ParseBool(val); err == nil {
				return boolVal, nil
			}
		}
		return nil, fmt.Errorf("field '%s' must be a boolean", fieldName)

	case "array":
		switch val := value.(type) {
		case []interface{}:
			return val, nil
		case []string:
			result := make([]interface{}, len(val))
			for i, s := range val {
				result[i] = s
			}
			return result, nil
		case []models.Marker:
			result := make([]interface{}, len(val))
			for i, m := range val {
				result[i] = string(m)
			}
			return result, nil
		case string:
			if val != "" {
				parts := strings.Split(val, ",")
				result := make([]interface{}, len(parts))
				for i, part := range parts {
					result[i] = strings.TrimSpace(part)
				}
				return result, nil
			}
			return []interface{}{}, nil
		}
		return nil, fmt.Errorf("field '%s' must be an array", fieldName)

	case "object":
		switch val := value.(type) {
		case map[string]interface{}:
			return val, nil
		case map[string]string:
			obj := make(map[string]interface{}, len(val))
			for k, s := range val {
				obj[k] = s
			}
			return obj, nil
		case models.FillValues:
			obj := make(map[string]interface{}, len(val))
			for k, s := range val {
				obj[string(k)] = s
			}
			return obj, nil
		}
		return nil, fmt.Errorf("field '%s' must be an object", fieldName)

	default:
		return value, nil
	}
}

func intPtr(i int) *int { return &i }

func categoryOptions() []string {
	out := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		out = append(out, string(c))
	}
	return out
}

// uuidField accepts canonical UUID strings
func uuidField(value interface{}) error {
	s, _ := value.(string)
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("must be a UUID")
	}
	return nil
}

// markerList checks that every element is a well-formed marker
func markerList(value interface{}) error {
	items, _ := value.([]interface{})
	for i, item := range items {
		s, ok := item.(string)
		if !ok || !models.Marker(s).Valid() {
			return fmt.Errorf("placeholder at position %d is not a valid marker", i)
		}
	}
	return nil
}

// fillValueMap checks marker keys and bounded string values
func fillValueMap(value interface{}) error {
	obj, _ := value.(map[string]interface{})
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		m := models.Marker(k)
		if !strings.HasPrefix(k, models.MarkerOpen) {
			m = models.MarkerFor(k)
		}
		if !m.Valid() {
			return fmt.Errorf("key %q is not a valid marker", k)
		}
		s, ok := obj[k].(string)
		if !ok {
			return fmt.Errorf("value for %s must be a string", m)
		}
		if utf8.RuneCountInString(s) > MaxValueLength {
			return fmt.Errorf("value for %s exceeds %d characters", m, MaxValueLength)
		}
	}
	return nil
}

// registerBuiltinSchemas registers the schemas used across the app
func (v *Validator) registerBuiltinSchemas() {
	v.RegisterSchema(&Schema{
		Name: "list_templates",
		Fields: map[string]FieldValidator{
			"category": {
				Name:    "category",
				Type:    "string",
				Options: append(categoryOptions(), ""),
			},
			"format": {
				Name:    "format",
				Type:    "string",
				Options: []string{"json", "table", "ids"},
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "get_template",
		Fields: map[string]FieldValidator{
			"id": {
				Name:     "id",
				Type:     "string",
				Required: true,
				Custom:   uuidField,
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "search_templates",
		Fields: map[string]FieldValidator{
			"query": {
				Name:      "query",
				Type:      "string",
				Required:  true,
				MinLength: 1,
				MaxLength: 200,
			},
			"category": {
				Name:    "category",
				Type:    "string",
				Options: append(categoryOptions(), ""),
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "template_record",
		Code: errors.ErrCodeInvalidTemplate,
		Fields: map[string]FieldValidator{
			"id": {
				Name:   "id",
				Type:   "string",
				Custom: uuidField,
			},
			"title": {
				Name:      "title",
				Type:      "string",
				Required:  true,
				MinLength: 1,
				MaxLength: 255,
			},
			"template_type": {
				Name:     "template_type",
				Type:     "string",
				Required: true,
				Options:  categoryOptions(),
			},
			"content_html": {
				Name:      "content_html",
				Type:      "string",
				MaxLength: MaxBodyLength,
			},
			"placeholders": {
				Name:   "placeholders",
				Type:   "array",
				Custom: markerList,
			},
		},
		Rules: []func(map[string]interface{}) error{
			func(data map[string]interface{}) error {
				if _, ok := data["content_html"]; !ok {
					return fmt.Errorf("template body is missing")
				}
				return nil
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "fill_values",
		Code: errors.ErrCodeInvalidMarker,
		Fields: map[string]FieldValidator{
			"values": {
				Name:   "values",
				Type:   "object",
				Custom: fillValueMap,
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "export_request",
		Fields: map[string]FieldValidator{
			"template_id": {
				Name:     "template_id",
				Type:     "string",
				Required: true,
				Custom:   uuidField,
			},
			"values": {
				Name:   "values",
				Type:   "object",
				Custom: fillValueMap,
			},
			"out": {
				Name:      "out",
				Type:      "string",
				MaxLength: 4096,
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "history",
		Fields: map[string]FieldValidator{
			"limit": {
				Name: "limit",
				Type: "int",
				Min:  intPtr(1),
				Max:  intPtr(1000),
			},
			"template_id": {
				Name:   "template_id",
				Type:   "string",
				Custom: uuidField,
			},
		},
	})
}

// ValidateTemplate checks a template record against template_record. The
// id may be empty for templates that have not been created yet.
func ValidateTemplate(t *models.Template) error {
	if t == nil {
		return errors.InvalidTemplateError("template is missing")
	}
	data := map[string]interface{}{
		"title":         t.Title,
		"template_type": string(t.Category),
		"content_html":  t.Body,
	}
	if t.ID != "" {
		data["id"] = t.ID
	}
	if t.Placeholders != nil {
		data["placeholders"] = t.Placeholders
	}
	if _, appErr := defaultValidator.ValidateToAppError("template_record", data); appErr != nil {
		return appErr.WithContext("template_id", t.ID)
	}
	return nil
}

// ValidateFillValues checks a user-supplied value map and converts it.
// Keys without delimiters are wrapped in them.
func ValidateFillValues(in map[string]string) (models.FillValues, error) {
	if _, appErr := defaultValidator.ValidateToAppError("fill_values", map[string]interface{}{"values": in}); appErr != nil {
		return nil, appErr
	}
	return models.FillValuesFromStrings(in), nil
}

// ToAppError converts validation result to AppError
func (result *ValidationResult) ToAppError() *errors.AppError {
	if result.Valid {
		return nil
	}

	if len(result.Errors) == 0 {
		return errors.ValidationError("Validation failed")
	}

	// Use the first error as the primary error
	firstError := result.Errors[0]
	appErr := errors.ValidationError(firstError.Message)

	var details []string
	for _, validationErr := range result.Errors {
		details = append(details, fmt.Sprintf("%s: %s", validationErr.Field, validationErr.Message))
	}

	appErr.WithDetails(strings.Join(details, "; "))

	appErr.WithContext("validation_errors", result.Errors)
	if len(result.Warnings) > 0 {
		appErr.WithContext("validation_warnings", result.Warnings)
	}

	return appErr
}

// GetValidatedData returns the validated and converted data
func (result *ValidationResult) GetValidatedData() map[string]interface{} {
	if !result.Valid {
		return nil
	}
	return result.Data
}
