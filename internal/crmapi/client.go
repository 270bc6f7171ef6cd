// Package crmapi is the REST client for the CRM back-office API. It fetches
// and saves document templates and reads the company, branch and person
// records used to prefill template fields.
package crmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/validation"
)

const (
	templatesPath = "/document-management/templates/"
	companiesPath = "/core/companies/"
	branchesPath  = "/core/branches/"
	peoplePath    = "/core/people/"

	// maxPages bounds pagination so a misbehaving server cannot loop us
	maxPages = 100

	maxErrorBody = 4 << 10
)

// Config configures a Client
type Config struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryDelay        time.Duration
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client talks to the CRM REST API
type Client struct {
	base     *url.URL
	token    string
	http     *http.Client
	limiter  *RateLimiter
	recovery *apperrors.ErrorRecovery
	logger   *zap.Logger
}

// New creates a client for cfg.BaseURL
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, apperrors.NewAppError(apperrors.ErrCodeMissingField, "API base URL is not configured")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.NewAppError(apperrors.ErrCodeInvalidFormat, "API base URL must be absolute").
			WithContext("base_url", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:     base,
		token:    cfg.Token,
		http:     httpClient,
		limiter:  NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		recovery: apperrors.NewErrorRecovery(cfg.MaxRetries, cfg.RetryDelay),
		logger:   logger.Named("crmapi"),
	}, nil
}

// BaseURL returns the configured API root
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one request and returns the body of a 2xx response. Idempotent
// requests are retried for retryable failures; writes are sent once.
func (c *Client) do(ctx context.Context, method, rawURL string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to encode request")
		}
	}

	idempotent := method == http.MethodGet || method == http.MethodPut
	for attempt := 0; ; attempt++ {
		data, err := c.send(ctx, method, rawURL, payload)
		if err == nil {
			return data, nil
		}
		if !idempotent || !c.recovery.ShouldRetry(err, attempt) {
			return nil, err
		}

		delay := c.recovery.GetRetryDelay(attempt)
		c.logger.Warn("retrying request",
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeTimeout, "request cancelled")
		case <-timer.C:
		}
	}
}

func (c *Client) send(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request cancelled while rate limited")
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NetworkError(method+" "+rawURL, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, apperrors.NetworkError("read response", err)
		}
		return data, nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.Backoff(parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	}
	return nil, statusError(resp.StatusCode, method, rawURL, detail)
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return at.Sub(now)
	}
	return 0
}

// statusError maps a non-2xx response to an AppError
func statusError(status int, method, rawURL string, body []byte) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch {
	case status == http.StatusNotFound:
		appErr = apperrors.NewAppError(apperrors.ErrCodeNotFound, "Resource not found")
	case status == http.StatusUnauthorized:
		appErr = apperrors.NewAppError(apperrors.ErrCodeUnauthorized, "API token missing or rejected")
	case status == http.StatusForbidden:
		appErr = apperrors.NewAppError(apperrors.ErrCodeAccessDenied, "Access to the resource was denied")
	case status == http.StatusTooManyRequests:
		appErr = apperrors.NewAppError(apperrors.ErrCodeRateLimited, "API rate limit exceeded")
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		appErr = apperrors.NewAppError(apperrors.ErrCodeValidation, "API rejected the request")
	case status == http.StatusConflict:
		appErr = apperrors.NewAppError(apperrors.ErrCodeAlreadyExists, "Resource conflict")
	case status == http.StatusGatewayTimeout:
		appErr = apperrors.NewAppError(apperrors.ErrCodeServiceTimeout, "API timed out")
	case status >= 500:
		appErr = apperrors.NewAppError(apperrors.ErrCodeServiceUnavailable, "API is unavailable")
	default:
		appErr = apperrors.NewAppError(apperrors.ErrCodeInternalError, fmt.Sprintf("Unexpected API status %d", status))
	}

	appErr.WithContext("status", status).
		WithContext("method", method).
		WithContext("url", rawURL)
	if detail := strings.TrimSpace(string(body)); detail != "" {
		appErr.WithDetails(detail)
	}
	return appErr
}

func listAll[T any](ctx context.Context, c *Client, rawURL string) ([]T, error) {
	var all []T
	for page := 0; rawURL != "" && page < maxPages; page++ {
		data, err := c.do(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		items, next, err := decodeList[T](data)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidFormat, "failed to decode list response").
				WithContext("url", rawURL)
		}
		all = append(all, items...)
		rawURL = next
	}
	return all, nil
}

func getOne[T any](ctx context.Context, c *Client, rawURL string) (*T, error) {
	data, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidFormat, "failed to decode response").
			WithContext("url", rawURL)
	}
	return &out, nil
}

// ListTemplates fetches every template of a category, following pagination.
// Records that fail validation are skipped and logged.
func (c *Client) ListTemplates(ctx context.Context, category models.Category) ([]*models.Template, error) {
	query := url.Values{}
	if category != "" {
		query.Set("template_type", string(category))
	}

	records, err := listAll[models.Template](ctx, c, c.resolve(templatesPath, query))
	if err != nil {
		return nil, err
	}

	templates := make([]*models.Template, 0, len(records))
	for i := range records {
		tmpl := &records[i]
		if err := validation.ValidateTemplate(tmpl); err != nil {
			c.logger.Warn("skipping invalid template record",
				zap.String("id", tmpl.ID),
				zap.Error(err))
			continue
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

// GetTemplate fetches one template by id
func (c *Client) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	tmpl, err := getOne[models.Template](ctx, c, c.resolve(templatesPath+url.PathEscape(id)+"/", nil))
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return nil, apperrors.NotFoundError("Template").WithContext("id", id)
		}
		return nil, err
	}
	if err := validation.ValidateTemplate(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// templatePayload is the write shape accepted by the templates endpoint
type templatePayload struct {
	Title        string          `json:"title"`
	TemplateType models.Category `json:"template_type"`
	ContentHTML  string          `json:"content_html"`
	Placeholders []models.Marker `json:"placeholders"`
}

// SaveTemplate creates the template when it has no id, otherwise replaces
// it. The server's copy is returned.
func (c *Client) SaveTemplate(ctx context.Context, tmpl *models.Template) (*models.Template, error) {
	payload := templatePayload{
		Title:        tmpl.Title,
		TemplateType: tmpl.Category,
		ContentHTML:  tmpl.Body,
		Placeholders: tmpl.Placeholders,
	}
	if payload.Placeholders == nil {
		payload.Placeholders = []models.Marker{}
	}

	method, rawURL := http.MethodPost, c.resolve(templatesPath, nil)
	if tmpl.ID != "" {
		method, rawURL = http.MethodPut, c.resolve(templatesPath+url.PathEscape(tmpl.ID)+"/", nil)
	}

	data, err := c.do(ctx, method, rawURL, payload)
	if err != nil {
		return nil, err
	}

	var saved models.Template
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidFormat, "failed to decode saved template")
	}
	if err := validation.ValidateTemplate(&saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// GetCompany fetches a company record
func (c *Client) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	return getOne[models.Company](ctx, c, c.resolve(companiesPath+url.PathEscape(id)+"/", nil))
}

// GetBranch fetches a branch record
func (c *Client) GetBranch(ctx context.Context, id string) (*models.Branch, error) {
	return getOne[models.Branch](ctx, c, c.resolve(branchesPath+url.PathEscape(id)+"/", nil))
}

// GetPerson fetches a person record
func (c *Client) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	return getOne[models.Person](ctx, c, c.resolve(peoplePath+url.PathEscape(id)+"/", nil))
}

// Ping checks that the API answers at all. Any non-5xx status counts as
// reachable since the root may require authentication.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.send(ctx, http.MethodGet, c.resolve("/", nil), nil)
	if err == nil {
		return nil
	}
	switch apperrors.GetAppError(err).Code {
	case apperrors.ErrCodeNetworkFailure, apperrors.ErrCodeServiceUnavailable,
		apperrors.ErrCodeServiceTimeout, apperrors.ErrCodeTimeout:
		return err
	}
	return nil
}
