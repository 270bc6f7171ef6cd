package crmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/models"
)

const (
	idOne = "6f1c1d3e-1f0a-4c55-9d0a-2d7f5c1b9e10"
	idTwo = "7a2d2e4f-2a1b-4d66-8e1b-3e8a6d2caf21"
)

func newTestClient(t *testing.T, handler http.Handler, mutate ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:    srv.URL + "/api/v1",
		Token:      "secret",
		RetryDelay: time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func templateJSON(id, title, category, body string) map[string]any {
	return map[string]any{
		"id":            id,
		"title":         title,
		"template_type": category,
		"content_html":  body,
		"usage_count":   2,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingField))

	_, err = New(Config{BaseURL: "/relative"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidFormat))

	c, err := New(Config{BaseURL: "https://crm.example.com/api/"})
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.com/api", c.BaseURL())
}

func TestListTemplatesFollowsPagination(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/document-management/templates/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "contract", r.URL.Query().Get("template_type"))

		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, map[string]any{
				"count":    2,
				"next":     nil,
				"previous": serverURL + "/api/v1/document-management/templates/?template_type=contract",
				"results":  []any{templateJSON(idTwo, "İkinci", "contract", "<p>{{b}}</p>")},
			})
			return
		}
		next := serverURL + "/api/v1/document-management/templates/?page=2&template_type=contract"
		writeJSON(w, map[string]any{
			"count":    2,
			"next":     next,
			"previous": nil,
			"results":  []any{templateJSON(idOne, "Birinci", "contract", "<p>{{a}}</p>")},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	serverURL = srv.URL

	c, err := New(Config{BaseURL: srv.URL + "/api/v1", Token: "secret"})
	require.NoError(t, err)

	templates, err := c.ListTemplates(context.Background(), models.CategoryContract)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "Birinci", templates[0].Title)
	assert.Equal(t, "<p>{{a}}</p>", templates[0].Body)
	assert.Equal(t, models.CategoryContract, templates[0].Category)
	assert.Equal(t, idTwo, templates[1].ID)
}

func TestListTemplatesAcceptsBareArrayAndSkipsInvalid(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{
			templateJSON(idOne, "Rapor", "report", ""),
			templateJSON("not-a-uuid", "Bozuk", "report", ""),
			templateJSON(idTwo, "Fatura", "invoice", ""),
		})
	}))

	templates, err := c.ListTemplates(context.Background(), models.CategoryReport)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, idOne, templates[0].ID)
}

func TestGetTemplate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/document-management/templates/"+idOne+"/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, templateJSON(idOne, "Senet", "promissory_note", "<p>{{kisi_tam_adi}}</p>"))
	}))

	tmpl, err := c.GetTemplate(context.Background(), idOne)
	require.NoError(t, err)
	assert.Equal(t, "Senet", tmpl.Title)
	assert.Equal(t, 2, tmpl.UsageCount)

	_, err = c.GetTemplate(context.Background(), idTwo)
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
	assert.Equal(t, idTwo, appErr.Context["id"])
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   apperrors.ErrorCode
	}{
		{http.StatusUnauthorized, apperrors.ErrCodeUnauthorized},
		{http.StatusForbidden, apperrors.ErrCodeAccessDenied},
		{http.StatusBadRequest, apperrors.ErrCodeValidation},
		{http.StatusConflict, apperrors.ErrCodeAlreadyExists},
		{http.StatusGatewayTimeout, apperrors.ErrCodeServiceTimeout},
		{http.StatusBadGateway, apperrors.ErrCodeServiceUnavailable},
		{http.StatusTeapot, apperrors.ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"nope"}`, tt.status)
			}))
			_, err := c.GetCompany(context.Background(), "c1")
			require.Error(t, err)
			appErr := apperrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.Context["status"])
			assert.Contains(t, appErr.Details, "nope")
		})
	}
}

func TestRetriesIdempotentRequests(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"id": "p1", "full_name": "Ahmet Yılmaz", "branch": "b1"})
	}), func(cfg *Config) { cfg.MaxRetries = 2 })

	person, err := c.GetPerson(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "Ahmet Yılmaz", person.FullName)
	assert.Equal(t, models.EntityRef{Kind: models.KindBranch, ID: "b1"}, person.Branch)
}

func TestDoesNotRetryCreate(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), func(cfg *Config) { cfg.MaxRetries = 3 })

	_, err := c.SaveTemplate(context.Background(), &models.Template{Title: "x", Category: models.CategoryReport})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeServiceUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSaveTemplateCreateAndUpdate(t *testing.T) {
	type request struct {
		method string
		path   string
		body   templatePayload
	}
	var got []request

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body templatePayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, request{r.Method, r.URL.Path, body})

		id := idOne
		if r.Method == http.MethodPost {
			id = idTwo
			w.WriteHeader(http.StatusCreated)
		}
		writeJSON(w, templateJSON(id, body.Title, string(body.TemplateType), body.ContentHTML))
	}))
	ctx := context.Background()

	created, err := c.SaveTemplate(ctx, &models.Template{
		Title:    "Yeni",
		Category: models.CategoryContract,
		Body:     "<p>{{a}}</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, idTwo, created.ID)

	updated, err := c.SaveTemplate(ctx, &models.Template{
		ID:           idOne,
		Title:        "Eski",
		Category:     models.CategoryReport,
		Body:         "<p>{{b}}</p>",
		Placeholders: []models.Marker{"{{b}}"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Eski", updated.Title)

	require.Len(t, got, 2)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, "/api/v1/document-management/templates/", got[0].path)
	assert.Equal(t, []models.Marker{}, got[0].body.Placeholders)
	assert.Equal(t, http.MethodPut, got[1].method)
	assert.Equal(t, "/api/v1/document-management/templates/"+idOne+"/", got[1].path)
	assert.Equal(t, models.CategoryReport, got[1].body.TemplateType)
	assert.Equal(t, []models.Marker{"{{b}}"}, got[1].body.Placeholders)
}

func TestRateLimitedResponseSetsBackoff(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.GetBranch(context.Background(), "b1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRateLimited))

	retryAt := c.limiter.RetryAt()
	assert.WithinDuration(t, time.Now().Add(120*time.Second), retryAt, 5*time.Second)

	// The next call waits for the backoff and gives up with the context
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GetBranch(ctx, "b1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTimeout))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
}

func TestDecodeList(t *testing.T) {
	items, next, err := decodeList[models.Company]([]byte(`[{"id":"c1","title":"Acme"}]`))
	require.NoError(t, err)
	assert.Equal(t, "", next)
	assert.Equal(t, "Acme", items[0].Title)

	items, next, err = decodeList[models.Company]([]byte(`{"count":1,"next":"http://x/?page=2","previous":null,"results":[{"id":"c2"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "http://x/?page=2", next)
	assert.Equal(t, "c2", items[0].ID)

	_, _, err = decodeList[models.Company]([]byte(`  `))
	assert.Error(t, err)
	_, _, err = decodeList[models.Company]([]byte(`42`))
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	assert.NoError(t, c.Ping(context.Background()))

	down := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	assert.Error(t, down.Ping(context.Background()))
}

func TestRateLimiterDisabledByNonPositiveRate(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	assert.True(t, rl.RetryAt().IsZero())

	rl.Backoff(0)
	assert.WithinDuration(t, time.Now().Add(DefaultRetryAfter), rl.RetryAt(), time.Second)
}
