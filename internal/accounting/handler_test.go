package accounting

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatebook/estatebook/internal/platform/httpx"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
	_ "github.com/estatebook/estatebook/testing"
)

type handlerEnv struct {
	router http.Handler
	svc    *Service
}

func newHandlerEnv(t *testing.T) handlerEnv {
	t.Helper()
	svc, _ := seededService(t)
	engine, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, engine, nil, rbac.Middleware{}, nil)
	h.now = func() time.Time { return time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/accounting", h.MountRoutes)
	return handlerEnv{router: r, svc: svc}
}

func (e handlerEnv) do(t *testing.T, method, target string, form url.Values, perms ...string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	granted := map[string]bool{}
	for _, p := range perms {
		granted[p] = true
	}
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{ID: 1, Name: "Admin", Permissions: granted}))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

var allAccounting = []string{shared.PermAccountingView, shared.PermAccountingEdit, shared.PermReportsExport}

func manualForm(key string, debit, credit string) url.Values {
	return url.Values{
		"date":             {"2026-03-02"},
		"memo":             {"Owner capital"},
		"entry_key":        {key},
		"account_code":     {"110101", "310101", ""},
		"line_description": {"", "", ""},
		"debit":            {debit, "", ""},
		"credit":           {"", credit, ""},
	}
}

func TestManualEntryPostsOnce(t *testing.T) {
	env := newHandlerEnv(t)
	key := uuid.NewString()

	rec := env.do(t, http.MethodPost, "/accounting/journal", manualForm(key, "1,000.00", "1000"), allAccounting...)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/accounting/journal/1", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodPost, "/accounting/journal", manualForm(key, "1,000.00", "1000"), allAccounting...)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/accounting/journal/1", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, "/accounting/journal/1", nil, allAccounting...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Owner capital")
	assert.Contains(t, rec.Body.String(), "Reverse entry")
}

func TestManualEntryRejectsUnbalanced(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodPost, "/accounting/journal", manualForm(uuid.NewString(), "100", "90"), allAccounting...)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Debits and credits must balance.")
}

func TestLedgerPages(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodPost, "/accounting/journal", manualForm(uuid.NewString(), "250", "250"), allAccounting...)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.do(t, http.MethodGet, "/accounting/ledger/detail?code=110101", nil, shared.PermAccountingView)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "250.00")

	rec = env.do(t, http.MethodGet, "/accounting/ledger/general?code=110101", nil, shared.PermAccountingView)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not belong to this ledger level")

	rec = env.do(t, http.MethodGet, "/accounting/ledger/monthly?code=11", nil, shared.PermAccountingView)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/accounting/ledger/general?code=11", nil, shared.PermAccountingView)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Current assets")
}

func TestLedgerAPI(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodGet, "/accounting/api/ledger/general?code=110101", nil, shared.PermAccountingView)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Status)

	rec = env.do(t, http.MethodGet, "/accounting/api/ledger/detail?code=999999", nil, shared.PermAccountingView)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/accounting/api/trial-balance?level=2", nil, shared.PermAccountingView)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balanced":true`)
}

func TestExports(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodPost, "/accounting/journal", manualForm(uuid.NewString(), "80", "80"), allAccounting...)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.do(t, http.MethodGet, "/accounting/journal/export", nil, shared.PermAccountingView)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/accounting/journal/export", nil, allAccounting...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "daybook-2026-03-01_2026-03-20.csv")
	assert.Contains(t, rec.Body.String(), "110101")

	rec = env.do(t, http.MethodGet, "/accounting/reports/bs/export?as_of=2026-03-31", nil, allAccounting...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Assets,110101,Cash,80.00")

	rec = env.do(t, http.MethodGet, "/accounting/reports/pl/export?format=pdf", nil, allAccounting...)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodGet, "/accounting/reports/cashflow/export", nil, allAccounting...)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSeedAndMappingPages(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodPost, "/accounting/accounts/seed", url.Values{}, allAccounting...)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.do(t, http.MethodPost, "/accounting/mappings", url.Values{"module": {"payment"}, "key": {"cash"}, "code": {"1101"}}, allAccounting...)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	m, err := env.svc.ResolveMapping(context.Background(), MappingPayment, KeyCash)
	require.NoError(t, err)
	assert.Equal(t, "110101", m.AccountCode)

	rec = env.do(t, http.MethodPost, "/accounting/mappings", url.Values{"module": {"payment"}, "key": {"cash"}, "code": {"110102"}}, allAccounting...)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	m, err = env.svc.ResolveMapping(context.Background(), MappingPayment, KeyCash)
	require.NoError(t, err)
	assert.Equal(t, "110102", m.AccountCode)

	for _, path := range []string{"/accounting/accounts", "/accounting/mappings", "/accounting/journal", "/accounting/journal/new",
		"/accounting/reports/trial-balance", "/accounting/reports/pl", "/accounting/reports/bs", "/accounting/integrity", "/accounting/accounts/new"} {
		rec = env.do(t, http.MethodGet, path, nil, allAccounting...)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
