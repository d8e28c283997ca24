package view

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatebook/estatebook/internal/shared"
	_ "github.com/estatebook/estatebook/testing"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err, "Templates should parse without error")
	for _, name := range []string{"layouts/head", "layouts/foot", "pages/auth/login.html", "pages/roles/list.html"} {
		assert.True(t, engine.Has(name), name)
	}
}

func TestRenderBuffersAndSetsStatus(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/pages/ok.html":  {Data: []byte(`{{define "ok"}}<p>{{.Title}} {{money .Data}}</p>{{end}}`)},
		"templates/pages/bad.html": {Data: []byte(`{{define "bad"}}{{.Missing.Field}}{{end}}`)},
	}
	engine, err := newEngine(fsys)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, http.StatusCreated, "ok", TemplateData{Title: "Paid", Data: 1234.5}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<p>Paid 1,234.50</p>", rec.Body.String())

	rec = httptest.NewRecorder()
	require.Error(t, engine.Render(rec, http.StatusOK, "bad", TemplateData{}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<p>")
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0.00", FormatMoney(-0.001))
	assert.Equal(t, "1,000,000.00", FormatMoney(1e6))
	assert.Equal(t, "-12.50", FormatMoney(-12.5))
}

func TestFuncsDict(t *testing.T) {
	dict := Funcs()["dict"].(func(...any) (map[string]any, error))
	m, err := dict("a", 1, "b", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, m["a"])
	_, err = dict("odd")
	assert.Error(t, err)
}

func TestBaseCollectsRequestState(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	p := &shared.Principal{ID: 3, Name: "Ana", Permissions: map[string]bool{"projects.view": true}}
	req = req.WithContext(shared.ContextWithPrincipal(context.Background(), p))

	data := Base(req, nil, "Projects")
	assert.Equal(t, "Projects", data.Title)
	assert.Equal(t, "/projects", data.CurrentPath)
	assert.Same(t, p, data.User)
	assert.Empty(t, data.CSRFToken)
	assert.Nil(t, data.Flash)
}

func TestFormatDateHelpers(t *testing.T) {
	funcs := Funcs()
	d := time.Date(2025, 4, 9, 13, 5, 0, 0, time.UTC)
	assert.Equal(t, "09 Apr 2025", funcs["formatDate"].(func(time.Time) string)(d))
	assert.Equal(t, "2025-04-09", funcs["inputDate"].(func(time.Time) string)(d))
	assert.Equal(t, "", funcs["formatDatePtr"].(func(*time.Time) string)(nil))
	assert.True(t, strings.HasPrefix(funcs["title"].(func(string) string)("BANK_TRANSFER"), "Bank transfer"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "2 KB", FormatSize(2048))
	assert.Equal(t, "1.5 MB", FormatSize(3<<19))
}
