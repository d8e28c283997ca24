package archive

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

func newRouter(t *testing.T, f fixture) http.Handler {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, engine, nil, rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/archive", h.MountRoutes)
	return r
}

func serve(router http.Handler, method, target string, userID int64, perms ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	granted := map[string]bool{}
	for _, p := range perms {
		granted[p] = true
	}
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{ID: userID, Permissions: granted}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestArchiveAndRestoreRoutes(t *testing.T) {
	f := newFixture()
	router := newRouter(t, f)

	rec := serve(router, http.MethodPost, "/archive/projects/1", 1, shared.PermArchiveManage)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/archive/batches/"+batchIDs[0].String(), rec.Header().Get("Location"))

	rec = serve(router, http.MethodGet, "/archive", 1, shared.PermArchiveManage)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TWR-A Tower A")

	rec = serve(router, http.MethodGet, "/archive/batches/"+batchIDs[0].String(), 1, shared.PermArchiveManage)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/restore")

	rec = serve(router, http.MethodPost, "/archive/batches/"+batchIDs[0].String()+"/restore", 1, shared.PermArchiveManage)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, f.repo.batches[batchIDs[0]].Restored())

	rec = serve(router, http.MethodGet, "/archive/batches/"+batchIDs[0].String(), 1, shared.PermArchiveManage)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "/restore")
}

func TestArchiveRouteErrors(t *testing.T) {
	f := newFixture()
	router := newRouter(t, f)

	rec := serve(router, http.MethodPost, "/archive/users/2", 2, shared.PermArchiveManage)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/users/2", rec.Header().Get("Location"))
	assert.Empty(t, f.repo.batches)

	rec = serve(router, http.MethodPost, "/archive/projects/9", 1, shared.PermArchiveManage)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodGet, "/archive/batches/not-a-uuid", 1, shared.PermArchiveManage)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodPost, "/archive/projects/1", 1, shared.PermProjectsEdit)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.repo.batches)
}
