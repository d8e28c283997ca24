package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatebook/estatebook/internal/shared"
)

func requestWithUser(t *testing.T, target string, userID int64) (*http.Request, *shared.Session) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sm := shared.NewSessionManager(client, "sid", "secret", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	if userID > 0 {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func seededMiddleware(t *testing.T) (Middleware, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	svc := NewService(repo)
	_, err := svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	repo.identities[1] = Identity{ID: 1, Name: "Admin", Email: "admin@example.com", IsActive: true}
	repo.identities[2] = Identity{ID: 2, Name: "Member", Email: "member@example.com", IsActive: true}
	repo.identities[3] = Identity{ID: 3, Name: "Gone", Email: "gone@example.com", IsActive: false}
	require.NoError(t, svc.AssignRoleByName(context.Background(), 1, shared.RoleAdmin))
	require.NoError(t, svc.AssignRoleByName(context.Background(), 2, shared.RoleMember))
	return Middleware{Service: svc}, repo
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRequireAnyRedirectsAnonymous(t *testing.T) {
	mw, _ := seededMiddleware(t)
	req, _ := requestWithUser(t, "/projects?page=2", 0)
	rec := httptest.NewRecorder()
	mw.RequireAny(shared.PermProjectsView)(okHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fprojects%3Fpage%3D2", rec.Header().Get("Location"))
}

func TestRequireAnyForbidsMissingPermission(t *testing.T) {
	mw, _ := seededMiddleware(t)
	req, _ := requestWithUser(t, "/projects", 2)
	rec := httptest.NewRecorder()
	mw.LoadPrincipal(mw.RequireAny(shared.PermProjectsView)(okHandler)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAllAllowsAdmin(t *testing.T) {
	mw, _ := seededMiddleware(t)
	req, _ := requestWithUser(t, "/accounting/journal", 1)
	rec := httptest.NewRecorder()
	mw.LoadPrincipal(mw.RequireAll(shared.PermAccountingView, shared.PermAccountingEdit)(okHandler)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAnyWithoutPrincipalFallsBackToLookup(t *testing.T) {
	mw, _ := seededMiddleware(t)
	req, _ := requestWithUser(t, "/me", 2)
	rec := httptest.NewRecorder()
	mw.RequireAny(shared.PermSelfView)(okHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoadPrincipalSignsOutDisabledUser(t *testing.T) {
	mw, _ := seededMiddleware(t)
	req, sess := requestWithUser(t, "/", 3)

	var seen *shared.Principal
	mw.LoadPrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), req)

	assert.Nil(t, seen)
	_, ok := sess.UserID()
	assert.False(t, ok)
}

func TestRequireAuthRejectsAnonymousPost(t *testing.T) {
	mw, _ := seededMiddleware(t)
	req, _ := requestWithUser(t, "/auth/logout", 0)
	req.Method = http.MethodPost
	rec := httptest.NewRecorder()
	mw.RequireAuth(okHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
