package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/estatebook/estatebook/internal/shared"
)

// LoginPath is where anonymous visitors of protected pages are sent.
const LoginPath = "/auth/login"

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// LoadPrincipal resolves the session user into a shared.Principal stored in
// the request context. Sessions pointing at missing or disabled users are
// signed out.
func (m Middleware) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		userID, ok := sess.UserID()
		if !ok || m.Service == nil {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Service.Principal(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.logError("rbac load principal", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			sess.ClearUser()
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireAuth only lets signed-in users through.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.permissions(w, r); !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted, ok := m.permissions(w, r)
			if !ok {
				return
			}
			if hasAnyPermission(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted, ok := m.permissions(w, r)
			if !ok {
				return
			}
			if hasAllPermissions(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// permissions returns the granted set, answering the request itself when the
// caller is anonymous or the lookup fails.
func (m Middleware) permissions(w http.ResponseWriter, r *http.Request) (map[string]bool, bool) {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.Permissions, true
	}
	userID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		m.denyAnonymous(w, r)
		return nil, false
	}
	if m.Service == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return nil, false
	}
	perms, err := m.Service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		m.logError("rbac effective permissions", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	set := make(map[string]bool, len(perms))
	for _, p := range perms {
		set[strings.ToLower(p)] = true
	}
	return set, true
}

func (m Middleware) denyAnonymous(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && !strings.Contains(r.Header.Get("Accept"), "application/json") {
		http.Redirect(w, r, LoginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted map[string]bool, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if granted[r] {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted map[string]bool, required []string) bool {
	for _, r := range required {
		if !granted[r] {
			return false
		}
	}
	return true
}
