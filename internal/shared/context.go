package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// CurrentUserID returns the authenticated user id, preferring the principal
// loaded by the auth middleware over the raw session value.
func CurrentUserID(ctx context.Context) (int64, bool) {
	if p := PrincipalFromContext(ctx); p != nil && p.ID > 0 {
		return p.ID, true
	}
	return SessionFromContext(ctx).UserID()
}

// Principal is the authenticated user as seen by handlers and templates.
type Principal struct {
	ID          int64
	Name        string
	Email       string
	Permissions map[string]bool
}

// Can reports whether the principal holds perm.
func (p *Principal) Can(perm string) bool {
	if p == nil {
		return false
	}
	return p.Permissions[perm]
}

// CanAny reports whether the principal holds at least one of perms.
func (p *Principal) CanAny(perms ...string) bool {
	for _, perm := range perms {
		if p.Can(perm) {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal loaded for the request, if any.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
