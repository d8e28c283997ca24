package shared

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
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "estatebook_session", "secret", time.Hour, false), mr
}

func roundTrip(t *testing.T, sm *SessionManager, cookie *http.Cookie, fn func(*Session)) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	fn(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, req, sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestSessionPersistsUserAndFlash(t *testing.T) {
	sm, _ := newTestSessions(t)

	cookie := roundTrip(t, sm, nil, func(s *Session) {
		s.SetUser(42)
		s.AddFlash(FlashMessage{Kind: FlashSuccess, Message: "Saved"})
	})

	var flash *FlashMessage
	cookie = roundTrip(t, sm, cookie, func(s *Session) {
		id, ok := s.UserID()
		require.True(t, ok)
		assert.Equal(t, int64(42), id)
		flash = s.PopFlash()
	})
	require.NotNil(t, flash)
	assert.Equal(t, "Saved", flash.Message)

	roundTrip(t, sm, cookie, func(s *Session) {
		assert.Nil(t, s.PopFlash())
	})
}

func TestSessionUnknownCookieGetsFreshID(t *testing.T) {
	sm, _ := newTestSessions(t)
	forged := &http.Cookie{Name: sm.CookieName(), Value: "attacker-chosen"}
	cookie := roundTrip(t, sm, forged, func(s *Session) {})
	assert.NotEqual(t, "attacker-chosen", cookie.Value)
}

func TestSessionRenewDropsPreviousID(t *testing.T) {
	sm, mr := newTestSessions(t)
	cookie := roundTrip(t, sm, nil, func(s *Session) { s.Set("k", "v") })
	oldID := cookie.Value

	renewed := roundTrip(t, sm, cookie, func(s *Session) {
		sm.Renew(s)
		s.SetUser(7)
	})

	assert.NotEqual(t, oldID, renewed.Value)
	assert.False(t, mr.Exists("estatebook:session:"+oldID))
	assert.True(t, mr.Exists("estatebook:session:"+renewed.Value))

	roundTrip(t, sm, renewed, func(s *Session) {
		assert.Equal(t, "v", s.Get("k"))
	})
}

func TestSessionDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestSessions(t)
	cookie := roundTrip(t, sm, nil, func(s *Session) { s.SetUser(1) })
	expired := roundTrip(t, sm, cookie, func(s *Session) { sm.Destroy(s) })
	assert.Equal(t, -1, expired.MaxAge)
	assert.False(t, mr.Exists("estatebook:session:"+cookie.Value))
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newTestSessions(t)
	mgr := NewCSRFManager("csrf-secret")
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)

	token, err := mgr.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := mgr.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	require.NoError(t, mgr.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, mgr.VerifyToken(ctx, sess, "bogus"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, mgr.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)

	rotated, err := mgr.Rotate(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, rotated)
	assert.ErrorIs(t, mgr.VerifyToken(ctx, sess, token), ErrCSRFTokenMismatch)
}
