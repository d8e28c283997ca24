package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/estatebook/estatebook/internal/shared"
)

// AuditRecorder stores sign-in events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service signs users in and out.
type Service struct {
	repo      Repository
	audit     AuditRecorder
	dummyHash []byte
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit AuditRecorder) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("estatebook-unknown-user"), bcrypt.DefaultCost)
	return &Service{repo: repo, audit: audit, dummyHash: dummy}
}

// Authenticate validates email/password credentials. Unknown emails, disabled
// accounts and wrong passwords are indistinguishable to the caller, and an
// unknown email still pays for one bcrypt comparison.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	}
	if !user.CheckPassword(password) || !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession stores the session row and audits the sign-in.
func (s *Service) RegisterSession(ctx context.Context, sess Session) error {
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return err
	}
	return s.record(ctx, sess.UserID, "auth.login", map[string]any{"ip": sess.IP})
}

// RemoveSession deletes the session row and audits the sign-out. userID is
// zero when the session was anonymous.
func (s *Service) RemoveSession(ctx context.Context, id string, userID int64) error {
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return err
	}
	if userID == 0 {
		return nil
	}
	return s.record(ctx, userID, "auth.logout", nil)
}

// PruneSessions deletes session rows that expired before now.
func (s *Service) PruneSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, now)
}

func (s *Service) record(ctx context.Context, userID int64, action string, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
}
