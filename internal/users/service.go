package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
)

// RolePort manages role assignments of a user.
type RolePort interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	UserRoleIDs(ctx context.Context, userID int64) ([]int64, error)
	SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// MemberAccountPort opens the receivable detail account of a user.
type MemberAccountPort interface {
	EnsureMemberAccount(ctx context.Context, userID int64, name string) error
}

// AuditPort records user administration events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo     Repository
	roles    RolePort
	accounts MemberAccountPort
	audit    AuditPort
	tx       shared.TxRunner
	validate *validator.Validate
	cost     int
}

// NewService builds Service instance.
func NewService(repo Repository, roles RolePort, accounts MemberAccountPort, audit AuditPort, tx shared.TxRunner) *Service {
	if tx == nil {
		tx = shared.NoTx{}
	}
	return &Service{
		repo:     repo,
		roles:    roles,
		accounts: accounts,
		audit:    audit,
		tx:       tx,
		validate: validator.New(),
		cost:     bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// List returns one page of users.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]User, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = shared.DefaultPerPage
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// RoleIDs returns the roles assigned to a user.
func (s *Service) RoleIDs(ctx context.Context, id int64) ([]int64, error) {
	if s.roles == nil {
		return nil, nil
	}
	return s.roles.UserRoleIDs(ctx, id)
}

// Roles lists the roles offered on the user form.
func (s *Service) Roles(ctx context.Context) ([]rbac.Role, error) {
	if s.roles == nil {
		return nil, nil
	}
	return s.roles.ListRoles(ctx)
}

// Validate checks the submission and returns per-field messages.
func (s *Service) Validate(in UserInput, creating bool) map[string]string {
	errs := map[string]string{}
	if err := s.validate.Struct(normalize(in)); err != nil {
		errs = shared.ValidationMessages(err)
	}
	if creating && strings.TrimSpace(in.Password) == "" {
		errs["Password"] = ErrPasswordRequired.Error()
	}
	return errs
}

// Create registers a user, assigns roles and opens the member receivable
// account in one transaction.
func (s *Service) Create(ctx context.Context, actorID int64, in UserInput) (User, error) {
	in = normalize(in)
	if errs := s.Validate(in, true); len(errs) > 0 {
		return User{}, fieldError(errs)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	var created User
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.Create(ctx, User{
			Email:      in.Email,
			Name:       in.Name,
			Phone:      in.Phone,
			NationalID: in.NationalID,
			IsActive:   true,
		}, string(hash))
		if err != nil {
			return err
		}
		if s.roles != nil && len(in.RoleIDs) > 0 {
			if err := s.roles.SetUserRoles(ctx, u.ID, in.RoleIDs); err != nil {
				return err
			}
		}
		if s.accounts != nil {
			if err := s.accounts.EnsureMemberAccount(ctx, u.ID, u.Name); err != nil {
				return fmt.Errorf("users: open member account: %w", err)
			}
		}
		created = u
		return s.record(ctx, actorID, "user.create", u.ID, map[string]any{"email": u.Email})
	})
	return created, err
}

// Update changes profile fields, optionally the password, and the roles.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UserInput) (User, error) {
	in = normalize(in)
	if errs := s.Validate(in, false); len(errs) > 0 {
		return User{}, fieldError(errs)
	}
	var updated User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.Update(ctx, User{ID: id, Email: in.Email, Name: in.Name, Phone: in.Phone, NationalID: in.NationalID})
		if err != nil {
			return err
		}
		if in.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
			if err != nil {
				return fmt.Errorf("users: hash password: %w", err)
			}
			if err := s.repo.SetPassword(ctx, id, string(hash)); err != nil {
				return err
			}
		}
		if s.roles != nil && in.RoleIDs != nil {
			if err := s.roles.SetUserRoles(ctx, id, in.RoleIDs); err != nil {
				return err
			}
		}
		if s.accounts != nil {
			if err := s.accounts.EnsureMemberAccount(ctx, u.ID, u.Name); err != nil {
				return fmt.Errorf("users: rename member account: %w", err)
			}
		}
		updated = u
		return s.record(ctx, actorID, "user.update", id, map[string]any{"password_changed": in.Password != ""})
	})
	return updated, err
}

// SetActive enables or disables sign in for a user.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) error {
	if !active && actorID == id {
		return ErrSelfDeactivate
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SetActive(ctx, id, active); err != nil {
			return err
		}
		return s.record(ctx, actorID, "user.set_active", id, map[string]any{"active": active})
	})
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func normalize(in UserInput) UserInput {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.NationalID = strings.TrimSpace(in.NationalID)
	return in
}

// FieldErrors carries per-field validation messages out of the service.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return "users: invalid input"
}

func fieldError(errs map[string]string) error {
	return FieldErrors(errs)
}

// AsFieldErrors extracts validation messages from err.
func AsFieldErrors(err error) (map[string]string, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
