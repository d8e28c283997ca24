package projects

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/users"
)

// UserDirectory looks up the accounts that can join a project.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (users.User, error)
	List(ctx context.Context, filter users.ListFilter) ([]users.User, shared.Pagination, error)
}

// AuditPort records project administration events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached dashboard figures after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service implements project, unit and membership operations.
type Service struct {
	repo     Repository
	users    UserDirectory
	audit    AuditPort
	cache    Invalidator
	tx       shared.TxRunner
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo Repository, directory UserDirectory, audit AuditPort, cache Invalidator, tx shared.TxRunner) *Service {
	if tx == nil {
		tx = shared.NoTx{}
	}
	return &Service{repo: repo, users: directory, audit: audit, cache: cache, tx: tx, validate: validator.New()}
}

// List returns one page of projects.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Project, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = shared.DefaultPerPage
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get returns a project by id.
func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	return s.repo.Get(ctx, id)
}

// Validate checks a project submission.
func (s *Service) Validate(in ProjectInput) map[string]string {
	errs := map[string]string{}
	if err := s.validate.Struct(in); err != nil {
		errs = shared.ValidationMessages(err)
	}
	if in.EndDate != nil && !in.StartDate.IsZero() && in.EndDate.Before(in.StartDate) {
		errs["EndDate"] = ErrInvalidDates.Error()
	}
	return errs
}

// Create registers a project.
func (s *Service) Create(ctx context.Context, actorID int64, in ProjectInput) (Project, error) {
	in = normalizeProject(in)
	if errs := s.Validate(in); len(errs) > 0 {
		return Project{}, FieldErrors(errs)
	}
	var created Project
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.Create(ctx, projectFromInput(in))
		if err != nil {
			return err
		}
		created = p
		return s.record(ctx, actorID, "project.create", "project", p.ID, map[string]any{"code": p.Code})
	})
	if err == nil {
		s.bump(ctx)
	}
	return created, err
}

// Update changes a project.
func (s *Service) Update(ctx context.Context, actorID, id int64, in ProjectInput) (Project, error) {
	in = normalizeProject(in)
	if errs := s.Validate(in); len(errs) > 0 {
		return Project{}, FieldErrors(errs)
	}
	var updated Project
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p := projectFromInput(in)
		p.ID = id
		p, err := s.repo.Update(ctx, p)
		if err != nil {
			return err
		}
		updated = p
		return s.record(ctx, actorID, "project.update", "project", id, map[string]any{"status": p.Status})
	})
	if err == nil {
		s.bump(ctx)
	}
	return updated, err
}

// ListUnits returns the units of a project with their owners.
func (s *Service) ListUnits(ctx context.Context, projectID int64) ([]Unit, error) {
	return s.repo.ListUnits(ctx, projectID)
}

// AddUnit creates a unit in a project.
func (s *Service) AddUnit(ctx context.Context, actorID, projectID int64, in UnitInput) (Unit, error) {
	in.Number = strings.TrimSpace(in.Number)
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	if err := s.validate.Struct(in); err != nil {
		return Unit{}, FieldErrors(shared.ValidationMessages(err))
	}
	var created Unit
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Get(ctx, projectID); err != nil {
			return err
		}
		u, err := s.repo.CreateUnit(ctx, Unit{
			ProjectID: projectID,
			Number:    in.Number,
			Floor:     in.Floor,
			Area:      shared.Round2(in.Area),
			Type:      in.Type,
			Price:     shared.Round2(in.Price),
		})
		if err != nil {
			return err
		}
		created = u
		return s.record(ctx, actorID, "unit.create", "project", projectID, map[string]any{"unit": u.Number})
	})
	return created, err
}

// ListMembers returns the members of a project.
func (s *Service) ListMembers(ctx context.Context, projectID int64) ([]Member, error) {
	return s.repo.ListMembers(ctx, projectID)
}

// Shares summarises the allocated share of a project.
func (s *Service) Shares(ctx context.Context, projectID int64) (ShareSummary, error) {
	members, err := s.repo.ListMembers(ctx, projectID)
	if err != nil {
		return ShareSummary{}, err
	}
	return summarize(members, 0), nil
}

// Candidates lists active users for the first step of the assign wizard.
func (s *Service) Candidates(ctx context.Context, search string, page int) ([]users.User, shared.Pagination, error) {
	active := true
	return s.users.List(ctx, users.ListFilter{Search: search, Active: &active, Page: page})
}

// CheckAssignment validates a member assignment without saving it.
func (s *Service) CheckAssignment(ctx context.Context, projectID int64, in MemberInput) (Assignment, error) {
	project, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return Assignment{}, err
	}
	return s.check(ctx, project, in)
}

// AssignMember adds a user to a project or changes an existing membership.
// Shares of one project never sum above 100%.
func (s *Service) AssignMember(ctx context.Context, actorID, projectID int64, in MemberInput) (Assignment, error) {
	var out Assignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		project, err := s.repo.Lock(ctx, projectID)
		if err != nil {
			return err
		}
		a, err := s.check(ctx, project, in)
		if err != nil {
			return err
		}
		m := Member{ProjectID: projectID, UserID: a.UserID, SharePercent: a.SharePercent}
		if a.Unit != nil {
			unitID := a.Unit.ID
			m.UnitID = &unitID
		}
		if err := s.repo.UpsertMember(ctx, m); err != nil {
			return err
		}
		out = a
		return s.record(ctx, actorID, "project.assign_member", "project", projectID, map[string]any{
			"user_id": a.UserID,
			"share":   a.SharePercent,
		})
	})
	if err == nil {
		s.bump(ctx)
	}
	return out, err
}

func (s *Service) check(ctx context.Context, project Project, in MemberInput) (Assignment, error) {
	if err := s.validate.Struct(in); err != nil {
		errs := shared.ValidationMessages(err)
		if _, ok := errs["SharePercent"]; ok {
			return Assignment{}, ErrInvalidShare
		}
		return Assignment{}, FieldErrors(errs)
	}
	share := roundShare(in.SharePercent)
	if share <= 0 || share > 100 {
		return Assignment{}, ErrInvalidShare
	}
	user, err := s.users.Get(ctx, in.UserID)
	if err != nil {
		return Assignment{}, err
	}
	if !user.IsActive {
		return Assignment{}, ErrInactiveUser
	}

	members, err := s.repo.ListMembers(ctx, project.ID)
	if err != nil {
		return Assignment{}, err
	}
	a := Assignment{Project: project, UserID: user.ID, UserName: user.Name, UserEmail: user.Email, SharePercent: share}
	for _, m := range members {
		if m.UserID == user.ID {
			a.Replacing = true
		}
	}
	summary := summarize(members, user.ID)
	a.Allocated = roundShare(summary.Allocated + share)
	if a.Allocated > 100 {
		return Assignment{}, ErrShareOverflow
	}

	if in.UnitID > 0 {
		unit, err := s.repo.GetUnit(ctx, in.UnitID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Assignment{}, ErrUnitNotInProject
			}
			return Assignment{}, err
		}
		if unit.ProjectID != project.ID {
			return Assignment{}, ErrUnitNotInProject
		}
		if unit.OwnerID != 0 && unit.OwnerID != user.ID {
			return Assignment{}, ErrUnitTaken
		}
		a.Unit = &unit
	}
	return a, nil
}

// RemoveMember detaches a user from a project. Members who still owe money
// on the project's installments stay.
func (s *Service) RemoveMember(ctx context.Context, actorID, projectID, userID int64) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Lock(ctx, projectID); err != nil {
			return err
		}
		owed, err := s.repo.Outstanding(ctx, projectID, userID)
		if err != nil {
			return err
		}
		if shared.Round2(owed) > 0 {
			return ErrMemberHasBalance
		}
		if err := s.repo.DeleteMember(ctx, projectID, userID); err != nil {
			return err
		}
		return s.record(ctx, actorID, "project.remove_member", "project", projectID, map[string]any{"user_id": userID})
	})
	if err == nil {
		s.bump(ctx)
	}
	return err
}

// ProjectsForUser lists the projects a user is a member of.
func (s *Service) ProjectsForUser(ctx context.Context, userID int64) ([]Membership, error) {
	return s.repo.Memberships(ctx, userID)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

// summarize totals the shares of members other than skipUserID.
func summarize(members []Member, skipUserID int64) ShareSummary {
	var out ShareSummary
	for _, m := range members {
		if m.UserID == skipUserID {
			continue
		}
		out.Allocated += m.SharePercent
		out.Members++
	}
	out.Allocated = roundShare(out.Allocated)
	out.Remaining = roundShare(math.Max(0, 100-out.Allocated))
	return out
}

func roundShare(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func normalizeProject(in ProjectInput) ProjectInput {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	if in.Status == "" {
		in.Status = StatusPlanning
	}
	if !in.StartDate.IsZero() {
		in.StartDate = shared.DateOnly(in.StartDate)
	}
	if in.EndDate != nil {
		end := shared.DateOnly(*in.EndDate)
		in.EndDate = &end
	}
	return in
}

func projectFromInput(in ProjectInput) Project {
	return Project{
		Code:        in.Code,
		Name:        in.Name,
		Location:    in.Location,
		Description: in.Description,
		Status:      in.Status,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Budget:      shared.Round2(in.Budget),
		PenaltyRate: in.PenaltyRate,
		GraceDays:   in.GraceDays,
	}
}

// FieldErrors carries per-field validation messages out of the service.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return "projects: invalid input"
}

// AsFieldErrors extracts validation messages from err.
func AsFieldErrors(err error) (map[string]string, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
