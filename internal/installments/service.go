package installments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/estatebook/estatebook/internal/integration"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/shared"
)

// ProjectPort reads the project and its members.
type ProjectPort interface {
	Get(ctx context.Context, id int64) (projects.Project, error)
	ListMembers(ctx context.Context, projectID int64) ([]projects.Member, error)
}

// Poster books generated installments in the ledger.
type Poster interface {
	HandleInstallmentGenerated(ctx context.Context, evt integration.InstallmentGenerated) (int64, error)
}

// IdempotencyPort rejects repeated wizard submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// AuditPort records installment events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached dashboard figures after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

const idempotencyModule = "installments.definition"

// Service implements installment definitions, generation and queries.
type Service struct {
	repo        Repository
	projects    ProjectPort
	poster      Poster
	idempotency IdempotencyPort
	audit       AuditPort
	cache       Invalidator
	tx          shared.TxRunner
	validate    *validator.Validate
}

// NewService builds Service instance.
func NewService(repo Repository, projects ProjectPort, poster Poster, idempotency IdempotencyPort, audit AuditPort, cache Invalidator, tx shared.TxRunner) *Service {
	if tx == nil {
		tx = shared.NoTx{}
	}
	return &Service{
		repo:        repo,
		projects:    projects,
		poster:      poster,
		idempotency: idempotency,
		audit:       audit,
		cache:       cache,
		tx:          tx,
		validate:    validator.New(),
	}
}

// Distribute splits amount across members by share. When the shares add up
// to exactly 100% the rounding remainder goes to the last member so the
// lines sum to amount.
func Distribute(amount float64, members []projects.Member) []ShareLine {
	lines := make([]ShareLine, 0, len(members))
	var shares, billed float64
	for _, m := range members {
		line := ShareLine{
			UserID:       m.UserID,
			UserName:     m.UserName,
			SharePercent: m.SharePercent,
			Amount:       shared.Round2(amount * m.SharePercent / 100),
		}
		shares += m.SharePercent
		billed += line.Amount
		lines = append(lines, line)
	}
	if len(lines) > 0 && math.Abs(shares-100) < 1e-6 {
		last := &lines[len(lines)-1]
		last.Amount = shared.Round2(last.Amount + shared.Round2(amount-billed))
	}
	return lines
}

// Validate checks the first wizard step.
func (s *Service) Validate(in DefinitionInput) map[string]string {
	if err := s.validate.Struct(normalizeDefinition(in)); err != nil {
		return shared.ValidationMessages(err)
	}
	return map[string]string{}
}

// PreviewDistribution computes what each member would owe for a new
// definition without saving anything.
func (s *Service) PreviewDistribution(ctx context.Context, in DefinitionInput) (Distribution, error) {
	in = normalizeDefinition(in)
	if errs := s.Validate(in); len(errs) > 0 {
		return Distribution{}, FieldErrors(errs)
	}
	project, err := s.projects.Get(ctx, in.ProjectID)
	if err != nil {
		return Distribution{}, err
	}
	members, err := s.projects.ListMembers(ctx, in.ProjectID)
	if err != nil {
		return Distribution{}, err
	}
	return buildDistribution(project.Name, in, members, nil), nil
}

// PreviewDefinition shows the distribution of a saved definition and marks
// the members already billed.
func (s *Service) PreviewDefinition(ctx context.Context, id int64) (Distribution, error) {
	def, err := s.repo.GetDefinition(ctx, id)
	if err != nil {
		return Distribution{}, err
	}
	members, err := s.projects.ListMembers(ctx, def.ProjectID)
	if err != nil {
		return Distribution{}, err
	}
	billed, err := s.repo.BilledUsers(ctx, id)
	if err != nil {
		return Distribution{}, err
	}
	in := DefinitionInput{ProjectID: def.ProjectID, Title: def.Title, DueDate: def.DueDate, Amount: def.Amount}
	return buildDistribution(def.ProjectName, in, members, billed), nil
}

func buildDistribution(projectName string, in DefinitionInput, members []projects.Member, billed map[int64]bool) Distribution {
	out := Distribution{ProjectName: projectName, Input: in, Lines: Distribute(in.Amount, members)}
	for i := range out.Lines {
		out.Lines[i].Exists = billed[out.Lines[i].UserID]
		out.SharesTotal += out.Lines[i].SharePercent
		out.Total += out.Lines[i].Amount
	}
	out.SharesTotal = math.Round(out.SharesTotal*10000) / 10000
	out.Total = shared.Round2(out.Total)
	out.Unassigned = shared.Round2(in.Amount - out.Total)
	return out
}

// CreateDefinition stores a definition without billing anyone.
func (s *Service) CreateDefinition(ctx context.Context, actorID int64, in DefinitionInput) (Definition, error) {
	in = normalizeDefinition(in)
	if errs := s.Validate(in); len(errs) > 0 {
		return Definition{}, FieldErrors(errs)
	}
	var created Definition
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.projects.Get(ctx, in.ProjectID); err != nil {
			return err
		}
		d, err := s.repo.CreateDefinition(ctx, Definition{
			ProjectID: in.ProjectID,
			Title:     in.Title,
			DueDate:   in.DueDate,
			Amount:    in.Amount,
			CreatedBy: actorID,
		})
		if err != nil {
			return err
		}
		created = d
		return s.record(ctx, actorID, "installment.define", d.ID, map[string]any{"project_id": d.ProjectID, "amount": d.Amount})
	})
	return created, err
}

// CreateAndGenerate is the final wizard step: it saves the definition and,
// when generate is set, bills every member. key rejects a second submission
// of the same wizard.
func (s *Service) CreateAndGenerate(ctx context.Context, actorID int64, key string, in DefinitionInput, generate bool) (GenerateResult, error) {
	var result GenerateResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if s.idempotency != nil && key != "" {
			if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
				return err
			}
		}
		def, err := s.CreateDefinition(ctx, actorID, in)
		if err != nil {
			return err
		}
		result.Definition = def
		if !generate {
			return nil
		}
		result, err = s.generate(ctx, actorID, def.ID)
		return err
	})
	if err == nil {
		s.bump(ctx)
	}
	return result, err
}

// Generate bills every project member who has no installment for the
// definition yet. Running it again only adds members who joined since.
func (s *Service) Generate(ctx context.Context, actorID, definitionID int64) (GenerateResult, error) {
	var result GenerateResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.generate(ctx, actorID, definitionID)
		return err
	})
	if err == nil && len(result.Created) > 0 {
		s.bump(ctx)
	}
	return result, err
}

func (s *Service) generate(ctx context.Context, actorID, definitionID int64) (GenerateResult, error) {
	def, err := s.repo.LockDefinition(ctx, definitionID)
	if err != nil {
		return GenerateResult{}, err
	}
	members, err := s.projects.ListMembers(ctx, def.ProjectID)
	if err != nil {
		return GenerateResult{}, err
	}
	if len(members) == 0 {
		return GenerateResult{}, ErrNoMembers
	}
	billed, err := s.repo.BilledUsers(ctx, def.ID)
	if err != nil {
		return GenerateResult{}, err
	}

	result := GenerateResult{Definition: def}
	for _, line := range Distribute(def.Amount, members) {
		if billed[line.UserID] || line.Amount <= 0 {
			result.Skipped++
			continue
		}
		inst, inserted, err := s.repo.InsertInstallment(ctx, UserInstallment{
			DefinitionID: def.ID,
			ProjectID:    def.ProjectID,
			UserID:       line.UserID,
			Title:        def.Title,
			DueDate:      def.DueDate,
			ShareAmount:  line.Amount,
			Status:       StatusPending,
		})
		if err != nil {
			return GenerateResult{}, err
		}
		if !inserted {
			result.Skipped++
			continue
		}
		if s.poster != nil {
			entryID, err := s.poster.HandleInstallmentGenerated(ctx, integration.InstallmentGenerated{
				InstallmentID: inst.ID,
				UserID:        inst.UserID,
				Title:         def.ProjectName + ": " + def.Title,
				DueDate:       def.DueDate,
				Amount:        inst.ShareAmount,
				ActorID:       actorID,
			})
			if err != nil {
				return GenerateResult{}, fmt.Errorf("installments: post installment %d: %w", inst.ID, err)
			}
			if entryID > 0 {
				if err := s.repo.SetJournalEntry(ctx, inst.ID, entryID); err != nil {
					return GenerateResult{}, err
				}
				inst.JournalEntryID = &entryID
			}
		}
		result.Created = append(result.Created, inst)
	}
	result.Definition.Generated += len(result.Created)
	if err := s.record(ctx, actorID, "installment.generate", def.ID, map[string]any{
		"created": len(result.Created),
		"skipped": result.Skipped,
	}); err != nil {
		return GenerateResult{}, err
	}
	return result, nil
}

// GetDefinition returns a definition by id.
func (s *Service) GetDefinition(ctx context.Context, id int64) (Definition, error) {
	return s.repo.GetDefinition(ctx, id)
}

// ListDefinitions returns the definitions of a project, or all when
// projectID is zero.
func (s *Service) ListDefinitions(ctx context.Context, projectID int64) ([]Definition, error) {
	return s.repo.ListDefinitions(ctx, projectID)
}

// List returns one page of user installments.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]UserInstallment, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = shared.DefaultPerPage
	}
	items, total, err := s.repo.ListInstallments(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ForUser returns every installment of a member.
func (s *Service) ForUser(ctx context.Context, userID int64) ([]UserInstallment, error) {
	items, _, err := s.repo.ListInstallments(ctx, ListFilter{UserID: userID})
	return items, err
}

// ForDefinition returns the installments generated from a definition.
func (s *Service) ForDefinition(ctx context.Context, definitionID int64) ([]UserInstallment, error) {
	items, _, err := s.repo.ListInstallments(ctx, ListFilter{DefinitionID: definitionID})
	return items, err
}

// Upcoming lists unpaid installments due within days of asOf.
func (s *Service) Upcoming(ctx context.Context, asOf time.Time, days int) ([]UserInstallment, error) {
	from := shared.DateOnly(asOf)
	to := from.AddDate(0, 0, days)
	items, _, err := s.repo.ListInstallments(ctx, ListFilter{DueFrom: &from, DueTo: &to, Unpaid: true})
	return items, err
}

// Overdue lists unpaid installments whose due date is before asOf.
func (s *Service) Overdue(ctx context.Context, asOf time.Time) ([]UserInstallment, error) {
	day := shared.DateOnly(asOf)
	items, _, err := s.repo.ListInstallments(ctx, ListFilter{OverdueAsOf: &day})
	return items, err
}

// Get returns a user installment by id.
func (s *Service) Get(ctx context.Context, id int64) (UserInstallment, error) {
	return s.repo.GetInstallment(ctx, id)
}

// Lock loads an installment and holds it until the surrounding
// transaction ends.
func (s *Service) Lock(ctx context.Context, id int64) (UserInstallment, error) {
	return s.repo.LockInstallment(ctx, id)
}

// ApplyPayment adds amount to the paid total and moves the status along.
// PaidAt is set when the installment becomes fully paid.
func (s *Service) ApplyPayment(ctx context.Context, inst UserInstallment, amount float64, paidAt time.Time) (UserInstallment, error) {
	amount = shared.Round2(amount)
	if amount <= 0 || amount > inst.Outstanding() {
		return UserInstallment{}, ErrPaidTooMuch
	}
	inst.PaidAmount = shared.Round2(inst.PaidAmount + amount)
	inst.Status = StatusFor(inst.ShareAmount, inst.PaidAmount)
	inst.PaidAt = nil
	if inst.Status == StatusPaid {
		day := shared.DateOnly(paidAt)
		inst.PaidAt = &day
	}
	if err := s.repo.UpdatePaid(ctx, inst.ID, inst.PaidAmount, inst.Status, inst.PaidAt); err != nil {
		return UserInstallment{}, err
	}
	return inst, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "installment_definition",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

func normalizeDefinition(in DefinitionInput) DefinitionInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Amount = shared.Round2(in.Amount)
	if !in.DueDate.IsZero() {
		in.DueDate = shared.DateOnly(in.DueDate)
	}
	return in
}

// FieldErrors carries per-field validation messages out of the service.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return "installments: invalid input"
}

// AsFieldErrors extracts validation messages from err.
func AsFieldErrors(err error) (map[string]string, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
