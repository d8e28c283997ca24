package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/shared"
)

// AuditPort records archive events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached dashboard figures after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service moves projects and users in and out of the archive tables.
// Journal entries are never touched.
type Service struct {
	repo  Repository
	audit AuditPort
	cache Invalidator
	tx    shared.TxRunner
	now   func() time.Time
	newID func() uuid.UUID
}

// NewService builds Service instance.
func NewService(repo Repository, audit AuditPort, cache Invalidator, tx shared.TxRunner) *Service {
	if tx == nil {
		tx = shared.NoTx{}
	}
	return &Service{repo: repo, audit: audit, cache: cache, tx: tx, now: time.Now, newID: uuid.New}
}

// ArchiveProject moves a project with its units, members, installments,
// payments, penalties and documents into one batch.
func (s *Service) ArchiveProject(ctx context.Context, actorID, projectID int64) (Batch, error) {
	return s.archive(ctx, actorID, KindProject, projectID)
}

// ArchiveUser moves a user with everything billed to them. Users cannot
// archive themselves.
func (s *Service) ArchiveUser(ctx context.Context, actorID, userID int64) (Batch, error) {
	if actorID == userID {
		return Batch{}, ErrSelfArchive
	}
	return s.archive(ctx, actorID, KindUser, userID)
}

func (s *Service) archive(ctx context.Context, actorID int64, kind Kind, subjectID int64) (Batch, error) {
	batch := Batch{
		ID:         s.newID(),
		Kind:       kind,
		SubjectID:  subjectID,
		ArchivedBy: actorID,
		ArchivedAt: s.now().UTC(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		label, err := s.repo.Label(ctx, kind, subjectID)
		if err != nil {
			return err
		}
		batch.Label = label
		if err := s.repo.InsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("archive: insert batch: %w", err)
		}
		for _, step := range ScopeFor(kind) {
			n, err := s.repo.Move(ctx, batch.ID, step, subjectID)
			if err != nil {
				return err
			}
			if n > 0 {
				batch.Tables = append(batch.Tables, TableCount{Table: step.Table, Rows: n})
				batch.RowCount += int(n)
			}
		}
		if err := s.repo.SetRowCount(ctx, batch.ID, batch.RowCount); err != nil {
			return err
		}
		return s.record(ctx, actorID, "archive."+lowerKind(kind), batch, map[string]any{
			"subject_id": subjectID,
			"label":      batch.Label,
			"rows":       batch.RowCount,
		})
	})
	if err != nil {
		return Batch{}, err
	}
	s.bump(ctx)
	return batch, nil
}

// Restore moves a batch back parent-first and marks it restored. Nothing is
// restored when any table conflicts with live data.
func (s *Service) Restore(ctx context.Context, actorID int64, batchID uuid.UUID) (Batch, error) {
	var batch Batch
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.repo.LockBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Restored() {
			return ErrAlreadyRestored
		}
		scope := ScopeFor(batch.Kind)
		batch.Tables = nil
		for i := len(scope) - 1; i >= 0; i-- {
			n, err := s.repo.Restore(ctx, batch.ID, scope[i].Table)
			if err != nil {
				return err
			}
			if n > 0 {
				batch.Tables = append(batch.Tables, TableCount{Table: scope[i].Table, Rows: n})
			}
		}
		if err := s.repo.MarkRestored(ctx, batch.ID, actorID); err != nil {
			return err
		}
		now := s.now().UTC()
		batch.RestoredBy = &actorID
		batch.RestoredAt = &now
		return s.record(ctx, actorID, "archive.restore", batch, map[string]any{
			"kind":       string(batch.Kind),
			"subject_id": batch.SubjectID,
		})
	})
	if err != nil {
		return Batch{}, err
	}
	s.bump(ctx)
	return batch, nil
}

// Get returns a batch with per-table counts of what it still holds.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListBatches returns a page of archive batches, newest first.
func (s *Service) ListBatches(ctx context.Context, filter ListFilter) ([]Batch, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = shared.DefaultPerPage
	}
	items, total, err := s.repo.ListBatches(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) bump(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, b Batch, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "archive_batch",
		EntityID: b.ID.String(),
		Meta:     meta,
	})
}

func lowerKind(k Kind) string {
	switch k {
	case KindProject:
		return "project"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}
