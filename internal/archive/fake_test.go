package archive

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/shared"
)

type row struct {
	id      int64
	project int64
	user    int64
	key     string
}

// memRepo keeps live and archived rows per table. A row matches a step by
// its project or user column, or by id for the subject table itself.
type memRepo struct {
	live     map[string][]row
	archived map[uuid.UUID]map[string][]row
	batches  map[uuid.UUID]Batch
	labels   map[Kind]map[int64]string
	order    []string
}

func newMemRepo() *memRepo {
	m := &memRepo{
		live:     map[string][]row{},
		archived: map[uuid.UUID]map[string][]row{},
		batches:  map[uuid.UUID]Batch{},
		labels: map[Kind]map[int64]string{
			KindProject: {1: "TWR-A Tower A", 2: "TWR-B Tower B"},
			KindUser:    {1: "Admin <admin@example.com>", 2: "Budi <budi@example.com>"},
		},
	}
	m.live["projects"] = []row{{id: 1, key: "TWR-A"}, {id: 2, key: "TWR-B"}}
	m.live["units"] = []row{{id: 10, project: 1}, {id: 11, project: 1}, {id: 12, project: 2}}
	m.live["project_members"] = []row{{id: 20, project: 1, user: 2}, {id: 21, project: 2, user: 2}}
	m.live["installment_definitions"] = []row{{id: 30, project: 1}}
	m.live["user_installments"] = []row{{id: 40, project: 1, user: 2}, {id: 41, project: 2, user: 2}}
	m.live["payments"] = []row{{id: 50, project: 1, user: 2}}
	m.live["penalties"] = []row{{id: 60, project: 2, user: 2}}
	m.live["documents"] = []row{{id: 70, project: 1}, {id: 71, user: 2}}
	m.live["users"] = []row{{id: 1, key: "admin@example.com"}, {id: 2, key: "budi@example.com"}}
	m.live["user_roles"] = []row{{id: 80, user: 2}}
	return m
}

func matches(r row, column string, subjectID int64) bool {
	switch column {
	case "project_id":
		return r.project == subjectID
	case "user_id":
		return r.user == subjectID
	default:
		return r.id == subjectID
	}
}

func (m *memRepo) Label(_ context.Context, kind Kind, subjectID int64) (string, error) {
	for _, r := range m.live[map[Kind]string{KindProject: "projects", KindUser: "users"}[kind]] {
		if r.id == subjectID {
			return m.labels[kind][subjectID], nil
		}
	}
	return "", ErrNotFound
}

func (m *memRepo) InsertBatch(_ context.Context, b Batch) error {
	m.batches[b.ID] = b
	m.archived[b.ID] = map[string][]row{}
	return nil
}

func (m *memRepo) SetRowCount(_ context.Context, id uuid.UUID, rows int) error {
	b := m.batches[id]
	b.RowCount = rows
	m.batches[id] = b
	return nil
}

func (m *memRepo) Move(_ context.Context, batchID uuid.UUID, step Step, subjectID int64) (int64, error) {
	m.order = append(m.order, "move "+step.Table)
	var keep []row
	var n int64
	for _, r := range m.live[step.Table] {
		if matches(r, step.Column, subjectID) {
			m.archived[batchID][step.Table] = append(m.archived[batchID][step.Table], r)
			n++
			continue
		}
		keep = append(keep, r)
	}
	m.live[step.Table] = keep
	return n, nil
}

func (m *memRepo) Restore(_ context.Context, batchID uuid.UUID, table string) (int64, error) {
	m.order = append(m.order, "restore "+table)
	rows := m.archived[batchID][table]
	for _, r := range rows {
		for _, existing := range m.live[table] {
			if r.key != "" && existing.key == r.key {
				return 0, ErrRestoreConflict
			}
		}
	}
	m.live[table] = append(m.live[table], rows...)
	delete(m.archived[batchID], table)
	return int64(len(rows)), nil
}

func (m *memRepo) LockBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	return m.GetBatch(ctx, id)
}

func (m *memRepo) GetBatch(_ context.Context, id uuid.UUID) (Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return b, nil
}

func (m *memRepo) MarkRestored(_ context.Context, id uuid.UUID, actorID int64) error {
	b := m.batches[id]
	if b.Restored() {
		return ErrAlreadyRestored
	}
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	b.RestoredBy = &actorID
	b.RestoredAt = &now
	m.batches[id] = b
	return nil
}

func (m *memRepo) ListBatches(_ context.Context, filter ListFilter) ([]Batch, int, error) {
	var out []Batch
	for _, b := range m.batches {
		if filter.Kind != "" && b.Kind != filter.Kind {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArchivedAt.After(out[j].ArchivedAt) })
	return out, len(out), nil
}

func (m *memRepo) CountArchived(_ context.Context, batchID uuid.UUID, table string) (int64, error) {
	return int64(len(m.archived[batchID][table])), nil
}

func (m *memRepo) liveIDs(table string) []int64 {
	var ids []int64
	for _, r := range m.live[table] {
		ids = append(ids, r.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// recordingTx counts transactions and rolls nothing back; callers inspect
// the fake after errors.
type recordingTx struct {
	calls int
}

func (r *recordingTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	r.calls++
	return fn(ctx)
}

type countingCache struct {
	bumps int
}

func (c *countingCache) Bump(context.Context) error {
	c.bumps++
	return nil
}

type stubAudit struct {
	actions []string
}

func (s *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	s.actions = append(s.actions, log.Action)
	return nil
}
