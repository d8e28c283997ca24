package documents

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/estatebook/estatebook/internal/shared"
)

type memRepo struct {
	next      int64
	items     map[int64]Document
	failNext  error
	projectOK map[int64]string
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[int64]Document{}, projectOK: map[int64]string{1: "Tower A"}}
}

func (m *memRepo) Insert(_ context.Context, d Document) (Document, error) {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return Document{}, err
	}
	if d.ProjectID != nil {
		name, ok := m.projectOK[*d.ProjectID]
		if !ok {
			return Document{}, ErrNotFound
		}
		d.ProjectName = name
	}
	m.next++
	d.ID = m.next
	d.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(d.ID) * time.Minute)
	m.items[d.ID] = d
	return d, nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Document, error) {
	d, ok := m.items[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (m *memRepo) List(_ context.Context, filter ListFilter) ([]Document, int, error) {
	var out []Document
	for _, d := range m.items {
		if filter.ProjectID > 0 && (d.ProjectID == nil || *d.ProjectID != filter.ProjectID) {
			continue
		}
		if filter.UserID > 0 && (d.UserID == nil || *d.UserID != filter.UserID) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type stubAudit struct {
	actions []string
}

func (s *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	s.actions = append(s.actions, log.Action)
	return nil
}

var errInsert = errors.New("insert failed")

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
}

func int64Ptr(v int64) *int64 { return &v }
