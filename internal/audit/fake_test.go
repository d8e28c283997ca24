package audit

import (
	"context"
	"strings"
	"time"
)

// memRepo filters in memory the way the SQL does.
type memRepo struct {
	entries []Entry
	calls   []Filters
	limits  []int
}

func (m *memRepo) Window(_ context.Context, f Filters, limit, offset int) ([]Entry, error) {
	m.calls = append(m.calls, f)
	m.limits = append(m.limits, limit)
	var out []Entry
	for _, e := range m.entries {
		if !f.From.IsZero() && e.At.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !e.At.Before(f.To.AddDate(0, 0, 1)) {
			continue
		}
		if f.Entity != "" && e.Entity != f.Entity {
			continue
		}
		if f.Action != "" && !strings.HasPrefix(strings.ToLower(e.Action), strings.ToLower(f.Action)) {
			continue
		}
		out = append(out, e)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func seeded(n int) *memRepo {
	repo := &memRepo{}
	start := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		repo.entries = append(repo.entries, Entry{
			ID:        int64(n - i),
			At:        start.Add(-time.Duration(i) * time.Hour),
			ActorID:   1,
			ActorName: "Admin",
			Action:    "payment.record",
			Entity:    "user_installment",
			EntityID:  "7",
			Meta:      `{"amount": 100}`,
		})
	}
	return repo
}
