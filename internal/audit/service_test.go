package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelinePaging(t *testing.T) {
	repo := seeded(30)
	svc := NewService(repo)

	first, err := svc.Timeline(context.Background(), Filters{PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, first.Entries, 20)
	assert.True(t, first.Paging.HasNext)
	assert.Equal(t, 2, first.Paging.NextPage)
	assert.Zero(t, first.Paging.PrevPage)
	assert.Equal(t, 21, repo.limits[0])

	second, err := svc.Timeline(context.Background(), Filters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, second.Entries, 10)
	assert.False(t, second.Paging.HasNext)
	assert.Equal(t, 1, second.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := seeded(3)
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), Filters{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, res.Paging.PageSize)

	res, err = svc.Timeline(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, res.Paging.PageSize)
	assert.Len(t, res.Entries, 3)
}

func TestExportRejectsOversizedResult(t *testing.T) {
	svc := NewService(seeded(3))
	svc.exportCap = 2
	_, err := svc.Export(context.Background(), Filters{})
	require.ErrorIs(t, err, ErrExportTooLarge)

	svc = NewService(seeded(2))
	svc.exportCap = 2
	entries, err := svc.Export(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, defaultPageSize, ClampPageSize(0))
	assert.Equal(t, defaultPageSize, ClampPageSize(-4))
	assert.Equal(t, 40, ClampPageSize(40))
	assert.Equal(t, maxPageSize, ClampPageSize(500))
}

func TestZeroServiceReportsMissingRepository(t *testing.T) {
	_, err := (&Service{}).Timeline(context.Background(), Filters{})
	require.ErrorIs(t, err, ErrNoRepository)
	_, err = (&Service{}).Export(context.Background(), Filters{})
	require.ErrorIs(t, err, ErrNoRepository)
}

func TestEntryActor(t *testing.T) {
	assert.Equal(t, "system", Entry{}.Actor())
	assert.Equal(t, "Admin", Entry{ActorID: 1, ActorName: "Admin", ActorEmail: "a@example.com"}.Actor())
	assert.Equal(t, "a@example.com", Entry{ActorID: 1, ActorEmail: "a@example.com"}.Actor())
	assert.Equal(t, "#deleted user", Entry{ActorID: 9}.Actor())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Entry{{
		ID:       4,
		At:       time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
		Action:   "penalty.accrue",
		Entity:   "penalty",
		EntityID: "12",
		Meta:     `{"amount": 14, "note": "a, b"}`,
	}})
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"4", "2026-03-01T08:30:00Z", "0", "system", "penalty.accrue", "penalty", "12", `{"amount": 14, "note": "a, b"}`}, records[1])
}
