package documents

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gabriel-vasile/mimetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc   *Service
	repo  *memRepo
	audit *stubAudit
	dir   string
}

func newFixture(t *testing.T, maxBytes int64) fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	require.NoError(t, err)
	repo := newMemRepo()
	audit := &stubAudit{}
	return fixture{svc: NewService(repo, store, audit, nil, maxBytes), repo: repo, audit: audit, dir: dir}
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadStoresSniffedFile(t *testing.T) {
	f := newFixture(t, 1<<20)
	doc, err := f.svc.Upload(context.Background(), 1, UploadInput{
		ProjectID: int64Ptr(1),
		Title:     "  ",
		FileName:  `C:\scans\"contract".pdf`,
		Content:   bytes.NewReader(pdfBytes()),
	})
	require.NoError(t, err)

	assert.Equal(t, "contract.pdf", doc.FileName)
	assert.Equal(t, "contract.pdf", doc.Title)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, int64(len(pdfBytes())), doc.SizeBytes)
	assert.Equal(t, "Tower A", doc.ProjectName)
	assert.True(t, strings.HasSuffix(doc.StoredName, ".pdf"))
	assert.NotContains(t, doc.StoredName, "contract")
	assert.Equal(t, []string{doc.StoredName}, storedFiles(t, f.dir))
	assert.Equal(t, []string{"document.upload"}, f.audit.actions)

	got, rc, err := f.svc.Open(context.Background(), doc.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes(), data)
	assert.Equal(t, doc.ID, got.ID)
}

func TestUploadRejectsBadContent(t *testing.T) {
	f := newFixture(t, 64)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, 1, UploadInput{ProjectID: int64Ptr(1), FileName: "notes.pdf", Content: strings.NewReader("just some text pretending")})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = f.svc.Upload(ctx, 1, UploadInput{ProjectID: int64Ptr(1), FileName: "big.png", Content: bytes.NewReader(append(pngBytes(), make([]byte, 64)...))})
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = f.svc.Upload(ctx, 1, UploadInput{ProjectID: int64Ptr(1), FileName: "empty.pdf", Content: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = f.svc.Upload(ctx, 1, UploadInput{FileName: "a.png", Content: bytes.NewReader(pngBytes())})
	fe, ok := AsFieldErrors(err)
	require.True(t, ok)
	assert.Contains(t, fe, "ProjectID")

	_, err = f.svc.Upload(ctx, 1, UploadInput{UserID: int64Ptr(2), Content: bytes.NewReader(pngBytes())})
	fe, ok = AsFieldErrors(err)
	require.True(t, ok)
	assert.Contains(t, fe, "FileName")

	assert.Empty(t, storedFiles(t, f.dir))
	assert.Empty(t, f.repo.items)
}

func TestUploadRemovesFileWhenInsertFails(t *testing.T) {
	f := newFixture(t, 1<<20)
	f.repo.failNext = errInsert

	_, err := f.svc.Upload(context.Background(), 1, UploadInput{UserID: int64Ptr(2), FileName: "id.png", Content: bytes.NewReader(pngBytes())})
	require.ErrorIs(t, err, errInsert)
	assert.Empty(t, storedFiles(t, f.dir))

	_, err = f.svc.Upload(context.Background(), 1, UploadInput{ProjectID: int64Ptr(9), FileName: "id.png", Content: bytes.NewReader(pngBytes())})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, storedFiles(t, f.dir))
}

func TestDeleteRemovesRowAndFile(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	doc, err := f.svc.Upload(ctx, 1, UploadInput{UserID: int64Ptr(2), FileName: "ktp.png", Content: bytes.NewReader(pngBytes())})
	require.NoError(t, err)

	deleted, err := f.svc.Delete(ctx, 1, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ktp.png", deleted.Title)
	assert.Empty(t, storedFiles(t, f.dir))
	assert.Equal(t, []string{"document.upload", "document.delete"}, f.audit.actions)

	_, err = f.svc.Delete(ctx, 1, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = f.svc.Open(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndForUser(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	_, err := f.svc.Upload(ctx, 1, UploadInput{ProjectID: int64Ptr(1), FileName: "plan.pdf", Content: bytes.NewReader(pdfBytes())})
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, 1, UploadInput{ProjectID: int64Ptr(1), UserID: int64Ptr(2), FileName: "spa.pdf", Content: bytes.NewReader(pdfBytes())})
	require.NoError(t, err)

	items, page, err := f.svc.List(ctx, ListFilter{ProjectID: 1})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, page.Total)

	mine, err := f.svc.ForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "spa.pdf", mine[0].FileName)
}

func TestAllowedFollowsParents(t *testing.T) {
	assert.True(t, Allowed(mimetype.Detect(pngBytes())))
	assert.True(t, Allowed(mimetype.Detect(pdfBytes())))
	assert.False(t, Allowed(mimetype.Detect([]byte("plain text"))))
}

func TestDiskStoreRejectsPathNames(t *testing.T) {
	store, err := NewDiskStore(filepath.Join(t.TempDir(), "nested", "docs"))
	require.NoError(t, err)

	_, err = store.Save("../escape.pdf", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.Open(".hidden")
	assert.Error(t, err)
	assert.NoError(t, store.Remove("missing.pdf"))

	_, err = store.Open("missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}
