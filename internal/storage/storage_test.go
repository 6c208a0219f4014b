package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delsur/comandero/internal/config"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	cfg := config.StorageConfig{
		Type:      "local",
		LocalPath: t.TempDir(),
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestLocalPutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := []byte("%PDF-1.4 fake")
	require.NoError(t, s.Put(ctx, "jobs/2026/08/25/job-1.pdf", data))

	rc, err := s.Get(ctx, "jobs/2026/08/25/job-1.pdf")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLocalGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "jobs/none.pdf")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k.pdf", []byte("one")))
	require.NoError(t, s.Put(ctx, "k.pdf", []byte("two")))

	rc, err := s.Get(ctx, "k.pdf")
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, []byte("two"), got)
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Put(ctx, "../outside.pdf", []byte("x")))
	_, err := s.Get(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestLocalDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "jobs/old.pdf", []byte("x")))
	require.NoError(t, s.Delete(ctx, "jobs/old.pdf"))

	_, err := s.Get(ctx, "jobs/old.pdf")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Re-running a sweep over an already-removed key must not fail.
	assert.NoError(t, s.Delete(ctx, "jobs/old.pdf"))
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", contentTypeFor("a/b.pdf"))
	assert.Equal(t, "text/html; charset=utf-8", contentTypeFor("a/b.html"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("a/b.bin"))
}
