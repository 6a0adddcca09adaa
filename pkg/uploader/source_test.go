package uploader

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf bytes"), 0o644))

	s, err := NewFileSource(path, "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", s.Name())
	assert.Equal(t, int64(9), s.Size())
	assert.Equal(t, "application/pdf", s.ContentType())
	assert.Equal(t, path, s.Path())

	// Open twice: hashing and transferring read independently.
	for i := 0; i < 2; i++ {
		r, err := s.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.Equal(t, "pdf bytes", string(data))
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Open()
	assert.Error(t, err)
}

func TestFileSourceErrors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.txt"), "")
	assert.Error(t, err)

	_, err = NewFileSource(t.TempDir(), "")
	assert.Error(t, err)
}

func TestFileSourceDefaultContentType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	s, err := NewFileSource(path, "")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", s.ContentType())
}

func TestFileSourceConcurrentOpenAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	s, err := NewFileSource(path, "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if r, err := s.Open(); err == nil {
				r.Close()
			}
		}
	}()
	require.NoError(t, s.Close())
	<-done

	_, err = s.Open()
	assert.Error(t, err)
}

func TestBytesSource(t *testing.T) {
	s := NewBytesSource("note.txt", "text/plain", []byte("hello"))

	assert.Equal(t, "note.txt", s.Name())
	assert.Equal(t, int64(5), s.Size())
	assert.False(t, s.Closed())

	r, err := s.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	_, err = s.Open()
	assert.Error(t, err)
}
