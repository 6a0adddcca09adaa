package uploader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Source is a raw byte source handed to the manager. The manager takes
// ownership of every source passed to AddFiles: sources that become
// records are closed when the record is removed, sources that are
// rejected or deduplicated are closed before AddFiles returns.
type Source interface {
	Name() string
	Size() int64
	ContentType() string

	// Open returns a fresh reader over the content. It may be called more
	// than once (hashing and transferring read independently, and a retry
	// re-reads from the start).
	Open() (io.ReadCloser, error)

	// Close releases the underlying resource. Closing twice is a no-op.
	Close() error
}

// FileSource is a Source backed by a file on disk.
type FileSource struct {
	path        string
	size        int64
	contentType string

	mu     sync.Mutex
	closed bool
}

// NewFileSource stats the file at path and wraps it as a Source. The
// content type is caller-supplied; pass "" for application/octet-stream.
func NewFileSource(path, contentType string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", path)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &FileSource{path: path, size: info.Size(), contentType: contentType}, nil
}

func (s *FileSource) Name() string        { return filepath.Base(s.path) }
func (s *FileSource) Size() int64         { return s.size }
func (s *FileSource) ContentType() string { return s.contentType }

// Path returns the location of the backing file.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("source %s is closed", s.Name())
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	return f, nil
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// BytesSource is an in-memory Source, used by tests and by callers that
// already hold the content.
type BytesSource struct {
	name        string
	contentType string
	data        []byte

	mu     sync.Mutex
	closed bool
}

func NewBytesSource(name, contentType string, data []byte) *BytesSource {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &BytesSource{name: name, contentType: contentType, data: data}
}

func (s *BytesSource) Name() string        { return s.name }
func (s *BytesSource) Size() int64         { return int64(len(s.data)) }
func (s *BytesSource) ContentType() string { return s.contentType }

func (s *BytesSource) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("source %s is closed", s.name)
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *BytesSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

// Closed reports whether Close has been called. Test helper.
func (s *BytesSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
