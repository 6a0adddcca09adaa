package uploader

import "time"

// FailedUpload pairs a raw source with the error that terminated it.
type FailedUpload struct {
	Source Source
	Err    *Error
}

// PreviewHandle is an ownership-bound preview resource attached to an
// image-typed record. It is released exactly once, when the record is
// removed or the collection is reset.
type PreviewHandle interface {
	Release()
}

// PreviewFactory produces a preview handle for an image source. Returning
// nil is allowed and leaves the record without a preview.
type PreviewFactory func(src Source) PreviewHandle

// Option represents an option for configuring the upload manager
type Option func(*Config)

// Config holds the configuration for the upload manager
type Config struct {
	// MaxFiles caps the number of tracked records.
	MaxFiles int
	// MaxFileSize caps the byte size of an individual source.
	MaxFileSize int64
	// Concurrency caps the number of simultaneous transfers.
	Concurrency int
	// DuplicatePulse is how long a record's Duplicate flag stays set after
	// a colliding add attempt.
	DuplicatePulse time.Duration
	// AcceptedTypes optionally restricts sources by content-type prefix or
	// file extension (".pdf"). Empty means everything is accepted.
	AcceptedTypes []string

	PreviewFactory PreviewFactory

	// Callbacks. All are optional and invoked outside the manager lock.
	OnBatchAdded     func(sources []Source)
	OnUploadComplete func(records []FileRecord)
	OnUploadError    func(failures []FailedUpload)
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxFiles:       10,
		MaxFileSize:    50 * 1024 * 1024,
		Concurrency:    3,
		DuplicatePulse: time.Second,
	}
}

// WithMaxFiles sets the file-count ceiling
func WithMaxFiles(n int) Option {
	return func(c *Config) {
		c.MaxFiles = n
	}
}

// WithMaxFileSize sets the per-file size ceiling in bytes
func WithMaxFileSize(n int64) Option {
	return func(c *Config) {
		c.MaxFileSize = n
	}
}

// WithConcurrency sets the transfer concurrency ceiling
func WithConcurrency(n int) Option {
	return func(c *Config) {
		c.Concurrency = n
	}
}

// WithDuplicatePulse sets how long the transient duplicate flag stays up
func WithDuplicatePulse(d time.Duration) Option {
	return func(c *Config) {
		c.DuplicatePulse = d
	}
}

// WithAcceptedTypes restricts sources by content-type prefix or extension
func WithAcceptedTypes(types ...string) Option {
	return func(c *Config) {
		c.AcceptedTypes = types
	}
}

// WithPreviewFactory sets the factory used for image-typed sources
func WithPreviewFactory(f PreviewFactory) Option {
	return func(c *Config) {
		c.PreviewFactory = f
	}
}

// WithOnBatchAdded sets the callback fired after a batch is staged
func WithOnBatchAdded(f func(sources []Source)) Option {
	return func(c *Config) {
		c.OnBatchAdded = f
	}
}

// WithOnUploadComplete sets the callback fired per completed transfer
func WithOnUploadComplete(f func(records []FileRecord)) Option {
	return func(c *Config) {
		c.OnUploadComplete = f
	}
}

// WithOnUploadError sets the callback fired per failed transfer
func WithOnUploadError(f func(failures []FailedUpload)) Option {
	return func(c *Config) {
		c.OnUploadError = f
	}
}
