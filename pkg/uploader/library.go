package uploader

import "context"

// Candidate is the per-file payload sent to the negotiation endpoint.
type Candidate struct {
	Filename    string
	Filesize    int64
	ContentType string
	SHA256      string
}

// Destination is a server-issued descriptor authorizing a direct write to
// object storage. Correlation with candidates is by SHA256, never by
// position.
type Destination struct {
	SHA256   string
	Bucket   string
	Key      string
	URL      string
	Filename string
}

// TransferRequest carries everything a Transferrer needs for one upload.
// OnProgress is invoked with fractions in 0..1; the manager ignores
// regressions, so reporters do not need to dedupe.
type TransferRequest struct {
	Source         Source
	Hash           string
	DestinationURL string
	OnProgress     func(hash string, fraction float64)
}

// Hasher computes a stable content digest for a source.
type Hasher interface {
	Hash(ctx context.Context, src Source) (string, error)
}

// Negotiator exchanges one batch of candidates for destination
// descriptors. Failures are typed *Error values.
type Negotiator interface {
	Negotiate(ctx context.Context, batch []Candidate) ([]Destination, error)
}

// Transferrer performs a single byte transfer to a destination URL.
// Failures are typed *Error values; cancellation surfaces as the context
// error.
type Transferrer interface {
	Upload(ctx context.Context, req TransferRequest) error
}

// Library bundles the three leaf collaborators the manager depends on.
// Production code composes the digest, presign and transfer packages;
// tests inject fakes.
type Library struct {
	Hasher      Hasher
	Negotiator  Negotiator
	Transferrer Transferrer
}
