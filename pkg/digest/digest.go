// Package digest computes content hashes for upload sources.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dropkit/dropkit/pkg/uploader"
)

// SHA256Hasher streams a source through sha256 and returns the
// hex-encoded digest. It satisfies uploader.Hasher.
type SHA256Hasher struct{}

func NewSHA256Hasher() SHA256Hasher { return SHA256Hasher{} }

func (SHA256Hasher) Hash(ctx context.Context, src uploader.Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open source for hashing: %w", err)
	}
	defer r.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("failed to read source for hashing: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
