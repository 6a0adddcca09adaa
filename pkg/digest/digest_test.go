package digest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropkit/dropkit/pkg/uploader"
)

func TestHashKnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "empty",
			content:  "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "abc",
			content:  "abc",
			expected: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}

	h := NewSHA256Hasher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := uploader.NewBytesSource(tt.name, "text/plain", []byte(tt.content))
			sum, err := h.Hash(context.Background(), src)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sum)
		})
	}
}

func TestHashSameContentSameHash(t *testing.T) {
	h := NewSHA256Hasher()

	a, err := h.Hash(context.Background(), uploader.NewBytesSource("a.txt", "text/plain", []byte("same bytes")))
	require.NoError(t, err)
	b, err := h.Hash(context.Background(), uploader.NewBytesSource("b.txt", "application/json", []byte("same bytes")))
	require.NoError(t, err)

	assert.Equal(t, a, b, "identity is content alone, not name or type")
}

func TestHashClosedSource(t *testing.T) {
	src := uploader.NewBytesSource("a.txt", "text/plain", []byte("content"))
	require.NoError(t, src.Close())

	_, err := NewSHA256Hasher().Hash(context.Background(), src)
	assert.Error(t, err)
}

func TestHashCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := uploader.NewBytesSource("a.txt", "text/plain", []byte("content"))
	_, err := NewSHA256Hasher().Hash(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
}
