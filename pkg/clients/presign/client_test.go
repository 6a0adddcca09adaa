package presign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropkit/dropkit/pkg/uploader"
)

func candidates() []uploader.Candidate {
	return []uploader.Candidate{
		{Filename: "a.txt", Filesize: 5, ContentType: "text/plain", SHA256: "hash-a"},
		{Filename: "b.png", Filesize: 9, ContentType: "image/png", SHA256: "hash-b"},
	}
}

func TestNegotiateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/uploads/presign", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		var req negotiateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Files, 2)
		assert.Equal(t, "a.txt", req.Files[0].Filename)
		assert.Equal(t, int64(5), req.Files[0].Filesize)
		assert.Equal(t, "hash-a", req.Files[0].SHA256)

		// Response order deliberately reversed: correlation is by hash.
		json.NewEncoder(w).Encode(negotiateResponse{Files: []destinationParam{
			{SHA256: "hash-b", Bucket: "uploads", Key: "k/b", URL: "https://storage.example/b"},
			{SHA256: "hash-a", Bucket: "uploads", Key: "k/a", URL: "https://storage.example/a"},
		}})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	dests, err := client.Negotiate(context.Background(), candidates())
	require.NoError(t, err)
	require.Len(t, dests, 2)
	assert.Equal(t, "hash-b", dests[0].SHA256)
	assert.Equal(t, "https://storage.example/b", dests[0].URL)
	assert.Equal(t, "hash-a", dests[1].SHA256)
}

func TestNegotiateEmptyBatch(t *testing.T) {
	client := NewClient(WithBaseURL("https://never-called.example"))
	dests, err := client.Negotiate(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, dests)
}

func TestNegotiatePartialResponseTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(negotiateResponse{Files: []destinationParam{
			{SHA256: "hash-a", URL: "https://storage.example/a"},
		}})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	dests, err := client.Negotiate(context.Background(), candidates())
	require.NoError(t, err, "a shorter destination list is the caller's problem, not a protocol error")
	assert.Len(t, dests, 1)
}

func TestNegotiateErrorClassification(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		body            string
		expectedKind    uploader.ErrorKind
		expectedMessage string
		expectedDetails string
	}{
		{
			name:            "unauthorized",
			status:          http.StatusUnauthorized,
			expectedKind:    uploader.KindServer,
			expectedMessage: "Unable to obtain upload URL",
			expectedDetails: "Authentication required. Please sign in and try again.",
		},
		{
			name:            "forbidden",
			status:          http.StatusForbidden,
			expectedKind:    uploader.KindServer,
			expectedMessage: "Unable to obtain upload URL",
			expectedDetails: "Authentication required. Please sign in and try again.",
		},
		{
			name:            "validation with file messages",
			status:          http.StatusUnprocessableEntity,
			body:            `{"errors":{"files.0.filesize":["File too large"],"files":["Too many files"]}}`,
			expectedKind:    uploader.KindValidation,
			expectedMessage: "Too many files File too large",
		},
		{
			name:            "validation with unrelated fields",
			status:          http.StatusUnprocessableEntity,
			body:            `{"errors":{"collection":["Unknown collection"]}}`,
			expectedKind:    uploader.KindValidation,
			expectedMessage: "Invalid file parameters",
		},
		{
			name:            "validation with unparseable body",
			status:          http.StatusUnprocessableEntity,
			body:            `not json`,
			expectedKind:    uploader.KindValidation,
			expectedMessage: "Invalid file parameters",
		},
		{
			name:            "rate limited",
			status:          http.StatusTooManyRequests,
			expectedKind:    uploader.KindServer,
			expectedMessage: "Unable to obtain upload URL",
			expectedDetails: "Too many requests. Please wait and try again.",
		},
		{
			name:            "internal error",
			status:          http.StatusInternalServerError,
			expectedKind:    uploader.KindServer,
			expectedMessage: "Unable to obtain upload URL",
			expectedDetails: "The server encountered an internal error.",
		},
		{
			name:            "bad gateway",
			status:          http.StatusBadGateway,
			expectedKind:    uploader.KindServer,
			expectedMessage: "Unable to obtain upload URL",
			expectedDetails: "The server is temporarily unavailable.",
		},
		{
			name:            "teapot",
			status:          http.StatusTeapot,
			expectedKind:    uploader.KindServer,
			expectedMessage: "Unable to obtain upload URL",
			expectedDetails: "The server responded with status 418.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.body != "" {
					w.Write([]byte(tt.body))
				}
			}))
			defer server.Close()

			client := NewClient(WithBaseURL(server.URL))
			_, err := client.Negotiate(context.Background(), candidates())
			require.Error(t, err)

			uerr := uploader.AsError(err)
			assert.Equal(t, tt.expectedKind, uerr.Kind)
			assert.Equal(t, tt.expectedMessage, uerr.Message)
			if tt.expectedDetails != "" {
				assert.Equal(t, tt.expectedDetails, uerr.Details)
			}
		})
	}
}

func TestNegotiateMalformedSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.Negotiate(context.Background(), candidates())
	require.Error(t, err)

	uerr := uploader.AsError(err)
	assert.Equal(t, uploader.KindInvalidResponse, uerr.Kind)
	assert.Equal(t, "Malformed negotiation response", uerr.Details)
}

func TestNegotiateConnectionFailure(t *testing.T) {
	tests := []struct {
		name            string
		online          func() bool
		expectedDetails string
	}{
		{name: "no probe", online: nil, expectedDetails: "Server is unreachable"},
		{name: "offline", online: func() bool { return false }, expectedDetails: "No internet connection"},
		{name: "online but unreachable", online: func() bool { return true }, expectedDetails: "Server is unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := []ClientOption{
				WithBaseURL("http://127.0.0.1:1"),
				WithTimeout(500 * time.Millisecond),
			}
			if tt.online != nil {
				options = append(options, WithOnline(tt.online))
			}
			client := NewClient(options...)

			_, err := client.Negotiate(context.Background(), candidates())
			require.Error(t, err)

			uerr := uploader.AsError(err)
			assert.Equal(t, uploader.KindNetwork, uerr.Kind)
			assert.Equal(t, "Unable to obtain upload URL", uerr.Message)
			assert.Equal(t, tt.expectedDetails, uerr.Details)
		})
	}
}

func TestNegotiateContextCancellation(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := NewClient(WithBaseURL(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Negotiate(ctx, candidates())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHeaderLayering(t *testing.T) {
	var received http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		json.NewEncoder(w).Encode(negotiateResponse{})
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithHeader("X-Workspace-ID", "ws_123"),
		WithHeaders(map[string]string{
			// Attempts to override the protected set are discarded.
			"Content-Type": "text/plain",
			"X-XSRF-TOKEN": "forged",
		}),
		WithHeaderFunc(func(ctx context.Context) (map[string]string, error) {
			return map[string]string{"Authorization": "Bearer token-1"}, nil
		}),
		WithUserAgent("dropkit-test/1.0"),
	)

	_, err := client.Negotiate(context.Background(), candidates())
	require.NoError(t, err)

	assert.Equal(t, "ws_123", received.Get("X-Workspace-ID"))
	assert.Equal(t, "Bearer token-1", received.Get("Authorization"))
	assert.Equal(t, "dropkit-test/1.0", received.Get("User-Agent"))
	assert.Equal(t, "application/json", received.Get("Content-Type"))
	assert.Equal(t, "application/json", received.Get("Accept"))
	assert.Empty(t, received.Get("X-XSRF-TOKEN"), "no jar token means no anti-forgery header")
}

func TestHeaderFuncFailureAbortsRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithHeaderFunc(func(ctx context.Context) (map[string]string, error) {
			return nil, assert.AnError
		}),
	)

	_, err := client.Negotiate(context.Background(), candidates())
	assert.Error(t, err)
	assert.False(t, called)
}

func TestCSRFTokenFromCookieJar(t *testing.T) {
	var received http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		json.NewEncoder(w).Encode(negotiateResponse{})
	}))
	defer server.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	jar.SetCookies(serverURL, []*http.Cookie{{Name: "XSRF-TOKEN", Value: "token-abc"}})

	client := NewClient(
		WithBaseURL(server.URL),
		WithHTTPClient(&http.Client{Jar: jar}),
	)

	_, err = client.Negotiate(context.Background(), candidates())
	require.NoError(t, err)
	assert.Equal(t, "token-abc", received.Get("X-XSRF-TOKEN"))
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "/api/uploads/presign", config.Endpoint)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Empty(t, config.BaseURL)
}
