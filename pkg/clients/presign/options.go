package presign

import (
	"context"
	"net/http"
	"time"
)

// HeaderFunc resolves extra request headers at call time. It runs once
// per negotiation request, so it can fetch short-lived tokens.
type HeaderFunc func(ctx context.Context) (map[string]string, error)

// ClientOption represents an option for configuring the presign client
type ClientOption func(*ClientConfig)

// ClientConfig holds the configuration for the presign client
type ClientConfig struct {
	BaseURL        string
	Endpoint       string
	Timeout        time.Duration
	DefaultHeaders map[string]string
	HeaderFunc     HeaderFunc
	HTTPClient     *http.Client
	UserAgent      string

	// Online reports whether the caller believes it has connectivity. It
	// only refines the detail on connection failures; it never blocks a
	// request.
	Online func() bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Endpoint: "/api/uploads/presign",
		Timeout:  30 * time.Second,
	}
}

// WithBaseURL sets the base URL of the negotiation backend
func WithBaseURL(baseURL string) ClientOption {
	return func(c *ClientConfig) {
		c.BaseURL = baseURL
	}
}

// WithEndpoint overrides the negotiation endpoint path
func WithEndpoint(endpoint string) ClientOption {
	return func(c *ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithHeader adds a static header to all negotiation requests
func WithHeader(key, value string) ClientOption {
	return func(c *ClientConfig) {
		if c.DefaultHeaders == nil {
			c.DefaultHeaders = make(map[string]string)
		}
		c.DefaultHeaders[key] = value
	}
}

// WithHeaders sets multiple static headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *ClientConfig) {
		if c.DefaultHeaders == nil {
			c.DefaultHeaders = make(map[string]string)
		}
		for key, value := range headers {
			c.DefaultHeaders[key] = value
		}
	}
}

// WithHeaderFunc sets a per-request header resolver
func WithHeaderFunc(f HeaderFunc) ClientOption {
	return func(c *ClientConfig) {
		c.HeaderFunc = f
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *ClientConfig) {
		c.HTTPClient = httpClient
	}
}

// WithUserAgent sets a custom user agent
func WithUserAgent(userAgent string) ClientOption {
	return func(c *ClientConfig) {
		c.UserAgent = userAgent
	}
}

// WithOnline sets the connectivity probe used to classify network errors
func WithOnline(f func() bool) ClientOption {
	return func(c *ClientConfig) {
		c.Online = f
	}
}
