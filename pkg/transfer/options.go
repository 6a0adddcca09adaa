package transfer

import (
	"net/http"
	"time"
)

// ClientOption represents an option for configuring the transfer client
type ClientOption func(*ClientConfig)

// ClientConfig holds the configuration for the transfer client. Timeout
// semantics live entirely in the HTTP client; the upload manager imposes
// no layer of its own.
type ClientConfig struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 10 * time.Minute,
	}
}

// WithTimeout sets the per-transfer timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
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
