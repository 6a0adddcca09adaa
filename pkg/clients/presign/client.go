// Package presign implements the negotiation client: one batched POST
// that exchanges file metadata and content hashes for destination
// descriptors authorizing direct writes to object storage.
package presign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dropkit/dropkit/pkg/uploader"
)

// csrfCookieName and csrfHeaderName follow the double-submit convention:
// the token the backend set as a cookie is echoed back in a header.
const (
	csrfCookieName = "XSRF-TOKEN"
	csrfHeaderName = "X-XSRF-TOKEN"
)

const msgUnableToObtainURL = "Unable to obtain upload URL"

// Client negotiates upload destinations with the backend. It satisfies
// uploader.Negotiator.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new presign client with the given options
func NewClient(options ...ClientOption) *Client {
	config := DefaultConfig()
	for _, option := range options {
		option(config)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}
}

// Negotiate posts one batch of candidates and returns the destination
// descriptors the backend issued. The batch is exactly the candidate set
// passed in; independent calls are never merged. Failures come back as
// typed *uploader.Error values classified for the presentation layer.
func (c *Client) Negotiate(ctx context.Context, batch []uploader.Candidate) ([]uploader.Destination, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	payload := negotiateRequest{Files: make([]fileParam, len(batch))}
	for i, cand := range batch {
		payload.Files[i] = fileParam{
			Filename:    cand.Filename,
			Filesize:    cand.Filesize,
			ContentType: cand.ContentType,
			SHA256:      cand.SHA256,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal negotiation request: %w", err)
	}

	endpoint := c.config.BaseURL + c.config.Endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create negotiation request: %w", err)
	}

	if err := c.applyHeaders(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("negotiation request failed")
		return nil, uploader.NewError(uploader.KindNetwork, msgUnableToObtainURL, c.connectivityDetail())
	}
	defer resp.Body.Close()

	return c.handleResponse(resp)
}

// applyHeaders layers the protected content-type/accept/anti-forgery
// headers, then static caller headers, then resolver headers. Caller
// headers can never override the protected set.
func (c *Client) applyHeaders(ctx context.Context, req *http.Request) error {
	for key, value := range c.config.DefaultHeaders {
		req.Header.Set(key, value)
	}

	if c.config.HeaderFunc != nil {
		resolved, err := c.config.HeaderFunc(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve negotiation headers: %w", err)
		}
		for key, value := range resolved {
			req.Header.Set(key, value)
		}
	}

	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	// Protected headers go on last.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Del(csrfHeaderName)
	if token := c.csrfToken(req.URL); token != "" {
		req.Header.Set(csrfHeaderName, token)
	}
	return nil
}

// csrfToken reads the anti-forgery token from the HTTP client's cookie
// jar, if one is configured and holds it.
func (c *Client) csrfToken(u *url.URL) string {
	if c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) handleResponse(resp *http.Response) ([]uploader.Destination, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, uploader.NewError(uploader.KindNetwork, msgUnableToObtainURL, c.connectivityDetail())
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result negotiateResponse
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, uploader.NewError(uploader.KindInvalidResponse, msgUnableToObtainURL,
				"Malformed negotiation response")
		}
		dests := make([]uploader.Destination, len(result.Files))
		for i, f := range result.Files {
			dests[i] = uploader.Destination{
				SHA256:   f.SHA256,
				Bucket:   f.Bucket,
				Key:      f.Key,
				URL:      f.URL,
				Filename: f.Filename,
			}
		}
		return dests, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, uploader.NewError(uploader.KindServer, msgUnableToObtainURL,
			"Authentication required. Please sign in and try again.")

	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, uploader.NewError(uploader.KindValidation, validationMessage(raw), "")

	default:
		return nil, uploader.NewError(uploader.KindServer, msgUnableToObtainURL,
			statusDetail(resp.StatusCode))
	}
}

// validationMessage concatenates every per-field message in a 422 body
// whose field path pertains to file entries, falling back to a generic
// message when nothing matches.
func validationMessage(raw []byte) string {
	var body validationErrorBody
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Errors) == 0 {
		return "Invalid file parameters"
	}

	paths := make([]string, 0, len(body.Errors))
	for path := range body.Errors {
		if path == "files" || strings.HasPrefix(path, "files.") {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	var messages []string
	for _, path := range paths {
		messages = append(messages, body.Errors[path]...)
	}
	if len(messages) == 0 {
		return "Invalid file parameters"
	}
	return strings.Join(messages, " ")
}

func (c *Client) connectivityDetail() string {
	if c.config.Online != nil && !c.config.Online() {
		return "No internet connection"
	}
	return "Server is unreachable"
}

func statusDetail(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "Too many requests. Please wait and try again."
	case http.StatusInternalServerError:
		return "The server encountered an internal error."
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return "The server is temporarily unavailable."
	default:
		return fmt.Sprintf("The server responded with status %d.", status)
	}
}
