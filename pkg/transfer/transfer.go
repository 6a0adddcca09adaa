// Package transfer performs the byte upload to a destination URL with
// progress reporting and cooperative cancellation.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dropkit/dropkit/pkg/uploader"
)

// Client performs single-shot HTTP PUT transfers to presigned destination
// URLs. It satisfies uploader.Transferrer.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new transfer client with the given options
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

// Upload streams the source bytes to the destination URL. Progress is
// reported through req.OnProgress as the body is consumed. Cancelling the
// context aborts the underlying request and surfaces the context error;
// every other failure is a typed *uploader.Error.
func (c *Client) Upload(ctx context.Context, req uploader.TransferRequest) error {
	body, err := req.Source.Open()
	if err != nil {
		return uploader.NewError(uploader.KindTransferFailure, "Upload failed", err.Error())
	}
	defer body.Close()

	reader := &progressReader{
		r:     body,
		total: req.Source.Size(),
		report: func(fraction float64) {
			if req.OnProgress != nil {
				req.OnProgress(req.Hash, fraction)
			}
		},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, req.DestinationURL, reader)
	if err != nil {
		return uploader.NewError(uploader.KindTransferFailure, "Upload failed", err.Error())
	}
	httpReq.ContentLength = req.Source.Size()
	httpReq.Header.Set("Content-Type", req.Source.ContentType())
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("file", req.Source.Name()).Msg("transfer request failed")
		return uploader.NewError(uploader.KindTransferFailure, "Upload failed",
			"Connection lost during upload")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if req.OnProgress != nil {
			req.OnProgress(req.Hash, 1)
		}
		return nil

	case resp.StatusCode == http.StatusForbidden:
		return uploader.NewError(uploader.KindTransferFailure, "Upload unauthorized",
			"The upload destination rejected the request. The URL may have expired.")

	case resp.StatusCode == http.StatusConflict:
		// The storage backend already holds this content.
		return uploader.NewError(uploader.KindDuplicate,
			fmt.Sprintf("%s already exists in storage", req.Source.Name()), "")

	default:
		return uploader.NewError(uploader.KindTransferFailure, "Upload failed",
			fmt.Sprintf("The storage service responded with status %d.", resp.StatusCode))
	}
}

// progressReader reports cumulative read progress as a fraction of the
// expected total.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(fraction float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.total > 0 {
			p.report(float64(p.read) / float64(p.total))
		}
	}
	return n, err
}
