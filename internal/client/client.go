// Package client fetches row streams from a flight server and feeds them
// into a decoder.
//
// The client holds an ordered list of endpoint candidates and walks them
// until one answers. Transient failures are retried a bounded number of
// times with a short fixed backoff; the caller decides what to do when
// every candidate is down.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/flight/internal/decoder"
	"github.com/conneroisu/flight/internal/logging"
	"github.com/conneroisu/flight/internal/resolver"
	"github.com/conneroisu/flight/internal/wire"
)

// AcceptRowStream is the content type that selects the raw row stream on
// the server; anything else gets rendered HTML.
const AcceptRowStream = wire.ContentType

// ResumeTokenHeader carries the opaque resume token for POST /stream.
const ResumeTokenHeader = "X-Flight-Resume-Token"

// Options configures a Client.
type Options struct {
	// Endpoints are base URLs tried in order.
	Endpoints []string
	// Retries is how many extra passes over the endpoint list are made
	// after the first. Zero means a single pass.
	Retries int
	// Backoff is the fixed wait between passes.
	Backoff time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Resolver materializes client references in decoded trees.
	Resolver resolver.Resolver
	Logger   logging.Logger
}

// Client fetches and decodes row streams.
type Client struct {
	endpoints []string
	retries   int
	backoff   time.Duration
	http      *http.Client
	res       resolver.Resolver
	log       logging.Logger
}

// New validates the endpoint list and builds a client.
func New(opts Options) (*Client, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("client: at least one endpoint is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &Client{
		endpoints: opts.Endpoints,
		retries:   opts.Retries,
		backoff:   backoff,
		http:      httpClient,
		res:       opts.Resolver,
		log:       logger.WithComponent("client"),
	}, nil
}

// Fetch GETs the row stream at path and decodes it. The returned decoder
// holds the complete tree for the stream the server chose to send.
func (c *Client) Fetch(ctx context.Context, path string) (*decoder.Decoder, error) {
	d := decoder.New(decoder.Options{Resolver: c.res, Logger: c.log})

	resp, err := c.do(ctx, func(endpoint string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", AcceptRowStream)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := d.Consume(resp.Body); err != nil {
		return nil, fmt.Errorf("client: reading row stream: %w", err)
	}

	return d, nil
}

// StreamRequest asks the server to render one registered component.
type StreamRequest struct {
	ComponentID string                 `json:"component_id"`
	Props       map[string]interface{} `json:"props,omitempty"`
	// ResumeToken is the opaque token from a previous response; the
	// server uses it to skip rows the client already holds.
	ResumeToken []byte `json:"-"`
}

// Stream POSTs a render request and feeds the row stream into d. It
// returns the resume token for the next request, if the server sent one.
func (c *Client) Stream(ctx context.Context, request StreamRequest, d *decoder.Decoder) ([]byte, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("client: encoding stream request: %w", err)
	}

	resp, err := c.do(ctx, func(endpoint string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			endpoint+"/stream", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", AcceptRowStream)
		if len(request.ResumeToken) > 0 {
			req.Header.Set(ResumeTokenHeader,
				base64.StdEncoding.EncodeToString(request.ResumeToken))
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := d.Consume(resp.Body); err != nil {
		return nil, fmt.Errorf("client: reading row stream: %w", err)
	}

	var nextToken []byte
	if encoded := resp.Header.Get(ResumeTokenHeader); encoded != "" {
		nextToken, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("client: malformed resume token: %w", err)
		}
	}

	return nextToken, nil
}

// do walks the endpoint candidates, retrying the whole list with a fixed
// backoff between passes. A response with a server error status counts as
// a failed attempt; client error statuses are returned as-is since
// retrying cannot fix them.
func (c *Client) do(ctx context.Context, build func(endpoint string) (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		for _, endpoint := range c.endpoints {
			req, err := build(strings.TrimRight(endpoint, "/"))
			if err != nil {
				return nil, err
			}

			resp, err := c.http.Do(req)
			if err != nil {
				lastErr = err
				c.log.Warn(ctx, err, "endpoint unreachable",
					"endpoint", endpoint, "attempt", attempt)
				continue
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				resp.Body.Close()
				lastErr = fmt.Errorf("client: %s answered %s", endpoint, resp.Status)
				c.log.Warn(ctx, lastErr, "endpoint failing",
					"endpoint", endpoint, "attempt", attempt)
				continue
			}
			if resp.StatusCode >= http.StatusBadRequest {
				resp.Body.Close()
				return nil, fmt.Errorf("client: %s answered %s", endpoint, resp.Status)
			}

			return resp, nil
		}
	}

	return nil, fmt.Errorf("client: all endpoints failed: %w", lastErr)
}
