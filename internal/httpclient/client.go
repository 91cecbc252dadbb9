// Package httpclient implements the Agent Execution Core's single-shot
// request layer: one HTTP call per invocation, cooperative cancellation
// via context, and error classification into retryable/terminal/aborted
// so the agent loop's retry policy never has to inspect wire details.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/agentcore/internal/providers"
)

// DefaultTimeout is used when a request context carries no deadline of
// its own. The spec leaves the HTTP client's default timeout open; this
// core picks a single generous upstream-style default (streaming
// responses can legitimately run for minutes) rather than per-call
// configuration, and lets callers override it by setting their own
// deadline on the context before calling Do.
const DefaultTimeout = 10 * time.Minute

// Request describes a single outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the raw result of a single-shot call: status, headers, and
// a body reader the caller (the SSE parser, for streaming calls) owns.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Client performs single-shot HTTP requests with no internal retry —
// retry policy belongs to the agent loop (C8), not the transport.
type Client struct {
	http *http.Client
}

// New builds a Client. If hc is nil, a default *http.Client with no
// absolute timeout is used since streaming responses can run indefinitely
// and cancellation is carried by the request context instead.
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{http: hc}
}

// Do issues a single request and returns the raw response, or a
// classified *providers.Error. The caller must close Response.Body.
//
// If ctx carries no deadline, DefaultTimeout is applied so a hung
// connection cannot block a turn forever. That timeout context bounds the
// body reads too, so it is released early only when Do itself fails.
func (c *Client) Do(ctx context.Context, req Request) (_ *Response, err error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer func() {
			if err != nil {
				cancel()
			}
		}()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, providers.New("", "", fmt.Errorf("build request: %w", err))
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		switch ctx.Err() {
		case context.Canceled:
			return nil, &providers.Error{Reason: providers.FailoverAborted, Cause: ctx.Err()}
		case context.DeadlineExceeded:
			return nil, &providers.Error{Reason: providers.FailoverTimeout, Cause: ctx.Err()}
		}
		return nil, providers.New("", "", err)
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		perr := providers.New("", "", fmt.Errorf("http %d", resp.StatusCode)).
			WithStatus(resp.StatusCode).
			WithMessage(string(body)).
			WithRetryAfter(parseRetryAfter(resp.Header.Get("Retry-After")))
		return nil, perr
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

// parseRetryAfter reads a Retry-After header value, which providers send as
// either an integer seconds count or an HTTP date. Unparseable or absent
// values return 0, leaving the caller's own backoff policy in control.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
