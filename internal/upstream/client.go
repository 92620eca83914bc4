// Package upstream issues the outbound GenerateContent call described in
// spec.md §4.5 steps 5-6 and §6: it builds the upstream URL and headers,
// relays the caller's credential, and returns a streaming byte source.
//
// Grounded on the teacher's internal/runtime/executor/gemini_executor.go
// (URL construction from a configured host plus the resolved model name,
// and attaching either an API-key header or a bearer token) trimmed to a
// single always-streaming call: this proxy never performs the teacher's
// non-streaming Execute path, credential refresh, or provider fallback.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/tyrchen/claude-code-proxy/internal/apperr"
	"github.com/tyrchen/claude-code-proxy/internal/config"
)

const apiVersion = "v1beta"

// Client issues streamGenerateContent requests against a configured
// upstream host.
type Client struct {
	httpClient *http.Client
	host       string
}

// New builds a Client whose connection timeout and overall request
// timeout come from cfg.
func New(cfg *config.Config) *Client {
	return &Client{
		host: cfg.UpstreamHost,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
			Timeout: cfg.RequestTimeout,
		},
	}
}

// Credential is the upstream API key as relayed from whichever downstream
// credential header the client used; it is never logged.
type Credential struct {
	APIKey string
}

// Stream issues the upstream request and returns the response body as a
// streaming byte source. The caller owns closing it. A non-2xx status is
// reported as an *apperr.Error with the body drained into the message and
// the kind taken from apperr.FromUpstreamStatus. Downstream headers have not
// been committed at that point; the request handler writes this error as a
// pre-stream JSON error body, not as an SSE error event.
func (c *Client) Stream(ctx context.Context, model string, body []byte, cred Credential) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/%s/models/%s:streamGenerateContent?key=%s", c.host, apiVersion, model, cred.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "upstream: building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAPI, "upstream: request failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		kind := apperr.FromUpstreamStatus(resp.StatusCode)
		return nil, apperr.Newf(kind, "upstream returned status %d: %s", resp.StatusCode, string(msg))
	}

	return resp.Body, nil
}
