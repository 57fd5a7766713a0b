// Package client provides the HTTP client for the ngrok agent's local API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"NgrokBoot/pkg/api"

	"github.com/pingcap-incubator/tinykv/log"
	"github.com/pkg/errors"
)

const tunnelsPath = "/api/tunnels"

// NgrokClient talks to one agent's local API. It is safe for concurrent use.
type NgrokClient struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ClientOption customises an NgrokClient
type ClientOption func(*NgrokClient)

// WithHTTPClient replaces the underlying http.Client (tests, proxies)
func WithHTTPClient(cli *http.Client) ClientOption {
	return func(c *NgrokClient) {
		c.httpClient = cli
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *NgrokClient) {
		c.httpClient.Timeout = timeout
	}
}

// NewNgrokClient creates a client for the agent API at baseURL,
// e.g. "http://127.0.0.1:4040"
func NewNgrokClient(baseURL string, opts ...ClientOption) (*NgrokClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &URLResolutionError{Path: baseURL, Err: err}
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, &URLResolutionError{Path: baseURL, Err: errors.New("base address needs a scheme and host")}
	}
	c := &NgrokClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *NgrokClient) BaseURL() string {
	return c.baseURL.String()
}

// Get fetches path and decodes the JSON body into out
func (c *NgrokClient) Get(ctx context.Context, path string, out interface{}) error {
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := checkStatus(resp, body); err != nil {
		return err
	}
	return decode(body, out)
}

// Post sends in as JSON to path and decodes the JSON reply into out.
// out may be nil when the reply is not needed.
func (c *NgrokClient) Post(ctx context.Context, path string, in interface{}, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	resp, body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if err := checkStatus(resp, body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(body, out)
}

// Delete succeeds only on 204 No Content
func (c *NgrokClient) Delete(ctx context.Context, path string) error {
	resp, body, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent {
		return newServerError(resp.StatusCode, body)
	}
	return nil
}

// ListTunnels returns the agent's tunnels as of this call
func (c *NgrokClient) ListTunnels(ctx context.Context) (*api.TunnelList, error) {
	var result api.TunnelList
	if err := c.Get(ctx, tunnelsPath, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTunnel fetches a single tunnel by name
func (c *NgrokClient) GetTunnel(ctx context.Context, name string) (*api.Tunnel, error) {
	var result api.Tunnel
	if err := c.Get(ctx, tunnelPath(name), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartTunnel asks the agent to open a new tunnel and returns it
func (c *NgrokClient) StartTunnel(ctx context.Context, req *api.StartTunnelRequest) (*api.Tunnel, error) {
	var result api.Tunnel
	if err := c.Post(ctx, tunnelsPath, req, &result); err != nil {
		return nil, err
	}
	log.Infof("[client] started tunnel %s -> %s", result.PublicURL, result.Config.Addr)
	return &result, nil
}

// StopTunnel closes the named tunnel
func (c *NgrokClient) StopTunnel(ctx context.Context, name string) error {
	if err := c.Delete(ctx, tunnelPath(name)); err != nil {
		return err
	}
	log.Infof("[client] stopped tunnel %s", name)
	return nil
}

// Ping reports whether the API answers a tunnel listing
func (c *NgrokClient) Ping(ctx context.Context) error {
	_, err := c.ListTunnels(ctx)
	return err
}

func tunnelPath(name string) string {
	return tunnelsPath + "/" + url.PathEscape(name)
}

// resolve joins path onto the base address. Paths naming another host are
// rejected.
func (c *NgrokClient) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, &URLResolutionError{Path: path, Err: err}
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, &URLResolutionError{Path: path, Err: errors.New("path must be relative to the agent address")}
	}
	return c.baseURL.ResolveReference(ref), nil
}

// do issues the request and reads the whole body. Only URL and transport
// failures are reported here; status handling is left to the caller.
func (c *NgrokClient) do(ctx context.Context, method, path string, payload []byte) (*http.Response, []byte, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return nil, nil, &URLResolutionError{Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("[client] %s %s failed: %v", method, target, err)
		return nil, nil, &TransportError{Method: method, URL: target.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, nil, &TransportError{Method: method, URL: target.String(), Err: err}
	}
	log.Debugf("[client] %s %s -> %d (%d bytes)", method, target, resp.StatusCode, len(body))
	return resp, body, nil
}

// readBody reads exactly Content-Length bytes when the header is present and
// falls back to reading until EOF for chunked replies. The buffer grows with
// the bytes actually received, never with the declared length.
func readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength < 0 {
		return io.ReadAll(resp.Body)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, resp.ContentLength))
	if err != nil {
		return nil, errors.Wrapf(err, "read %d byte body", resp.ContentLength)
	}
	if int64(len(body)) != resp.ContentLength {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "body ended after %d of %d bytes", len(body), resp.ContentLength)
	}
	return body, nil
}

func checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newServerError(resp.StatusCode, body)
	}
	return nil
}

func newServerError(status int, body []byte) *ServerError {
	text := strings.TrimSpace(string(body))
	var apiErr api.APIErrorBody
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
		text = apiErr.Msg
	}
	if text == "" {
		text = http.StatusText(status)
	}
	return &ServerError{Status: status, Text: text}
}

func decode(body []byte, out interface{}) error {
	if !utf8.Valid(body) {
		return &DecodeError{Stage: StageUTF8}
	}
	if !json.Valid(body) {
		return &DecodeError{Stage: StageJSON}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Stage: StageShape, Err: err}
	}
	return nil
}
