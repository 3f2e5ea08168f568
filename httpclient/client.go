package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/Michael--/modular-runtime/resilience"
)

var jsonAPI = sonic.ConfigStd

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends JSON requests to one base URL.
type Client struct {
	http   *http.Client
	config Config
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}
	return &Client{
		http:   &http.Client{Transport: transport, Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.config.BaseURL }

// CloseIdleConnections drops pooled connections.
func (c *Client) CloseIdleConnections() { c.http.CloseIdleConnections() }

// Do sends body (JSON-encoded unless nil or []byte) to path. A non-2xx
// answer returns the response together with a classified *Error. With
// Config.Retry set, failed attempts are repeated as it allows.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	if c.config.Retry == nil {
		return c.send(ctx, method, path, body)
	}
	return resilience.Retry(ctx, *c.config.Retry, func() (*Response, error) {
		return c.send(ctx, method, path, body)
	})
}

// JSON sends in and decodes a successful answer into out. Either may be
// nil. An empty answer leaves out untouched; an undecodable one is a
// *Error with ErrCodeDecode.
func (c *Client) JSON(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.Do(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := jsonAPI.Unmarshal(resp.Body, out); err != nil {
		return NewDecodeError(resp.StatusCode, resp.Body, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, NewTimeoutError(err)
		}
		return nil, NewConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewConnectionError(fmt.Errorf("read body: %w", err))
	}
	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	if serr := ClassifyStatusCode(resp.StatusCode, data); serr != nil {
		return out, serr
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := path
	if c.config.BaseURL != "" && !strings.Contains(path, "://") {
		url = strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch v := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(v)
	default:
		data, err := jsonAPI.Marshal(v)
		if err != nil {
			return nil, NewValidationError(fmt.Sprintf("encode body: %v", err))
		}
		reader, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
