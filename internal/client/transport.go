package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Client 向问卷服务端发送 JSON 请求
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option 客户端配置项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout 设置默认 http.Client 的请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLogger 设置传输失败时使用的日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New 创建以 baseURL 为根的客户端, 相对路径基于它解析
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON posts payload to uri and decodes a 2xx body into out. Any other
// status, or a network failure, is returned as *TransportError; an undecodable
// body as *DecodeError. There are no retries.
func (c *Client) PostJSON(ctx context.Context, uri string, payload, out any) error {
	return c.post(ctx, uri, payload, nil, out)
}

func (c *Client) post(ctx context.Context, uri string, payload any, header http.Header, out any) error {
	target := c.resolve(uri)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", target, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return &TransportError{URI: target, Err: err}
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("post failed", zap.String("uri", target), zap.Error(err))
		return &TransportError{URI: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		terr := &TransportError{
			URI:        target,
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       strings.TrimSpace(string(snippet)),
		}
		c.logger.Warn("post rejected",
			zap.String("uri", target),
			zap.Int("status", terr.Status),
			zap.String("body", terr.Body))
		return terr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn("undecodable response", zap.String("uri", target), zap.Error(err))
		return &DecodeError{What: "response from " + target, Err: err}
	}
	return nil
}

func (c *Client) resolve(uri string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") || c.baseURL == "" {
		return uri
	}
	return c.baseURL + "/" + strings.TrimLeft(uri, "/")
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
