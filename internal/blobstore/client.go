package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is an ObjectStore over the storage service's HTTP surface. Objects
// live at {base}/{clientName}-{container}/{name}; requests are authorized
// with a scoped token passed as a query parameter.
type Client struct {
	baseURL    string
	clientName string
	http       *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

func NewClient(baseURL, clientName string, tokens TokenSource, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientName: clientName,
		http:       httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

func (c *Client) objectURL(ctx context.Context, container Container, name string) (string, error) {
	token, err := c.tokens.Token(ctx, container)
	if err != nil {
		return "", fmt.Errorf("acquire %s token: %w", container, err)
	}
	return fmt.Sprintf("%s/%s-%s/%s?%s", c.baseURL, c.clientName, container, url.PathEscape(name), token), nil
}

func (c *Client) Put(ctx context.Context, container Container, name string, data []byte) error {
	u, err := c.objectURL(ctx, container, name)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("blobstore.put.send_error", "name", name, "error", err)
		return fmt.Errorf("put %q: %w", name, err)
	}
	defer c.closeBody(resp.Body, name)

	if resp.StatusCode/100 != 2 {
		c.logger.Error("blobstore.put.rejected", "name", name, "status", resp.StatusCode)
		return fmt.Errorf("put %q: non-2xx status: %d", name, resp.StatusCode)
	}
	c.logger.Info("blobstore.put.ok",
		"name", name,
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (c *Client) HeadMetadata(ctx context.Context, container Container, name string) (*Metadata, error) {
	u, err := c.objectURL(ctx, container, name)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("blobstore.head.send_error", "name", name, "error", err)
		return nil, fmt.Errorf("head %q: %w", name, err)
	}
	defer c.closeBody(resp.Body, name)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("head %q: non-2xx status: %d", name, resp.StatusCode)
	}

	pairs := map[string]string{}
	for key, vals := range resp.Header {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, metaHeaderPrefix) && len(vals) > 0 {
			pairs[strings.TrimPrefix(lower, metaHeaderPrefix)] = vals[0]
		}
	}
	md := ParseMetadata(pairs)
	c.logger.Debug("blobstore.head.ok", "name", name, "analyzed", md.Analyzed, "total_pages", md.TotalPages)
	return md, nil
}

func (c *Client) Get(ctx context.Context, container Container, name string) ([]byte, error) {
	u, err := c.objectURL(ctx, container, name)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("blobstore.get.send_error", "name", name, "error", err)
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	defer c.closeBody(resp.Body, name)

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("get %q: non-2xx status: %d", name, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %q: read body: %w", name, err)
	}
	c.logger.Info("blobstore.get.ok",
		"name", name,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, nil
}

func (c *Client) closeBody(body io.ReadCloser, name string) {
	if err := body.Close(); err != nil {
		c.logger.Warn("blobstore.response_body_close_error", "name", name, "error", err)
	}
}

// metaHeaderPrefix marks object metadata response headers.
const metaHeaderPrefix = "x-meta-"
