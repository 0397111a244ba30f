// Package nftstorage uploads CAR archives to the NFT.Storage pinning
// service.
package nftstorage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/pkg/errors"
	"github.com/matzehuels/nftgen/pkg/httputil"
	"github.com/matzehuels/nftgen/pkg/integrations"
	"github.com/matzehuels/nftgen/pkg/observability"
)

// DefaultEndpoint is the NFT.Storage API root.
const DefaultEndpoint = "https://api.nft.storage"

// MaxCARSize is the largest CAR file accepted in a single upload.
const MaxCARSize = 100 * 1000 * 1000

const maxRetryDelay = 30 * time.Second

// Client uploads CAR files with bearer authentication. Transient failures
// (network errors, 5xx) are retried with exponential backoff.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	logger   *log.Logger
	attempts int
	delay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetry sets the attempt count and initial backoff.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) { c.attempts, c.delay = attempts, delay }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		http:     integrations.NewHTTPClient(0),
		endpoint: DefaultEndpoint,
		apiKey:   apiKey,
		logger:   log.Default(),
		attempts: 3,
		delay:    time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	if c.apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "NFT.Storage API key is required")
	}
	if err := errors.ValidateURL(c.endpoint); err != nil {
		return nil, err
	}
	return c, nil
}

// UploadResult is the service's answer to a successful upload.
type UploadResult struct {
	CID string `json:"cid"`
}

type uploadResponse struct {
	OK    bool         `json:"ok"`
	Value UploadResult `json:"value"`
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// UploadCAR posts the CAR file at path to {endpoint}/upload.
func (c *Client) UploadCAR(ctx context.Context, path string) (*UploadResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "stat car file %s", path)
	}
	if info.Size() > MaxCARSize {
		return nil, errors.New(errors.ErrCodeUpstreamTransfer,
			"car file %s is too large (%d bytes, limit %d)", path, info.Size(), MaxCARSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read car file %s", path)
	}

	c.logger.Info("uploading to NFT.Storage", "file", path, "bytes", len(data))
	var result *UploadResult
	policy := httputil.Policy{
		Attempts: c.attempts,
		Delay:    c.delay,
		MaxDelay: maxRetryDelay,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("upload attempt failed, retrying", "file", path, "attempt", attempt, "wait", wait, "err", err)
		},
	}
	err = policy.Do(ctx, func() error {
		r, err := c.post(ctx, data)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpstreamTransfer, err, "failed to upload %s to NFT.Storage", path)
	}
	c.logger.Info("uploaded to NFT.Storage", "file", path, "cid", result.CID)
	return result, nil
}

func (c *Client) post(ctx context.Context, data []byte) (*UploadResult, error) {
	u, err := url.JoinPath(c.endpoint, "upload")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/car")

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return nil, integrations.NetworkError(err)
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, integrations.NetworkError(err)
	}
	if err := integrations.CheckStatus(resp.StatusCode, summarize(body)); err != nil {
		return nil, err
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Some gateways answer 200 with an empty body.
		return &UploadResult{}, nil
	}
	return &parsed.Value, nil
}

// summarize extracts the service's error message, falling back to the raw body.
func summarize(body []byte) string {
	var parsed uploadResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := string(bytes.TrimSpace(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
