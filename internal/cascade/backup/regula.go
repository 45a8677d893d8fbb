// Package backup talks to a remote face comparison service that settles
// borderline embedding matches.
package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"facegate/pkg/platform/circuit"
	"facegate/pkg/platform/sentinel"
)

const (
	imageTypeCapture   = 1
	imageTypeReference = 2
)

// Client compares images with a Regula-style /api/match endpoint. The
// remote similarity is in [0,1] and is reported on the 0-100 scale.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithBreaker guards calls; an open breaker fails fast with
// sentinel.ErrUnavailable.
func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("backup provider base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type matchImage struct {
	Type  int    `json:"type"`
	Data  string `json:"data"`
	Index int    `json:"index"`
}

type matchRequest struct {
	Images []matchImage `json:"images"`
}

type matchResponse struct {
	Code    int `json:"code"`
	Results []struct {
		FirstIndex  int     `json:"firstIndex"`
		SecondIndex int     `json:"secondIndex"`
		Similarity  float64 `json:"similarity"`
	} `json:"results"`
}

// Compare sends the capture and reference image and returns the similarity.
// Deadlines come from ctx; the client never retries.
func (c *Client) Compare(ctx context.Context, capture, reference []byte) (float64, error) {
	if len(capture) == 0 || len(reference) == 0 {
		return 0, errors.New("capture and reference images are required")
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return 0, fmt.Errorf("backup provider circuit open: %w", sentinel.ErrUnavailable)
	}

	sim, err := c.compare(ctx, capture, reference)
	c.record(ctx, err)
	return sim, err
}

func (c *Client) compare(ctx context.Context, capture, reference []byte) (float64, error) {
	body, err := json.Marshal(matchRequest{Images: []matchImage{
		{Type: imageTypeCapture, Data: base64.StdEncoding.EncodeToString(capture), Index: 1},
		{Type: imageTypeReference, Data: base64.StdEncoding.EncodeToString(reference), Index: 2},
	}})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal match request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/match", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("backup match request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("backup provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode match response: %w", err)
	}
	if len(out.Results) == 0 {
		return 0, errors.New("backup provider returned no comparison results")
	}
	sim := out.Results[0].Similarity
	if sim < 0 || sim > 1 {
		return 0, fmt.Errorf("backup provider similarity %v outside [0, 1]", sim)
	}

	c.logger.DebugContext(ctx, "backup comparison completed",
		"similarity", sim,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sim * 100, nil
}

func (c *Client) record(ctx context.Context, err error) {
	if c.breaker == nil {
		return
	}
	var change circuit.StateChange
	if err != nil {
		_, change = c.breaker.RecordFailure()
	} else {
		_, change = c.breaker.RecordSuccess()
	}
	if change.Opened {
		c.logger.WarnContext(ctx, "backup provider circuit opened", "breaker", c.breaker.Name())
	}
	if change.Closed {
		c.logger.InfoContext(ctx, "backup provider circuit closed", "breaker", c.breaker.Name())
	}
}

// HealthCheck calls /api/healthz.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backup provider health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backup provider unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
