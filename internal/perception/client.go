package perception

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

	dErrors "facegate/pkg/domain-errors"
)

const defaultTimeout = 5 * time.Second

// HTTPClient calls a remote perception service over JSON.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.httpClient = c
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(h *HTTPClient) { h.logger = logger }
}

func NewHTTPClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("perception base URL is required")
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type extractRequest struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type,omitempty"`
}

func (c *HTTPClient) Extract(ctx context.Context, capture Capture) (*Extraction, error) {
	if len(capture.Image) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "capture image is required")
	}
	body, err := json.Marshal(extractRequest{
		Image:       base64.StdEncoding.EncodeToString(capture.Image),
		ContentType: capture.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternalProvider, "perception service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, dErrors.New(dErrors.CodeExternalProvider,
			fmt.Sprintf("perception extract failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out Extraction
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternalProvider, "failed to decode perception response")
	}
	if len(out.Embedding) == 0 {
		return nil, dErrors.New(dErrors.CodeExternalProvider, "perception response carried no embedding")
	}

	c.logger.DebugContext(ctx, "perception extraction completed",
		"model_id", out.ModelID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &out, nil
}

// HealthCheck verifies the perception service is reachable.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute health check request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}
