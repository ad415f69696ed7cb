package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// DefaultPostTimeout bounds a single report upload.
const DefaultPostTimeout = 5 * time.Second

// Client posts metrics to a telemetry server.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a client for the given endpoint URL.
func NewClient(url string) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: DefaultPostTimeout},
	}
}

// Post sends one report.
func (c *Client) Post(ctx context.Context, m Metrics) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Poster is what the agent needs from a Client.
type Poster interface {
	Post(ctx context.Context, m Metrics) error
}

// Agent periodically collects and posts metrics.
type Agent struct {
	Collector Collector
	Poster    Poster
	Interval  time.Duration
	Logger    *log.Logger
}

// Run posts one report immediately and then every Interval until ctx is
// done. Collection and post failures are logged and do not stop the loop.
func (a *Agent) Run(ctx context.Context) error {
	logger := a.Logger
	if logger == nil {
		logger = log.Default()
	}
	interval := a.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		a.tick(ctx, logger)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Agent) tick(ctx context.Context, logger *log.Logger) {
	m, err := a.Collector.Collect(ctx)
	if err != nil {
		logger.Printf("Failed to collect telemetry: %v", err)
		return
	}
	if err := a.Poster.Post(ctx, m); err != nil {
		logger.Printf("Failed to post telemetry: %v", err)
	}
}
