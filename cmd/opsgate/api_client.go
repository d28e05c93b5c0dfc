package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/opsgate/internal/maintenance"
	"github.com/haasonsaas/opsgate/internal/snapshot"
)

// apiClient talks to a running gateway over its HTTP API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

// runStatus queries a running gateway and prints a short status summary.
func runStatus(ctx context.Context, addr string) error {
	client := newAPIClient(addr)

	var health struct {
		Status string `json:"status"`
	}
	if err := client.getJSON(ctx, "/healthz", &health); err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", addr, err)
	}

	var maintState maintenance.State
	if err := client.getJSON(ctx, "/api/maintenance", &maintState); err != nil {
		return err
	}

	var cache snapshot.CacheStats
	if err := client.getJSON(ctx, "/api/snapshot/cache", &cache); err != nil {
		return err
	}

	fmt.Printf("Gateway:   %s (%s)\n", addr, health.Status)
	fmt.Printf("Mode:      %s\n", maintState.Mode)
	if maintState.Reason != "" {
		fmt.Printf("Reason:    %s\n", maintState.Reason)
	}
	if maintState.RetryAfterSeconds != nil {
		fmt.Printf("Drain in:  %ds\n", *maintState.RetryAfterSeconds)
	}
	fmt.Printf("In-flight: %d\n", maintState.InFlight)
	if cache.Cached {
		fmt.Printf("Snapshot:  cached %dms ago (%d hits, %d misses)\n", cache.AgeMs, cache.Hits, cache.Misses)
	} else {
		fmt.Printf("Snapshot:  not cached (%d hits, %d misses)\n", cache.Hits, cache.Misses)
	}
	return nil
}
