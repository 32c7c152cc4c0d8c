package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/sitecrawl/models"
)

// apiClient talks to a running sitecrawl HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	poll    time.Duration
}

// apiError is an error envelope returned by the API.
type apiError struct {
	Status int
	Detail models.ErrorDetail
}

func (e *apiError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Detail.Code, e.Detail.Message)
}

// do sends a request and decodes a 2xx JSON body into out.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var env models.ErrorResponse
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			return &apiError{Status: resp.StatusCode, Detail: *env.Error}
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// waitJob polls the job until it reaches a terminal state or ctx is done.
func (c *apiClient) waitJob(ctx context.Context, id string) (models.Progress, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		var p models.ProgressResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/crawl/"+id, nil, &p); err != nil {
			return models.Progress{}, err
		}
		if p.Done() {
			return p.Progress, nil
		}
		select {
		case <-ctx.Done():
			return p.Progress, ctx.Err()
		case <-ticker.C:
		}
	}
}
