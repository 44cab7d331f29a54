// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/httpclient"
	"github.com/tombee/xray/pkg/telemetry"
)

// Client is a client for the collector API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient creates a client for the collector at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, &pkgerrors.ConfigError{Key: "collector.url", Reason: "collector URL is required"}
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, &pkgerrors.ConfigError{Key: "collector.url", Reason: "invalid URL", Cause: err}
	}

	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		hc, err := httpclient.New(httpclient.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = hc
	}
	return c, nil
}

// ListSessions returns session summaries, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]telemetry.SessionSummary, error) {
	var out []telemetry.SessionSummary
	if err := c.do(ctx, http.MethodGet, "/sessions", "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession returns one full session. A missing session yields a
// *errors.NotFoundError.
func (c *Client) GetSession(ctx context.Context, id string) (*telemetry.Session, error) {
	var out telemetry.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSessionRaw returns one session as generic JSON, for ad-hoc queries.
func (c *Client) GetSessionRaw(ctx context.Context, id string) (any, error) {
	var out any
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), id, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession deletes one session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), id, nil)
}

// DeleteAllSessions deletes every session and returns how many were removed.
func (c *Client) DeleteAllSessions(ctx context.Context) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/sessions", "", &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) do(ctx context.Context, method, path, id string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && id != "" {
		return &pkgerrors.NotFoundError{Resource: "session", ID: id}
	}
	if resp.StatusCode >= 400 {
		var e ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("collector returned error %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("collector returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
