// Package client is a small HTTP client for a running statuscast server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/statuscast/internal/server"
	"github.com/lazypower/statuscast/internal/status"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	// Posting waits on the model, so it gets far more time than reads.
	postTimeout = 90 * time.Second
	readTimeout = 5 * time.Second
)

// Client talks to the statuscast server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty serverURL uses
// STATUSCAST_URL, falling back to http://127.0.0.1:37778.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("STATUSCAST_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

func userPath(userID string) string {
	return "/api/users/" + url.PathEscape(userID)
}

func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}

// PostStatus submits a status update for userID.
func (c *Client) PostStatus(ctx context.Context, userID, text string) (*server.StatusResponse, error) {
	var resp server.StatusResponse
	err := c.do(ctx, http.MethodPost, userPath(userID)+"/status", postTimeout, map[string]string{"text": text}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Latest returns the user's latest entry.
func (c *Client) Latest(ctx context.Context, userID string) (*server.LatestResponse, error) {
	var resp server.LatestResponse
	if err := c.do(ctx, http.MethodGet, userPath(userID)+"/status/latest", readTimeout, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns up to limit of the user's newest entries, oldest first.
func (c *Client) History(ctx context.Context, userID string, limit int) ([]status.Entry, error) {
	path := userPath(userID) + "/status/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Entries []status.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, readTimeout, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Purge deletes everything stored for the user.
func (c *Client) Purge(ctx context.Context, userID string) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	if err := c.do(ctx, http.MethodDelete, userPath(userID), readTimeout, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", readTimeout, nil, nil) == nil
}
