// Package catalog is the client for the catalog backend API. The backend
// itself is an external collaborator; tabs only fetch track metadata and
// refresh credentials through it.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SyncFM/core/retry"
	"SyncFM/model"
)

// Client is the catalog API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// SetTimeout sets the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// FetchTrackByID looks a track up in the catalog. Transient failures are
// retried on the bounded catalog schedule.
func (c *Client) FetchTrackByID(ctx context.Context, id string) (*model.TrackRef, error) {
	var track model.TrackRef
	err := retry.Do(ctx, retry.CatalogFetch, func(int) error {
		return c.getJSON(ctx, fmt.Sprintf("/api/v1/tracks/%s", url.PathEscape(id)), &track)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track %s: %w", id, err)
	}
	if track.ID == "" {
		track.ID = id
	}
	return &track, nil
}

// RefreshCredential exchanges a refresh token for a fresh credential. No
// retry: an expired credential gets exactly one silent refresh attempt.
func (c *Client) RefreshCredential(ctx context.Context, refreshToken string) (model.Credential, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return model.Credential{}, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/refresh", strings.NewReader(string(body)))
	if err != nil {
		return model.Credential{}, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Credential{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Credential{}, fmt.Errorf("refresh request returned status %d", resp.StatusCode)
	}

	var cred model.Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return model.Credential{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	return cred, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
