package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cartage/bomtrack/pkg/types"
)

// CredentialProvider resolves the bearer credential both channels present.
// Resolution happens synchronously at connect (or fetch) time; how the
// credential is obtained is the caller's concern.
type CredentialProvider interface {
	Token() (string, error)
}

// StaticCredentials is a CredentialProvider backed by a fixed token.
// An empty token disables the Authorization header.
type StaticCredentials string

// Token returns the fixed token
func (s StaticCredentials) Token() (string, error) {
	return string(s), nil
}

// SnapshotClient fetches authoritative progress snapshots from the query
// endpoint. Used for the baseline fetch at start and for poll-mode
// fallback.
type SnapshotClient struct {
	baseURL string
	creds   CredentialProvider

	// Client is the HTTP client to use (allows custom configuration)
	Client *http.Client
}

// NewSnapshotClient creates a snapshot client for the given API base URL
func NewSnapshotClient(baseURL string, creds CredentialProvider) *SnapshotClient {
	return &SnapshotClient{
		baseURL: baseURL,
		creds:   creds,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch retrieves the current progress snapshot for a job
func (c *SnapshotClient) Fetch(ctx context.Context, jobID string) (*types.ProgressState, error) {
	url := fmt.Sprintf("%s/v1/jobs/%s/progress", c.baseURL, jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.creds != nil {
		token, err := c.creds.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credential: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("snapshot request returned HTTP %d", resp.StatusCode)
	}

	var snap types.ProgressState
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.JobID == "" {
		snap.JobID = jobID
	}
	return &snap, nil
}
