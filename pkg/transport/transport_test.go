package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartage/bomtrack/pkg/types"
)

func TestStaticCredentials(t *testing.T) {
	token, err := StaticCredentials("secret").Token()
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	token, err = StaticCredentials("").Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestSnapshotFetch(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(types.ProgressState{
			JobID:           "job-1",
			Status:          types.JobStatusEnriching,
			TotalItems:      100,
			EnrichedItems:   50,
			PercentComplete: 50,
		})
	}))
	defer server.Close()

	c := NewSnapshotClient(server.URL, StaticCredentials("secret"))
	snap, err := c.Fetch(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, "/v1/jobs/job-1/progress", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, types.JobStatusEnriching, snap.Status)
	assert.Equal(t, 50, snap.EnrichedItems)
}

func TestSnapshotFetchNoCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(types.ProgressState{Status: types.JobStatusIdle})
	}))
	defer server.Close()

	c := NewSnapshotClient(server.URL, nil)
	snap, err := c.Fetch(context.Background(), "job-1")
	require.NoError(t, err)
	// Job id is filled in when the server omits it
	assert.Equal(t, "job-1", snap.JobID)
}

func TestSnapshotFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewSnapshotClient(server.URL, nil)
	_, err := c.Fetch(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSnapshotFetchBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewSnapshotClient(server.URL, nil)
	_, err := c.Fetch(context.Background(), "job-1")
	assert.Error(t, err)
}

func TestSnapshotFetchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Dead address

	c := NewSnapshotClient(server.URL, nil)
	_, err := c.Fetch(context.Background(), "job-1")
	assert.Error(t, err)
}
