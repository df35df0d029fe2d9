package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.PollFallbackAfter)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.PushBackoffBase)
	assert.Equal(t, 30*time.Second, cfg.PushBackoffCap)
	assert.Equal(t, 50, cfg.LedgerCapacity)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bomtrack.yaml")
	content := `
jobId: job-abc
enabled: true
apiBaseUrl: https://api.example.com
pollInterval: 5s
pollFallbackAfter: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "job-abc", cfg.JobID)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 2, cfg.PollFallbackAfter)
	// Unset fields keep defaults
	assert.Equal(t, time.Second, cfg.PushBackoffBase)
	assert.Equal(t, 50, cfg.LedgerCapacity)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/bomtrack.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing job id",
			mutate:  func(c *Config) { c.JobID = "" },
			wantErr: "jobId",
		},
		{
			name:    "missing api base url",
			mutate:  func(c *Config) { c.APIBaseURL = "" },
			wantErr: "apiBaseUrl",
		},
		{
			name:    "http stream url",
			mutate:  func(c *Config) { c.StreamURL = "http://api.example.com/stream" },
			wantErr: "ws or wss",
		},
		{
			name: "cap below base",
			mutate: func(c *Config) {
				c.PushBackoffBase = 10 * time.Second
				c.PushBackoffCap = time.Second
			},
			wantErr: "pushBackoffCap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.JobID = "job-1"
			cfg.APIBaseURL = "https://api.example.com"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestResolveStreamURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIBaseURL = "https://api.example.com"

	u, err := cfg.ResolveStreamURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/v1/jobs/stream", u)

	cfg.APIBaseURL = "http://localhost:8080"
	u, err = cfg.ResolveStreamURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/v1/jobs/stream", u)

	cfg.StreamURL = "wss://stream.example.com/jobs"
	u, err = cfg.ResolveStreamURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.example.com/jobs", u)
}
