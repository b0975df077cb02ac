package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "always", cfg.Quiz.RevealPolicy)
	assert.Equal(t, 5*time.Minute, cfg.Quiz.SubmitGrace)
	assert.Equal(t, 30*time.Second, cfg.Client.LoadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Client.SubmitTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  addr: ":9090"
quiz:
  reveal_policy: after_close
  submit_grace: 2m
rate_limit:
  max_requests: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("QUIZCORE_QUIZ_ENFORCE_ROSTER", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "after_close", cfg.Quiz.RevealPolicy)
	assert.Equal(t, 2*time.Minute, cfg.Quiz.SubmitGrace)
	assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.True(t, cfg.Quiz.EnforceRoster)
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv("SERVER_MODE", "release")
	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "too short")

	t.Setenv("SERVER_MODE", "debug")
	t.Setenv("DB_DRIVER", "mysql")
	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "unsupported database driver")
}
