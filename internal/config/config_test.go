package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "council.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
upstreamBaseUrl: https://gateway.example.com
modes:
  lite:
    participants: [m1, m2]
    chairman: m1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lite", cfg.DefaultMode)
	assert.Equal(t, 60*time.Second, cfg.Stage1Timeout())
	assert.Equal(t, 60*time.Second, cfg.Stage2Timeout())
	assert.Equal(t, 120*time.Second, cfg.Stage3Timeout())
	assert.Equal(t, 2048, cfg.ParticipantMaxTokens)
	assert.Equal(t, 4096, cfg.ChairmanMaxTokens)
	assert.Equal(t, 10, cfg.RecentMessagesWindow)
	assert.Equal(t, 50, cfg.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.GracePeriod())
	assert.Equal(t, 600*time.Second, cfg.StaleThreshold())
	assert.Equal(t, 300*time.Second, cfg.SweepInterval())
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 30*time.Second, cfg.TitleTimeout())
	assert.Equal(t, 4000, cfg.MaxContentLen)
	assert.Equal(t, "COUNCIL_UPSTREAM_API_KEY", cfg.UpstreamAPIKeyEnv)
}

func TestLoad_PreservesExplicitValues(t *testing.T) {
	path := writeConfig(t, `
upstreamBaseUrl: https://gateway.example.com
defaultMode: ultra
stage1TimeoutSec: 5
maxConcurrentProcessing: 3
modes:
  ultra:
    participants: [m1]
    chairman: m1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ultra", cfg.DefaultMode)
	assert.Equal(t, 5*time.Second, cfg.Stage1Timeout())
	assert.Equal(t, 3, cfg.MaxConcurrent)
}

func TestLoad_ResolvesAPIKeyFromNamedEnvVar(t *testing.T) {
	path := writeConfig(t, `
upstreamBaseUrl: https://gateway.example.com
upstreamApiKeyEnv: MY_CUSTOM_KEY
modes:
  lite:
    participants: [m1]
    chairman: m1
`)
	t.Setenv("MY_CUSTOM_KEY", "secret-value")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", cfg.UpstreamAPIKey())
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAMLReturnsError(t *testing.T) {
	path := writeConfig(t, "not: [valid: yaml")
	_, err := Load(path)
	assert.Error(t, err)
}
