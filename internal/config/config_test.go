package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicetrack/voicetrack/internal/candidates"
	"github.com/voicetrack/voicetrack/internal/types"
)

var allEnv = []string{
	EnvStorage, EnvLogLevel, EnvJiraSite, EnvJiraEmail, EnvJiraToken, EnvJiraProject,
	EnvTrackerRPS, EnvAnthropicKey, EnvModel, EnvAIMaxRetries, EnvAITimeout,
	EnvTranscribeURL, EnvTranscribeKey, EnvOpenAIKey, EnvTranscribeModel,
	EnvTranscribeLang, EnvGenerateMode, EnvGenerateMax,
}

// clearEnv isolates a test from the developer's shell
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnv {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/ws")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "files", cfg.Storage)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, candidates.ModeHeuristic, cfg.Generate.Mode)
	assert.Equal(t, 5, cfg.Generate.MaxCandidates)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no home", func(c *Config) { c.Home = "" }},
		{"bad storage", func(c *Config) { c.Storage = "postgres" }},
		{"zero rps", func(c *Config) { c.Jira.RequestsPerSecond = 0 }},
		{"negative retries", func(c *Config) { c.Anthropic.MaxRetries = -1 }},
		{"zero timeout", func(c *Config) { c.Anthropic.Timeout = 0 }},
		{"manual default mode", func(c *Config) { c.Generate.Mode = candidates.ModeManual }},
		{"unknown mode", func(c *Config) { c.Generate.Mode = "magic" }},
		{"max too high", func(c *Config) { c.Generate.MaxCandidates = 11 }},
		{"max too low", func(c *Config) { c.Generate.MaxCandidates = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("/tmp/ws")
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte(`
storage: sqlite
log_level: debug
jira:
  site: acme.atlassian.net
  email: file@example.com
  project: OPS
  requests_per_second: 2
anthropic:
  model: claude-test
  max_retries: 0
  timeout: 30s
generate:
  mode: remote
  max_candidates: 8
`), 0600))

	t.Setenv(EnvJiraEmail, "env@example.com")
	t.Setenv(EnvJiraToken, "secret-token")
	t.Setenv(EnvGenerateMax, "3")

	cfg, err := Load(home)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "acme.atlassian.net", cfg.Jira.Site)
	assert.Equal(t, "env@example.com", cfg.Jira.Email, "environment wins over the file")
	assert.Equal(t, "secret-token", cfg.Jira.APIToken)
	assert.Equal(t, "OPS", cfg.Jira.Project)
	assert.Equal(t, 2.0, cfg.Jira.RequestsPerSecond)
	assert.Equal(t, "claude-test", cfg.Anthropic.Model)
	assert.Equal(t, 0, cfg.Anthropic.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Anthropic.Timeout)
	assert.Equal(t, candidates.ModeRemote, cfg.Generate.Mode)
	assert.Equal(t, 3, cfg.Generate.MaxCandidates)

	require.NoError(t, cfg.RequireApply())
	assert.NotContains(t, cfg.String(), "secret-token")
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "files", cfg.Storage)

	err = cfg.RequireApply()
	require.ErrorIs(t, err, types.ErrPrecondition)
	assert.Contains(t, err.Error(), "JIRA_SITE")
	assert.Contains(t, err.Error(), "JIRA_PROJECT_KEY")
}

func TestLoad_InvalidInput(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		clearEnv(t)
		home := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte("jira: [unclosed"), 0600))
		_, err := Load(home)
		assert.ErrorContains(t, err, "parsing config file")
	})

	t.Run("bad env int", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvGenerateMax, "many")
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, EnvGenerateMax)
	})

	t.Run("bad log level", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvLogLevel, "loud")
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "log level")
	})

	t.Run("out of range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvTrackerRPS, "-1")
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestTranscribeKeyPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIKey, "openai")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Transcribe.APIKey)

	t.Setenv(EnvTranscribeKey, "dedicated")
	cfg, err = Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "dedicated", cfg.Transcribe.APIKey)
}

func TestWriteTemplate(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()

	written, err := WriteTemplate(home)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteTemplate(home)
	require.NoError(t, err)
	assert.False(t, written, "existing config is never overwritten")

	cfg, err := Load(home)
	require.NoError(t, err, "template loads cleanly")
	assert.Equal(t, DefaultConfig(home).Generate, cfg.Generate)
	assert.Equal(t, DefaultConfig(home).Anthropic, cfg.Anthropic)
}
