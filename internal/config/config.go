// Package config loads voicetrack settings from .voicetrack/config.yaml and
// the environment. Environment variables win over the file; secrets are only
// read from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voicetrack/voicetrack/internal/candidates"
	"github.com/voicetrack/voicetrack/internal/gates"
	"github.com/voicetrack/voicetrack/internal/storage"
	"github.com/voicetrack/voicetrack/internal/tracker"
	"github.com/voicetrack/voicetrack/internal/transcribe"
)

// FileName is the config file inside the workspace directory
const FileName = "config.yaml"

// Config holds every setting the CLI needs
type Config struct {
	// Home is the absolute workspace directory
	Home string
	// Storage is the backend name ("files" or "sqlite")
	Storage  string
	LogLevel slog.Level

	Jira       JiraConfig
	Anthropic  AnthropicConfig
	Transcribe TranscribeConfig
	Generate   GenerateConfig
}

// JiraConfig locates the tracker and the target project
type JiraConfig struct {
	Site              string
	Email             string
	APIToken          string
	Project           string
	RequestsPerSecond float64
}

// AnthropicConfig configures remote candidate generation
type AnthropicConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
}

// TranscribeConfig configures the speech-to-text endpoint
type TranscribeConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
}

// GenerateConfig holds candidate generation defaults
type GenerateConfig struct {
	Mode          candidates.Mode
	MaxCandidates int
}

// DefaultConfig returns defaults rooted at home
func DefaultConfig(home string) *Config {
	return &Config{
		Home:     home,
		Storage:  storage.BackendFiles,
		LogLevel: slog.LevelWarn,
		Jira: JiraConfig{
			RequestsPerSecond: tracker.DefaultRequestsPerSecond,
		},
		Anthropic: AnthropicConfig{
			MaxRetries: 3,
			Timeout:    120 * time.Second,
		},
		Transcribe: TranscribeConfig{
			BaseURL: transcribe.DefaultBaseURL,
			Model:   transcribe.DefaultModel,
		},
		Generate: GenerateConfig{
			Mode:          candidates.ModeHeuristic,
			MaxCandidates: candidates.DefaultCandidates,
		},
	}
}

// Validate checks ranges and enums. Missing tracker identity is not an
// error here; only apply needs it (see ApplyConfig).
func (c *Config) Validate() error {
	if c.Home == "" {
		return fmt.Errorf("workspace directory is required")
	}
	if c.Storage != storage.BackendFiles && c.Storage != storage.BackendSQLite {
		return fmt.Errorf("storage must be %q or %q (got %q)", storage.BackendFiles, storage.BackendSQLite, c.Storage)
	}
	if c.Jira.RequestsPerSecond <= 0 {
		return fmt.Errorf("tracker requests per second must be positive (got %v)", c.Jira.RequestsPerSecond)
	}
	if c.Anthropic.MaxRetries < 0 {
		return fmt.Errorf("AI max retries must be non-negative (got %d)", c.Anthropic.MaxRetries)
	}
	if c.Anthropic.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive (got %v)", c.Anthropic.Timeout)
	}
	if !c.Generate.Mode.IsValid() || c.Generate.Mode == candidates.ModeManual {
		return fmt.Errorf("default generation mode must be %q or %q (got %q)",
			candidates.ModeHeuristic, candidates.ModeRemote, c.Generate.Mode)
	}
	if c.Generate.MaxCandidates < candidates.MinCandidates || c.Generate.MaxCandidates > candidates.MaxCandidates {
		return fmt.Errorf("max candidates must be between %d and %d (got %d)",
			candidates.MinCandidates, candidates.MaxCandidates, c.Generate.MaxCandidates)
	}
	return nil
}

// ApplyConfig is the tracker identity for the apply step
func (c *Config) ApplyConfig() gates.ApplyConfig {
	return gates.ApplyConfig{
		Site:     c.Jira.Site,
		Email:    c.Jira.Email,
		APIToken: c.Jira.APIToken,
		Project:  c.Jira.Project,
	}
}

// RequireApply fails unless every setting apply needs is present
func (c *Config) RequireApply() error {
	ac := c.ApplyConfig()
	return ac.Validate()
}

// String renders the config with secrets redacted
func (c *Config) String() string {
	return fmt.Sprintf("Config{Home: %s, Storage: %s, LogLevel: %s, Jira: {Site: %s, Email: %s, Project: %s, Token: %s, RPS: %v}, "+
		"Anthropic: {Model: %s, Key: %s}, Transcribe: {URL: %s, Model: %s, Key: %s}, Generate: {Mode: %s, Max: %d}}",
		c.Home, c.Storage, c.LogLevel,
		c.Jira.Site, c.Jira.Email, c.Jira.Project, redact(c.Jira.APIToken), c.Jira.RequestsPerSecond,
		c.Anthropic.Model, redact(c.Anthropic.APIKey),
		c.Transcribe.BaseURL, c.Transcribe.Model, redact(c.Transcribe.APIKey),
		c.Generate.Mode, c.Generate.MaxCandidates)
}

func redact(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "(set)"
}

// Load builds the config for the workspace at home: defaults, then
// home/config.yaml if present, then the environment.
func Load(home string) (*Config, error) {
	cfg := DefaultConfig(home)

	file, err := LoadConfigFile(home)
	if err != nil {
		return nil, err
	}
	if file != nil {
		if err := file.apply(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ConfigFile is the structure of .voicetrack/config.yaml
type ConfigFile struct {
	Storage  string `yaml:"storage"`
	LogLevel string `yaml:"log_level"`

	Jira struct {
		Site              string  `yaml:"site"`
		Email             string  `yaml:"email"`
		Project           string  `yaml:"project"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"jira"`

	Anthropic struct {
		Model      string `yaml:"model"`
		BaseURL    string `yaml:"base_url"`
		MaxRetries *int   `yaml:"max_retries"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"anthropic"`

	Transcribe struct {
		BaseURL  string `yaml:"base_url"`
		Model    string `yaml:"model"`
		Language string `yaml:"language"`
	} `yaml:"transcribe"`

	Generate struct {
		Mode          string `yaml:"mode"`
		MaxCandidates int    `yaml:"max_candidates"`
	} `yaml:"generate"`
}

// LoadConfigFile reads home/config.yaml. A missing file is not an error
// and yields nil.
func LoadConfigFile(home string) (*ConfigFile, error) {
	path := filepath.Join(home, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cf ConfigFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cf, nil
}

// apply overrides cfg with every field set in the file
func (cf *ConfigFile) apply(cfg *Config) error {
	if cf.Storage != "" {
		cfg.Storage = cf.Storage
	}
	if cf.LogLevel != "" {
		level, err := ParseLogLevel(cf.LogLevel)
		if err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		cfg.LogLevel = level
	}

	setString(&cfg.Jira.Site, cf.Jira.Site)
	setString(&cfg.Jira.Email, cf.Jira.Email)
	setString(&cfg.Jira.Project, cf.Jira.Project)
	if cf.Jira.RequestsPerSecond != 0 {
		cfg.Jira.RequestsPerSecond = cf.Jira.RequestsPerSecond
	}

	setString(&cfg.Anthropic.Model, cf.Anthropic.Model)
	setString(&cfg.Anthropic.BaseURL, cf.Anthropic.BaseURL)
	if cf.Anthropic.MaxRetries != nil {
		cfg.Anthropic.MaxRetries = *cf.Anthropic.MaxRetries
	}
	if cf.Anthropic.Timeout != "" {
		d, err := time.ParseDuration(cf.Anthropic.Timeout)
		if err != nil {
			return fmt.Errorf("config file: invalid anthropic.timeout: %w", err)
		}
		cfg.Anthropic.Timeout = d
	}

	setString(&cfg.Transcribe.BaseURL, cf.Transcribe.BaseURL)
	setString(&cfg.Transcribe.Model, cf.Transcribe.Model)
	setString(&cfg.Transcribe.Language, cf.Transcribe.Language)

	if cf.Generate.Mode != "" {
		cfg.Generate.Mode = candidates.Mode(cf.Generate.Mode)
	}
	if cf.Generate.MaxCandidates != 0 {
		cfg.Generate.MaxCandidates = cf.Generate.MaxCandidates
	}
	return nil
}

// Environment variables
const (
	EnvStorage         = "VOICETRACK_STORAGE"
	EnvLogLevel        = "VOICETRACK_LOG_LEVEL"
	EnvJiraSite        = "JIRA_SITE"
	EnvJiraEmail       = "JIRA_EMAIL"
	EnvJiraToken       = "JIRA_API_TOKEN"
	EnvJiraProject     = "JIRA_PROJECT_KEY"
	EnvTrackerRPS      = "VOICETRACK_TRACKER_RPS"
	EnvAnthropicKey    = "ANTHROPIC_API_KEY"
	EnvModel           = "VOICETRACK_MODEL"
	EnvAIMaxRetries    = "VOICETRACK_AI_MAX_RETRIES"
	EnvAITimeout       = "VOICETRACK_AI_TIMEOUT_SECONDS"
	EnvTranscribeURL   = "VOICETRACK_TRANSCRIBE_URL"
	EnvTranscribeKey   = "VOICETRACK_TRANSCRIBE_API_KEY"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvTranscribeModel = "VOICETRACK_TRANSCRIBE_MODEL"
	EnvTranscribeLang  = "VOICETRACK_TRANSCRIBE_LANGUAGE"
	EnvGenerateMode    = "VOICETRACK_GENERATE_MODE"
	EnvGenerateMax     = "VOICETRACK_MAX_CANDIDATES"
)

func (c *Config) applyEnv() error {
	setString(&c.Storage, os.Getenv(EnvStorage))
	if v := os.Getenv(EnvLogLevel); v != "" {
		level, err := ParseLogLevel(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", EnvLogLevel, err)
		}
		c.LogLevel = level
	}

	setString(&c.Jira.Site, os.Getenv(EnvJiraSite))
	setString(&c.Jira.Email, os.Getenv(EnvJiraEmail))
	setString(&c.Jira.APIToken, os.Getenv(EnvJiraToken))
	setString(&c.Jira.Project, os.Getenv(EnvJiraProject))
	if err := parseEnvFloat(EnvTrackerRPS, &c.Jira.RequestsPerSecond); err != nil {
		return err
	}

	setString(&c.Anthropic.APIKey, os.Getenv(EnvAnthropicKey))
	setString(&c.Anthropic.Model, os.Getenv(EnvModel))
	if err := parseEnvInt(EnvAIMaxRetries, &c.Anthropic.MaxRetries); err != nil {
		return err
	}
	if err := parseEnvDuration(EnvAITimeout, &c.Anthropic.Timeout, time.Second); err != nil {
		return err
	}

	setString(&c.Transcribe.BaseURL, os.Getenv(EnvTranscribeURL))
	setString(&c.Transcribe.APIKey, os.Getenv(EnvOpenAIKey))
	setString(&c.Transcribe.APIKey, os.Getenv(EnvTranscribeKey))
	setString(&c.Transcribe.Model, os.Getenv(EnvTranscribeModel))
	setString(&c.Transcribe.Language, os.Getenv(EnvTranscribeLang))

	if v := os.Getenv(EnvGenerateMode); v != "" {
		c.Generate.Mode = candidates.Mode(v)
	}
	return parseEnvInt(EnvGenerateMax, &c.Generate.MaxCandidates)
}

// ParseLogLevel accepts debug, info, warn and error
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func setString(dest *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dest = value
	}
}

// parseEnvFloat parses a float from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
// The multiplier converts the numeric value (e.g. time.Second for seconds)
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}

const fileTemplate = `# voicetrack configuration. Environment variables override these values.
# Secrets (JIRA_API_TOKEN, ANTHROPIC_API_KEY, OPENAI_API_KEY) are read from
# the environment only.

storage: files        # files | sqlite
log_level: warn

jira:
  site: ""            # e.g. acme.atlassian.net
  email: ""
  project: ""         # e.g. OPS
  requests_per_second: 5

anthropic:
  model: ""
  max_retries: 3
  timeout: 120s

transcribe:
  base_url: https://api.openai.com/v1
  model: whisper-1
  language: ""

generate:
  mode: heuristic     # heuristic | remote
  max_candidates: 5
`

// WriteTemplate creates home/config.yaml with commented defaults unless it
// already exists. It reports whether a file was written.
func WriteTemplate(home string) (bool, error) {
	path := filepath.Join(home, FileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating config file: %w", err)
	}
	if _, err := f.WriteString(fileTemplate); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("writing config file: %w", err)
	}
	return true, f.Close()
}
