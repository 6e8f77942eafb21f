// Package config loads the runtime configuration from config.yaml under the
// OpenIntent home directory, with environment variables taking precedence for
// secrets.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LLMConfig names the primary model endpoint. Family is "openai" for
// OpenAI-compatible chat/completions endpoints or "anthropic" for the
// Anthropic messages wire format.
type LLMConfig struct {
	Family    string `yaml:"family"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// TelegramConfig configures the Telegram channel. Token may be left empty in
// the file and supplied via TELEGRAM_BOT_TOKEN.
type TelegramConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
}

// DevWorkerConfig configures the self-development worker.
type DevWorkerConfig struct {
	Enabled             bool   `yaml:"enabled"`
	RepoPath            string `yaml:"repo_path"`
	MainBranch          string `yaml:"main_branch"`
	FormatCmd           string `yaml:"format_cmd"`
	LintCmd             string `yaml:"lint_cmd"`
	TestCmd             string `yaml:"test_cmd"`
	MaxRetries          int    `yaml:"max_retries"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// RetentionConfig configures the retention sweeper.
type RetentionConfig struct {
	Schedule         string `yaml:"schedule"`
	EpisodeTTLDays   int    `yaml:"episode_ttl_days"`
	CompactThreshold int    `yaml:"compact_threshold"`
	KeepRecent       int    `yaml:"keep_recent"`
}

// OtelConfig configures trace export. With an empty endpoint spans go to
// stdout when enabled.
type OtelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`
	DBPath   string `yaml:"db_path"`

	LLM       LLMConfig       `yaml:"llm"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	DevWorker DevWorkerConfig `yaml:"dev_worker"`
	Retention RetentionConfig `yaml:"retention"`
	Otel      OtelConfig      `yaml:"otel"`

	// VaultKeyEnv names the env var carrying the base64 or hex encoded
	// 32-byte vault master key.
	VaultKeyEnv string `yaml:"vault_key_env"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		LLM: LLMConfig{
			Family:    "anthropic",
			BaseURL:   "https://api.anthropic.com",
			Model:     "claude-sonnet-4-20250514",
			APIKeyEnv: "OPENINTENT_API_KEY",
		},
		DevWorker: DevWorkerConfig{
			MainBranch:          "main",
			MaxRetries:          3,
			PollIntervalSeconds: 10,
		},
		Retention: RetentionConfig{
			Schedule:         "0 3 * * *",
			EpisodeTTLDays:   30,
			CompactThreshold: 100,
			KeepRecent:       20,
		},
		VaultKeyEnv: "OPENINTENT_VAULT_KEY",
	}
}

// HomeDir returns the OpenIntent home directory, honoring OPENINTENT_HOME.
func HomeDir() string {
	if override := os.Getenv("OPENINTENT_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".openintent")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the home directory, creating the directory if
// needed. A missing file yields the defaults.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom loads configuration rooted at an explicit home directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create openintent home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "openintent.db")
	}
	if cfg.LLM.Family == "" {
		cfg.LLM.Family = "anthropic"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENINTENT_API_KEY"
	}
	if cfg.VaultKeyEnv == "" {
		cfg.VaultKeyEnv = "OPENINTENT_VAULT_KEY"
	}
	if cfg.DevWorker.MainBranch == "" {
		cfg.DevWorker.MainBranch = "main"
	}
	if cfg.DevWorker.MaxRetries <= 0 {
		cfg.DevWorker.MaxRetries = 3
	}
	if cfg.DevWorker.PollIntervalSeconds <= 0 {
		cfg.DevWorker.PollIntervalSeconds = 10
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 3 * * *"
	}
	if cfg.Retention.EpisodeTTLDays <= 0 {
		cfg.Retention.EpisodeTTLDays = 30
	}
}

// PrimaryAPIKey resolves the primary model key from the configured env var.
func (c Config) PrimaryAPIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// GeminiAPIKey and DeepSeekAPIKey resolve the routing tier keys; both are
// optional and tiers without a key fall back to the primary model.
func (c Config) GeminiAPIKey() string   { return os.Getenv("GEMINI_API_KEY") }
func (c Config) DeepSeekAPIKey() string { return os.Getenv("DEEPSEEK_API_KEY") }

// TelegramToken prefers the TELEGRAM_BOT_TOKEN env var over the file value.
func (c Config) TelegramToken() string {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		return v
	}
	return c.Telegram.Token
}

// VaultKey returns the raw value of the configured vault key env var; the
// vault decodes and validates it.
func (c Config) VaultKey() string {
	return os.Getenv(c.VaultKeyEnv)
}

// Fingerprint returns a stable hash of the reloadable settings, used to skip
// no-op reloads.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "log=%s|family=%s|base=%s|model=%s|keyenv=%s",
		c.LogLevel, c.LLM.Family, c.LLM.BaseURL, c.LLM.Model, c.LLM.APIKeyEnv)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
