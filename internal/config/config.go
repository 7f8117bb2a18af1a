// Package config loads and validates the bot configuration from YAML, with
// environment variable expansion for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sidekick-bot/sidekick/internal/executor"
	"github.com/sidekick-bot/sidekick/internal/gateway"
	"github.com/sidekick-bot/sidekick/internal/logging"
	"github.com/sidekick-bot/sidekick/internal/slack"
)

// Config represents the main configuration.
type Config struct {
	Version  string                `yaml:"version"`
	Server   *gateway.ServerConfig `yaml:"server"`
	GitHub   *GitHubConfig         `yaml:"github"`
	Access   *AccessConfig         `yaml:"access"`
	Redis    *RedisConfig          `yaml:"redis"`
	Executor *ExecutorConfig       `yaml:"executor"`
	Agent    *AgentConfig          `yaml:"agent"`
	Slack    *slack.Config         `yaml:"slack"`
	Store    *StoreConfig          `yaml:"store"`
	Logging  *logging.Config       `yaml:"logging"`
}

// GitHubConfig holds GitHub credentials and the bot identity.
type GitHubConfig struct {
	// Token authenticates API calls and repository pushes.
	Token string `yaml:"token"`
	// WebhookSecret verifies inbound webhook signatures.
	WebhookSecret string `yaml:"webhook_secret"`
	// BotName is the mention handle users write, without the leading @.
	BotName string `yaml:"bot_name"`
}

// AccessConfig holds access-control settings.
type AccessConfig struct {
	// AllowedRepos lists owner/name patterns; '*' wildcards are supported.
	// Empty allows every repository.
	AllowedRepos []string `yaml:"allowed_repos"`
	// RequireOrgMembership restricts usage to members of the repo's owner org.
	RequireOrgMembership bool `yaml:"require_org_membership"`
	// RateLimit is the per-author hourly request cap.
	RateLimit int `yaml:"rate_limit"`
}

// RedisConfig holds the rate-counter store settings. An empty Addr disables
// rate limiting.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ExecutorConfig wraps local-executor settings with the routing mode.
type ExecutorConfig struct {
	// Mode selects the backend: background-agent, local-execution, or auto.
	Mode  string           `yaml:"mode"`
	Local *executor.Config `yaml:"local"`
}

// AgentConfig holds background agent service settings.
type AgentConfig struct {
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Deadline     time.Duration `yaml:"deadline"`
}

// StoreConfig holds job persistence settings.
type StoreConfig struct {
	// Path is the directory holding the job database.
	Path string `yaml:"path"`
	// Retention is how long terminal jobs are kept before pruning.
	Retention time.Duration `yaml:"retention"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Version: "1.0",
		Server: &gateway.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		GitHub: &GitHubConfig{
			BotName: "sidekick",
		},
		Access: &AccessConfig{
			RateLimit: 10,
		},
		Redis: &RedisConfig{},
		Executor: &ExecutorConfig{
			Mode:  "auto",
			Local: executor.DefaultConfig(),
		},
		Agent: &AgentConfig{},
		Slack: slack.DefaultConfig(),
		Store: &StoreConfig{
			Path:      filepath.Join(homeDir, ".sidekick", "data"),
			Retention: 7 * 24 * time.Hour,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file, expanding environment variables, and
// applies overrides from the process environment.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			config.applyEnv()
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Store != nil {
		config.Store.Path = expandPath(config.Store.Path)
	}

	config.applyEnv()
	return config, nil
}

// applyEnv lets credentials come from the environment without appearing in
// the config file at all.
func (c *Config) applyEnv() {
	if v := os.Getenv("SIDEKICK_GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("SIDEKICK_WEBHOOK_SECRET"); v != "" {
		c.GitHub.WebhookSecret = v
	}
	if v := os.Getenv("SIDEKICK_SLACK_TOKEN"); v != "" {
		c.Slack.BotToken = v
	}
	if v := os.Getenv("SIDEKICK_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SIDEKICK_AGENT_TOKEN"); v != "" {
		c.Agent.Token = v
	}
}

// Save saves configuration to a file.
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the default configuration path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".sidekick", "config.yaml")
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate checks that the configuration can run. Credentials are required
// at startup so failures surface immediately rather than on the first job.
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GitHub == nil || c.GitHub.Token == "" {
		return fmt.Errorf("github token is required (set github.token or SIDEKICK_GITHUB_TOKEN)")
	}
	if c.GitHub.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required (set github.webhook_secret or SIDEKICK_WEBHOOK_SECRET)")
	}
	if c.GitHub.BotName == "" {
		return fmt.Errorf("bot name is required")
	}
	switch c.Executor.Mode {
	case "background-agent":
		if c.Agent == nil || c.Agent.URL == "" {
			return fmt.Errorf("agent url is required in background-agent mode")
		}
	case "local-execution", "auto", "":
	default:
		return fmt.Errorf("invalid executor mode: %s", c.Executor.Mode)
	}
	if c.Slack != nil && c.Slack.Enabled && c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot token is required when slack is enabled (set slack.bot_token or SIDEKICK_SLACK_TOKEN)")
	}
	return nil
}
