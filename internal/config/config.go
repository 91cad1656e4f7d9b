// ABOUTME: Configuration loading and parsing for sigil-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sigil-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Identity  IdentityConfig  `yaml:"identity"`
	Signing   SigningConfig   `yaml:"signing"`
	Callback  CallbackConfig  `yaml:"callback"`
	Providers ProvidersConfig `yaml:"providers"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	ReadTimeout   time.Duration `yaml:"-"`
	ShutdownGrace time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReadTimeoutRaw   string `yaml:"read_timeout"`
	ShutdownGraceRaw string `yaml:"shutdown_grace"`
}

// RuntimeConfig holds the remote agent runtime connection configuration
type RuntimeConfig struct {
	// Endpoint is the base URL of the runtime resource; the gateway appends
	// the :query / :preloadMemories / :commitMemories verbs.
	Endpoint  string `yaml:"endpoint"`
	AuthToken string `yaml:"auth_token"`

	QueryTimeout  time.Duration `yaml:"-"`
	MemoryTimeout time.Duration `yaml:"-"`

	QueryTimeoutRaw  string `yaml:"query_timeout"`
	MemoryTimeoutRaw string `yaml:"memory_timeout"`
}

// IdentityConfig holds the deployment identity advertised in the
// capability descriptor.
type IdentityConfig struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Version        string `yaml:"version"`
	PublicEndpoint string `yaml:"public_endpoint"`
	OperationsFile string `yaml:"operations_file"`
}

// SigningConfig holds inbound request signing configuration
type SigningConfig struct {
	Secret string `yaml:"secret"`

	// FreshnessWindow bounds |now - timestamp| for signed requests.
	FreshnessWindow time.Duration `yaml:"-"`

	FreshnessWindowRaw string `yaml:"freshness_window"`
}

// CallbackConfig holds outbound peer callback authentication configuration
type CallbackConfig struct {
	JWTSecret string `yaml:"jwt_secret"`

	TokenTTL time.Duration `yaml:"-"`

	TokenTTLRaw string `yaml:"token_ttl"`
}

// ProvidersConfig holds configuration for all messaging providers
type ProvidersConfig struct {
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// SlackConfig holds Slack Events API configuration
type SlackConfig struct {
	Enabled         bool     `yaml:"enabled"`
	SigningSecret   string   `yaml:"signing_secret"`
	BotToken        string   `yaml:"bot_token"`
	BotUserID       string   `yaml:"bot_user_id"`
	AllowedChannels []string `yaml:"allowed_channels"`
}

// TelegramConfig holds Telegram webhook configuration
type TelegramConfig struct {
	Enabled       bool    `yaml:"enabled"`
	BotToken      string  `yaml:"bot_token"`
	WebhookSecret string  `yaml:"webhook_secret"`
	AllowedChats  []int64 `yaml:"allowed_chats"`
}

// TelemetryConfig holds OpenTelemetry exporter configuration
type TelemetryConfig struct {
	Exporter     string `yaml:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // Serve tailnet-internal HTTPS with Tailscale certs
	Funnel    bool   `yaml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values that have sensible defaults so a minimal
// config file only needs the runtime endpoint, signing secret, and identity.
func (c *Config) applyDefaults() {
	if c.Server.ReadTimeoutRaw == "" {
		c.Server.ReadTimeoutRaw = "10s"
	}
	if c.Server.ShutdownGraceRaw == "" {
		c.Server.ShutdownGraceRaw = "25s"
	}
	if c.Runtime.QueryTimeoutRaw == "" {
		c.Runtime.QueryTimeoutRaw = "45s"
	}
	if c.Runtime.MemoryTimeoutRaw == "" {
		c.Runtime.MemoryTimeoutRaw = "10s"
	}
	if c.Signing.FreshnessWindowRaw == "" {
		c.Signing.FreshnessWindowRaw = "300s"
	}
	if c.Callback.TokenTTLRaw == "" {
		c.Callback.TokenTTLRaw = "60s"
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = "none"
	}
	if c.Identity.Name == "" {
		c.Identity.Name = "sigil-gateway"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Runtime.Endpoint == "" {
		return fmt.Errorf("runtime.endpoint is required")
	}
	if u, err := url.Parse(c.Runtime.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("runtime.endpoint %q is not an absolute URL", c.Runtime.Endpoint)
	}

	if c.Signing.Secret == "" {
		return fmt.Errorf("signing.secret is required")
	}

	if c.Identity.PublicEndpoint == "" {
		return fmt.Errorf("identity.public_endpoint is required")
	}

	if c.Providers.Slack.Enabled {
		if c.Providers.Slack.SigningSecret == "" {
			return fmt.Errorf("providers.slack.signing_secret is required when slack is enabled")
		}
		if c.Providers.Slack.BotToken == "" {
			return fmt.Errorf("providers.slack.bot_token is required when slack is enabled")
		}
	}

	if c.Providers.Telegram.Enabled && c.Providers.Telegram.BotToken == "" {
		return fmt.Errorf("providers.telegram.bot_token is required when telegram is enabled")
	}

	switch c.Telemetry.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("telemetry.exporter %q is not one of none, stdout, otlp", c.Telemetry.Exporter)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ReadTimeoutRaw != "" {
		cfg.Server.ReadTimeout, err = time.ParseDuration(cfg.Server.ReadTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing read_timeout %q: %w", cfg.Server.ReadTimeoutRaw, err)
		}
	}

	if cfg.Server.ShutdownGraceRaw != "" {
		cfg.Server.ShutdownGrace, err = time.ParseDuration(cfg.Server.ShutdownGraceRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_grace %q: %w", cfg.Server.ShutdownGraceRaw, err)
		}
	}

	if cfg.Runtime.QueryTimeoutRaw != "" {
		cfg.Runtime.QueryTimeout, err = time.ParseDuration(cfg.Runtime.QueryTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing query_timeout %q: %w", cfg.Runtime.QueryTimeoutRaw, err)
		}
	}

	if cfg.Runtime.MemoryTimeoutRaw != "" {
		cfg.Runtime.MemoryTimeout, err = time.ParseDuration(cfg.Runtime.MemoryTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing memory_timeout %q: %w", cfg.Runtime.MemoryTimeoutRaw, err)
		}
	}

	if cfg.Signing.FreshnessWindowRaw != "" {
		cfg.Signing.FreshnessWindow, err = time.ParseDuration(cfg.Signing.FreshnessWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing freshness_window %q: %w", cfg.Signing.FreshnessWindowRaw, err)
		}
	}

	if cfg.Callback.TokenTTLRaw != "" {
		cfg.Callback.TokenTTL, err = time.ParseDuration(cfg.Callback.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Callback.TokenTTLRaw, err)
		}
	}

	return nil
}
