// ABOUTME: Entry point for the sigil-gateway webhook server
// ABOUTME: Bridges messaging providers to the remote agent runtime

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/sigil-gateway/internal/config"
	"github.com/2389/sigil-gateway/internal/gateway"
	"github.com/2389/sigil-gateway/internal/metrics"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
      _       _                     _
  ___(_) __ _(_) |      __ _  __ _| |_ _____      ____ _ _   _
 / __| |/ _' | | |_____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 \__ \ | (_| | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |___/_|\__, |_|_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
        |___/           |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: SIGIL_CONFIG env var > XDG_CONFIG_HOME/sigil/gateway.yaml > ~/.config/sigil/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SIGIL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "sigil", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sigil-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  init      Create a new config file interactively")
		fmt.Println("  health    Check gateway health")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Runtime:   %s\n", cfg.Runtime.Endpoint)

	var providers []string
	providers = append(providers, "peer")
	if cfg.Providers.Slack.Enabled {
		providers = append(providers, "slack")
	}
	if cfg.Providers.Telegram.Enabled {
		providers = append(providers, "telegram")
	}
	green.Print("    ▶ ")
	fmt.Printf("Providers: %s\n", strings.Join(providers, ", "))

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	// Telemetry pipeline
	shutdownTelemetry, err := metrics.Init("sigil-gateway", version, metrics.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	logger.Info("starting sigil-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"runtime", cfg.Runtime.Endpoint,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/readyz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// randomSecret generates a base64 secret for config scaffolding.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("sigil-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Runtime Configuration ---")
	runtimeEndpoint := prompt(reader, "Runtime endpoint URL", "https://runtime.example.com/v1/agent")
	runtimeToken := prompt(reader, "Runtime auth token (leave empty for none)", "")

	fmt.Println("\n--- Identity Configuration ---")
	identityName := prompt(reader, "Deployment name", "sigil-gateway")
	publicEndpoint := prompt(reader, "Public event endpoint URL", "https://"+identityName+".example.com/events")

	fmt.Println("\n--- Signing Configuration ---")
	signingSecret := prompt(reader, "Inbound signing secret (leave empty to generate)", "")
	if signingSecret == "" {
		generated, err := randomSecret()
		if err != nil {
			return err
		}
		signingSecret = generated
		fmt.Println("  generated a random signing secret")
	}

	fmt.Println("\n--- Provider Configuration ---")
	slackEnabled := isYes(prompt(reader, "Enable Slack?", "no"))
	var slackSigningSecret, slackBotToken string
	if slackEnabled {
		slackSigningSecret = prompt(reader, "Slack signing secret", "")
		slackBotToken = prompt(reader, "Slack bot token", "")
	}

	telegramEnabled := isYes(prompt(reader, "Enable Telegram?", "no"))
	var telegramBotToken, telegramWebhookSecret string
	if telegramEnabled {
		telegramBotToken = prompt(reader, "Telegram bot token", "")
		telegramWebhookSecret = prompt(reader, "Telegram webhook secret (leave empty to generate)", "")
		if telegramWebhookSecret == "" {
			generated, err := randomSecret()
			if err != nil {
				return err
			}
			telegramWebhookSecret = generated
			fmt.Println("  generated a random webhook secret")
		}
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := isYes(prompt(reader, "Enable Tailscale?", "no"))
	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "sigil-gateway")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for TS_AUTHKEY)", "")
		tsEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
		tsFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# sigil-gateway configuration\n")
	cfg.WriteString("# Generated by sigil-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("  read_timeout: \"15s\"\n")
	cfg.WriteString("  shutdown_grace: \"25s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("runtime:\n")
	cfg.WriteString(fmt.Sprintf("  endpoint: %q\n", runtimeEndpoint))
	if runtimeToken != "" {
		cfg.WriteString(fmt.Sprintf("  auth_token: %q\n", runtimeToken))
	}
	cfg.WriteString("  query_timeout: \"45s\"\n")
	cfg.WriteString("  memory_timeout: \"10s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("identity:\n")
	cfg.WriteString(fmt.Sprintf("  name: %q\n", identityName))
	cfg.WriteString(fmt.Sprintf("  version: %q\n", version))
	cfg.WriteString(fmt.Sprintf("  public_endpoint: %q\n", publicEndpoint))
	cfg.WriteString("\n")

	cfg.WriteString("signing:\n")
	cfg.WriteString(fmt.Sprintf("  secret: %q\n", signingSecret))
	cfg.WriteString("  freshness_window: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("providers:\n")
	cfg.WriteString("  slack:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", slackEnabled))
	if slackEnabled {
		cfg.WriteString(fmt.Sprintf("    signing_secret: %q\n", slackSigningSecret))
		cfg.WriteString(fmt.Sprintf("    bot_token: %q\n", slackBotToken))
	}
	cfg.WriteString("  telegram:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", telegramEnabled))
	if telegramEnabled {
		cfg.WriteString(fmt.Sprintf("    bot_token: %q\n", telegramBotToken))
		cfg.WriteString(fmt.Sprintf("    webhook_secret: %q\n", telegramWebhookSecret))
	}
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", tsFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("telemetry:\n")
	cfg.WriteString("  exporter: \"none\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  sigil-gateway serve\n")

	return nil
}

func isYes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
