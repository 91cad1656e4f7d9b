// Package config handles configuration loading for sigil-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SIGIL_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/sigil/gateway.yaml
//  3. ~/.config/sigil/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	signing:
//	  secret: "${SIGIL_SIGNING_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	runtime:
//	  query_timeout: "45s"
//	  memory_timeout: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  read_timeout: "10s"
//	  shutdown_grace: "25s"
//
// Remote agent runtime:
//
//	runtime:
//	  endpoint: "${SIGIL_RUNTIME_ENDPOINT}"
//	  auth_token: "${SIGIL_RUNTIME_TOKEN}"
//	  query_timeout: "45s"
//	  memory_timeout: "10s"
//
// Deployment identity (advertised in the capability descriptor):
//
//	identity:
//	  name: "sigil-gateway"
//	  description: "Webhook gateway for the sigil agent runtime"
//	  public_endpoint: "https://sigil.example.com"
//	  operations_file: "operations.toml"
//
// Inbound request signing:
//
//	signing:
//	  secret: "${SIGIL_SIGNING_SECRET}"
//	  freshness_window: "300s"
//
// Messaging providers:
//
//	providers:
//	  slack:
//	    enabled: true
//	    signing_secret: "${SLACK_SIGNING_SECRET}"
//	    bot_token: "${SLACK_BOT_TOKEN}"
//	    bot_user_id: "U0123456789"
//	  telegram:
//	    enabled: false
//	    bot_token: "${TELEGRAM_BOT_TOKEN}"
//	    webhook_secret: "${TELEGRAM_WEBHOOK_SECRET}"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "sigil"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Runtime endpoint presence and URL shape
//   - Signing secret presence
//   - Public endpoint presence
//   - Per-provider secrets when a provider is enabled
//   - Duration format validity
//   - Telemetry exporter values
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/sigil/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
