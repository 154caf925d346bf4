package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings ("500ms",
// "3s") or bare integers interpreted as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q", raw)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

// SymbolMapConfig shapes source-venue symbol names into bridge names.
type SymbolMapConfig struct {
	StripPrefixes []string          `yaml:"strip_prefixes"`
	StripSuffixes []string          `yaml:"strip_suffixes"`
	Overrides     map[string]string `yaml:"overrides"`
}

// Config is the full application configuration. Values come from the YAML
// file when given, then environment variables, then defaults.
type Config struct {
	// BridgeURL is the HTTP endpoint events are POSTed to.
	BridgeURL string `yaml:"bridge_url"`
	// BridgeTimeout bounds a single delivery attempt.
	BridgeTimeout Duration `yaml:"bridge_timeout"`

	// GatewayURL is the source venue's REST base URL.
	GatewayURL string `yaml:"gateway_url"`
	// GatewayWSURL is the venue's order notification stream; empty disables
	// the fast path and leaves detection to polling alone.
	GatewayWSURL string `yaml:"gateway_ws_url"`

	// PollInterval is the reconciliation tick.
	PollInterval Duration `yaml:"poll_interval"`
	// DedupWindow is how long a pending-order close suppresses duplicates.
	DedupWindow Duration `yaml:"dedup_window"`
	// NotifyDebounce throttles notification-triggered passes (milliseconds
	// scale; the poll tick backstops anything throttled away).
	NotifyDebounce Duration `yaml:"notify_debounce"`
	// Magic restricts mirroring to one order group; 0 mirrors everything.
	Magic int `yaml:"magic"`

	SymbolMap SymbolMapConfig `yaml:"symbol_map"`

	// JournalPath is the sqlite audit journal; empty disables journaling.
	JournalPath string `yaml:"journal_path"`
	// OpsAddr serves health/metrics/state; empty disables the ops server.
	OpsAddr string `yaml:"ops_addr"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// DryRun logs events instead of POSTing them.
	DryRun bool `yaml:"dry_run"`
}

// Load reads an optional .env, then the YAML file at path (when non-empty),
// then fills gaps from the environment and defaults.
func Load(path string) (*Config, error) {
	// Missing .env is fine; it is a local-dev convenience.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.BridgeURL, "BRIDGE_URL")
	setDuration(&c.BridgeTimeout, "BRIDGE_TIMEOUT")
	setString(&c.GatewayURL, "GATEWAY_URL")
	setString(&c.GatewayWSURL, "GATEWAY_WS_URL")
	setDuration(&c.PollInterval, "POLL_INTERVAL")
	setDuration(&c.DedupWindow, "DEDUP_WINDOW")
	setDuration(&c.NotifyDebounce, "NOTIFY_DEBOUNCE")
	setInt(&c.Magic, "MAGIC")
	setString(&c.JournalPath, "JOURNAL_PATH")
	setString(&c.OpsAddr, "OPS_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFile, "LOG_FILE")
	setBool(&c.DryRun, "DRY_RUN")
	if v := os.Getenv("SYMBOL_STRIP_PREFIXES"); v != "" && len(c.SymbolMap.StripPrefixes) == 0 {
		c.SymbolMap.StripPrefixes = splitList(v)
	}
	if v := os.Getenv("SYMBOL_STRIP_SUFFIXES"); v != "" && len(c.SymbolMap.StripSuffixes) == 0 {
		c.SymbolMap.StripSuffixes = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.BridgeTimeout <= 0 {
		c.BridgeTimeout = Duration(10 * time.Second)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(time.Second)
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = Duration(3 * time.Second)
	}
	if c.NotifyDebounce <= 0 {
		c.NotifyDebounce = Duration(100 * time.Millisecond)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFile == "" {
		c.LogFile = "logs/mirror.log"
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.BridgeURL == "" && !c.DryRun {
		return fmt.Errorf("bridge_url is required unless dry_run is set")
	}
	if c.BridgeURL != "" {
		if _, err := url.ParseRequestURI(c.BridgeURL); err != nil {
			return fmt.Errorf("bridge_url invalid: %w", err)
		}
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		return fmt.Errorf("gateway_url invalid: %w", err)
	}
	if c.Magic < 0 {
		return fmt.Errorf("magic must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if *dst == "" {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, key string) {
	if *dst == 0 {
		if v := os.Getenv(key); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				*dst = parsed
			}
		}
	}
}

func setBool(dst *bool, key string) {
	if !*dst {
		if v := os.Getenv(key); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				*dst = parsed
			}
		}
	}
}

// setDuration accepts Go duration strings ("500ms", "3s") or bare seconds.
func setDuration(dst *Duration, key string) {
	if *dst != 0 {
		return
	}
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if parsed, err := time.ParseDuration(v); err == nil {
		*dst = Duration(parsed)
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = Duration(time.Duration(secs) * time.Second)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
