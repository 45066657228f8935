package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jobstr/harvester/internal/fault"
	"github.com/jobstr/harvester/internal/output"
)

// Config holds application configuration from environment variables.
type Config struct {
	PrivateKey string // bech32 nsec; decoded once at startup

	Relays    []string
	ProxyAddr string // SOCKS5 address for .onion relays, empty when disabled

	Hashtag      string
	Lookback     time.Duration
	QueryTimeout time.Duration
	Interval     time.Duration

	OutputPath string
	OutputMode output.Mode

	MaxRetries   int
	RetryBackoff time.Duration

	ArchiveDSN string
	HTTPAddr   string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with defaults. Only
// PRIVATE_KEY is required.
func Load() (Config, error) {
	c := Config{
		PrivateKey: strings.TrimSpace(os.Getenv("PRIVATE_KEY")),
		Relays:     splitList(envOr("HARVEST_RELAYS", "wss://relay.damus.io")),
		ProxyAddr:  envOr("HARVEST_PROXY", "127.0.0.1:9050"),
		Hashtag:    strings.ToLower(envOr("HARVEST_HASHTAG", "jobstr")),
		OutputPath: envOr("HARVEST_OUTPUT", "output.json"),
		ArchiveDSN: os.Getenv("HARVEST_ARCHIVE_DSN"),
		HTTPAddr:   os.Getenv("HARVEST_HTTP_ADDR"),
		LogLevel:   envOr("HARVEST_LOG_LEVEL", "info"),
		LogFormat:  envOr("HARVEST_LOG_FORMAT", "text"),
	}
	if strings.EqualFold(c.ProxyAddr, "none") {
		c.ProxyAddr = ""
	}

	var err error
	if c.Lookback, err = durationEnv("HARVEST_LOOKBACK", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if c.QueryTimeout, err = durationEnv("HARVEST_QUERY_TIMEOUT", 40*time.Second); err != nil {
		return Config{}, err
	}
	if c.Interval, err = durationEnv("HARVEST_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if c.RetryBackoff, err = durationEnv("HARVEST_RETRY_BACKOFF", 5*time.Second); err != nil {
		return Config{}, err
	}
	if c.MaxRetries, err = intEnv("HARVEST_MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if c.OutputMode, err = output.ParseMode(envOr("HARVEST_OUTPUT_MODE", string(output.ModeReplace))); err != nil {
		return Config{}, fault.Wrap(fault.KindConfig, "HARVEST_OUTPUT_MODE", err)
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.PrivateKey == "" {
		return fault.Errorf(fault.KindConfig, "PRIVATE_KEY", "private key not found")
	}
	if len(c.Relays) == 0 {
		return fault.Errorf(fault.KindConfig, "HARVEST_RELAYS", "at least one relay is required")
	}
	for _, r := range c.Relays {
		if !strings.HasPrefix(r, "wss://") && !strings.HasPrefix(r, "ws://") {
			return fault.Errorf(fault.KindConfig, "HARVEST_RELAYS", "relay %q must use ws:// or wss://", r)
		}
	}
	if c.Hashtag == "" {
		return fault.Errorf(fault.KindConfig, "HARVEST_HASHTAG", "hashtag must not be empty")
	}
	if c.Lookback <= 0 {
		return fault.Errorf(fault.KindConfig, "HARVEST_LOOKBACK", "look-back must be positive, got %s", c.Lookback)
	}
	if c.QueryTimeout <= 0 {
		return fault.Errorf(fault.KindConfig, "HARVEST_QUERY_TIMEOUT", "timeout must be positive, got %s", c.QueryTimeout)
	}
	if c.Interval <= 0 {
		return fault.Errorf(fault.KindConfig, "HARVEST_INTERVAL", "interval must be positive, got %s", c.Interval)
	}
	if c.MaxRetries < 0 {
		return fault.Errorf(fault.KindConfig, "HARVEST_MAX_RETRIES", "must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fault.Wrap(fault.KindConfig, key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fault.Wrap(fault.KindConfig, key, fmt.Errorf("not an integer: %q", v))
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
