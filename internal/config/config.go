// Package config assembles daemon configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults mirror the reference client behavior.
const (
	DefaultListenAddr       = "127.0.0.1:8790"
	DefaultDataDir          = "/var/lib/focusync"
	DefaultFlushThreshold   = 5
	DefaultFlushInterval    = 60 * time.Second
	DefaultSweepInterval    = 5 * time.Minute
	DefaultReconnectDelay   = 5 * time.Second
	DefaultSyntheticWindow  = 5 * time.Minute
	DefaultInterruptionCap  = 50
	DefaultHistoryLimit     = 100
	DefaultRateLimitPerMin  = 120
	DefaultRequestTimeout   = 15 * time.Second
	DefaultRetryMaxAttempts = 0 // unlimited
)

// Config holds every tunable of the sync daemon.
type Config struct {
	// ListenAddr is the local command-surface bind address.
	ListenAddr string

	// DataDir is the root directory of the durable store.
	DataDir string

	// StoreBackend selects the store implementation ("badger" or "memory").
	StoreBackend string

	// ChannelURL is the websocket endpoint of the sync server. Empty means
	// the transport degrades to synthetic mode.
	ChannelURL string

	// BatchURL accepts Event arrays; ContentURL accepts learning submissions.
	BatchURL   string
	ContentURL string

	// RequestTimeout bounds every outbound HTTP request.
	RequestTimeout time.Duration

	// FlushThreshold is the queue length that triggers an immediate flush.
	FlushThreshold int
	// FlushInterval is the periodic flush cadence regardless of queue length.
	FlushInterval time.Duration

	// SweepInterval is the retry-sweep cadence for failed submissions.
	SweepInterval time.Duration
	// RetryMaxAttempts bounds resubmission attempts per pending item.
	// Zero keeps retrying forever.
	RetryMaxAttempts int

	// ReconnectDelay is the fixed wait before reopening an uncleanly
	// closed channel.
	ReconnectDelay time.Duration
	// SyntheticWindow is the minimum spacing of synthesized interruptions
	// in degraded mode.
	SyntheticWindow time.Duration

	// InterruptionCap bounds interruptions per session.
	InterruptionCap int
	// HistoryLimit bounds the durable closed-session history.
	HistoryLimit int

	// RateLimitPerMin caps command-surface requests per client IP.
	RateLimitPerMin int

	// LogLevel configures the global logger.
	LogLevel string
	// LogPretty switches from JSON to a human-readable console writer.
	LogPretty bool
}

// FromEnv builds a Config from FOCUSYNC_* environment variables.
func FromEnv() Config {
	return Config{
		ListenAddr:       ParseString("FOCUSYNC_LISTEN", DefaultListenAddr),
		DataDir:          ParseString("FOCUSYNC_DATA", DefaultDataDir),
		StoreBackend:     ParseString("FOCUSYNC_STORE", "badger"),
		ChannelURL:       ParseString("FOCUSYNC_CHANNEL_URL", ""),
		BatchURL:         ParseString("FOCUSYNC_BATCH_URL", ""),
		ContentURL:       ParseString("FOCUSYNC_CONTENT_URL", ""),
		RequestTimeout:   ParseDuration("FOCUSYNC_REQUEST_TIMEOUT", DefaultRequestTimeout),
		FlushThreshold:   ParseInt("FOCUSYNC_FLUSH_THRESHOLD", DefaultFlushThreshold),
		FlushInterval:    ParseDuration("FOCUSYNC_FLUSH_INTERVAL", DefaultFlushInterval),
		SweepInterval:    ParseDuration("FOCUSYNC_SWEEP_INTERVAL", DefaultSweepInterval),
		RetryMaxAttempts: ParseInt("FOCUSYNC_RETRY_MAX_ATTEMPTS", DefaultRetryMaxAttempts),
		ReconnectDelay:   ParseDuration("FOCUSYNC_RECONNECT_DELAY", DefaultReconnectDelay),
		SyntheticWindow:  ParseDuration("FOCUSYNC_SYNTHETIC_WINDOW", DefaultSyntheticWindow),
		InterruptionCap:  ParseInt("FOCUSYNC_INTERRUPTION_CAP", DefaultInterruptionCap),
		HistoryLimit:     ParseInt("FOCUSYNC_HISTORY_LIMIT", DefaultHistoryLimit),
		RateLimitPerMin:  ParseInt("FOCUSYNC_RATE_LIMIT", DefaultRateLimitPerMin),
		LogLevel:         ParseString("FOCUSYNC_LOG_LEVEL", "info"),
		LogPretty:        ParseBool("FOCUSYNC_LOG_PRETTY", false),
	}
}

// Validate rejects configurations the daemon cannot run with. Missing
// server endpoints are not fatal: the transport and queue degrade per the
// error-handling design.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" && c.StoreBackend != "memory" {
		return fmt.Errorf("data directory must not be empty for backend %q", c.StoreBackend)
	}
	switch c.StoreBackend {
	case "badger", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.ChannelURL != "" {
		u, err := url.Parse(c.ChannelURL)
		if err != nil {
			return fmt.Errorf("invalid channel URL: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("channel URL must use ws or wss scheme, got %q", u.Scheme)
		}
	}
	if c.FlushThreshold < 1 {
		return fmt.Errorf("flush threshold must be at least 1")
	}
	if c.FlushInterval <= 0 || c.SweepInterval <= 0 || c.ReconnectDelay <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if c.InterruptionCap < 1 {
		return fmt.Errorf("interruption cap must be at least 1")
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must not be negative")
	}
	return nil
}
