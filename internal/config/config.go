package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// APIBaseURL is the REST collaborator (share resolve, snapshot, upload)
	APIBaseURL string
	// ChannelURL is the websocket endpoint base (ws:// or wss://)
	ChannelURL string
	// JoinBaseURL is the public page guests open; the wall renders it as a QR code
	JoinBaseURL string

	ShareToken    string
	SharePassword string

	Channel   ChannelConfig
	Capture   CaptureConfig
	Slideshow SlideshowConfig
	Status    StatusConfig
}

// ChannelConfig holds realtime channel tuning
type ChannelConfig struct {
	DialTimeout      time.Duration
	HeartbeatTimeout time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BackoffJitter    float64
	// MaxRetries is the consecutive-failure ceiling after which a single
	// Unreachable error is surfaced; reconnection keeps going regardless.
	MaxRetries    int
	ReorderWindow int
}

// CaptureConfig holds local capture store configuration
type CaptureConfig struct {
	// Path of the sqlite file backing the capture queue
	Path string
	// SealKey is an optional 64-hex-char key; when set, payloads are
	// encrypted at rest
	SealKey    string
	SweepEvery time.Duration
}

// SlideshowConfig holds rotation timing
type SlideshowConfig struct {
	Duration  time.Duration
	TickEvery time.Duration
}

// StatusConfig holds the local status endpoint configuration
type StatusConfig struct {
	Addr string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:    getEnv("SNAPWALL_API_URL", "http://localhost:3001"),
		ChannelURL:    getEnv("SNAPWALL_CHANNEL_URL", "ws://localhost:3001"),
		JoinBaseURL:   getEnv("SNAPWALL_JOIN_URL", "http://localhost:3001/join"),
		ShareToken:    os.Getenv("SNAPWALL_SHARE_TOKEN"),
		SharePassword: os.Getenv("SNAPWALL_SHARE_PASSWORD"),
	}

	var err error
	if cfg.Channel, err = loadChannel(); err != nil {
		return nil, err
	}
	if cfg.Capture, err = loadCapture(); err != nil {
		return nil, err
	}
	if cfg.Slideshow, err = loadSlideshow(); err != nil {
		return nil, err
	}
	cfg.Status = StatusConfig{
		Addr: getEnv("SNAPWALL_STATUS_ADDR", "127.0.0.1:9180"),
	}

	return cfg, nil
}

func loadChannel() (ChannelConfig, error) {
	var c ChannelConfig
	var err error
	if c.DialTimeout, err = getEnvDuration("SNAPWALL_DIAL_TIMEOUT", 10*time.Second); err != nil {
		return c, err
	}
	if c.HeartbeatTimeout, err = getEnvDuration("SNAPWALL_HEARTBEAT_TIMEOUT", 45*time.Second); err != nil {
		return c, err
	}
	if c.BackoffBase, err = getEnvDuration("SNAPWALL_BACKOFF_BASE", time.Second); err != nil {
		return c, err
	}
	if c.BackoffMax, err = getEnvDuration("SNAPWALL_BACKOFF_MAX", 30*time.Second); err != nil {
		return c, err
	}
	if c.BackoffJitter, err = getEnvFloat("SNAPWALL_BACKOFF_JITTER", 0.2); err != nil {
		return c, err
	}
	if c.MaxRetries, err = getEnvInt("SNAPWALL_MAX_RETRIES", 10); err != nil {
		return c, err
	}
	if c.ReorderWindow, err = getEnvInt("SNAPWALL_REORDER_WINDOW", 32); err != nil {
		return c, err
	}
	return c, nil
}

func loadCapture() (CaptureConfig, error) {
	var c CaptureConfig
	var err error
	c.Path = getEnv("SNAPWALL_CAPTURE_DB", "./snapwall_captures.db")
	c.SealKey = os.Getenv("SNAPWALL_SEAL_KEY")
	if c.SweepEvery, err = getEnvDuration("SNAPWALL_SWEEP_EVERY", 15*time.Second); err != nil {
		return c, err
	}
	return c, nil
}

func loadSlideshow() (SlideshowConfig, error) {
	var c SlideshowConfig
	var err error
	if c.Duration, err = getEnvDuration("SNAPWALL_SLIDE_DURATION", 8*time.Second); err != nil {
		return c, err
	}
	if c.TickEvery, err = getEnvDuration("SNAPWALL_SLIDE_TICK", 100*time.Millisecond); err != nil {
		return c, err
	}
	if c.Duration <= 0 {
		return c, fmt.Errorf("SNAPWALL_SLIDE_DURATION must be > 0")
	}
	return c, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
