// Package config loads agent configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds the full agent configuration.
type Config struct {
	// Local
	DataDir    string
	ListenAddr string
	LogLevel   string
	DeviceID   string

	// Remote system of record
	RemoteBaseURL string
	RemoteTimeout time.Duration
	TenantID      string
	SessionToken  string

	// Scheduling
	ProbeInterval time.Duration
	DrainInterval time.Duration

	// Object storage for photo binaries (optional)
	ObjectEndpoint  string
	ObjectBucket    string
	ObjectAccessKey string
	ObjectSecretKey string
	ObjectUseSSL    bool
}

// Load reads configuration from the environment, applying defaults and
// validating required fields.
func Load() (*Config, error) {
	remoteTimeout, err := getDuration("REMOTE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	probeInterval, err := getDuration("PROBE_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	drainInterval, err := getDuration("DRAIN_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:    getEnv("DATA_DIR", "./data"),
		ListenAddr: getEnv("LISTEN_ADDR", "localhost:8090"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DeviceID:   getEnv("DEVICE_ID", ""),

		RemoteBaseURL: os.Getenv("REMOTE_BASE_URL"),
		RemoteTimeout: remoteTimeout,
		TenantID:      os.Getenv("TENANT_ID"),
		SessionToken:  os.Getenv("SESSION_TOKEN"),

		ProbeInterval: probeInterval,
		DrainInterval: drainInterval,

		ObjectEndpoint:  os.Getenv("OBJECT_ENDPOINT"),
		ObjectBucket:    getEnv("OBJECT_BUCKET", "fieldsync-photos"),
		ObjectAccessKey: os.Getenv("OBJECT_ACCESS_KEY"),
		ObjectSecretKey: os.Getenv("OBJECT_SECRET_KEY"),
		ObjectUseSSL:    getBool("OBJECT_USE_SSL", false),
	}

	if cfg.RemoteBaseURL == "" {
		return nil, errors.New("REMOTE_BASE_URL is required")
	}
	if cfg.TenantID == "" {
		return nil, errors.New("TENANT_ID is required")
	}
	if cfg.ObjectEndpoint != "" && (cfg.ObjectAccessKey == "" || cfg.ObjectSecretKey == "") {
		return nil, errors.New("OBJECT_ACCESS_KEY and OBJECT_SECRET_KEY are required when OBJECT_ENDPOINT is set")
	}

	return cfg, nil
}

// ObjectStoreConfigured reports whether photo binaries should be uploaded
// to an object store.
func (c *Config) ObjectStoreConfigured() bool {
	return c.ObjectEndpoint != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New("invalid " + key + " format")
	}
	return d, nil
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
