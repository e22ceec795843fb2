// Package config loads the server settings from an ini file, with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// DefaultPath is used when SERVER_CONFIG is not set
const DefaultPath = "server.ini"

// Recorder kinds accepted in the [recorder] section
const (
	RecorderLog    = "log"
	RecorderSQLite = "sqlite"
	RecorderHTTP   = "http"
)

// Config holds every setting of the server
type Config struct {
	Port   int
	Secret string

	SessionMaxAge time.Duration
	SweepInterval time.Duration

	RecorderKind    string
	RecorderPath    string
	RecorderURL     string
	RecorderTimeout time.Duration

	LogLevel string
}

// LoadDotEnv loads a .env file into the process environment if one exists
func LoadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Path returns the configuration file location, honoring SERVER_CONFIG
func Path() string {
	if location := os.Getenv("SERVER_CONFIG"); location != "" {
		return location
	}
	return DefaultPath
}

// Load reads the ini file at path. A missing file yields the defaults,
// SERVER_PORT and SERVER_SECRET override the file.
func Load(path string) (*Config, error) {
	file, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return FromFile(file)
}

// FromFile extracts the settings from an already parsed ini file
func FromFile(file *ini.File) (*Config, error) {
	server := file.Section("server")
	sessions := file.Section("sessions")
	recorder := file.Section("recorder")

	cfg := &Config{
		Port:   server.Key("port").MustInt(8080),
		Secret: server.Key("secret").String(),

		SessionMaxAge: sessions.Key("max_age").MustDuration(2 * time.Minute),
		SweepInterval: sessions.Key("sweep_interval").MustDuration(30 * time.Second),

		RecorderKind:    strings.ToLower(recorder.Key("kind").MustString(RecorderLog)),
		RecorderPath:    recorder.Key("path").MustString("results.db"),
		RecorderURL:     recorder.Key("url").String(),
		RecorderTimeout: recorder.Key("timeout").MustDuration(5 * time.Second),

		LogLevel: file.Section("log").Key("level").MustString("info"),
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		value, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("parse SERVER_PORT: %w", err)
		}
		cfg.Port = value
	}
	if secret := os.Getenv("SERVER_SECRET"); secret != "" {
		cfg.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("config: [server] secret is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.SessionMaxAge <= 0 || c.SweepInterval <= 0 {
		return errors.New("config: session max_age and sweep_interval must be positive")
	}
	switch c.RecorderKind {
	case RecorderLog, RecorderSQLite:
	case RecorderHTTP:
		if c.RecorderURL == "" {
			return errors.New("config: [recorder] url is required for the http recorder")
		}
	default:
		return fmt.Errorf("config: unknown recorder kind %q", c.RecorderKind)
	}
	return nil
}
