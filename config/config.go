// Package config reads the service configuration from the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvEndpoint       = "ENDPOINT"
	EnvKey            = "KEY"
	EnvDatabase       = "DATABASE"
	EnvContainer      = "CONTAINER"
	EnvMode           = "FLASK_ENV"
	EnvPort           = "PORT"
	EnvHost           = "HOST"
	EnvBackend        = "STORE_BACKEND"
	EnvDataFile       = "DATA_FILE"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
)

// Mode is the runtime mode selected by FLASK_ENV.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

const (
	defaultPort     = 80
	defaultHost     = "0.0.0.0"
	defaultBackend  = "cosmos"
	defaultDataFile = "data.json"
)

var (
	ErrMissingConfig = errors.New("missing required environment variables")
	ErrInvalidPort   = errors.New("invalid port")
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	Endpoint  string
	Key       string
	Database  string
	Container string

	Mode           Mode
	Host           string
	Port           int
	Backend        string
	DataFile       string
	AllowedOrigins []string

	// Missing lists the store variables that were absent and replaced by "".
	Missing []string
}

// Strict reports whether missing configuration is fatal and seeding is disabled.
func (c *Config) Strict() bool { return c.Mode == ModeProduction }

// Debug reports whether verbose diagnostics are enabled.
func (c *Config) Debug() bool { return c.Mode == ModeDevelopment }

// Addr is the listen address.
func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Load builds a Config from getenv. In production mode a missing store
// variable is an error wrapping ErrMissingConfig; otherwise it is recorded in
// Missing and left empty.
func Load(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	c := &Config{
		Endpoint:  getenv(EnvEndpoint),
		Key:       getenv(EnvKey),
		Database:  getenv(EnvDatabase),
		Container: getenv(EnvContainer),
		Mode:      Mode(getenv(EnvMode)),
		Host:      env(EnvHost, defaultHost),
		Backend:   env(EnvBackend, defaultBackend),
		DataFile:  env(EnvDataFile, defaultDataFile),
	}

	for _, kv := range []struct{ name, val string }{
		{EnvEndpoint, c.Endpoint},
		{EnvKey, c.Key},
		{EnvDatabase, c.Database},
		{EnvContainer, c.Container},
	} {
		if kv.val == "" {
			c.Missing = append(c.Missing, kv.name)
		}
	}
	if len(c.Missing) > 0 && c.Strict() {
		return nil, fmt.Errorf("%w in %s mode: %s", ErrMissingConfig, c.Mode, strings.Join(c.Missing, ", "))
	}

	port, err := parsePort(getenv(EnvPort))
	if err != nil {
		return nil, err
	}
	c.Port = port

	if origins := getenv(EnvAllowedOrigins); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	return c, nil
}

func parsePort(s string) (int, error) {
	if s == "" {
		return defaultPort, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return n, nil
}

// LoadDotEnv loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}
