// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads xray configuration from a YAML file and the
// environment. Environment variables take precedence over the file, and
// the file takes precedence over Default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/xray/internal/tracing"
	pkgerrors "github.com/tombee/xray/pkg/errors"
)

// Store backends accepted by server.store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config represents the complete xray configuration.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Server    ServerConfig    `yaml:"server"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
	LLM       LLMConfig       `yaml:"llm"`
}

// CollectorConfig configures where sessions and observations are exported.
type CollectorConfig struct {
	// URL is the collector base URL. Empty disables export.
	// Environment: XRAY_COLLECTOR_URL
	// Default: http://localhost:3000
	URL string `yaml:"url"`

	// Timeout bounds each export request.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent is sent with every export request.
	UserAgent string `yaml:"user_agent,omitempty"`
}

// ServerConfig configures the collector service started by `xray serve`.
type ServerConfig struct {
	// Addr is the listen address.
	// Environment: XRAY_SERVER_ADDR
	// Default: localhost:3000
	Addr string `yaml:"addr"`

	// Store selects the backend (memory, sqlite).
	// Environment: XRAY_STORE
	// Default: memory
	Store string `yaml:"store"`

	// StorePath is the SQLite database file.
	// Environment: XRAY_STORE_PATH
	// Default: $XDG_DATA_HOME/xray/xray.db
	StorePath string `yaml:"store_path,omitempty"`

	// RateLimit is the sustained request rate per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit,omitempty"`

	// RateBurst is the rate limiter burst size.
	RateBurst int `yaml:"rate_burst,omitempty"`

	// CORSOrigins lists origins allowed to read the API from a browser.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TracingConfig configures the OpenTelemetry pipeline.
type TracingConfig struct {
	ServiceName    string           `yaml:"service_name"`
	ServiceVersion string           `yaml:"service_version"`
	Exporters      []ExporterConfig `yaml:"exporters,omitempty"`
	BatchSize      int              `yaml:"batch_size,omitempty"`
	BatchInterval  time.Duration    `yaml:"batch_interval,omitempty"`
}

// ExporterConfig configures one raw span exporter.
type ExporterConfig struct {
	// Type is console, otlp or otlp-http.
	Type     string            `yaml:"type"`
	Endpoint string            `yaml:"endpoint,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	TLS      TLSConfig         `yaml:"tls,omitempty"`
}

// TLSConfig configures TLS for OTLP exporters.
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// VerifyCertificate defaults to true when unset.
	VerifyCertificate *bool  `yaml:"verify_certificate,omitempty"`
	CACertPath        string `yaml:"ca_cert_path,omitempty"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// LLMConfig configures the provider used by `xray ask`.
type LLMConfig struct {
	// Provider is a registered provider name (openai, scripted).
	// Default: openai
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	// Environment: XRAY_MODEL
	Model string `yaml:"model,omitempty"`

	// APIKey is the provider API key. Prefer APIKeyEnv.
	// Environment: OPENAI_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// APIKeyEnv names an environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	BaseURL     string   `yaml:"base_url,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`

	// Responses are replayed by the scripted provider.
	Responses []string `yaml:"responses,omitempty"`

	// RequestTimeout bounds a single completion.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxRetries is the number of retries for transient provider errors.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Collector: CollectorConfig{
			URL:     "http://localhost:3000",
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Addr:            "localhost:3000",
			Store:           StoreMemory,
			ShutdownTimeout: 5 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName:    "xray",
			ServiceVersion: "dev",
			BatchSize:      512,
			BatchInterval:  5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			RequestTimeout: 60 * time.Second,
			MaxRetries:     2,
		},
	}
}

// Load builds a Config from defaults, the file at configPath (if any) and
// the environment, then validates it. A missing file at the default path is
// not an error; a missing file named explicitly is.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	path, explicit := configPath, configPath != ""
	if !explicit {
		if p, err := ConfigPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			if explicit || !pkgerrors.Is(err, os.ErrNotExist) {
				return nil, &pkgerrors.ConfigError{
					Key:    "config_file",
					Reason: fmt.Sprintf("failed to load from %s", path),
					Cause:  err,
				}
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Collector.Timeout == 0 {
		c.Collector.Timeout = d.Collector.Timeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.Store == "" {
		c.Server.Store = d.Server.Store
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.Tracing.ServiceName
	}
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = d.Tracing.ServiceVersion
	}
	if c.Tracing.BatchSize == 0 {
		c.Tracing.BatchSize = d.Tracing.BatchSize
	}
	if c.Tracing.BatchInterval == 0 {
		c.Tracing.BatchInterval = d.Tracing.BatchInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = d.LLM.RequestTimeout
	}
}

func (c *Config) loadFromEnv() {
	if val, ok := os.LookupEnv("XRAY_COLLECTOR_URL"); ok {
		c.Collector.URL = val
	}
	if val := os.Getenv("XRAY_SERVER_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("XRAY_STORE"); val != "" {
		c.Server.Store = strings.ToLower(val)
	}
	if val := os.Getenv("XRAY_STORE_PATH"); val != "" {
		c.Server.StorePath = val
	}
	if val := os.Getenv("XRAY_RATE_LIMIT"); val != "" {
		if rps, err := strconv.ParseFloat(val, 64); err == nil {
			c.Server.RateLimit = rps
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if c.LLM.APIKeyEnv != "" {
		if val := os.Getenv(c.LLM.APIKeyEnv); val != "" {
			c.LLM.APIKey = val
		}
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = val
	}
	if val := os.Getenv("XRAY_MODEL"); val != "" {
		c.LLM.Model = val
	}
}

// Validate checks the configuration and returns the first problem as a
// *errors.ConfigError naming the offending key.
func (c *Config) Validate() error {
	if c.Collector.URL != "" {
		if !strings.HasPrefix(c.Collector.URL, "http://") && !strings.HasPrefix(c.Collector.URL, "https://") {
			return &pkgerrors.ConfigError{Key: "collector.url", Reason: fmt.Sprintf("must be an http(s) URL, got %q", c.Collector.URL)}
		}
	}
	if c.Collector.Timeout <= 0 {
		return &pkgerrors.ConfigError{Key: "collector.timeout", Reason: fmt.Sprintf("must be positive, got %v", c.Collector.Timeout)}
	}

	switch c.Server.Store {
	case StoreMemory, StoreSQLite:
	default:
		return &pkgerrors.ConfigError{Key: "server.store", Reason: fmt.Sprintf("must be one of [memory, sqlite], got %q", c.Server.Store)}
	}
	if c.Server.RateLimit < 0 {
		return &pkgerrors.ConfigError{Key: "server.rate_limit", Reason: "must be non-negative"}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return &pkgerrors.ConfigError{Key: "server.shutdown_timeout", Reason: fmt.Sprintf("must be positive, got %v", c.Server.ShutdownTimeout)}
	}

	for i, exp := range c.Tracing.Exporters {
		switch exp.Type {
		case "console", "otlp", "otlp-http", "otlp_http", "none":
		default:
			return &pkgerrors.ConfigError{
				Key:    fmt.Sprintf("tracing.exporters[%d].type", i),
				Reason: fmt.Sprintf("must be one of [console, otlp, otlp-http], got %q", exp.Type),
			}
		}
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		return &pkgerrors.ConfigError{Key: "log.level", Reason: fmt.Sprintf("must be one of [trace, debug, info, warn, error], got %q", c.Log.Level)}
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return &pkgerrors.ConfigError{Key: "log.format", Reason: fmt.Sprintf("must be one of [json, text], got %q", c.Log.Format)}
	}

	if c.LLM.RequestTimeout <= 0 {
		return &pkgerrors.ConfigError{Key: "llm.request_timeout", Reason: fmt.Sprintf("must be positive, got %v", c.LLM.RequestTimeout)}
	}
	if c.LLM.MaxRetries < 0 {
		return &pkgerrors.ConfigError{Key: "llm.max_retries", Reason: fmt.Sprintf("must be non-negative, got %d", c.LLM.MaxRetries)}
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		return &pkgerrors.ConfigError{Key: "llm.temperature", Reason: fmt.Sprintf("must be between 0 and 2, got %v", *t)}
	}
	return nil
}

// TracingSettings converts the tracing section into the form tracing.Setup
// accepts.
func (c *Config) TracingSettings() tracing.Config {
	out := tracing.Config{
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: c.Tracing.ServiceVersion,
		BatchSize:      c.Tracing.BatchSize,
		BatchInterval:  c.Tracing.BatchInterval,
	}
	for _, exp := range c.Tracing.Exporters {
		verify := true
		if exp.TLS.VerifyCertificate != nil {
			verify = *exp.TLS.VerifyCertificate
		}
		out.Exporters = append(out.Exporters, tracing.ExporterConfig{
			Type:     exp.Type,
			Endpoint: exp.Endpoint,
			Headers:  exp.Headers,
			TLS: tracing.TLSConfig{
				Enabled:           exp.TLS.Enabled,
				VerifyCertificate: verify,
				CACertPath:        exp.TLS.CACertPath,
			},
		})
	}
	return out
}
