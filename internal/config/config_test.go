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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/xray/pkg/errors"
)

var envKeys = []string{
	"XRAY_COLLECTOR_URL", "XRAY_SERVER_ADDR", "XRAY_STORE", "XRAY_STORE_PATH", "XRAY_RATE_LIMIT",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE", "OPENAI_API_KEY", "XRAY_MODEL", "MY_KEY",
}

// isolate unsets every variable Load reads and points the default config
// path at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:3000", cfg.Collector.URL)
	assert.Equal(t, 10*time.Second, cfg.Collector.Timeout)
	assert.Equal(t, "localhost:3000", cfg.Server.Addr)
	assert.Equal(t, StoreMemory, cfg.Server.Store)
	assert.Equal(t, "xray", cfg.Tracing.ServiceName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Collector.URL, cfg.Collector.URL)
}

func TestLoad_DefaultPath(t *testing.T) {
	isolate(t)
	dir, err := ConfigDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *pkgerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "config_file", cfgErr.Key)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
collector:
  url: http://collector:9000
server:
  addr: 0.0.0.0:4000
  store: sqlite
  store_path: /var/lib/xray/xray.db
  rate_limit: 20
  cors_origins: ["*.example.com"]
tracing:
  service_name: router
  exporters:
    - type: otlp
      endpoint: otel:4317
      tls:
        enabled: true
        verify_certificate: false
    - type: console
log:
  format: json
llm:
  provider: scripted
  responses: ["AGENT: billing"]
  temperature: 0.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://collector:9000", cfg.Collector.URL)
	assert.Equal(t, 10*time.Second, cfg.Collector.Timeout)
	assert.Equal(t, "0.0.0.0:4000", cfg.Server.Addr)
	assert.Equal(t, StoreSQLite, cfg.Server.Store)
	assert.Equal(t, 20.0, cfg.Server.RateLimit)
	assert.Equal(t, []string{"*.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "router", cfg.Tracing.ServiceName)
	assert.Equal(t, "dev", cfg.Tracing.ServiceVersion)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "scripted", cfg.LLM.Provider)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Temperature, 1e-9)

	tc := cfg.TracingSettings()
	assert.Equal(t, "router", tc.ServiceName)
	require.Len(t, tc.Exporters, 2)
	assert.Equal(t, "otlp", tc.Exporters[0].Type)
	assert.True(t, tc.Exporters[0].TLS.Enabled)
	assert.False(t, tc.Exporters[0].TLS.VerifyCertificate)
	assert.True(t, tc.Exporters[1].TLS.VerifyCertificate)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "server: [not a map")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
collector:
  url: http://from-file:1
llm:
  model: from-file
`)
	t.Setenv("XRAY_COLLECTOR_URL", "http://from-env:2")
	t.Setenv("XRAY_SERVER_ADDR", ":7000")
	t.Setenv("XRAY_STORE", "SQLITE")
	t.Setenv("XRAY_STORE_PATH", "/tmp/x.db")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("XRAY_MODEL", "gpt-test")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_SOURCE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:2", cfg.Collector.URL)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, StoreSQLite, cfg.Server.Store)
	assert.Equal(t, "/tmp/x.db", cfg.Server.StorePath)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-test", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.AddSource)
}

func TestLoad_EmptyCollectorURLDisablesExport(t *testing.T) {
	isolate(t)
	t.Setenv("XRAY_COLLECTOR_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Collector.URL)
}

func TestLoad_APIKeyEnv(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "llm:\n  api_key_env: MY_KEY\n")
	t.Setenv("MY_KEY", "from-named-env")
	t.Setenv("OPENAI_API_KEY", "from-default-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-named-env", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		key    string
	}{
		{name: "collector url scheme", modify: func(c *Config) { c.Collector.URL = "localhost:3000" }, key: "collector.url"},
		{name: "collector timeout", modify: func(c *Config) { c.Collector.Timeout = 0 }, key: "collector.timeout"},
		{name: "unknown store", modify: func(c *Config) { c.Server.Store = "redis" }, key: "server.store"},
		{name: "negative rate", modify: func(c *Config) { c.Server.RateLimit = -1 }, key: "server.rate_limit"},
		{name: "exporter type", modify: func(c *Config) {
			c.Tracing.Exporters = []ExporterConfig{{Type: "zipkin"}}
		}, key: "tracing.exporters[0].type"},
		{name: "log level", modify: func(c *Config) { c.Log.Level = "loud" }, key: "log.level"},
		{name: "log format", modify: func(c *Config) { c.Log.Format = "xml" }, key: "log.format"},
		{name: "max retries", modify: func(c *Config) { c.LLM.MaxRetries = -1 }, key: "llm.max_retries"},
		{name: "temperature", modify: func(c *Config) {
			temp := 3.0
			c.LLM.Temperature = &temp
		}, key: "llm.temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			var cfgErr *pkgerrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/custom/config", "xray"), dir)

	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/custom/config", "xray", "config.yaml"), path)

	t.Setenv("XDG_DATA_HOME", "/custom/data")
	data, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/custom/data", "xray"), data)
}
