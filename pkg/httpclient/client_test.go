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

package httpclient

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/xray/pkg/errors"
)

func TestNew_ValidConfig(t *testing.T) {
	client, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, client.Timeout)
	_, isRetry := client.Transport.(*retryTransport)
	assert.True(t, isRetry, "default config should install the retry layer")
}

func TestNew_WithoutRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 0

	client, err := New(cfg)
	require.NoError(t, err)
	_, isLogging := client.Transport.(*loggingTransport)
	assert.True(t, isLogging)
}

func TestNew_TLSConfiguration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 0

	client, err := New(cfg)
	require.NoError(t, err)

	lt := client.Transport.(*loggingTransport)
	base := lt.base.(*http.Transport)
	assert.Equal(t, uint16(tls.VersionTLS12), base.TLSClientConfig.MinVersion)
	assert.Equal(t, 10, base.MaxIdleConnsPerHost)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, "retry_attempts"},
		{"zero backoff", func(c *Config) { c.RetryBackoff = 0 }, "retry_backoff"},
		{"max below base", func(c *Config) { c.MaxBackoff = time.Millisecond }, "max_backoff"},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }, "user_agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cfgErr *pkgerrors.ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestNew_SetsUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "xray-test/1.0"
	client, err := New(cfg)
	require.NoError(t, err)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "xray-test/1.0", got)
}
