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
	"log/slog"
	"time"

	pkgerrors "github.com/tombee/xray/pkg/errors"
)

// Config configures the HTTP client with timeout, retry, and logging settings.
type Config struct {
	// Timeout is the total request timeout (includes retries).
	// Default: 30s. Must be > 0.
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts (0 = no retries).
	RetryAttempts int

	// RetryBackoff is the initial backoff delay before first retry.
	RetryBackoff time.Duration

	// MaxBackoff caps the backoff delay. Must be >= RetryBackoff.
	MaxBackoff time.Duration

	// UserAgent is the User-Agent header value. Required.
	UserAgent string

	// AllowNonIdempotentRetry enables retry for POST, PUT, PATCH and DELETE.
	AllowNonIdempotentRetry bool

	// Logger receives request logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  100 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		UserAgent:     "xray-http-client/1.0",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return &pkgerrors.ConfigError{Key: "timeout", Reason: "must be > 0, got " + c.Timeout.String()}
	}
	if c.RetryAttempts < 0 {
		return &pkgerrors.ConfigError{Key: "retry_attempts", Reason: "must be >= 0"}
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return &pkgerrors.ConfigError{Key: "retry_backoff", Reason: "must be > 0 when retry_attempts > 0"}
		}
		if c.MaxBackoff < c.RetryBackoff {
			return &pkgerrors.ConfigError{Key: "max_backoff", Reason: "must be >= retry_backoff"}
		}
	}
	if c.UserAgent == "" {
		return &pkgerrors.ConfigError{Key: "user_agent", Reason: "required"}
	}
	return nil
}
