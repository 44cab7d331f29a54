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

package shared

import (
	"log/slog"
	"os"

	"github.com/tombee/xray/internal/config"
	xlog "github.com/tombee/xray/internal/log"
)

// LoadConfig loads configuration from the --config path, the default path
// and the environment.
func LoadConfig() (*config.Config, error) {
	return config.Load(GetConfigPath())
}

// NewLogger creates the command logger from the log section of cfg.
// Environment variables override the file, and --verbose forces debug.
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := &xlog.Config{
		Level:     cfg.Log.Level,
		Format:    xlog.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	}
	xlog.ApplyEnv(lc)
	if GetVerbose() {
		lc.Level = "debug"
	}
	if GetQuiet() {
		lc.Level = "error"
	}
	return xlog.New(lc)
}
