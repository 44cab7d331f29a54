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

// Package providers contains concrete LLM providers and registers their
// factories with the global llm registry.
//
//	import _ "github.com/tombee/xray/pkg/llm/providers"
package providers

import (
	"github.com/tombee/xray/pkg/llm"
)

func init() {
	llm.RegisterFactory("openai", NewOpenAIWithConfig)
	llm.RegisterFactory("scripted", NewScriptedWithConfig)
}
