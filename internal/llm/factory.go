// Copyright 2025 Kadir Pekel
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

package llm

import "fmt"

// FromProviderTag builds a Client for one of the recognized provider
// tags. apiKey/model/baseURL come from the per-(user, role)
// configuration resolved by internal/config (spec §4.5/§6).
func FromProviderTag(providerTag, model, apiKey, baseURL string) (*Client, error) {
	switch Provider(providerTag) {
	case ProviderOpenAI:
		p, err := NewOpenAICompat(OpenAIConfig{APIKey: apiKey, Model: model, BaseURL: baseURL, ProviderTag: ProviderOpenAI})
		if err != nil {
			return nil, err
		}
		return New(p), nil
	case ProviderOllama:
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		p, err := NewOpenAICompat(OpenAIConfig{APIKey: apiKey, Model: model, BaseURL: baseURL, ProviderTag: ProviderOllama})
		if err != nil {
			return nil, err
		}
		return New(p), nil
	case ProviderAnthropic:
		p, err := NewAnthropic(AnthropicConfig{APIKey: apiKey, Model: model, BaseURL: baseURL})
		if err != nil {
			return nil, err
		}
		return New(p), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerTag)
	}
}
