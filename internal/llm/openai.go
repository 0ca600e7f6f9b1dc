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

// OpenAICompat implements RawProvider against the OpenAI
// chat/completions streaming wire format. Ollama's OpenAI-compatible
// endpoint and any other OpenAI-shaped gateway reuse the same client
// with only a different BaseURL/Model, which is why spec §4.5 treats
// "one of several provider SDKs" as interchangeable at the Client
// boundary.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultTimeout = 120 * time.Second
)

// OpenAIConfig configures an OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	ProviderTag Provider // defaults to ProviderOpenAI; set ProviderOllama for Ollama gateways
}

// OpenAICompat is a RawProvider for the OpenAI chat/completions wire
// format.
type OpenAICompat struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	provider   Provider
}

// NewOpenAICompat builds an OpenAI-compatible provider adapter.
func NewOpenAICompat(cfg OpenAIConfig) (*OpenAICompat, error) {
	if cfg.ProviderTag != ProviderOllama && cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = openAIDefaultTimeout
	}
	providerTag := cfg.ProviderTag
	if providerTag == "" {
		providerTag = ProviderOpenAI
	}
	return &OpenAICompat{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      cfg.Model,
		provider:   providerTag,
	}, nil
}

func (c *OpenAICompat) Name() string       { return c.model }
func (c *OpenAICompat) Provider() Provider { return c.provider }

type oaChatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []oaToolCallOut `json:"tool_calls,omitempty"`
}

type oaToolCallOut struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

func (c *OpenAICompat) buildBody(req *Request, stream bool) ([]byte, error) {
	var messages []oaChatMessage
	if req.SystemInstruction != "" {
		messages = append(messages, oaChatMessage{Role: "system", Content: req.SystemInstruction})
	}
	for _, m := range req.Messages {
		om := oaChatMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			argBytes, _ := json.Marshal(tc.Arguments)
			out := oaToolCallOut{ID: tc.ID, Type: "function"}
			out.Function.Name = tc.Name
			out.Function.Arguments = string(argBytes)
			om.ToolCalls = append(om.ToolCalls, out)
		}
		messages = append(messages, om)
	}

	var tools []oaTool
	for _, td := range req.Tools {
		var t oaTool
		t.Type = "function"
		t.Function.Name = td.Name
		t.Function.Description = td.Description
		t.Function.Parameters = td.Schema
		tools = append(tools, t)
	}

	body := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   stream,
	}
	if len(tools) > 0 {
		body["tools"] = tools
	}
	if req.Config != nil {
		if req.Config.Temperature != nil {
			body["temperature"] = *req.Config.Temperature
		}
		if req.Config.MaxTokens != nil {
			body["max_tokens"] = *req.Config.MaxTokens
		}
		if req.Config.TopP != nil {
			body["top_p"] = *req.Config.TopP
		}
	}
	return json.Marshal(body)
}

func (c *OpenAICompat) newRequest(ctx context.Context, req *Request, stream bool) (*http.Request, error) {
	payload, err := c.buildBody(req, stream)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, nil
}

type oaStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream implements RawProvider by consuming an SSE "data: {...}"
// stream and translating each chunk into RawDeltas.
func (c *OpenAICompat) Stream(ctx context.Context, req *Request) (<-chan RawDelta, <-chan error) {
	deltas := make(chan RawDelta, 16)
	errs := make(chan error, 1)

	httpReq, err := c.newRequest(ctx, req, true)
	if err != nil {
		close(deltas)
		errs <- err
		return deltas, errs
	}

	go func() {
		defer close(deltas)
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("llm: openai request: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			errs <- fmt.Errorf("llm: openai error %d: %s", resp.StatusCode, string(body))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				break
			}
			var chunk oaStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				deltas <- RawDelta{ContentDelta: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				deltas <- RawDelta{ToolCallDelta: &ToolCallDelta{
					Index:             tc.Index,
					ID:                tc.ID,
					Name:              tc.Function.Name,
					ArgumentsFragment: tc.Function.Arguments,
				}}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("llm: openai stream read: %w", err)
			return
		}
		errs <- nil
	}()

	return deltas, errs
}

type oaCompleteResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements RawProvider's non-streaming call.
func (c *OpenAICompat) Complete(ctx context.Context, req *Request) (string, []RawToolCall, error) {
	httpReq, err := c.newRequest(ctx, req, false)
	if err != nil {
		return "", nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("llm: openai request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("llm: openai read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("llm: openai error %d: %s", resp.StatusCode, string(body))
	}

	var parsed oaCompleteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil, fmt.Errorf("llm: openai parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil, nil
	}
	msg := parsed.Choices[0].Message
	var calls []RawToolCall
	for _, tc := range msg.ToolCalls {
		calls = append(calls, RawToolCall{ID: tc.ID, Name: tc.Function.Name, ArgumentsRaw: tc.Function.Arguments})
	}
	return msg.Content, calls, nil
}
