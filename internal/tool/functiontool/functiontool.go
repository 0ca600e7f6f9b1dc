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

// Package functiontool builds tool.CallableTool values from typed Go
// functions, generating the JSON schema from struct tags via
// invopop/jsonschema. This mirrors hector's pkg/tool/functiontool
// pattern: compile-time argument types, no reflection-based dispatch
// at call time (decoding json.Marshal/Unmarshal round-trips args into
// the typed struct once per call).
package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
)

// Config names and describes a function tool for the LLM.
type Config struct {
	Name        string
	Description string
}

type functionTool[Args any] struct {
	cfg      Config
	schema   map[string]any
	fn       func(tool.Context, Args) string
	validate func(Args) error
}

// New builds a CallableTool from a typed function. Args must be a
// struct with json/jsonschema tags describing its parameters.
func New[Args any](cfg Config, fn func(tool.Context, Args) string) (tool.CallableTool, error) {
	return NewWithValidation(cfg, fn, nil)
}

// NewWithValidation is New plus a pre-call validation hook, used for
// checks struct tags can't express (e.g. path-escape rejection).
func NewWithValidation[Args any](cfg Config, fn func(tool.Context, Args) string, validate func(Args) error) (tool.CallableTool, error) {
	if cfg.Name == "" || cfg.Description == "" {
		return nil, fmt.Errorf("functiontool: name and description are required")
	}
	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("functiontool: schema for %s: %w", cfg.Name, err)
	}
	return &functionTool[Args]{cfg: cfg, schema: schema, fn: fn, validate: validate}, nil
}

func (t *functionTool[Args]) Name() string        { return t.cfg.Name }
func (t *functionTool[Args]) Description() string { return t.cfg.Description }
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

func (t *functionTool[Args]) Call(ctx tool.Context, raw map[string]any) string {
	var args Args
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("参数编码失败: %v", err)
	}
	if err := json.Unmarshal(buf, &args); err != nil {
		return fmt.Sprintf("参数解析失败: %v", err)
	}
	if t.validate != nil {
		if err := t.validate(args); err != nil {
			return fmt.Sprintf("参数校验失败: %v", err)
		}
	}
	return t.fn(ctx, args)
}

func generateSchema[Args any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	var zero Args
	s := reflector.Reflect(&zero)
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
