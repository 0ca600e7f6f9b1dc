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

package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
)

// echoTool reports its own name, letting tests assert dispatch order
// without any real side effects.
type echoTool struct{ name string }

func (e echoTool) Name() string           { return e.name }
func (e echoTool) Description() string    { return "" }
func (e echoTool) Schema() map[string]any { return map[string]any{} }
func (e echoTool) Call(tool.Context, map[string]any) string {
	return "result:" + e.name
}

func TestDispatchTurn_PreservesResultOrder(t *testing.T) {
	catalog := tool.NewCatalog(
		echoTool{name: "tree"},
		echoTool{name: "list_attachments"},
		echoTool{name: "writemd"},
	)
	base := tool.Context{Context: context.Background(), Sink: streambus.NewPersistentBus(nil, nil)}
	calls := []llm.ToolCall{
		{ID: "1", Name: "tree"},
		{ID: "2", Name: "list_attachments"},
		{ID: "3", Name: "writemd"},
	}
	results := dispatchTurn(catalog, base, calls)
	require.Len(t, results, 3)
	assert.Equal(t, "result:tree", results[0])
	assert.Equal(t, "result:list_attachments", results[1])
	assert.Equal(t, "result:writemd", results[2])
}

func TestDispatchTurn_UnknownToolProducesStructuredFailure(t *testing.T) {
	catalog := tool.NewCatalog(echoTool{name: "tree"})
	base := tool.Context{Context: context.Background(), Sink: streambus.NewPersistentBus(nil, nil)}
	results := dispatchTurn(catalog, base, []llm.ToolCall{{ID: "1", Name: "does_not_exist"}})
	require.Len(t, results, 1)
	assert.Equal(t, fmt.Sprintf("未知工具: %s", "does_not_exist"), results[0])
}
