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

// The Code Agent's tool set (spec §4.7): save_and_execute,
// execute_code, execute_file, edit_code_file, list_code_files, all
// thin functiontool wrappers over internal/sandbox.Sandbox.
package tools

import (
	"github.com/songhahaha66/PaperAgent-sub000/internal/sandbox"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool/functiontool"
)

// SaveAndExecuteArgs are the arguments for save_and_execute.
type SaveAndExecuteArgs struct {
	Code     string `json:"code" jsonschema:"required,description=Python source to save and run"`
	Filename string `json:"filename" jsonschema:"required,description=Base filename to save the code under, e.g. analysis.py"`
}

// NewSaveAndExecute builds save_and_execute.
func NewSaveAndExecute(sb *sandbox.Sandbox) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "save_and_execute", Description: "Save Python code to code/ and execute it, returning stdout/stderr."},
		func(ctx tool.Context, args SaveAndExecuteArgs) string {
			return sb.SaveAndExecute(ctx.Context, args.Code, args.Filename)
		},
	)
}

// ExecuteCodeArgs are the arguments for execute_code.
type ExecuteCodeArgs struct {
	Code string `json:"code" jsonschema:"required,description=Python source to execute inline, without saving it"`
}

// NewExecuteCode builds execute_code.
func NewExecuteCode(sb *sandbox.Sandbox) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "execute_code", Description: "Execute Python code inline without persisting it to code/."},
		func(ctx tool.Context, args ExecuteCodeArgs) string {
			return sb.ExecuteInline(ctx.Context, args.Code)
		},
	)
}

// ExecuteFileArgs are the arguments for execute_file.
type ExecuteFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to an existing .py file under code/"`
}

// NewExecuteFile builds execute_file.
func NewExecuteFile(sb *sandbox.Sandbox) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "execute_file", Description: "Execute an existing Python file already saved under code/."},
		func(ctx tool.Context, args ExecuteFileArgs) string {
			return sb.ExecuteFile(ctx.Context, args.Path)
		},
	)
}

// EditCodeFileArgs are the arguments for edit_code_file.
type EditCodeFileArgs struct {
	Filename string `json:"filename" jsonschema:"required,description=Base filename of the code/ file to overwrite"`
	NewCode  string `json:"new_code" jsonschema:"required,description=Replacement source for the file"`
}

// NewEditCodeFile builds edit_code_file.
func NewEditCodeFile(sb *sandbox.Sandbox) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "edit_code_file", Description: "Overwrite an existing code/ file, keeping a timestamped backup."},
		func(ctx tool.Context, args EditCodeFileArgs) string {
			return sb.EditFile(args.Filename, args.NewCode)
		},
	)
}

// NewListCodeFiles builds list_code_files.
func NewListCodeFiles(sb *sandbox.Sandbox) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "list_code_files", Description: "List every file currently saved under code/."},
		func(ctx tool.Context, args struct{}) string {
			return sb.ListFiles()
		},
	)
}
