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

// Package sandbox runs untrusted Python snippets in a child process
// scoped to one workspace directory, capturing stdout/stderr and
// auto-saving any matplotlib figures left open (spec §4.1).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/songhahaha66/PaperAgent-sub000/internal/logging"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

const defaultTimeout = 60 * time.Second

var (
	executionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paperforge_sandbox_executions_total",
		Help: "Total sandbox executions, labeled by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(executionsTotal)
}

// Sandbox evaluates Python source as if cwd = workspace root.
type Sandbox struct {
	ws         *workspace.Workspace
	pythonPath string
	timeout    time.Duration
}

// Config configures a Sandbox instance.
type Config struct {
	// PythonPath is the interpreter binary. Defaults to "python3".
	PythonPath string
	// Timeout is the wall-clock cap per execution. Defaults to 60s.
	Timeout time.Duration
}

// New returns a Sandbox scoped to ws.
func New(ws *workspace.Workspace, cfg Config) *Sandbox {
	if cfg.PythonPath == "" {
		cfg.PythonPath = "python3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Sandbox{ws: ws, pythonPath: cfg.PythonPath, timeout: cfg.Timeout}
}

const preambleTemplate = `
import matplotlib
matplotlib.use("Agg")
import os as _pf_os
_pf_os.chdir(%q)
_pf_os.makedirs(%q, exist_ok=True)
`

const postambleTemplate = `
try:
    import matplotlib.pyplot as _pf_plt
    _pf_saved = []
    for _pf_n in _pf_plt.get_fignums():
        _pf_fig = _pf_plt.figure(_pf_n)
        _pf_path = _pf_os.path.join(%q, f"plot_{_pf_n}.png")
        _pf_fig.savefig(_pf_path, dpi=300, bbox_inches="tight")
        _pf_plt.close(_pf_fig)
        _pf_saved.append(_pf_path)
    if _pf_saved:
        print("已保存图表: " + ", ".join(_pf_saved))
except Exception as _pf_e:
    pass
`

func (s *Sandbox) wrap(code string) string {
	plotsDir := filepath.Join(s.ws.Root(), workspace.DirOutputPlots)
	pre := fmt.Sprintf(preambleTemplate, s.ws.Root(), plotsDir)
	post := fmt.Sprintf(postambleTemplate, plotsDir)
	return pre + "\n" + code + "\n" + post
}

// ExecuteInline writes code to a fresh temp file, prepends the
// preamble/postamble, and runs it in a single child interpreter.
func (s *Sandbox) ExecuteInline(ctx context.Context, code string) string {
	full := s.wrap(code)

	tmp, err := os.CreateTemp(filepath.Join(s.ws.Root(), workspace.DirTemp), "snippet-*.py")
	if err != nil {
		executionsTotal.WithLabelValues("error").Inc()
		return fmt.Sprintf("执行代码失败: %v", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(full); err != nil {
		tmp.Close()
		executionsTotal.WithLabelValues("error").Inc()
		return fmt.Sprintf("执行代码失败: %v", err)
	}
	tmp.Close()

	return s.runFile(ctx, tmp.Name())
}

func (s *Sandbox) runFile(ctx context.Context, path string) string {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.pythonPath, path)
	cmd.Dir = s.ws.Root()
	cmd.Env = append(os.Environ(),
		"WORKSPACE_DIR="+s.ws.Root(),
		"PYTHONIOENCODING=utf-8",
		"PYTHONPATH="+filepath.Join(s.ws.Root(), workspace.DirCode)+string(os.PathListSeparator)+os.Getenv("PYTHONPATH"),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		executionsTotal.WithLabelValues("timeout").Inc()
		logging.Get().Warn("sandbox execution timed out", "workspace", s.ws.Root())
		return "代码执行超时（60秒），请检查代码是否存在死循环或效率问题"
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		code := -1
		if ok {
			code = exitErr.ExitCode()
		}
		executionsTotal.WithLabelValues("nonzero_exit").Inc()
		return fmt.Sprintf("执行错误 (返回码: %d):\n%s", code, stderr.String())
	}

	executionsTotal.WithLabelValues("success").Inc()
	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "代码执行完成，无输出"
	}
	return out
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// Sanitize maps an arbitrary filename to a safe code/<name>.py stem.
func Sanitize(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = unsafeFilenameChars.ReplaceAllString(stem, "_")
	if stem == "" {
		stem = "snippet"
	}
	return stem
}

// SaveAndExecute persists code/<sanitized(filename)>.py then runs it.
func (s *Sandbox) SaveAndExecute(ctx context.Context, code, filename string) string {
	rel := filepath.Join(workspace.DirCode, Sanitize(filename)+".py")
	if err := s.ws.Write(rel, code); err != nil {
		return fmt.Sprintf("保存代码失败: %v", err)
	}
	saveMsg := fmt.Sprintf("代码已保存至 %s", rel)
	execResult := s.ExecuteInline(ctx, code)
	return saveMsg + "\n\n=== 执行结果 ===\n" + execResult
}

// ExecuteFile resolves path strictly inside the workspace, reads it,
// and delegates to ExecuteInline.
func (s *Sandbox) ExecuteFile(ctx context.Context, relPath string) string {
	abs, err := s.ws.Resolve(relPath)
	if err != nil {
		return fmt.Sprintf("路径非法: %v", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Sprintf("读取文件失败: %v", err)
	}
	return s.ExecuteInline(ctx, string(data))
}

// EditFile replaces the contents of code/<sanitized(filename)>.py,
// writing a timestamped backup first. Fails if the file doesn't
// exist.
func (s *Sandbox) EditFile(filename, newCode string) string {
	rel := filepath.Join(workspace.DirCode, Sanitize(filename)+".py")
	abs, err := s.ws.Resolve(rel)
	if err != nil {
		return fmt.Sprintf("路径非法: %v", err)
	}
	old, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Sprintf("文件不存在: %s", rel)
	}
	backupRel := filepath.Join(workspace.DirCode, fmt.Sprintf("%s.%s.bak", Sanitize(filename), time.Now().Format("20060102150405")))
	if err := s.ws.Write(backupRel, string(old)); err != nil {
		return fmt.Sprintf("创建备份失败: %v", err)
	}
	if err := s.ws.Write(rel, newCode); err != nil {
		return fmt.Sprintf("写入文件失败: %v", err)
	}
	return fmt.Sprintf("文件 %s 已更新，备份位于 %s", rel, backupRel)
}

// ListFiles returns a human-readable listing of code/*.py with sizes.
func (s *Sandbox) ListFiles() string {
	cat, err := s.ws.ListByCategory()
	if err != nil {
		return fmt.Sprintf("列出文件失败: %v", err)
	}
	if len(cat.Code) == 0 {
		return "code/ 目录为空"
	}
	var b strings.Builder
	for _, e := range cat.Code {
		fmt.Fprintf(&b, "%s (%d bytes)\n", e.Path, e.Size)
	}
	return strings.TrimRight(b.String(), "\n")
}
