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

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/songhahaha66/PaperAgent-sub000/internal/agent"
	"github.com/songhahaha66/PaperAgent-sub000/internal/chatlog"
	"github.com/songhahaha66/PaperAgent-sub000/internal/config"
	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
	"github.com/songhahaha66/PaperAgent-sub000/internal/logging"
	"github.com/songhahaha66/PaperAgent-sub000/internal/sandbox"
	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/task"
	"github.com/songhahaha66/PaperAgent-sub000/internal/transport"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

// Server holds the process-wide, explicit dependencies every
// connection is served against: the config, the shared Task
// Supervisor (one per process, keyed internally by work_id), the
// shared connection Registry that enforces newer-connection-wins on a
// reattach race, and the websocket upgrader. There is no
// package-level mutable state (spec §9's design note) — everything a
// request needs hangs off this value or is opened fresh per
// connection.
type Server struct {
	cfg        *config.Config
	supervisor *task.Supervisor
	registry   *transport.Registry
	auth       transport.Authenticator
	upgrader   websocket.Upgrader
}

func newServer(cfg *config.Config) *Server {
	return &Server{
		cfg: cfg,
		supervisor: task.New(task.Config{
			EventLogCapacity: cfg.Limits.EventLogCapacity,
			TaskTimeout:      cfg.Limits.TaskTimeout,
		}),
		registry: transport.NewRegistry(),
		auth:     tokenAuthenticator{cfg: cfg},
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// handleWebSocket upgrades one connection and drives it to completion
// via a fresh transport.Handler. The URL path's final segment is the
// work_id (e.g. GET /ws/<work_id>); routing/CRUD around work creation
// is the out-of-scope HTTP collaborator named in spec §1.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	workID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if workID == "" {
		http.Error(w, "missing work_id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Get().Warn("paperforge: websocket upgrade failed", "work_id", workID, "error", err)
		return
	}

	ws, err := workspace.New(s.cfg.DataPath, workID)
	if err != nil {
		logging.Get().Error("paperforge: open workspace", "work_id", workID, "error", err)
		_ = conn.Close()
		return
	}
	log, err := chatlog.Open(filepath.Join(ws.Root(), workspace.FileChatHistory), workID)
	if err != nil {
		logging.Get().Error("paperforge: open chat log", "work_id", workID, "error", err)
		_ = conn.Close()
		return
	}

	handler := &transport.Handler{
		WorkID:     workID,
		Supervisor: s.supervisor,
		Registry:   s.registry,
		Auth:       s.auth,
		ChatLog:    log,
		Runner:     s.buildRunner(ws, log),
	}

	if err := handler.Serve(r.Context(), conn); err != nil {
		logging.Get().Info("paperforge: connection ended", "work_id", workID, "error", err)
	}
}

// buildRunner closes over ws/log and returns a transport.Runner that
// assembles a fresh Main Agent per turn from the caller's
// (user, role) configuration. The LLM clients are rebuilt each turn
// from the Config loaded at startup; changes to the config file are
// not picked up until the process restarts.
func (s *Server) buildRunner(ws *workspace.Workspace, log *chatlog.ChatLog) transport.Runner {
	return func(ctx context.Context, userID string, sink streambus.Sink, userMessage, model string) error {
		plannerClient, err := s.buildClient(userID, config.RoleBrain, model)
		if err != nil {
			return fmt.Errorf("paperforge: planner client: %w", err)
		}
		codeClient, err := s.buildClient(userID, config.RoleCode, model)
		if err != nil {
			return fmt.Errorf("paperforge: code client: %w", err)
		}
		// A writing role is optional (spec §4.6): its absence omits
		// the WriterAgent tool entirely rather than failing the turn.
		writerClient, err := s.buildClient(userID, config.RoleWriting, model)
		if err != nil {
			writerClient = nil
		}

		sb := sandbox.New(ws, sandbox.Config{Timeout: s.cfg.Limits.SandboxTimeout})

		mainAgent, err := agent.New(agent.Config{
			PlannerClient: plannerClient,
			CodeClient:    codeClient,
			WriterClient:  writerClient,
			Workspace:     ws,
			Sandbox:       sb,
			ChatLog:       log,
			Limits:        s.cfg.Limits,
			OutputMode:    agent.OutputMarkdown,
		})
		if err != nil {
			return fmt.Errorf("paperforge: build main agent: %w", err)
		}

		return mainAgent.Run(ctx, sink, userMessage)
	}
}

func (s *Server) buildClient(userID string, role config.Role, modelOverride string) (*llm.Client, error) {
	roleCfg, err := s.cfg.RoleConfig(userID, role)
	if err != nil {
		return nil, err
	}
	model := roleCfg.ModelID
	if modelOverride != "" {
		model = modelOverride
	}
	return llm.FromProviderTag(roleCfg.Provider, model, roleCfg.APIKey, roleCfg.BaseURL)
}
