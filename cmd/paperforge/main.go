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

// Command paperforge starts the per-work orchestration server (spec
// §4.12's Transport Adapter, serving over WebSocket).
//
// Usage:
//
//	paperforge --config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/songhahaha66/PaperAgent-sub000/internal/config"
	"github.com/songhahaha66/PaperAgent-sub000/internal/logging"
)

func main() {
	configPath := flag.String("config", "paperforge.yaml", "path to YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional .env file loaded before the config file")
	addr := flag.String("addr", "", "HTTP listen address, overriding the config file's listen_addr")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "paperforge: load %s: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "paperforge: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Init(level, os.Stderr)

	srv := newServer(cfg)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", srv.handleWebSocket)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Get().Info("paperforge: listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Get().Error("paperforge: serve", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Get().Error("paperforge: shutdown", "error", err)
	}
}
