// Copyright 2026 the Jarvis authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/broker"
	"github.com/ostepan8/jarvis-server/pkg/llm"
	"github.com/ostepan8/jarvis-server/pkg/llm/anthropic"
	"github.com/ostepan8/jarvis-server/pkg/memory"
	"github.com/ostepan8/jarvis-server/pkg/observability"
	"github.com/ostepan8/jarvis-server/pkg/orchestrator"
	"github.com/ostepan8/jarvis-server/pkg/protocol"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Jarvis server",
	Long: `Start the Jarvis server.

The server will:
- Start the priority message broker and correlation GC
- Open the protocol store and load the protocol directory (if configured)
- Wire the request orchestrator with the configured LLM provider
- Install the night-mode schedule (if configured)
- Read utterances line by line from stdin and print replies to stdout

Press Ctrl+C to gracefully shutdown.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func buildLogger(level, format string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if format == "text" {
		zapConfig.Encoding = "console"
	}
	logLevel := zap.InfoLevel
	if level != "" {
		if err := logLevel.UnmarshalText([]byte(level)); err != nil {
			log.Printf("Invalid log level %q, using INFO: %v", level, err)
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(logLevel)
	return zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
}

func runServe(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger, err := buildLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Jarvis Server", zap.String("version", rootCmd.Version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer := observability.NewNoopTracer()

	usagePath := cfg.Database.UsagePath
	if usagePath == "" {
		usagePath = cfg.Database.ProtocolPath
	}
	activity, err := observability.NewSQLiteActivityLog(usagePath, logger)
	if err != nil {
		logger.Fatal("Failed to open activity log", zap.Error(err))
	}
	defer activity.Close()

	store, err := protocol.NewSQLiteStore(cfg.Database.ProtocolPath, logger)
	if err != nil {
		logger.Fatal("Failed to open protocol store", zap.Error(err))
	}
	defer store.Close()

	registry, err := protocol.NewRegistry(ctx, store, logger)
	if err != nil {
		logger.Fatal("Failed to load protocol registry", zap.Error(err))
	}

	brk := broker.NewMessageBroker(broker.Config{
		QueueCapacity:               cfg.Broker.QueueCapacity,
		Workers:                     cfg.Broker.Workers,
		RequestTTL:                  cfg.Broker.RequestTTL(),
		CleanupInterval:             cfg.Broker.CleanupInterval(),
		DeliverResponsesToRecipient: cfg.Broker.DeliverResponsesToRecipient,
	}, tracer, logger)
	if err := brk.Start(ctx); err != nil {
		logger.Fatal("Failed to start message broker", zap.Error(err))
	}
	defer brk.Close()

	var chat llm.ChatProvider
	if cfg.LLM.APIKey != "" {
		chat = anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Endpoint:    cfg.LLM.Endpoint,
			Timeout:     cfg.LLM.Timeout(),
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		}, logger)
	} else {
		logger.Warn("No LLM API key configured, ai-mode responses fall back to their prompt text")
	}

	runtime := protocol.NewRuntime(registry, brk, chat, activity, tracer, logger)
	brk.SetRecorder(runtime.Recorder)

	if cfg.Protocols.Dir != "" {
		count, err := protocol.LoadDirectory(ctx, cfg.Protocols.Dir, registry, cfg.Protocols.ReplaceDuplicates, logger)
		if err != nil {
			logger.Fatal("Failed to load protocol directory", zap.Error(err))
		}
		logger.Info("Protocols loaded", zap.String("dir", cfg.Protocols.Dir), zap.Int("count", count))
	}

	night := orchestrator.NewNightMode(brk, cfg.NightMode.Agents, logger)
	if cfg.NightMode.Enabled {
		if err := night.Schedule(cfg.NightMode.EnterCron, cfg.NightMode.ExitCron); err != nil {
			logger.Fatal("Failed to install night-mode schedule", zap.Error(err))
		}
		defer night.StopSchedule()
	}

	var facts memory.FactMemoryService
	if cfg.Redis.Enabled {
		facts, err = memory.NewRedisFactStore(ctx, memory.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to redis fact store", zap.Error(err))
		}
	} else {
		facts = memory.NewMemoryFactStore()
	}
	defer facts.Close()

	orch := orchestrator.New(orchestrator.Config{
		DefaultUserID:  cfg.Orchestrator.DefaultUserID,
		RequestTimeout: cfg.Orchestrator.RequestTimeout(),
		MaxHistory:     cfg.Orchestrator.MaxHistory,
	}, brk, runtime, chat, night, activity, tracer, logger)
	orch.AttachFactMemory(facts)

	logger.Info("Jarvis is online",
		zap.Int("protocols", len(registry.ListIDs())),
		zap.Bool("night_mode_scheduled", cfg.NightMode.Enabled))

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			utterance := scanner.Text()
			if utterance == "" {
				continue
			}
			result := orch.HandleRequest(ctx, orchestrator.Request{Utterance: utterance})
			fmt.Println(result.Response)
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigch:
		logger.Info("Shutting down gracefully... (press Ctrl+C again to force)")
		go func() {
			<-sigch
			logger.Warn("Force shutdown requested")
			os.Exit(1)
		}()
	case <-done:
		logger.Info("Input closed, shutting down")
	}
	cancel()
	logger.Info("Jarvis stopped")
}
