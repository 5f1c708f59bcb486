// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// chorusd runs the multi-voice conversation orchestrator as an interactive
// session on stdin/stdout. `chorusd validate` checks a registry file and
// exits.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mindsoc/chorus/pkg/config"
	"github.com/mindsoc/chorus/pkg/core"
	"github.com/mindsoc/chorus/pkg/council"
	"github.com/mindsoc/chorus/pkg/critic"
	"github.com/mindsoc/chorus/pkg/drafter"
	"github.com/mindsoc/chorus/pkg/llm"
	"github.com/mindsoc/chorus/pkg/memory"
	"github.com/mindsoc/chorus/pkg/memory/ollama"
	"github.com/mindsoc/chorus/pkg/memory/qdrant"
	"github.com/mindsoc/chorus/pkg/registry"
	"github.com/mindsoc/chorus/pkg/sensors"
	"github.com/mindsoc/chorus/pkg/stance"
	"github.com/mindsoc/chorus/pkg/telemetry"
	"github.com/mindsoc/chorus/pkg/turn"
	"github.com/mindsoc/chorus/pkg/workspace"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "", "path to a chorus config file (YAML)")
	registryPath := flag.String("registry", "", "override registry path from config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("chorusd", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *registryPath != "" {
		cfg.Registry.Path = *registryPath
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if flag.Arg(0) == "validate" {
		runValidate(cfg.Registry.Path)
		return
	}

	shutdown, err := telemetry.InitWithConfig("chorusd", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	controller, session, cleanup, err := wire(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	logger.Info("chorusd ready", "session_id", session.ID, "model", cfg.LLM.Model)
	repl(ctx, controller, session)
}

func runValidate(path string) {
	reg, err := registry.Load(path)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("registry ok: %d agents, %d sensors, %d critics, %d relations\n",
		len(reg.Agents), len(reg.Sensors), len(reg.Critics), len(reg.Edges))
}

func wire(ctx context.Context, cfg *config.Config) (*turn.Controller, *turn.Session, func(), error) {
	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "mock":
		provider = &llm.MockProvider{}
	default:
		provider = llm.NewOllama(cfg.LLM.BaseURL)
	}

	metrics, err := telemetry.NewTurnMetrics(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	callTimeout := cfg.Orchestrator.CallTimeout()
	model := cfg.LLM.Model

	pool := sensors.NewPool(provider, model, callTimeout, reg.Sensors, metrics)
	pool.AddHeuristic(sensors.NewInjectionHeuristic())

	invoker := council.NewInvoker(provider, model, callTimeout, metrics)
	aggregator := council.NewAggregator(invoker, reg,
		cfg.Orchestrator.Gamma, cfg.Orchestrator.Quorum, cfg.Orchestrator.MaxConcurrent)
	selector := workspace.NewSelector(cfg.Thresholds, reg)
	gate := critic.NewGate(provider, model, callTimeout, reg.Critics,
		cfg.Orchestrator.RevisionCap, cfg.Orchestrator.TopKFailures,
		cfg.Orchestrator.MaxConcurrent, metrics)

	cleanup := func() {}
	var store memory.Store
	var indexer *memory.Indexer
	if cfg.Memory.Enabled {
		switch cfg.Memory.Provider {
		case "sqlite":
			sqliteStore, err := memory.OpenSQLite(cfg.Memory.SQLitePath)
			if err != nil {
				return nil, nil, nil, err
			}
			store = sqliteStore
			cleanup = func() { sqliteStore.Close() }
		default:
			store = memory.NewInMemoryStore()
		}

		if cfg.Memory.VectorEnabled {
			vs, err := qdrant.New(cfg.Memory.QdrantAddr)
			if err != nil {
				return nil, nil, nil, err
			}
			embedder := ollama.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
			indexer = memory.NewIndexer(vs, embedder, cfg.Memory.Collection)
			if err := indexer.EnsureCollection(ctx); err != nil {
				// The collection may already exist; index calls will
				// surface a real outage.
				slog.Warn("vector collection setup", "err", err)
			}
		}
	}

	controller := turn.NewController(turn.Dependencies{
		Sensors:  pool,
		Council:  aggregator,
		Selector: selector,
		Drafter:  drafter.New(provider, model, callTimeout).WithMaxTokens(cfg.Orchestrator.DraftMaxTokens),
		Gate:     gate,
		Store:    store,
		Indexer:  indexer,
		History:  memory.NewHistory(20),
		Events:   logEmitter{},
		Metrics:  metrics,
	}, turn.Options{
		TurnBudget:         cfg.Orchestrator.TurnBudget(),
		InjectionThreshold: cfg.Thresholds.PromptInjection,
	})

	session := controller.NewSession(stanceConfig(cfg.Stance))
	return controller, session, cleanup, nil
}

func stanceConfig(sc config.StanceConfig) stance.Config {
	out := stance.DefaultConfig()
	if sc.DefaultDecay > 0 {
		out.DefaultDecay = sc.DefaultDecay
	}
	for dim, decay := range sc.Decay {
		out.Decay[dim] = decay
	}
	return out
}

func repl(ctx context.Context, controller *turn.Controller, session *turn.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("chorusd: type a message, or /quit to exit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return
		case line == "/stance":
			fmt.Printf("%v\n", session.Stance())
			continue
		}

		out, err := controller.Turn(ctx, session, line)
		if err != nil {
			slog.Error("turn failed", "err", err)
		}
		if out.Text != "" {
			fmt.Println(out.Text)
		}
		fmt.Printf("  [goal=%s degraded=%t fallback=%t]\n", out.Goal, out.Degraded, out.Fallback)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// logEmitter forwards turn events to structured logs.
type logEmitter struct{}

func (logEmitter) Emit(ctx context.Context, e core.Event) {
	slog.DebugContext(ctx, "turn event",
		"type", string(e.Type), "session_id", e.SessionID, "turn_id", e.TurnID)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "chorusd:", err)
	os.Exit(1)
}
