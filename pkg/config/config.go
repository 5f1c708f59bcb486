// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads orchestrator configuration with koanf, layering
// defaults, an optional YAML file, and CHORUS_-prefixed environment
// variables. Thresholds, decay rates, quorum, and the dampening factor are
// configuration, not code: the property tests pin their behavior, not their
// exact values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log          LogConfig          `koanf:"log"`
	LLM          LLMConfig          `koanf:"llm"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Registry     RegistryConfig     `koanf:"registry"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Thresholds   ThresholdsConfig   `koanf:"thresholds"`
	Stance       StanceConfig       `koanf:"stance"`
	Memory       MemoryConfig       `koanf:"memory"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type RegistryConfig struct {
	Path string `koanf:"path"`
}

// OrchestratorConfig holds the per-turn scheduling and merge knobs.
type OrchestratorConfig struct {
	// Gamma dampens the summed per-turn stance delta so a single turn
	// cannot saturate the stance vector.
	Gamma float64 `koanf:"gamma"`

	// Quorum is the minimum fraction of agents that must respond within
	// budget for the turn to count as non-degraded.
	Quorum float64 `koanf:"quorum"`

	// MaxConcurrent bounds in-flight inference calls per fan-out stage.
	MaxConcurrent int `koanf:"max_concurrent"`

	// CallTimeoutMS is the budget for one agent/sensor/critic call.
	CallTimeoutMS int `koanf:"call_timeout_ms"`

	// TurnBudgetMS is the overall budget for one turn.
	TurnBudgetMS int `koanf:"turn_budget_ms"`

	// RevisionCap bounds the critic revision loop.
	RevisionCap int `koanf:"revision_cap"`

	// TopKFailures is how many failing verdicts a revision request carries.
	TopKFailures int `koanf:"top_k_failures"`

	// DraftMaxTokens caps drafter completions, 0 for provider default.
	DraftMaxTokens int `koanf:"draft_max_tokens"`
}

// CallTimeout returns the per-call budget as a duration.
func (o OrchestratorConfig) CallTimeout() time.Duration {
	return time.Duration(o.CallTimeoutMS) * time.Millisecond
}

// TurnBudget returns the per-turn budget as a duration.
func (o OrchestratorConfig) TurnBudget() time.Duration {
	return time.Duration(o.TurnBudgetMS) * time.Millisecond
}

// ThresholdsConfig holds the sensor gate levels consumed by the goal
// selector cascade. Thresholds live here, not in sensor logic.
type ThresholdsConfig struct {
	SafetyRisk      float64 `koanf:"safety_risk"`
	Rupture         float64 `koanf:"rupture"`
	Ambiguity       float64 `koanf:"ambiguity"`
	Vulnerability   float64 `koanf:"vulnerability"`
	AdviceRequested float64 `koanf:"advice_requested"`
	PromptInjection float64 `koanf:"prompt_injection"`
}

type StanceConfig struct {
	DefaultDecay float64            `koanf:"default_decay"`
	Decay        map[string]float64 `koanf:"decay"`
}

type MemoryConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Provider   string `koanf:"provider"` // sqlite, inmemory
	SQLitePath string `koanf:"sqlite_path"`

	// Vector indexing of accepted candidates; optional.
	VectorEnabled   bool   `koanf:"vector_enabled"`
	QdrantAddr      string `koanf:"qdrant_addr"`
	Collection      string `koanf:"collection"`
	EmbedderBaseURL string `koanf:"embedder_base_url"`
	EmbedderModel   string `koanf:"embedder_model"`
}

// Load reads configuration from defaults, then the optional file at path,
// then CHORUS_ environment variables (CHORUS_ORCHESTRATOR_GAMMA ->
// orchestrator.gamma).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5:7b-instruct")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("telemetry.exporter", "stdout")

	k.Set("registry.path", "registry.yaml")

	k.Set("orchestrator.gamma", 0.3)
	k.Set("orchestrator.quorum", 0.5)
	k.Set("orchestrator.max_concurrent", 30)
	k.Set("orchestrator.call_timeout_ms", 12000)
	k.Set("orchestrator.turn_budget_ms", 45000)
	k.Set("orchestrator.revision_cap", 2)
	k.Set("orchestrator.top_k_failures", 2)

	k.Set("thresholds.safety_risk", 0.35)
	k.Set("thresholds.rupture", 0.5)
	k.Set("thresholds.ambiguity", 0.6)
	k.Set("thresholds.vulnerability", 0.4)
	k.Set("thresholds.advice_requested", 0.5)
	k.Set("thresholds.prompt_injection", 0.4)

	k.Set("stance.default_decay", 0.9)

	k.Set("memory.enabled", false)
	k.Set("memory.provider", "sqlite")
	k.Set("memory.sqlite_path", "chorus.db")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "chorus_memory")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (CHORUS_LLM_PROVIDER -> llm.provider)
	if err := k.Load(env.Provider("CHORUS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CHORUS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Orchestrator.Gamma <= 0 || c.Orchestrator.Gamma > 1 {
		return fmt.Errorf("orchestrator.gamma must be in (0, 1], got %v", c.Orchestrator.Gamma)
	}
	if c.Orchestrator.Quorum < 0 || c.Orchestrator.Quorum > 1 {
		return fmt.Errorf("orchestrator.quorum must be in [0, 1], got %v", c.Orchestrator.Quorum)
	}
	if c.Orchestrator.MaxConcurrent < 1 {
		return fmt.Errorf("orchestrator.max_concurrent must be >= 1, got %d", c.Orchestrator.MaxConcurrent)
	}
	if c.Orchestrator.RevisionCap < 0 {
		return fmt.Errorf("orchestrator.revision_cap must be >= 0, got %d", c.Orchestrator.RevisionCap)
	}
	if c.Stance.DefaultDecay <= 0 || c.Stance.DefaultDecay > 1 {
		return fmt.Errorf("stance.default_decay must be in (0, 1], got %v", c.Stance.DefaultDecay)
	}
	for dim, d := range c.Stance.Decay {
		if d <= 0 || d > 1 {
			return fmt.Errorf("stance.decay.%s must be in (0, 1], got %v", dim, d)
		}
	}
	return nil
}
