// Package config loads runtime configuration for the analysis and
// clustering core from environment variables (with a local .env for
// development), following the same viper/godotenv pattern the rest of
// this codebase's ancestry uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the core needs to start its worker pools and
// reach the relational store, vector store and LLM backends.
type Config struct {
	Database Database `mapstructure:"database"`
	Vector   Vector   `mapstructure:"vector"`
	Decision []WorkerEndpoint `mapstructure:"-"`
	Analysis []WorkerEndpoint `mapstructure:"-"`
	OpenAI   OpenAI   `mapstructure:"openai"`
	Entity   Entity   `mapstructure:"entity"`
	Timeouts Timeouts `mapstructure:"-"`
}

// Timeouts holds the per-call deadlines every suspension point in the
// orchestrator honours (spec §5 "Cancellation and timeouts").
type Timeouts struct {
	Request  time.Duration
	Embedder time.Duration
}

const (
	defaultRequestTimeout  = 60 * time.Second
	defaultEmbedderTimeout = 120 * time.Second
)

// Database holds relational-store configuration.
type Database struct {
	Path string `mapstructure:"path"`
}

// Vector holds vector-store configuration.
type Vector struct {
	URL string `mapstructure:"url"`
}

// OpenAI holds OpenAI-style backend configuration.
type OpenAI struct {
	APIKey string `mapstructure:"api_key"`
}

// Entity holds entity-extraction overrides (spec §6).
type Entity struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	LLMType     string  `mapstructure:"llm_type"`
}

// WorkerEndpoint is one parsed `host|port|model` segment, with an optional
// fallback used when the primary backend times out or errors (spec §4.1).
type WorkerEndpoint struct {
	Host     string
	Port     string
	Model    string
	Fallback *WorkerEndpoint
}

// BaseURL returns the plain-http base URL for this endpoint.
func (w WorkerEndpoint) BaseURL() string {
	return fmt.Sprintf("http://%s:%s", w.Host, w.Port)
}

var globalConfig *Config

// Load reads configuration from the environment (and a local .env file, if
// present), applying defaults and parsing the decision/analysis worker
// config strings. It is idempotent; the first successful call wins.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("warning: error loading .env file: %v\n", err)
		}
	}

	viper.SetDefault("database.path", "argus.db")
	viper.SetDefault("entity.temperature", 0.2)
	viper.SetDefault("entity.llm_type", "ollama")

	envBindings := map[string]string{
		"database.path":             "DATABASE_PATH",
		"vector.url":                "QDRANT_URL",
		"openai.api_key":            "OPENAI_API_KEY",
		"entity.model":              "ENTITY_MODEL",
		"entity.temperature":        "ENTITY_TEMPERATURE",
		"entity.llm_type":           "ENTITY_LLM_TYPE",
		"decision.raw":              "DECISION_OLLAMA_CONFIGS",
		"analysis.raw":              "ANALYSIS_OLLAMA_CONFIGS",
		"timeouts.request_seconds":  "LLM_REQUEST_TIMEOUT_SECONDS",
		"timeouts.embedder_seconds": "EMBEDDER_TIMEOUT_SECONDS",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Decision = ParseDecisionConfigs(viper.GetString("decision.raw"))
	cfg.Analysis = ParseAnalysisConfigs(viper.GetString("analysis.raw"))
	cfg.Timeouts = Timeouts{
		Request:  parseDurationSecondsDefault(viper.GetString("timeouts.request_seconds"), defaultRequestTimeout),
		Embedder: parseDurationSecondsDefault(viper.GetString("timeouts.embedder_seconds"), defaultEmbedderTimeout),
	}

	if cfg.Vector.URL == "" {
		return nil, fmt.Errorf("QDRANT_URL is required")
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration, loading it if necessary. It panics
// on load failure, matching the teacher's "configuration is foundational"
// convention for a process that cannot run without it.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

// Reset clears the global configuration. Useful for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// ParseDecisionConfigs parses the `host|port|model;host|port|model;...`
// form used by DECISION_OLLAMA_CONFIGS. Malformed segments are dropped,
// never fatal; empty segments are ignored.
func ParseDecisionConfigs(raw string) []WorkerEndpoint {
	var out []WorkerEndpoint
	for _, seg := range splitNonEmpty(raw, ";") {
		ep, ok := parseEndpoint(seg)
		if !ok {
			fmt.Printf("warning: dropping malformed decision worker config %q\n", seg)
			continue
		}
		out = append(out, ep)
	}
	return out
}

// ParseAnalysisConfigs parses the `host|port|model[||fallback_host|fallback_port|fallback_model];...`
// form used by ANALYSIS_OLLAMA_CONFIGS.
func ParseAnalysisConfigs(raw string) []WorkerEndpoint {
	var out []WorkerEndpoint
	for _, seg := range splitNonEmpty(raw, ";") {
		parts := strings.SplitN(seg, "||", 2)
		primary, ok := parseEndpoint(parts[0])
		if !ok {
			fmt.Printf("warning: dropping malformed analysis worker config %q\n", seg)
			continue
		}
		if len(parts) == 2 {
			if fallback, ok := parseEndpoint(parts[1]); ok {
				primary.Fallback = &fallback
			} else {
				fmt.Printf("warning: dropping malformed fallback in analysis worker config %q\n", seg)
			}
		}
		out = append(out, primary)
	}
	return out
}

func parseEndpoint(s string) (WorkerEndpoint, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return WorkerEndpoint{}, false
	}
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return WorkerEndpoint{}, false
	}
	host, port, model := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])
	if host == "" || port == "" || model == "" {
		return WorkerEndpoint{}, false
	}
	return WorkerEndpoint{Host: host, Port: port, Model: model}, true
}

func splitNonEmpty(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDurationSecondsDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	seconds, err := strconv.Atoi(s)
	if err != nil || seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}
