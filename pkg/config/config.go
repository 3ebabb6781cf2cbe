package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Workspace WorkspaceConfig `json:"workspace"`
	Memory    MemoryConfig    `json:"memory"`
	Server    ServerConfig    `json:"server"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

type WorkspaceConfig struct {
	Path   string `json:"path" env:"DOTRECALL_WORKSPACE_PATH"`
	UserID string `json:"user_id" env:"DOTRECALL_WORKSPACE_USER_ID"`
}

type MemoryConfig struct {
	WindowSize         int     `json:"window_size" env:"DOTRECALL_MEMORY_WINDOW_SIZE"`
	SummaryMessages    int     `json:"summary_messages" env:"DOTRECALL_MEMORY_SUMMARY_MESSAGES"`
	RehydrateMessages  int     `json:"rehydrate_messages" env:"DOTRECALL_MEMORY_REHYDRATE_MESSAGES"`
	RecognizerEnabled  bool    `json:"recognizer_enabled" env:"DOTRECALL_MEMORY_RECOGNIZER_ENABLED"`
	FuzzyMatch         bool    `json:"fuzzy_match" env:"DOTRECALL_MEMORY_FUZZY_MATCH"`
	FuzzyThreshold     float64 `json:"fuzzy_threshold" env:"DOTRECALL_MEMORY_FUZZY_THRESHOLD"`
	LaterDelayMinutes  int     `json:"later_delay_minutes" env:"DOTRECALL_MEMORY_LATER_DELAY_MINUTES"`
	LongTermBackend    string  `json:"long_term_backend" env:"DOTRECALL_MEMORY_LONG_TERM_BACKEND"`
	AsyncQueueSize     int     `json:"async_queue_size" env:"DOTRECALL_MEMORY_ASYNC_QUEUE_SIZE"`
	BreakerMaxFailures int     `json:"breaker_max_failures" env:"DOTRECALL_MEMORY_BREAKER_MAX_FAILURES"`
	BreakerTimeoutSecs int     `json:"breaker_timeout_seconds" env:"DOTRECALL_MEMORY_BREAKER_TIMEOUT_SECONDS"`
	EmbeddingModel     string  `json:"embedding_model" env:"DOTRECALL_MEMORY_EMBEDDING_MODEL"`
}

type ServerConfig struct {
	Host string `json:"host" env:"DOTRECALL_SERVER_HOST"`
	Port int    `json:"port" env:"DOTRECALL_SERVER_PORT"`
}

type LogConfig struct {
	Level  string `json:"level" env:"DOTRECALL_LOG_LEVEL"`
	Format string `json:"format" env:"DOTRECALL_LOG_FORMAT"`
}

func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Path:   "~/.dotrecall/workspace",
			UserID: "local",
		},
		Memory: MemoryConfig{
			WindowSize:         10,
			SummaryMessages:    3,
			RehydrateMessages:  10,
			RecognizerEnabled:  true,
			FuzzyMatch:         true,
			FuzzyThreshold:     0.85,
			LaterDelayMinutes:  120,
			LongTermBackend:    "sqlite",
			AsyncQueueSize:     256,
			BreakerMaxFailures: 5,
			BreakerTimeoutSecs: 30,
			EmbeddingModel:     "dotrecall-chargram-384-v1",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 18791,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate rejects values the memory engine cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch strings.ToLower(c.Memory.LongTermBackend) {
	case "sqlite", "chromem", "none", "":
	default:
		return fmt.Errorf("unknown memory.long_term_backend %q (want sqlite, chromem or none)", c.Memory.LongTermBackend)
	}
	if c.Memory.FuzzyThreshold < 0 || c.Memory.FuzzyThreshold > 1 {
		return fmt.Errorf("memory.fuzzy_threshold must be within [0,1], got %v", c.Memory.FuzzyThreshold)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Workspace.Path)
}

func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
