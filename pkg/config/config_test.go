package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestDefaultConfig_WindowSize verifies the working-memory window default
func TestDefaultConfig_WindowSize(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Memory.WindowSize != 10 {
		t.Errorf("WindowSize = %d, want 10", cfg.Memory.WindowSize)
	}
	if cfg.Memory.SummaryMessages != 3 {
		t.Errorf("SummaryMessages = %d, want 3", cfg.Memory.SummaryMessages)
	}
}

func TestDefaultConfig_WorkspacePath(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Workspace.Path == "" {
		t.Error("Workspace should not be empty")
	}
	if strings.HasPrefix(cfg.WorkspacePath(), "~") {
		t.Errorf("WorkspacePath should expand home, got %q", cfg.WorkspacePath())
	}
}

func TestDefaultConfig_Memory(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Memory.FuzzyThreshold != 0.85 {
		t.Errorf("FuzzyThreshold = %v, want 0.85", cfg.Memory.FuzzyThreshold)
	}
	if cfg.Memory.LongTermBackend != "sqlite" {
		t.Errorf("LongTermBackend = %q, want sqlite", cfg.Memory.LongTermBackend)
	}
	if !cfg.Memory.RecognizerEnabled {
		t.Error("recognizer should be enabled by default")
	}
	if cfg.Memory.AsyncQueueSize == 0 {
		t.Error("AsyncQueueSize should have default value")
	}
}

func TestDefaultConfig_Server(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "127.0.0.1" {
		t.Error("Server host should have default value")
	}
	if cfg.Server.Port == 0 {
		t.Error("Server port should have default value")
	}
	if got := cfg.ListenAddr(); got != "127.0.0.1:18791" {
		t.Errorf("ListenAddr = %q", got)
	}
}

func TestSaveConfig_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not enforced on Windows")
	}

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("config file has permission %04o, want 0600", perm)
	}
}

func TestLoadConfig_RoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.Memory.WindowSize = 4
	cfg.Memory.LongTermBackend = "chromem"
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Memory.WindowSize != 4 || loaded.Memory.LongTermBackend != "chromem" {
		t.Fatalf("unexpected memory config: %+v", loaded.Memory)
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("DOTRECALL_MEMORY_WINDOW_SIZE", "25")
	t.Setenv("DOTRECALL_LOG_LEVEL", "debug")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Memory.WindowSize; got != 25 {
		t.Fatalf("expected env override window size, got %d", got)
	}
	if got := cfg.Log.Level; got != "debug" {
		t.Fatalf("expected env override log level, got %q", got)
	}
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("DOTRECALL_MEMORY_LONG_TERM_BACKEND", "redis")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
