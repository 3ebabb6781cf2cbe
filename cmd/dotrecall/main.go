package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/config"
	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/dotsetgreg/dotrecall/pkg/memory"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "dotrecall"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	err := executeCLI()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dotrecall", "config.json")
}

// loadRuntimeConfig reads the config file and applies log settings. The
// debug flag wins over the configured level.
func loadRuntimeConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := logger.ParseLevel(cfg.Log.Level)
	if opts.debug {
		level = logger.DEBUG
	}
	logger.Configure(cfg.Log.Format, level)
	return cfg, nil
}

func memoryConfig(cfg *config.Config, reg prometheus.Registerer) memory.Config {
	m := cfg.Memory
	return memory.Config{
		Workspace:          cfg.WorkspacePath(),
		UserID:             cfg.Workspace.UserID,
		WindowSize:         m.WindowSize,
		SummaryMessages:    m.SummaryMessages,
		RehydrateMessages:  m.RehydrateMessages,
		RecognizerEnabled:  m.RecognizerEnabled,
		FuzzyMatch:         m.FuzzyMatch,
		FuzzyThreshold:     m.FuzzyThreshold,
		LaterDelay:         time.Duration(m.LaterDelayMinutes) * time.Minute,
		Backend:            m.LongTermBackend,
		AsyncQueueSize:     m.AsyncQueueSize,
		BreakerMaxFailures: uint32(max(m.BreakerMaxFailures, 0)),
		BreakerTimeout:     time.Duration(m.BreakerTimeoutSecs) * time.Second,
		EmbeddingModel:     m.EmbeddingModel,
		Registerer:         reg,
	}
}

func openService(ctx context.Context, opts *rootOptions, reg prometheus.Registerer) (*memory.Service, *config.Config, error) {
	cfg, err := loadRuntimeConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	svc, err := memory.NewService(ctx, memoryConfig(cfg, reg))
	if err != nil {
		return nil, nil, fmt.Errorf("initialize memory: %w", err)
	}
	return svc, cfg, nil
}
