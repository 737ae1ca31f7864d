package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/HyphaGroup/portcullis/internal/agent"
	"github.com/HyphaGroup/portcullis/internal/agent/claude"
	"github.com/HyphaGroup/portcullis/internal/config"
	"github.com/HyphaGroup/portcullis/internal/history"
	"github.com/HyphaGroup/portcullis/internal/logger"
	"github.com/HyphaGroup/portcullis/internal/mcp"
	"github.com/HyphaGroup/portcullis/internal/schedule"
	"github.com/HyphaGroup/portcullis/internal/task"
	"github.com/HyphaGroup/portcullis/internal/tools"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	dirFlag := flag.String("dir", "", "Directory containing portcullis.jsonc (default: working directory)")
	addrFlag := flag.String("addr", "", "Listen address override")
	flag.Parse()

	if *showVersion {
		fmt.Printf("portcullis %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*dirFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	addr := cfg.Server.Address
	if *addrFlag != "" {
		addr = *addrFlag
	}

	if err := logger.Init(cfg.Server.LogDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	if err := logger.InitSlog(cfg.Server.LogDir, cfg.Server.LogJSON); err != nil {
		log.Fatalf("Failed to initialize structured logger: %v", err)
	}
	defer func() { _ = logger.CloseSlog() }()

	logger.Println("🏰 Portcullis - Async Agent Task Gateway")
	logger.Println("")

	// Agent runner: one live session at a time
	runner := claude.NewRunner(claude.Options{
		Command:                 cfg.Agent.Command,
		Model:                   cfg.Agent.Model,
		BaseDir:                 cfg.Agent.AttachmentDir,
		SkipPermissions:         cfg.Agent.SkipPermissions,
		AllowedTools:            cfg.Agent.AllowedTools,
		MaxAttachments:          cfg.Agent.MaxAttachments,
		MaxAttachmentBytes:      cfg.Agent.MaxAttachmentBytes,
		MaxTotalAttachmentBytes: cfg.Agent.MaxTotalAttachmentBytes,
	})
	defer runner.Close()

	events := agent.NewEventBuffer("agent", agent.DefaultEventBufferSize)

	registry := tools.NewRegistry()
	tools.RegisterAgentTools(registry, runner, events)
	logger.Printf("🔧 Registered %d tool(s)", len(registry.All()))

	serial := task.NewSerialExecutor(cfg.Queue.MaxQueued)
	serial.Start()

	queue := task.NewQueue(task.Config{
		MaxConcurrent:   cfg.Queue.MaxConcurrent,
		MaxQueued:       cfg.Queue.MaxQueued,
		DefaultTimeout:  cfg.DefaultTimeout(),
		LongOpThreshold: cfg.LongOpThreshold(),
		Retention:       cfg.Retention(),
		SweepInterval:   cfg.SweepInterval(),
	}, registry, serial)

	// Task history database (optional)
	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.NewStore(cfg.History.DataDir)
		if err != nil {
			logger.Fatalf("Failed to initialize task history: %v", err)
		}
		defer func() { _ = hist.Close() }()
		queue.SetArchiver(hist)
		logger.Printf("🗄️  Task history: %s", filepath.Join(cfg.History.DataDir, "history.db"))

		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		if purged, err := hist.Purge(retention); err != nil {
			logger.Printf("⚠️  History purge failed: %v", err)
		} else if purged > 0 {
			logger.Printf("🗑️  Purged %d expired history record(s)", purged)
		}
	}

	queue.Start()

	// Scheduled prompts feed the queue like any other caller
	var sched *schedule.Runner
	if len(cfg.Schedules) > 0 {
		sched, err = schedule.NewRunner(cfg.Schedules, func(entry *schedule.Entry) (string, error) {
			params, err := json.Marshal(map[string]string{"prompt": entry.Prompt})
			if err != nil {
				return "", err
			}
			timeout := time.Duration(entry.TimeoutMs) * time.Millisecond
			return queue.Submit("agent_prompt", params, timeout)
		})
		if err != nil {
			logger.Fatalf("Failed to initialize schedules: %v", err)
		}
		sched.Start()
		logger.Printf("📅 Loaded %d schedule(s)", len(cfg.Schedules))
	}

	server := mcp.NewServer(queue, registry, events, hist, mcp.ServerConfig{
		RequestsPerSecond: cfg.Rate.RequestsPerSecond,
		Burst:             cfg.Rate.Burst,
	})

	logger.Println("🚀 Starting Portcullis MCP server...")
	logger.Printf("📡 Server address: http://%s/mcp\n", addr)
	logger.Println("")

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(addr)
	}()

	select {
	case err := <-serverErr:
		logger.Fatalf("Server error: %v", err)
	case sig := <-shutdownChan:
		logger.Printf("⚠️  Received signal %v, initiating graceful shutdown...", sig)

		if sched != nil {
			logger.Println("   Stopping schedules...")
			sched.Stop()
		}

		logger.Println("   Cancelling live agent session...")
		runner.Close()

		logger.Println("   Draining task queue...")
		queue.Shutdown()
		serial.Stop()

		if hist != nil {
			logger.Println("   Closing history database...")
			_ = hist.Close()
		}

		logger.Println("✅ Shutdown complete")
		_ = logger.Close()
		_ = logger.CloseSlog()
		os.Exit(0) //nolint:gocritic // intentional exit after manual cleanup
	}
}
