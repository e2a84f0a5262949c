package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/aj47/acp-remote/internal/acp"
	"github.com/aj47/acp-remote/internal/config"
	"github.com/aj47/acp-remote/internal/contextpack"
	"github.com/aj47/acp-remote/internal/conversation"
	"github.com/aj47/acp-remote/internal/history"
	"github.com/aj47/acp-remote/internal/httpapi"
	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/memory"
	"github.com/aj47/acp-remote/internal/orchestrator"
	"github.com/aj47/acp-remote/internal/progress"
	"github.com/aj47/acp-remote/internal/session"
	"github.com/aj47/acp-remote/internal/skills"
	"github.com/aj47/acp-remote/internal/toolcall"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "acp-remoted",
		Short:         "Agent session orchestration daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newVersionCommand())
	root.AddCommand(newSessionsCommand(&configPath))
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// newSessionsCommand inspects the persisted conversation-to-session map.
func newSessionsCommand(configPath *string) *cobra.Command {
	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted agent-session bindings",
	}

	sessions.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop all persisted bindings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			store := session.NewStore(cfg.SessionFilePath(), logging.Nop())
			store.ClearAll(true)
			fmt.Fprintln(cmd.OutOrStdout(), "cleared", cfg.SessionFilePath())
			return nil
		},
	})
	return sessions
}

func newServeCommand(configPath *string) *cobra.Command {
	var addr string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return serve
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewComponentLogger("Main")
	logger.Info("starting acp-remoted %s", version)

	if err := os.MkdirAll(cfg.DataRoot, 0755); err != nil {
		return fmt.Errorf("create data root %s: %w", cfg.DataRoot, err)
	}

	defaultCwd, err := os.Getwd()
	if err != nil {
		defaultCwd = cfg.DataRoot
	}

	sessions := session.NewStore(cfg.SessionFilePath(), logging.NewComponentLogger("SessionStore"))
	conversations := conversation.NewStore(cfg.ConversationsDir(), logging.NewComponentLogger("ConversationStore"))
	memories := memory.NewFileStore(cfg.MemoryFilePath())
	tracker := toolcall.NewTracker(logging.NewComponentLogger("ToolCallTracker"))
	hub := progress.NewHub(logging.NewComponentLogger("ProgressHub"))

	library, err := skills.Load(cfg.SkillsDir)
	if err != nil {
		logger.Warn("skills library unavailable: %v", err)
	}

	injector := contextpack.NewInjector(contextpack.Params{
		Memories:         memories,
		Library:          library,
		InjectMemories:   cfg.InjectMemories,
		GlobalGuidelines: cfg.GlobalGuidelines,
		Logger:           logging.NewComponentLogger("ContextInjector"),
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// The ACP wire transport lives in the embedding application; standalone
	// the daemon serves history and progress and rejects prompt driving.
	var client acp.SessionClient = acp.NoTransportClient{}
	logger.Warn("no agent transport configured: prompt endpoints will fail until one is embedded")

	orch := orchestrator.New(orchestrator.Params{
		Client:        client,
		Sessions:      sessions,
		Conversations: conversations,
		Injector:      injector,
		Tracker:       tracker,
		Hub:           hub,
		Config:        cfg,
		DefaultCwd:    defaultCwd,
		Metrics:       orchestrator.MustNewMetrics(registry),
		Logger:        logging.NewComponentLogger("Orchestrator"),
	})

	aggregator := history.NewAggregator(buildProviders(cfg, orch), conversations, logging.NewComponentLogger("HistoryAggregator"))

	server := httpapi.NewServer(httpapi.Params{
		Addr:          cfg.HTTPAddr,
		Runner:        orch,
		Aggregator:    aggregator,
		Conversations: conversations,
		Hub:           hub,
		Registry:      registry,
		Logger:        logging.NewComponentLogger("HTTPAPI"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case sig := <-quit:
		logger.Info("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown: %v", err)
		return err
	}
	logger.Info("stopped")
	return nil
}

// buildProviders wires one history provider per configured root. Unknown
// source names are rejected loudly rather than silently ignored.
func buildProviders(cfg *config.Config, orch *orchestrator.Orchestrator) []history.Provider {
	logger := logging.NewComponentLogger("History")
	var providers []history.Provider
	for source, root := range cfg.ProviderRoots {
		switch source {
		case history.SourceAugment:
			providers = append(providers, history.NewAugmentProvider(history.AugmentParams{
				Root:      root,
				AgentName: agentNameFor(cfg, source),
				Adopter:   orch,
				Logger:    logging.NewComponentLogger("AugmentHistory"),
			}))
		case history.SourceClaude:
			providers = append(providers, history.NewClaudeProvider(history.ClaudeParams{
				Root:          root,
				ResumeCommand: resumeCommandFor(cfg, source),
				Logger:        logging.NewComponentLogger("ClaudeHistory"),
			}))
		default:
			logger.Warn("unknown history source %q in provider_roots, skipping", source)
		}
	}
	return providers
}

// agentNameFor maps a history source onto the configured agent profile that
// can resume its sessions, falling back to the default agent.
func agentNameFor(cfg *config.Config, source string) string {
	if _, ok := cfg.AgentByName(source); ok {
		return source
	}
	return cfg.DefaultAgent
}

func resumeCommandFor(cfg *config.Config, source string) []string {
	if profile, ok := cfg.AgentByName(source); ok && profile.ResumeCommand != "" {
		return strings.Fields(profile.ResumeCommand)
	}
	return nil
}
