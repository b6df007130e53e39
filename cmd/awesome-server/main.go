// awesome-server — dynamic LLM-driven workflow orchestrator over MCP
// services. Provides the HTTP API and manages per-user MCP connections.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/STPDevteam/awesome-server/pkg/api"
	"github.com/STPDevteam/awesome-server/pkg/auth"
	"github.com/STPDevteam/awesome-server/pkg/complexity"
	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/database"
	"github.com/STPDevteam/awesome-server/pkg/engine"
	"github.com/STPDevteam/awesome-server/pkg/llm"
	"github.com/STPDevteam/awesome-server/pkg/mcp"
	"github.com/STPDevteam/awesome-server/pkg/observer"
	"github.com/STPDevteam/awesome-server/pkg/planner"
	"github.com/STPDevteam/awesome-server/pkg/resolver"
	"github.com/STPDevteam/awesome-server/pkg/services"
	"github.com/STPDevteam/awesome-server/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting awesome-server",
		"version", version.GitCommit,
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded", "services", cfg.Stats().Services)

	// 2. Initialize database (runs embedded migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Stores and credential injection
	taskStore := services.NewTaskStore(dbClient.DB())
	credStore := auth.NewStore(dbClient.DB())
	injector := auth.NewInjector(credStore)

	// 4. MCP connection manager
	manager := mcp.NewManager(
		mcp.WithCallTimeout(cfg.Defaults.ToolCallTimeout),
		mcp.WithMaxPerUser(cfg.Defaults.MaxConnectionsPerUser),
	)
	defer manager.DisconnectAll()

	// 5. LLM client and reasoning roles
	llmClient, err := llm.NewOpenAIClient(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "model", cfg.LLM.Model)

	eng := engine.New(engine.Services{
		Manager:   manager,
		Injector:  injector,
		Registry:  cfg.ServiceRegistry,
		Resolver:  resolver.New(llmClient),
		Planner:   planner.New(llmClient),
		Observer:  observer.New(llmClient),
		Analyzer:  complexity.New(llmClient),
		Formatter: engine.NewFormatter(llmClient),
		LLM:       llmClient,
		Sink:      taskStore,
	}, *cfg.Defaults)

	// 6. HTTP server
	apiServer := api.NewServer(api.Deps{
		DB:       dbClient,
		Tasks:    taskStore,
		Creds:    credStore,
		Injector: injector,
		Registry: cfg.ServiceRegistry,
		Manager:  manager,
		Executor: eng,
	})
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("awesome-server started successfully")

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop accepting requests, then tear down MCP
	// subprocesses (the deferred DisconnectAll) and the database pool.
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
