// Entry point for the discovery service: chi HTTP API plus an optional MCP
// stdio transport for agent integration.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gemscout/cache"
	"gemscout/config"
	"gemscout/engine"
	"gemscout/server"
	"gemscout/store"
	"gemscout/vault"
)

func main() {
	var (
		configPath = flag.String("config", "gemscout.yaml", "configuration file")
		mcpMode    = flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	)
	flag.Parse()

	// In MCP mode stdout belongs to the JSON-RPC stream; logs go to stderr.
	logOut := os.Stdout
	if *mcpMode {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		logger.Error("store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	eng := engine.New(cfg, st,
		cache.New(cfg.CacheDir(), cfg.CacheTTL(), logger),
		vault.New(cfg.VaultDir()), logger)

	// Close out jobs orphaned by a previous crash before accepting new work.
	if n, err := eng.RecoverJobs(ctx); err != nil {
		logger.Error("job recovery", "error", err)
		os.Exit(1)
	} else if n > 0 {
		logger.Info("recovered orphaned crawl jobs", "count", n)
	}

	if *mcpMode {
		runMCP(ctx, eng, logger)
		return
	}
	runHTTP(ctx, eng, cfg.Server.Addr, logger)
}

func runHTTP(ctx context.Context, eng *engine.Engine, addr string, logger *slog.Logger) {
	api := server.New(eng, logger)
	api.StartGC(ctx.Done())

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: the SSE progress stream stays open for the
		// length of a crawl.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func runMCP(ctx context.Context, eng *engine.Engine, logger *slog.Logger) {
	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "gemscout",
		Version: "1.0.0",
	}, nil)
	eng.RegisterMCP(mcpSrv)

	logger.Info("MCP stdio server starting")
	if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("MCP server", "error", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
