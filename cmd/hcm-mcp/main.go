package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/hcm-mcp/internal/auth"
	"github.com/bobmcallan/hcm-mcp/internal/common"
	"github.com/bobmcallan/hcm-mcp/internal/config"
	"github.com/bobmcallan/hcm-mcp/internal/hcm"
	hcmmcp "github.com/bobmcallan/hcm-mcp/internal/mcp"
	"github.com/bobmcallan/hcm-mcp/internal/observability"
)

func main() {
	stdio := flag.Bool("stdio", false, "Use stdio transport (for Claude Desktop)")
	configFile := flag.String("config", "hcm-mcp.toml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	common.LoadVersionFromFile()

	// Stdio transport owns stdout; log to file only so protocol framing
	// stays clean.
	if *stdio {
		cfg.Logging.Outputs = []string{"file"}
	}
	logger := common.NewLoggerFromConfig(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg.Telemetry, "hcm-mcp")
	if err != nil {
		logger.Warn().Str("error", err.Error()).Msg("telemetry disabled")
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTelemetry(sctx) //nolint:errcheck
	}()

	// TLS trust is resolved once; a configured bundle that cannot be loaded
	// is fatal before any request is served.
	pool, err := hcm.NewCertPool(cfg.HCM.CABundle, cfg.HCM.CAReplaceSystem)
	if err != nil {
		logger.Error().Str("error", err.Error()).Msg("failed to load CA bundle")
		fmt.Fprintf(os.Stderr, "failed to load CA bundle: %v\n", err)
		os.Exit(1)
	}
	transport := hcm.NewHTTPTransport(pool)

	// The credential provider and the execution layer share trust roots but
	// not middleware; token exchanges must not recurse through auth.
	provider := auth.NewProvider(cfg.Auth, cfg.Retry, &http.Client{Transport: transport.Clone()}, logger)
	client := hcm.NewClient(cfg.HCM, cfg.Retry, transport, provider, logger)

	registry, err := hcmmcp.NewRegistry(hcmmcp.DefaultCatalog()...)
	if err != nil {
		logger.Error().Str("error", err.Error()).Msg("invalid tool catalog")
		fmt.Fprintf(os.Stderr, "invalid tool catalog: %v\n", err)
		os.Exit(1)
	}
	dispatcher := hcmmcp.NewDispatcher(registry, provider, client, logger)

	mcpServer := server.NewMCPServer(
		cfg.Server.Name,
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)
	registerTools(mcpServer, registry, dispatcher)

	logger.Info().
		Str("version", common.GetFullVersion()).
		Int("tools", len(registry.List())).
		Msg("hcm-mcp starting")

	if *stdio {
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.Error().Str("error", err.Error()).Msg("stdio server error")
			os.Exit(1)
		}
		return
	}

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	httpServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithStateLess(true),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("MCP streamable HTTP listening")
		return httpServer.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && err != http.ErrServerClosed && err != context.Canceled {
		logger.Error().Str("error", err.Error()).Msg("http server error")
		fmt.Fprintf(os.Stderr, "http server error: %v\n", err)
		os.Exit(1)
	}
	logger.Info().Msg("hcm-mcp stopped")
}
