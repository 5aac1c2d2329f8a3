// Command mcp is a standalone MCP-over-stdio entry point: one browser
// tab, one page.Page facade, the observe/act/extract tool surface.
// cmd/agent also exposes this surface via `agent mcp`; this binary
// exists for MCP clients that expect a single dedicated executable
// rather than a subcommand.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agac/browser-action-core/internal/browser"
	"github.com/agac/browser-action-core/internal/cache"
	"github.com/agac/browser-action-core/internal/llm"
	"github.com/agac/browser-action-core/internal/mcpserver"
	"github.com/agac/browser-action-core/internal/page"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	launcher, err := browser.NewLauncher(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("browser init")
	}
	defer launcher.Close()

	ctrl, err := launcher.NewController(ctx, os.Getenv("AGAC_STORAGE_STATE"))
	if err != nil {
		log.Fatal().Err(err).Msg("browser controller")
	}
	defer ctrl.Close(ctx)

	p := page.New(ctrl.Context(), ctrl.Page(), log.Logger)
	defer p.Close()

	baseClient, err := llm.NewClientWithLogger(log.With().Str("comp", "llm").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("llm init")
	}
	var client llm.Client = baseClient
	if store, err := cache.New(cacheDir()); err == nil {
		client = llm.NewCached(client, store, log.Logger)
	}
	client = llm.NewRateLimited(client, 2.0, 4, log.Logger)

	srv := mcpserver.New(p, ctrl.Context(), client, log.Logger)
	if err := srv.ServeStdio(ctx); err != nil {
		log.Fatal().Err(err).Msg("mcp server stopped")
	}
}

func cacheDir() string {
	dir := os.Getenv("AGAC_CACHE_DIR")
	if dir == "" {
		dir = ".agac-cache"
	}
	return dir
}
