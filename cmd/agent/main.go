package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agac/browser-action-core/internal/browser"
	"github.com/agac/browser-action-core/internal/cache"
	"github.com/agac/browser-action-core/internal/debugserver"
	"github.com/agac/browser-action-core/internal/handlers"
	"github.com/agac/browser-action-core/internal/llm"
	"github.com/agac/browser-action-core/internal/mcpserver"
	"github.com/agac/browser-action-core/internal/page"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	root := &cobra.Command{
		Use:   "agent",
		Short: "Drive a browser via natural-language instructions.",
	}
	root.PersistentFlags().String("storage", "", "path to Playwright storage state")
	root.PersistentFlags().String("save-state", "", "path to save updated storage state on exit")
	root.PersistentFlags().String("debug-addr", "", "if set, serve a read-only debug HTTP surface on this address")
	root.PersistentFlags().Duration("timeout", 30*time.Second, "default operation timeout")
	root.PersistentFlags().String("url", "", "navigate to this URL before running the command")

	root.AddCommand(newDemoCmd(), newObserveCmd(), newActCmd(), newExtractCmd(), newMCPCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// newDemoCmd used to run a multi-step planner/orchestrator/toolbox loop
// inherited from this repository's pre-accessibility-grounded-core
// predecessor. That loop duplicated the observe/act/extract surface
// with its own ad hoc tool-call plumbing and added nothing the `act`
// subcommand's self-healing loop doesn't already cover, so it was
// removed rather than kept as unexercised legacy weight. `observe`,
// `act`, and `extract` are the supported way to drive a page from this
// binary.
func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "demo [task]",
		Short:  "Removed: use 'observe', 'act', and 'extract' instead.",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("the demo planner/orchestrator loop has been removed; use the observe/act/extract subcommands")
		},
	}
}

func newObserveCmd() *cobra.Command {
	var iframes, fromAct bool
	cmd := &cobra.Command{
		Use:   "observe [instruction]",
		Short: "Return candidate elements matching a natural-language instruction.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			observer := &handlers.Observer{Page: env.page, LLM: env.llmClient, Log: log.Logger}
			results, err := observer.Observe(ctx, handlers.ObserveOptions{
				Instruction: strings.Join(args, " "),
				Iframes:     iframes,
				FromAct:     fromAct,
			})
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("%s\t%s\t%s\n", r.Selector, r.Method, r.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&iframes, "iframes", false, "include iframe subtrees")
	cmd.Flags().BoolVar(&fromAct, "from-act", false, "request the single-best-match, act-shaped result")
	return cmd
}

func newActCmd() *cobra.Command {
	var selfHeal bool
	cmd := &cobra.Command{
		Use:   "act [instruction]",
		Short: "Perform one action described in natural language.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			observer := &handlers.Observer{Page: env.page, LLM: env.llmClient, Log: log.Logger}
			actor := &handlers.Actor{Page: env.page, BrowserContext: env.bctx, Observer: observer, Log: log.Logger}
			result := actor.Act(ctx, handlers.ActInput{
				Instruction: strings.Join(args, " "),
				SelfHeal:    selfHeal,
			})
			if !result.Success {
				return fmt.Errorf("act failed: %s", result.Error)
			}
			fmt.Printf("ok: %s on %s\n", result.Action, result.Selector)
			return nil
		},
	}
	cmd.Flags().BoolVar(&selfHeal, "self-heal", true, "retry with a rephrased instruction on dispatch failure")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var article bool
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract structured data or readable article text from the current page.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			extractor := &handlers.Extractor{Page: env.page, LLM: env.llmClient, Log: log.Logger}
			if article {
				res, err := extractor.ExtractArticle(ctx, 30*time.Second)
				if err != nil {
					return err
				}
				fmt.Println(res.Title)
				fmt.Println(res.TextContent)
				return nil
			}
			fmt.Println("schema mode is not available from this command; use --article, or the mcp extract tool with a schema")
			return nil
		},
	}
	cmd.Flags().BoolVar(&article, "article", false, "use LLM-free readability-style extraction")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the observe/act/extract tool surface over MCP (stdio).",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			srv := mcpserver.New(env.page, env.bctx, env.llmClient, log.Logger)
			return srv.ServeStdio(ctx)
		},
	}
}

type environment struct {
	page      *page.Page
	bctx      playwright.BrowserContext
	llmClient llm.Client
}

// bootstrap launches a Chromium instance, opens a page.Page facade
// wrapping it, wires the LLM client through the rate-limit and cache
// decorators, and (if --debug-addr is set) starts the read-only debug
// HTTP surface. The returned cleanup func tears everything down in
// reverse order.
func bootstrap(cmd *cobra.Command) (context.Context, *environment, func(), error) {
	storage, _ := cmd.Flags().GetString("storage")
	saveState, _ := cmd.Flags().GetString("save-state")
	debugAddr, _ := cmd.Flags().GetString("debug-addr")
	url, _ := cmd.Flags().GetString("url")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	launcher, err := browser.NewLauncher(ctx)
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("browser init: %w", err)
	}
	ctrl, err := launcher.NewController(ctx, storage)
	if err != nil {
		launcher.Close()
		stop()
		return nil, nil, nil, fmt.Errorf("browser controller: %w", err)
	}

	p := page.New(ctrl.Context(), ctrl.Page(), log.Logger)

	if url != "" {
		if err := p.Goto(ctx, url, 30*time.Second); err != nil {
			log.Warn().Err(err).Msg("initial navigation failed")
		}
	}

	baseClient, err := llm.NewClientWithLogger(log.With().Str("comp", "llm").Logger())
	if err != nil {
		ctrl.Close(ctx)
		launcher.Close()
		stop()
		return nil, nil, nil, fmt.Errorf("llm init: %w", err)
	}
	store, err := cache.New(defaultCacheDir())
	var client llm.Client = baseClient
	if err == nil {
		client = llm.NewCached(client, store, log.Logger)
	}
	client = llm.NewRateLimited(client, 2.0, 4, log.Logger)

	var stopDebug func()
	if debugAddr != "" {
		srv := debugserver.New(p, log.Logger)
		stopDebug = srv.Start(debugAddr)
	}

	cleanup := func() {
		if stopDebug != nil {
			stopDebug()
		}
		if saveState != "" {
			if err := ctrl.SaveState(ctx, saveState); err != nil {
				log.Error().Err(err).Msg("save state")
			} else {
				log.Info().Str("path", saveState).Msg("storage saved")
			}
		}
		p.Close()
		ctrl.Close(ctx)
		launcher.Close()
		stop()
	}

	return ctx, &environment{page: p, bctx: ctrl.Context(), llmClient: client}, cleanup, nil
}

func defaultCacheDir() string {
	dir := os.Getenv("AGAC_CACHE_DIR")
	if dir == "" {
		dir = ".agac-cache"
	}
	return dir
}

