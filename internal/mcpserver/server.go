// Package mcpserver exposes observe/act/extract as MCP tools over
// stdio, reusing the same page.Page facade the CLI agent drives
// directly.
//
// Grounded on Easonliuliang-purify/cmd/purify-mcp/main.go's tool
// registration style (mcp.NewTool + server.ToolHandlerFunc closures
// over a shared client), adapted from an HTTP-API-backed tool surface
// to one backed directly by this module's handlers.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/handlers"
	"github.com/agac/browser-action-core/internal/llm"
	"github.com/agac/browser-action-core/internal/model"
	"github.com/agac/browser-action-core/internal/page"
)

// Server wraps an mcp-go MCPServer wired to one live page.Page.
type Server struct {
	mcp *server.MCPServer
}

// New registers the observe/act/extract tool surface against page p.
func New(p *page.Page, bctx playwright.BrowserContext, llmClient llm.Client, log zerolog.Logger) *Server {
	s := server.NewMCPServer("agac", "1.0.0", server.WithToolCapabilities(false))

	observer := &handlers.Observer{Page: p, LLM: llmClient, Log: log}
	actor := &handlers.Actor{Page: p, BrowserContext: bctx, Observer: observer, Log: log}
	extractor := &handlers.Extractor{Page: p, LLM: llmClient, Log: log}

	s.AddTool(mcp.NewTool("observe",
		mcp.WithDescription("Return candidate elements on the current page matching a natural-language instruction."),
		mcp.WithString("instruction", mcp.Required(), mcp.Description("What to look for, e.g. \"the login button\"")),
		mcp.WithBoolean("iframes", mcp.Description("Include iframe subtrees in the search")),
	), handleObserve(observer))

	s.AddTool(mcp.NewTool("act",
		mcp.WithDescription("Perform one action on the current page described in natural language, e.g. \"click the login button\" or \"fill the email field with 'a@b.com'\"."),
		mcp.WithString("instruction", mcp.Required(), mcp.Description("The action to perform")),
		mcp.WithBoolean("self_heal", mcp.Description("Retry with a rephrased instruction if the first dispatch attempt fails (default true)")),
	), handleAct(actor))

	s.AddTool(mcp.NewTool("extract",
		mcp.WithDescription("Extract structured data matching a JSON schema from the current page, or (article mode) the page's readable text with no LLM call."),
		mcp.WithString("schema", mcp.Description("JSON array of {name, type, required} field specs; omit for article mode")),
		mcp.WithBoolean("article", mcp.Description("Use LLM-free readability-style extraction instead of schema mode")),
	), handleExtract(extractor))

	return &Server{mcp: s}
}

// ServeStdio blocks serving MCP requests over stdio until the
// transport stops or errors out. ctx is not consulted: cancelling it
// does not stop the server.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

func handleObserve(observer *handlers.Observer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		instruction, err := request.RequireString("instruction")
		if err != nil {
			return mcp.NewToolResultError("instruction is required"), nil
		}
		iframes := request.GetBool("iframes", false)

		results, err := observer.Observe(ctx, handlers.ObserveOptions{
			Instruction: instruction,
			Iframes:     iframes,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("observe failed: %v", err)), nil
		}
		payload, _ := json.MarshalIndent(results, "", "  ")
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func handleAct(actor *handlers.Actor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		instruction, err := request.RequireString("instruction")
		if err != nil {
			return mcp.NewToolResultError("instruction is required"), nil
		}
		selfHeal := request.GetBool("self_heal", true)

		result := actor.Act(ctx, handlers.ActInput{Instruction: instruction, SelfHeal: selfHeal})
		payload, _ := json.MarshalIndent(result, "", "  ")
		if !result.Success {
			return mcp.NewToolResultError(string(payload)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func handleExtract(extractor *handlers.Extractor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if request.GetBool("article", false) {
			res, err := extractor.ExtractArticle(ctx, 0)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("extract failed: %v", err)), nil
			}
			payload, _ := json.MarshalIndent(res, "", "  ")
			return mcp.NewToolResultText(string(payload)), nil
		}

		schemaStr := request.GetString("schema", "")
		var fields []model.FieldSpec
		if schemaStr != "" {
			if err := json.Unmarshal([]byte(schemaStr), &fields); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("schema must be a JSON array of field specs: %v", err)), nil
			}
		}

		payload, err := extractor.Extract(ctx, handlers.ExtractInput{
			Schema: model.ExtractSchema{Fields: fields, Mode: model.ExtractModeSchema},
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}
