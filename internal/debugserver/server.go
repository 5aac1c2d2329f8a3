// Package debugserver implements the opt-in, read-only debug HTTP
// surface named in the expanded CLI/MCP component: a handful of GET
// endpoints that expose the current page's URL, title, and
// accessibility outline for local troubleshooting. Never mutates page
// state.
//
// Grounded on the teacher's general HTTP-free style (it has none — this
// is new surface area the spec's expansion calls for) using
// github.com/gin-gonic/gin, the router already pulled in by the
// rest of the pack's HTTP-serving repos.
package debugserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/axtree"
	"github.com/agac/browser-action-core/internal/page"
)

// Server serves a read-only snapshot of one page.Page's state.
type Server struct {
	page *page.Page
	log  zerolog.Logger
}

// New builds a debug server for p. Call Start to actually listen.
func New(p *page.Page, log zerolog.Logger) *Server {
	return &Server{page: p, log: log.With().Str("component", "debug_server").Logger()}
}

// Start listens on addr in the background and returns a func that
// shuts the server down. Listen failures are logged, not fatal — the
// debug surface is diagnostic, never load-bearing.
func (s *Server) Start(addr string) func() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/page", func(c *gin.Context) {
		title, _ := s.page.Raw().Title()
		c.JSON(http.StatusOK, gin.H{
			"url":   s.page.Raw().URL(),
			"title": title,
		})
	})
	r.GET("/tree", func(c *gin.Context) {
		sess, err := s.page.Pool().PageSession()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		mainFrame := s.page.Raw().MainFrame()
		rootFrameID := mainFrame.Name() + "@" + mainFrame.URL()
		tree, err := axtree.BuildSingleFrameTree(sess, rootFrameID, nil, s.page, s.log)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.String(http.StatusOK, tree.Simplified)
	})

	httpServer := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn().Err(err).Str("addr", addr).Msg("debug server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}
}
