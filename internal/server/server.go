// Package server exposes flight renders over HTTP: a row stream for
// consumers that speak the wire format, rendered HTML for those that
// don't, a resumable POST endpoint, and a websocket feed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/flight/internal/config"
	"github.com/conneroisu/flight/internal/encoder"
	"github.com/conneroisu/flight/internal/logging"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
)

// PageBuilder produces the root tree for one registered page.
type PageBuilder func(ctx context.Context, props *node.Props) (*node.Node, error)

// Server renders registered pages and streams them to consumers.
type Server struct {
	config   *config.Config
	log      logging.Logger
	registry *resolver.Registry

	pagesMu sync.RWMutex
	pages   map[string]PageBuilder

	streams *streamCache

	serverMu   sync.Mutex
	httpServer *http.Server
}

// New builds a server around a validated configuration.
func New(cfg *config.Config, registry *resolver.Registry, log logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: configuration is required")
	}
	if registry == nil {
		registry = resolver.NewRegistry()
	}
	if log == nil {
		log = logging.NopLogger{}
	}

	return &Server{
		config:   cfg,
		log:      log.WithComponent("server"),
		registry: registry,
		pages:    make(map[string]PageBuilder),
		streams:  newStreamCache(64),
	}, nil
}

// RegisterPage maps a name to a tree builder. "index" answers GET /.
func (s *Server) RegisterPage(name string, builder PageBuilder) {
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()
	s.pages[name] = builder
}

func (s *Server) page(name string) (PageBuilder, bool) {
	s.pagesMu.RLock()
	defer s.pagesMu.RUnlock()
	builder, ok := s.pages[name]

	return builder, ok
}

// encoderOptions translates the render configuration for one encode pass.
func (s *Server) encoderOptions() encoder.Options {
	mode := encoder.ModeStreaming
	if s.config.Render.Mode == "eager" {
		mode = encoder.ModeEager
	}

	return encoder.Options{
		Mode:     mode,
		MaxDepth: s.config.Render.MaxDepth,
		Logger:   s.log,
	}
}

// Handler assembles the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRender)
	mux.HandleFunc("/render/", s.handleRender)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serverMu.Lock()
	s.httpServer = httpServer
	s.serverMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	httpServer := s.httpServer
	s.serverMu.Unlock()

	if httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
