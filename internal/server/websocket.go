package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/conneroisu/flight/internal/encoder"
	"github.com/conneroisu/flight/internal/node"
)

// handleWebSocket streams a page render over a websocket, one row per
// message, so deferred rows reach the consumer the moment they resolve.
// The page is chosen with ?page=<name>, defaulting to "index".
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	name := r.URL.Query().Get("page")
	if name == "" {
		name = "index"
	}
	builder, ok := s.page(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	ctx := r.Context()

	tree, err := builder(ctx, node.NewProps())
	if err != nil {
		s.log.Error(ctx, err, "page build failed", "page", name)
		conn.Close(websocket.StatusInternalError, "render failed")
		return
	}

	sink := &socketSink{ctx: ctx, conn: conn}
	if err := encoder.EncodeTo(ctx, tree, s.registry, sink, s.encoderOptions()); err != nil {
		s.log.Error(ctx, err, "websocket stream aborted", "page", name)
		conn.Close(websocket.StatusInternalError, "stream aborted")
		return
	}

	conn.Close(websocket.StatusNormalClosure, "stream complete")
}

// socketSink adapts a websocket connection to the encoder's writer shape.
// EncodeTo wraps it in a wire.Writer, so whole lines arrive per Write.
type socketSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (s *socketSink) Write(p []byte) (int, error) {
	// Trim the line terminator; message framing replaces it.
	line := p
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, line); err != nil {
		return 0, err
	}

	return len(p), nil
}

// checkOrigin accepts same-host browsers plus anything the configuration
// explicitly allows. Requests without an Origin header (CLI consumers)
// pass.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	if originURL.Host == r.Host {
		return true
	}

	selfHosts := []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		fmt.Sprintf("localhost:%d", s.config.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Server.Port),
	}
	for _, host := range selfHosts {
		if originURL.Host == host {
			return true
		}
	}

	for _, allowed := range s.config.Server.AllowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}

	return false
}
