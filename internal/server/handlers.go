package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/conneroisu/flight/internal/encoder"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/render"
	"github.com/conneroisu/flight/internal/wire"
)

// ResumeTokenHeader carries the opaque resume token on POST /stream.
const ResumeTokenHeader = "X-Flight-Resume-Token"

// handleRender answers GET / and GET /render/<page>. Consumers that ask
// for text/x-component get the raw row stream; everyone else gets HTML.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := "index"
	if after, found := strings.CutPrefix(r.URL.Path, "/render/"); found {
		name = after
	} else if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	builder, ok := s.page(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	props := node.NewProps()
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			props.Set(key, values[0])
		}
	}

	tree, err := builder(r.Context(), props)
	if err != nil {
		s.log.Error(r.Context(), err, "page build failed", "page", name)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), wire.ContentType) {
		s.writeRowStream(w, r, tree)
		return
	}

	s.writeHTML(w, r, tree)
}

func (s *Server) writeRowStream(w http.ResponseWriter, r *http.Request, tree *node.Node) {
	w.Header().Set("Content-Type", wire.ContentType)
	w.Header().Set("Cache-Control", "no-store")

	sink := &flushWriter{w: w}
	if flusher, ok := w.(http.Flusher); ok {
		sink.flusher = flusher
	}

	if err := encoder.EncodeTo(r.Context(), tree, s.registry, sink, s.encoderOptions()); err != nil {
		// Headers are gone; the row stream itself carries error rows.
		s.log.Error(r.Context(), err, "row stream aborted")
	}
}

func (s *Server) writeHTML(w http.ResponseWriter, r *http.Request, tree *node.Node) {
	html, err := render.HTML(tree, render.Options{
		Resolver: s.registry,
		MaxDepth: s.config.Render.MaxDepth,
	})
	if err != nil {
		s.log.Error(r.Context(), err, "html render failed")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if tree != nil && tree.Kind == node.KindHost && tree.Tag == "html" {
		io.WriteString(w, "<!DOCTYPE html>")
	}
	io.WriteString(w, html)
}

// streamRequest is the POST /stream body.
type streamRequest struct {
	ComponentID string                 `json:"component_id"`
	Props       map[string]interface{} `json:"props,omitempty"`
}

// handleStream renders one registered page as a resumable row stream.
// The response carries an opaque token; presenting it on a later request
// returns only rows minted after the token.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request streamRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if encoded := r.Header.Get(ResumeTokenHeader); encoded != "" {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			http.Error(w, "malformed resume token", http.StatusBadRequest)
			return
		}
		token, err := decodeResumeToken(raw)
		if err != nil {
			http.Error(w, "malformed resume token", http.StatusBadRequest)
			return
		}
		if rows, ok := s.streams.get(token.StreamID); ok {
			s.writeResumedRows(w, r, token, rows)
			return
		}
		// Evicted or unknown stream: fall through to a fresh render.
		s.log.Debug(r.Context(), "resume token for unknown stream", "stream_id", token.StreamID)
	}

	builder, ok := s.page(request.ComponentID)
	if !ok {
		http.Error(w, "unknown component", http.StatusNotFound)
		return
	}

	props := node.NewProps()
	for key, value := range request.Props {
		props.Set(key, value)
	}

	tree, err := builder(r.Context(), props)
	if err != nil {
		s.log.Error(r.Context(), err, "page build failed", "component", request.ComponentID)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	rows, err := encoder.Encode(r.Context(), tree, s.registry, s.encoderOptions())
	if err != nil {
		s.log.Error(r.Context(), err, "encode failed", "component", request.ComponentID)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	streamID := newStreamID()
	s.streams.put(streamID, rows)

	log := s.log.With("stream_id", streamID)
	log.Info(r.Context(), "stream rendered",
		"component", request.ComponentID, "rows", len(rows))

	s.writeTokenAndRows(w, r, resumeToken{StreamID: streamID, Rows: len(rows)}, rows)
}

func (s *Server) writeResumedRows(w http.ResponseWriter, r *http.Request, token resumeToken, rows []wire.Row) {
	from := token.Rows
	if from > len(rows) {
		from = len(rows)
	}

	s.writeTokenAndRows(w, r,
		resumeToken{StreamID: token.StreamID, Rows: len(rows)}, rows[from:])
}

func (s *Server) writeTokenAndRows(w http.ResponseWriter, r *http.Request, token resumeToken, rows []wire.Row) {
	encoded, err := encodeResumeToken(token)
	if err != nil {
		s.log.Error(r.Context(), err, "cannot encode resume token")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", wire.ContentType)
	w.Header().Set(ResumeTokenHeader, base64.StdEncoding.EncodeToString(encoded))

	writer := wire.NewWriter(w)
	for _, row := range rows {
		if err := writer.WriteRow(row); err != nil {
			s.log.Error(r.Context(), err, "row write failed", "row_id", row.ID)
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.pagesMu.RLock()
	pages := len(s.pages)
	s.pagesMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "ok",
		"pages":      pages,
		"components": s.registry.Count(),
	})
}

// flushWriter pushes every write to the client immediately so deferred
// rows arrive as they resolve instead of at stream end.
type flushWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if f.flusher != nil {
		f.flusher.Flush()
	}

	return n, err
}
