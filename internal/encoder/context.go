package encoder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/conneroisu/flight/internal/flighterr"
	"github.com/conneroisu/flight/internal/logging"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
	"github.com/conneroisu/flight/internal/wire"
)

// renderContext carries all render-scoped state: the row and key
// counters, the boundary table, the import table, and the pending list.
// It is constructed fresh per render and discarded at render end; the
// resolver it borrows is the only long-lived collaborator.
type renderContext struct {
	ctx  context.Context
	res  resolver.Resolver
	log  logging.Logger
	opts Options
	sink rowSink

	mu        sync.Mutex
	nextRowID int
	nextKeyID int
	// imports maps a client reference id to the row that declared it, so
	// each module is imported at most once per render.
	imports map[string]int
	// produced caches component output by node identity so a deferred
	// boundary's replacement walk never re-invokes a producer.
	produced map[*node.Node]producedResult
	// boundaries dedupes boundary state by node identity across the scan
	// walk and the replacement walk.
	boundaries map[*node.Node]*boundary
	// table holds every boundary of the render, kept for audit and
	// ordering checks; closed boundaries are never reopened.
	table   []*boundary
	sinkErr error

	// wg tracks outstanding pending resolutions and their replacement
	// emissions.
	wg sync.WaitGroup
}

type producedResult struct {
	node *node.Node
	err  error
}

func newRenderContext(ctx context.Context, res resolver.Resolver, sink rowSink, opts Options) *renderContext {
	return &renderContext{
		ctx:        ctx,
		res:        res,
		log:        opts.Logger.WithComponent("encoder"),
		opts:       opts,
		sink:       sink,
		imports:    make(map[string]int),
		produced:   make(map[*node.Node]producedResult),
		boundaries: make(map[*node.Node]*boundary),
	}
}

// allocRow hands out the next render-scoped row id. Ids are never reused
// within a render.
func (rc *renderContext) allocRow() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	id := rc.nextRowID
	rc.nextRowID++

	return id
}

// nextKey hands out a render-scoped key for nodes without a caller key.
func (rc *renderContext) nextKey() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	key := rc.nextKeyID
	rc.nextKeyID++

	return strconv.Itoa(key)
}

// keyFor returns the node's own key if present, a counter key otherwise.
func (rc *renderContext) keyFor(n *node.Node) string {
	if n.Key != "" {
		return n.Key
	}

	return rc.nextKey()
}

// emitValue marshals and writes one element row.
func (rc *renderContext) emitValue(id int, value interface{}) error {
	payload, err := wire.MarshalValue(value)
	if err != nil {
		return err
	}

	return rc.emitRow(wire.Row{ID: id, Kind: wire.RowElement, Payload: payload})
}

// emitErrorRow writes a structured error row carrying diagnosis metadata.
func (rc *renderContext) emitErrorRow(id int, cause error) {
	payload := wire.ErrorPayload{
		Name:    "RenderError",
		Message: cause.Error(),
		Context: map[string]interface{}{"phase": "encode"},
	}

	var fe *flighterr.Error
	if errors.As(cause, &fe) {
		payload.Name = string(fe.Type)
		payload.Context["code"] = fe.Code
		if fe.Component != "" {
			payload.Context["component"] = fe.Component
		}
	}

	if outstanding := rc.outstandingRows(); len(outstanding) > 0 {
		payload.Context["outstanding"] = outstanding
	}

	encoded, err := payload.Encode()
	if err != nil {
		rc.log.Error(rc.ctx, err, "cannot encode error row", "row_id", id)
		return
	}

	if err := rc.emitRow(wire.Row{ID: id, Kind: wire.RowError, Payload: encoded}); err != nil {
		rc.log.Error(rc.ctx, err, "cannot write error row", "row_id", id)
	}
}

// emitPanicRow converts a recovered panic into a structured error row
// carrying the goroutine stack, so a misbehaving resolver surfaces as a
// visible root-level error instead of a dead stream.
func (rc *renderContext) emitPanicRow(id int, recovered interface{}, stack []byte) {
	payload := wire.ErrorPayload{
		Name:    string(flighterr.ErrorTypeInternal),
		Message: fmt.Sprintf("render panicked: %v", recovered),
		Stack:   string(stack),
		Context: map[string]interface{}{
			"phase": "encode",
			"code":  flighterr.ErrCodeInternal,
		},
	}

	encoded, err := payload.Encode()
	if err != nil {
		rc.log.Error(rc.ctx, err, "cannot encode panic row", "row_id", id)
		return
	}

	if err := rc.emitRow(wire.Row{ID: id, Kind: wire.RowError, Payload: encoded}); err != nil {
		rc.log.Error(rc.ctx, err, "cannot write panic row", "row_id", id)
	}
}

// emitRow writes one row unless the render has been cancelled.
func (rc *renderContext) emitRow(row wire.Row) error {
	if err := rc.ctx.Err(); err != nil {
		return err
	}

	if err := rc.sink.WriteRow(row); err != nil {
		rc.mu.Lock()
		if rc.sinkErr == nil {
			rc.sinkErr = err
		}
		rc.mu.Unlock()
		return err
	}

	return nil
}

func (rc *renderContext) emitErr() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.sinkErr
}

// outstandingRows lists content rows of boundaries that have not closed,
// for top-level error diagnosis.
func (rc *renderContext) outstandingRows() []int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	var out []int
	for _, b := range rc.table {
		if b.state != boundaryClosed && b.contentRow >= 0 {
			out = append(out, b.contentRow)
		}
	}

	return out
}

// importRow ensures a module import row exists for the component and
// returns its row id.
func (rc *renderContext) importRow(component *resolver.ClientComponent) (int, error) {
	rc.mu.Lock()
	if id, ok := rc.imports[component.ID]; ok {
		rc.mu.Unlock()
		return id, nil
	}
	id := rc.nextRowID
	rc.nextRowID++
	rc.imports[component.ID] = id
	rc.mu.Unlock()

	payload := wire.ImportPayload{
		Path:       component.Path,
		Chunks:     component.Chunks,
		ExportName: component.ExportName,
	}
	encoded, err := payload.Encode()
	if err != nil {
		return 0, err
	}

	return id, rc.emitRow(wire.Row{ID: id, Kind: wire.RowImport, Payload: encoded})
}
