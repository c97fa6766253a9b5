// Package encoder walks a node tree and serializes it into wire rows.
//
// The walker is a recursive descent over the tagged node union. Subtrees
// that depend on asynchronous producers are deferred behind boundaries:
// the walker emits the boundary's fallback immediately and the boundary
// engine emits a replacement row once the pending work resolves. All
// render state lives in a render-scoped context constructed fresh per
// encode, so concurrent renders never share counters or tables.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/conneroisu/flight/internal/flighterr"
	"github.com/conneroisu/flight/internal/logging"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
	"github.com/conneroisu/flight/internal/wire"
)

// Mode selects how boundaries with pending work are emitted.
type Mode int

const (
	// ModeStreaming emits the fallback plus a deferred reference, filling
	// the referenced row in once the pending work resolves.
	ModeStreaming Mode = iota
	// ModeEager blocks on pending work before emitting anything,
	// simplifying the consumer at the cost of time to first row.
	ModeEager
)

// DefaultMaxDepth is the recursion ceiling. Trees deeper than this yield
// a bounded inline error node instead of unbounded recursion.
const DefaultMaxDepth = 100

// Options configures one encode pass.
type Options struct {
	Mode     Mode
	MaxDepth int
	Logger   logging.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = logging.NopLogger{}
	}

	return o
}

// rowSink receives rows as the engine produces them.
type rowSink interface {
	WriteRow(row wire.Row) error
}

// EncodeTo walks root and streams rows to w as they become ready. It
// returns once every boundary has closed, or earlier if ctx is cancelled,
// in which case no further rows are emitted for this render.
func EncodeTo(ctx context.Context, root *node.Node, res resolver.Resolver, w io.Writer, opts Options) error {
	return encode(ctx, root, res, wire.NewWriter(w), opts.withDefaults())
}

// Encode walks root and returns the complete row sequence, ordered by row
// id. It waits for all pending work regardless of mode. On failure the
// rows emitted so far — including the root-level error row — are returned
// alongside the error.
func Encode(ctx context.Context, root *node.Node, res resolver.Resolver, opts Options) ([]wire.Row, error) {
	collector := &rowCollector{}
	err := encode(ctx, root, res, collector, opts.withDefaults())

	rows := collector.rows
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	return rows, err
}

// EncodeToString is a convenience wrapper returning the full wire text.
func EncodeToString(ctx context.Context, root *node.Node, res resolver.Resolver, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := EncodeTo(ctx, root, res, &buf, opts); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func encode(ctx context.Context, root *node.Node, res resolver.Resolver, sink rowSink, opts Options) (retErr error) {
	rc := newRenderContext(ctx, res, sink, opts)

	// Row 0 is reserved for the root so consumers can locate it without
	// buffering; fallback and import rows emitted during the walk carry
	// higher ids even though they appear on the stream first.
	rootRow := rc.allocRow()

	// Producers are panic-guarded individually; anything that still
	// panics here (a resolver, a sink) becomes a root-level error row
	// with the stack attached rather than an escaped panic.
	defer func() {
		if r := recover(); r != nil {
			rc.emitPanicRow(rootRow, r, debug.Stack())
			retErr = flighterr.NewInternalError(
				fmt.Sprintf("render panicked: %v", r), nil).WithPhase("encode")
		}
	}()

	value, err := rc.walk(root, walkState{boundary: nil, depth: 0})
	if err != nil {
		// Unexpected failure outside any per-node guard: surface a
		// root-level error row instead of producing silent empty output.
		rc.emitErrorRow(rootRow, err)
		rc.wg.Wait()
		return err
	}

	if err := rc.emitValue(rootRow, value); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		rc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// The consumer is gone. Outstanding goroutines observe the
		// cancelled context and stop without emitting further rows for
		// this render; there is nothing left to wait for.
		return ctx.Err()
	}

	return rc.emitErr()
}

type rowCollector struct {
	mu   sync.Mutex
	rows []wire.Row
}

func (c *rowCollector) WriteRow(row wire.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, row)

	return nil
}
