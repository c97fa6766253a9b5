package encoder

import (
	"runtime/debug"

	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/wire"
)

// boundaryState is the per-boundary lifecycle: Open while pending work is
// outstanding, Resolving once the last item completes, Closed after the
// replacement row has been emitted. Closed boundaries are kept in the
// table for audit but never reopened.
type boundaryState int

const (
	boundaryOpen boundaryState = iota
	boundaryResolving
	boundaryClosed
)

// String returns the string representation of the boundary state.
func (s boundaryState) String() string {
	switch s {
	case boundaryOpen:
		return "open"
	case boundaryResolving:
		return "resolving"
	case boundaryClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// boundary tracks one boundary node for the duration of a render. All
// mutable fields are guarded by the render context's mutex.
type boundary struct {
	id     int
	parent *boundary
	node   *node.Node
	key    string
	depth  int

	// fallbackRow carries the eagerly encoded fallback; it is emitted
	// before any row that references this boundary and is never
	// retracted. Replacement rows are applied on top of it.
	fallbackRow int

	// contentRow is the row reserved for the resolved children, or -1
	// when the children were encoded inline.
	contentRow int

	pending   []*pendingAsync
	remaining int
	// sealed becomes true once the scan of the boundary's children has
	// finished registering pending work; resolution may only start then.
	sealed bool
	state  boundaryState
}

// pendingAsync is one unit of deferred work registered against a
// boundary. It is consumed exactly once, by the boundary's replacement
// walk.
type pendingAsync struct {
	boundary *boundary
	node     *node.Node
	consumed bool
}

func (rc *renderContext) walkBoundary(n *node.Node, st walkState) (interface{}, error) {
	rc.mu.Lock()
	b, seen := rc.boundaries[n]
	rc.mu.Unlock()

	if seen {
		return rc.revisitBoundary(b, st)
	}

	b = &boundary{
		node:       n,
		parent:     st.boundary,
		depth:      st.depth,
		contentRow: -1,
	}
	b.key = rc.keyFor(n)

	rc.mu.Lock()
	b.id = len(rc.table)
	rc.table = append(rc.table, b)
	rc.boundaries[n] = b
	rc.mu.Unlock()

	// The fallback is encoded eagerly, in the parent boundary's context,
	// and always precedes any row that references this boundary.
	fallbackValue, err := rc.walk(n.Fallback, walkState{boundary: st.boundary, depth: st.depth + 1})
	if err != nil {
		return nil, err
	}
	b.fallbackRow = rc.allocRow()
	if err := rc.emitValue(b.fallbackRow, fallbackValue); err != nil {
		return nil, err
	}

	// Scan the primary subtree. In streaming mode async components found
	// here register pending work against this boundary; in eager mode
	// they are awaited inline and the boundary closes immediately.
	childValue, err := rc.walkChildren(n.Children, walkState{boundary: b, depth: st.depth + 1})
	if err != nil {
		return nil, err
	}

	rc.mu.Lock()
	b.sealed = true
	hasPending := len(b.pending) > 0
	if !hasPending {
		b.state = boundaryClosed
	} else {
		b.contentRow = rc.nextRowID
		rc.nextRowID++
	}
	rc.mu.Unlock()

	if !hasPending {
		return rc.boundaryElement(b, childValue), nil
	}

	rc.log.Debug(rc.ctx, "boundary deferred",
		"boundary_id", b.id,
		"fallback_row", b.fallbackRow,
		"content_row", b.contentRow,
		"pending", len(b.pending),
	)

	// Fast producers may have finished before the scan sealed the
	// boundary; resolution could not start until now.
	if rc.tryResolve(b) {
		rc.wg.Add(1)
		go func() {
			defer rc.wg.Done()
			rc.resolveBoundary(b)
		}()
	}

	return rc.boundaryElement(b, wire.DeferredRef(b.contentRow)), nil
}

// revisitBoundary re-emits the element shape for a boundary the scan
// already declared; this happens when an enclosing boundary replays its
// children. No new rows are emitted for the boundary itself.
func (rc *renderContext) revisitBoundary(b *boundary, st walkState) (interface{}, error) {
	rc.mu.Lock()
	contentRow := b.contentRow
	rc.mu.Unlock()

	if contentRow >= 0 {
		return rc.boundaryElement(b, wire.DeferredRef(contentRow)), nil
	}

	// Inline boundary: re-encode its children; producer results replay
	// from the render cache.
	childValue, err := rc.walkChildren(b.node.Children, walkState{boundary: b, depth: st.depth + 1})
	if err != nil {
		return nil, err
	}

	return rc.boundaryElement(b, childValue), nil
}

// boundaryElement builds the well-known boundary construct. The fallback
// is always a row reference so the consumer can keep it live until the
// deferred children arrive.
func (rc *renderContext) boundaryElement(b *boundary, children interface{}) []interface{} {
	props := node.NewProps().
		Set("fallback", wire.RowRef(b.fallbackRow)).
		Set("children", children)

	return []interface{}{wire.Sentinel, wire.BoundaryTag, b.key, props}
}

// registerPending records one deferred producer under the boundary and
// starts resolving it immediately.
func (rc *renderContext) registerPending(b *boundary, n *node.Node) {
	p := &pendingAsync{boundary: b, node: n}

	rc.mu.Lock()
	b.pending = append(b.pending, p)
	b.remaining++
	rc.mu.Unlock()

	rc.log.Debug(rc.ctx, "pending registered", "boundary_id", b.id, "component", n.Ref.Name)

	rc.wg.Add(1)
	go rc.resolvePending(p)
}

// resolvePending runs one producer. Success and failure are both cached;
// a failing subtree never fails its siblings. The boundary resolves when
// its last pending item completes.
func (rc *renderContext) resolvePending(p *pendingAsync) {
	defer rc.wg.Done()

	if rc.ctx.Err() == nil {
		// produce caches the result (or the per-node error) for the
		// replacement walk to consume.
		_, _ = rc.produce(p.node)
	}

	rc.mu.Lock()
	p.boundary.remaining--
	rc.mu.Unlock()

	if rc.tryResolve(p.boundary) {
		rc.resolveBoundary(p.boundary)
	}
}

// tryResolve transitions Open -> Resolving when the boundary is sealed
// and no pending work remains. Exactly one caller wins.
func (rc *renderContext) tryResolve(b *boundary) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !b.sealed || b.remaining != 0 || b.state != boundaryOpen {
		return false
	}
	b.state = boundaryResolving

	return true
}

// boundaryOpen reports whether async components under this boundary may
// still defer. During a replacement walk the boundary is Resolving and
// newly discovered async work is awaited inline instead.
func (rc *renderContext) boundaryOpen(b *boundary) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return b.state == boundaryOpen
}

// resolveBoundary replays the boundary's children, with every pending
// result now cached, and emits the replacement row. The fallback row is
// superseded from the consumer's perspective but never retracted.
func (rc *renderContext) resolveBoundary(b *boundary) {
	// The replacement walk runs on its own goroutine; a panic here (a
	// resolver misbehaving during replay) must become the boundary's
	// error row, not a process crash.
	defer func() {
		if r := recover(); r != nil {
			rc.emitPanicRow(b.contentRow, r, debug.Stack())
			rc.mu.Lock()
			b.state = boundaryClosed
			rc.mu.Unlock()
		}
	}()

	if rc.ctx.Err() != nil {
		// Consumer disconnected: stop scheduling, emit nothing.
		return
	}

	rc.mu.Lock()
	for _, p := range b.pending {
		p.consumed = true
	}
	rc.mu.Unlock()

	childValue, err := rc.walkChildren(b.node.Children, walkState{boundary: b, depth: b.depth + 1})
	if err != nil {
		rc.emitErrorRow(b.contentRow, err)
	} else if err := rc.emitValue(b.contentRow, childValue); err != nil {
		rc.log.Error(rc.ctx, err, "cannot emit boundary replacement",
			"boundary_id", b.id, "content_row", b.contentRow)
	}

	rc.mu.Lock()
	b.state = boundaryClosed
	rc.mu.Unlock()

	rc.log.Debug(rc.ctx, "boundary closed", "boundary_id", b.id, "content_row", b.contentRow)
}
