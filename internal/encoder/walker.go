package encoder

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/flight/internal/flighterr"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
	"github.com/conneroisu/flight/internal/wire"
)

// walkState is the per-branch traversal state threaded through the
// recursion: the innermost active boundary and the current depth.
type walkState struct {
	boundary *boundary
	depth    int
}

func (st walkState) child() walkState {
	return walkState{boundary: st.boundary, depth: st.depth + 1}
}

// walk classifies one node and returns its encoded value. Per-node
// failures come back as inline error elements, not as errors; a non-nil
// error here means something unexpected broke outside the per-node
// guards.
func (rc *renderContext) walk(n *node.Node, st walkState) (interface{}, error) {
	if err := rc.ctx.Err(); err != nil {
		return nil, err
	}
	if n == nil {
		return nil, nil
	}
	if st.depth >= rc.opts.MaxDepth {
		err := flighterr.NewDepthExceededError(st.depth)
		rc.log.Warn(rc.ctx, err, "recursion guard tripped", "depth", st.depth)
		return rc.depthErrorElement(), nil
	}

	switch n.Kind {
	case node.KindText:
		// A leading "$" would read back as a reference token; double it
		// so the decoder can tell text from references.
		if s, ok := n.Value.(string); ok && len(s) > 0 && s[0] == '$' {
			return "$" + s, nil
		}
		return n.Value, nil
	case node.KindReference:
		return wire.RowRef(n.RowID), nil
	case node.KindFragment:
		return rc.walkChildren(n.Children, st.child())
	case node.KindHost:
		return rc.walkHost(n, st)
	case node.KindComponent:
		return rc.walkComponent(n, st)
	case node.KindBoundary:
		return rc.walkBoundary(n, st)
	default:
		return nil, flighterr.NewInternalError(
			fmt.Sprintf("unknown node kind %d", n.Kind), nil).WithPhase("encode")
	}
}

// walkChildren encodes an ordered child list. A single child collapses to
// its own value; multiple children stay an array, preserving sibling
// adjacency so the renderer can insert separators between primitives.
func (rc *renderContext) walkChildren(children []*node.Node, st walkState) (interface{}, error) {
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return rc.walk(children[0], st)
	}

	out := make([]interface{}, 0, len(children))
	for _, child := range children {
		v, err := rc.walk(child, st)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, nil
}

func (rc *renderContext) walkHost(n *node.Node, st walkState) (interface{}, error) {
	props, err := rc.encodeProps(n, st.child())
	if err != nil {
		return nil, err
	}

	return []interface{}{wire.Sentinel, n.Tag, rc.keyFor(n), props}, nil
}

// encodeProps clones the node's props, recursively encoding any values
// that are themselves nodes, and folds the node's children in under the
// "children" prop.
func (rc *renderContext) encodeProps(n *node.Node, st walkState) (*node.Props, error) {
	out := node.NewProps()

	var rangeErr error
	n.Props.Range(func(key string, value interface{}) bool {
		switch v := value.(type) {
		case *node.Node:
			encoded, err := rc.walk(v, st)
			if err != nil {
				rangeErr = err
				return false
			}
			out.Set(key, encoded)
		case []*node.Node:
			encoded, err := rc.walkChildren(v, st)
			if err != nil {
				rangeErr = err
				return false
			}
			out.Set(key, encoded)
		default:
			out.Set(key, value)
		}
		return true
	})
	if rangeErr != nil {
		return nil, rangeErr
	}

	if len(n.Children) > 0 {
		encoded, err := rc.walkChildren(n.Children, st)
		if err != nil {
			return nil, err
		}
		out.Set("children", encoded)
	}

	return out, nil
}

func (rc *renderContext) walkComponent(n *node.Node, st walkState) (interface{}, error) {
	ref := n.Ref
	if ref == nil {
		rc.log.Warn(rc.ctx, flighterr.NewEmptyReferenceError(), "component without reference")
		return rc.emptyReferenceElement(), nil
	}

	switch ref.Capability {
	case node.CapabilityClientOnly:
		return rc.walkClientRef(n, st)

	case node.CapabilityUnresolved:
		err := flighterr.NewUnresolvedReferenceError(ref.Name)
		rc.log.Warn(rc.ctx, err, "unresolved component reference", "name", ref.Name)
		return rc.missingElement(ref.Name, ref.Name), nil

	case node.CapabilitySync:
		return rc.walkProduced(n, st)

	case node.CapabilityAsync:
		if cached, ok := rc.producedFor(n); ok {
			return rc.walkProducedResult(n, cached, st)
		}
		// Outside a boundary (or in eager mode, or while a boundary is
		// already replaying) the producer is awaited inline.
		if rc.opts.Mode == ModeEager || st.boundary == nil || !rc.boundaryOpen(st.boundary) {
			return rc.walkProduced(n, st)
		}
		// Inside an open boundary: defer. The placeholder for this
		// position is null; the resolved subtree arrives out of band.
		rc.registerPending(st.boundary, n)
		return nil, nil

	default:
		return nil, flighterr.NewInternalError(
			fmt.Sprintf("unknown component capability %d", ref.Capability), nil).WithPhase("encode")
	}
}

// walkProduced invokes (or replays) the producer and encodes its output,
// converting failure into an inline error element.
func (rc *renderContext) walkProduced(n *node.Node, st walkState) (interface{}, error) {
	result, err := rc.produce(n)

	return rc.walkProducedResult(n, producedResult{node: result, err: err}, st)
}

func (rc *renderContext) walkProducedResult(n *node.Node, result producedResult, st walkState) (interface{}, error) {
	if result.err != nil {
		rc.log.Warn(rc.ctx, result.err, "component render failed", "name", n.Ref.Name)
		return rc.errorElement(n.Ref.Name, renderErrorMessage(result.err)), nil
	}

	return rc.walk(result.node, st.child())
}

func (rc *renderContext) walkClientRef(n *node.Node, st walkState) (interface{}, error) {
	ref := n.Ref
	if ref.ClientID == "" {
		err := flighterr.NewEmptyReferenceError()
		rc.log.Warn(rc.ctx, err, "empty client reference", "name", ref.Name)
		return rc.emptyReferenceElement(), nil
	}

	var component *resolver.ClientComponent
	if rc.res != nil {
		if c, ok := rc.res.Resolve(ref.ClientID); ok {
			component = c
		}
	}
	if component == nil {
		err := flighterr.NewUnresolvedReferenceError(ref.ClientID)
		rc.log.Warn(rc.ctx, err, "client reference not registered",
			"name", ref.Name, "client_id", ref.ClientID)
		return rc.missingElement(ref.Name, ref.ClientID), nil
	}

	importID, err := rc.importRow(component)
	if err != nil {
		return nil, err
	}

	props, err := rc.encodeProps(n, st.child())
	if err != nil {
		return nil, err
	}

	return []interface{}{wire.Sentinel, wire.ModuleRefToken(importID), rc.keyFor(n), props}, nil
}

// produce runs a component producer at most once per render, caching the
// result by node identity so replacement walks replay instead of
// re-invoking.
func (rc *renderContext) produce(n *node.Node) (*node.Node, error) {
	if cached, ok := rc.producedFor(n); ok {
		return cached.node, cached.err
	}

	result, err := rc.invoke(n)

	rc.mu.Lock()
	rc.produced[n] = producedResult{node: result, err: err}
	rc.mu.Unlock()

	return result, err
}

func (rc *renderContext) producedFor(n *node.Node) (producedResult, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	result, ok := rc.produced[n]

	return result, ok
}

// invoke calls the producer under a panic guard so one component cannot
// take down the render.
func (rc *renderContext) invoke(n *node.Node) (result *node.Node, err error) {
	name := n.Ref.Name

	defer func() {
		if r := recover(); r != nil {
			err = flighterr.NewRenderError(name, fmt.Errorf("%v", r))
		}
	}()

	if n.Ref.Produce == nil {
		return nil, flighterr.NewRenderError(name, errors.New("no producer registered"))
	}

	out, perr := n.Ref.Produce(rc.ctx, n.Props)
	if perr != nil {
		return nil, flighterr.NewRenderError(name, perr)
	}

	return out, nil
}

// renderErrorMessage extracts the producer's own message for inline error
// content, stripping the structured wrapper.
func renderErrorMessage(err error) string {
	var fe *flighterr.Error
	if errors.As(err, &fe) && fe.Cause != nil {
		return fe.Cause.Error()
	}

	return err.Error()
}

var titleCaser = cases.Title(language.English)

// errorElement is the inline replacement for a failed component: a
// heading naming the component and a paragraph with the message.
func (rc *renderContext) errorElement(name, message string) []interface{} {
	heading := []interface{}{wire.Sentinel, "h2", rc.nextKey(),
		node.NewProps().Set("children", "Error in "+name)}
	paragraph := []interface{}{wire.Sentinel, "p", rc.nextKey(),
		node.NewProps().Set("children", message)}

	return []interface{}{wire.Sentinel, "div", rc.nextKey(),
		node.NewProps().
			Set("data-flight-error", flighterr.ErrCodeComponentRender).
			Set("children", []interface{}{heading, paragraph})}
}

// missingElement is the visibly marked placeholder for a client reference
// nothing was registered for. Never a silent drop.
func (rc *renderContext) missingElement(name, id string) []interface{} {
	display := name
	if display == "" {
		display = id
	}

	return []interface{}{wire.Sentinel, "div", rc.nextKey(),
		node.NewProps().
			Set("data-flight-missing", id).
			Set("children", "Missing client component: "+titleCaser.String(display))}
}

// emptyReferenceElement marks an empty identifier distinctly from an
// unregistered one.
func (rc *renderContext) emptyReferenceElement() []interface{} {
	return []interface{}{wire.Sentinel, "div", rc.nextKey(),
		node.NewProps().
			Set("data-flight-error", flighterr.ErrCodeEmptyReference).
			Set("children", "Empty client reference")}
}

func (rc *renderContext) depthErrorElement() []interface{} {
	return []interface{}{wire.Sentinel, "div", rc.nextKey(),
		node.NewProps().
			Set("data-flight-error", flighterr.ErrCodeDepthExceeded).
			Set("children", "render depth limit exceeded")}
}
