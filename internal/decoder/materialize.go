package decoder

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/conneroisu/flight/internal/flighterr"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/wire"
)

// maxDepth bounds reconstruction the same way encoding is bounded, so a
// hostile or cyclic stream cannot blow the stack.
const maxDepth = 100

// materialize turns one generic row value into a node. It never fails:
// unresolved references become empty results and malformed shapes become
// visible markers. Must be called with the lock held.
func (d *Decoder) materialize(v interface{}, depth int) *node.Node {
	if depth >= maxDepth {
		return depthNode()
	}

	switch t := v.(type) {
	case nil:
		return nil

	case string:
		return d.materializeString(t, depth)

	case json.Number, bool:
		return node.Text(t)

	case []interface{}:
		if tag, key, props, ok := elementParts(t); ok {
			return d.materializeElement(tag, key, props, depth)
		}
		// A bare array is an implicit fragment.
		return node.Fragment(d.materializeList(t, depth)...)

	case errorValue:
		return errorRowNode(t.payload)

	default:
		d.log.Warn(context.Background(), nil, "unrenderable value in node position")
		return nil
	}
}

// materializeString handles the three string forms: escaped text,
// reference tokens, and plain text.
func (d *Decoder) materializeString(s string, depth int) *node.Node {
	if strings.HasPrefix(s, "$$") {
		return node.Text(s[1:])
	}

	kind, id, ok := wire.ParseRef(s)
	if !ok {
		return node.Text(s)
	}

	switch kind {
	case wire.RefModule:
		return d.materializeModule(id, "", nil)
	default:
		// RefRow and RefDeferred both follow the row table. A target
		// that has not arrived yet decodes to nothing.
		target, found := d.values[id]
		if !found {
			return nil
		}
		return d.materialize(target, depth+1)
	}
}

// elementParts recognizes the four-slot element form.
func elementParts(arr []interface{}) (tag, key string, props *node.Props, ok bool) {
	if len(arr) != 4 {
		return "", "", nil, false
	}
	sentinel, isString := arr[0].(string)
	if !isString || sentinel != wire.Sentinel {
		return "", "", nil, false
	}
	tag, isString = arr[1].(string)
	if !isString {
		return "", "", nil, false
	}
	key, _ = arr[2].(string)
	props, _ = arr[3].(*node.Props)

	return tag, key, props, true
}

func (d *Decoder) materializeElement(tag, key string, props *node.Props, depth int) *node.Node {
	if tag == wire.BoundaryTag {
		return d.materializeBoundary(key, props, depth)
	}

	if kind, id, ok := wire.ParseRef(tag); ok && kind == wire.RefModule {
		return d.materializeModule(id, key, props)
	}

	out := node.NewProps()
	var children []*node.Node
	if props != nil {
		props.Range(func(name string, value interface{}) bool {
			if name == "children" {
				children = d.materializeChildren(value, depth)
				return true
			}
			out = out.Set(name, value)
			return true
		})
	}

	return node.Host(tag, out, children...).WithKey(key)
}

// materializeBoundary rebuilds a boundary element. Children carried as a
// deferred reference whose row has not arrived register the boundary as a
// watcher so the row can fill it in on arrival.
func (d *Decoder) materializeBoundary(key string, props *node.Props, depth int) *node.Node {
	boundaryNode := &node.Node{Kind: node.KindBoundary, Key: key}
	if props == nil {
		return boundaryNode
	}

	if fallback, ok := props.Get("fallback"); ok {
		boundaryNode.Fallback = d.materialize(fallback, depth+1)
	}

	childrenVal, ok := props.Get("children")
	if !ok {
		return boundaryNode
	}

	if token, isString := childrenVal.(string); isString {
		if kind, id, refOK := wire.ParseRef(token); refOK && kind == wire.RefDeferred {
			if target, arrived := d.values[id]; arrived {
				boundaryNode.Children = d.materializeChildren(target, depth)
				boundaryNode.Resolved = true
			} else {
				d.watchers[id] = append(d.watchers[id], boundaryNode)
			}
			return boundaryNode
		}
	}
	// Inline children mean the boundary closed before this row was
	// emitted; the fallback is already superseded.
	boundaryNode.Children = d.materializeChildren(childrenVal, depth)
	boundaryNode.Resolved = true

	return boundaryNode
}

// materializeModule resolves a module reference against the registry.
// An import row not yet observed decodes to nothing; an observed import
// with no registered implementation becomes a visible placeholder.
func (d *Decoder) materializeModule(importRowID int, key string, props *node.Props) *node.Node {
	payload, observed := d.modules[importRowID]
	if !observed {
		return nil
	}

	display := payload.ExportName
	if display == "" {
		display = payload.Path
	}

	if d.res == nil {
		return missingNode(payload.ID(), display).WithKey(key)
	}
	component, registered := d.res.Resolve(payload.ID())
	if !registered || component.Impl == nil {
		return missingNode(payload.ID(), display).WithKey(key)
	}

	rendered, err := component.Impl.Render(context.Background(), props)
	if err != nil {
		name := component.Name
		if name == "" {
			name = display
		}
		d.log.Warn(context.Background(), err, "client component render failed", "component", name)
		return renderErrorNode(name, err).WithKey(key)
	}
	if rendered != nil && key != "" {
		rendered = rendered.WithKey(key)
	}

	return rendered
}

// materializeChildren normalizes a children value into an ordered slice,
// flattening the array form and dropping empty results.
func (d *Decoder) materializeChildren(v interface{}, depth int) []*node.Node {
	if arr, isArray := v.([]interface{}); isArray {
		if _, _, _, isElement := elementParts(arr); !isElement {
			return d.materializeList(arr, depth)
		}
	}

	child := d.materialize(v, depth+1)
	if child == nil {
		return nil
	}

	return []*node.Node{child}
}

func (d *Decoder) materializeList(items []interface{}, depth int) []*node.Node {
	out := make([]*node.Node, 0, len(items))
	for _, item := range items {
		if child := d.materialize(item, depth+1); child != nil {
			out = append(out, child)
		}
	}

	return out
}

// errorRowNode renders a root-level error row as a visible block carrying
// the transported name, message, and stack.
func errorRowNode(payload wire.ErrorPayload) *node.Node {
	name := payload.Name
	if name == "" {
		name = "Error"
	}

	children := []*node.Node{
		node.Host("h2", node.NewProps(), node.Text("Error in "+name)),
		node.Host("p", node.NewProps(), node.Text(payload.Message)),
	}
	if payload.Stack != "" {
		children = append(children,
			node.Host("pre", node.NewProps(), node.Text(payload.Stack)))
	}

	return node.Host("div",
		node.NewProps().Set("data-flight-error", name),
		children...)
}

func renderErrorNode(name string, err error) *node.Node {
	return node.Host("div",
		node.NewProps().Set("data-flight-error", flighterr.ErrCodeComponentRender),
		node.Host("h2", node.NewProps(), node.Text("Error in "+name)),
		node.Host("p", node.NewProps(), node.Text(err.Error())))
}

func missingNode(id, display string) *node.Node {
	return node.Host("div",
		node.NewProps().Set("data-flight-missing", id),
		node.Text("Missing client component: "+display))
}

func depthNode() *node.Node {
	return node.Host("div",
		node.NewProps().Set("data-flight-error", flighterr.ErrCodeDepthExceeded),
		node.Text("render depth limit exceeded"))
}
