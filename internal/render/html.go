// Package render turns a resolved node tree into an HTML string.
//
// Rendering is deterministic for a given tree: attributes keep their
// insertion order, text is escaped, and adjacent primitive siblings get
// empty-comment separators so two values never merge into one text run.
package render

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/conneroisu/flight/internal/flighterr"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
)

// MaxDepth is the recursion ceiling; deeper trees render a visible error
// marker instead of overflowing the stack.
const MaxDepth = 100

// Options configures rendering.
type Options struct {
	// Resolver materializes client references encountered in the tree.
	// Without one, client components render the missing placeholder.
	Resolver resolver.Resolver
	// MaxDepth overrides the recursion ceiling. Zero means MaxDepth.
	MaxDepth int
}

// ToHTML renders a tree with default options.
func ToHTML(n *node.Node) (string, error) {
	return HTML(n, Options{})
}

// HTML renders a tree to a string.
func HTML(n *node.Node, opts Options) (string, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = MaxDepth
	}

	r := &renderer{opts: opts}
	if err := r.walk(n, 0, false); err != nil {
		return "", err
	}

	return r.sb.String(), nil
}

type renderer struct {
	sb   strings.Builder
	opts Options
}

const depthMarker = `<span data-flight-error="` + flighterr.ErrCodeDepthExceeded + `">render depth limit exceeded</span>`

func (r *renderer) walk(n *node.Node, depth int, raw bool) error {
	if n == nil {
		return nil
	}
	if depth >= r.opts.MaxDepth {
		r.sb.WriteString(depthMarker)
		return nil
	}

	switch n.Kind {
	case node.KindText:
		text, ok := formatPrimitive(n.Value)
		if !ok {
			return nil
		}
		if raw {
			r.sb.WriteString(text)
		} else {
			r.sb.WriteString(escape(text))
		}
		return nil

	case node.KindFragment:
		return r.children(n.Children, depth+1, raw)

	case node.KindHost:
		return r.host(n, depth)

	case node.KindBoundary:
		// Exactly one of the two subtrees is active: the children branch
		// once content exists or the boundary has resolved (possibly to
		// nothing), the fallback otherwise.
		if n.Resolved || len(n.Children) > 0 {
			return r.children(n.Children, depth+1, raw)
		}
		return r.walk(n.Fallback, depth+1, raw)

	case node.KindReference:
		// An unresolved reference renders empty, never an error.
		return nil

	case node.KindComponent:
		return r.component(n, depth)

	default:
		return flighterr.NewInternalError("unknown node kind in renderer", nil).WithPhase("render")
	}
}

func (r *renderer) component(n *node.Node, depth int) error {
	ref := n.Ref
	if ref == nil {
		r.errorBlock("Error in component", "missing component reference")
		return nil
	}

	switch ref.Capability {
	case node.CapabilitySync, node.CapabilityAsync:
		if ref.Produce == nil {
			r.errorBlock("Error in "+ref.Name, "no producer registered")
			return nil
		}
		result, err := ref.Produce(context.Background(), n.Props)
		if err != nil {
			r.errorBlock("Error in "+ref.Name, err.Error())
			return nil
		}
		return r.walk(result, depth+1, false)

	case node.CapabilityClientOnly:
		if r.opts.Resolver != nil {
			if c, ok := r.opts.Resolver.Resolve(ref.ClientID); ok && c.Impl != nil {
				result, err := c.Impl.Render(context.Background(), n.Props)
				if err != nil {
					r.errorBlock("Error in "+ref.Name, err.Error())
					return nil
				}
				return r.walk(result, depth+1, false)
			}
		}
		r.missingBlock(ref.Name, ref.ClientID)
		return nil

	default:
		r.missingBlock(ref.Name, ref.Name)
		return nil
	}
}

func (r *renderer) host(n *node.Node, depth int) error {
	tag := n.Tag

	r.sb.WriteByte('<')
	r.sb.WriteString(tag)

	var innerHTML string
	n.Props.Range(func(key string, value interface{}) bool {
		if key == "children" || key == "key" || key == "fallback" {
			return true
		}
		if key == "dangerouslySetInnerHTML" {
			innerHTML = extractInnerHTML(value)
			return true
		}
		r.attribute(key, value)
		return true
	})

	if voidTags[tag] {
		r.sb.WriteString("/>")
		return nil
	}

	r.sb.WriteByte('>')

	if innerHTML != "" {
		r.sb.WriteString(innerHTML)
	} else {
		if err := r.children(n.Children, depth+1, rawTags[tag]); err != nil {
			return err
		}
	}

	r.sb.WriteString("</")
	r.sb.WriteString(tag)
	r.sb.WriteByte('>')

	return nil
}

// children renders an ordered child list. Fragments are flattened first
// so sibling adjacency is judged on what actually gets emitted; in a
// multi-child list every primitive is preceded by an empty-comment
// separator, and a trailing one follows a final primitive. This keeps
// "1" next to "2" from reading back as "12".
func (r *renderer) children(children []*node.Node, depth int, raw bool) error {
	flat := flatten(children, nil)

	multiple := len(flat) > 1
	for i, child := range flat {
		primitive := child.Kind == node.KindText

		if primitive && multiple && !raw {
			r.sb.WriteString("<!-- -->")
		}
		if err := r.walk(child, depth, raw); err != nil {
			return err
		}
		if primitive && multiple && !raw && i == len(flat)-1 {
			r.sb.WriteString("<!-- -->")
		}
	}

	return nil
}

func flatten(children []*node.Node, out []*node.Node) []*node.Node {
	for _, child := range children {
		if child == nil {
			continue
		}
		if child.Kind == node.KindFragment {
			out = flatten(child.Children, out)
			continue
		}
		out = append(out, child)
	}

	return out
}

func (r *renderer) errorBlock(heading, message string) {
	r.sb.WriteString(`<div data-flight-error="` + flighterr.ErrCodeComponentRender + `"><h2>`)
	r.sb.WriteString(escape(heading))
	r.sb.WriteString("</h2><p>")
	r.sb.WriteString(escape(message))
	r.sb.WriteString("</p></div>")
}

func (r *renderer) missingBlock(name, id string) {
	display := name
	if display == "" {
		display = id
	}
	r.sb.WriteString(`<div data-flight-missing="`)
	r.sb.WriteString(escape(id))
	r.sb.WriteString(`">`)
	r.sb.WriteString(escape("Missing client component: " + display))
	r.sb.WriteString("</div>")
}

func extractInnerHTML(value interface{}) string {
	switch v := value.(type) {
	case *node.Props:
		if html, ok := v.Get("__html"); ok {
			if s, ok := html.(string); ok {
				return s
			}
		}
	case map[string]interface{}:
		if s, ok := v["__html"].(string); ok {
			return s
		}
	}

	return ""
}

// formatPrimitive renders a primitive value as text. Unsupported values
// report false and render nothing.
func formatPrimitive(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&#34;",
	"'", "&#39;",
)

// escape HTML-escapes text content and attribute values. It is
// referentially stable: the same input always yields the same output.
func escape(s string) string {
	return escaper.Replace(s)
}
