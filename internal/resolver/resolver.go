// Package resolver maps client reference identifiers to renderable
// implementations.
//
// The encoder consults a Resolver to validate client-only references and
// obtain their module metadata; the decoder consults it to materialize
// import rows into actual subtrees. How implementations get into the
// resolver (code registration, manifest file) is this package's concern
// and stays behind the Resolver interface.
package resolver

import (
	"context"

	"github.com/conneroisu/flight/internal/node"
)

// Renderable produces a subtree for a client reference given its props.
type Renderable interface {
	Render(ctx context.Context, props *node.Props) (*node.Node, error)
}

// RenderFunc adapts a plain function to Renderable.
type RenderFunc func(ctx context.Context, props *node.Props) (*node.Node, error)

// Render implements Renderable.
func (f RenderFunc) Render(ctx context.Context, props *node.Props) (*node.Node, error) {
	return f(ctx, props)
}

// ClientComponent describes one registered client reference.
type ClientComponent struct {
	// ID is the lookup identifier, conventionally "path#exportName".
	ID string
	// Name is the human-readable component name.
	Name string
	// Path is the consumer-side module path emitted in import rows.
	Path string
	// ExportName is the export within the module.
	ExportName string
	// Chunks lists additional consumer-side chunks for the import row.
	Chunks []string
	// Impl renders the component locally. May be nil when the reference
	// is known (manifest-listed) but only the consumer can render it.
	Impl Renderable
}

// Resolver is the lookup capability the pipeline consumes: given an
// identifier, return the component or report "not found".
type Resolver interface {
	Resolve(id string) (*ClientComponent, bool)
}
