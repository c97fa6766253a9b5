package resolver

import (
	"context"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/flight/internal/node"
)

// FromTempl adapts a templ component as a Renderable, so existing templ
// code can serve as a client reference implementation. The component's
// output becomes a raw host node; templ already escapes its own output.
func FromTempl(component templ.Component) Renderable {
	return RenderFunc(func(ctx context.Context, _ *node.Props) (*node.Node, error) {
		var sb strings.Builder
		if err := component.Render(ctx, &sb); err != nil {
			return nil, err
		}

		props := node.NewProps().Set("dangerouslySetInnerHTML",
			node.NewProps().Set("__html", sb.String()))

		return node.Host("div", props), nil
	})
}
