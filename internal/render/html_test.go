package render

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
)

func mustHTML(t *testing.T, n *node.Node) string {
	t.Helper()
	html, err := ToHTML(n)
	require.NoError(t, err)

	return html
}

func TestRenderHostWithText(t *testing.T) {
	html := mustHTML(t, node.Host("h1", node.NewProps(), node.Text("Inbox")))
	assert.Equal(t, "<h1>Inbox</h1>", html)
}

func TestRenderEscapesText(t *testing.T) {
	html := mustHTML(t, node.Host("p", node.NewProps(), node.Text(`<b>&"bold"'</b>`)))
	assert.Equal(t, "<p>&lt;b&gt;&amp;&#34;bold&#34;&#39;&lt;/b&gt;</p>", html)
}

func TestRenderEscapesAttributeValues(t *testing.T) {
	html := mustHTML(t, node.Host("a",
		node.NewProps().Set("href", `/q?a=1&b="2"`)))
	assert.Equal(t, `<a href="/q?a=1&amp;b=&#34;2&#34;"></a>`, html)
}

func TestAttributeRenames(t *testing.T) {
	html := mustHTML(t, node.Host("label",
		node.NewProps().
			Set("className", "hint").
			Set("htmlFor", "email").
			Set("tabIndex", 3)))
	assert.Equal(t, `<label class="hint" for="email" tabindex="3"></label>`, html)
}

func TestBooleanAttributes(t *testing.T) {
	html := mustHTML(t, node.Host("input",
		node.NewProps().
			Set("disabled", true).
			Set("readOnly", false).
			Set("type", "text")))
	assert.Equal(t, `<input disabled type="text"/>`, html)
}

func TestNilAndUnserializableAttributesDropped(t *testing.T) {
	html := mustHTML(t, node.Host("div",
		node.NewProps().
			Set("id", "x").
			Set("onClick", func() {}).
			Set("data-gone", nil)))
	assert.Equal(t, `<div id="x"></div>`, html)
}

func TestVoidTagsSelfClose(t *testing.T) {
	html := mustHTML(t, node.Host("br", node.NewProps()))
	assert.Equal(t, "<br/>", html)

	html = mustHTML(t, node.Host("img", node.NewProps().Set("src", "/a.png")))
	assert.Equal(t, `<img src="/a.png"/>`, html)
}

func TestRawTagsSkipEscaping(t *testing.T) {
	html := mustHTML(t, node.Host("script", node.NewProps(),
		node.Text(`if (a < b) { go() }`)))
	assert.Equal(t, `<script>if (a < b) { go() }</script>`, html)
}

func TestDangerouslySetInnerHTML(t *testing.T) {
	html := mustHTML(t, node.Host("div",
		node.NewProps().Set("dangerouslySetInnerHTML",
			node.NewProps().Set("__html", "<em>raw</em>")),
		node.Text("ignored")))
	assert.Equal(t, "<div><em>raw</em></div>", html)
}

func TestStyleObjectFlattening(t *testing.T) {
	html := mustHTML(t, node.Host("div",
		node.NewProps().Set("style",
			node.NewProps().
				Set("backgroundColor", "red").
				Set("fontSize", 14).
				Set("WebkitTransform", "scale(2)").
				Set("msTransform", "scale(2)"))))
	assert.Equal(t,
		`<div style="background-color:red;font-size:14;-webkit-transform:scale(2);-ms-transform:scale(2);"></div>`,
		html)
}

func TestStyleStringPassesThrough(t *testing.T) {
	html := mustHTML(t, node.Host("div",
		node.NewProps().Set("style", "color:blue")))
	assert.Equal(t, `<div style="color:blue"></div>`, html)
}

func TestPrimitiveSeparators(t *testing.T) {
	// A lone primitive child needs no separators.
	html := mustHTML(t, node.Host("p", node.NewProps(), node.Text("only")))
	assert.Equal(t, "<p>only</p>", html)

	// Adjacent primitives in a multi-child list each get a leading
	// separator and the last one a trailing separator, so "1" and "2"
	// never merge into "12".
	html = mustHTML(t, node.Host("div", node.NewProps(),
		node.Text("a"), node.Text("b")))
	assert.Equal(t, "<div><!-- -->a<!-- -->b<!-- --></div>", html)
}

func TestFragmentsFlattenBeforeSeparators(t *testing.T) {
	html := mustHTML(t, node.Host("div", node.NewProps(),
		node.Fragment(node.Text("a")),
		node.Fragment(node.Text("b")),
	))
	assert.Equal(t, "<div><!-- -->a<!-- -->b<!-- --></div>", html)
}

func TestMixedChildrenSeparators(t *testing.T) {
	html := mustHTML(t, node.Host("div", node.NewProps(),
		node.Text("a"),
		node.Host("span", node.NewProps(), node.Text("mid")),
		node.Text("b"),
	))
	assert.Equal(t, "<div><!-- -->a<span>mid</span><!-- -->b<!-- --></div>", html)
}

func TestNumericAndBoolPrimitives(t *testing.T) {
	html := mustHTML(t, node.Host("div", node.NewProps(),
		node.Text(42), node.Text(true), node.Text(1.5)))
	assert.Equal(t, "<div><!-- -->42<!-- -->true<!-- -->1.5<!-- --></div>", html)
}

func TestBoundaryRendersChildrenWhenResolved(t *testing.T) {
	b := node.Boundary(
		node.Host("p", node.NewProps(), node.Text("loading")),
		node.Host("ul", node.NewProps(), node.Text("done")),
	)
	assert.Equal(t, "<ul>done</ul>", mustHTML(t, b))
}

func TestBoundaryRendersFallbackWhenPending(t *testing.T) {
	b := node.Boundary(node.Host("p", node.NewProps(), node.Text("loading")))
	assert.Equal(t, "<p>loading</p>", mustHTML(t, b))
}

func TestBoundaryResolvedEmptyRendersNothing(t *testing.T) {
	// Content resolved to nothing: the children branch is active even
	// though it is empty, and the fallback stays hidden.
	b := node.Boundary(node.Host("p", node.NewProps(), node.Text("loading")))
	b.Resolved = true
	assert.Equal(t, "<div></div>", mustHTML(t, node.Host("div", node.NewProps(), b)))
}

func TestReferenceRendersEmpty(t *testing.T) {
	html := mustHTML(t, node.Host("div", node.NewProps(), node.Reference(9)))
	assert.Equal(t, "<div></div>", html)
}

func TestSyncComponentRendersProducerOutput(t *testing.T) {
	greeting := node.Component(node.Sync("Greeting",
		func(_ context.Context, props *node.Props) (*node.Node, error) {
			who, _ := props.Get("who")
			return node.Host("p", node.NewProps(), node.Text("hi "), node.Text(who)), nil
		}), node.NewProps().Set("who", "ada"))

	assert.Equal(t, "<p><!-- -->hi <!-- -->ada<!-- --></p>", mustHTML(t, greeting))
}

func TestFailingComponentRendersErrorBlock(t *testing.T) {
	failing := node.Component(node.Sync("Sidebar",
		func(context.Context, *node.Props) (*node.Node, error) {
			return nil, errors.New("boom")
		}), nil)

	html := mustHTML(t, node.Host("div", node.NewProps(),
		node.Host("h1", node.NewProps(), node.Text("kept")),
		failing,
	))
	assert.Contains(t, html, "<h1>kept</h1>")
	assert.Contains(t, html, `data-flight-error="ERR_COMPONENT_RENDER"`)
	assert.Contains(t, html, "Error in Sidebar")
	assert.Contains(t, html, "<p>boom</p>")
}

func TestClientComponentUsesResolverImpl(t *testing.T) {
	registry := resolver.NewRegistry()
	registry.Register(&resolver.ClientComponent{
		ID: "/static/chat.js#Chat",
		Impl: resolver.RenderFunc(func(context.Context, *node.Props) (*node.Node, error) {
			return node.Host("aside", node.NewProps(), node.Text("chat")), nil
		}),
	})

	chat := node.Component(node.ClientOnly("Chat", "/static/chat.js#Chat"), nil)
	html, err := HTML(chat, Options{Resolver: registry})
	require.NoError(t, err)
	assert.Equal(t, "<aside>chat</aside>", html)
}

func TestClientComponentWithoutResolverIsPlaceholder(t *testing.T) {
	chat := node.Component(node.ClientOnly("Chat", "/static/chat.js#Chat"), nil)
	html := mustHTML(t, chat)
	assert.Contains(t, html, `data-flight-missing="/static/chat.js#Chat"`)
	assert.Contains(t, html, "Missing client component: Chat")
}

func TestDepthLimitEmitsMarker(t *testing.T) {
	current := node.Text("bottom")
	wrapped := node.Host("div", node.NewProps(), current)
	for i := 0; i < 150; i++ {
		wrapped = node.Host("div", node.NewProps(), wrapped)
	}

	html := mustHTML(t, wrapped)
	assert.Contains(t, html, `data-flight-error="ERR_DEPTH_EXCEEDED"`)
	assert.NotContains(t, html, "bottom")
	// Every opened tag is still closed.
	assert.Equal(t, strings.Count(html, "<div>"), strings.Count(html, "</div>"))
}

func TestDeterministicOutput(t *testing.T) {
	tree := node.Host("section",
		node.NewProps().Set("id", "a").Set("className", "b"),
		node.Text("x"),
		node.Host("em", node.NewProps(), node.Text("y")),
	)

	first := mustHTML(t, tree)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, mustHTML(t, tree))
	}
}
