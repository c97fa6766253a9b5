package render

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/flight/internal/node"
)

// parseFragment runs the output through a real HTML parser so structural
// breakage (unbalanced tags, attributes leaking into text) fails even
// when string assertions would still match.
func parseFragment(t *testing.T, markup string) []*html.Node {
	t.Helper()

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	require.NoError(t, err)

	return nodes
}

func collectElements(roots []*html.Node) map[string]int {
	counts := make(map[string]int)

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			counts[n.Data]++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	for _, n := range roots {
		traverse(n)
	}

	return counts
}

func findAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}

	return "", false
}

func TestRenderedOutputParsesCleanly(t *testing.T) {
	tree := node.Host("article", node.NewProps().Set("className", "post").Set("id", "p-1"),
		node.Host("h2", node.NewProps(), node.Text("Release notes")),
		node.Fragment(node.Text("v"), node.Text("2"), node.Text(".0")),
		node.Host("ul", node.NewProps(),
			node.Host("li", node.NewProps(), node.Text(`quotes "here" & <angles>`)).WithKey("a"),
			node.Host("li", node.NewProps(), node.Text("plain")).WithKey("b"),
		),
		node.Host("img", node.NewProps().Set("src", "/logo.png").Set("alt", "logo")),
	)

	markup, err := ToHTML(tree)
	require.NoError(t, err)

	roots := parseFragment(t, markup)
	require.Len(t, roots, 1)

	article := roots[0]
	assert.Equal(t, "article", article.Data)

	class, ok := findAttr(article, "class")
	require.True(t, ok)
	assert.Equal(t, "post", class)

	counts := collectElements(roots)
	assert.Equal(t, 1, counts["h2"])
	assert.Equal(t, 1, counts["ul"])
	assert.Equal(t, 2, counts["li"])
	assert.Equal(t, 1, counts["img"])
}

func TestEscapedTextSurvivesReparse(t *testing.T) {
	const raw = `a < b && "c" > 'd'`

	markup, err := ToHTML(node.Host("p", node.NewProps(), node.Text(raw)))
	require.NoError(t, err)

	roots := parseFragment(t, markup)
	require.Len(t, roots, 1)

	var text strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(roots[0])

	assert.Equal(t, raw, text.String())
}

func TestErrorBlockIsIsolatedSubtree(t *testing.T) {
	failing := node.Component(node.Sync("Cart", func(ctx context.Context, props *node.Props) (*node.Node, error) {
		return nil, errors.New("checkout exploded")
	}), node.NewProps())

	tree := node.Host("div", node.NewProps(),
		node.Host("nav", node.NewProps(), node.Text("top")),
		failing,
		node.Host("footer", node.NewProps(), node.Text("bottom")),
	)

	markup, err := ToHTML(tree)
	require.NoError(t, err)

	roots := parseFragment(t, markup)
	counts := collectElements(roots)

	// Siblings are untouched and the error block contributes exactly one
	// marked div.
	assert.Equal(t, 1, counts["nav"])
	assert.Equal(t, 1, counts["footer"])
	assert.Equal(t, 1, counts["h2"])

	var marked int
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, ok := findAttr(n, "data-flight-error"); ok {
				marked++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	for _, n := range roots {
		traverse(n)
	}
	assert.Equal(t, 1, marked)
}
