//go:build property
// +build property

package decoder

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/flight/internal/encoder"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/render"
)

// buildTree assembles a deterministic tree from generated inputs: texts
// become leaves, tag indices pick host elements, grouping alternates
// between hosts and fragments.
func buildTree(texts []string, tagPicks []uint8) *node.Node {
	tags := []string{"div", "span", "p", "section", "li"}

	children := make([]*node.Node, 0, len(texts))
	for i, text := range texts {
		leaf := node.Text(text)
		if i%3 == 1 {
			leaf = node.Fragment(leaf)
		}
		if i%3 == 2 && len(tagPicks) > 0 {
			tag := tags[int(tagPicks[i%len(tagPicks)])%len(tags)]
			leaf = node.Host(tag, node.NewProps(), leaf)
		}
		children = append(children, leaf)
	}

	return node.Host("main", node.NewProps().Set("className", "generated"), children...)
}

func TestPipelineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("encode/decode round trip preserves rendered HTML", prop.ForAll(
		func(texts []string, tagPicks []uint8) bool {
			tree := buildTree(texts, tagPicks)

			stream, err := encoder.EncodeToString(context.Background(), tree, nil, encoder.Options{})
			if err != nil {
				return false
			}

			d := New(Options{})
			if err := d.Consume(strings.NewReader(stream)); err != nil {
				return false
			}

			direct, err := render.ToHTML(tree)
			if err != nil {
				return false
			}
			decoded, err := d.HTML()
			if err != nil {
				return false
			}

			return direct == decoded
		},
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("text survives the wire byte for byte", prop.ForAll(
		func(text string) bool {
			tree := node.Host("p", node.NewProps(), node.Text(text))

			stream, err := encoder.EncodeToString(context.Background(), tree, nil, encoder.Options{})
			if err != nil {
				return false
			}

			d := New(Options{})
			if err := d.Consume(strings.NewReader(stream)); err != nil {
				return false
			}

			decoded := d.Tree()
			if decoded == nil {
				return text == ""
			}
			if len(decoded.Children) == 0 {
				return text == ""
			}

			got, _ := decoded.Children[0].Value.(string)
			return got == text
		},
		gen.AnyString(),
	))

	properties.Property("decoder never panics on arbitrary input lines", prop.ForAll(
		func(lines []string) bool {
			d := New(Options{})
			for _, line := range lines {
				d.FeedLine(line)
			}
			_, err := d.HTML()
			return err == nil
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
