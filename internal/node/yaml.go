package node

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FromYAML builds a tree from a YAML document. This is the fixture and
// CLI input format; computational components cannot be described this way
// and must be registered in code. Supported shapes:
//
//	text: "hello"                   primitive
//	tag: div                        host element
//	props: {class: hero}
//	children: [...]
//	children: [...]                 fragment (children without a tag)
//	boundary:                       boundary with fallback
//	  fallback: {text: "loading"}
//	  children: [...]
//	client: "./Foo.js#default"      client-only component reference
//	row: 5                          reference to a wire row
//
// Property order in the document is preserved.
func FromYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing node document: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty node document")
	}

	return fromYAMLNode(doc.Content[0])
}

func fromYAMLNode(yn *yaml.Node) (*Node, error) {
	switch yn.Kind {
	case yaml.ScalarNode:
		var v interface{}
		if err := yn.Decode(&v); err != nil {
			return nil, err
		}
		return Text(v), nil
	case yaml.SequenceNode:
		children, err := fromYAMLSequence(yn)
		if err != nil {
			return nil, err
		}
		return Fragment(children...), nil
	case yaml.MappingNode:
		return fromYAMLMapping(yn)
	default:
		return nil, fmt.Errorf("unsupported YAML node kind %d at line %d", yn.Kind, yn.Line)
	}
}

func fromYAMLSequence(yn *yaml.Node) ([]*Node, error) {
	children := make([]*Node, 0, len(yn.Content))
	for _, c := range yn.Content {
		child, err := fromYAMLNode(c)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	return children, nil
}

func fromYAMLMapping(yn *yaml.Node) (*Node, error) {
	var (
		tag, key, client, name string
		textValue              interface{}
		hasText                bool
		rowID                  int
		hasRow                 bool
		props                  *Props
		children               []*Node
		boundaryNode           *yaml.Node
	)

	for i := 0; i+1 < len(yn.Content); i += 2 {
		field := yn.Content[i].Value
		value := yn.Content[i+1]

		switch field {
		case "text":
			hasText = true
			if err := value.Decode(&textValue); err != nil {
				return nil, err
			}
		case "tag":
			tag = value.Value
		case "key":
			key = value.Value
		case "name":
			name = value.Value
		case "client":
			client = value.Value
		case "row":
			hasRow = true
			if err := value.Decode(&rowID); err != nil {
				return nil, err
			}
		case "props":
			var err error
			props, err = fromYAMLProps(value)
			if err != nil {
				return nil, err
			}
		case "children":
			var err error
			children, err = fromYAMLSequence(value)
			if err != nil {
				return nil, err
			}
		case "boundary":
			boundaryNode = value
		default:
			return nil, fmt.Errorf("unknown node field %q at line %d", field, yn.Content[i].Line)
		}
	}

	var n *Node
	switch {
	case hasText:
		n = Text(textValue)
	case boundaryNode != nil:
		var err error
		n, err = fromYAMLBoundary(boundaryNode)
		if err != nil {
			return nil, err
		}
	case client != "":
		if name == "" {
			name = client
		}
		n = Component(ClientOnly(name, client), props)
	case hasRow:
		n = Reference(rowID)
	case tag != "":
		n = Host(tag, props, children...)
	case children != nil:
		n = Fragment(children...)
	default:
		return nil, fmt.Errorf("node mapping at line %d has no recognizable shape", yn.Line)
	}

	if key != "" {
		n.WithKey(key)
	}

	return n, nil
}

func fromYAMLBoundary(yn *yaml.Node) (*Node, error) {
	if yn.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("boundary at line %d must be a mapping", yn.Line)
	}

	var fallback *Node
	var children []*Node

	for i := 0; i+1 < len(yn.Content); i += 2 {
		switch yn.Content[i].Value {
		case "fallback":
			var err error
			fallback, err = fromYAMLNode(yn.Content[i+1])
			if err != nil {
				return nil, err
			}
		case "children":
			var err error
			children, err = fromYAMLSequence(yn.Content[i+1])
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown boundary field %q at line %d", yn.Content[i].Value, yn.Content[i].Line)
		}
	}
	if fallback == nil {
		return nil, fmt.Errorf("boundary at line %d has no fallback", yn.Line)
	}

	return Boundary(fallback, children...), nil
}

func fromYAMLProps(yn *yaml.Node) (*Props, error) {
	if yn.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("props at line %d must be a mapping", yn.Line)
	}

	props := NewProps()
	for i := 0; i+1 < len(yn.Content); i += 2 {
		var v interface{}
		if err := yn.Content[i+1].Decode(&v); err != nil {
			return nil, err
		}
		props.Set(yn.Content[i].Value, v)
	}

	return props, nil
}
