// Package node defines the declarative UI tree that the encoder walks and
// the decoder reconstructs.
//
// A Node is a closed tagged union: its Kind is decided at construction and
// never inferred from which fields happen to be set. This keeps the walker
// a plain switch instead of shape-sniffing.
package node

// Kind enumerates the variants of the node union.
type Kind int

const (
	KindText Kind = iota
	KindHost
	KindComponent
	KindFragment
	KindBoundary
	KindReference
)

// String returns the string representation of the node kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindHost:
		return "host"
	case KindComponent:
		return "component"
	case KindFragment:
		return "fragment"
	case KindBoundary:
		return "boundary"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// Node is one element of the abstract UI tree. Exactly the fields for its
// Kind are populated; the rest stay zero.
type Node struct {
	Kind Kind

	// Key is the caller-supplied stable key, if any. Nodes without a key
	// receive a render-scoped counter key during encoding.
	Key string

	// Tag is the host element tag ("div", "span"). Host only.
	Tag string

	// Props holds the node's attributes in insertion order. Host and
	// Component only.
	Props *Props

	// Children holds the ordered child subtrees. Host, Fragment, and
	// Boundary (the primary subtree).
	Children []*Node

	// Value is the primitive payload for Text nodes: string, bool, or a
	// numeric type.
	Value interface{}

	// Ref identifies the computation for Component nodes.
	Ref *ComponentRef

	// Fallback is the placeholder subtree shown while a Boundary's primary
	// subtree is still pending. Boundary only.
	Fallback *Node

	// Resolved marks a Boundary whose deferred content has been observed,
	// keeping the children branch active even when that content is empty.
	// Boundary only; set by the decoder, never encoded.
	Resolved bool

	// RowID is the wire row a Reference node points at. Reference only.
	RowID int
}

// Text constructs a primitive node. The value should be a string, bool,
// or numeric type; anything else is serialized through its JSON form.
func Text(value interface{}) *Node {
	return &Node{Kind: KindText, Value: value}
}

// Host constructs a structural element node.
func Host(tag string, props *Props, children ...*Node) *Node {
	return &Node{Kind: KindHost, Tag: tag, Props: props, Children: children}
}

// Fragment groups children without introducing an element.
func Fragment(children ...*Node) *Node {
	return &Node{Kind: KindFragment, Children: children}
}

// Boundary pairs a fallback with a primary subtree that may not be ready.
func Boundary(fallback *Node, children ...*Node) *Node {
	return &Node{Kind: KindBoundary, Fallback: fallback, Children: children}
}

// Reference points at a previously (or later) declared wire row.
func Reference(rowID int) *Node {
	return &Node{Kind: KindReference, RowID: rowID}
}

// Component constructs a unit of computation.
func Component(ref *ComponentRef, props *Props) *Node {
	return &Node{Kind: KindComponent, Ref: ref, Props: props}
}

// WithKey sets the node's stable key and returns the node for chaining.
func (n *Node) WithKey(key string) *Node {
	n.Key = key
	return n
}
