package node

import "context"

// Capability marks what a component reference can do. The marker is set
// at registration time so the walker never has to guess from a function's
// shape whether it may suspend.
type Capability int

const (
	// CapabilitySync produces its subtree immediately.
	CapabilitySync Capability = iota
	// CapabilityAsync may block on outside work; inside a boundary it is
	// deferred instead of awaited.
	CapabilityAsync
	// CapabilityClientOnly has no server implementation; it is emitted as
	// a module reference the consumer resolves locally.
	CapabilityClientOnly
	// CapabilityUnresolved is an identifier nothing was registered for.
	CapabilityUnresolved
)

// String returns the string representation of the capability.
func (c Capability) String() string {
	switch c {
	case CapabilitySync:
		return "sync"
	case CapabilityAsync:
		return "async"
	case CapabilityClientOnly:
		return "client-only"
	case CapabilityUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Producer computes a component's subtree from its props.
type Producer func(ctx context.Context, props *Props) (*Node, error)

// ComponentRef identifies a component implementation and its capability.
type ComponentRef struct {
	// Name is the component's display name, used in error content.
	Name string
	// Capability tells the walker how this reference may be evaluated.
	Capability Capability
	// Produce computes the subtree. Set for sync and async references.
	Produce Producer
	// ClientID is the consumer-side identifier ("path#export") for
	// client-only references.
	ClientID string
}

// Sync registers a synchronous producer.
func Sync(name string, produce Producer) *ComponentRef {
	return &ComponentRef{Name: name, Capability: CapabilitySync, Produce: produce}
}

// Async registers a producer that may block on outside work.
func Async(name string, produce Producer) *ComponentRef {
	return &ComponentRef{Name: name, Capability: CapabilityAsync, Produce: produce}
}

// ClientOnly registers a reference resolved on the consumer side.
func ClientOnly(name, clientID string) *ComponentRef {
	return &ComponentRef{Name: name, Capability: CapabilityClientOnly, ClientID: clientID}
}

// Unresolved marks an identifier that could not be mapped to anything.
func Unresolved(name string) *ComponentRef {
	return &ComponentRef{Name: name, Capability: CapabilityUnresolved}
}
