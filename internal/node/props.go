package node

import (
	"bytes"
	"encoding/json"
)

// Props is an insertion-ordered string-keyed map. Attribute order matters
// for deterministic wire output and HTML rendering, so a plain Go map is
// not enough.
type Props struct {
	keys   []string
	values map[string]interface{}
}

// NewProps creates an empty ordered property map.
func NewProps() *Props {
	return &Props{values: make(map[string]interface{})}
}

// Set stores a value under key, preserving first-insertion order, and
// returns the props for chaining.
func (p *Props) Set(key string, value interface{}) *Props {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value

	return p
}

// Get retrieves a value by key.
func (p *Props) Get(key string) (interface{}, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]

	return v, ok
}

// Len returns the number of properties.
func (p *Props) Len() int {
	if p == nil {
		return 0
	}

	return len(p.keys)
}

// Keys returns the property names in insertion order.
func (p *Props) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)

	return out
}

// Range calls fn for each property in insertion order until fn returns
// false.
func (p *Props) Range(fn func(key string, value interface{}) bool) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		if !fn(k, p.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy.
func (p *Props) Clone() *Props {
	out := NewProps()
	p.Range(func(k string, v interface{}) bool {
		out.Set(k, v)
		return true
	})

	return out
}

// MarshalJSON emits a JSON object with keys in insertion order.
func (p *Props) MarshalJSON() ([]byte, error) {
	if p == nil || len(p.keys) == 0 {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
