package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/conneroisu/flight/internal/wire"
)

// resumeToken is the opaque continuation state handed to consumers of
// POST /stream. It is msgpack on the wire; consumers treat it as bytes.
type resumeToken struct {
	StreamID string `msgpack:"s"`
	// Rows acknowledges how many rows the server had delivered when the
	// token was minted; a resume request receives only rows after that.
	Rows int `msgpack:"r"`
}

func encodeResumeToken(token resumeToken) ([]byte, error) {
	return msgpack.Marshal(token)
}

func decodeResumeToken(data []byte) (resumeToken, error) {
	var token resumeToken
	err := msgpack.Unmarshal(data, &token)

	return token, err
}

func newStreamID() string {
	return uuid.NewString()
}

// streamCache keeps the row sets of recent streams so a consumer can
// resume one. Eviction is oldest-first once the cap is hit.
type streamCache struct {
	mu      sync.Mutex
	max     int
	order   []string
	streams map[string][]wire.Row
}

func newStreamCache(max int) *streamCache {
	return &streamCache{
		max:     max,
		streams: make(map[string][]wire.Row),
	}
}

func (c *streamCache) put(id string, rows []wire.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.streams[id]; !exists {
		c.order = append(c.order, id)
	}
	c.streams[id] = rows

	for len(c.order) > c.max {
		evicted := c.order[0]
		c.order = c.order[1:]
		delete(c.streams, evicted)
	}
}

func (c *streamCache) get(id string) ([]wire.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, ok := c.streams[id]

	return rows, ok
}
