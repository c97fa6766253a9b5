// Package decoder consumes wire rows, incrementally or in batch, and
// reconstructs the node tree they describe.
//
// Rows may arrive out of numeric order. References resolve lazily: a
// reference whose target row has not been observed yields an empty value,
// never an error. When a deferred row for a live boundary arrives, only
// that boundary's subtree is replaced; siblings are untouched.
package decoder

import (
	"context"
	"io"
	"sync"

	"github.com/conneroisu/flight/internal/flighterr"
	"github.com/conneroisu/flight/internal/logging"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/render"
	"github.com/conneroisu/flight/internal/resolver"
	"github.com/conneroisu/flight/internal/wire"
)

// Options configures a Decoder.
type Options struct {
	// Resolver materializes module references into implementations.
	Resolver resolver.Resolver
	Logger   logging.Logger
	// OnBoundaryUpdate is called with the arriving row id after a
	// deferred row replaces a live boundary's subtree. It marks the
	// region that needs re-rendering.
	OnBoundaryUpdate func(rowID int)
}

// Decoder owns the reconstructed live tree until replaced by boundary
// updates. Its methods are safe for concurrent use, but the tree is live:
// boundary nodes handed out by Tree are spliced in place as deferred rows
// arrive. Callers rendering concurrently with feeding must go through
// Tree or HTML (which lock) rather than walking a retained tree.
type Decoder struct {
	mu       sync.Mutex
	res      resolver.Resolver
	log      logging.Logger
	onUpdate func(rowID int)

	values     map[int]interface{}
	modules    map[int]wire.ImportPayload
	errRows    map[int]wire.ErrorPayload
	referenced map[int]bool

	root  *node.Node
	built bool
	dirty bool
	// watchers maps a deferred row id to the live boundary nodes whose
	// children it will fill in.
	watchers map[int][]*node.Node
}

// New creates a decoder.
func New(opts Options) *Decoder {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &Decoder{
		res:        opts.Resolver,
		log:        logger.WithComponent("decoder"),
		onUpdate:   opts.OnBoundaryUpdate,
		values:     make(map[int]interface{}),
		modules:    make(map[int]wire.ImportPayload),
		errRows:    make(map[int]wire.ErrorPayload),
		referenced: make(map[int]bool),
		watchers:   make(map[int][]*node.Node),
	}
}

// FeedLine parses and applies one raw line. Malformed rows are logged
// and skipped; the stream continues.
func (d *Decoder) FeedLine(line string) {
	row, err := wire.ParseRow(line)
	if err != nil {
		d.log.Warn(context.Background(), err, "skipping malformed row")
		return
	}
	d.Feed(row)
}

// Consume reads rows from r until end of stream. It returns only read
// errors; row-level problems are logged and skipped.
func (d *Decoder) Consume(r io.Reader) error {
	scanner := wire.NewScanner(r)
	for scanner.Scan() {
		d.FeedLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// A finished stream should have filled every deferred reference;
	// boundaries still waiting keep their fallback forever.
	d.mu.Lock()
	for id := range d.watchers {
		d.log.Warn(context.Background(), flighterr.NewPromiseNotFoundError(id),
			"stream ended with deferred row outstanding", "row_id", id)
	}
	d.mu.Unlock()

	return nil
}

// Feed applies one parsed row.
func (d *Decoder) Feed(row wire.Row) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.values[row.ID]; dup {
		// Ids are unique per render; tolerate the violation by letting
		// the later row win, consistent with rows applying on top.
		d.log.Warn(context.Background(), nil, "duplicate row id", "row_id", row.ID)
	}

	switch row.Kind {
	case wire.RowImport:
		payload, err := wire.DecodeImport(row.Payload)
		if err != nil {
			d.log.Warn(context.Background(), err, "skipping malformed import row", "row_id", row.ID)
			return
		}
		d.modules[row.ID] = payload
		d.dirty = true

	case wire.RowError:
		payload, err := wire.DecodeError(row.Payload)
		if err != nil {
			d.log.Warn(context.Background(), err, "skipping malformed error row", "row_id", row.ID)
			return
		}
		d.errRows[row.ID] = payload
		d.values[row.ID] = errorValue{payload}
		d.applyRow(row.ID)

	case wire.RowElement:
		value, err := wire.UnmarshalValue([]byte(row.Payload))
		if err != nil {
			d.log.Warn(context.Background(), err, "skipping malformed element row", "row_id", row.ID)
			return
		}
		d.values[row.ID] = value
		d.collectRefs(value)
		d.applyRow(row.ID)

	case wire.RowSymbolRef:
		d.values[row.ID] = row.Payload
		if _, id, ok := wire.ParseRef(row.Payload); ok {
			d.referenced[id] = true
		}
		d.applyRow(row.ID)
	}
}

// errorValue wraps an error row's payload in the generic value space.
type errorValue struct {
	payload wire.ErrorPayload
}

// applyRow routes an arrived row either into a waiting live boundary or
// marks the tree for rebuild. Must be called with the lock held.
func (d *Decoder) applyRow(id int) {
	waiting := d.watchers[id]
	if len(waiting) == 0 {
		d.dirty = true
		return
	}
	delete(d.watchers, id)

	children := d.materializeChildren(d.values[id], 0)
	if len(children) == 0 {
		// Still supersedes the fallback: the boundary resolved, to
		// nothing. Worth a trace because producers rarely mean it.
		d.log.Warn(context.Background(), flighterr.NewInvalidResolutionError(id),
			"deferred row resolved to empty content", "row_id", id)
	}
	for _, boundaryNode := range waiting {
		boundaryNode.Children = children
		boundaryNode.Resolved = true
	}

	d.log.Debug(context.Background(), "boundary updated", "row_id", id, "boundaries", len(waiting))

	if d.onUpdate != nil {
		d.onUpdate(id)
	}
}

// collectRefs marks every row id referenced from within a value, used for
// root detection. Must be called with the lock held.
func (d *Decoder) collectRefs(v interface{}) {
	switch t := v.(type) {
	case string:
		if _, id, ok := wire.ParseRef(t); ok {
			d.referenced[id] = true
		}
	case []interface{}:
		for _, item := range t {
			d.collectRefs(item)
		}
	case *node.Props:
		t.Range(func(_ string, value interface{}) bool {
			d.collectRefs(value)
			return true
		})
	}
}

// rootID picks the root row: the lowest-id element or error row that no
// other row references (fallback rows and deferred content rows are
// always referenced by the boundary that declared them).
func (d *Decoder) rootID() (int, bool) {
	best := -1
	for id := range d.values {
		if d.referenced[id] {
			continue
		}
		if best == -1 || id < best {
			best = id
		}
	}

	return best, best >= 0
}

// Tree returns the reconstructed live tree, rebuilding it if rows arrived
// that could not be applied in place. A tree decoded from a partial
// stream may be nil. Later rows mutate the returned tree in place; do not
// walk it while feeding from another goroutine.
func (d *Decoder) Tree() *node.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.tree()
}

func (d *Decoder) tree() *node.Node {
	if d.built && !d.dirty {
		return d.root
	}

	// Rebuilding re-registers every boundary watcher.
	d.watchers = make(map[int][]*node.Node)
	d.root = nil

	if id, ok := d.rootID(); ok {
		d.root = d.materialize(d.values[id], 0)
	}
	d.built = true
	d.dirty = false

	return d.root
}

// HTML renders the current live tree.
func (d *Decoder) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tree := d.tree()
	if tree == nil {
		return "", nil
	}

	return render.HTML(tree, render.Options{Resolver: d.res})
}

// Module returns the import payload declared by a row, if observed.
func (d *Decoder) Module(rowID int) (wire.ImportPayload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	payload, ok := d.modules[rowID]

	return payload, ok
}

// Err returns the first root-level error row observed, if any.
func (d *Decoder) Err() (wire.ErrorPayload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	best := -1
	for id := range d.errRows {
		if best == -1 || id < best {
			best = id
		}
	}
	if best == -1 {
		return wire.ErrorPayload{}, false
	}

	return d.errRows[best], true
}
