// Package wire implements the row-based streaming serialization format
// connecting the encoder and decoder.
//
// The format is line oriented: one row per line, each line
//
//	<id>:<payload>
//
// where <id> is a decimal integer unique within one render. Payload forms:
//
//	I[path,chunks,exportName]   module import declaration
//	["$",tag,key,props]         encoded element (sentinel-tagged JSON array)
//	E{...}                      structured error
//	$5  $L5  $@5                reference tokens (row, module, deferred)
//
// A literal newline inside a quoted string does not terminate a row; the
// scanner tracks quote and escape state while splitting.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/flight/internal/flighterr"
)

// ContentType is the MIME type of a row stream over HTTP.
const ContentType = "text/x-component"

// Sentinel is the first element of every encoded-element array. It marks
// "this array is an element", disambiguating from plain data arrays.
const Sentinel = "$"

// BoundaryTag is the well-known element tag denoting the boundary
// construct: an element whose props carry a fallback and (possibly
// deferred) children.
const BoundaryTag = "$Sb"

// RowKind classifies a wire row by its payload form.
type RowKind int

const (
	RowElement RowKind = iota
	RowImport
	RowError
	RowSymbolRef
)

// String returns the string representation of the row kind.
func (k RowKind) String() string {
	switch k {
	case RowElement:
		return "element"
	case RowImport:
		return "import"
	case RowError:
		return "error"
	case RowSymbolRef:
		return "symbol"
	default:
		return "unknown"
	}
}

// Row is one line of the stream.
type Row struct {
	ID      int
	Kind    RowKind
	Payload string
}

// Format renders the row in wire form, without the trailing newline.
func (r Row) Format() string {
	return strconv.Itoa(r.ID) + ":" + r.Payload
}

// ParseRow splits and classifies one line. Malformed rows yield a parse
// error; callers are expected to log and skip, never to abort the stream.
func ParseRow(line string) (Row, error) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return Row{}, flighterr.NewParseError(fmt.Sprintf("row has no id separator: %.40q", line), nil)
	}

	id, err := strconv.Atoi(line[:colon])
	if err != nil || id < 0 {
		return Row{}, flighterr.NewParseError(fmt.Sprintf("row has invalid id %q", line[:colon]), err)
	}

	payload := line[colon+1:]
	kind, err := classifyPayload(payload)
	if err != nil {
		var fe *flighterr.Error
		if pe, ok := err.(*flighterr.Error); ok {
			fe = pe.WithRowID(id)
		} else {
			fe = flighterr.NewParseError("unrecognized payload", err).WithRowID(id)
		}
		return Row{}, fe
	}

	return Row{ID: id, Kind: kind, Payload: payload}, nil
}

func classifyPayload(payload string) (RowKind, error) {
	if payload == "" {
		return 0, flighterr.NewParseError("empty payload", nil)
	}

	switch {
	case strings.HasPrefix(payload, "I["):
		return RowImport, nil
	case strings.HasPrefix(payload, "E{"):
		return RowError, nil
	}

	if _, _, ok := ParseRef(payload); ok {
		return RowSymbolRef, nil
	}

	// Any other JSON value is an element payload. The leading byte is a
	// cheap validity filter; full parsing happens in the decoder.
	switch payload[0] {
	case '[', '{', '"', 't', 'f', 'n', '-',
		'0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return RowElement, nil
	}

	return 0, flighterr.NewParseError(fmt.Sprintf("unrecognized payload prefix %.20q", payload), nil)
}

// RefKind classifies a reference token.
type RefKind int

const (
	// RefRow points at another row's value: "$5".
	RefRow RefKind = iota
	// RefModule points at an import row: "$L5".
	RefModule
	// RefDeferred points at a row that will be filled in later, keeping
	// the referring boundary live until it arrives: "$@5".
	RefDeferred
)

// ParseRef parses a reference token of the form $[@L]?<digits>.
func ParseRef(s string) (RefKind, int, bool) {
	if len(s) < 2 || s[0] != '$' {
		return 0, 0, false
	}

	kind := RefRow
	digits := s[1:]
	switch digits[0] {
	case '@':
		kind = RefDeferred
		digits = digits[1:]
	case 'L':
		kind = RefModule
		digits = digits[1:]
	}
	if digits == "" {
		return 0, 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, 0, false
		}
	}

	id, err := strconv.Atoi(digits)
	if err != nil {
		return 0, 0, false
	}

	return kind, id, true
}

// RowRef formats a plain row reference token.
func RowRef(id int) string { return "$" + strconv.Itoa(id) }

// ModuleRefToken formats a module reference token.
func ModuleRefToken(id int) string { return "$L" + strconv.Itoa(id) }

// DeferredRef formats a deferred content reference token.
func DeferredRef(id int) string { return "$@" + strconv.Itoa(id) }
