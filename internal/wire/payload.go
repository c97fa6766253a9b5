package wire

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/flight/internal/flighterr"
)

// ImportPayload describes a module the consumer must resolve locally.
// On the wire it is the 3+ element array I[path, chunks, exportName].
type ImportPayload struct {
	Path       string
	Chunks     []string
	ExportName string
}

// ID returns the consumer-side lookup identifier, "path#exportName".
func (p ImportPayload) ID() string {
	return p.Path + "#" + p.ExportName
}

// Encode renders the import payload in wire form.
func (p ImportPayload) Encode() (string, error) {
	chunks := p.Chunks
	if chunks == nil {
		chunks = []string{}
	}
	raw, err := json.Marshal([]interface{}{p.Path, chunks, p.ExportName})
	if err != nil {
		return "", err
	}

	return "I" + string(raw), nil
}

// DecodeImport parses an I[...] payload.
func DecodeImport(payload string) (ImportPayload, error) {
	if len(payload) < 2 || payload[0] != 'I' {
		return ImportPayload{}, flighterr.NewParseError("import payload missing I prefix", nil)
	}

	var fields []json.RawMessage
	if err := json.Unmarshal([]byte(payload[1:]), &fields); err != nil {
		return ImportPayload{}, flighterr.NewParseError("import payload is not a JSON array", err)
	}
	if len(fields) < 3 {
		return ImportPayload{}, flighterr.NewParseError(
			fmt.Sprintf("import payload has %d elements, want at least 3", len(fields)), nil)
	}

	var out ImportPayload
	if err := json.Unmarshal(fields[0], &out.Path); err != nil {
		return ImportPayload{}, flighterr.NewParseError("import path is not a string", err)
	}
	if err := json.Unmarshal(fields[1], &out.Chunks); err != nil {
		return ImportPayload{}, flighterr.NewParseError("import chunks is not a string array", err)
	}
	if err := json.Unmarshal(fields[2], &out.ExportName); err != nil {
		return ImportPayload{}, flighterr.NewParseError("import export name is not a string", err)
	}

	return out, nil
}

// ErrorPayload is the structured error row body, E{...} on the wire.
type ErrorPayload struct {
	Name    string                 `json:"name"`
	Message string                 `json:"message"`
	Stack   string                 `json:"stack,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Encode renders the error payload in wire form.
func (p ErrorPayload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	return "E" + string(raw), nil
}

// DecodeError parses an E{...} payload.
func DecodeError(payload string) (ErrorPayload, error) {
	if len(payload) < 2 || payload[0] != 'E' {
		return ErrorPayload{}, flighterr.NewParseError("error payload missing E prefix", nil)
	}

	var out ErrorPayload
	if err := json.Unmarshal([]byte(payload[1:]), &out); err != nil {
		return ErrorPayload{}, flighterr.NewParseError("error payload is not a JSON object", err)
	}

	return out, nil
}
