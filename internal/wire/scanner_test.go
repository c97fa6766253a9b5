package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/flight/internal/node"
)

func collectLines(t *testing.T, input string) []string {
	t.Helper()

	s := NewScanner(strings.NewReader(input))
	var out []string
	for s.Scan() {
		out = append(out, s.Text())
	}
	require.NoError(t, s.Err())

	return out
}

func TestScannerSplitsRows(t *testing.T) {
	lines := collectLines(t, "0:[\"$\",\"div\",\"0\",{}]\n1:$@2\n")

	assert.Equal(t, []string{`0:["$","div","0",{}]`, "1:$@2"}, lines)
}

func TestScannerQuotedNewline(t *testing.T) {
	// The newline inside the quoted string belongs to row 0.
	input := "0:[\"$\",\"pre\",\"0\",{\"children\":\"line one\nline two\"}]\n1:$2\n"

	lines := collectLines(t, input)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "line one\nline two")
	assert.Equal(t, "1:$2", lines[1])
}

func TestScannerEscapedQuote(t *testing.T) {
	// The escaped quote must not flip quote state; the newline after it
	// still terminates the row.
	input := "0:[\"say \\\"hi\\\"\"]\n1:$2\n"

	lines := collectLines(t, input)
	require.Len(t, lines, 2)
	assert.Equal(t, `0:["say \"hi\""]`, lines[0])
}

func TestScannerFinalRowWithoutNewline(t *testing.T) {
	lines := collectLines(t, "0:$1\n1:null")

	assert.Equal(t, []string{"0:$1", "1:null"}, lines)
}

func TestScannerSkipsBlankLines(t *testing.T) {
	lines := collectLines(t, "0:$1\n\n\n1:$2\n")

	assert.Equal(t, []string{"0:$1", "1:$2"}, lines)
}

func TestScannerEmptyStream(t *testing.T) {
	s := NewScanner(strings.NewReader(""))
	assert.False(t, s.Scan())
	assert.NoError(t, s.Err())
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteRow(Row{ID: 0, Payload: `["$","div","0",{}]`}))
	require.NoError(t, w.WriteRow(Row{ID: 1, Payload: "$@2"}))

	lines := collectLines(t, buf.String())
	assert.Equal(t, []string{`0:["$","div","0",{}]`, "1:$@2"}, lines)
}

func TestUnmarshalValueOrderedObject(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"zeta":1,"alpha":"a","nested":{"b":true,"a":null}}`))
	require.NoError(t, err)

	props, ok := v.(*node.Props)
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "nested"}, props.Keys())

	nested, _ := props.Get("nested")
	nestedProps, ok := nested.(*node.Props)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, nestedProps.Keys())
}

func TestMarshalUnmarshalValueStable(t *testing.T) {
	original := []interface{}{
		Sentinel, "div", "0",
		node.NewProps().Set("class", "hero").Set("children", []interface{}{"a", "b"}),
	}

	payload, err := MarshalValue(original)
	require.NoError(t, err)

	decoded, err := UnmarshalValue([]byte(payload))
	require.NoError(t, err)

	again, err := MarshalValue(decoded)
	require.NoError(t, err)
	assert.Equal(t, payload, again)
}

func TestUnmarshalValueMalformed(t *testing.T) {
	for _, bad := range []string{"", "[1,", `{"k":}`, "[1] trailing"} {
		_, err := UnmarshalValue([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func FuzzScanner(f *testing.F) {
	f.Add("0:[\"$\",\"div\",\"0\",{}]\n")
	f.Add("1:I[\"./Foo.js\",[],\"default\"]\n2:[\"$\",\"$L1\",\"k\",{}]\n")
	f.Add("0:[\"a\nb\"]\n")
	f.Add("garbage without colon\n5:$@6")

	f.Fuzz(func(t *testing.T, input string) {
		s := NewScanner(strings.NewReader(input))
		for s.Scan() {
			if row, err := s.Row(); err == nil {
				reparsed, err := ParseRow(row.Format())
				if err != nil {
					t.Errorf("row %d does not re-parse: %v", row.ID, err)
				} else if reparsed != row {
					t.Errorf("row %d does not round-trip: %+v -> %+v", row.ID, row, reparsed)
				}
			}
		}
		// A scanner must terminate and never panic on arbitrary input.
	})
}
