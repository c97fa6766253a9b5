package wire

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Scanner splits a stream into rows. Unlike a plain line scanner it is
// quote aware: a newline inside a JSON string does not terminate the row.
type Scanner struct {
	r    *bufio.Reader
	line string
	err  error
}

// NewScanner creates a scanner reading rows from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Scan advances to the next raw row line. It returns false at end of
// stream or on a read error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}

	var sb strings.Builder
	inQuote := false
	escaped := false

	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if err != io.EOF {
				s.err = err
			}
			if sb.Len() > 0 {
				// A final row without a trailing newline still counts; a
				// non-EOF error surfaces on the next Scan call.
				s.line = sb.String()
				return true
			}
			return false
		}

		if b == '\n' && !inQuote {
			if sb.Len() == 0 {
				// Blank lines between rows are tolerated.
				continue
			}
			s.line = sb.String()
			return true
		}

		sb.WriteByte(b)

		switch {
		case escaped:
			escaped = false
		case b == '\\' && inQuote:
			escaped = true
		case b == '"':
			inQuote = !inQuote
		}
	}
}

// Text returns the raw line for the current row.
func (s *Scanner) Text() string {
	return s.line
}

// Row parses the current line. A parse error here means the row should be
// logged and skipped; the scanner itself remains usable.
func (s *Scanner) Row() (Row, error) {
	return ParseRow(s.line)
}

// Err returns the first non-EOF read error encountered.
func (s *Scanner) Err() error {
	return s.err
}

// Writer serializes rows onto a stream. Writes are serialized so that the
// boundary engine's goroutines can emit replacement rows concurrently
// with the walker.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a row writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRow writes one row and its terminating newline.
func (w *Writer) WriteRow(row Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A single write keeps one row per write for sinks that frame on
	// write boundaries (flushing HTTP bodies, websocket messages).
	_, err := io.WriteString(w.w, row.Format()+"\n")

	return err
}
