// Package serial frames the receipt-printer byte stream into chunks.
// The physical line settings (8N1, baud per dialect) are configured on
// the tty outside the agent; here the port is just a byte stream.
package serial

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pitstone-retail/ecr-sync/pkg/normalize"
)

// esc delimits chunks in the 520's polling output.
const esc = 0x1b

// Producer yields at most one text chunk per call. ok is false when the
// stream is exhausted; a live serial port never exhausts.
type Producer interface {
	Next() (chunk string, ok bool, err error)
}

// StreamProducer frames an io.Reader by the dialect's delimiter: newline
// for the 420's line printer, ESC for the 520's polling stream.
type StreamProducer struct {
	r     *bufio.Reader
	delim byte
	done  bool
}

// NewStreamProducer wraps a byte stream for one dialect.
func NewStreamProducer(r io.Reader, dialect normalize.Dialect) *StreamProducer {
	delim := byte('\n')
	if dialect == normalize.Dialect520 {
		delim = esc
	}
	return &StreamProducer{r: bufio.NewReader(r), delim: delim}
}

// Next reads one chunk. The delimiter and any carriage return are
// stripped; the chunk body is otherwise untouched.
func (p *StreamProducer) Next() (string, bool, error) {
	if p.done {
		return "", false, nil
	}

	chunk, err := p.r.ReadString(p.delim)
	if err == io.EOF {
		p.done = true
		chunk = strings.TrimRight(chunk, "\r")
		if chunk == "" {
			return "", false, nil
		}
		return chunk, true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read chunk: %w", err)
	}

	chunk = strings.TrimSuffix(chunk, string(p.delim))
	chunk = strings.TrimRight(chunk, "\r")
	return chunk, true, nil
}

// OpenPort opens the configured tty for reading. The device must already
// carry the correct line discipline; the agent never writes to it.
func OpenPort(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return f, nil
}
