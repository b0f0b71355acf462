package engine

import (
	"bufio"
	"io"
	"sync"
)

// Endpoint owns the byte-stream pair connected to the engine process:
// the write side toward its stdin and the line-delimited read side from
// its stdout. It does byte-level I/O only; framing above one line and
// message interpretation belong to the Correlator.
type Endpoint struct {
	mu sync.Mutex
	w  io.Writer
	r  *bufio.Reader
}

// NewEndpoint wraps the engine's stdin writer and stdout reader.
func NewEndpoint(w io.Writer, r io.Reader) *Endpoint {
	return &Endpoint{w: w, r: bufio.NewReader(r)}
}

// WriteLine writes one message followed by a newline. io.Writer retries
// partial writes internally; any error means the pipe is broken. The
// payload and delimiter go out in a single Write so the framing is
// atomic at the writer.
func (e *Endpoint) WriteLine(line []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := e.w.Write(buf)
	return err
}

// ReadLine blocks until a full newline-terminated line is available and
// returns it without the delimiter. On stream close it returns io.EOF;
// a final unterminated fragment is returned before the EOF surfaces.
func (e *Endpoint) ReadLine() ([]byte, error) {
	line, err := e.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return line, nil
		}
		return nil, err
	}
	return line[:len(line)-1], nil
}
