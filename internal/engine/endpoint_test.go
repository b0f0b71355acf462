package engine

import (
	"io"
	"testing"
)

func TestEndpointLineRoundTrip(t *testing.T) {
	pr, pw := io.Pipe()
	ep := NewEndpoint(io.Discard, pr)

	go func() {
		_, _ = pw.Write([]byte("{\"jsonrpc\":\"2.0\"}\npartial"))
		_ = pw.Close()
	}()

	line, err := ep.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != `{"jsonrpc":"2.0"}` {
		t.Fatalf("unexpected line %q", line)
	}
	// Unterminated trailing fragment is surfaced before EOF.
	line, err = ep.ReadLine()
	if err != nil {
		t.Fatalf("read fragment: %v", err)
	}
	if string(line) != "partial" {
		t.Fatalf("unexpected fragment %q", line)
	}
	if _, err = ep.ReadLine(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestEndpointWriteAppendsNewline(t *testing.T) {
	pr, pw := io.Pipe()
	ep := NewEndpoint(pw, pr)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := pr.Read(buf)
		got <- buf[:n]
	}()
	if err := ep.WriteLine([]byte(`{"id":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if string(<-got) != "{\"id\":1}\n" {
		t.Fatal("line not newline-terminated")
	}
}

func TestEndpointWriteBrokenPipe(t *testing.T) {
	pr, pw := io.Pipe()
	ep := NewEndpoint(pw, pr)
	_ = pr.Close()
	if err := ep.WriteLine([]byte("x")); err == nil {
		t.Fatal("expected write error on closed pipe")
	}
}
