package testhelpers

import (
	"io"
	"strings"
	"sync"
	"testing"
)

// Writer sends each written line to tb.Log so the output only shows up for failing or verbose tests.
type Writer struct {
	tb   testing.TB
	mu   sync.Mutex
	done bool
}

// NewWriter creates a Writer for tb. Writing after tb has finished panics, which usually means a server or
// background loop outlived its test.
func NewWriter(tb testing.TB) io.Writer {
	w := &Writer{tb: tb, mu: sync.Mutex{}, done: false}
	tb.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})
	return w
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		panic("testhelpers: write after " + w.tb.Name() + " finished; is something still running after cleanup?")
	}
	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.tb.Log(line)
		}
	}
	return len(p), nil
}
