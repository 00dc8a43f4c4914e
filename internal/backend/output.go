package backend

import (
	"os"
	"sync"
)

// chunkWriter queues copies of written chunks on a bounded channel. A full
// queue blocks Write, which back-pressures the child through its pipe.
type chunkWriter struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func newChunkWriter(depth int) *chunkWriter {
	return &chunkWriter{ch: make(chan []byte, depth)}
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}

	w.ch <- append([]byte(nil), p...)

	return len(p), nil
}

func (w *chunkWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}
