package audio

import "sync"

// Buffer accumulates binary audio frames for one connection between the
// start of a recording and the drain that hands them to transcription.
// Bytes are opaque; the gateway never inspects or transcodes them.
type Buffer struct {
	mu  sync.Mutex
	buf []byte
}

func NewBuffer() *Buffer { return &Buffer{} }

// Append adds a frame and returns the total buffered size.
func (b *Buffer) Append(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(b.buf)
}

// Drain returns everything appended since the last drain, in arrival order,
// and resets the buffer. The swap is atomic: a concurrent append lands
// either wholly in the returned batch or wholly in the next one.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf
	b.buf = nil
	return out
}

// Len reports the currently buffered size.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
