package audio

import "sync"

// UtteranceBuffer accumulates the PCM16 chunks of one user utterance so a
// playable recording can be assembled after the transcript arrives. When a
// byte limit is set, the oldest audio is trimmed to stay under it. Safe for
// concurrent use; the capture callback appends while the session reads.
type UtteranceBuffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
}

// NewUtteranceBuffer builds a buffer. maxBytes <= 0 means unbounded.
func NewUtteranceBuffer(maxBytes int) *UtteranceBuffer {
	return &UtteranceBuffer{maxBytes: maxBytes}
}

// Append adds one chunk, trimming the oldest bytes past the limit.
func (b *UtteranceBuffer) Append(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, chunk...)
	if b.maxBytes > 0 && len(b.data) > b.maxBytes {
		b.data = b.data[len(b.data)-b.maxBytes:]
	}
}

// Bytes returns a copy of the accumulated audio.
func (b *UtteranceBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len reports the accumulated byte count.
func (b *UtteranceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Reset discards the accumulated audio for a new utterance.
func (b *UtteranceBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}
