package results

import "sync"

// DefaultBufferCap bounds in-memory result history. Old entries are evicted
// FIFO once the buffer is full.
const DefaultBufferCap = 100

// Buffer is a fixed-capacity ring of recent detection results.
type Buffer struct {
	mu      sync.Mutex
	entries []DetectionResult
	head    int
	full    bool
	cap     int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	return &Buffer{entries: make([]DetectionResult, capacity), cap: capacity}
}

// Append stores a result, evicting the oldest entry when full.
func (b *Buffer) Append(r DetectionResult) {
	b.mu.Lock()
	b.entries[b.head] = r
	b.head = (b.head + 1) % b.cap
	if b.head == 0 {
		b.full = true
	}
	b.mu.Unlock()
}

// Len reports how many results are currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return b.cap
	}
	return b.head
}

// Recent returns up to n results, newest first. n <= 0 returns everything.
func (b *Buffer) Recent(n int) []DetectionResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.head
	if b.full {
		size = b.cap
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]DetectionResult, 0, n)
	for i := 1; i <= n; i++ {
		idx := (b.head - i + b.cap) % b.cap
		out = append(out, b.entries[idx])
	}
	return out
}
