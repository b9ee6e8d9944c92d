// Package ring implements a fixed-capacity byte ring buffer shared by the
// datagram and signalling transports. It is not safe for concurrent use;
// callers must provide their own synchronisation.
package ring

// Buffer is a power-of-two-capacity ring of bytes. The zero value is not
// usable; construct with New.
type Buffer struct {
	data  []byte
	mask  int
	head  int // next write offset
	tail  int // next read offset
	count int
}

// New returns a Buffer with at least capacity slots, rounded up to the next
// power of two. Panics if capacity is <= 0.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Buffer{data: make([]byte, n), mask: n - 1}
}

// Len returns the number of bytes currently stored.
func (b *Buffer) Len() int { return b.count }

// Cap returns the total slot capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Push appends p to the buffer. It reports false without writing anything
// if p would overflow the remaining capacity.
func (b *Buffer) Push(p []byte) bool {
	if len(p) > len(b.data)-b.count {
		return false
	}
	for _, c := range p {
		b.data[b.head] = c
		b.head = (b.head + 1) & b.mask
	}
	b.count += len(p)
	return true
}

// PopView returns a view of the n oldest bytes without consuming them. If
// the requested run wraps the underlying array it is copied into scratch
// and scratch is returned; otherwise a direct slice into the internal array
// is returned. Callers must not retain the result past the next mutating
// call. n is clamped to Len().
func (b *Buffer) PopView(n int) []byte {
	if n > b.count {
		n = b.count
	}
	if n == 0 {
		return nil
	}
	if b.tail+n <= len(b.data) {
		return b.data[b.tail : b.tail+n]
	}
	scratch := make([]byte, n)
	first := len(b.data) - b.tail
	copy(scratch, b.data[b.tail:])
	copy(scratch[first:], b.data[:n-first])
	return scratch
}

// Consume discards the n oldest bytes, advancing the read cursor. n is
// clamped to Len().
func (b *Buffer) Consume(n int) {
	if n > b.count {
		n = b.count
	}
	b.tail = (b.tail + n) & b.mask
	b.count -= n
}

// Clear discards all buffered bytes without copying.
func (b *Buffer) Clear() {
	b.head, b.tail, b.count = 0, 0, 0
}
