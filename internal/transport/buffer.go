package transport

// ChunkedBuffer is an append-only, ordered sequence of byte segments. It
// supports querying the total number of unread bytes and consuming an exact
// byte count that may span several segments, evicting each segment from the
// front as soon as it is fully drained. It never reorders or drops undrained
// bytes.
//
// One ChunkedBuffer exists per direction of a tunnel; it is only ever
// touched by the task that owns that tunnel (§5), so it needs no locking.
type ChunkedBuffer struct {
	segments []segment
	size     int
}

type segment struct {
	data []byte
	off  int
}

// Append adds a new segment to the back of the buffer. The slice is kept by
// reference, not copied; callers must not mutate it afterward.
func (b *ChunkedBuffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.segments = append(b.segments, segment{data: data})
	b.size += len(data)
}

// Len reports the number of unread bytes currently buffered.
func (b *ChunkedBuffer) Len() int {
	return b.size
}

// Read consumes exactly n bytes from the front of the buffer, spanning
// segments as needed and evicting any segment it fully drains. It reports ok
// = false without consuming anything if fewer than n bytes are available.
func (b *ChunkedBuffer) Read(n int) (out []byte, ok bool) {
	if n < 0 || n > b.size {
		return nil, false
	}
	if n == 0 {
		return []byte{}, true
	}

	out = make([]byte, 0, n)
	for len(out) < n {
		seg := &b.segments[0]
		remaining := n - len(out)
		available := len(seg.data) - seg.off
		take := available
		if take > remaining {
			take = remaining
		}
		out = append(out, seg.data[seg.off:seg.off+take]...)
		seg.off += take
		if seg.off >= len(seg.data) {
			b.segments = b.segments[1:]
		}
	}
	b.size -= n
	return out, true
}
