// Package ring is a single-producer, single-consumer byte ring with edge
// notifications. The USART driver fills it from interrupt context and
// stream readers drain it.
package ring

import "sync/atomic"

// Ring is lock free for one producer and one consumer.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // empty -> non-empty edge
	writable chan struct{} // full -> non-full edge
}

// New allocates a ring. size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("ring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

func (r *Ring) Cap() int { return len(r.buf) }

func (r *Ring) Space() int {
	return int(r.size() - (r.wr.Load() - r.rd.Load()))
}

func (r *Ring) Available() int {
	return int(r.wr.Load() - r.rd.Load())
}

// TryWriteFrom copies as much of src as fits and returns the count. It
// never blocks.
func (r *Ring) TryWriteFrom(src []byte) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	before := wr - rd
	space := int(r.size() - before)
	if space <= 0 {
		return 0
	}
	n = len(src)
	if n > space {
		n = space
	}

	idx := wr & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(r.buf[idx:idx+uint32(first)], src[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], src[first:n])
	}
	r.wr.Store(wr + uint32(n)) // release

	if before == 0 {
		notify(r.readable)
	}
	return n
}

// TryWriteByte stores one byte. It reports false when the ring is full.
func (r *Ring) TryWriteByte(b byte) bool {
	var one [1]byte
	one[0] = b
	return r.TryWriteFrom(one[:]) == 1
}

// TryReadInto copies up to len(dst) buffered bytes and returns the count.
func (r *Ring) TryReadInto(dst []byte) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	avail := int(wr - rd)
	if avail <= 0 {
		return 0
	}
	n = len(dst)
	if n > avail {
		n = avail
	}

	idx := rd & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[idx:idx+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	r.rd.Store(rd + uint32(n)) // release

	if wr-rd == r.size() {
		notify(r.writable)
	}
	return n
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Readable fires when the ring goes from empty to non-empty. Consumers
// must re-check Available after waking.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable fires when the ring goes from full to non-full.
func (r *Ring) Writable() <-chan struct{} { return r.writable }
