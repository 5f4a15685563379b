// Package store buffers the frames received from the server and hands them
// out according to the current display mode.
package store

import "libdb.so/trainboard/internal/dataconv"

// Frame is a single frame stored inline.
type Frame struct {
	Length int
	Data   [dataconv.MaxFrameSize]byte
}

// Bytes returns the content of the frame.
func (f *Frame) Bytes() []byte {
	return f.Data[:f.Length]
}

// Ring is a fixed-capacity circular buffer of frames. Pushing to a full ring
// evicts the oldest frame. A Ring is not safe for concurrent use.
type Ring struct {
	frames []Frame // one slot more than the capacity
	head   int     // oldest frame
	tail   int     // next free slot
}

// NewRing creates a ring holding at most capacity frames.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("store: non-positive ring capacity")
	}
	return &Ring{frames: make([]Frame, capacity+1)}
}

// Cap returns the maximum number of frames in the ring.
func (r *Ring) Cap() int { return len(r.frames) - 1 }

// Len returns the number of frames in the ring.
func (r *Ring) Len() int {
	return (r.tail - r.head + len(r.frames)) % len(r.frames)
}

// Full returns true if the ring holds Cap frames.
func (r *Ring) Full() bool { return r.Len() == r.Cap() }

// Clear removes every frame.
func (r *Ring) Clear() {
	r.head = 0
	r.tail = 0
}

// Push copies data into a new frame at the back of the ring. data must not be
// longer than dataconv.MaxFrameSize.
func (r *Ring) Push(data []byte) {
	f := &r.frames[r.tail]
	f.Length = copy(f.Data[:], data)

	r.tail = (r.tail + 1) % len(r.frames)
	if r.tail == r.head {
		r.head = (r.head + 1) % len(r.frames)
	}
}

// Back returns the newest frame, or nil if the ring is empty.
func (r *Ring) Back() *Frame {
	if r.Len() == 0 {
		return nil
	}
	return &r.frames[(r.tail-1+len(r.frames))%len(r.frames)]
}

// At returns the i-th frame counted from the oldest, or nil if there is no
// such frame.
func (r *Ring) At(i int) *Frame {
	if i < 0 || i >= r.Len() {
		return nil
	}
	return &r.frames[(r.head+i)%len(r.frames)]
}
