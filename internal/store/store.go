package store

import (
	"fmt"

	"github.com/pkg/errors"
	"libdb.so/trainboard/internal/dataconv"
)

// ReaderMode selects the frames shown on the board.
type ReaderMode uint8

const (
	// ReaderLive reads the newest frame.
	ReaderLive ReaderMode = iota
	// ReaderHistory replays the stored frames from the oldest.
	ReaderHistory
	// ReaderOffline replays the offline dataset.
	ReaderOffline
)

// String returns a string representation of the mode.
func (m ReaderMode) String() string {
	switch m {
	case ReaderLive:
		return "live"
	case ReaderHistory:
		return "history"
	case ReaderOffline:
		return "offline"
	default:
		return fmt.Sprintf("ReaderMode(%d)", m)
	}
}

// WriterMode selects how received data is stored.
type WriterMode uint8

const (
	// WriterSingle appends a single frame.
	WriterSingle WriterMode = iota
	// WriterMultiple replaces the whole history.
	WriterMultiple
)

// String returns a string representation of the mode.
func (m WriterMode) String() string {
	switch m {
	case WriterSingle:
		return "single"
	case WriterMultiple:
		return "multiple"
	default:
		return fmt.Sprintf("WriterMode(%d)", m)
	}
}

// Reader reads frames.
type Reader interface {
	// Read copies the next frame into out and returns its length. It returns
	// 0 if there is no frame or the frame does not fit in out.
	Read(out []byte) int
	// Reset rewinds the reader.
	Reset()
}

// Writer stores received data.
type Writer interface {
	// Save stores data and returns true on success.
	Save(data []byte) bool
}

// Manager owns the frame ring and the readers and writers working on it.
// Like Ring, it is not safe for concurrent use.
type Manager struct {
	ring *Ring

	live     liveReader
	history  historyReader
	offline  historyReader
	single   singleWriter
	multiple multipleWriter

	reader ReaderMode
	writer WriterMode
}

// NewManager creates a manager storing historyLength frames. offline is the
// dataset replayed in offline mode; it is never written to.
func NewManager(historyLength int, offline *Ring) *Manager {
	ring := NewRing(historyLength)
	m := &Manager{
		ring:     ring,
		live:     liveReader{ring: ring},
		history:  historyReader{ring: ring},
		offline:  historyReader{ring: offline},
		single:   singleWriter{ring: ring},
		multiple: multipleWriter{ring: ring},
	}
	m.Reset()
	return m
}

// Reset goes back to live reading with history writing and drops every
// stored frame.
func (m *Manager) Reset() {
	m.reader = ReaderLive
	m.writer = WriterMultiple
	m.ring.Clear()
	m.history.Reset()
}

// SetReaderMode sets the reader mode.
func (m *Manager) SetReaderMode(mode ReaderMode) { m.reader = mode }

// ReaderMode returns the reader mode.
func (m *Manager) ReaderMode() ReaderMode { return m.reader }

// SetWriterMode sets the writer mode.
func (m *Manager) SetWriterMode(mode WriterMode) { m.writer = mode }

// WriterMode returns the writer mode.
func (m *Manager) WriterMode() WriterMode { return m.writer }

// Reader returns the reader for the current mode, or nil for an unknown mode.
func (m *Manager) Reader() Reader {
	switch m.reader {
	case ReaderLive:
		return &m.live
	case ReaderHistory:
		return &m.history
	case ReaderOffline:
		return &m.offline
	default:
		return nil
	}
}

// Writer returns the writer for the current mode, or nil for an unknown mode.
func (m *Manager) Writer() Writer {
	switch m.writer {
	case WriterSingle:
		return &m.single
	case WriterMultiple:
		return &m.multiple
	default:
		return nil
	}
}

type liveReader struct {
	ring *Ring
}

func (r *liveReader) Read(out []byte) int {
	f := r.ring.Back()
	if f == nil || len(out) == 0 || f.Length > len(out) {
		return 0
	}
	return copy(out, f.Bytes())
}

func (r *liveReader) Reset() {}

type historyReader struct {
	ring  *Ring
	index int
}

func (r *historyReader) Read(out []byte) int {
	if r.ring == nil || len(out) == 0 {
		return 0
	}

	f := r.ring.At(r.index)
	if f == nil || f.Length > len(out) {
		return 0
	}

	n := copy(out, f.Bytes())
	r.index = (r.index + 1) % r.ring.Cap()
	return n
}

func (r *historyReader) Reset() { r.index = 0 }

type singleWriter struct {
	ring *Ring
}

func (w *singleWriter) Save(data []byte) bool {
	if len(data) == 0 || len(data) > dataconv.MaxFrameSize {
		return false
	}
	w.ring.Push(data)
	return true
}

type multipleWriter struct {
	ring *Ring
}

func (w *multipleWriter) Save(data []byte) bool {
	if len(data) == 0 || len(data) > w.ring.Cap()*dataconv.MaxFrameSize {
		return false
	}

	w.ring.Clear()
	pushFrames(w.ring, data)
	return w.ring.Full()
}

func pushFrames(ring *Ring, data []byte) {
	dataconv.Frames(data, ring.Cap(), func(frame []byte) bool {
		if len(frame) > dataconv.MaxFrameSize {
			return false
		}
		ring.Push(frame)
		return true
	})
}

// LoadOffline creates a read-only ring from a history of exactly
// historyLength frames.
func LoadOffline(data []byte, historyLength int) (*Ring, error) {
	if !dataconv.IsHistoryValid(data, historyLength) {
		return nil, errors.New("invalid offline history")
	}

	ring := NewRing(historyLength)
	pushFrames(ring, data)
	return ring, nil
}
