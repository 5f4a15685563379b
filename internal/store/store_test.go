package store

import (
	"bytes"
	"testing"

	"libdb.so/trainboard/internal/dataconv"
	"libdb.so/trainboard/internal/led"
)

const testHistoryLength = 5

func testFrame(tag uint8, count int) []byte {
	leds := make([]led.Led, count)
	for i := range leds {
		leds[i] = led.New(0, uint8(i), led.Color(tag))
	}
	return dataconv.AppendFrame(nil, leds)
}

func testHistory(base uint8, frames int) []byte {
	var history []byte
	for i := 0; i < frames; i++ {
		history = append(history, testFrame(base+uint8(i), i%3+1)...)
	}
	return history
}

func TestRing(t *testing.T) {
	r := NewRing(3)
	if r.Len() != 0 || r.Back() != nil || r.At(0) != nil {
		t.Fatal("new ring not empty")
	}

	for i := 1; i <= 5; i++ {
		r.Push([]byte{byte(i)})
	}

	if !r.Full() || r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	for i, want := range []byte{3, 4, 5} {
		if got := r.At(i).Bytes(); !bytes.Equal(got, []byte{want}) {
			t.Fatalf("At(%d) = %v, want %v", i, got, want)
		}
	}
	if got := r.Back().Bytes(); !bytes.Equal(got, []byte{5}) {
		t.Fatalf("Back = %v, want [5]", got)
	}
	if r.At(3) != nil {
		t.Fatal("At past the end returned a frame")
	}

	r.Clear()
	if r.Len() != 0 {
		t.Fatal("ring not empty after Clear")
	}
}

func TestManager_Modes(t *testing.T) {
	m := NewManager(testHistoryLength, nil)

	if m.ReaderMode() != ReaderLive || m.WriterMode() != WriterMultiple {
		t.Fatalf("initial modes = %v/%v", m.ReaderMode(), m.WriterMode())
	}
	if _, ok := m.Writer().(*multipleWriter); !ok {
		t.Fatalf("Writer = %T, want history writer", m.Writer())
	}

	m.SetWriterMode(WriterSingle)
	if _, ok := m.Writer().(*singleWriter); !ok {
		t.Fatalf("Writer = %T, want live writer", m.Writer())
	}
	m.SetWriterMode(WriterMode(42))
	if m.Writer() != nil {
		t.Fatal("Writer for an unknown mode is not nil")
	}

	m.SetReaderMode(ReaderHistory)
	if m.Reader() != Reader(&m.history) {
		t.Fatal("Reader is not the history reader")
	}
	m.SetReaderMode(ReaderOffline)
	if m.Reader() != Reader(&m.offline) {
		t.Fatal("Reader is not the offline reader")
	}

	m.Reset()
	if m.ReaderMode() != ReaderLive || m.WriterMode() != WriterMultiple {
		t.Fatalf("modes after Reset = %v/%v", m.ReaderMode(), m.WriterMode())
	}
}

func TestManager_LiveCircularity(t *testing.T) {
	for k := 0; k < 2*testHistoryLength; k++ {
		m := NewManager(testHistoryLength, nil)
		m.SetWriterMode(WriterSingle)

		var last []byte
		for i := 0; i < testHistoryLength+k; i++ {
			last = testFrame(uint8(i), i%4+1)
			if !m.Writer().Save(last) {
				t.Fatalf("k=%d: Save #%d failed", k, i)
			}
		}

		out := make([]byte, dataconv.MaxFrameSize)
		n := m.Reader().Read(out)
		if !bytes.Equal(out[:n], last) {
			t.Fatalf("k=%d: Read = %v, want %v", k, out[:n], last)
		}
	}
}

func TestManager_LiveWriterRejects(t *testing.T) {
	m := NewManager(testHistoryLength, nil)
	m.SetWriterMode(WriterSingle)

	if m.Writer().Save(nil) {
		t.Fatal("Save accepted empty data")
	}
	if m.Writer().Save(make([]byte, dataconv.MaxFrameSize+1)) {
		t.Fatal("Save accepted oversized data")
	}
}

func TestManager_LiveReaderRejects(t *testing.T) {
	m := NewManager(testHistoryLength, nil)
	out := make([]byte, dataconv.MaxFrameSize)
	if n := m.Reader().Read(out); n != 0 {
		t.Fatalf("Read from empty store = %d, want 0", n)
	}

	m.SetWriterMode(WriterSingle)
	frame := testFrame(1, 3)
	m.Writer().Save(frame)

	if n := m.Reader().Read(out[:len(frame)-1]); n != 0 {
		t.Fatalf("Read into short buffer = %d, want 0", n)
	}
	if n := m.Reader().Read(nil); n != 0 {
		t.Fatalf("Read into nil buffer = %d, want 0", n)
	}
}

func TestManager_HistoryReadsInOrder(t *testing.T) {
	m := NewManager(testHistoryLength, nil)
	history := testHistory(10, testHistoryLength)
	if !m.Writer().Save(history) {
		t.Fatal("Save history failed")
	}
	m.SetReaderMode(ReaderHistory)

	out := make([]byte, dataconv.MaxFrameSize)
	var read []byte
	for i := 0; i < testHistoryLength; i++ {
		n := m.Reader().Read(out)
		if n == 0 {
			t.Fatalf("Read #%d failed", i)
		}
		read = append(read, out[:n]...)
	}
	if !bytes.Equal(read, history) {
		t.Fatal("history read back differs from history written")
	}

	// The cursor wraps around.
	n := m.Reader().Read(out)
	if !bytes.Equal(out[:n], testFrame(10, 1)) {
		t.Fatalf("Read after wrap = %v", out[:n])
	}

	m.Reader().Reset()
	n = m.Reader().Read(out)
	if !bytes.Equal(out[:n], testFrame(10, 1)) {
		t.Fatalf("Read after Reset = %v", out[:n])
	}
}

func TestManager_HistoryRewrite(t *testing.T) {
	m := NewManager(testHistoryLength, nil)
	m.Writer().Save(testHistory(10, testHistoryLength))

	replacement := testHistory(100, testHistoryLength)
	if !m.Writer().Save(replacement) {
		t.Fatal("Save replacement failed")
	}

	m.SetReaderMode(ReaderHistory)
	out := make([]byte, dataconv.MaxFrameSize)
	n := m.Reader().Read(out)
	if !bytes.Equal(out[:n], testFrame(100, 1)) {
		t.Fatalf("first frame = %v, want the replacement", out[:n])
	}
}

func TestManager_HistoryWriterRejects(t *testing.T) {
	m := NewManager(testHistoryLength, nil)

	if m.Writer().Save(nil) {
		t.Fatal("Save accepted empty data")
	}
	if m.Writer().Save(make([]byte, testHistoryLength*dataconv.MaxFrameSize+1)) {
		t.Fatal("Save accepted oversized data")
	}
	if m.Writer().Save(testHistory(0, testHistoryLength-1)) {
		t.Fatal("Save accepted a short history")
	}
	if m.ring.Len() != testHistoryLength-1 {
		t.Fatalf("ring holds %d frames after a short history, want %d", m.ring.Len(), testHistoryLength-1)
	}
}

func TestManager_LiveWriteAfterHistory(t *testing.T) {
	m := NewManager(testHistoryLength, nil)
	m.Writer().Save(testHistory(10, testHistoryLength))

	m.SetWriterMode(WriterSingle)
	live := testFrame(99, 2)
	m.Writer().Save(live)

	// The oldest frame was evicted.
	m.SetReaderMode(ReaderHistory)
	out := make([]byte, dataconv.MaxFrameSize)
	n := m.Reader().Read(out)
	if !bytes.Equal(out[:n], testFrame(11, 2)) {
		t.Fatalf("oldest frame = %v, want the second frame of the history", out[:n])
	}

	m.SetReaderMode(ReaderLive)
	n = m.Reader().Read(out)
	if !bytes.Equal(out[:n], live) {
		t.Fatalf("live frame = %v, want %v", out[:n], live)
	}
}

func TestManager_Offline(t *testing.T) {
	offlineData := testHistory(50, testHistoryLength)
	offline, err := LoadOffline(offlineData, testHistoryLength)
	if err != nil {
		t.Fatal("LoadOffline:", err)
	}

	m := NewManager(testHistoryLength, offline)
	m.SetReaderMode(ReaderOffline)

	out := make([]byte, dataconv.MaxFrameSize)
	var read []byte
	for i := 0; i < 2*testHistoryLength; i++ {
		n := m.Reader().Read(out)
		if n == 0 {
			t.Fatalf("offline Read #%d failed", i)
		}
		if i < testHistoryLength {
			read = append(read, out[:n]...)
		}
	}
	if !bytes.Equal(read, offlineData) {
		t.Fatal("offline frames differ from the dataset")
	}

	// Writers never touch the offline dataset.
	m.Writer().Save(testHistory(0, testHistoryLength))
	if got := offline.At(0).Bytes(); !bytes.Equal(got, testFrame(50, 1)) {
		t.Fatalf("offline dataset modified: %v", got)
	}
}

func TestLoadOffline_Invalid(t *testing.T) {
	if _, err := LoadOffline(testHistory(0, testHistoryLength-1), testHistoryLength); err == nil {
		t.Fatal("LoadOffline accepted a short history")
	}
}
