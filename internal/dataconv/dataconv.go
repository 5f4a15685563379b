// Package dataconv validates and decodes the frames sent by the trainboard
// server.
//
// A frame is a big-endian 16-bit LED count followed by count records of 5
// bytes each: strip, position, red, green, blue. A history is a plain
// concatenation of frames.
package dataconv

import (
	"encoding/binary"
	"log/slog"

	"libdb.so/trainboard/internal/led"
)

const (
	// HeaderSize is the size of the LED count header of a frame.
	HeaderSize = 2
	// BytesPerLed is the size of a single LED record.
	BytesPerLed = 5
	// MaxFrameSize is the size of a frame holding led.MaxLeds LEDs.
	MaxFrameSize = HeaderSize + BytesPerLed*led.MaxLeds
)

// FrameSize returns the size of a frame declaring count LEDs.
func FrameSize(count int) int {
	return HeaderSize + BytesPerLed*count
}

// DeclaredCount returns the LED count in the header of the frame starting at
// data[0]. data must hold at least HeaderSize bytes.
func DeclaredCount(data []byte) int {
	return int(binary.BigEndian.Uint16(data))
}

// IsFrameValid returns true if data is exactly one frame.
func IsFrameValid(data []byte) bool {
	if len(data) < HeaderSize || len(data) > MaxFrameSize {
		slog.Debug(
			"rejecting frame with invalid length",
			"length", len(data))
		return false
	}

	if count := DeclaredCount(data); len(data) != FrameSize(count) {
		slog.Debug(
			"rejecting frame with mismatched LED count",
			"length", len(data),
			"count", count)
		return false
	}

	return true
}

// IsHistoryValid returns true if data is exactly the given number of frames.
func IsHistoryValid(data []byte, frames int) bool {
	if len(data) == 0 || frames <= 0 || len(data) > frames*MaxFrameSize {
		slog.Debug(
			"rejecting history with invalid length",
			"length", len(data),
			"frames", frames)
		return false
	}

	var n int
	end := Frames(data, frames, func(frame []byte) bool {
		if !IsFrameValid(frame) {
			return false
		}
		n++
		return true
	})

	if n != frames || end != len(data) {
		slog.Debug(
			"rejecting history",
			"length", len(data),
			"valid_frames", n,
			"frames", frames,
			"consumed", end)
		return false
	}

	return true
}

// Frames walks the frames of a history using their headers. It calls f for at
// most max frames and stops when f returns false, or when the next header or
// frame would run past the end of data. It returns the offset of the first
// byte that was not consumed.
func Frames(data []byte, max int, f func(frame []byte) bool) int {
	var start int
	for i := 0; i < max && start+HeaderSize <= len(data); i++ {
		end := start + FrameSize(DeclaredCount(data[start:]))
		if end > len(data) {
			break
		}
		if !f(data[start:end]) {
			break
		}
		start = end
	}
	return start
}

// ToLeds decodes the frame in data into out. It returns false if data is
// empty or out has no room; otherwise it returns the number of decoded LEDs,
// which is 0 if the declared count does not match the length of data or does
// not fit in out. ToLeds does not validate the LED records themselves.
func ToLeds(data []byte, out []led.Led) (int, bool) {
	if len(data) == 0 || len(out) == 0 {
		return 0, false
	}

	if len(data) < HeaderSize {
		return 0, true
	}

	count := DeclaredCount(data)
	if len(data) != FrameSize(count) || count > len(out) {
		slog.Debug(
			"cannot decode frame",
			"length", len(data),
			"count", count,
			"capacity", len(out))
		return 0, true
	}

	for i := 0; i < count; i++ {
		rec := data[HeaderSize+i*BytesPerLed:]
		out[i] = led.New(rec[0], rec[1], led.Color(rec[2])<<16|led.Color(rec[3])<<8|led.Color(rec[4]))
	}

	return count, true
}

// AppendFrame appends a frame holding leds to dst.
func AppendFrame(dst []byte, leds []led.Led) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(leds)))
	for _, l := range leds {
		r, g, b := l.Color.RGB()
		dst = append(dst, uint8(l.Strip()), uint8(l.Position()), r, g, b)
	}
	return dst
}
