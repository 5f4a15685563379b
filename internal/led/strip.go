package led

// TestColor is the color BufferStrip.Test fills the strip with.
var TestColor = RGBColor{0xFF, 0xFF, 0xFF}

// BufferStrip is a Strip backed by a pixel buffer. Presenters read the buffer
// when they are asked to show it.
type BufferStrip struct {
	leds LEDs
}

var _ Strip = (*BufferStrip)(nil)

// NewBufferStrip creates a strip of the given size.
func NewBufferStrip(size int) *BufferStrip {
	return &BufferStrip{leds: NewLEDs(size)}
}

// NewBufferStrips creates one strip per size.
func NewBufferStrips(sizes []int) []*BufferStrip {
	strips := make([]*BufferStrip, len(sizes))
	for i, size := range sizes {
		strips[i] = NewBufferStrip(size)
	}
	return strips
}

// Init turns the strip off.
func (s *BufferStrip) Init() { s.ClearAll() }

// Set sets the LED at pos. Positions outside the strip are ignored.
func (s *BufferStrip) Set(pos int, color Color, scale uint8) {
	if pos < 0 || pos >= len(s.leds) {
		return
	}
	s.leds[pos] = RGBFromColor(color, scale)
}

// ClearAll turns every LED off.
func (s *BufferStrip) ClearAll() { s.leds.Fill(RGBColor{}) }

// Test fills the strip with TestColor.
func (s *BufferStrip) Test() { s.leds.Fill(TestColor) }

// Size returns the number of LEDs.
func (s *BufferStrip) Size() int { return len(s.leds) }

// LEDs returns the pixel buffer of the strip. The buffer is shared with the
// strip.
func (s *BufferStrip) LEDs() LEDs { return s.leds }

// AsStrips converts buffer strips to the Strip interface.
func AsStrips(strips []*BufferStrip) []Strip {
	out := make([]Strip, len(strips))
	for i, s := range strips {
		out[i] = s
	}
	return out
}
