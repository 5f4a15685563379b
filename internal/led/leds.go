package led

import (
	"unsafe"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// RGBColor is a color as sent to the LED controller.
type RGBColor [3]uint8

// RGBFromColor converts a packed color, scaling it by scale/255 the way
// 8-bit LED drivers do.
func RGBFromColor(c Color, scale uint8) RGBColor {
	r, g, b := c.RGB()
	return RGBColor{
		scale8(r, scale),
		scale8(g, scale),
		scale8(b, scale),
	}
}

func scale8(v, scale uint8) uint8 {
	return uint8((uint16(v) * (uint16(scale) + 1)) >> 8)
}

// Color packs the color back into a Color.
func (c RGBColor) Color() Color {
	return Color(c[0])<<16 | Color(c[1])<<8 | Color(c[2])
}

// Hex returns the color as a #rrggbb string.
func (c RGBColor) Hex() string {
	return colorful.Color{
		R: float64(c[0]) / 255,
		G: float64(c[1]) / 255,
		B: float64(c[2]) / 255,
	}.Hex()
}

// UnmarshalText parses a hex color such as "#8E44AD".
func (c *RGBColor) UnmarshalText(text []byte) error {
	parsed, err := colorful.Hex(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid color %q", text)
	}
	r, g, b := parsed.RGB255()
	*c = RGBColor{r, g, b}
	return nil
}

// MarshalText formats the color as a hex string.
func (c RGBColor) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// LEDs is the pixel buffer of a strip. It is a preallocated slice of
// RGBColor.
type LEDs []RGBColor

// NewLEDs creates a new pixel buffer. Colors are initialized to black (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// AsPixels returns the buffer as a slice of uint8 values sharing the same
// memory. Each LED is represented by three values, one for each channel.
func (l LEDs) AsPixels() []uint8 {
	if len(l) == 0 {
		return nil
	}
	return unsafe.Slice((*uint8)(unsafe.Pointer(&l[0])), 3*len(l))
}

// Fill sets every LED of the buffer to c.
func (l LEDs) Fill(c RGBColor) {
	for i := range l {
		l[i] = c
	}
}

// Draw copies other into the buffer starting at start. It stops when either
// buffer is exhausted and returns the number of LEDs written.
func (l LEDs) Draw(start int, other LEDs) int {
	if start >= len(l) {
		return 0
	}
	return copy(l[start:], other)
}

// Hex returns every LED as a #rrggbb string.
func (l LEDs) Hex() []string {
	hex := make([]string, len(l))
	for i, c := range l {
		hex[i] = c.Hex()
	}
	return hex
}
