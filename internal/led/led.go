// Package led contains the LED model of the trainboard: LEDs addressed by
// strip and position, the strips and presenters that display them, and the
// Manager that animates transitions between LED sets.
package led

import "fmt"

// MaxLeds is the maximum number of LEDs in a single frame.
const MaxLeds = 312

// Color is a 24-bit RGB color packed as 0xRRGGBB.
type Color uint32

const (
	Black  Color = 0x000000
	White  Color = 0xFFFFFF
	Red    Color = 0xFF0000
	Green  Color = 0x00FF00
	Blue   Color = 0x0000FF
	Yellow Color = 0xF7DC6F
	Purple Color = 0x8E44AD
)

// RGB returns the color channels.
func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// String returns the color formatted as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xFFFFFF)
}

// Led is a single LED of a frame. Its ID packs the strip and the position on
// the strip.
type Led struct {
	ID    uint16
	Color Color
	Scale uint8
}

// New creates an LED at full scale.
func New(strip, position uint8, color Color) Led {
	return Led{
		ID:    uint16(strip)<<8 | uint16(position),
		Color: color,
		Scale: 0xFF,
	}
}

// Strip returns the strip index of the LED.
func (l Led) Strip() int { return int(l.ID >> 8) }

// Position returns the position of the LED on its strip.
func (l Led) Position() int { return int(l.ID & 0xFF) }

// Equal returns true if both LEDs have the same ID and color. Scale is not
// compared.
func (l Led) Equal(other Led) bool {
	return l.ID == other.ID && l.Color == other.Color
}

// Strip is a physical or virtual LED strip.
type Strip interface {
	// Init prepares the strip for use.
	Init()
	// Set sets the LED at pos to color, scaled by scale/255.
	Set(pos int, color Color, scale uint8)
	// ClearAll turns every LED of the strip off.
	ClearAll()
	// Test lights up every LED of the strip with a test color.
	Test()
	// Size returns the number of LEDs on the strip.
	Size() int
}

// Presenter flushes the strips to an output.
type Presenter interface {
	// Show displays the current content of the strips.
	Show()
	// SetBrightness sets the global brightness.
	SetBrightness(level uint8)
}

// Presenters fans out to multiple presenters.
type Presenters []Presenter

var _ Presenter = Presenters(nil)

func (p Presenters) Show() {
	for _, presenter := range p {
		presenter.Show()
	}
}

func (p Presenters) SetBrightness(level uint8) {
	for _, presenter := range p {
		presenter.SetBrightness(level)
	}
}
