package ledserial

import (
	"fmt"
	"io"
	"sync"
)

// Device is a LED controller emulated in software. It answers every command
// with an AckReport, or an ErrorReport if the command is invalid.
type Device struct {
	rw io.ReadWriter

	mu         sync.Mutex
	ctx        ReadContext
	pix        []uint8
	brightness uint8
}

// NewDevice creates a device talking over rw.
func NewDevice(rw io.ReadWriter) *Device {
	return &Device{rw: rw}
}

// Run handles commands until reading fails. A read error is reported to the
// host as a PanicReport before it is returned.
func (d *Device) Run() error {
	for {
		d.mu.Lock()
		ctx := d.ctx
		d.mu.Unlock()

		c, err := ReadCommand(d.rw, ctx)
		if err != nil {
			WriteReport(d.rw, PanicReport{Message: err.Error()})
			return err
		}

		if err := d.handle(c); err != nil {
			if err := WriteReport(d.rw, ErrorReport{Message: err.Error()}); err != nil {
				return err
			}
			continue
		}

		if err := WriteReport(d.rw, AckReport{Command: c.Type()}); err != nil {
			return err
		}
	}
}

func (d *Device) handle(c Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch c := c.(type) {
	case InitializeCommand:
		if c.NumLEDs < 1 {
			return fmt.Errorf("invalid number of LEDs: %d", c.NumLEDs)
		}
		d.ctx.NumLEDs = c.NumLEDs
		d.pix = make([]uint8, 3*int(c.NumLEDs))

	case ClearCommand:
		for i := range d.pix {
			d.pix[i] = 0
		}

	case SetCommand:
		if d.ctx.NumLEDs == 0 {
			return fmt.Errorf("set before initialize")
		}
		copy(d.pix, c.Pix)

	case BrightnessCommand:
		d.brightness = c.Level

	default:
		return fmt.Errorf("unknown command %T", c)
	}

	return nil
}

// Pixels returns a copy of the current pixels.
func (d *Device) Pixels() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]uint8(nil), d.pix...)
}

// Brightness returns the current brightness.
func (d *Device) Brightness() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.brightness
}
