package trainboard

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"libdb.so/trainboard/internal/led"
	"libdb.so/trainboard/ledserial"
)

// ErrControllerPanicked is returned when the LED controller reports that it
// cannot continue.
var ErrControllerPanicked = errors.New("LED controller panicked")

// SerialPresenter shows the strips on a LED controller attached to a serial
// port.
type SerialPresenter struct {
	w      io.Writer
	strips []*led.BufferStrip
	logger *slog.Logger

	mu         sync.Mutex
	frame      led.LEDs
	brightness int
}

var _ led.Presenter = (*SerialPresenter)(nil)

// NewSerialPresenter creates a presenter writing commands to w.
func NewSerialPresenter(w io.Writer, strips []*led.BufferStrip, logger *slog.Logger) *SerialPresenter {
	var numLEDs int
	for _, strip := range strips {
		numLEDs += strip.Size()
	}

	return &SerialPresenter{
		w:          w,
		strips:     strips,
		logger:     logger,
		frame:      led.NewLEDs(numLEDs),
		brightness: -1,
	}
}

// Init tells the controller how many LEDs it drives.
func (p *SerialPresenter) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.write(ledserial.InitializeCommand{
		NumLEDs: uint16(len(p.frame)),
	})
}

// Show sends the pixels of every strip, in strip order, as one Set command.
func (p *SerialPresenter) Show() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var offset int
	for _, strip := range p.strips {
		offset += p.frame.Draw(offset, strip.LEDs())
	}

	if err := p.write(ledserial.SetCommand{Pix: p.frame.AsPixels()}); err != nil {
		p.logger.Warn(
			"failed to show LEDs",
			"err", err)
	}
}

// SetBrightness sends a Brightness command if level changed.
func (p *SerialPresenter) SetBrightness(level uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.brightness == int(level) {
		return
	}

	if err := p.write(ledserial.BrightnessCommand{Level: level}); err != nil {
		p.logger.Warn(
			"failed to set brightness",
			"level", level,
			"err", err)
		return
	}

	p.brightness = int(level)
}

func (p *SerialPresenter) write(c ledserial.Command) error {
	p.logger.Debug(
		"writing command",
		"type", c.Type())

	return ledserial.WriteCommand(p.w, c)
}

// openSerial opens the serial port of the LED controller.
func openSerial(device string, baud int) (serial.Port, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial port")
	}

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to reset read timeout")
	}

	return port, nil
}

// readReports reads reports from the controller until ctx is canceled or the
// controller panics. Errors and logs are logged.
func readReports(ctx context.Context, r io.Reader, logger *slog.Logger) error {
	for ctx.Err() == nil {
		rep, err := ledserial.ReadReport(r)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			// A short read indicates a timeout.
			if errors.Is(err, io.EOF) {
				continue
			}
			if errors.Is(err, ledserial.ErrChecksum) {
				logger.Warn("dropping corrupted report from controller")
				continue
			}
			return errors.Wrap(err, "failed to read report")
		}

		if err := handleReport(rep, logger); err != nil {
			return err
		}
	}

	return ctx.Err()
}

func handleReport(r ledserial.Report, logger *slog.Logger) error {
	switch r := r.(type) {
	case ledserial.AckReport:
		logger.Debug(
			"controller acknowledged command",
			"command", r.Command)

	case ledserial.ErrorReport:
		logger.Warn(
			"controller reported error",
			"message", r.Message)

	case ledserial.PanicReport:
		logger.Error(
			"controller unrecoverably panicked",
			"message", r.Message)
		return ErrControllerPanicked

	case ledserial.LogReport:
		logger.Info(
			"controller log",
			"message", r.Message)

	default:
		logger.Warn(
			"unknown report from controller",
			"type", r.Type())
	}

	return nil
}
