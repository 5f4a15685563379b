// Package ledserial implements the serial protocol between the trainboard
// daemon and its LED controller.
//
// Every packet is framed as a type byte, a type-specific body and a little
// endian CRC-32 (IEEE) of the type byte and body. Commands flow from the host
// to the controller, reports flow back.
package ledserial

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// ErrChecksum is returned when a packet fails its checksum.
var ErrChecksum = errors.New("packet checksum mismatch")

// MaxMessageLength is the longest message an error or log report can carry.
const MaxMessageLength = 1024

// CommandType is the type of a packet sent to the controller.
type CommandType uint8

const (
	TypeInitialize CommandType = iota
	TypeClear
	TypeSet
	TypeBrightness
)

// String returns a string representation of the command type.
func (t CommandType) String() string {
	switch t {
	case TypeInitialize:
		return "initialize"
	case TypeClear:
		return "clear"
	case TypeSet:
		return "set"
	case TypeBrightness:
		return "brightness"
	default:
		return fmt.Sprintf("CommandType(%d)", t)
	}
}

// Command is a packet sent to the controller.
type Command interface {
	Type() CommandType
}

// InitializeCommand sets the total number of LEDs driven by the controller.
type InitializeCommand struct {
	NumLEDs uint16
}

// ClearCommand turns every LED off.
type ClearCommand struct{}

// SetCommand sets every LED. Pix holds 3 bytes per LED.
type SetCommand struct {
	Pix []uint8
}

// BrightnessCommand sets the global brightness.
type BrightnessCommand struct {
	Level uint8
}

func (InitializeCommand) Type() CommandType { return TypeInitialize }
func (ClearCommand) Type() CommandType      { return TypeClear }
func (SetCommand) Type() CommandType        { return TypeSet }
func (BrightnessCommand) Type() CommandType { return TypeBrightness }

// ReportType is the type of a packet sent by the controller.
type ReportType uint8

const (
	TypeError ReportType = iota
	TypePanic
	TypeLog
	TypeAck
)

// String returns a string representation of the report type.
func (t ReportType) String() string {
	switch t {
	case TypeError:
		return "error"
	case TypePanic:
		return "panic"
	case TypeLog:
		return "log"
	case TypeAck:
		return "ack"
	default:
		return fmt.Sprintf("ReportType(%d)", t)
	}
}

// Report is a packet sent by the controller.
type Report interface {
	Type() ReportType
}

// ErrorReport reports a recoverable error, usually a bad command.
type ErrorReport struct {
	Message string
}

// PanicReport reports that the controller cannot continue.
type PanicReport struct {
	Message string
}

// LogReport carries a log line from the controller.
type LogReport struct {
	Message string
}

// AckReport acknowledges a processed command.
type AckReport struct {
	Command CommandType
}

func (ErrorReport) Type() ReportType { return TypeError }
func (PanicReport) Type() ReportType { return TypePanic }
func (LogReport) Type() ReportType   { return TypeLog }
func (AckReport) Type() ReportType   { return TypeAck }

// ReadContext holds the controller state needed to decode commands.
type ReadContext struct {
	// NumLEDs is the number of LEDs set by the last InitializeCommand.
	NumLEDs uint16
}

// WriteCommand writes a command to w in a single Write call.
func WriteCommand(w io.Writer, c Command) error {
	var body bytes.Buffer

	switch c := c.(type) {
	case InitializeCommand:
		binary.Write(&body, Endianness, c.NumLEDs)
	case ClearCommand:
	case SetCommand:
		body.Write(c.Pix)
	case BrightnessCommand:
		body.WriteByte(c.Level)
	default:
		return fmt.Errorf("unknown command %T", c)
	}

	return writeFrame(w, uint8(c.Type()), body.Bytes())
}

// ReadCommand reads a command from r.
func ReadCommand(r io.Reader, ctx ReadContext) (Command, error) {
	var cmd Command

	err := readFrame(r, func(typ uint8, r io.Reader) error {
		switch t := CommandType(typ); t {
		case TypeInitialize:
			var c InitializeCommand
			if err := binary.Read(r, Endianness, &c.NumLEDs); err != nil {
				return errors.Wrap(err, "failed to read number of LEDs")
			}
			cmd = c
		case TypeClear:
			cmd = ClearCommand{}
		case TypeSet:
			c := SetCommand{Pix: make([]uint8, 3*int(ctx.NumLEDs))}
			if _, err := io.ReadFull(r, c.Pix); err != nil {
				return errors.Wrap(err, "failed to read pixel data")
			}
			cmd = c
		case TypeBrightness:
			var c BrightnessCommand
			if err := binary.Read(r, Endianness, &c.Level); err != nil {
				return errors.Wrap(err, "failed to read brightness")
			}
			cmd = c
		default:
			return fmt.Errorf("unknown command type %s", t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cmd, nil
}

// WriteReport writes a report to w in a single Write call.
func WriteReport(w io.Writer, rep Report) error {
	var body bytes.Buffer

	switch rep := rep.(type) {
	case ErrorReport:
		if err := writeMessage(&body, rep.Message); err != nil {
			return err
		}
	case PanicReport:
		if err := writeMessage(&body, rep.Message); err != nil {
			return err
		}
	case LogReport:
		if err := writeMessage(&body, rep.Message); err != nil {
			return err
		}
	case AckReport:
		body.WriteByte(uint8(rep.Command))
	default:
		return fmt.Errorf("unknown report %T", rep)
	}

	return writeFrame(w, uint8(rep.Type()), body.Bytes())
}

// ReadReport reads a report from r.
func ReadReport(r io.Reader) (Report, error) {
	var rep Report

	err := readFrame(r, func(typ uint8, r io.Reader) error {
		switch t := ReportType(typ); t {
		case TypeError, TypePanic, TypeLog:
			msg, err := readMessage(r)
			if err != nil {
				return err
			}
			switch t {
			case TypeError:
				rep = ErrorReport{Message: msg}
			case TypePanic:
				rep = PanicReport{Message: msg}
			case TypeLog:
				rep = LogReport{Message: msg}
			}
		case TypeAck:
			var cmd uint8
			if err := binary.Read(r, Endianness, &cmd); err != nil {
				return errors.Wrap(err, "failed to read acked command")
			}
			rep = AckReport{Command: CommandType(cmd)}
		default:
			return fmt.Errorf("unknown report type %s", t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rep, nil
}

func writeFrame(w io.Writer, typ uint8, body []byte) error {
	frame := make([]byte, 0, 1+len(body)+4)
	frame = append(frame, typ)
	frame = append(frame, body...)
	frame = Endianness.AppendUint32(frame, crc32.ChecksumIEEE(frame))

	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "failed to write packet")
	}
	return nil
}

func readFrame(r io.Reader, body func(typ uint8, r io.Reader) error) error {
	hash := crc32.NewIEEE()
	tee := io.TeeReader(r, hash)

	var typ [1]byte
	if _, err := io.ReadFull(tee, typ[:]); err != nil {
		return errors.Wrap(err, "failed to read packet type")
	}

	if err := body(typ[0], tee); err != nil {
		return err
	}

	var checksum uint32
	if err := binary.Read(r, Endianness, &checksum); err != nil {
		return errors.Wrap(err, "failed to read packet checksum")
	}
	if checksum != hash.Sum32() {
		return ErrChecksum
	}

	return nil
}

func writeMessage(w *bytes.Buffer, msg string) error {
	if len(msg) > MaxMessageLength {
		return fmt.Errorf("message too long (%d > %d)", len(msg), MaxMessageLength)
	}
	binary.Write(w, Endianness, uint16(len(msg)))
	w.WriteString(msg)
	return nil
}

func readMessage(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, Endianness, &length); err != nil {
		return "", errors.Wrap(err, "failed to read message length")
	}
	if length > MaxMessageLength {
		return "", fmt.Errorf("message too long (%d > %d)", length, MaxMessageLength)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Wrap(err, "failed to read message")
	}
	return string(buf), nil
}
