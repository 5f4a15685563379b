package trainboard

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"libdb.so/trainboard/internal/board"
	"libdb.so/trainboard/internal/led"
	"libdb.so/trainboard/internal/server"
)

const (
	defaultBaud          = 115200
	defaultTickPeriod    = 20 * time.Millisecond
	defaultTransition    = 2 * time.Second
	defaultServerTimeout = 10 * time.Second

	// maxStripSize is the number of positions addressable on a strip.
	maxStripSize = 256
)

// Config is the configuration for the trainboard daemon.
type Config struct {
	// Device is the path to the serial LED controller, usually /dev/ttyUSB0
	// or /dev/ttyACM0. No controller is used if empty.
	Device string `toml:"device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud"`
	// TickPeriod is the period of the board clock.
	TickPeriod TOMLDuration `toml:"tick_period"`
	// Transition is the duration of a fade between two frames.
	Transition TOMLDuration `toml:"transition"`
	// Brightness is the brightness set on startup.
	Brightness uint8 `toml:"brightness"`
	// HistoryFrames is the number of frames in a history.
	HistoryFrames int `toml:"history_frames"`
	// OfflineData is the path to a history file shown while offline. A
	// generated dataset is used if empty.
	OfflineData string `toml:"offline_data"`

	Server  ServerConfig  `toml:"server"`
	Network NetworkConfig `toml:"network"`
	Mirror  MirrorConfig  `toml:"mirror"`
	Colors  ColorsConfig  `toml:"colors"`
	Strips  []StripConfig `toml:"strip"`
}

// ServerConfig is the configuration of the trainboard server.
type ServerConfig struct {
	URL      string       `toml:"url"`
	PingURL  string       `toml:"ping_url"`
	OTAURL   string       `toml:"ota_url"`
	OTAPath  string       `toml:"ota_path"`
	Timeout  TOMLDuration `toml:"timeout"`
	Firmware string       `toml:"firmware"`
	Hardware string       `toml:"hardware"`
	MAC      string       `toml:"mac"`
}

// NetworkConfig is the configuration of the network probe.
type NetworkConfig struct {
	// Target is the host:port dialed to check connectivity. The board
	// behaves as if it had no credentials if empty.
	Target string `toml:"target"`
}

// MirrorConfig is the configuration of the websocket mirror.
type MirrorConfig struct {
	// Listen is the address the mirror listens on. The mirror is disabled
	// if empty.
	Listen string `toml:"listen"`
}

// ColorsConfig overrides the status LED colors.
type ColorsConfig struct {
	Starting   *led.RGBColor `toml:"starting,omitempty"`
	Connecting *led.RGBColor `toml:"connecting,omitempty"`
	Pinging    *led.RGBColor `toml:"pinging,omitempty"`
}

// StripConfig is the configuration of a single LED strip.
type StripConfig struct {
	// Size is the number of LEDs on the strip.
	Size int `toml:"size"`
}

// Validate fills in defaults and validates the configuration.
func (c *Config) Validate() error {
	if c.Baud == 0 {
		c.Baud = defaultBaud
	}
	if c.TickPeriod == 0 {
		c.TickPeriod = TOMLDuration(defaultTickPeriod)
	}
	if c.Transition == 0 {
		c.Transition = TOMLDuration(defaultTransition)
	}
	if c.Brightness == 0 {
		c.Brightness = board.DefaultBrightness
	}
	if c.HistoryFrames == 0 {
		c.HistoryFrames = board.DefaultHistoryFrames
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = TOMLDuration(defaultServerTimeout)
	}

	if c.Baud < 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.TickPeriod < 0 {
		return fmt.Errorf("invalid tick period %s", time.Duration(c.TickPeriod))
	}
	if c.TransitionTicks() < 2 {
		return fmt.Errorf(
			"transition %s is shorter than two ticks of %s",
			time.Duration(c.Transition), time.Duration(c.TickPeriod))
	}
	if c.HistoryFrames < 0 {
		return fmt.Errorf("invalid history frame count %d", c.HistoryFrames)
	}
	if c.Server.OTAURL != "" && c.Server.OTAPath == "" {
		return errors.New("server.ota_path is required with server.ota_url")
	}

	if len(c.Strips) == 0 {
		return errors.New("no strips configured")
	}
	if len(c.Strips) > maxStripSize {
		return fmt.Errorf("too many strips (%d > %d)", len(c.Strips), maxStripSize)
	}
	for i, strip := range c.Strips {
		if strip.Size <= 0 || strip.Size > maxStripSize {
			return fmt.Errorf("strip %d: invalid size %d", i, strip.Size)
		}
	}

	return nil
}

// TransitionTicks returns the transition duration in ticks, rounded up to an
// even number.
func (c *Config) TransitionTicks() int {
	if c.TickPeriod <= 0 {
		return 0
	}
	ticks := int(time.Duration(c.Transition) / time.Duration(c.TickPeriod))
	if ticks%2 != 0 {
		ticks++
	}
	return ticks
}

// StripSizes returns the size of every strip.
func (c *Config) StripSizes() []int {
	sizes := make([]int, len(c.Strips))
	for i, strip := range c.Strips {
		sizes[i] = strip.Size
	}
	return sizes
}

// NumLEDs returns the total number of LEDs over all strips.
func (c *Config) NumLEDs() int {
	var n int
	for _, strip := range c.Strips {
		n += strip.Size
	}
	return n
}

// BoardConfig returns the configuration of the board state machine.
func (c *Config) BoardConfig() board.Config {
	cfg := board.DefaultConfig()
	cfg.HistoryFrames = c.HistoryFrames
	cfg.Brightness = c.Brightness

	if c.Colors.Starting != nil {
		cfg.Colors.Starting = c.Colors.Starting.Color()
	}
	if c.Colors.Connecting != nil {
		cfg.Colors.Connecting = c.Colors.Connecting.Color()
	}
	if c.Colors.Pinging != nil {
		cfg.Colors.Pinging = c.Colors.Pinging.Color()
	}

	return cfg
}

// ClientConfig returns the configuration of the server client.
func (c *Config) ClientConfig() server.Config {
	return server.Config{
		URL:           c.Server.URL,
		PingURL:       c.Server.PingURL,
		OTAURL:        c.Server.OTAURL,
		OTAPath:       c.Server.OTAPath,
		Firmware:      c.Server.Firmware,
		Hardware:      c.Server.Hardware,
		MAC:           c.Server.MAC,
		HistoryFrames: c.HistoryFrames,
		Timeout:       time.Duration(c.Server.Timeout),
	}
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader. The configuration is not
// validated.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return &config, nil
}
