package trainboard

import (
	"strings"
	"testing"
	"time"

	"libdb.so/trainboard/internal/board"
	"libdb.so/trainboard/internal/led"
)

const testConfig = `
device = "/dev/ttyUSB0"
baud = 57600
tick_period = "10ms"
transition = "1s"
brightness = 20
history_frames = 30

[server]
url = "https://api.trainboard.ch/tb1_1"
ping_url = "https://api.trainboard.ch/ping"
ota_url = "https://api.trainboard.ch/ota"
ota_path = "/tmp/firmware.bin"
timeout = "5s"
firmware = "0.10.0"
hardware = "v1.2"
mac = "74:4D:BD:00:00:00"

[network]
target = "api.trainboard.ch:443"

[mirror]
listen = ":8080"

[colors]
starting = "#FF0000"
pinging = "#00FF00"

[[strip]]
size = 84

[[strip]]
size = 60
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(testConfig))
	if err != nil {
		t.Fatal("failed to parse config:", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal("invalid config:", err)
	}

	if cfg.Device != "/dev/ttyUSB0" || cfg.Baud != 57600 {
		t.Errorf("device = %q at %d baud", cfg.Device, cfg.Baud)
	}
	if time.Duration(cfg.TickPeriod) != 10*time.Millisecond {
		t.Errorf("tick period = %v", time.Duration(cfg.TickPeriod))
	}
	if cfg.TransitionTicks() != 100 {
		t.Errorf("transition ticks = %d, want 100", cfg.TransitionTicks())
	}
	if cfg.Mirror.Listen != ":8080" || cfg.Network.Target != "api.trainboard.ch:443" {
		t.Errorf("mirror = %q, network = %q", cfg.Mirror.Listen, cfg.Network.Target)
	}
	if sizes := cfg.StripSizes(); len(sizes) != 2 || sizes[0] != 84 || sizes[1] != 60 {
		t.Errorf("strip sizes = %v", sizes)
	}
	if cfg.NumLEDs() != 144 {
		t.Errorf("NumLEDs = %d, want 144", cfg.NumLEDs())
	}

	bcfg := cfg.BoardConfig()
	if bcfg.Brightness != 20 || bcfg.HistoryFrames != 30 {
		t.Errorf("board brightness = %d, history = %d", bcfg.Brightness, bcfg.HistoryFrames)
	}
	if bcfg.Colors.Starting != led.Red {
		t.Errorf("starting color = %v, want %v", bcfg.Colors.Starting, led.Red)
	}
	if bcfg.Colors.Connecting != board.DefaultStatusColors().Connecting {
		t.Errorf("connecting color = %v, want default", bcfg.Colors.Connecting)
	}
	if bcfg.Colors.Pinging != led.Green {
		t.Errorf("pinging color = %v, want %v", bcfg.Colors.Pinging, led.Green)
	}

	scfg := cfg.ClientConfig()
	if scfg.Timeout != 5*time.Second || scfg.HistoryFrames != 30 || scfg.MAC != "74:4D:BD:00:00:00" {
		t.Errorf("server config = %+v", scfg)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader("[[strip]]\nsize = 8\n"))
	if err != nil {
		t.Fatal("failed to parse config:", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal("invalid config:", err)
	}

	if cfg.Baud != defaultBaud {
		t.Errorf("baud = %d, want %d", cfg.Baud, defaultBaud)
	}
	if cfg.TransitionTicks() != 100 {
		t.Errorf("transition ticks = %d, want 100", cfg.TransitionTicks())
	}
	if cfg.Brightness != board.DefaultBrightness {
		t.Errorf("brightness = %d, want %d", cfg.Brightness, board.DefaultBrightness)
	}
	if cfg.HistoryFrames != board.DefaultHistoryFrames {
		t.Errorf("history frames = %d, want %d", cfg.HistoryFrames, board.DefaultHistoryFrames)
	}
	if time.Duration(cfg.Server.Timeout) != defaultServerTimeout {
		t.Errorf("server timeout = %v", time.Duration(cfg.Server.Timeout))
	}
	if cfg.BoardConfig().Colors != board.DefaultStatusColors() {
		t.Errorf("status colors = %+v, want defaults", cfg.BoardConfig().Colors)
	}
}

func TestConfig_TransitionTicksRoundsUpToEven(t *testing.T) {
	cfg := Config{
		TickPeriod: TOMLDuration(20 * time.Millisecond),
		Transition: TOMLDuration(100 * time.Millisecond),
	}
	if ticks := cfg.TransitionTicks(); ticks != 6 {
		t.Fatalf("TransitionTicks = %d, want 6", ticks)
	}
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"no strips", ``},
		{"empty strip", "[[strip]]\nsize = 0\n"},
		{"strip too long", "[[strip]]\nsize = 257\n"},
		{"short transition", "tick_period = \"1s\"\ntransition = \"500ms\"\n[[strip]]\nsize = 8\n"},
		{"negative history", "history_frames = -1\n[[strip]]\nsize = 8\n"},
		{"ota without path", "[server]\nota_url = \"http://localhost/ota\"\n[[strip]]\nsize = 8\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := ParseConfig(strings.NewReader(test.toml))
			if err != nil {
				t.Fatal("failed to parse config:", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"bad duration", `tick_period = "fast"`},
		{"bad color", "[colors]\nstarting = \"#GG0000\"\n"},
		{"syntax", `device = `},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseConfig(strings.NewReader(test.toml)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}
