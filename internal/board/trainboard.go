// Package board implements the trainboard state machine: it connects to the
// server, polls frames, animates them on the strips and falls back to an
// offline dataset when anything goes wrong.
package board

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"libdb.so/trainboard/internal/dataconv"
	"libdb.so/trainboard/internal/fsm"
	"libdb.so/trainboard/internal/led"
	"libdb.so/trainboard/internal/store"
	"libdb.so/trainboard/internal/timer"
)

// LedManager animates the LEDs. It is implemented by *led.Manager.
type LedManager interface {
	SetLeds(leds []led.Led)
	RefreshTransition() bool
	SetStatusLed(color led.Color) bool
	SetTestLeds() bool
	ClearAllLeds()
	SetBrightness(level uint8)
}

var _ LedManager = (*led.Manager)(nil)

// Connectivity connects the board to the network. Connect is polled: it
// returns done == false while the attempt is still in progress.
type Connectivity interface {
	Connect(timeout time.Duration) (connected, done bool)
	IsConnected() bool
	Disconnect()
	HasCredentials() bool
	ResetCredentials()
}

// Pinger checks that the server is reachable. Ping is polled like
// Connectivity.Connect.
type Pinger interface {
	Ping() (ok, done bool)
}

// Server is the trainboard server. The fetch methods are polled: they return
// done == false while the request is in progress, then the number of bytes
// copied into buf, which is 0 on failure.
type Server interface {
	Pinger
	FetchFrame(buf []byte) (n int, done bool)
	FetchHistory(buf []byte) (n int, done bool)
	// CancelFetch abandons the fetches in progress.
	CancelFetch()
	// UpdateFirmware checks for a firmware update and applies it. It returns
	// false if there is no update or the update failed.
	UpdateFirmware() bool
}

// BrightnessSource provides the brightness applied on every tick.
type BrightnessSource interface {
	Brightness() uint8
}

// FixedBrightness is a BrightnessSource that never changes.
type FixedBrightness uint8

// Brightness implements BrightnessSource.
func (b FixedBrightness) Brightness() uint8 { return uint8(b) }

const (
	// DefaultBrightness is the brightness set on startup.
	DefaultBrightness = 15
	// MinBrightness is the lowest brightness applied on tick.
	MinBrightness = 7
	// DefaultHistoryFrames is the default number of frames in a history.
	DefaultHistoryFrames = 45

	maxPollFailures   = 5
	maxDecodeFailures = 3
)

// Timings are the durations used by the state machine.
type Timings struct {
	StartupDelay     time.Duration
	ResetDelay       time.Duration
	ConnectTimeout   time.Duration
	ReconnectTimeout time.Duration
	PollInterval     time.Duration
	UpdateInterval   time.Duration
	OfflineRefresh   time.Duration
	ServerDownPing   time.Duration
	ServerUpPing     time.Duration
}

// DefaultTimings returns the timings used by the production board.
func DefaultTimings() Timings {
	return Timings{
		StartupDelay:     2 * time.Second,
		ResetDelay:       5 * time.Second,
		ConnectTimeout:   5 * time.Minute,
		ReconnectTimeout: 10 * time.Second,
		PollInterval:     time.Minute,
		UpdateInterval:   15 * time.Minute,
		OfflineRefresh:   time.Minute,
		ServerDownPing:   30 * time.Second,
		ServerUpPing:     time.Minute,
	}
}

// StatusColors are the colors of the status LEDs shown while starting up.
type StatusColors struct {
	Starting   led.Color
	Connecting led.Color
	Pinging    led.Color
}

// DefaultStatusColors returns the default status colors.
func DefaultStatusColors() StatusColors {
	return StatusColors{
		Starting:   led.White,
		Connecting: led.Blue,
		Pinging:    led.Purple,
	}
}

// Config is the configuration of a Trainboard.
type Config struct {
	HistoryFrames int
	Brightness    uint8
	Colors        StatusColors
	Timings       Timings
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HistoryFrames: DefaultHistoryFrames,
		Brightness:    DefaultBrightness,
		Colors:        DefaultStatusColors(),
		Timings:       DefaultTimings(),
	}
}

// Deps are the collaborators of a Trainboard.
type Deps struct {
	Leds       LedManager
	Store      *store.Manager
	Conn       Connectivity
	Server     Server
	Brightness BrightnessSource // optional
	Ticker     *timer.Ticker
	Queue      *Queue
}

// Trainboard is the state machine of the board.
type Trainboard struct {
	cfg    Config
	logger *slog.Logger

	machine *fsm.Machine
	queue   *Queue
	leds    LedManager
	store   *store.Manager
	conn    Connectivity
	server  Server
	bright  BrightnessSource
	ticker  *timer.Ticker

	starting      *startingState
	resetting     *resettingState
	connecting    *connectingState
	pinging       *pingingState
	polling       *pollingState
	transitioning *transitioningState
	live          *liveState
	offline       *offlineState
	updating      *updatingState

	toReset       *fsm.Transition
	toConnect     *fsm.Transition
	toPing        *fsm.Transition
	toPollServer  *fsm.Transition
	toLoadHistory *fsm.Transition
	toFake        *fsm.Transition
	toDataOK      *fsm.Transition
	toRefresh     *fsm.Transition
	toLiveDone    *fsm.Transition
	toHistDone    *fsm.Transition
	toFakeDone    *fsm.Transition
	toUpdate      *fsm.Transition
	toNoUpdate    *fsm.Transition

	fetchBuf []byte
	frameBuf []byte
	ledBuf   []led.Led
}

// New creates a trainboard. Init must be called before Dispatch.
func New(cfg Config, deps Deps, logger *slog.Logger) *Trainboard {
	if cfg.HistoryFrames <= 0 {
		cfg.HistoryFrames = DefaultHistoryFrames
	}

	b := &Trainboard{
		cfg:      cfg,
		logger:   logger,
		queue:    deps.Queue,
		leds:     deps.Leds,
		store:    deps.Store,
		conn:     deps.Conn,
		server:   deps.Server,
		bright:   deps.Brightness,
		ticker:   deps.Ticker,
		fetchBuf: make([]byte, cfg.HistoryFrames*dataconv.MaxFrameSize),
		frameBuf: make([]byte, dataconv.MaxFrameSize),
		ledBuf:   make([]led.Led, led.MaxLeds),
	}

	period := deps.Ticker.Period()

	b.starting = &startingState{base: base{b, "starting"}, timer: timer.New(period)}
	b.resetting = &resettingState{base: base{b, "resetting"}, timer: timer.New(period)}
	b.connecting = &connectingState{base: base{b, "connecting"}}
	b.pinging = &pingingState{base: base{b, "pinging"}}
	b.polling = &pollingState{base: base{b, "polling"}}
	b.transitioning = &transitioningState{base: base{b, "transitioning"}}
	b.live = &liveState{
		base:        base{b, "live"},
		pollTimer:   timer.New(period),
		updateTimer: timer.New(period),
	}
	b.offline = &offlineState{
		base:  base{b, "offline"},
		timer: timer.New(period),
		retry: timer.New(period),
	}
	b.updating = &updatingState{base: base{b, "updating"}}

	b.toReset = fsm.To(b.resetting)
	b.toConnect = fsm.To(b.connecting)
	b.toPing = fsm.To(b.pinging)
	b.toPollServer = &fsm.Transition{
		Destination: b.polling,
		Action:      func() { b.store.SetWriterMode(store.WriterSingle) },
	}
	b.toLoadHistory = &fsm.Transition{
		Destination: b.polling,
		Action:      func() { b.store.SetWriterMode(store.WriterMultiple) },
	}
	b.toFake = &fsm.Transition{
		Destination: b.transitioning,
		Action:      func() { b.store.SetReaderMode(store.ReaderOffline) },
	}
	b.toDataOK = fsm.To(b.transitioning)
	b.toRefresh = fsm.To(b.transitioning)
	b.toHistDone = fsm.To(b.transitioning)
	b.toLiveDone = fsm.To(b.live)
	b.toNoUpdate = fsm.To(b.live)
	b.toFakeDone = fsm.To(b.offline)
	b.toUpdate = fsm.To(b.updating)

	b.machine = fsm.New(b.starting)
	return b
}

// Init registers the state timers and enters the starting state.
func (b *Trainboard) Init() error {
	timers := []*timer.Timer{
		b.starting.timer,
		b.resetting.timer,
		b.live.pollTimer,
		b.live.updateTimer,
		b.offline.timer,
		b.offline.retry,
	}
	for _, t := range timers {
		if err := b.ticker.Register(t); err != nil {
			return errors.Wrap(err, "failed to register state timer")
		}
	}

	b.machine.Init()
	return nil
}

// Dispatch processes a single signal.
func (b *Trainboard) Dispatch(sig Signal) {
	if status := b.machine.Dispatch(fsm.Event(sig)); status != fsm.StatusOK {
		b.logger.Debug(
			"signal not dispatched",
			"signal", sig,
			"status", status)
	}

	if sig == Tick && b.bright != nil {
		level := b.bright.Brightness()
		if level < MinBrightness {
			level = MinBrightness
		}
		b.leds.SetBrightness(level)
	}
}

// State returns the name of the current state.
func (b *Trainboard) State() string {
	if s, ok := b.machine.Current().(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}

func (b *Trainboard) push(sig Signal) {
	if !b.queue.Push(sig) {
		b.logger.Warn(
			"event queue full, dropping signal",
			"signal", sig)
	}
}

type base struct {
	b    *Trainboard
	name string
}

func (s base) String() string { return s.name }

func (s base) logEnter() {
	s.b.logger.Debug("entering state", "state", s.name)
}

func (s base) logExit() {
	s.b.logger.Debug("leaving state", "state", s.name)
}
