// Package trainboard wires the trainboard state machine to its clock, the
// trainboard server, the LED controller and the websocket mirror.
package trainboard

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/trainboard/internal/board"
	"libdb.so/trainboard/internal/fakedata"
	"libdb.so/trainboard/internal/led"
	"libdb.so/trainboard/internal/mirror"
	"libdb.so/trainboard/internal/netprobe"
	"libdb.so/trainboard/internal/server"
	"libdb.so/trainboard/internal/store"
	"libdb.so/trainboard/internal/timer"
)

// ErrRestartRequired is returned by Run after a firmware image has been
// downloaded.
var ErrRestartRequired = errors.New("firmware updated, restart required")

// Daemon is the main trainboard daemon.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger
	pushes chan struct{}
}

// NewDaemon creates a new trainboard daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
		pushes: make(chan struct{}, board.QueueSize),
	}, nil
}

// ShortPush emulates a short press of the push button. It never blocks;
// presses are dropped while too many are pending.
func (d *Daemon) ShortPush() {
	select {
	case d.pushes <- struct{}{}:
	default:
		d.logger.Warn("too many pending button presses, dropping one")
	}
}

// Run starts the daemon. It blocks until the given context is canceled, the
// LED controller fails or a firmware update requires a restart.
func (d *Daemon) Run(ctx context.Context) error {
	offline, err := d.loadOffline()
	if err != nil {
		return err
	}

	errg, ctx := errgroup.WithContext(ctx)

	rt := &internalDaemon{
		Daemon: d,
		strips: led.NewBufferStrips(d.cfg.StripSizes()),
		ticker: timer.NewTicker(time.Duration(d.cfg.TickPeriod)),
		queue:  &board.Queue{},
	}

	var presenters led.Presenters

	if d.cfg.Device != "" {
		port, err := openSerial(d.cfg.Device, d.cfg.Baud)
		if err != nil {
			return err
		}
		defer port.Close()

		sp := NewSerialPresenter(port, rt.strips, d.logger)
		if err := sp.Init(); err != nil {
			return errors.Wrap(err, "failed to initialize LED controller")
		}
		presenters = append(presenters, sp)

		errg.Go(func() error {
			<-ctx.Done()
			d.logger.Debug("closing serial port")
			if err := port.Close(); err != nil {
				return errors.Wrap(err, "failed to close serial port")
			}
			return ctx.Err()
		})

		errg.Go(func() error {
			return readReports(ctx, port, d.logger)
		})
	}

	if d.cfg.Mirror.Listen != "" {
		m := mirror.NewServer(rt.strips, d.logger, mirror.HubConfig{})
		m.OnPush = d.ShortPush
		presenters = append(presenters, m)

		errg.Go(func() error {
			return m.ListenAndServe(ctx, d.cfg.Mirror.Listen)
		})
	}

	rt.client = server.New(ctx, d.cfg.ClientConfig(), d.logger)
	rt.client.OnUpdated = func() { rt.updated = true }

	probe := netprobe.New(d.cfg.Network.Target, d.logger)

	rt.leds = led.NewManager(led.AsStrips(rt.strips), presenters, d.cfg.TransitionTicks())
	rt.leds.Init()

	rt.board = board.New(d.cfg.BoardConfig(), rt.boardDeps(probe, offline), d.logger)

	rt.listener = board.NewConnectionListener(
		probe, rt.client.NewPinger(), rt.queue,
		rt.ticker.Period(), board.DefaultTimings(), d.logger)

	if err := rt.board.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize board")
	}

	errg.Go(func() error {
		return rt.ticker.Run(ctx)
	})

	errg.Go(func() error {
		return rt.eventLoop(ctx)
	})

	return errg.Wait()
}

// loadOffline loads the history shown while offline, generating one if no
// file is configured.
func (d *Daemon) loadOffline() (*store.Ring, error) {
	var data []byte

	if d.cfg.OfflineData != "" {
		b, err := os.ReadFile(d.cfg.OfflineData)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read offline data")
		}
		data = b
	} else {
		data = fakedata.Generate(d.cfg.StripSizes(), d.cfg.HistoryFrames)
	}

	ring, err := store.LoadOffline(data, d.cfg.HistoryFrames)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load offline data")
	}

	return ring, nil
}

type internalDaemon struct {
	*Daemon
	strips   []*led.BufferStrip
	ticker   *timer.Ticker
	queue    *board.Queue
	leds     *led.Manager
	client   *server.Client
	board    *board.Trainboard
	listener *board.ConnectionListener
	updated  bool
}

// eventLoop runs the board. Every clock tick dispatches a Tick, then drains
// the signals queued in response.
func (rt *internalDaemon) eventLoop(ctx context.Context) error {
	lastState := rt.board.State()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-rt.pushes:
			rt.shortPush()

		case <-rt.ticker.C():
			rt.dispatch(board.Tick)
		}

		for {
			sig, ok := rt.queue.Pop()
			if !ok {
				break
			}
			rt.dispatch(sig)
		}

		if state := rt.board.State(); state != lastState {
			rt.logger.Info(
				"board state changed",
				"from", lastState,
				"to", state)
			lastState = state
		}

		if rt.updated {
			return ErrRestartRequired
		}
	}
}

func (rt *internalDaemon) boardDeps(conn board.Connectivity, offline *store.Ring) board.Deps {
	return board.Deps{
		Leds:       rt.leds,
		Store:      store.NewManager(rt.cfg.HistoryFrames, offline),
		Conn:       conn,
		Server:     rt.client,
		Brightness: board.FixedBrightness(rt.cfg.Brightness),
		Ticker:     rt.ticker,
		Queue:      rt.queue,
	}
}

func (rt *internalDaemon) shortPush() {
	if !rt.queue.Push(board.ShortPush) {
		rt.logger.Warn(
			"event queue full, dropping signal",
			"signal", board.ShortPush)
	}
}

func (rt *internalDaemon) dispatch(sig board.Signal) {
	rt.listener.Dispatch(sig)
	rt.board.Dispatch(sig)
}
