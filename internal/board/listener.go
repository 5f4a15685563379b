package board

import (
	"fmt"
	"log/slog"
	"time"
)

type connState uint8

const (
	networkDown connState = iota
	serverDown
	serverUp
)

func (s connState) String() string {
	switch s {
	case networkDown:
		return "network_down"
	case serverDown:
		return "server_down"
	case serverUp:
		return "server_up"
	default:
		return fmt.Sprintf("connState(%d)", s)
	}
}

// ConnectionListener watches the network and the server on every tick and
// reports changes as signals.
type ConnectionListener struct {
	conn    Connectivity
	pinger  Pinger
	queue   *Queue
	logger  *slog.Logger
	period  time.Duration
	timings Timings

	state   connState
	ticks   int
	pinging bool
}

// NewConnectionListener creates a listener pushing signals to queue. period is
// the tick period.
func NewConnectionListener(conn Connectivity, pinger Pinger, queue *Queue, period time.Duration, timings Timings, logger *slog.Logger) *ConnectionListener {
	return &ConnectionListener{
		conn:    conn,
		pinger:  pinger,
		queue:   queue,
		logger:  logger,
		period:  period,
		timings: timings,
	}
}

// Dispatch processes a single signal. Only ticks are handled.
func (l *ConnectionListener) Dispatch(sig Signal) {
	if sig != Tick {
		return
	}

	switch l.state {
	case networkDown:
		if l.conn.IsConnected() {
			l.setState(serverDown)
			l.push(NetworkUp)
		}

	case serverDown:
		if !l.conn.IsConnected() {
			l.networkLost()
			return
		}
		if ok, done := l.pingEvery(l.timings.ServerDownPing); done && ok {
			l.setState(serverUp)
			l.push(Connected)
		}

	case serverUp:
		if !l.conn.IsConnected() {
			l.networkLost()
			return
		}
		if ok, done := l.pingEvery(l.timings.ServerUpPing); done && !ok {
			l.setState(serverDown)
			l.push(Disconnected)
		}
	}
}

func (l *ConnectionListener) networkLost() {
	l.conn.Disconnect()
	l.setState(networkDown)
	l.push(NetworkDown)
}

func (l *ConnectionListener) setState(state connState) {
	l.logger.Debug(
		"connection state changed",
		"from", l.state,
		"to", state)

	l.state = state
	l.ticks = 0
	l.pinging = false
}

// pingEvery starts a ping once interval has elapsed and polls it until it is
// done.
func (l *ConnectionListener) pingEvery(interval time.Duration) (ok, done bool) {
	if !l.pinging {
		l.ticks++
		if l.ticks <= int(interval/l.period) {
			return false, false
		}
		l.ticks = 0
		l.pinging = true
	}

	ok, done = l.pinger.Ping()
	if done {
		l.pinging = false
	}
	return ok, done
}

func (l *ConnectionListener) push(sig Signal) {
	if !l.queue.Push(sig) {
		l.logger.Warn(
			"event queue full, dropping signal",
			"signal", sig)
	}
}
