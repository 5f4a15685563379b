// Package netprobe tracks network connectivity by dialing a known host.
package netprobe

import (
	"log/slog"
	"net"
	"sync"
	"time"
)

// Probe is a network connection made by dialing a target host. A non-empty target
// counts as saved credentials.
type Probe struct {
	logger *slog.Logger

	mu        sync.Mutex
	target    string
	connected bool
	dialing   chan dialResult
	conn      net.Conn
}

type dialResult struct {
	conn net.Conn
	err  error
}

// New creates a new probe dialing target.
func New(target string, logger *slog.Logger) *Probe {
	return &Probe{
		target: target,
		logger: logger,
	}
}

// Connect polls a connection attempt. The first call starts dialing in the
// background; later calls return done once the dial has finished.
func (p *Probe) Connect(timeout time.Duration) (connected, done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return true, true
	}
	if p.target == "" {
		return false, true
	}

	if p.dialing == nil {
		ch := make(chan dialResult, 1)
		p.dialing = ch
		target := p.target

		go func() {
			conn, err := net.DialTimeout("tcp", target, timeout)
			ch <- dialResult{conn, err}
		}()

		return false, false
	}

	select {
	case r := <-p.dialing:
		p.dialing = nil
		if r.err != nil {
			p.logger.Debug(
				"network connection failed",
				"target", p.target,
				"err", r.err)
			return false, true
		}

		p.conn = r.conn
		p.connected = true
		p.logger.Info(
			"network connected",
			"target", p.target)
		return true, true
	default:
		return false, false
	}
}

// IsConnected returns true if the probe is connected. A closed remote end
// counts as a lost connection.
func (p *Probe) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return false
	}

	if !alive(p.conn) {
		p.logger.Debug(
			"network connection lost",
			"target", p.target)
		p.closeLocked()
		return false
	}

	return true
}

// Disconnect closes the connection.
func (p *Probe) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeLocked()
}

// HasCredentials returns true if a target is configured.
func (p *Probe) HasCredentials() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.target != ""
}

// ResetCredentials forgets the target and disconnects.
func (p *Probe) ResetCredentials() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info(
		"network credentials reset",
		"target", p.target)

	p.target = ""
	p.closeLocked()

	if ch := p.dialing; ch != nil {
		p.dialing = nil
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
	}
}

func (p *Probe) closeLocked() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.connected = false
}

// alive peeks at conn without blocking. A read that times out means the
// connection is still open.
func alive(conn net.Conn) bool {
	if conn == nil {
		return false
	}

	if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return false
	}
	defer conn.SetReadDeadline(time.Time{})

	var b [1]byte
	_, err := conn.Read(b[:])
	if err == nil {
		return true
	}

	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
