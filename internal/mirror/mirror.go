// Package mirror serves the content of the LED strips to websocket clients.
// Clients receive a JSON frame on every Show and may send "push" to emulate
// the push button.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/trainboard/internal/led"
)

// PushMessage is the text message a client sends to press the button.
const PushMessage = "push"

// Frame is the message sent to clients.
type Frame struct {
	Type       string     `json:"type"`
	Brightness uint8      `json:"brightness"`
	Strips     [][]string `json:"strips"`
}

// Server mirrors LED strips to websocket clients. It implements
// led.Presenter.
type Server struct {
	logger *slog.Logger
	hub    *Hub
	strips []*led.BufferStrip

	mu         sync.Mutex
	brightness uint8
	last       []byte

	// OnPush is called when a client presses the button. It is called from
	// the client's goroutine.
	OnPush func()
}

var _ led.Presenter = (*Server)(nil)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer creates a new mirror of strips.
func NewServer(strips []*led.BufferStrip, logger *slog.Logger, cfg HubConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg),
		strips: strips,
	}
}

// Hub returns the client hub of the server.
func (s *Server) Hub() *Hub { return s.hub }

// Show broadcasts the current content of the strips.
func (s *Server) Show() {
	s.mu.Lock()
	frame := Frame{
		Type:       "frame",
		Brightness: s.brightness,
		Strips:     make([][]string, len(s.strips)),
	}
	s.mu.Unlock()

	for i, strip := range s.strips {
		frame.Strips[i] = strip.LEDs().Hex()
	}

	b, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error(
			"failed to marshal mirror frame",
			"err", err)
		return
	}

	s.mu.Lock()
	unchanged := bytes.Equal(b, s.last)
	s.last = b
	s.mu.Unlock()

	if !unchanged {
		s.hub.Broadcast(b)
	}
}

// SetBrightness sets the brightness reported to clients.
func (s *Server) SetBrightness(level uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.brightness = level
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(
			"mirror upgrade failed",
			"err", err)
		return
	}

	c := s.hub.newClient(conn, r.RemoteAddr, s.handleText)

	s.mu.Lock()
	if s.last != nil {
		c.send <- s.last
	}
	s.mu.Unlock()

	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (s *Server) handleText(msg []byte) {
	if string(bytes.TrimSpace(msg)) != PushMessage {
		s.logger.Debug(
			"unknown mirror message",
			"msg", string(msg))
		return
	}

	if s.OnPush != nil {
		s.OnPush()
	}
}

// Handler returns the HTTP handler serving the mirror at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	return mux
}

// ListenAndServe serves the mirror on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	return s.Serve(ctx, l)
}

// Serve serves the mirror on l until ctx is canceled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info(
		"serving mirror",
		"addr", l.Addr().String())

	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})

	errg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	errg.Go(func() error {
		if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "mirror server failed")
		}
		return nil
	})

	return errg.Wait()
}
