// Package server talks to the trainboard server. Every request runs in the
// background and is polled from the event loop.
package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"libdb.so/trainboard/internal/dataconv"
)

// PingReply is the body the server answers pings with.
var PingReply = []byte{0xBE, 0xEF}

// Config is the configuration of a Client.
type Config struct {
	// URL is the data endpoint.
	URL string
	// PingURL is the ping endpoint.
	PingURL string
	// OTAURL is the firmware update endpoint. Updates are disabled if empty.
	OTAURL string
	// OTAPath is where a downloaded firmware image is written.
	OTAPath string

	Firmware string
	Hardware string
	MAC      string

	// HistoryFrames is the number of frames requested for a history.
	HistoryFrames int
	// Timeout is the timeout of a single request.
	Timeout time.Duration
}

// Client is a trainboard server client.
type Client struct {
	ctx    context.Context
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	frame   call
	history call
	pinger  *Pinger

	// OnUpdated is called after a firmware image has been written.
	OnUpdated func()
}

// New creates a new client. Requests are canceled when ctx is.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		ctx:    ctx,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	c.pinger = c.NewPinger()
	return c
}

// FetchFrame polls a request for the newest frame.
func (c *Client) FetchFrame(buf []byte) (int, bool) {
	return c.fetch(&c.frame, buf, nil)
}

// FetchHistory polls a request for the whole history.
func (c *Client) FetchHistory(buf []byte) (int, bool) {
	return c.fetch(&c.history, buf, map[string]string{
		"com": fmt.Sprintf("history_%d", c.cfg.HistoryFrames),
	})
}

func (c *Client) fetch(call *call, buf []byte, extra map[string]string) (int, bool) {
	maxSize := int64(c.cfg.HistoryFrames * dataconv.MaxFrameSize)

	body, done, err := call.poll(c.ctx, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, c.cfg.URL, extra, maxSize)
	})
	if !done {
		return 0, false
	}
	if err != nil {
		c.logger.Warn(
			"failed to fetch data",
			"url", c.cfg.URL,
			"err", err)
		return 0, true
	}

	return copy(buf, body), true
}

// CancelFetch abandons the frame and history requests in progress, so the
// next fetch starts a fresh request.
func (c *Client) CancelFetch() {
	c.frame.reset()
	c.history.reset()
}

// Ping polls a ping request.
func (c *Client) Ping() (bool, bool) {
	return c.pinger.Ping()
}

// NewPinger returns a Pinger with its own request, independent from Ping.
func (c *Client) NewPinger() *Pinger {
	return &Pinger{client: c}
}

// Pinger pings the server.
type Pinger struct {
	client *Client
	call   call
}

// Ping polls a ping request. It returns ok == true if the server replied with
// PingReply.
func (p *Pinger) Ping() (ok, done bool) {
	c := p.client

	body, done, err := p.call.poll(c.ctx, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, c.cfg.PingURL, nil, int64(len(PingReply)+1))
	})
	if !done {
		return false, false
	}
	if err != nil {
		c.logger.Debug(
			"ping failed",
			"url", c.cfg.PingURL,
			"err", err)
		return false, true
	}

	return bytes.Equal(body, PingReply), true
}

// UpdateFirmware downloads a new firmware image if the server has one. It
// blocks until the download is done and returns true if an image was written.
func (c *Client) UpdateFirmware() bool {
	if c.cfg.OTAURL == "" {
		return false
	}

	updated, err := c.updateFirmware()
	if err != nil {
		c.logger.Warn(
			"firmware update failed",
			"url", c.cfg.OTAURL,
			"err", err)
		return false
	}
	if !updated {
		c.logger.Debug("no firmware update available")
		return false
	}

	c.logger.Info(
		"firmware image downloaded",
		"path", c.cfg.OTAPath)

	if c.OnUpdated != nil {
		c.OnUpdated()
	}
	return true
}

func (c *Client) updateFirmware() (bool, error) {
	req, err := c.newRequest(c.ctx, c.cfg.OTAURL, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "failed to request update")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotModified:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %s", resp.Status)
	}

	f, err := os.CreateTemp(filepath.Dir(c.cfg.OTAPath), ".firmware-*")
	if err != nil {
		return false, errors.Wrap(err, "failed to create firmware file")
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return false, errors.Wrap(err, "failed to download firmware")
	}
	if err := f.Close(); err != nil {
		return false, errors.Wrap(err, "failed to write firmware")
	}
	if err := os.Rename(f.Name(), c.cfg.OTAPath); err != nil {
		return false, errors.Wrap(err, "failed to install firmware")
	}

	return true, nil
}

func (c *Client) newRequest(ctx context.Context, url string, extra map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("fwv", c.cfg.Firmware)
	req.Header.Set("hwv", c.cfg.Hardware)
	req.Header.Set("mac", c.cfg.MAC)
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (c *Client) get(ctx context.Context, url string, extra map[string]string, maxSize int64) ([]byte, error) {
	req, err := c.newRequest(ctx, url, extra)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}

	return body, nil
}

// call is a single background request. poll starts the request on the first
// call and returns its result once it has finished; the next poll starts a
// new request.
type call struct {
	mu     sync.Mutex
	result chan callResult
	cancel context.CancelFunc
}

type callResult struct {
	body []byte
	err  error
}

func (c *call) poll(ctx context.Context, do func(context.Context) ([]byte, error)) (body []byte, done bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result == nil {
		ctx, cancel := context.WithCancel(ctx)
		ch := make(chan callResult, 1)
		c.result, c.cancel = ch, cancel
		go func() {
			body, err := do(ctx)
			ch <- callResult{body, err}
		}()
		return nil, false, nil
	}

	select {
	case r := <-c.result:
		c.cancel()
		c.result, c.cancel = nil, nil
		return r.body, true, r.err
	default:
		return nil, false, nil
	}
}

// reset abandons the request in progress. Its result is never returned.
func (c *call) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.result, c.cancel = nil, nil
}
