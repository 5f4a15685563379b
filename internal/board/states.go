package board

import (
	"libdb.so/trainboard/internal/dataconv"
	"libdb.so/trainboard/internal/fsm"
	"libdb.so/trainboard/internal/store"
	"libdb.so/trainboard/internal/timer"
)

func stopTimer(t *timer.Timer) {
	t.Stop()
	t.Reset()
}

// startingState shows the starting indicator for a moment. A short push
// during that time resets the credentials.
type startingState struct {
	base
	timer *timer.Timer
}

var _ fsm.InitialState = (*startingState)(nil)

func (s *startingState) Init() {
	brightness := s.b.cfg.Brightness
	if brightness == 0 {
		brightness = DefaultBrightness
	}
	s.b.leds.SetBrightness(brightness)
	s.b.store.Reset()
}

func (s *startingState) Enter() {
	s.logEnter()
	s.b.leds.SetStatusLed(s.b.cfg.Colors.Starting)
	s.timer.StartOneShot(s.b.cfg.Timings.StartupDelay)
}

func (s *startingState) Exit() {
	s.logExit()
	stopTimer(s.timer)
}

func (s *startingState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	switch Signal(ev) {
	case Tick:
		if s.timer.IsExpired() {
			s.b.push(DelayDone)
		}
	case DelayDone:
		return s.b.toConnect
	case ShortPush:
		return s.b.toReset
	}
	return nil
}

// resettingState forgets the saved credentials while showing the test
// pattern.
type resettingState struct {
	base
	timer *timer.Timer
}

func (s *resettingState) Enter() {
	s.logEnter()
	s.b.leds.SetTestLeds()
	s.b.conn.ResetCredentials()
	s.timer.StartOneShot(s.b.cfg.Timings.ResetDelay)
}

func (s *resettingState) Exit() {
	s.logExit()
	stopTimer(s.timer)
}

func (s *resettingState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	if Signal(ev) == Tick && s.timer.IsExpired() {
		return s.b.toConnect
	}
	return nil
}

// connectingState waits for the network.
type connectingState struct {
	base
}

func (s *connectingState) Enter() {
	s.logEnter()
	s.b.leds.SetStatusLed(s.b.cfg.Colors.Connecting)
}

func (s *connectingState) Exit() { s.logExit() }

func (s *connectingState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	switch Signal(ev) {
	case Tick:
		if connected, done := s.b.conn.Connect(s.b.cfg.Timings.ConnectTimeout); done {
			if connected {
				s.b.push(Ping)
			} else {
				s.b.push(Fake)
			}
		}
	case Ping:
		return s.b.toPing
	case ShortPush, Fake:
		return s.b.toFake
	}
	return nil
}

// pingingState checks that the server answers.
type pingingState struct {
	base
}

func (s *pingingState) Enter() {
	s.logEnter()
	s.b.leds.SetStatusLed(s.b.cfg.Colors.Pinging)
}

func (s *pingingState) Exit() { s.logExit() }

func (s *pingingState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	switch Signal(ev) {
	case Tick:
		if ok, done := s.b.server.Ping(); done {
			if ok {
				s.b.push(LoadHistory)
			} else {
				s.b.push(Fake)
			}
		}
	case LoadHistory:
		return s.b.toLoadHistory
	case Fake:
		return s.b.toFake
	}
	return nil
}

type fetchStrategy struct {
	fetch func(buf []byte) (int, bool)
	valid func(data []byte) bool
}

// pollingState fetches a frame or a whole history, depending on the writer
// mode, and stores it.
type pollingState struct {
	base
	strategy fetchStrategy
	failures int
}

func (s *pollingState) Enter() {
	s.logEnter()
	s.failures = 0
	s.b.server.CancelFetch()

	switch s.b.store.WriterMode() {
	case store.WriterSingle:
		s.strategy = fetchStrategy{
			fetch: s.b.server.FetchFrame,
			valid: dataconv.IsFrameValid,
		}
	default:
		frames := s.b.cfg.HistoryFrames
		s.strategy = fetchStrategy{
			fetch: s.b.server.FetchHistory,
			valid: func(data []byte) bool { return dataconv.IsHistoryValid(data, frames) },
		}
	}
}

func (s *pollingState) Exit() {
	s.logExit()
	s.b.server.CancelFetch()
}

func (s *pollingState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	switch Signal(ev) {
	case Tick:
		s.poll()
	case DataOK:
		return s.b.toDataOK
	case Fake, Disconnected, NetworkDown:
		return s.b.toFake
	}
	return nil
}

func (s *pollingState) poll() {
	n, done := s.strategy.fetch(s.b.fetchBuf)
	if !done {
		return
	}

	data := s.b.fetchBuf[:n]
	if n == 0 || !s.strategy.valid(data) {
		s.failures++
		s.b.logger.Debug(
			"poll failed",
			"length", n,
			"failures", s.failures)
		if s.failures >= maxPollFailures {
			s.b.push(Fake)
		}
		return
	}

	if !s.b.store.Writer().Save(data) {
		s.b.logger.Warn(
			"failed to store received data",
			"writer", s.b.store.WriterMode(),
			"length", n)
	}
	s.b.push(DataOK)
}

// transitioningState animates the next frame of the current reader.
type transitioningState struct {
	base
	failures int
}

func (s *transitioningState) Enter() {
	s.logEnter()

	n := s.b.store.Reader().Read(s.b.frameBuf)
	count, ok := dataconv.ToLeds(s.b.frameBuf[:n], s.b.ledBuf)
	if ok {
		s.failures = 0
		s.b.leds.SetLeds(s.b.ledBuf[:count])
		return
	}

	s.failures++
	mode := s.b.store.ReaderMode()
	s.b.logger.Debug(
		"failed to decode frame",
		"reader", mode,
		"failures", s.failures)

	switch {
	case mode == store.ReaderOffline:
		panic("board: offline frame could not be decoded")
	case s.failures >= maxDecodeFailures:
		s.failures = 0
		s.b.push(Fake)
	}
}

func (s *transitioningState) Exit() { s.logExit() }

func (s *transitioningState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	switch Signal(ev) {
	case Tick:
		if !s.b.leds.RefreshTransition() {
			return nil
		}
		switch s.b.store.ReaderMode() {
		case store.ReaderLive:
			return s.b.toLiveDone
		case store.ReaderHistory:
			return s.b.toHistDone
		case store.ReaderOffline:
			return s.b.toFakeDone
		}
	case ShortPush:
		mode := s.b.store.ReaderMode()
		if mode == store.ReaderOffline {
			return nil
		}
		s.b.leds.ClearAllLeds()
		if mode == store.ReaderLive {
			s.b.store.SetReaderMode(store.ReaderHistory)
		} else {
			s.b.store.SetReaderMode(store.ReaderLive)
		}
		return s.b.toLoadHistory
	case Disconnected, NetworkDown:
		return s.b.toFakeDone
	case Fake:
		return s.b.toFake
	}
	return nil
}

// liveState shows the newest frame and polls for the next one.
type liveState struct {
	base
	pollTimer   *timer.Timer
	updateTimer *timer.Timer
}

func (s *liveState) Enter() {
	s.logEnter()
	s.pollTimer.StartOneShot(s.b.cfg.Timings.PollInterval)
	if !s.updateTimer.IsRunning() {
		s.updateTimer.StartOneShot(s.b.cfg.Timings.UpdateInterval)
	}
}

func (s *liveState) Exit() {
	s.logExit()
	stopTimer(s.pollTimer)
}

func (s *liveState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	switch Signal(ev) {
	case Tick:
		switch {
		case s.pollTimer.IsExpired():
			return s.b.toPollServer
		case s.updateTimer.IsExpired():
			s.updateTimer.Reset()
			return s.b.toUpdate
		}
	case Disconnected, NetworkDown:
		s.b.leds.ClearAllLeds()
		return s.b.toFake
	case ShortPush:
		s.b.leds.ClearAllLeds()
		s.b.store.SetReaderMode(store.ReaderHistory)
		return s.b.toLoadHistory
	}
	return nil
}

// offlineState shows the offline dataset and tries to reconnect.
type offlineState struct {
	base
	timer *timer.Timer
	retry *timer.Timer
	// dialing is set while a reconnect attempt is in progress.
	dialing bool
}

func (s *offlineState) Enter() {
	s.logEnter()
	s.timer.StartOneShot(s.b.cfg.Timings.OfflineRefresh)
}

func (s *offlineState) Exit() {
	s.logExit()
	stopTimer(s.timer)
}

func (s *offlineState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	switch Signal(ev) {
	case Tick:
		s.reconnect()
		if s.timer.IsExpired() {
			return s.b.toRefresh
		}
	case Connected:
		s.b.leds.ClearAllLeds()
		s.b.store.SetReaderMode(store.ReaderLive)
		return s.b.toLoadHistory
	case ShortPush:
		s.b.leds.ClearAllLeds()
		return s.b.toConnect
	}
	return nil
}

// updatingState applies a firmware update if there is one. Once an update
// has been applied, the board waits to be restarted.
type updatingState struct {
	base
	updated bool
}

func (s *updatingState) Enter() {
	s.logEnter()
	s.updated = false
}

func (s *updatingState) Exit() { s.logExit() }

func (s *updatingState) ProcessEvent(ev fsm.Event) *fsm.Transition {
	switch Signal(ev) {
	case Tick:
		switch {
		case s.updated:
		case !s.b.conn.IsConnected():
			s.b.push(NoUpdate)
		case s.b.server.UpdateFirmware():
			s.updated = true
		default:
			s.b.push(NoUpdate)
		}
	case NoUpdate:
		return s.b.toNoUpdate
	}
	return nil
}

// reconnect starts at most one connection attempt per ReconnectTimeout. The
// connection listener reports the outcome.
func (s *offlineState) reconnect() {
	if s.b.conn.IsConnected() || !s.b.conn.HasCredentials() {
		return
	}
	if !s.dialing && s.retry.IsRunning() {
		return
	}

	_, done := s.b.conn.Connect(s.b.cfg.Timings.ReconnectTimeout)
	s.dialing = !done
	if done {
		stopTimer(s.retry)
		s.retry.StartOneShot(s.b.cfg.Timings.ReconnectTimeout)
	}
}
