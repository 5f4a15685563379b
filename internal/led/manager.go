package led

// Manager animates the strips from the active LED set to a new one.
//
// A transition lasts a fixed number of ticks. During the first half, LEDs
// that change color fade out. During the second half, new LEDs fade in while
// removed LEDs fade out. Unchanged LEDs are never touched.
type Manager struct {
	strips    []Strip
	presenter Presenter

	duration int
	half     int

	active  []Led
	pending []Led
	in      []Led
	out     []Led
	swap    []Led

	count         int
	transitioning bool
	status        Color
	statusSet     bool
}

// NewManager creates a manager for the given strips. duration is the length
// of a transition in ticks and must be even and at least 2.
func NewManager(strips []Strip, presenter Presenter, duration int) *Manager {
	if duration < 2 || duration%2 != 0 {
		panic("led: transition duration must be even and at least 2")
	}

	return &Manager{
		strips:    strips,
		presenter: presenter,
		duration:  duration,
		half:      duration / 2,
		active:    make([]Led, 0, MaxLeds),
		pending:   make([]Led, 0, MaxLeds),
		in:        make([]Led, 0, MaxLeds),
		out:       make([]Led, 0, MaxLeds),
		swap:      make([]Led, 0, MaxLeds),
	}
}

// Init initializes every strip.
func (m *Manager) Init() {
	for _, strip := range m.strips {
		strip.Init()
	}
}

// Transitioning returns true while a transition is in progress.
func (m *Manager) Transitioning() bool {
	return m.transitioning
}

// Active returns the LEDs currently displayed. The slice must not be
// modified.
func (m *Manager) Active() []Led {
	return m.active
}

// SetStatusLed shows color on the first LED of every strip on an otherwise
// dark board. It is rejected while a transition is in progress.
func (m *Manager) SetStatusLed(color Color) bool {
	if m.transitioning {
		return false
	}

	m.ClearAllLeds()
	m.status = color
	m.statusSet = true
	for _, strip := range m.strips {
		strip.Set(0, color, 0xFF)
	}
	m.presenter.Show()
	return true
}

// SetTestLeds lights up every strip with its test color. It is rejected while
// a transition is in progress.
func (m *Manager) SetTestLeds() bool {
	if m.transitioning {
		return false
	}

	for _, strip := range m.strips {
		strip.Test()
	}
	m.presenter.Show()
	return true
}

// SetLeds starts a transition to the given LEDs, abandoning any transition in
// progress. LEDs outside the configured strips are dropped.
func (m *Manager) SetLeds(leds []Led) {
	m.clearStatusLeds()
	m.resetTransition()
	m.transitioning = true

	m.pending = m.pending[:0]
	for _, l := range leds {
		strip := l.Strip()
		if strip >= len(m.strips) || l.Position() >= m.strips[strip].Size() {
			continue
		}
		m.pending = append(m.pending, l)
	}

	for _, l := range m.pending {
		if i := m.findColorChange(l); i >= 0 {
			m.swap = append(m.swap, m.active[i])
			m.in = append(m.in, l)
			continue
		}
		if !contains(m.active, l) {
			m.in = append(m.in, l)
		}
	}

	for _, l := range m.active {
		if !contains(m.pending, l) {
			m.out = append(m.out, l)
		}
	}
}

// RefreshTransition advances the transition by one tick and shows the
// result. It returns true once the transition has finished.
func (m *Manager) RefreshTransition() bool {
	m.count++

	finished := m.count >= m.duration
	switch {
	case finished:
		m.fadeInOut(0xFF)
		if m.transitioning {
			m.active, m.pending = m.pending, m.active[:0]
			m.transitioning = false
		}
	case m.count < m.half:
		scale := clamp8(2 * m.count * 0xFF / m.duration)
		m.draw(m.swap, 0xFF-scale)
	default:
		scale := clamp8(0xFF * (m.count - m.half) / m.half)
		m.fadeInOut(scale)
	}

	m.presenter.Show()
	return finished
}

// ClearAllLeds turns every strip off and forgets the active set. It is
// always allowed, even during a transition.
func (m *Manager) ClearAllLeds() {
	for _, strip := range m.strips {
		strip.ClearAll()
	}
	m.presenter.Show()
	m.resetTransition()
	m.active = m.active[:0]
	m.pending = m.pending[:0]
}

// SetBrightness sets the global brightness of the presenter.
func (m *Manager) SetBrightness(level uint8) {
	m.presenter.SetBrightness(level)
}

func (m *Manager) clearStatusLeds() {
	if !m.statusSet {
		return
	}
	for _, strip := range m.strips {
		strip.Set(0, Black, 0)
	}
	m.statusSet = false
}

func (m *Manager) resetTransition() {
	m.count = 0
	m.transitioning = false
	m.in = m.in[:0]
	m.out = m.out[:0]
	m.swap = m.swap[:0]
}

// findColorChange returns the index of the first active LED with the same ID
// as l but a different color, or -1.
func (m *Manager) findColorChange(l Led) int {
	for i, active := range m.active {
		if active.ID == l.ID && active.Color != l.Color {
			return i
		}
	}
	return -1
}

func (m *Manager) fadeInOut(scaleIn uint8) {
	m.draw(m.out, 0xFF-scaleIn)
	m.draw(m.in, scaleIn)
}

func (m *Manager) draw(leds []Led, scale uint8) {
	for _, l := range leds {
		m.strips[l.Strip()].Set(l.Position(), l.Color, scale)
	}
}

func contains(leds []Led, l Led) bool {
	for _, other := range leds {
		if other.Equal(l) {
			return true
		}
	}
	return false
}

func clamp8(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 0xFF:
		return 0xFF
	default:
		return uint8(v)
	}
}
