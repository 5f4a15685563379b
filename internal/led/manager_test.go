package led

import (
	"reflect"
	"testing"
)

const testDuration = 20

type countingPresenter struct {
	shows      int
	brightness uint8
}

func (p *countingPresenter) Show()                     { p.shows++ }
func (p *countingPresenter) SetBrightness(level uint8) { p.brightness = level }

func newTestManager(t *testing.T, sizes ...int) (*Manager, []*BufferStrip, *countingPresenter) {
	t.Helper()
	strips := NewBufferStrips(sizes)
	presenter := &countingPresenter{}
	m := NewManager(AsStrips(strips), presenter, testDuration)
	m.Init()
	return m, strips, presenter
}

func runTransition(m *Manager) {
	for !m.RefreshTransition() {
	}
}

func stripColors(s *BufferStrip) []Color {
	colors := make([]Color, s.Size())
	for i, c := range s.LEDs() {
		colors[i] = c.Color()
	}
	return colors
}

func ledsFromColors(strip uint8, colors []Color) []Led {
	leds := make([]Led, 0, len(colors))
	for i, c := range colors {
		leds = append(leds, New(strip, uint8(i), c))
	}
	return leds
}

func TestManager_TransitionDuration(t *testing.T) {
	m, _, presenter := newTestManager(t, 8)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3}))

	for i := 1; i < testDuration; i++ {
		if m.RefreshTransition() {
			t.Fatalf("transition finished early at tick %d", i)
		}
	}
	if !m.RefreshTransition() {
		t.Fatalf("transition not finished at tick %d", testDuration)
	}
	if presenter.shows != testDuration {
		t.Fatalf("shows = %d, want %d", presenter.shows, testDuration)
	}
	if m.Transitioning() {
		t.Fatal("still transitioning after the last tick")
	}
}

func TestManager_SetLedsRestartsTransition(t *testing.T) {
	m, _, _ := newTestManager(t, 8)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3}))
	runTransition(m)

	m.SetLeds(make([]Led, 8))
	if m.RefreshTransition() {
		t.Fatal("new transition finished after one tick")
	}
}

func TestManager_UnchangedLedsStay(t *testing.T) {
	initial := []Color{1, 2, 3, 4, 5, 6, 7, 8}

	m, strips, _ := newTestManager(t, 8)
	m.SetLeds(ledsFromColors(0, initial))
	runTransition(m)

	m.SetLeds(ledsFromColors(0, initial))
	for i := 1; i <= testDuration; i++ {
		m.RefreshTransition()
		if got := stripColors(strips[0]); !reflect.DeepEqual(got, initial) {
			t.Fatalf("tick %d: strip = %v, want %v", i, got, initial)
		}
	}
}

func TestManager_NewLedsAppear(t *testing.T) {
	m, strips, _ := newTestManager(t, 8)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3, 4, 5, 6, 7, 8}))
	runTransition(m)

	want := []Color{11, 12, 13, 14, 15, 16, 17, 18}
	m.SetLeds(ledsFromColors(0, want))
	runTransition(m)

	if got := stripColors(strips[0]); !reflect.DeepEqual(got, want) {
		t.Fatalf("strip = %v, want %v", got, want)
	}
}

func TestManager_OmittedLedFadesOut(t *testing.T) {
	m, strips, _ := newTestManager(t, 8)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3, 4, 5, 6, 7, 8}))
	runTransition(m)

	next := ledsFromColors(0, []Color{1, 2, 3, 4, 5, 6, 7, 8})
	next = append(next[:4], next[5:]...)
	m.SetLeds(next)
	runTransition(m)

	want := []Color{1, 2, 3, 4, 0, 6, 7, 8}
	if got := stripColors(strips[0]); !reflect.DeepEqual(got, want) {
		t.Fatalf("strip = %v, want %v", got, want)
	}
}

func TestManager_SwappedLedsFadeThroughBlack(t *testing.T) {
	m, strips, _ := newTestManager(t, 8)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3, 4, 5, 6, 7, 8}))
	runTransition(m)

	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3, 5, 4, 6, 7, 8}))
	for i := 0; i < testDuration/2; i++ {
		m.RefreshTransition()
	}

	half := stripColors(strips[0])
	if half[3] != 0 || half[4] != 0 {
		t.Fatalf("swapped LEDs at half transition = %v, %v, want 0, 0", half[3], half[4])
	}
	if half[0] != 1 || half[7] != 8 {
		t.Fatalf("unchanged LEDs modified at half transition: %v", half)
	}

	runTransition(m)
	want := []Color{1, 2, 3, 5, 4, 6, 7, 8}
	if got := stripColors(strips[0]); !reflect.DeepEqual(got, want) {
		t.Fatalf("strip = %v, want %v", got, want)
	}
}

func TestManager_SwapFadesOutDuringFirstHalf(t *testing.T) {
	m, strips, _ := newTestManager(t, 1)
	m.SetLeds([]Led{New(0, 0, White)})
	runTransition(m)

	m.SetLeds([]Led{New(0, 0, Red)})
	m.RefreshTransition()
	first := strips[0].LEDs()[0]
	for i := 2; i < testDuration/2; i++ {
		m.RefreshTransition()
	}
	last := strips[0].LEDs()[0]

	if first[0] <= last[0] {
		t.Fatalf("old color did not fade out: first %v, last %v", first, last)
	}
	if last[1] == 0 || last[2] == 0 {
		t.Fatalf("old color already gone before half transition: %v", last)
	}
}

func TestManager_EmptySetFadesEverythingOut(t *testing.T) {
	m, strips, _ := newTestManager(t, 4)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3, 4}))
	runTransition(m)

	m.SetLeds(nil)
	runTransition(m)

	want := []Color{0, 0, 0, 0}
	if got := stripColors(strips[0]); !reflect.DeepEqual(got, want) {
		t.Fatalf("strip = %v, want %v", got, want)
	}
	if len(m.Active()) != 0 {
		t.Fatalf("active = %v, want empty", m.Active())
	}
}

func TestManager_OutOfRangeLedsDropped(t *testing.T) {
	m, strips, _ := newTestManager(t, 4, 2)
	m.SetLeds([]Led{
		New(0, 1, Red),
		New(0, 4, Red), // past the end of strip 0
		New(1, 1, Blue),
		New(2, 0, Green), // no such strip
	})
	runTransition(m)

	if got := stripColors(strips[0]); !reflect.DeepEqual(got, []Color{0, Red, 0, 0}) {
		t.Fatalf("strip 0 = %v", got)
	}
	if got := stripColors(strips[1]); !reflect.DeepEqual(got, []Color{0, Blue}) {
		t.Fatalf("strip 1 = %v", got)
	}
	if len(m.Active()) != 2 {
		t.Fatalf("active = %v, want 2 LEDs", m.Active())
	}
}

func TestManager_ActiveInstalledOnCompletion(t *testing.T) {
	m, _, _ := newTestManager(t, 4)
	m.SetLeds(ledsFromColors(0, []Color{1, 2}))
	runTransition(m)

	m.SetLeds(ledsFromColors(0, []Color{3, 4, 5}))
	m.RefreshTransition()
	if len(m.Active()) != 2 {
		t.Fatalf("active changed during transition: %v", m.Active())
	}

	runTransition(m)
	if len(m.Active()) != 3 {
		t.Fatalf("active = %v, want the new set", m.Active())
	}
}

func TestManager_DuplicateLastColorWins(t *testing.T) {
	m, strips, _ := newTestManager(t, 2)
	m.SetLeds([]Led{New(0, 0, Red)})
	runTransition(m)

	m.SetLeds([]Led{New(0, 0, Red), New(0, 0, Blue)})
	runTransition(m)

	if got := strips[0].LEDs()[0].Color(); got != Blue {
		t.Fatalf("position 0 = %v, want %v", got, Blue)
	}
}

func TestManager_StatusLedGatedDuringTransition(t *testing.T) {
	m, strips, presenter := newTestManager(t, 4, 4)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3, 4}))
	m.RefreshTransition()

	before := stripColors(strips[0])
	shows := presenter.shows
	if m.SetStatusLed(Red) {
		t.Fatal("SetStatusLed accepted during a transition")
	}
	if got := stripColors(strips[0]); !reflect.DeepEqual(got, before) {
		t.Fatalf("strip changed: %v, want %v", got, before)
	}
	if presenter.shows != shows {
		t.Fatal("SetStatusLed showed during a transition")
	}
	if m.SetTestLeds() {
		t.Fatal("SetTestLeds accepted during a transition")
	}
}

func TestManager_StatusLed(t *testing.T) {
	m, strips, _ := newTestManager(t, 4, 3)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3, 4}))
	runTransition(m)

	if !m.SetStatusLed(Blue) {
		t.Fatal("SetStatusLed rejected while idle")
	}
	if got := stripColors(strips[0]); !reflect.DeepEqual(got, []Color{Blue, 0, 0, 0}) {
		t.Fatalf("strip 0 = %v", got)
	}
	if got := stripColors(strips[1]); !reflect.DeepEqual(got, []Color{Blue, 0, 0}) {
		t.Fatalf("strip 1 = %v", got)
	}
}

func TestManager_SetLedsClearsStatusWithoutShow(t *testing.T) {
	m, strips, presenter := newTestManager(t, 4)
	m.SetStatusLed(Purple)

	shows := presenter.shows
	m.SetLeds([]Led{New(0, 2, Green)})

	if presenter.shows != shows {
		t.Fatal("SetLeds showed")
	}
	if got := strips[0].LEDs()[0].Color(); got != Black {
		t.Fatalf("status LED = %v, want cleared", got)
	}
}

func TestManager_ClearAllLeds(t *testing.T) {
	m, strips, _ := newTestManager(t, 4)
	m.SetLeds(ledsFromColors(0, []Color{1, 2, 3, 4}))
	m.RefreshTransition()

	m.ClearAllLeds()
	if m.Transitioning() {
		t.Fatal("still transitioning after ClearAllLeds")
	}
	if got := stripColors(strips[0]); !reflect.DeepEqual(got, []Color{0, 0, 0, 0}) {
		t.Fatalf("strip = %v", got)
	}
	if len(m.Active()) != 0 {
		t.Fatalf("active = %v, want empty", m.Active())
	}
}

func TestManager_SetTestLeds(t *testing.T) {
	m, strips, presenter := newTestManager(t, 2)
	if !m.SetTestLeds() {
		t.Fatal("SetTestLeds rejected while idle")
	}
	for i, c := range strips[0].LEDs() {
		if c != TestColor {
			t.Fatalf("LED %d = %v, want %v", i, c, TestColor)
		}
	}
	if presenter.shows != 1 {
		t.Fatalf("shows = %d, want 1", presenter.shows)
	}
}

func TestManager_SetBrightness(t *testing.T) {
	m, _, presenter := newTestManager(t, 2)
	m.SetBrightness(42)
	if presenter.brightness != 42 {
		t.Fatalf("brightness = %d, want 42", presenter.brightness)
	}
}
