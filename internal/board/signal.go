package board

import "fmt"

// Signal is an event processed by the trainboard.
type Signal uint16

const (
	Tick Signal = iota
	DelayDone
	Ping
	Fake
	PollServer
	LoadHistory
	ShortPush
	Reconnect
	DataOK
	Retry
	LiveAnimationDone
	HistAnimationDone
	FakeAnimationDone
	NetworkUp
	NetworkDown
	Connected
	Disconnected
	CheckUpdate
	NoUpdate
)

var signalNames = [...]string{
	Tick:              "tick",
	DelayDone:         "delay_done",
	Ping:              "ping",
	Fake:              "fake",
	PollServer:        "poll_server",
	LoadHistory:       "load_history",
	ShortPush:         "short_push",
	Reconnect:         "reconnect",
	DataOK:            "data_ok",
	Retry:             "retry",
	LiveAnimationDone: "live_animation_done",
	HistAnimationDone: "hist_animation_done",
	FakeAnimationDone: "fake_animation_done",
	NetworkUp:         "network_up",
	NetworkDown:       "network_down",
	Connected:         "connected",
	Disconnected:      "disconnected",
	CheckUpdate:       "check_update",
	NoUpdate:          "no_update",
}

// String returns a string representation of the signal.
func (s Signal) String() string {
	if int(s) < len(signalNames) {
		return signalNames[s]
	}
	return fmt.Sprintf("Signal(%d)", s)
}

// QueueSize is the capacity of a Queue.
const QueueSize = 16

// Queue is a bounded FIFO of signals. It is owned by the goroutine running
// the event loop and is not safe for concurrent use.
type Queue struct {
	buf  [QueueSize]Signal
	head int
	n    int
}

// Push appends s to the queue. It returns false and drops s if the queue is
// full.
func (q *Queue) Push(s Signal) bool {
	if q.n == QueueSize {
		return false
	}
	q.buf[(q.head+q.n)%QueueSize] = s
	q.n++
	return true
}

// Pop removes the oldest signal from the queue.
func (q *Queue) Pop() (Signal, bool) {
	if q.n == 0 {
		return 0, false
	}
	s := q.buf[q.head]
	q.head = (q.head + 1) % QueueSize
	q.n--
	return s, true
}

// Len returns the number of queued signals.
func (q *Queue) Len() int { return q.n }

// Empty returns true if no signal is queued.
func (q *Queue) Empty() bool { return q.n == 0 }
