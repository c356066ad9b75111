package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/GyroDrive/internal/logic/motion"
	"github.com/cjeanneret/GyroDrive/internal/logic/sequence"
)

// subscriberBuffer is the per-client queue; a client that falls this far
// behind loses events.
const subscriberBuffer = 64

// StatusEvent is one SSE message: a log line, or a step outcome when Step
// is set.
type StatusEvent struct {
	Time  string     `json:"t"`
	Level string     `json:"l,omitempty"`
	Msg   string     `json:"msg"`
	Step  *StepEvent `json:"step,omitempty"`
}

// StepEvent reports how one step of a sequence ended.
type StepEvent struct {
	Index       int    `json:"index"` // 1-based
	Kind        string `json:"kind"`
	Step        string `json:"step"`
	Heading     int    `json:"heading"` // final reading, drift for straight runs
	Distance    int    `json:"distance_mm"`
	Direction   string `json:"direction,omitempty"`
	Ticks       int    `json:"ticks"`
	Corrections int    `json:"corrections"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	Error       string `json:"error,omitempty"`
}

// NewStepEvent builds the event for step number index (1-based) from its
// result. err may be nil.
func NewStepEvent(index int, step sequence.Step, res motion.Result, err error) StepEvent {
	evt := StepEvent{
		Index:       index,
		Kind:        string(step.Kind),
		Step:        step.String(),
		Heading:     res.Heading,
		Distance:    res.Distance,
		Ticks:       res.Ticks,
		Corrections: res.Corrections,
		ElapsedMs:   res.Elapsed.Milliseconds(),
	}
	if step.Kind == sequence.KindTurn {
		evt.Direction = res.Direction.String()
	}
	if err != nil {
		evt.Error = err.Error()
	}
	return evt
}

// summary is the log line shown by clients that ignore the step payload.
func (e StepEvent) summary() string {
	var s string
	if e.Kind == string(sequence.KindTurn) {
		s = fmt.Sprintf("Step %d (%s): heading %d %s", e.Index, e.Step, e.Heading, e.Direction)
	} else {
		s = fmt.Sprintf("Step %d (%s): %d mm, drift %d", e.Index, e.Step, e.Distance, e.Heading)
	}
	if e.Error != "" {
		s += ", failed: " + e.Error
	}
	return s
}

// StatusBroadcaster fans status events out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Broadcast sends a log line to all subscribed clients.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastStep sends a step outcome. Failed steps go out at level "error".
func (b *StatusBroadcaster) BroadcastStep(step StepEvent) {
	level := "info"
	if step.Error != "" {
		level = "error"
	}
	b.publish(StatusEvent{Level: level, Msg: step.summary(), Step: &step})
}

// publish stamps evt and queues it for every client without blocking;
// clients with a full queue miss it.
func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = b.now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// BroadcastWriter adapts the broadcaster to io.Writer so debug output
// reaches SSE clients, one info event per non-blank write.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast("info", msg)
	}
	return len(p), nil
}
