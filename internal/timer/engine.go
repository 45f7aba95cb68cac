// Package timer drives the per-question countdown of a quiz session.
package timer

import (
	"sync"
	"time"
)

// Kind distinguishes a countdown tick from the final expiry.
type Kind int

const (
	KindTick Kind = iota + 1
	KindExpired
)

// Event is delivered once per second while a run is active. The last event of
// a run has Kind == KindExpired and Remaining == 0.
type Event struct {
	Kind      Kind
	Remaining int
	Run       uint64
}

// TickerFunc returns a channel ticking every d and a function stopping it.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// RealTicker is the production TickerFunc backed by time.Ticker.
func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Engine runs one countdown at a time. Starting a new countdown stops the
// previous one; events of a stopped run are never delivered again, but an
// event already queued may still be read, so consumers compare Event.Run
// against Active.
type Engine struct {
	mu        sync.Mutex
	newTicker TickerFunc
	events    chan Event
	run       uint64
	active    bool
	done      chan struct{}
}

// NewEngine creates an Engine. A nil newTicker uses RealTicker.
func NewEngine(newTicker TickerFunc) *Engine {
	if newTicker == nil {
		newTicker = RealTicker
	}
	return &Engine{
		newTicker: newTicker,
		events:    make(chan Event, 8),
	}
}

// Events is the single channel every run delivers on.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Start begins a countdown of limit seconds and returns its run id.
func (e *Engine) Start(limit int) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.run++
	e.active = true
	e.done = make(chan struct{})

	ticks, stop := e.newTicker(time.Second)
	go e.loop(e.run, limit, ticks, stop, e.done)

	return e.run
}

// Stop halts the active countdown, if any.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// Active returns the id of the running countdown, or 0 when stopped.
func (e *Engine) Active() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return 0
	}
	return e.run
}

func (e *Engine) stopLocked() {
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	e.active = false
}

func (e *Engine) loop(run uint64, remaining int, ticks <-chan time.Time, stop func(), done <-chan struct{}) {
	defer stop()

	for {
		select {
		case <-done:
			return
		case <-ticks:
			select {
			case <-done:
				return
			default:
			}

			remaining--
			ev := Event{Kind: KindTick, Remaining: remaining, Run: run}
			if remaining <= 0 {
				ev = Event{Kind: KindExpired, Remaining: 0, Run: run}
			}

			select {
			case e.events <- ev:
			case <-done:
				return
			}

			if ev.Kind == KindExpired {
				return
			}
		}
	}
}
