// Package hotkey maps global key combos to pipeline actions using gohook.
// In "toggle" mode the record combo toggles recording; in "hold" mode
// recording runs while the combo is held.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// Action is what a hotkey asks the controller to do.
type Action int

const (
	ActionToggle   Action = iota // toggle mode record combo
	ActionStart                  // hold mode press
	ActionRelease                // hold mode release
	ActionHardStop               // stop combo
	ActionSubmit                 // close the current utterance
	ActionClear                  // stop recording and purge the queue
)

func (a Action) String() string {
	switch a {
	case ActionToggle:
		return "toggle"
	case ActionStart:
		return "start"
	case ActionRelease:
		return "release"
	case ActionHardStop:
		return "hard-stop"
	case ActionSubmit:
		return "submit"
	case ActionClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Action Action
}

// Bindings holds the key combos, each as lowercase key names such as
// ["ctrl", "shift", "f1"]. A nil combo is not bound.
type Bindings struct {
	Mode   string // "hold" or "toggle"
	Record []string
	Stop   []string
	Submit []string
	Clear  []string
}

type registerFunc func(when uint8, keys []string, cb func(hook.Event))

// Listener registers the bindings and emits an Event per activation.
type Listener struct {
	b    Bindings
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener for b.
func NewListener(b Bindings) *Listener {
	return &Listener{
		b:    b,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events. It is closed when
// Start returns.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start registers the bindings and blocks until Stop is called. Run it in a
// goroutine.
func (l *Listener) Start() {
	l.register(hook.Register)

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the listener. It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

func (l *Listener) register(reg registerFunc) {
	if len(l.b.Record) > 0 {
		if l.b.Mode == "hold" {
			reg(hook.KeyDown, l.b.Record, l.emitter(ActionStart))
			reg(hook.KeyUp, l.b.Record, l.emitter(ActionRelease))
		} else {
			reg(hook.KeyDown, l.b.Record, l.emitter(ActionToggle))
		}
	}
	if len(l.b.Stop) > 0 {
		reg(hook.KeyDown, l.b.Stop, l.emitter(ActionHardStop))
	}
	if len(l.b.Submit) > 0 {
		reg(hook.KeyDown, l.b.Submit, l.emitter(ActionSubmit))
	}
	if len(l.b.Clear) > 0 {
		reg(hook.KeyDown, l.b.Clear, l.emitter(ActionClear))
	}
}

func (l *Listener) emitter(a Action) func(hook.Event) {
	return func(hook.Event) {
		select {
		case l.ch <- Event{Action: a}:
		default: // don't block the hook thread
		}
	}
}
