// Package playback adapts a media element's time signal into clock events.
package playback

import (
	"fmt"
	"sync"
)

// State is the position of the clock in its small state machine:
// STOPPED_AT_START -> PLAYING -> ENDED -> (replay) -> PLAYING.
type State string

const (
	StateStoppedAtStart State = "STOPPED_AT_START"
	StatePlaying        State = "PLAYING"
	StateEnded          State = "ENDED"
)

// MediaSource is anything that can be restarted: a browser <video> reached over
// a websocket, or a virtual ticker in the terminal player.
type MediaSource interface {
	Seek(seconds float64) error
	Play() error
}

// Listener receives clock events. Any field may be nil.
type Listener struct {
	OnTimeUpdate func(t float64)
	OnEnded      func()
	OnPlay       func()
}

// Clock wraps a MediaSource and keeps the ended flag used to offer a replay.
type Clock struct {
	mu        sync.Mutex
	source    MediaSource
	state     State
	ended     bool
	listeners []Listener
}

// NewClock returns a clock in STOPPED_AT_START over source. source may be nil
// until a media element is attached.
func NewClock(source MediaSource) *Clock {
	return &Clock{source: source, state: StateStoppedAtStart}
}

// Attach replaces the media source and rewinds the state machine.
func (c *Clock) Attach(source MediaSource) {
	c.mu.Lock()
	c.source = source
	c.state = StateStoppedAtStart
	c.ended = false
	c.mu.Unlock()
}

// Rewind keeps the source but returns to STOPPED_AT_START and clears the
// ended flag, so the next media's end is reported.
func (c *Clock) Rewind() {
	c.mu.Lock()
	c.state = StateStoppedAtStart
	c.ended = false
	c.mu.Unlock()
}

// Subscribe registers l for all subsequent events.
func (c *Clock) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// State returns the current state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsEnded reports whether the replay affordance should be shown.
func (c *Clock) IsEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// TimeUpdate is called on every progress tick of the source. A tick after the
// end (seek back, manual restart) clears the ended flag.
func (c *Clock) TimeUpdate(t float64) {
	c.mu.Lock()
	c.ended = false
	c.state = StatePlaying
	listeners := c.snapshot()
	c.mu.Unlock()

	for _, l := range listeners {
		if l.OnTimeUpdate != nil {
			l.OnTimeUpdate(t)
		}
	}
}

// Ended is called when the source reaches its end. Duplicate end signals while
// already ended are swallowed so listeners see the end exactly once.
func (c *Clock) Ended() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.state = StateEnded
	listeners := c.snapshot()
	c.mu.Unlock()

	for _, l := range listeners {
		if l.OnEnded != nil {
			l.OnEnded()
		}
	}
}

// Play is called when the source starts playing, including a manual restart
// through native controls.
func (c *Clock) Play() {
	c.mu.Lock()
	c.ended = false
	c.state = StatePlaying
	listeners := c.snapshot()
	c.mu.Unlock()

	c.notifyPlay(listeners)
}

// Replay rewinds the source to zero, resumes it and clears the ended flag.
func (c *Clock) Replay() error {
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()

	if source == nil {
		return fmt.Errorf("replay: no media source attached")
	}
	if err := source.Seek(0); err != nil {
		return fmt.Errorf("replay: seek: %w", err)
	}
	if err := source.Play(); err != nil {
		return fmt.Errorf("replay: play: %w", err)
	}

	c.mu.Lock()
	c.ended = false
	c.state = StatePlaying
	listeners := c.snapshot()
	c.mu.Unlock()

	c.notifyPlay(listeners)
	return nil
}

func (c *Clock) notifyPlay(listeners []Listener) {
	for _, l := range listeners {
		if l.OnPlay != nil {
			l.OnPlay()
		}
	}
}

// snapshot copies the listener list; callers hold c.mu.
func (c *Clock) snapshot() []Listener {
	out := make([]Listener, len(c.listeners))
	copy(out, c.listeners)
	return out
}
