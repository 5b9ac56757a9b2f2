package playback

import (
	"context"
	"sync"
	"time"
)

const defaultTickInterval = 100 * time.Millisecond

// TickerSource is a virtual media element: it advances a position at a fixed
// cadence while playing and reports progress into a Clock, the way a browser
// reports timeupdate and ended events.
type TickerSource struct {
	mu       sync.Mutex
	sink     *Clock
	duration float64
	rate     float64
	interval time.Duration
	position float64
	playing  bool
}

// TickerOption customizes a TickerSource.
type TickerOption func(*TickerSource)

// WithRate sets the playback rate (1 = real time).
func WithRate(rate float64) TickerOption {
	return func(s *TickerSource) {
		if rate > 0 {
			s.rate = rate
		}
	}
}

// WithTickInterval sets how often progress is reported.
func WithTickInterval(d time.Duration) TickerOption {
	return func(s *TickerSource) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewTickerSource returns a paused source of the given duration in seconds.
func NewTickerSource(duration float64, opts ...TickerOption) *TickerSource {
	s := &TickerSource{
		duration: duration,
		rate:     1,
		interval: defaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind sets the clock that receives progress.
func (s *TickerSource) Bind(c *Clock) {
	s.mu.Lock()
	s.sink = c
	s.mu.Unlock()
}

// Seek moves the position, clamped to [0, duration].
func (s *TickerSource) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = clamp(seconds, 0, s.duration)
	return nil
}

// Play starts (or restarts, when at the end) playback.
func (s *TickerSource) Play() error {
	s.mu.Lock()
	if s.position >= s.duration {
		s.position = 0
	}
	s.playing = true
	s.mu.Unlock()
	return nil
}

// Pause stops advancing without touching the position.
func (s *TickerSource) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

// Position returns the current position in seconds.
func (s *TickerSource) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Playing reports whether the source is advancing.
func (s *TickerSource) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Run advances the source every tick interval until ctx is done.
func (s *TickerSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Advance(s.interval)
		}
	}
}

// Advance moves a playing source forward by d of wall time and reports the
// new position. Reaching the end reports a last tick followed by the end.
func (s *TickerSource) Advance(d time.Duration) {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.position += d.Seconds() * s.rate
	ended := false
	if s.position >= s.duration {
		s.position = s.duration
		s.playing = false
		ended = true
	}
	pos := s.position
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return
	}
	sink.TimeUpdate(pos)
	if ended {
		sink.Ended()
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
