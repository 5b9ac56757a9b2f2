package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"AzzKaraoke/core/lyrics"
	"AzzKaraoke/core/playback"
	"AzzKaraoke/logger"
	"AzzKaraoke/model"
)

// Transcriber turns a music video into timed lyrics. Implementations are the
// Gemini client and its Redis-backed cache.
type Transcriber interface {
	ProcessMusicVideo(ctx context.Context, data []byte, mimeType string) (*model.SongMetadata, error)
}

// FileRef is a file chosen by the user. A zero FileRef means the selection
// was cancelled.
type FileRef struct {
	Name     string
	MIMEType string
	Open     func() (io.ReadCloser, error)
}

// Empty reports whether nothing was selected.
func (r FileRef) Empty() bool {
	return r.Open == nil
}

// Locator returns the reference the media element plays ref from.
type Locator func(ctx context.Context, ref FileRef) (string, error)

// Messages are the fixed user-visible failure texts.
type Messages struct {
	ReadFailure string
	AIFailure   string
}

// DefaultMessages 默认界面文案
var DefaultMessages = Messages{
	ReadFailure: "Lỗi tải file.",
	AIFailure:   "Lỗi xử lý AI. Thử lại video khác.",
}

// FrameUpdate is a derived frame plus the replay affordance.
type FrameUpdate struct {
	lyrics.Frame
	Ended bool `json:"ended"`
}

// Listener receives controller notifications. Callbacks run while the
// controller lock is held and must not call back into mutating methods.
type Listener struct {
	OnState  func(State)
	OnFrame  func(FrameUpdate)
	OnScroll func(top float64)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocator sets how a selected file becomes playable.
func WithLocator(l Locator) Option {
	return func(c *Controller) {
		if l != nil {
			c.locate = l
		}
	}
}

// WithMessages overrides the failure texts; empty fields keep the defaults.
func WithMessages(m Messages) Option {
	return func(c *Controller) {
		if m.ReadFailure != "" {
			c.messages.ReadFailure = m.ReadFailure
		}
		if m.AIFailure != "" {
			c.messages.AIFailure = m.AIFailure
		}
	}
}

// WithProcessTimeout bounds one read + AI round trip. Zero means no limit.
func WithProcessTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// Controller serializes every transition of one viewer under a mutex and
// wires clock ticks through the resolver into the scroll synchronizer.
type Controller struct {
	mu        sync.Mutex
	state     State
	frame     FrameUpdate
	gen       uint64
	cause     error
	listeners []Listener

	transcriber Transcriber
	locate      Locator
	messages    Messages
	timeout     time.Duration

	clock  *playback.Clock
	scroll *lyrics.ScrollSynchronizer
	wg     sync.WaitGroup
}

// New returns an IDLE controller.
func New(t Transcriber, opts ...Option) *Controller {
	c := &Controller{
		state:       Initial(),
		frame:       FrameUpdate{Frame: lyrics.DeriveFrame(0, nil)},
		transcriber: t,
		locate:      func(_ context.Context, ref FileRef) (string, error) { return ref.Name, nil },
		messages:    DefaultMessages,
		scroll:      lyrics.NewScrollSynchronizer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.clock = playback.NewClock(nil)
	c.clock.Subscribe(playback.Listener{
		OnTimeUpdate: func(t float64) { c.Dispatch(TimeUpdated{Time: t}) },
		OnEnded:      func() { c.Dispatch(PlaybackEnded{}) },
		OnPlay:       func() { c.Dispatch(PlaybackStarted{}) },
	})
	return c
}

// Clock is the playback clock media sources report into.
func (c *Controller) Clock() *playback.Clock {
	return c.clock
}

// Subscribe registers l for subsequent notifications.
func (c *Controller) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Frame returns the last derived frame.
func (c *Controller) Frame() FrameUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Cause returns the underlying error of the current ERROR state, if any.
func (c *Controller) Cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// SelectFile starts processing ref and returns its request generation. An
// empty ref is ignored. The read and the AI call run in the background and are
// not tied to ctx's cancellation; their result is discarded if another file is
// selected first.
func (c *Controller) SelectFile(ctx context.Context, ref FileRef) (uint64, error) {
	if ref.Empty() {
		return 0, nil
	}

	url, locErr := c.locate(ctx, ref)
	gen := c.nextGeneration()

	next := c.Dispatch(FileSelected{Generation: gen, FileName: ref.Name, VideoURL: url})
	if next.Generation != gen {
		return gen, nil
	}
	if locErr != nil {
		c.fail(gen, c.messages.ReadFailure, fmt.Errorf("locate %s: %w", ref.Name, locErr))
		return gen, locErr
	}

	logger.Info("开始处理视频",
		logger.String("file", ref.Name),
		logger.String("mime", ref.MIMEType),
		logger.Uint64("generation", gen))

	c.wg.Add(1)
	go c.process(context.WithoutCancel(ctx), gen, ref)
	return gen, nil
}

func (c *Controller) process(ctx context.Context, gen uint64, ref FileRef) {
	defer c.wg.Done()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := readAll(ref)
	if err != nil {
		c.fail(gen, c.messages.ReadFailure, fmt.Errorf("read %s: %w", ref.Name, err))
		return
	}

	if c.transcriber == nil {
		c.fail(gen, c.messages.AIFailure, errors.New("no transcriber configured"))
		return
	}
	start := time.Now()
	meta, err := c.transcriber.ProcessMusicVideo(ctx, data, ref.MIMEType)
	if err == nil && meta == nil {
		err = errors.New("transcriber returned no metadata")
	}
	if err != nil {
		c.fail(gen, c.messages.AIFailure, fmt.Errorf("process %s: %w", ref.Name, err))
		return
	}

	next := c.Dispatch(ProcessSucceeded{Generation: gen, Metadata: meta})
	if next.Generation != gen {
		logger.Debug("丢弃过期的处理结果", logger.Uint64("generation", gen))
		return
	}
	logger.Info("视频处理完成",
		logger.String("file", ref.Name),
		logger.String("title", meta.Title),
		logger.Int("lines", len(meta.Subtitles)),
		logger.Duration("elapsed", time.Since(start)))
}

func (c *Controller) fail(gen uint64, msg string, cause error) {
	logger.Warn("视频处理失败", logger.Uint64("generation", gen), logger.ErrorField(cause))

	c.mu.Lock()
	current := c.state.Generation == gen
	if current {
		c.cause = cause
	}
	c.mu.Unlock()

	if current {
		c.Dispatch(ProcessFailed{Generation: gen, Message: msg})
	}
}

func readAll(ref FileRef) ([]byte, error) {
	rc, err := ref.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// LoadMetadata enters READY directly with metadata produced earlier, such as
// a structured export or a persisted session.
func (c *Controller) LoadMetadata(meta *model.SongMetadata, fileName, videoURL string) State {
	gen := c.nextGeneration()
	return c.Dispatch(MetadataLoaded{Generation: gen, FileName: fileName, VideoURL: videoURL, Metadata: meta})
}

// Reset returns to IDLE; any in-flight result is discarded.
func (c *Controller) Reset() State {
	gen := c.nextGeneration()
	return c.Dispatch(Reset{Generation: gen})
}

// nextGeneration starts a new media generation; the clock forgets any end
// reported for the previous one.
func (c *Controller) nextGeneration() uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.clock.Rewind()
	return gen
}

// Replay rewinds the media source and resumes playback.
func (c *Controller) Replay() error {
	if err := c.clock.Replay(); err != nil {
		return err
	}
	c.Dispatch(Replayed{})
	return nil
}

// SetLayout mounts the renderer's scroll container. The active line, if any,
// is re-centred immediately.
func (c *Controller) SetLayout(layout *lyrics.Layout) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scroll.SetLayout(layout)
	if c.state.Status == model.StatusReady {
		c.syncScroll(c.frame.ActiveLineID)
	}
}

// Wait blocks until every background request has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Dispatch applies ev and notifies listeners of what changed.
func (c *Controller) Dispatch(ev Event) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	next := Reduce(prev, ev)
	c.state = next

	if next.Generation != prev.Generation {
		c.scroll.Reset()
		if next.Status != model.StatusError {
			c.cause = nil
		}
	}

	frame := derive(next)
	frameChanged := !frame.SameHighlight(c.frame.Frame) ||
		frame.Ended != c.frame.Ended ||
		!slices.Equal(frame.Passed, c.frame.Passed)
	c.frame = frame

	if stateChanged(prev, next) {
		for _, l := range c.listeners {
			if l.OnState != nil {
				l.OnState(next)
			}
		}
	}
	if frameChanged {
		for _, l := range c.listeners {
			if l.OnFrame != nil {
				l.OnFrame(frame)
			}
		}
	}
	if next.Status == model.StatusReady {
		c.syncScroll(frame.ActiveLineID)
	}
	return next
}

// syncScroll runs with c.mu held.
func (c *Controller) syncScroll(activeID string) {
	top, ok := c.scroll.Sync(activeID)
	if !ok {
		return
	}
	for _, l := range c.listeners {
		if l.OnScroll != nil {
			l.OnScroll(top)
		}
	}
}

func derive(s State) FrameUpdate {
	if s.Status != model.StatusReady {
		return FrameUpdate{Frame: lyrics.DeriveFrame(0, nil)}
	}
	return FrameUpdate{
		Frame: lyrics.DeriveFrame(s.CurrentTime, s.Metadata),
		Ended: s.Ended,
	}
}

func stateChanged(prev, next State) bool {
	return prev.Status != next.Status ||
		prev.Generation != next.Generation ||
		prev.Error != next.Error ||
		prev.Ended != next.Ended ||
		prev.Metadata != next.Metadata
}
