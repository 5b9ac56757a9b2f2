package lyrics

import "sync"

// LineBox is the vertical placement of one rendered line inside the scroll
// container, in the renderer's units (CSS pixels, terminal rows, ...).
type LineBox struct {
	ID        string  `json:"id"`
	OffsetTop float64 `json:"offsetTop"`
	Height    float64 `json:"height"`
}

// Layout describes a mounted scroll container and the lines inside it.
type Layout struct {
	ContainerHeight float64   `json:"containerHeight"`
	Lines           []LineBox `json:"lines"`
}

func (l *Layout) box(id string) (LineBox, bool) {
	for _, b := range l.Lines {
		if b.ID == id {
			return b, true
		}
	}
	return LineBox{}, false
}

// ScrollTarget returns the scroll offset that centres an element of the given
// height and offset inside a container of containerHeight.
func ScrollTarget(containerHeight, activeOffsetTop, activeHeight float64) float64 {
	return activeOffsetTop - containerHeight/2 + activeHeight/2
}

// ScrollSynchronizer emits a scroll target only when the active line changes,
// so repeated ticks inside one line never restart the scroll animation.
type ScrollSynchronizer struct {
	mu     sync.Mutex
	layout *Layout
	lastID string
}

// NewScrollSynchronizer returns a synchronizer with no container mounted.
func NewScrollSynchronizer() *ScrollSynchronizer {
	return &ScrollSynchronizer{}
}

// SetLayout mounts (or, with nil, unmounts) the scroll container. The next
// Sync re-centres even when the active line is unchanged.
func (s *ScrollSynchronizer) SetLayout(layout *Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = layout
	s.lastID = ""
}

// Reset forgets the last synced line.
func (s *ScrollSynchronizer) Reset() {
	s.mu.Lock()
	s.lastID = ""
	s.mu.Unlock()
}

// Sync returns the target offset for activeID when it differs from the last
// synced line. It is a no-op without an active line, without a layout, or when
// the line is not part of the layout.
func (s *ScrollSynchronizer) Sync(activeID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activeID == s.lastID {
		return 0, false
	}
	// A gap between lines counts as a change, so A -> none -> A re-centres A.
	s.lastID = activeID
	if activeID == "" || s.layout == nil {
		return 0, false
	}
	box, ok := s.layout.box(activeID)
	if !ok {
		return 0, false
	}
	return ScrollTarget(s.layout.ContainerHeight, box.OffsetTop, box.Height), true
}
