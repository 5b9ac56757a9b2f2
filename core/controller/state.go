// Package controller holds the viewer's state container and its transitions.
package controller

import "AzzKaraoke/model"

// State is the full, explicit application state.
type State struct {
	Status      model.AppStatus     `json:"status"`
	Generation  uint64              `json:"generation"`
	FileName    string              `json:"fileName,omitempty"`
	VideoURL    string              `json:"videoUrl,omitempty"`
	Metadata    *model.SongMetadata `json:"metadata,omitempty"`
	Error       string              `json:"error,omitempty"`
	CurrentTime float64             `json:"currentTime"`
	Ended       bool                `json:"ended"`
}

// Initial is the state of a freshly opened viewer.
func Initial() State {
	return State{Status: model.StatusIdle}
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// FileSelected starts processing a new file. Generation must be greater than
// the current one.
type FileSelected struct {
	Generation uint64
	FileName   string
	VideoURL   string
}

// ProcessSucceeded carries the AI result of one request generation.
type ProcessSucceeded struct {
	Generation uint64
	Metadata   *model.SongMetadata
}

// ProcessFailed carries the user-visible message of a failed request.
type ProcessFailed struct {
	Generation uint64
	Message    string
}

// MetadataLoaded enters READY from metadata that was produced earlier.
type MetadataLoaded struct {
	Generation uint64
	FileName   string
	VideoURL   string
	Metadata   *model.SongMetadata
}

// TimeUpdated is a playback progress tick.
type TimeUpdated struct {
	Time float64
}

// PlaybackEnded marks the end of the media.
type PlaybackEnded struct{}

// PlaybackStarted clears the ended flag after a manual restart.
type PlaybackStarted struct{}

// Replayed rewinds to the start.
type Replayed struct{}

// Reset returns to IDLE and invalidates any in-flight request.
type Reset struct {
	Generation uint64
}

func (FileSelected) event()     {}
func (ProcessSucceeded) event() {}
func (ProcessFailed) event()    {}
func (MetadataLoaded) event()   {}
func (TimeUpdated) event()      {}
func (PlaybackEnded) event()    {}
func (PlaybackStarted) event()  {}
func (Replayed) event()         {}
func (Reset) event()            {}

// Reduce is the pure transition function. Results of a request generation that
// is no longer current are ignored, so a slow response for an abandoned file
// can never overwrite the newer one.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case FileSelected:
		if e.Generation <= s.Generation {
			return s
		}
		return State{
			Status:     model.StatusProcessing,
			Generation: e.Generation,
			FileName:   e.FileName,
			VideoURL:   e.VideoURL,
		}

	case MetadataLoaded:
		if e.Generation <= s.Generation || e.Metadata == nil {
			return s
		}
		return State{
			Status:     model.StatusReady,
			Generation: e.Generation,
			FileName:   e.FileName,
			VideoURL:   e.VideoURL,
			Metadata:   e.Metadata,
		}

	case ProcessSucceeded:
		if !s.awaiting(e.Generation) || e.Metadata == nil {
			return s
		}
		s.Status = model.StatusReady
		s.Metadata = e.Metadata
		s.Error = ""
		return s

	case ProcessFailed:
		if !s.awaiting(e.Generation) {
			return s
		}
		s.Status = model.StatusError
		s.Error = e.Message
		return s

	case TimeUpdated:
		if s.Status != model.StatusReady {
			return s
		}
		s.CurrentTime = e.Time
		s.Ended = false
		return s

	case PlaybackEnded:
		if s.Status != model.StatusReady {
			return s
		}
		s.Ended = true
		return s

	case PlaybackStarted:
		s.Ended = false
		return s

	case Replayed:
		if s.Status != model.StatusReady {
			return s
		}
		s.CurrentTime = 0
		s.Ended = false
		return s

	case Reset:
		gen := s.Generation
		if e.Generation > gen {
			gen = e.Generation
		}
		return State{Status: model.StatusIdle, Generation: gen}
	}
	return s
}

func (s State) awaiting(gen uint64) bool {
	return s.Status == model.StatusProcessing && gen == s.Generation
}
