// Package lyrics maps playback time onto subtitle lines and words.
//
// Every function here is pure: the result depends only on the arguments, so
// callers may recompute on every time tick and drop or coalesce ticks freely.
package lyrics

import "AzzKaraoke/model"

// NoWord is the word index reported when no word of the active line is sung.
const NoWord = -1

// ResolveActiveLine returns the first line, in list order, whose closed
// interval [StartTime, EndTime] contains t. When intervals overlap the earlier
// line wins. ok is false between lines.
func ResolveActiveLine(t float64, lines []model.SubtitleLine) (id string, index int, ok bool) {
	for i := range lines {
		if contains(lines[i].StartTime, lines[i].EndTime, t) {
			return lines[i].ID, i, true
		}
	}
	return "", -1, false
}

// ResolveActiveWord applies the same inclusive first-match rule to words.
func ResolveActiveWord(t float64, words []model.WordTiming) (index int, ok bool) {
	for i := range words {
		if contains(words[i].StartTime, words[i].EndTime, t) {
			return i, true
		}
	}
	return NoWord, false
}

// IsPassed reports whether playback has moved beyond the line. It is used for
// dimming only and has no effect on active-line selection.
func IsPassed(t float64, line model.SubtitleLine) bool {
	return t > line.EndTime
}

func contains(start, end, t float64) bool {
	return t >= start && t <= end
}

// Frame is everything a renderer needs for one instant of playback.
type Frame struct {
	Time            float64 `json:"time"`
	ActiveLineID    string  `json:"activeLineId,omitempty"`
	ActiveLineIndex int     `json:"activeLineIndex"`
	ActiveWordIndex int     `json:"activeWordIndex"`
	Passed          []bool  `json:"passed"`
}

// HasActiveLine reports whether some line is active in the frame.
func (f Frame) HasActiveLine() bool {
	return f.ActiveLineIndex >= 0
}

// SameHighlight reports whether two frames highlight the same line and word,
// ignoring the time stamp and passed flags.
func (f Frame) SameHighlight(o Frame) bool {
	return f.ActiveLineID == o.ActiveLineID &&
		f.ActiveLineIndex == o.ActiveLineIndex &&
		f.ActiveWordIndex == o.ActiveWordIndex
}

// DeriveFrame resolves the active line, its active word and the passed flags
// of all lines at time t. A nil meta yields an empty frame.
func DeriveFrame(t float64, meta *model.SongMetadata) Frame {
	frame := Frame{Time: t, ActiveLineIndex: -1, ActiveWordIndex: NoWord}
	if meta == nil {
		return frame
	}

	frame.Passed = make([]bool, len(meta.Subtitles))
	for i := range meta.Subtitles {
		frame.Passed[i] = IsPassed(t, meta.Subtitles[i])
	}

	id, idx, ok := ResolveActiveLine(t, meta.Subtitles)
	if !ok {
		return frame
	}
	frame.ActiveLineID = id
	frame.ActiveLineIndex = idx
	if w, ok := ResolveActiveWord(t, meta.Subtitles[idx].WordLevelTimings); ok {
		frame.ActiveWordIndex = w
	}
	return frame
}
