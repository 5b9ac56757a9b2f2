package model

// WordTiming is the start/end bound of one word inside a subtitle line, in seconds.
type WordTiming struct {
	Word      string  `json:"word"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// SubtitleLine is one lyric line as returned by the AI service.
// The JSON keys follow the response schema, so the phonetic annotation and the
// translation travel as phonetic_vietnamese / vietnamese_translation.
type SubtitleLine struct {
	ID                 string       `json:"id"`
	StartTime          float64      `json:"start_time"`
	EndTime            float64      `json:"end_time"`
	OriginalLyrics     string       `json:"original_lyrics"`
	PhoneticAnnotation string       `json:"phonetic_vietnamese"` // 可为空（母语歌词）
	Translation        string       `json:"vietnamese_translation"`
	WordLevelTimings   []WordTiming `json:"word_level_timings"`
}

// SongMetadata is the structured result of one processed video.
// It is created once per successful AI response and never mutated afterwards.
type SongMetadata struct {
	Title            string         `json:"title"`
	Artist           string         `json:"artist"`
	DetectedLanguage string         `json:"detected_language"`
	Subtitles        []SubtitleLine `json:"subtitles"`
}

// Duration returns the largest end time across all lines.
func (m *SongMetadata) Duration() float64 {
	if m == nil {
		return 0
	}
	var end float64
	for _, line := range m.Subtitles {
		if line.EndTime > end {
			end = line.EndTime
		}
	}
	return end
}

// LineIndex returns the position of the line with the given id, or -1.
func (m *SongMetadata) LineIndex(id string) int {
	if m == nil {
		return -1
	}
	for i := range m.Subtitles {
		if m.Subtitles[i].ID == id {
			return i
		}
	}
	return -1
}
