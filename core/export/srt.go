// Package export renders song metadata as downloadable files.
package export

import (
	"fmt"
	"math"
	"strings"

	"AzzKaraoke/model"
)

// FormatTimecode renders seconds as HH:MM:SS,mmm. Milliseconds are truncated,
// with a small epsilon so 125.4 stays 400ms despite binary rounding.
func FormatTimecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds*1000 + 1e-6))
	ms := total % 1000
	s := total / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", s/3600, (s%3600)/60, s%60, ms)
}

// ToSubtitleFormat renders one block per line: index, time range, original,
// phonetic and translation, each block followed by a blank line.
func ToSubtitleFormat(meta *model.SongMetadata) string {
	if meta == nil {
		return ""
	}
	var b strings.Builder
	for i, line := range meta.Subtitles {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimecode(line.StartTime), FormatTimecode(line.EndTime))
		b.WriteString(line.OriginalLyrics)
		b.WriteByte('\n')
		b.WriteString(line.PhoneticAnnotation)
		b.WriteByte('\n')
		b.WriteString(line.Translation)
		b.WriteString("\n\n")
	}
	return b.String()
}
