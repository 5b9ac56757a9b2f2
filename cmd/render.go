package cmd

import (
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"

	"AzzKaraoke/core/lyrics"
	"AzzKaraoke/model"
)

var (
	activeWordColor = text.Colors{text.FgHiYellow, text.Bold}
	activeLineColor = text.Colors{text.FgHiWhite}
	passedLineColor = text.Colors{text.FgHiBlack}
	phoneticColor   = text.Colors{text.FgCyan, text.Italic}
	translateColor  = text.Colors{text.FgGreen}
)

// lineRows is how many terminal rows one subtitle line occupies.
func lineRows(line model.SubtitleLine) int {
	rows := 1
	if line.PhoneticAnnotation != "" {
		rows++
	}
	if line.Translation != "" {
		rows++
	}
	return rows + 1 // 行间空行
}

// terminalLayout measures meta the way renderLyrics draws it, in rows.
func terminalLayout(meta *model.SongMetadata, height int) *lyrics.Layout {
	layout := &lyrics.Layout{ContainerHeight: float64(height)}
	top := 0
	for _, line := range meta.Subtitles {
		rows := lineRows(line)
		layout.Lines = append(layout.Lines, lyrics.LineBox{
			ID:        line.ID,
			OffsetTop: float64(top),
			Height:    float64(rows - 1),
		})
		top += rows
	}
	return layout
}

type lyricsView struct {
	meta   *model.SongMetadata
	height int
	color  bool
}

func (v lyricsView) paint(c text.Colors, s string) string {
	if !v.color || s == "" {
		return s
	}
	return c.Sprint(s)
}

// render draws the visible window of the lyrics sheet starting at row top.
func (v lyricsView) render(frame lyrics.Frame, top float64) string {
	var rows []string
	for i, line := range v.meta.Subtitles {
		active := i == frame.ActiveLineIndex
		passed := i < len(frame.Passed) && frame.Passed[i]

		var original string
		switch {
		case active:
			original = "▶ " + v.highlight(line, frame.ActiveWordIndex)
		case passed:
			original = "  " + v.paint(passedLineColor, line.OriginalLyrics)
		default:
			original = "  " + line.OriginalLyrics
		}
		rows = append(rows, original)
		if line.PhoneticAnnotation != "" {
			rows = append(rows, "  "+v.paint(phoneticColor, line.PhoneticAnnotation))
		}
		if line.Translation != "" {
			rows = append(rows, "  "+v.paint(translateColor, line.Translation))
		}
		rows = append(rows, "")
	}

	start := int(math.Max(0, math.Round(top)))
	if start > len(rows) {
		start = len(rows)
	}
	end := start + v.height
	if end > len(rows) {
		end = len(rows)
	}
	return strings.Join(rows[start:end], "\n")
}

func (v lyricsView) highlight(line model.SubtitleLine, word int) string {
	if len(line.WordLevelTimings) == 0 {
		return v.paint(activeLineColor, line.OriginalLyrics)
	}
	parts := make([]string, len(line.WordLevelTimings))
	for i, w := range line.WordLevelTimings {
		if i == word {
			parts[i] = v.paint(activeWordColor, w.Word)
		} else {
			parts[i] = v.paint(activeLineColor, w.Word)
		}
	}
	return strings.Join(parts, " ")
}
