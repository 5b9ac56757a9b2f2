package lyrics

import (
	"testing"

	"AzzKaraoke/model"
)

func line(id string, start, end float64, words ...model.WordTiming) model.SubtitleLine {
	return model.SubtitleLine{ID: id, StartTime: start, EndTime: end, WordLevelTimings: words}
}

func word(w string, start, end float64) model.WordTiming {
	return model.WordTiming{Word: w, StartTime: start, EndTime: end}
}

func TestResolveActiveLine(t *testing.T) {
	lines := []model.SubtitleLine{
		line("a", 10, 15),
		line("b", 15, 20),
		line("c", 25, 30),
	}

	tests := []struct {
		name   string
		time   float64
		wantID string
		wantOK bool
	}{
		{"before first line", 5, "", false},
		{"start boundary inclusive", 10, "a", true},
		{"inside first line", 12.5, "a", true},
		{"shared boundary picks earlier line", 15, "a", true},
		{"inside second line", 15.01, "b", true},
		{"end boundary inclusive", 20, "b", true},
		{"gap between lines", 22, "", false},
		{"after last line", 30.5, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, idx, ok := ResolveActiveLine(tt.time, lines)
			if ok != tt.wantOK || id != tt.wantID {
				t.Fatalf("ResolveActiveLine(%v) = (%q, %d, %v), want (%q, _, %v)", tt.time, id, idx, ok, tt.wantID, tt.wantOK)
			}
			if !ok && idx != -1 {
				t.Fatalf("expected index -1 when no line is active, got %d", idx)
			}
		})
	}
}

func TestResolveActiveLineOverlapFirstWins(t *testing.T) {
	lines := []model.SubtitleLine{
		line("long", 0, 100),
		line("inner", 40, 60),
	}
	id, idx, ok := ResolveActiveLine(50, lines)
	if !ok || id != "long" || idx != 0 {
		t.Fatalf("expected earlier overlapping line, got (%q, %d, %v)", id, idx, ok)
	}
}

func TestResolveActiveLineEmpty(t *testing.T) {
	if _, _, ok := ResolveActiveLine(1, nil); ok {
		t.Fatal("expected no active line for empty list")
	}
}

func TestResolveActiveLineIdempotent(t *testing.T) {
	lines := []model.SubtitleLine{line("a", 1, 2), line("b", 2, 3)}
	for i := 0; i < 3; i++ {
		id, idx, ok := ResolveActiveLine(2, lines)
		if id != "a" || idx != 0 || !ok {
			t.Fatalf("call %d: got (%q, %d, %v)", i, id, idx, ok)
		}
	}
}

func TestResolveActiveWord(t *testing.T) {
	words := []model.WordTiming{
		word("Love", 10, 10.5),
		word("me", 10.5, 11),
		word("tender", 11.2, 12),
	}

	tests := []struct {
		time   float64
		want   int
		wantOK bool
	}{
		{9.9, NoWord, false},
		{10, 0, true},
		{10.5, 0, true},
		{10.7, 1, true},
		{11.1, NoWord, false},
		{12, 2, true},
	}
	for _, tt := range tests {
		got, ok := ResolveActiveWord(tt.time, words)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ResolveActiveWord(%v) = (%d, %v), want (%d, %v)", tt.time, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsPassed(t *testing.T) {
	l := line("a", 10, 15)
	tests := []struct {
		time float64
		want bool
	}{
		{9, false},
		{12, false},
		{15, false},
		{15.0001, true},
		{100, true},
	}
	for _, tt := range tests {
		if got := IsPassed(tt.time, l); got != tt.want {
			t.Errorf("IsPassed(%v) = %v, want %v", tt.time, got, tt.want)
		}
	}
}

func TestDeriveFrame(t *testing.T) {
	meta := &model.SongMetadata{
		Subtitles: []model.SubtitleLine{
			line("a", 10, 15, word("hello", 10, 12), word("world", 12.5, 15)),
			line("b", 15, 20, word("again", 15, 20)),
		},
	}

	frame := DeriveFrame(12.2, meta)
	if frame.ActiveLineID != "a" || frame.ActiveLineIndex != 0 {
		t.Fatalf("unexpected active line %+v", frame)
	}
	if frame.ActiveWordIndex != NoWord {
		t.Fatalf("expected no active word inside the word gap, got %d", frame.ActiveWordIndex)
	}
	if len(frame.Passed) != 2 || frame.Passed[0] || frame.Passed[1] {
		t.Fatalf("unexpected passed flags %v", frame.Passed)
	}

	frame = DeriveFrame(16, meta)
	if frame.ActiveLineID != "b" || frame.ActiveWordIndex != 0 {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if !frame.Passed[0] || frame.Passed[1] {
		t.Fatalf("unexpected passed flags %v", frame.Passed)
	}

	frame = DeriveFrame(5, meta)
	if frame.HasActiveLine() {
		t.Fatalf("expected no active line at 5s, got %+v", frame)
	}
}

func TestDeriveFrameNilMetadata(t *testing.T) {
	frame := DeriveFrame(3, nil)
	if frame.HasActiveLine() || frame.ActiveWordIndex != NoWord || frame.Passed != nil {
		t.Fatalf("expected empty frame, got %+v", frame)
	}
}

func TestFrameSameHighlight(t *testing.T) {
	a := Frame{Time: 1, ActiveLineID: "x", ActiveLineIndex: 0, ActiveWordIndex: 1}
	b := Frame{Time: 2, ActiveLineID: "x", ActiveLineIndex: 0, ActiveWordIndex: 1}
	if !a.SameHighlight(b) {
		t.Fatal("frames differing only in time should share a highlight")
	}
	b.ActiveWordIndex = 2
	if a.SameHighlight(b) {
		t.Fatal("frames with different words should not share a highlight")
	}
}
