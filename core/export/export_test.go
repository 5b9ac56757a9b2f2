package export

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"AzzKaraoke/model"
)

func TestFormatTimecode(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{125.4, "00:02:05,400"},
		{1.001, "00:00:01,001"},
		{59.9999, "00:00:59,999"},
		{3661.5, "01:01:01,500"},
		{36000, "10:00:00,000"},
		{-2, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatTimecode(tt.in); got != tt.want {
			t.Errorf("FormatTimecode(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func sample() *model.SongMetadata {
	return &model.SongMetadata{
		Title:            "Lemon",
		Artist:           "Kenshi Yonezu",
		DetectedLanguage: "Japanese",
		Subtitles: []model.SubtitleLine{
			{
				ID: "l1", StartTime: 12.5, EndTime: 15.25,
				OriginalLyrics:     "夢ならばどれほどよかったでしょう",
				PhoneticAnnotation: "yume naraba dore hodo yokatta deshou",
				Translation:        "Giá như đây chỉ là giấc mơ",
				WordLevelTimings: []model.WordTiming{
					{Word: "夢", StartTime: 12.5, EndTime: 13},
					{Word: "ならば", StartTime: 13, EndTime: 13.6},
				},
			},
			{
				ID: "l2", StartTime: 125.4, EndTime: 130,
				OriginalLyrics: "<3 & more",
				Translation:    "và hơn nữa",
			},
		},
	}
}

func TestToSubtitleFormat(t *testing.T) {
	got := ToSubtitleFormat(sample())
	want := "1\n00:00:12,500 --> 00:00:15,250\n夢ならばどれほどよかったでしょう\nyume naraba dore hodo yokatta deshou\nGiá như đây chỉ là giấc mơ\n\n" +
		"2\n00:02:05,400 --> 00:02:10,000\n<3 & more\n\nvà hơn nữa\n\n"
	if got != want {
		t.Fatalf("ToSubtitleFormat mismatch:\n got: %q\nwant: %q", got, want)
	}
	if ToSubtitleFormat(nil) != "" {
		t.Fatal("nil metadata should render nothing")
	}
}

func TestStructuredRoundTrip(t *testing.T) {
	meta := sample()
	data, err := ToStructuredFormat(meta)
	if err != nil {
		t.Fatalf("ToStructuredFormat: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "{\n  \"title\": \"Lemon\",") {
		t.Fatalf("expected two-space indentation, got %q", text[:40])
	}
	if !strings.Contains(text, `"<3 & more"`) {
		t.Fatal("HTML characters should not be escaped")
	}
	if strings.HasSuffix(text, "\n") {
		t.Fatal("unexpected trailing newline")
	}

	back, err := ParseStructured(data)
	if err != nil {
		t.Fatalf("ParseStructured: %v", err)
	}
	if !reflect.DeepEqual(meta, back) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", back, meta)
	}
}

func TestParseStructuredErrors(t *testing.T) {
	if _, err := ParseStructured([]byte("null")); !errors.Is(err, ErrNotMetadata) {
		t.Fatalf("expected ErrNotMetadata, got %v", err)
	}
	if _, err := ParseStructured([]byte("{broken")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFileNames(t *testing.T) {
	tests := []struct {
		title    string
		srt, doc string
	}{
		{"Lemon", "Lemon_lyrics.srt", "Lemon_data.json"},
		{"AC/DC: Back in Black?", "AC_DC_ Back in Black__lyrics.srt", "AC_DC_ Back in Black__data.json"},
		{"  ..  ", "untitled_lyrics.srt", "untitled_data.json"},
		{"", "untitled_lyrics.srt", "untitled_data.json"},
	}
	for _, tt := range tests {
		meta := &model.SongMetadata{Title: tt.title}
		if got := SubtitleFileName(meta); got != tt.srt {
			t.Errorf("SubtitleFileName(%q) = %q, want %q", tt.title, got, tt.srt)
		}
		if got := StructuredFileName(meta); got != tt.doc {
			t.Errorf("StructuredFileName(%q) = %q, want %q", tt.title, got, tt.doc)
		}
	}
	if got := SubtitleFileName(nil); got != "untitled_lyrics.srt" {
		t.Errorf("SubtitleFileName(nil) = %q", got)
	}
}
