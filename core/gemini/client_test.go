package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const songJSON = `{
  "title": "Lemon",
  "artist": "Kenshi Yonezu",
  "detected_language": "Japanese",
  "subtitles": [
    {
      "id": "1",
      "start_time": 12.5,
      "end_time": 15,
      "original_lyrics": "夢ならば",
      "phonetic_vietnamese": "yume naraba",
      "vietnamese_translation": "Giá như là mơ",
      "word_level_timings": [{"word": "夢", "start_time": 12.5, "end_time": 13}]
    }
  ]
}`

func geminiResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]any{"promptTokenCount": 10, "candidatesTokenCount": 20},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestProcessMusicVideo(t *testing.T) {
	var gotPath, gotKey string
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		if !strings.Contains(string(raw), "inlineData") {
			t.Errorf("expected inline video data in %s", raw)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiResponse(songJSON))
	})

	meta, err := c.ProcessMusicVideo(context.Background(), []byte("fake-video"), "video/webm")
	if err != nil {
		t.Fatalf("ProcessMusicVideo: %v", err)
	}
	if meta.Title != "Lemon" || len(meta.Subtitles) != 1 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	line := meta.Subtitles[0]
	if line.PhoneticAnnotation != "yume naraba" || line.Translation != "Giá như là mơ" {
		t.Fatalf("annotation fields not mapped: %+v", line)
	}
	if len(line.WordLevelTimings) != 1 || line.WordLevelTimings[0].EndTime != 13 {
		t.Fatalf("word timings = %+v", line.WordLevelTimings)
	}

	if !strings.HasSuffix(gotPath, "models/"+DefaultModel+":generateContent") {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	gen, _ := body["generationConfig"].(map[string]any)
	if gen["responseMimeType"] != "application/json" || gen["responseSchema"] == nil {
		t.Fatalf("generation config = %+v", gen)
	}
}

func TestProcessMusicVideoEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiResponse("   "))
	})
	if _, err := c.ProcessMusicVideo(context.Background(), []byte("v"), ""); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestProcessMusicVideoServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	})
	if _, err := c.ProcessMusicVideo(context.Background(), []byte("v"), "video/mp4"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
		title   string
	}{
		{name: "plain", text: songJSON, title: "Lemon"},
		{name: "fenced", text: "```json\n" + songJSON + "\n```", title: "Lemon"},
		{name: "empty", text: "", wantErr: ErrEmptyResponse},
		{name: "null", text: "null", wantErr: ErrEmptyResponse},
		{name: "malformed", text: `{"title": 3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseResponse(tt.text)
			if tt.title != "" {
				if err != nil || meta.Title != tt.title {
					t.Fatalf("got (%+v, %v)", meta, err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestResponseSchemaRequiredFields(t *testing.T) {
	s := ResponseSchema()
	if len(s.Required) != 4 {
		t.Fatalf("top-level required = %v", s.Required)
	}
	line := s.Properties["subtitles"].Items
	if len(line.Required) != 7 {
		t.Fatalf("line required = %v", line.Required)
	}
	if words := line.Properties["word_level_timings"].Items; len(words.Required) != 3 {
		t.Fatalf("word required = %v", words.Required)
	}
}
