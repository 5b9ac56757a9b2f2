package gemini

import "google.golang.org/genai"

// ResponseSchema is the fixed JSON contract the model must answer with.
func ResponseSchema() *genai.Schema {
	word := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"word":       {Type: genai.TypeString},
			"start_time": {Type: genai.TypeNumber},
			"end_time":   {Type: genai.TypeNumber},
		},
		Required: []string{"word", "start_time", "end_time"},
	}

	line := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"id":                     {Type: genai.TypeString},
			"start_time":             {Type: genai.TypeNumber},
			"end_time":               {Type: genai.TypeNumber},
			"original_lyrics":        {Type: genai.TypeString},
			"phonetic_vietnamese":    {Type: genai.TypeString},
			"vietnamese_translation": {Type: genai.TypeString},
			"word_level_timings":     {Type: genai.TypeArray, Items: word},
		},
		Required: []string{
			"id", "start_time", "end_time", "original_lyrics",
			"phonetic_vietnamese", "vietnamese_translation", "word_level_timings",
		},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":             {Type: genai.TypeString},
			"artist":            {Type: genai.TypeString},
			"detected_language": {Type: genai.TypeString},
			"subtitles":         {Type: genai.TypeArray, Items: line},
		},
		Required: []string{"title", "artist", "detected_language", "subtitles"},
	}
}
