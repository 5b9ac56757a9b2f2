package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"AzzKaraoke/model"
)

// ErrNotMetadata is returned for JSON that is not an object.
var ErrNotMetadata = errors.New("export: not a metadata object")

// ToStructuredFormat returns the metadata as JSON indented by two spaces.
func ToStructuredFormat(meta *model.SongMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseStructured reads a structured export back into metadata.
func ParseStructured(data []byte) (*model.SongMetadata, error) {
	var meta *model.SongMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta == nil {
		return nil, ErrNotMetadata
	}
	return meta, nil
}

// SubtitleFileName is the download name of the subtitle export.
func SubtitleFileName(meta *model.SongMetadata) string {
	return baseName(meta) + "_lyrics.srt"
}

// StructuredFileName is the download name of the JSON export.
func StructuredFileName(meta *model.SongMetadata) string {
	return baseName(meta) + "_data.json"
}

func baseName(meta *model.SongMetadata) string {
	title := ""
	if meta != nil {
		title = meta.Title
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, title)
	name = strings.Trim(name, " .")
	if name == "" {
		return "untitled"
	}
	return name
}
