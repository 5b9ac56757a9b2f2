package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LyricsDocument 自定义类型用于 GORM JSON 字段的自动扫描
type LyricsDocument struct {
	*SongMetadata
}

// Scan implements sql.Scanner.
func (d *LyricsDocument) Scan(value interface{}) error {
	if value == nil {
		d.SongMetadata = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported lyrics column type %T", value)
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		d.SongMetadata = nil
		return nil
	}
	var meta SongMetadata
	if err := json.Unmarshal(bytes, &meta); err != nil {
		return fmt.Errorf("decode lyrics column: %w", err)
	}
	d.SongMetadata = &meta
	return nil
}

// Value implements driver.Valuer.
func (d LyricsDocument) Value() (driver.Value, error) {
	if d.SongMetadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(d.SongMetadata)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// KaraokeSession is the persisted record of one upload and its processing result.
type KaraokeSession struct {
	ID               string         `json:"id" gorm:"primaryKey;size:36"`
	FileName         string         `json:"fileName" gorm:"size:255"`
	MIMEType         string         `json:"mimeType" gorm:"size:100"`
	ObjectKey        string         `json:"-" gorm:"size:512"`
	ContentHash      string         `json:"contentHash" gorm:"size:64;index"`
	Status           AppStatus      `json:"status" gorm:"size:20;index"`
	ErrorMessage     string         `json:"error,omitempty" gorm:"size:255"`
	Title            string         `json:"title" gorm:"size:255"`
	Artist           string         `json:"artist" gorm:"size:255"`
	DetectedLanguage string         `json:"detectedLanguage" gorm:"size:64"`
	LanguageTag      string         `json:"languageTag" gorm:"size:35"`
	LineCount        int            `json:"lineCount"`
	Lyrics           LyricsDocument `json:"-" gorm:"type:longtext"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// TableName 指定表名
func (KaraokeSession) TableName() string {
	return "karaoke_sessions"
}

// Metadata returns the stored lyrics, or nil before processing completed.
func (s *KaraokeSession) Metadata() *SongMetadata {
	return s.Lyrics.SongMetadata
}
