package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Field names as they appear on the wire and in the songs table
const (
	FieldSongID      = "song_id"
	FieldTitle       = "title"
	FieldArtist      = "artist"
	FieldAlbum       = "album"
	FieldBPM         = "bpm"
	FieldComposer    = "composer"
	FieldVersion     = "version"
	FieldDate        = "date"
	FieldFilename    = "filename"
	FieldFilepath    = "filepath"
	FieldDescription = "description"
	FieldLineage     = "lineage"
	FieldBlobURI     = "s3_uri"
)

// SongFields lists every declared song field in output order
var SongFields = []string{
	FieldSongID,
	FieldTitle,
	FieldArtist,
	FieldAlbum,
	FieldBPM,
	FieldComposer,
	FieldVersion,
	FieldDate,
	FieldFilename,
	FieldFilepath,
	FieldDescription,
	FieldLineage,
	FieldBlobURI,
}

// IsSongField reports whether name is a declared song field
func IsSongField(name string) bool {
	for _, f := range SongFields {
		if f == name {
			return true
		}
	}
	return false
}

// Song represents the songs table
type Song struct {
	SongID      string     `gorm:"column:song_id;primaryKey;size:64" json:"song_id" dynamodbav:"song_id"`
	Title       *string    `gorm:"column:title" json:"title" dynamodbav:"title,omitempty"`
	Artist      *string    `gorm:"column:artist;index:idx_songs_artist" json:"artist" dynamodbav:"artist,omitempty"`
	Album       *string    `gorm:"column:album" json:"album" dynamodbav:"album,omitempty"`
	BPM         *string    `gorm:"column:bpm" json:"bpm" dynamodbav:"bpm,omitempty"` // kept as text, never parsed
	Composer    *string    `gorm:"column:composer" json:"composer" dynamodbav:"composer,omitempty"`
	Version     *string    `gorm:"column:version" json:"version" dynamodbav:"version,omitempty"`
	Date        *string    `gorm:"column:date" json:"date" dynamodbav:"date,omitempty"`
	Filename    *string    `gorm:"column:filename" json:"filename" dynamodbav:"filename,omitempty"`
	Filepath    *string    `gorm:"column:filepath" json:"filepath" dynamodbav:"filepath,omitempty"`
	Description *string    `gorm:"column:description" json:"description" dynamodbav:"description,omitempty"`
	Lineage     StringList `gorm:"column:lineage;type:text" json:"lineage" dynamodbav:"lineage,omitempty"`
	BlobURI     string     `gorm:"column:s3_uri" json:"s3_uri" dynamodbav:"s3_uri,omitempty"`
}

func (Song) TableName() string {
	return "songs"
}

// Assignment sets one non-key field of a stored song.
// Value is nil, a string, a *string or a []string.
type Assignment struct {
	Field string
	Value interface{}
}

// Apply writes the assignment onto s. Unknown fields are ignored.
func (a Assignment) Apply(s *Song) {
	switch a.Field {
	case FieldTitle:
		s.Title = stringPtr(a.Value)
	case FieldArtist:
		s.Artist = stringPtr(a.Value)
	case FieldAlbum:
		s.Album = stringPtr(a.Value)
	case FieldBPM:
		s.BPM = stringPtr(a.Value)
	case FieldComposer:
		s.Composer = stringPtr(a.Value)
	case FieldVersion:
		s.Version = stringPtr(a.Value)
	case FieldDate:
		s.Date = stringPtr(a.Value)
	case FieldFilename:
		s.Filename = stringPtr(a.Value)
	case FieldFilepath:
		s.Filepath = stringPtr(a.Value)
	case FieldDescription:
		s.Description = stringPtr(a.Value)
	case FieldLineage:
		switch v := a.Value.(type) {
		case []string:
			s.Lineage = append(StringList{}, v...)
		case StringList:
			s.Lineage = append(StringList{}, v...)
		default:
			s.Lineage = nil
		}
	case FieldBlobURI:
		if p := stringPtr(a.Value); p != nil {
			s.BlobURI = *p
		} else {
			s.BlobURI = ""
		}
	}
}

func stringPtr(v interface{}) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		if s == nil {
			return nil
		}
		c := *s
		return &c
	default:
		return nil
	}
}

// StringList is an ordered list of strings stored as a JSON array in SQL backends
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode lineage: %w", err)
	}
	*l = out
	return nil
}
