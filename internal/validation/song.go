// Package validation loads untyped song payloads into models.Song, derives
// defaulted fields, and checks blob-store bucket and key syntax.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"ourchants/internal/models"
)

// Complaint texts reported per field
const (
	MsgMissing       = "Missing data for required field."
	MsgTooShort      = "Shorter than minimum length 1."
	MsgNotString     = "Not a valid string."
	MsgNotList       = "Not a valid list."
	MsgNull          = "Field may not be null."
	MsgUnknownField  = "Unknown field."
	itemNotStringFmt = "Item %d: Not a valid string."
)

// UnknownFieldPolicy decides what happens to undeclared input fields
type UnknownFieldPolicy string

const (
	// ExcludeUnknown silently drops undeclared fields
	ExcludeUnknown UnknownFieldPolicy = "exclude"
	// RejectUnknown fails the whole record when any undeclared field is present
	RejectUnknown UnknownFieldPolicy = "reject"
)

// ParseUnknownFieldPolicy parses a configured policy name
func ParseUnknownFieldPolicy(s string) (UnknownFieldPolicy, error) {
	switch UnknownFieldPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExcludeUnknown:
		return ExcludeUnknown, nil
	case RejectUnknown:
		return RejectUnknown, nil
	default:
		return "", fmt.Errorf("unknown field policy %q (want exclude or reject)", s)
	}
}

// FieldErrors maps a field name to every complaint about it
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Fields returns the offending field names in sorted order
func (fe FieldErrors) Fields() []string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load is a successfully validated payload
type Load struct {
	Song models.Song
	// Provided lists the declared fields present in the payload, in declaration order
	Provided []string
}

// Assignments returns one assignment per provided field except the primary key
func (l Load) Assignments() []models.Assignment {
	set := make([]models.Assignment, 0, len(l.Provided))
	for _, field := range l.Provided {
		if field == models.FieldSongID {
			continue
		}
		set = append(set, models.Assignment{Field: field, Value: fieldValue(l.Song, field)})
	}
	return set
}

// LoadSong validates raw against the song schema. It returns a nil
// FieldErrors on success; otherwise every offending field is reported.
// Callers run EnsureDefaults first so s3_uri can be derived.
func LoadSong(raw map[string]interface{}, policy UnknownFieldPolicy) (Load, FieldErrors) {
	errs := FieldErrors{}
	var load Load

	if policy == RejectUnknown {
		for name := range raw {
			if !models.IsSongField(name) {
				errs.add(name, MsgUnknownField)
			}
		}
	}

	for _, field := range models.SongFields {
		value, present := raw[field]
		if !present {
			if isRequired(field) {
				errs.add(field, MsgMissing)
			}
			continue
		}
		load.Provided = append(load.Provided, field)

		if value == nil {
			if isRequired(field) || field == models.FieldSongID {
				errs.add(field, MsgNull)
			}
			continue
		}

		if field == models.FieldLineage {
			lineage, ok := loadLineage(value, errs)
			if ok {
				load.Song.Lineage = lineage
			}
			continue
		}

		s, ok := value.(string)
		if !ok {
			errs.add(field, MsgNotString)
			continue
		}
		if isRequired(field) && s == "" {
			errs.add(field, MsgTooShort)
			continue
		}
		models.Assignment{Field: field, Value: s}.Apply(&load.Song)
		if field == models.FieldSongID {
			load.Song.SongID = s
		}
	}

	if len(errs) > 0 {
		return Load{}, errs
	}
	return load, nil
}

func loadLineage(value interface{}, errs FieldErrors) (models.StringList, bool) {
	items, ok := value.([]interface{})
	if !ok {
		if typed, isStrings := value.([]string); isStrings {
			return append(models.StringList{}, typed...), true
		}
		errs.add(models.FieldLineage, MsgNotList)
		return nil, false
	}

	lineage := make(models.StringList, 0, len(items))
	valid := true
	for i, item := range items {
		s, isString := item.(string)
		if !isString {
			errs.add(models.FieldLineage, fmt.Sprintf(itemNotStringFmt, i))
			valid = false
			continue
		}
		lineage = append(lineage, s)
	}
	return lineage, valid
}

func isRequired(field string) bool {
	return field == models.FieldTitle || field == models.FieldArtist || field == models.FieldBlobURI
}

func fieldValue(s models.Song, field string) interface{} {
	switch field {
	case models.FieldTitle:
		return s.Title
	case models.FieldArtist:
		return s.Artist
	case models.FieldAlbum:
		return s.Album
	case models.FieldBPM:
		return s.BPM
	case models.FieldComposer:
		return s.Composer
	case models.FieldVersion:
		return s.Version
	case models.FieldDate:
		return s.Date
	case models.FieldFilename:
		return s.Filename
	case models.FieldFilepath:
		return s.Filepath
	case models.FieldDescription:
		return s.Description
	case models.FieldLineage:
		if s.Lineage == nil {
			return nil
		}
		return []string(s.Lineage)
	case models.FieldBlobURI:
		return s.BlobURI
	default:
		return nil
	}
}
