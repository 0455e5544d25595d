package validation

import (
	"fmt"

	"ourchants/internal/models"
)

// DefaultURIBucket is the bucket used when deriving s3_uri from a filename
const DefaultURIBucket = "ourchants-songs"

// URITemplate builds blob locations for songs that only carry a filename
type URITemplate struct {
	Scheme string
	Bucket string
	Prefix string
}

// DefaultURITemplate yields s3://ourchants-songs/songs/<filename>
func DefaultURITemplate() URITemplate {
	return URITemplate{Scheme: "s3", Bucket: DefaultURIBucket, Prefix: "songs"}
}

// For returns the blob location for filename
func (t URITemplate) For(filename string) string {
	scheme := t.Scheme
	if scheme == "" {
		scheme = "s3"
	}
	if t.Prefix == "" {
		return fmt.Sprintf("%s://%s/%s", scheme, t.Bucket, filename)
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, t.Bucket, t.Prefix, filename)
}

// EnsureDefaults derives s3_uri on an incoming payload. A missing or empty
// s3_uri is built from a non-empty filename; with no filename a missing s3_uri
// becomes "" so the required-length check still reports it. raw is modified
// in place and returned.
func EnsureDefaults(raw map[string]interface{}, tmpl URITemplate) map[string]interface{} {
	if raw == nil {
		raw = map[string]interface{}{}
	}

	current, present := raw[models.FieldBlobURI]
	uri, isString := current.(string)
	if present && isString && uri != "" {
		return raw
	}
	if present && current != nil && !isString {
		// wrong type, let LoadSong report it
		return raw
	}

	if filename, ok := raw[models.FieldFilename].(string); ok && filename != "" {
		raw[models.FieldBlobURI] = tmpl.For(filename)
		return raw
	}

	if !present {
		raw[models.FieldBlobURI] = ""
	}
	return raw
}

// Dump prepares a song for output: lineage is never null and s3_uri is
// derived for stored records that lack it.
func Dump(song models.Song, tmpl URITemplate) models.Song {
	out := song
	if out.Lineage == nil {
		out.Lineage = models.StringList{}
	} else {
		out.Lineage = append(models.StringList{}, song.Lineage...)
	}
	if out.BlobURI == "" && out.Filename != nil && *out.Filename != "" {
		out.BlobURI = tmpl.For(*out.Filename)
	}
	return out
}
