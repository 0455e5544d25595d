// Package storage declares the record-store and blob-store ports the catalog
// depends on, plus the error kinds every adapter reports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ourchants/internal/models"
)

// Error kinds. Adapters wrap backend failures in *Error carrying one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
	ErrThrottled    = errors.New("throttled")
	ErrBackend      = errors.New("backend failure")
)

// Error records a failed backend operation
type Error struct {
	Op   string
	Kind error
	Err  error
}

// NewError creates an Error for op
func NewError(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ScanPage is one page of a full-table scan. Next is empty when the scan is exhausted.
type ScanPage struct {
	Songs []models.Song
	Next  string
}

// RecordStore is a keyed table of songs addressed by song_id
type RecordStore interface {
	// ScanPage returns the page starting after token ("" for the first page)
	ScanPage(ctx context.Context, token string) (ScanPage, error)
	// GetItem returns nil, nil when the song does not exist
	GetItem(ctx context.Context, songID string) (*models.Song, error)
	PutItem(ctx context.Context, song models.Song) error
	// UpdateItem applies assignments and returns the updated record
	UpdateItem(ctx context.Context, songID string, set []models.Assignment) (*models.Song, error)
	// DeleteItem is idempotent
	DeleteItem(ctx context.Context, songID string) error
	Ping(ctx context.Context) error
}

// BlobStore is an object store addressed by bucket and key
type BlobStore interface {
	HeadBucket(ctx context.Context, bucket string) error
	HeadObject(ctx context.Context, bucket, key string) error
	// PresignGet returns a read-only URL valid for ttl
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
