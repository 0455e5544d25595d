// Package catalog implements the song catalog: listing with artist filter and
// offset pagination, and create/read/update/delete over a storage.RecordStore.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"ourchants/internal/apierr"
	"ourchants/internal/logging"
	"ourchants/internal/metrics"
	"ourchants/internal/models"
	"ourchants/internal/storage"
	"ourchants/internal/tracing"
	"ourchants/internal/validation"
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	URITemplate   validation.URITemplate
	UnknownFields validation.UnknownFieldPolicy
	NewID         func() string
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
}

// Service runs catalog operations against a record store
type Service struct {
	store   storage.RecordStore
	tmpl    validation.URITemplate
	policy  validation.UnknownFieldPolicy
	newID   func() string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewService creates a new catalog service
func NewService(store storage.RecordStore, opts Options) *Service {
	s := &Service{
		store:   store,
		tmpl:    opts.URITemplate,
		policy:  opts.UnknownFields,
		newID:   opts.NewID,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.tmpl.Bucket == "" {
		s.tmpl = validation.DefaultURITemplate()
	}
	if s.policy == "" {
		s.policy = validation.ExcludeUnknown
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.WithField("component", "catalog")
	return s
}

// Create validates raw, assigns a fresh song_id and stores the song.
// Any client-supplied song_id is overwritten.
func (s *Service) Create(ctx context.Context, raw map[string]interface{}) (models.Song, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Create")
	defer span.End()

	load, fieldErrs := validation.LoadSong(validation.EnsureDefaults(raw, s.tmpl), s.policy)
	if fieldErrs != nil {
		s.metrics.RecordOperation("create", "invalid")
		return models.Song{}, apierr.Validation(fieldErrs)
	}

	song := load.Song
	song.SongID = s.newID()
	span.SetAttributes(attribute.String("song_id", song.SongID))

	if err := s.store.PutItem(ctx, song); err != nil {
		return models.Song{}, s.fail(ctx, "create", errors.Wrapf(err, "failed to create song %s", song.SongID))
	}

	s.logger.WithContext(ctx).Info().Str("song_id", song.SongID).Msg("Song created")
	s.metrics.RecordOperation("create", "ok")
	return validation.Dump(song, s.tmpl), nil
}

// Get returns the song with songID. found is false when it does not exist.
func (s *Service) Get(ctx context.Context, songID string) (models.Song, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Get", attribute.String("song_id", songID))
	defer span.End()

	song, err := s.store.GetItem(ctx, songID)
	if err != nil {
		return models.Song{}, false, s.fail(ctx, "get", errors.Wrapf(err, "failed to get song %s", songID))
	}
	if song == nil {
		s.metrics.RecordOperation("get", "not_found")
		return models.Song{}, false, nil
	}

	s.metrics.RecordOperation("get", "ok")
	return validation.Dump(*song, s.tmpl), true, nil
}

// Update replaces the provided fields of an existing song. The payload is held
// to the same contract as Create, so title, artist and s3_uri are required.
// Nothing is written when the song does not exist.
func (s *Service) Update(ctx context.Context, songID string, raw map[string]interface{}) (models.Song, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Update", attribute.String("song_id", songID))
	defer span.End()

	existing, err := s.store.GetItem(ctx, songID)
	if err != nil {
		return models.Song{}, false, s.fail(ctx, "update", errors.Wrapf(err, "failed to get song %s", songID))
	}
	if existing == nil {
		s.metrics.RecordOperation("update", "not_found")
		return models.Song{}, false, nil
	}

	load, fieldErrs := validation.LoadSong(validation.EnsureDefaults(raw, s.tmpl), s.policy)
	if fieldErrs != nil {
		s.metrics.RecordOperation("update", "invalid")
		return models.Song{}, true, apierr.Validation(fieldErrs)
	}

	updated, err := s.store.UpdateItem(ctx, songID, load.Assignments())
	if err != nil {
		return models.Song{}, true, s.fail(ctx, "update", errors.Wrapf(err, "failed to update song %s", songID))
	}
	if updated == nil {
		// deleted between the existence check and the write
		s.metrics.RecordOperation("update", "not_found")
		return models.Song{}, false, nil
	}

	s.logger.WithContext(ctx).Info().Str("song_id", songID).Strs("fields", load.Provided).Msg("Song updated")
	s.metrics.RecordOperation("update", "ok")
	return validation.Dump(*updated, s.tmpl), true, nil
}

// Delete removes the song. Deleting a missing song is not an error.
func (s *Service) Delete(ctx context.Context, songID string) error {
	ctx, span := tracing.StartSpan(ctx, "catalog.Delete", attribute.String("song_id", songID))
	defer span.End()

	if err := s.store.DeleteItem(ctx, songID); err != nil {
		return s.fail(ctx, "delete", errors.Wrapf(err, "failed to delete song %s", songID))
	}

	s.logger.WithContext(ctx).Info().Str("song_id", songID).Msg("Song deleted")
	s.metrics.RecordOperation("delete", "ok")
	return nil
}

// fail records a backend failure and returns err unchanged for the mapper
func (s *Service) fail(ctx context.Context, op string, err error) error {
	outcome := "error"
	if errors.Is(err, storage.ErrThrottled) {
		outcome = "throttled"
	}
	tracing.SetSpanError(ctx, err)
	s.logger.WithContext(ctx).Error().Err(err).Str("operation", op).Msg("Record store call failed")
	s.metrics.RecordOperation(op, outcome)
	return err
}
