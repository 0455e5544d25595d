// Package cache decorates a storage.RecordStore with a Redis read-through
// cache of single songs. Writes go to the store first and then evict.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ourchants/internal/logging"
	"ourchants/internal/metrics"
	"ourchants/internal/models"
	"ourchants/internal/storage"
)

const keyPrefix = "ourchants:song:"

// Store caches GetItem results of the wrapped store
type Store struct {
	storage.RecordStore
	client  redis.UniversalClient
	ttl     time.Duration
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New wraps next. Cache failures are logged and fall through to next.
func New(next storage.RecordStore, client redis.UniversalClient, ttl time.Duration, logger *logging.Logger, m *metrics.Metrics) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithField("component", "song_cache")
	return &Store{RecordStore: next, client: client, ttl: ttl, logger: logger, metrics: m}
}

// NewClient creates a Redis client from connection settings
func NewClient(addr, password string, db, poolSize int, timeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
}

func key(songID string) string {
	return keyPrefix + songID
}

func (s *Store) GetItem(ctx context.Context, songID string) (*models.Song, error) {
	raw, err := s.client.Get(ctx, key(songID)).Bytes()
	switch {
	case err == nil:
		var song models.Song
		if jsonErr := json.Unmarshal(raw, &song); jsonErr == nil {
			s.record("hit")
			return &song, nil
		}
		s.evict(ctx, songID)
	case err != redis.Nil:
		s.logger.WithContext(ctx).Warn().Err(err).Str("song_id", songID).Msg("Song cache read failed")
		s.record("error")
	default:
		s.record("miss")
	}

	song, err := s.RecordStore.GetItem(ctx, songID)
	if err != nil || song == nil {
		return song, err
	}

	if data, err := json.Marshal(song); err == nil {
		if err := s.client.Set(ctx, key(songID), data, s.ttl).Err(); err != nil {
			s.logger.WithContext(ctx).Warn().Err(err).Str("song_id", songID).Msg("Song cache write failed")
		}
	}
	return song, nil
}

func (s *Store) PutItem(ctx context.Context, song models.Song) error {
	if err := s.RecordStore.PutItem(ctx, song); err != nil {
		return err
	}
	s.evict(ctx, song.SongID)
	return nil
}

func (s *Store) UpdateItem(ctx context.Context, songID string, set []models.Assignment) (*models.Song, error) {
	song, err := s.RecordStore.UpdateItem(ctx, songID, set)
	s.evict(ctx, songID)
	return song, err
}

func (s *Store) DeleteItem(ctx context.Context, songID string) error {
	err := s.RecordStore.DeleteItem(ctx, songID)
	s.evict(ctx, songID)
	return err
}

// Ping checks the wrapped store only; the cache is optional
func (s *Store) Ping(ctx context.Context) error {
	return s.RecordStore.Ping(ctx)
}

func (s *Store) evict(ctx context.Context, songID string) {
	if err := s.client.Del(ctx, key(songID)).Err(); err != nil {
		s.logger.WithContext(ctx).Warn().Err(err).Str("song_id", songID).Msg("Song cache eviction failed")
	}
}

func (s *Store) record(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheResultsTotal.WithLabelValues(result).Inc()
}
