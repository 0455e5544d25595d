// Package sqlstore implements storage.RecordStore on a SQL table through gorm.
package sqlstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ourchants/internal/metrics"
	"ourchants/internal/models"
	"ourchants/internal/storage"
)

// DefaultPageSize is the number of rows returned per scan page
const DefaultPageSize = 500

// Store reads and writes the songs table. Scans use keyset pagination on
// song_id and the token is the last song_id of the previous page.
type Store struct {
	db       *gorm.DB
	pageSize int
	metrics  *metrics.Metrics
}

// New creates a Store. pageSize <= 0 selects DefaultPageSize.
func New(db *gorm.DB, pageSize int, m *metrics.Metrics) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{db: db, pageSize: pageSize, metrics: m}
}

func (s *Store) ScanPage(ctx context.Context, token string) (storage.ScanPage, error) {
	defer s.observe("scan", time.Now())

	query := s.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: models.FieldSongID}})
	if token != "" {
		query = query.Where(clause.Gt{Column: clause.Column{Name: models.FieldSongID}, Value: token})
	}

	var songs []models.Song
	// one extra row tells whether another page exists
	if err := query.Limit(s.pageSize + 1).Find(&songs).Error; err != nil {
		return storage.ScanPage{}, wrap("scan", err)
	}

	page := storage.ScanPage{Songs: songs}
	if len(songs) > s.pageSize {
		page.Songs = songs[:s.pageSize]
		page.Next = page.Songs[len(page.Songs)-1].SongID
	}
	if page.Songs == nil {
		page.Songs = []models.Song{}
	}
	return page, nil
}

func (s *Store) GetItem(ctx context.Context, songID string) (*models.Song, error) {
	defer s.observe("get", time.Now())

	var song models.Song
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: models.FieldSongID}, Value: songID}).Take(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", err)
	}
	return &song, nil
}

// PutItem inserts the song or replaces every column of an existing row
func (s *Store) PutItem(ctx context.Context, song models.Song) error {
	defer s.observe("put", time.Now())

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: models.FieldSongID}},
			UpdateAll: true,
		}).
		Create(&song).Error
	return wrap("put", err)
}

// UpdateItem sets the assigned columns and returns the row as stored
// afterwards. A missing row is created, matching keyed-update semantics.
func (s *Store) UpdateItem(ctx context.Context, songID string, set []models.Assignment) (*models.Song, error) {
	defer s.observe("update", time.Now())

	columns := Columns(set)
	var updated models.Song

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(columns) > 0 {
			result := tx.Model(&models.Song{}).
				Where(clause.Eq{Column: clause.Column{Name: models.FieldSongID}, Value: songID}).
				Updates(columns)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				song := models.Song{SongID: songID}
				for _, a := range set {
					a.Apply(&song)
				}
				if err := tx.Create(&song).Error; err != nil {
					return err
				}
			}
		}
		return tx.Where(clause.Eq{Column: clause.Column{Name: models.FieldSongID}, Value: songID}).Take(&updated).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("update", err)
	}
	return &updated, nil
}

func (s *Store) DeleteItem(ctx context.Context, songID string) error {
	defer s.observe("delete", time.Now())

	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: models.FieldSongID}, Value: songID}).
		Delete(&models.Song{}).Error
	return wrap("delete", err)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("ping", err)
	}
	return wrap("ping", sqlDB.PingContext(ctx))
}

// Columns converts assignments to a column map for gorm Updates. Nil values
// become NULL and the primary key is never included.
func Columns(set []models.Assignment) map[string]interface{} {
	columns := make(map[string]interface{}, len(set))
	for _, a := range set {
		if a.Field == models.FieldSongID || !models.IsSongField(a.Field) {
			continue
		}
		switch v := a.Value.(type) {
		case []string:
			columns[a.Field] = models.StringList(v)
		case *string:
			if v == nil {
				columns[a.Field] = nil
			} else {
				columns[a.Field] = *v
			}
		default:
			columns[a.Field] = v
		}
	}
	return columns
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return storage.NewError(op, storage.ErrBackend, err)
}

func (s *Store) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.BackendDurationSeconds.WithLabelValues("sql", op).Observe(time.Since(start).Seconds())
}
