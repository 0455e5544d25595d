// Package memstore is an in-process storage.RecordStore for development and tests.
package memstore

import (
	"context"
	"sync"

	"ourchants/internal/models"
	"ourchants/internal/storage"
)

// DefaultPageSize is the number of songs returned per scan page
const DefaultPageSize = 100

// Store keeps songs in insertion order. Scan tokens are the song_id of the
// last song on the previous page.
type Store struct {
	mu       sync.RWMutex
	order    []string
	songs    map[string]models.Song
	pageSize int
}

// New creates an empty store. pageSize <= 0 selects DefaultPageSize.
func New(pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{
		songs:    make(map[string]models.Song),
		pageSize: pageSize,
	}
}

func (s *Store) ScanPage(ctx context.Context, token string) (storage.ScanPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.ScanPage{}, storage.NewError("scan", storage.ErrBackend, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if token != "" {
		start = len(s.order)
		for i, id := range s.order {
			if id == token {
				start = i + 1
				break
			}
		}
	}

	end := start + s.pageSize
	if end > len(s.order) {
		end = len(s.order)
	}

	page := storage.ScanPage{Songs: make([]models.Song, 0, end-start)}
	for _, id := range s.order[start:end] {
		page.Songs = append(page.Songs, clone(s.songs[id]))
	}
	if end < len(s.order) {
		page.Next = s.order[end-1]
	}
	return page, nil
}

func (s *Store) GetItem(ctx context.Context, songID string) (*models.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.NewError("get", storage.ErrBackend, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	song, ok := s.songs[songID]
	if !ok {
		return nil, nil
	}
	out := clone(song)
	return &out, nil
}

func (s *Store) PutItem(ctx context.Context, song models.Song) error {
	if err := ctx.Err(); err != nil {
		return storage.NewError("put", storage.ErrBackend, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.songs[song.SongID]; !exists {
		s.order = append(s.order, song.SongID)
	}
	s.songs[song.SongID] = clone(song)
	return nil
}

// UpdateItem applies set to the stored song, creating it when absent the same
// way a keyed update does.
func (s *Store) UpdateItem(ctx context.Context, songID string, set []models.Assignment) (*models.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.NewError("update", storage.ErrBackend, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	song, exists := s.songs[songID]
	if !exists {
		song = models.Song{SongID: songID}
		s.order = append(s.order, songID)
	}
	for _, a := range set {
		a.Apply(&song)
	}
	s.songs[songID] = song

	out := clone(song)
	return &out, nil
}

func (s *Store) DeleteItem(ctx context.Context, songID string) error {
	if err := ctx.Err(); err != nil {
		return storage.NewError("delete", storage.ErrBackend, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.songs[songID]; !exists {
		return nil
	}
	delete(s.songs, songID)
	for i, id := range s.order {
		if id == songID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored songs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.songs)
}

func clone(song models.Song) models.Song {
	out := song
	if song.Lineage != nil {
		out.Lineage = append(models.StringList{}, song.Lineage...)
	}
	return out
}
