package catalog

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"ourchants/internal/models"
	"ourchants/internal/pagination"
	"ourchants/internal/tracing"
	"ourchants/internal/validation"
)

// maxScanPages bounds a single listing against a token that never terminates
const maxScanPages = 10000

// ListResult is one page of the filtered catalog
type ListResult struct {
	Items   []models.Song `json:"items"`
	Total   int           `json:"total"`
	HasMore bool          `json:"has_more"`
}

// List scans the whole table, keeps songs whose artist contains
// params.ArtistFilter case-insensitively, and returns the requested window in
// backend order. Invalid params fail before any storage call.
func (s *Service) List(ctx context.Context, params pagination.Params) (ListResult, error) {
	if apiErr := params.Validate(); apiErr != nil {
		s.metrics.RecordOperation("list", "invalid")
		return ListResult{}, apiErr
	}

	ctx, span := tracing.StartSpan(ctx, "catalog.List",
		attribute.String("artist_filter", params.ArtistFilter),
		attribute.Int("limit", params.Limit),
		attribute.Int("offset", params.Offset),
	)
	defer span.End()

	songs, err := s.scanAll(ctx)
	if err != nil {
		return ListResult{}, s.fail(ctx, "list", err)
	}

	matched := filterByArtist(songs, params.ArtistFilter)
	total := len(matched)
	start, end := params.Window(total)

	items := make([]models.Song, 0, end-start)
	for _, song := range matched[start:end] {
		items = append(items, validation.Dump(song, s.tmpl))
	}

	span.SetAttributes(attribute.Int("total", total))
	s.metrics.RecordOperation("list", "ok")
	return ListResult{
		Items:   items,
		Total:   total,
		HasMore: params.HasMore(total),
	}, nil
}

func (s *Service) scanAll(ctx context.Context) ([]models.Song, error) {
	var (
		songs []models.Song
		token string
	)
	for pages := 0; pages < maxScanPages; pages++ {
		page, err := s.store.ScanPage(ctx, token)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan songs (page %d)", pages+1)
		}
		if s.metrics != nil {
			s.metrics.ScanPagesTotal.Inc()
		}
		songs = append(songs, page.Songs...)
		if page.Next == "" {
			return songs, nil
		}
		token = page.Next
	}
	return nil, errors.Errorf("scan did not finish after %d pages", maxScanPages)
}

func filterByArtist(songs []models.Song, filter string) []models.Song {
	if filter == "" {
		return songs
	}
	needle := strings.ToLower(filter)
	matched := make([]models.Song, 0, len(songs))
	for _, song := range songs {
		if song.Artist != nil && strings.Contains(strings.ToLower(*song.Artist), needle) {
			matched = append(matched, song)
		}
	}
	return matched
}
