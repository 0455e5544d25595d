package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourchants/internal/apierr"
	"ourchants/internal/metrics"
	"ourchants/internal/models"
	"ourchants/internal/pagination"
	"ourchants/internal/storage"
	"ourchants/internal/storage/memstore"
)

// countingStore wraps a memstore and counts calls per operation
type countingStore struct {
	*memstore.Store
	calls   map[string]int
	failAll error
}

func newCountingStore(pageSize int) *countingStore {
	return &countingStore{Store: memstore.New(pageSize), calls: map[string]int{}}
}

func (s *countingStore) total() int {
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *countingStore) ScanPage(ctx context.Context, token string) (storage.ScanPage, error) {
	s.calls["scan"]++
	if s.failAll != nil {
		return storage.ScanPage{}, s.failAll
	}
	return s.Store.ScanPage(ctx, token)
}

func (s *countingStore) GetItem(ctx context.Context, id string) (*models.Song, error) {
	s.calls["get"]++
	if s.failAll != nil {
		return nil, s.failAll
	}
	return s.Store.GetItem(ctx, id)
}

func (s *countingStore) PutItem(ctx context.Context, song models.Song) error {
	s.calls["put"]++
	if s.failAll != nil {
		return s.failAll
	}
	return s.Store.PutItem(ctx, song)
}

func (s *countingStore) UpdateItem(ctx context.Context, id string, set []models.Assignment) (*models.Song, error) {
	s.calls["update"]++
	if s.failAll != nil {
		return nil, s.failAll
	}
	return s.Store.UpdateItem(ctx, id, set)
}

func (s *countingStore) DeleteItem(ctx context.Context, id string) error {
	s.calls["delete"]++
	if s.failAll != nil {
		return s.failAll
	}
	return s.Store.DeleteItem(ctx, id)
}

func newTestService(store storage.RecordStore) *Service {
	return NewService(store, Options{Metrics: metrics.Nop()})
}

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"title":  "Kyrie",
		"artist": "John Smith",
		"s3_uri": "s3://ourchants-songs/songs/kyrie.mp3",
	}
}

func seed(t *testing.T, svc *Service, artists ...string) {
	t.Helper()
	for i, artist := range artists {
		_, err := svc.Create(context.Background(), map[string]interface{}{
			"title":  fmt.Sprintf("Song %d", i),
			"artist": artist,
			"s3_uri": fmt.Sprintf("s3://b/songs/%d.mp3", i),
		})
		require.NoError(t, err)
	}
}

func TestCreateThenGet(t *testing.T) {
	store := newCountingStore(0)
	svc := newTestService(store)
	ctx := context.Background()

	payload := validPayload()
	payload["album"] = "Vespers"
	payload["bpm"] = "72"
	payload["lineage"] = []interface{}{"a", "b"}

	created, err := svc.Create(ctx, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, created.SongID)

	got, found, err := svc.Get(ctx, created.SongID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created, got)
	assert.Equal(t, "Kyrie", *got.Title)
	assert.Equal(t, "72", *got.BPM)
	assert.Nil(t, got.Composer)
	assert.Equal(t, models.StringList{"a", "b"}, got.Lineage)
}

func TestCreate_OverwritesClientSongID(t *testing.T) {
	svc := NewService(newCountingStore(0), Options{NewID: func() string { return "generated" }})

	payload := validPayload()
	payload["song_id"] = "client-chosen"

	created, err := svc.Create(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "generated", created.SongID)
}

func TestCreate_DerivesBlobURIFromFilename(t *testing.T) {
	svc := newTestService(newCountingStore(0))

	created, err := svc.Create(context.Background(), map[string]interface{}{
		"title":    "Kyrie",
		"artist":   "John",
		"filename": "kyrie.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://ourchants-songs/songs/kyrie.mp3", created.BlobURI)
}

func TestCreate_MissingRequiredFields(t *testing.T) {
	store := newCountingStore(0)
	svc := newTestService(store)

	for _, field := range []string{"title", "artist", "s3_uri"} {
		t.Run(field, func(t *testing.T) {
			payload := validPayload()
			delete(payload, field)

			_, err := svc.Create(context.Background(), payload)
			var apiErr *apierr.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, apierr.CodeValidation, apiErr.Code)
			assert.Contains(t, apiErr.Details, field)
		})
	}
	assert.Equal(t, 0, store.calls["put"])
}

func TestCreate_ReportsEveryOffendingField(t *testing.T) {
	svc := newTestService(newCountingStore(0))

	_, err := svc.Create(context.Background(), map[string]interface{}{
		"title": "",
		"album": 12,
	})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)

	details := apiErr.Details.(map[string][]string)
	assert.Equal(t, []string{"Shorter than minimum length 1."}, details["title"])
	assert.Equal(t, []string{"Missing data for required field."}, details["artist"])
	assert.Equal(t, []string{"Not a valid string."}, details["album"])
	assert.Contains(t, details, "s3_uri")
}

func TestGet_NotFound(t *testing.T) {
	_, found, err := newTestService(newCountingStore(0)).Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestUpdate_NotFoundWritesNothing(t *testing.T) {
	store := newCountingStore(0)
	svc := newTestService(store)

	_, found, err := svc.Update(context.Background(), "missing", validPayload())
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, store.calls["get"])
	assert.Equal(t, 0, store.calls["update"])
	assert.Equal(t, 0, store.calls["put"])
	assert.Equal(t, 0, store.Len())
}

func TestUpdate_ChangesProvidedFieldsOnly(t *testing.T) {
	store := newCountingStore(0)
	svc := newTestService(store)
	ctx := context.Background()

	payload := validPayload()
	payload["album"] = "Vespers"
	created, err := svc.Create(ctx, payload)
	require.NoError(t, err)

	updated, found, err := svc.Update(ctx, created.SongID, map[string]interface{}{
		"title":   "Gloria",
		"artist":  "John Smith",
		"s3_uri":  "s3://ourchants-songs/songs/gloria.mp3",
		"song_id": "attempted-rename",
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.SongID, updated.SongID)
	assert.Equal(t, "Gloria", *updated.Title)
	require.NotNil(t, updated.Album)
	assert.Equal(t, "Vespers", *updated.Album)

	_, renamed, err := svc.Get(ctx, "attempted-rename")
	require.NoError(t, err)
	assert.False(t, renamed)
}

func TestUpdate_KeepsCreateContract(t *testing.T) {
	store := newCountingStore(0)
	svc := newTestService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, validPayload())
	require.NoError(t, err)

	_, found, err := svc.Update(ctx, created.SongID, map[string]interface{}{"album": "Only album"})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, found)
	assert.Equal(t, apierr.CodeValidation, apiErr.Code)
	assert.Contains(t, apiErr.Details, "title")
	assert.Equal(t, 0, store.calls["update"])
}

func TestDeleteThenGet(t *testing.T) {
	svc := newTestService(newCountingStore(0))
	ctx := context.Background()

	created, err := svc.Create(ctx, validPayload())
	require.NoError(t, err)

	for _, id := range []string{created.SongID, "never-existed"} {
		require.NoError(t, svc.Delete(ctx, id))
		require.NoError(t, svc.Delete(ctx, id))

		_, found, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestList_InvalidParamsMakeNoStorageCalls(t *testing.T) {
	tests := []struct {
		name   string
		params pagination.Params
		code   apierr.Code
	}{
		{"zero limit", pagination.Params{Limit: 0}, apierr.CodeInvalidLimit},
		{"limit too large", pagination.Params{Limit: 101}, apierr.CodeInvalidLimit},
		{"negative offset", pagination.Params{Limit: 10, Offset: -1}, apierr.CodeInvalidOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCountingStore(0)
			_, err := newTestService(store).List(context.Background(), tt.params)

			var apiErr *apierr.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, 0, store.total())
		})
	}
}

func TestList_ArtistFilterIsCaseInsensitiveSubstring(t *testing.T) {
	svc := newTestService(newCountingStore(0))
	seed(t, svc, "John", "JOHN", "johnny", "Mary", "Big John Band")

	result, err := svc.List(context.Background(), pagination.Params{ArtistFilter: "john", Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.False(t, result.HasMore)

	var artists []string
	for _, item := range result.Items {
		artists = append(artists, *item.Artist)
	}
	assert.Equal(t, []string{"John", "JOHN", "johnny", "Big John Band"}, artists)
}

func TestList_EmptyFilterKeepsAll(t *testing.T) {
	svc := newTestService(newCountingStore(0))
	seed(t, svc, "A", "B", "C")

	result, err := svc.List(context.Background(), pagination.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Items, 3)
}

func TestList_FollowsContinuationTokens(t *testing.T) {
	store := newCountingStore(2)
	svc := newTestService(store)
	seed(t, svc, "A", "B", "C", "D", "E")
	store.calls = map[string]int{}

	result, err := svc.List(context.Background(), pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 3, store.calls["scan"])
}

func TestList_WindowMatchesClosedForm(t *testing.T) {
	for n := 0; n <= 7; n++ {
		store := newCountingStore(3)
		svc := newTestService(store)
		artists := make([]string, n)
		for i := range artists {
			artists[i] = fmt.Sprintf("Artist %d", i)
		}
		seed(t, svc, artists...)

		for limit := 1; limit <= 4; limit++ {
			for offset := 0; offset <= 9; offset++ {
				result, err := svc.List(context.Background(), pagination.Params{Limit: limit, Offset: offset})
				require.NoError(t, err)

				want := n - offset
				if want < 0 {
					want = 0
				}
				if want > limit {
					want = limit
				}
				assert.Len(t, result.Items, want, "n=%d limit=%d offset=%d", n, limit, offset)
				assert.Equal(t, n, result.Total)
				assert.Equal(t, n > offset+limit, result.HasMore)
			}
		}
	}
}

func TestList_DumpsStoredRecords(t *testing.T) {
	store := newCountingStore(0)
	filename := "legacy.mp3"
	artist := "Old"
	require.NoError(t, store.Store.PutItem(context.Background(), models.Song{
		SongID:   "legacy",
		Artist:   &artist,
		Filename: &filename,
	}))

	result, err := newTestService(store).List(context.Background(), pagination.DefaultParams())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, models.StringList{}, result.Items[0].Lineage)
	assert.Equal(t, "s3://ourchants-songs/songs/legacy.mp3", result.Items[0].BlobURI)
}

func TestBackendErrorsPropagateWithKind(t *testing.T) {
	store := newCountingStore(0)
	store.failAll = storage.NewError("scan", storage.ErrThrottled, fmt.Errorf("slow down"))
	svc := newTestService(store)

	_, err := svc.List(context.Background(), pagination.DefaultParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrThrottled)
	assert.Equal(t, apierr.CodeRateLimitExceeded, apierr.Classify(err).Code)

	store.failAll = storage.NewError("get", storage.ErrBackend, fmt.Errorf("boom"))
	_, _, err = svc.Get(context.Background(), "x")
	assert.Equal(t, apierr.CodeInternal, apierr.Classify(err).Code)
}
