package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourchants/internal/catalog"
	"ourchants/internal/metrics"
	"ourchants/internal/presign"
	"ourchants/internal/storage"
	"ourchants/internal/storage/memstore"
)

type fakeBlobs struct {
	objects map[string]bool
}

func (f *fakeBlobs) HeadBucket(_ context.Context, bucket string) error {
	if bucket != presign.DefaultBucket {
		return storage.NewError("head_bucket", storage.ErrNotFound, errors.New("NotFound"))
	}
	return nil
}

func (f *fakeBlobs) HeadObject(_ context.Context, bucket, key string) error {
	if !f.objects[bucket+"/"+key] {
		return storage.NewError("head_object", storage.ErrNotFound, errors.New("NotFound"))
	}
	return nil
}

func (f *fakeBlobs) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://" + bucket + ".s3.amazonaws.com/" + key, nil
}

type failingStore struct {
	*memstore.Store
	err error
}

func (f *failingStore) ScanPage(context.Context, string) (storage.ScanPage, error) {
	return storage.ScanPage{}, f.err
}

func newTestApp(store storage.RecordStore) *fiber.App {
	songs := NewSongHandler(catalog.NewService(store, catalog.Options{Metrics: metrics.Nop()}), nil)
	links := NewPresignHandler(presign.NewChecker(&fakeBlobs{objects: map[string]bool{"ourchants-songs/test.mp3": true}}, presign.Options{}), nil)

	app := fiber.New()
	app.Get("/songs", songs.ListSongs)
	app.Post("/songs", songs.CreateSong)
	app.Get("/songs/:id", songs.GetSong)
	app.Put("/songs/:id", songs.UpdateSong)
	app.Delete("/songs/:id", songs.DeleteSong)
	app.Post("/presigned-url", links.CreatePresignedURL)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestSongHandler_CRUD(t *testing.T) {
	app := newTestApp(memstore.New(0))

	status, created := do(t, app, "POST", "/songs", `{"title":"Kyrie","artist":"John Smith","filename":"kyrie.mp3"}`)
	require.Equal(t, 201, status)
	id, _ := created["song_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "s3://ourchants-songs/songs/kyrie.mp3", created["s3_uri"])
	assert.Nil(t, created["album"])

	status, got := do(t, app, "GET", "/songs/"+id, "")
	assert.Equal(t, 200, status)
	assert.Equal(t, created, got)

	status, updated := do(t, app, "PUT", "/songs/"+id, `{"title":"Gloria","artist":"John Smith","s3_uri":"s3://b/k"}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, "Gloria", updated["title"])
	assert.Equal(t, id, updated["song_id"])

	status, _ = do(t, app, "DELETE", "/songs/"+id, "")
	assert.Equal(t, 204, status)

	status, body := do(t, app, "GET", "/songs/"+id, "")
	assert.Equal(t, 404, status)
	assert.Equal(t, "SONG_NOT_FOUND", body["code"])
	assert.Equal(t, "Song not found", body["error"])

	status, _ = do(t, app, "DELETE", "/songs/"+id, "")
	assert.Equal(t, 204, status)
}

func TestSongHandler_CreateValidation(t *testing.T) {
	app := newTestApp(memstore.New(0))

	status, body := do(t, app, "POST", "/songs", `{"title":"Only title"}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, details, "artist")
	assert.Contains(t, details, "s3_uri")
}

func TestSongHandler_InvalidBody(t *testing.T) {
	app := newTestApp(memstore.New(0))

	for _, body := range []string{"", "{not json", "[1,2]", "null", `"song"`} {
		status, out := do(t, app, "POST", "/songs", body)
		assert.Equal(t, 400, status, body)
		assert.Equal(t, "INVALID_REQUEST", out["code"], body)
	}
}

func TestSongHandler_UpdateMissing(t *testing.T) {
	store := memstore.New(0)
	app := newTestApp(store)

	status, body := do(t, app, "PUT", "/songs/nope", `{"title":"T","artist":"A","s3_uri":"s3://b/k"}`)
	assert.Equal(t, 404, status)
	assert.Equal(t, "SONG_NOT_FOUND", body["code"])
	assert.Equal(t, 0, store.Len())
}

func TestSongHandler_List(t *testing.T) {
	app := newTestApp(memstore.New(0))
	for _, artist := range []string{"John", "Mary", "JOHNNY"} {
		status, _ := do(t, app, "POST", "/songs", `{"title":"T","artist":"`+artist+`","s3_uri":"s3://b/k"}`)
		require.Equal(t, 201, status)
	}

	status, body := do(t, app, "GET", "/songs?artist_filter=john&limit=1", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, true, body["has_more"])
	assert.Len(t, body["items"], 1)

	status, body = do(t, app, "GET", "/songs?offset=5", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, false, body["has_more"])
	assert.Len(t, body["items"], 0)
}

func TestSongHandler_ListInvalidParams(t *testing.T) {
	app := newTestApp(memstore.New(0))

	tests := []struct {
		query string
		code  string
	}{
		{"limit=0", "INVALID_LIMIT"},
		{"limit=101", "INVALID_LIMIT"},
		{"limit=abc", "INVALID_LIMIT"},
		{"offset=-1", "INVALID_OFFSET"},
		{"offset=x", "INVALID_OFFSET"},
	}
	for _, tt := range tests {
		status, body := do(t, app, "GET", "/songs?"+tt.query, "")
		assert.Equal(t, 400, status, tt.query)
		assert.Equal(t, tt.code, body["code"], tt.query)
	}
}

func TestSongHandler_BackendThrottled(t *testing.T) {
	app := newTestApp(&failingStore{
		Store: memstore.New(0),
		err:   storage.NewError("scan", storage.ErrThrottled, errors.New("ProvisionedThroughputExceededException")),
	})

	req := httptest.NewRequest("GET", "/songs", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
}

func TestSongHandler_BackendFailureHidesCause(t *testing.T) {
	app := newTestApp(&failingStore{
		Store: memstore.New(0),
		err:   storage.NewError("scan", storage.ErrBackend, errors.New("secret connection string")),
	})

	status, body := do(t, app, "GET", "/songs", "")
	assert.Equal(t, 500, status)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotContains(t, body["error"], "secret")
}

func TestPresignHandler(t *testing.T) {
	app := newTestApp(memstore.New(0))

	status, body := do(t, app, "POST", "/presigned-url", `{"key":"test.mp3"}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, "https://ourchants-songs.s3.amazonaws.com/test.mp3", body["url"])
	assert.Equal(t, float64(3600), body["expiresIn"])

	status, body = do(t, app, "POST", "/presigned-url", "")
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_OBJECT_KEY", body["code"])
	assert.Equal(t, "Object key cannot be empty", body["error"])

	status, body = do(t, app, "POST", "/presigned-url", `{"bucket":"missing-bucket","key":"test.mp3"}`)
	assert.Equal(t, 404, status)
	assert.Equal(t, "BUCKET_NOT_FOUND", body["code"])

	status, body = do(t, app, "POST", "/presigned-url", `{"key":"other.mp3"}`)
	assert.Equal(t, 404, status)
	assert.Equal(t, "OBJECT_NOT_FOUND", body["code"])

	status, body = do(t, app, "POST", "/presigned-url", `{"key":`)
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_REQUEST", body["code"])
}

func TestPresignHandler_NonObjectBody(t *testing.T) {
	app := newTestApp(memstore.New(0))

	for _, payload := range []string{"[]", `"x"`, "42", "null", "{}"} {
		status, body := do(t, app, "POST", "/presigned-url", payload)
		assert.Equal(t, 400, status, payload)
		assert.Equal(t, "INVALID_OBJECT_KEY", body["code"], payload)
		assert.Equal(t, "Object key cannot be empty", body["error"], payload)
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordPresign("ok")

	app := fiber.New()
	app.Get("/metrics", NewMetricsHandler(reg).Metrics())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ourchants_presign_requests_total")
}
