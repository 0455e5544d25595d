package presign

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourchants/internal/apierr"
	"ourchants/internal/storage"
)

type fakeBlobs struct {
	buckets    map[string]error
	objects    map[string]bool
	objectErr  error
	presignErr error
	calls      []string
}

func (f *fakeBlobs) HeadBucket(_ context.Context, bucket string) error {
	f.calls = append(f.calls, "head_bucket")
	err, ok := f.buckets[bucket]
	if !ok {
		return storage.NewError("head_bucket", storage.ErrNotFound, errors.New("NotFound"))
	}
	return err
}

func (f *fakeBlobs) HeadObject(_ context.Context, bucket, key string) error {
	f.calls = append(f.calls, "head_object")
	if f.objectErr != nil {
		return f.objectErr
	}
	if !f.objects[bucket+"/"+key] {
		return storage.NewError("head_object", storage.ErrNotFound, errors.New("NotFound"))
	}
	return nil
}

func (f *fakeBlobs) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	f.calls = append(f.calls, "presign")
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://" + bucket + ".s3.amazonaws.com/" + key + "?X-Amz-Expires=" + ttl.String(), nil
}

func newFake() *fakeBlobs {
	return &fakeBlobs{
		buckets: map[string]error{"ourchants-songs": nil, "other-bucket": nil},
		objects: map[string]bool{"ourchants-songs/test.mp3": true, "other-bucket/a/b.mp3": true},
	}
}

func bucket(s string) *string { return &s }

func requireCode(t *testing.T, err error, code apierr.Code) *apierr.Error {
	t.Helper()
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestIssue_Success(t *testing.T) {
	blobs := newFake()
	link, err := NewChecker(blobs, Options{}).Issue(context.Background(), Request{Bucket: bucket("other-bucket"), Key: "a/b.mp3"})
	require.NoError(t, err)
	assert.Equal(t, 3600, link.ExpiresIn)
	assert.Contains(t, link.URL, "other-bucket")
	assert.Equal(t, []string{"head_bucket", "head_object", "presign"}, blobs.calls)
}

func TestIssue_DefaultBucket(t *testing.T) {
	link, err := NewChecker(newFake(), Options{}).Issue(context.Background(), Request{Key: "test.mp3"})
	require.NoError(t, err)
	assert.Contains(t, link.URL, "ourchants-songs")
}

func TestIssue_SyntaxErrorsMakeNoBlobCalls(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		code    apierr.Code
		details interface{}
	}{
		{"missing key", Request{Bucket: bucket("ourchants-songs")}, apierr.CodeInvalidObjectKey, nil},
		{"ip bucket", Request{Bucket: bucket("192.168.1.1"), Key: "test.mp3"}, apierr.CodeInvalidBucketName,
			"Bucket name cannot be formatted as an IP address"},
		{"adjacent dots", Request{Bucket: bucket("invalid.bucket.name.."), Key: "test.mp3"}, apierr.CodeInvalidBucketName,
			"Bucket name cannot contain two adjacent dots"},
		{"empty bucket", Request{Bucket: bucket(""), Key: "test.mp3"}, apierr.CodeInvalidBucketName,
			"Bucket name cannot be empty"},
		{"double slash", Request{Key: "test//file.mp3"}, apierr.CodeInvalidObjectKey,
			"Object key cannot contain consecutive slashes"},
		{"control char", Request{Key: "test\x00.mp3"}, apierr.CodeInvalidObjectKey,
			"Object key cannot contain control characters"},
		{"too long", Request{Key: strings.Repeat("k", 1025)}, apierr.CodeInvalidObjectKey,
			"Object key cannot exceed 1024 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := newFake()
			_, err := NewChecker(blobs, Options{}).Issue(context.Background(), tt.req)
			apiErr := requireCode(t, err, tt.code)
			assert.Equal(t, tt.details, apiErr.Details)
			assert.Equal(t, 400, apiErr.Status())
			assert.Empty(t, blobs.calls)
		})
	}
}

func TestIssue_MissingKeyMessage(t *testing.T) {
	_, err := NewChecker(newFake(), Options{}).Issue(context.Background(), Request{})
	apiErr := requireCode(t, err, apierr.CodeInvalidObjectKey)
	assert.Equal(t, "Object key cannot be empty", apiErr.Message)
}

func TestIssue_BucketNotFound(t *testing.T) {
	blobs := newFake()
	_, err := NewChecker(blobs, Options{}).Issue(context.Background(), Request{Bucket: bucket("missing-bucket"), Key: "test.mp3"})

	apiErr := requireCode(t, err, apierr.CodeBucketNotFound)
	assert.Equal(t, 404, apiErr.Status())
	assert.Equal(t, "Bucket missing-bucket not found", apiErr.Message)
	assert.Equal(t, map[string]string{"bucket": "missing-bucket"}, apiErr.Details)
	assert.Equal(t, []string{"head_bucket"}, blobs.calls)
}

func TestIssue_ForbiddenBucketLooksMissing(t *testing.T) {
	blobs := newFake()
	blobs.buckets["private-bucket"] = storage.NewError("head_bucket", storage.ErrAccessDenied, errors.New("Forbidden"))

	_, err := NewChecker(blobs, Options{}).Issue(context.Background(), Request{Bucket: bucket("private-bucket"), Key: "test.mp3"})
	apiErr := requireCode(t, err, apierr.CodeBucketNotFound)
	assert.Equal(t, "Bucket private-bucket not found", apiErr.Message)
	assert.Equal(t, map[string]string{"bucket": "private-bucket"}, apiErr.Details)
}

func TestIssue_ObjectNotFound(t *testing.T) {
	_, err := NewChecker(newFake(), Options{}).Issue(context.Background(), Request{Key: "missing.mp3"})

	apiErr := requireCode(t, err, apierr.CodeObjectNotFound)
	assert.Equal(t, 404, apiErr.Status())
	assert.Equal(t, "Object missing.mp3 not found in bucket ourchants-songs", apiErr.Message)
	assert.Equal(t, map[string]string{"bucket": "ourchants-songs", "key": "missing.mp3"}, apiErr.Details)
}

func TestIssue_Throttled(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeBlobs)
		calls []string
	}{
		{
			name: "bucket check",
			setup: func(f *fakeBlobs) {
				f.buckets["ourchants-songs"] = storage.NewError("head_bucket", storage.ErrThrottled, errors.New("SlowDown"))
			},
			calls: []string{"head_bucket"},
		},
		{
			name: "object check",
			setup: func(f *fakeBlobs) {
				f.objectErr = storage.NewError("head_object", storage.ErrThrottled, errors.New("SlowDown"))
			},
			calls: []string{"head_bucket", "head_object"},
		},
		{
			name: "signing",
			setup: func(f *fakeBlobs) {
				f.presignErr = storage.NewError("presign", storage.ErrThrottled, errors.New("ThrottlingException"))
			},
			calls: []string{"head_bucket", "head_object", "presign"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := newFake()
			tt.setup(blobs)

			_, err := NewChecker(blobs, Options{}).Issue(context.Background(), Request{Key: "test.mp3"})
			apiErr := requireCode(t, err, apierr.CodeRateLimitExceeded)
			assert.Equal(t, 429, apiErr.Status())
			assert.Equal(t, 5*time.Second, apiErr.RetryAfter)
			assert.Equal(t, map[string]interface{}{"retry_after": 5}, apiErr.Details)
			assert.Equal(t, tt.calls, blobs.calls)
		})
	}
}

func TestIssue_BackendFailureIsInternal(t *testing.T) {
	blobs := newFake()
	blobs.buckets["broken-bucket"] = storage.NewError("head_bucket", storage.ErrBackend, errors.New("connection reset"))

	_, err := NewChecker(blobs, Options{}).Issue(context.Background(), Request{Bucket: bucket("broken-bucket"), Key: "test.mp3"})
	apiErr := requireCode(t, err, apierr.CodeInternal)
	assert.Equal(t, "Internal server error", apiErr.Message)
	assert.Nil(t, apiErr.Details)
}

func TestIssue_PresignFailure(t *testing.T) {
	blobs := newFake()
	blobs.presignErr = errors.New("no credentials")

	_, err := NewChecker(blobs, Options{}).Issue(context.Background(), Request{Key: "test.mp3"})
	apiErr := requireCode(t, err, apierr.CodeInternal)
	assert.Equal(t, "Failed to generate pre-signed URL", apiErr.Message)
}

func TestIssue_CustomTTL(t *testing.T) {
	link, err := NewChecker(newFake(), Options{TTL: 15 * time.Minute}).Issue(context.Background(), Request{Key: "test.mp3"})
	require.NoError(t, err)
	assert.Equal(t, 900, link.ExpiresIn)
}

func TestChecker_DefaultBucket(t *testing.T) {
	assert.Equal(t, DefaultBucket, NewChecker(newFake(), Options{}).DefaultBucket())
	assert.Equal(t, "other-bucket", NewChecker(newFake(), Options{DefaultBucket: "other-bucket"}).DefaultBucket())
}
