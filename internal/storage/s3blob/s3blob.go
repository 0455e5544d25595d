// Package s3blob implements storage.BlobStore on Amazon S3 or an S3-compatible service.
package s3blob

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"ourchants/internal/metrics"
	"ourchants/internal/storage"
)

// Store checks and signs S3 objects
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	metrics *metrics.Metrics
}

// NewClient creates an S3 client. A non-empty endpoint selects path-style
// addressing against that endpoint, as MinIO and LocalStack expect.
func NewClient(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// New creates a Store
func New(client *s3.Client, m *metrics.Metrics) *Store {
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		metrics: m,
	}
}

func (s *Store) HeadBucket(ctx context.Context, bucket string) error {
	defer s.observe("head_bucket", time.Now())

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return storage.FromAWS("head_bucket", err)
}

func (s *Store) HeadObject(ctx context.Context, bucket, key string) error {
	defer s.observe("head_object", time.Now())

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return storage.FromAWS("head_object", err)
}

// PresignGet signs a GetObject request valid for ttl. Signing makes no call
// to S3, but resolving credentials may reach STS or the instance metadata
// service, which can throttle.
func (s *Store) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", storage.FromAWS("presign", errors.Wrapf(err, "failed to presign %s/%s", bucket, key))
	}
	return req.URL, nil
}

func (s *Store) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.BackendDurationSeconds.WithLabelValues("s3", op).Observe(time.Since(start).Seconds())
}
