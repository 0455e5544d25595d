// Package presign issues time-limited download links for blob-store objects
// after checking bucket and key syntax and that both exist.
package presign

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"ourchants/internal/apierr"
	"ourchants/internal/logging"
	"ourchants/internal/metrics"
	"ourchants/internal/storage"
	"ourchants/internal/tracing"
	"ourchants/internal/validation"
)

const (
	// DefaultBucket is used when a request names no bucket
	DefaultBucket = "ourchants-songs"
	// DefaultTTL is the lifetime of an issued link
	DefaultTTL = time.Hour
)

// Request names the object to link. A nil Bucket selects the default bucket.
type Request struct {
	Bucket *string `json:"bucket"`
	Key    string  `json:"key"`
}

// Link is an issued presigned URL
type Link struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}

// Options configures a Checker. Zero values select the defaults.
type Options struct {
	DefaultBucket string
	TTL           time.Duration
	RetryAfter    time.Duration
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
}

// Checker validates link requests against a blob store and signs them
type Checker struct {
	blobs         storage.BlobStore
	defaultBucket string
	ttl           time.Duration
	retryAfter    time.Duration
	logger        *logging.Logger
	metrics       *metrics.Metrics
}

// NewChecker creates a new Checker
func NewChecker(blobs storage.BlobStore, opts Options) *Checker {
	c := &Checker{
		blobs:         blobs,
		defaultBucket: opts.DefaultBucket,
		ttl:           opts.TTL,
		retryAfter:    opts.RetryAfter,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
	if c.defaultBucket == "" {
		c.defaultBucket = DefaultBucket
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.retryAfter <= 0 {
		c.retryAfter = apierr.DefaultRetryAfter
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	c.logger = c.logger.WithField("component", "presign")
	return c
}

// DefaultBucket returns the bucket used for requests without one
func (c *Checker) DefaultBucket() string {
	return c.defaultBucket
}

// Issue checks req and returns a presigned GET link. Checks run in order:
// key present, bucket syntax, key syntax, bucket exists, object exists.
func (c *Checker) Issue(ctx context.Context, req Request) (Link, error) {
	link, err := c.issue(ctx, req)
	if err != nil {
		c.metrics.RecordPresign(string(apierr.Classify(err).Code))
		return Link{}, err
	}
	c.metrics.RecordPresign("ok")
	return link, nil
}

func (c *Checker) issue(ctx context.Context, req Request) (Link, error) {
	if req.Key == "" {
		return Link{}, apierr.New(apierr.CodeInvalidObjectKey, validation.ErrKeyEmpty.Error())
	}

	bucket := c.defaultBucket
	if req.Bucket != nil {
		bucket = *req.Bucket
	}

	if err := validation.ValidateBucketName(bucket); err != nil {
		return Link{}, apierr.WithDetails(apierr.CodeInvalidBucketName, "Invalid bucket name", err.Error())
	}
	if err := validation.ValidateObjectKey(req.Key); err != nil {
		return Link{}, apierr.WithDetails(apierr.CodeInvalidObjectKey, "Invalid object key", err.Error())
	}

	ctx, span := tracing.StartSpan(ctx, "presign.Issue",
		attribute.String("bucket", bucket),
		attribute.String("key", req.Key),
	)
	defer span.End()

	if err := c.blobs.HeadBucket(ctx, bucket); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrAccessDenied) {
			// access denied is reported as missing so bucket existence is not disclosed
			c.logger.WithContext(ctx).Warn().Err(err).Str("bucket", bucket).Msg("Bucket check failed")
			return Link{}, apierr.WithDetails(apierr.CodeBucketNotFound,
				fmt.Sprintf("Bucket %s not found", bucket),
				map[string]string{"bucket": bucket})
		}
		return Link{}, c.backendError(ctx, errors.Wrapf(err, "failed to check bucket %s", bucket))
	}

	if err := c.blobs.HeadObject(ctx, bucket, req.Key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Link{}, apierr.WithDetails(apierr.CodeObjectNotFound,
				fmt.Sprintf("Object %s not found in bucket %s", req.Key, bucket),
				map[string]string{"bucket": bucket, "key": req.Key})
		}
		return Link{}, c.backendError(ctx, errors.Wrapf(err, "failed to check object %s/%s", bucket, req.Key))
	}

	url, err := c.blobs.PresignGet(ctx, bucket, req.Key, c.ttl)
	if err != nil {
		if errors.Is(err, storage.ErrThrottled) {
			return Link{}, c.backendError(ctx, errors.Wrapf(err, "failed to presign %s/%s", bucket, req.Key))
		}
		tracing.SetSpanError(ctx, err)
		c.logger.WithContext(ctx).Error().Err(err).Str("bucket", bucket).Str("key", req.Key).Msg("Failed to presign object")
		return Link{}, apierr.Internal("Failed to generate pre-signed URL", err)
	}

	c.logger.WithContext(ctx).Info().Str("bucket", bucket).Str("key", req.Key).Msg("Presigned URL issued")
	return Link{URL: url, ExpiresIn: int(c.ttl.Seconds())}, nil
}

func (c *Checker) backendError(ctx context.Context, err error) error {
	tracing.SetSpanError(ctx, err)
	if errors.Is(err, storage.ErrThrottled) {
		c.logger.WithContext(ctx).Warn().Err(err).Msg("Blob store throttled request")
		return apierr.RateLimited(c.retryAfter, err)
	}
	c.logger.WithContext(ctx).Error().Err(err).Msg("Blob store call failed")
	return apierr.Internal("", err)
}
