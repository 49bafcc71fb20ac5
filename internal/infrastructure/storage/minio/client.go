// Package minio archives run reports in S3-compatible object storage.
package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/minio/minio-go/v7/pkg/tags"

	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// ObjectAPI is the subset of *minio.Client the report store uses.
type ObjectAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	PutObjectTagging(ctx context.Context, bucketName, objectName string, otags *tags.Tags, opts minio.PutObjectTaggingOptions) error
}

var (
	ErrConnectionFailed = errors.New(errors.ErrCodeStorageError, "minio connection failed")
	ErrObjectNotFound   = errors.New(errors.ErrCodeNotFound, "object not found")
)

// NewObjectAPI dials cfg.Endpoint and checks the credentials with a bucket
// listing.
func NewObjectAPI(ctx context.Context, cfg config.MinIOConfig) (ObjectAPI, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, ErrConnectionFailed.WithCause(err)
	}
	return client, nil
}

// EnsureBucket creates bucket when missing and, when retentionDays is
// positive, installs a lifecycle rule expiring run reports after that many
// days.  A lifecycle failure is logged, not returned.
func EnsureBucket(ctx context.Context, api ObjectAPI, bucket, region string, retentionDays int, log logging.Logger) error {
	exists, err := api.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence").WithDetail(bucket)
	}
	if !exists {
		if err := api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket").WithDetail(bucket)
		}
		log.Info("created bucket", logging.String("bucket", bucket))
	}
	if retentionDays <= 0 {
		return nil
	}

	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{{
		ID:         "run-report-expiry",
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: runPrefix},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(retentionDays)},
	}}
	if err := api.SetBucketLifecycle(ctx, bucket, lc); err != nil {
		log.Warn("failed to set bucket lifecycle", logging.String("bucket", bucket), logging.Err(err))
	}
	return nil
}

// HealthStatus is the result of HealthCheck.
type HealthStatus struct {
	Healthy      bool
	Latency      time.Duration
	BucketExists bool
	Error        string
}

// HealthCheck lists buckets and checks that bucket exists.
func HealthCheck(ctx context.Context, api ObjectAPI, bucket string) (*HealthStatus, error) {
	start := time.Now()
	_, err := api.ListBuckets(ctx)
	status := &HealthStatus{Latency: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
		return status, ErrConnectionFailed.WithCause(err)
	}
	status.BucketExists, _ = api.BucketExists(ctx, bucket)
	status.Healthy = status.BucketExists
	if !status.Healthy {
		status.Error = "bucket " + bucket + " missing"
	}
	return status, nil
}
