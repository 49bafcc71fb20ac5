package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/minio/minio-go/v7/pkg/tags"
	"github.com/stretchr/testify/mock"
)

type mockObjectAPI struct {
	mock.Mock
	uploads map[string][]byte
}

func newMockObjectAPI() *mockObjectAPI {
	return &mockObjectAPI{uploads: make(map[string][]byte)}
}

func (m *mockObjectAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]minio.BucketInfo)
	return b, args.Error(1)
}

func (m *mockObjectAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *mockObjectAPI) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucket, opts).Error(0)
}

func (m *mockObjectAPI) SetBucketLifecycle(ctx context.Context, bucket string, cfg *lifecycle.Configuration) error {
	return m.Called(ctx, bucket, cfg).Error(0)
}

func (m *mockObjectAPI) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, _ := io.ReadAll(r)
	m.uploads[object] = data
	args := m.Called(ctx, bucket, object, size, opts.ContentType)
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, args.Error(0)
}

func (m *mockObjectAPI) StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucket, object)
	return minio.ObjectInfo{Key: object}, args.Error(0)
}

func (m *mockObjectAPI) PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucket, object, expiry)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return &url.URL{Scheme: "http", Host: "minio:9000", Path: "/" + bucket + "/" + object}, nil
}

func (m *mockObjectAPI) PutObjectTagging(ctx context.Context, bucket, object string, t *tags.Tags, opts minio.PutObjectTaggingOptions) error {
	return m.Called(ctx, bucket, object, t.ToMap()).Error(0)
}
