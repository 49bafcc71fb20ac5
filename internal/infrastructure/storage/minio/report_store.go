package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/tags"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const runPrefix = "runs/"

// Report object names below runs/<run_id>/.
const (
	ObjectTransforms  = "transforms.tsv"
	ObjectUnprocessed = "unprocessed.tsv"
	ObjectFailures    = "failures.json"
	ObjectSummary     = "summary.json"
)

var reportObjects = []string{ObjectTransforms, ObjectUnprocessed, ObjectFailures, ObjectSummary}

// ObjectKey returns the object name of one report file of a run.
func ObjectKey(runID, name string) string {
	return runPrefix + runID + "/" + name
}

// ReportStore writes every run as a set of objects under runs/<run_id>/:
// the transform table and the unprocessed side channel as TSV, pair
// failures and the summary as JSON.  The summary is written last, so its
// presence marks a complete report.  It is a pipeline.Sink.
type ReportStore struct {
	api           ObjectAPI
	bucket        string
	presignExpiry time.Duration
	logger        logging.Logger
}

// NewReportStore stores into bucket through api.
func NewReportStore(api ObjectAPI, bucket string, presignExpiry time.Duration, log logging.Logger) *ReportStore {
	if presignExpiry <= 0 {
		presignExpiry = time.Hour
	}
	return &ReportStore{api: api, bucket: bucket, presignExpiry: presignExpiry, logger: log.Named("minio")}
}

// Name implements pipeline.Sink.
func (s *ReportStore) Name() string { return "minio" }

// Publish implements pipeline.Sink.
func (s *ReportStore) Publish(ctx context.Context, report *pipeline.Report) error {
	if report == nil || report.Response == nil {
		return nil
	}
	resp := report.Response

	var buf bytes.Buffer
	if err := pipeline.WriteTransformsTSV(&buf, resp.Rows, report.Pairing); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to render transforms")
	}
	if err := s.put(ctx, resp.RunID, ObjectTransforms, buf.Bytes(), "text/tab-separated-values"); err != nil {
		return err
	}

	buf.Reset()
	if err := pipeline.WriteUnprocessedTSV(&buf, resp.Unprocessed); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to render unprocessed rows")
	}
	if err := s.put(ctx, resp.RunID, ObjectUnprocessed, buf.Bytes(), "text/tab-separated-values"); err != nil {
		return err
	}

	failures, err := json.Marshal(resp.Failures)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode pair failures")
	}
	if err := s.put(ctx, resp.RunID, ObjectFailures, failures, "application/json"); err != nil {
		return err
	}

	summary, err := json.Marshal(resp.Summary)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode summary")
	}
	if err := s.put(ctx, resp.RunID, ObjectSummary, summary, "application/json"); err != nil {
		return err
	}

	t, err := tags.NewTags(map[string]string{"status": string(resp.Summary.Status)}, true)
	if err == nil {
		if err := s.api.PutObjectTagging(ctx, s.bucket, ObjectKey(resp.RunID, ObjectSummary), t, minio.PutObjectTaggingOptions{}); err != nil {
			s.logger.Warn("failed to tag summary", logging.RunID(resp.RunID), logging.Err(err))
		}
	}

	s.logger.Debug("run report stored", logging.RunID(resp.RunID), logging.String("bucket", s.bucket))
	return nil
}

func (s *ReportStore) put(ctx context.Context, runID, name string, data []byte, contentType string) error {
	_, err := s.api.PutObject(ctx, s.bucket, ObjectKey(runID, name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType, UserMetadata: map[string]string{"run-id": runID}})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload report object").WithDetail(ObjectKey(runID, name))
	}
	return nil
}

// ReportURLs returns presigned download URLs of every report object of a
// stored run, keyed by object name.  A run without a summary is not found.
func (s *ReportStore) ReportURLs(ctx context.Context, runID string) (map[string]string, error) {
	if _, err := s.api.StatObject(ctx, s.bucket, ObjectKey(runID, ObjectSummary), minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound.WithDetail(runID)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat run summary")
	}
	urls := make(map[string]string, len(reportObjects))
	for _, name := range reportObjects {
		u, err := s.api.PresignedGetObject(ctx, s.bucket, ObjectKey(runID, name), s.presignExpiry, nil)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to presign report object")
		}
		urls[name] = u.String()
	}
	return urls, nil
}
