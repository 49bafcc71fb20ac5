package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const (
	fieldID          = "id"
	fieldRunID       = "run_id"
	fieldStructureID = "structure_id"
	fieldKey         = "key"
	fieldFragment    = "fragment"
	fieldVector      = "fingerprint"

	maxTextLength = 2048
	defaultNList  = 128
	defaultNProbe = 16
	upsertBatch   = 1000
	collShardsNum = 1
	defaultTopK   = 10
	maxTopK       = 1000
)

var outputFields = []string{fieldRunID, fieldStructureID, fieldKey, fieldFragment}

// StoreConfig sizes the collection.  Dim must equal the fingerprint length
// in bits.
type StoreConfig struct {
	Collection string
	Dim        int
	NList      int
	NProbe     int
}

// FingerprintMatch is one search hit.  Similarity is the Tanimoto
// coefficient, 1 minus the Jaccard distance Milvus reports.
type FingerprintMatch struct {
	RunID       string  `json:"run_id"`
	StructureID string  `json:"structure_id"`
	Key         string  `json:"key"`
	Fragment    string  `json:"fragment"`
	Similarity  float64 `json:"similarity"`
}

// FingerprintStore upserts fragment fingerprints of every run.  It is a
// pipeline.Sink and a pipeline.FingerprintConsumer.
type FingerprintStore struct {
	client *Client
	cfg    StoreConfig
	logger logging.Logger
}

// NewFingerprintStore writes into cfg.Collection through c.
func NewFingerprintStore(c *Client, cfg StoreConfig, logger logging.Logger) (*FingerprintStore, error) {
	if cfg.Dim <= 0 || cfg.Dim%8 != 0 {
		return nil, ErrInvalidConfig.WithDetail(fmt.Sprintf("dimension must be a positive multiple of 8, got %d", cfg.Dim))
	}
	if cfg.NList == 0 {
		cfg.NList = defaultNList
	}
	if cfg.NProbe == 0 {
		cfg.NProbe = defaultNProbe
	}
	return &FingerprintStore{client: c, cfg: cfg, logger: logger.Named("milvus")}, nil
}

// Name implements pipeline.Sink.
func (s *FingerprintStore) Name() string { return "milvus" }

// WantsFingerprints implements pipeline.FingerprintConsumer.
func (s *FingerprintStore) WantsFingerprints() bool { return true }

// CollectionSchema returns the schema of the fingerprint collection.
func CollectionSchema(name string, dim int) *entity.Schema {
	varchar := func(field string, maxLen int64) *entity.Field {
		return entity.NewField().WithName(field).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxLen)
	}
	return entity.NewSchema().
		WithName(name).
		WithDescription("environment fingerprints of changing fragments").
		WithField(varchar(fieldID, 64).WithIsPrimaryKey(true)).
		WithField(varchar(fieldRunID, 64)).
		WithField(varchar(fieldStructureID, 256)).
		WithField(varchar(fieldKey, maxTextLength)).
		WithField(varchar(fieldFragment, maxTextLength)).
		WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeBinaryVector).WithDim(int64(dim)))
}

// EnsureCollection creates, indexes and loads the collection.
func (s *FingerprintStore) EnsureCollection(ctx context.Context) error {
	api := s.client.API()
	has, err := api.HasCollection(ctx, s.cfg.Collection)
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "failed to check collection existence")
	}
	if !has {
		if err := api.CreateCollection(ctx, CollectionSchema(s.cfg.Collection, s.cfg.Dim), collShardsNum); err != nil {
			return errors.Wrap(err, errors.CodeSearchError, "failed to create collection")
		}
		idx, err := entity.NewIndexBinIvfFlat(entity.JACCARD, s.cfg.NList)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeValidation, "invalid index parameters")
		}
		if err := api.CreateIndex(ctx, s.cfg.Collection, fieldVector, idx, false); err != nil {
			return errors.Wrap(err, errors.CodeSearchError, "failed to create index")
		}
		s.logger.Info("collection created", logging.String("collection", s.cfg.Collection), logging.Int("dim", s.cfg.Dim))
	}
	if err := api.LoadCollection(ctx, s.cfg.Collection, false); err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "failed to load collection")
	}
	return nil
}

// RecordID is the primary key of one fingerprint row.  A fragment seen
// twice under the same key of the same run maps to one row.
func RecordID(runID, structureID, key, fragment string) string {
	d := xxhash.New()
	for _, part := range []string{runID, structureID, key, fragment} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// Publish implements pipeline.Sink.  Fingerprints whose length differs from
// the collection dimension are skipped.
func (s *FingerprintStore) Publish(ctx context.Context, report *pipeline.Report) error {
	if report == nil || report.Response == nil || len(report.Fingerprints) == 0 {
		return nil
	}
	runID := report.Response.RunID

	var ids, runs, structures, keys, fragments []string
	var vectors [][]byte
	seen := make(map[string]struct{}, len(report.Fingerprints))
	skipped := 0
	for _, fp := range report.Fingerprints {
		if fp.Bits != s.cfg.Dim || len(fp.Vector) != s.cfg.Dim/8 {
			skipped++
			continue
		}
		id := RecordID(runID, fp.ID, fp.Key, fp.Fragment)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		runs = append(runs, runID)
		structures = append(structures, fp.ID)
		keys = append(keys, fp.Key)
		fragments = append(fragments, fp.Fragment)
		vectors = append(vectors, fp.Vector)
	}
	if skipped > 0 {
		s.logger.Warn("fingerprints with mismatched dimension skipped",
			logging.RunID(runID), logging.Int("skipped", skipped), logging.Int("dim", s.cfg.Dim))
	}

	api := s.client.API()
	for start := 0; start < len(ids); start += upsertBatch {
		end := start + upsertBatch
		if end > len(ids) {
			end = len(ids)
		}
		_, err := api.Upsert(ctx, s.cfg.Collection, "",
			entity.NewColumnVarChar(fieldID, ids[start:end]),
			entity.NewColumnVarChar(fieldRunID, runs[start:end]),
			entity.NewColumnVarChar(fieldStructureID, structures[start:end]),
			entity.NewColumnVarChar(fieldKey, keys[start:end]),
			entity.NewColumnVarChar(fieldFragment, fragments[start:end]),
			entity.NewColumnBinaryVector(fieldVector, s.cfg.Dim, vectors[start:end]),
		)
		if err != nil {
			return errors.Wrap(err, errors.CodeSearchError, "fingerprint upsert failed").
				WithDetail(fmt.Sprintf("rows %d-%d of %d", start, end, len(ids)))
		}
	}

	s.logger.Debug("fingerprints stored", logging.RunID(runID), logging.Int("rows", len(ids)))
	return nil
}

// SearchSimilar returns the topK stored fragments closest to vector.  A
// non-empty excludeRunID drops rows of that run.
func (s *FingerprintStore) SearchSimilar(ctx context.Context, vector []byte, topK int, excludeRunID string) ([]FingerprintMatch, error) {
	if len(vector) != s.cfg.Dim/8 {
		return nil, errors.InvalidParam("fingerprint length does not match collection dimension").
			WithDetail(fmt.Sprintf("got %d bytes, want %d", len(vector), s.cfg.Dim/8))
	}
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 0 || topK > maxTopK {
		return nil, errors.InvalidParam("top_k out of range")
	}

	sp, err := entity.NewIndexBinIvfFlatSearchParam(s.cfg.NProbe)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid search parameters")
	}
	expr := ""
	if excludeRunID != "" {
		expr = fmt.Sprintf("%s != %q", fieldRunID, excludeRunID)
	}

	results, err := s.client.API().Search(ctx, s.cfg.Collection, nil, expr, outputFields,
		[]entity.Vector{entity.BinaryVector(vector)}, fieldVector, entity.JACCARD, topK, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClBounded))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSearchError, "fingerprint search failed")
	}
	if len(results) == 0 {
		return []FingerprintMatch{}, nil
	}
	return convertResult(results[0])
}

func convertResult(r client.SearchResult) ([]FingerprintMatch, error) {
	if r.Err != nil {
		return nil, errors.Wrap(r.Err, errors.CodeSearchError, "fingerprint search failed")
	}
	columns := map[string]entity.Column{}
	for _, name := range outputFields {
		col := r.Fields.GetColumn(name)
		if col == nil {
			return nil, errors.Newf(errors.CodeSearchError, "search result lacks field %s", name)
		}
		columns[name] = col
	}

	matches := make([]FingerprintMatch, 0, r.ResultCount)
	for i := 0; i < r.ResultCount; i++ {
		var m FingerprintMatch
		for name, dst := range map[string]*string{
			fieldRunID: &m.RunID, fieldStructureID: &m.StructureID, fieldKey: &m.Key, fieldFragment: &m.Fragment,
		} {
			v, err := columns[name].GetAsString(i)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeSearchError, "malformed search result")
			}
			*dst = v
		}
		if i < len(r.Scores) {
			m.Similarity = 1 - float64(r.Scores[i])
		}
		matches = append(matches, m)
	}
	return matches, nil
}
