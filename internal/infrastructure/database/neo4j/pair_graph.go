package neo4j

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const defaultBatchSize = 1000

var constraintStatements = []string{
	"CREATE CONSTRAINT mmp_structure_id IF NOT EXISTS FOR (s:Structure) REQUIRE s.id IS UNIQUE",
	"CREATE INDEX mmp_pair_transform IF NOT EXISTS FOR ()-[p:MATCHED_PAIR]-() ON (p.transform)",
}

// Structures are keyed by ID.  Rows between anonymous structures carry no
// usable identity and are skipped by the writer.
const mergePairsCypher = `
UNWIND $rows AS row
MERGE (l:Structure {id: row.left_id})
MERGE (r:Structure {id: row.right_id})
MERGE (l)-[p:MATCHED_PAIR {run_id: row.run_id, transform: row.transform, left_fragment: row.left_fragment}]->(r)
SET p.right_fragment = row.right_fragment, p.key = row.key, p.reverse = row.reverse
`

const topTransformsCypher = `
MATCH ()-[p:MATCHED_PAIR]->()
WHERE p.reverse = false
RETURN p.transform AS transform, count(*) AS pairs
ORDER BY pairs DESC, transform ASC
LIMIT $limit
`

// TransformCount is one entry of TopTransforms.
type TransformCount struct {
	Transform string `json:"transform"`
	Pairs     int64  `json:"pairs"`
}

// PairGraphWriter merges transform rows into the graph in batches.  It is a
// pipeline.Sink.
type PairGraphWriter struct {
	driver    *Driver
	batchSize int
	logger    logging.Logger
}

// NewPairGraphWriter writes through d.
func NewPairGraphWriter(d *Driver, log logging.Logger) *PairGraphWriter {
	return &PairGraphWriter{driver: d, batchSize: defaultBatchSize, logger: log.Named("neo4j")}
}

// Name implements pipeline.Sink.
func (w *PairGraphWriter) Name() string { return "neo4j" }

// EnsureSchema creates the structure constraint and the transform index.
func (w *PairGraphWriter) EnsureSchema(ctx context.Context) error {
	_, err := w.driver.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		for _, stmt := range constraintStatements {
			if _, err := tx.Run(ctx, stmt, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Publish implements pipeline.Sink.
func (w *PairGraphWriter) Publish(ctx context.Context, report *pipeline.Report) error {
	if report == nil || report.Response == nil {
		return nil
	}
	resp := report.Response

	rows := make([]map[string]any, 0, len(resp.Rows))
	skipped := 0
	for _, r := range resp.Rows {
		if r.LeftID == "" || r.RightID == "" {
			skipped++
			continue
		}
		key := ""
		if r.Key != nil {
			key = *r.Key
		}
		rows = append(rows, map[string]any{
			"run_id":         resp.RunID,
			"transform":      r.Transform,
			"left_id":        r.LeftID,
			"right_id":       r.RightID,
			"left_fragment":  r.LeftFragment,
			"right_fragment": r.RightFragment,
			"key":            key,
			"reverse":        r.Reverse,
		})
	}

	for start := 0; start < len(rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if _, err := w.driver.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
			res, err := tx.Run(ctx, mergePairsCypher, map[string]any{"rows": batch})
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		}); err != nil {
			return err
		}
	}

	w.logger.Debug("pairs merged", logging.RunID(resp.RunID),
		logging.Int("pairs", len(rows)), logging.Int("skipped_anonymous", skipped))
	return nil
}

// TopTransforms returns the most frequent forward transforms across all
// stored runs.
func (w *PairGraphWriter) TopTransforms(ctx context.Context, limit int) ([]TransformCount, error) {
	if limit <= 0 {
		return nil, errors.InvalidParam("limit must be positive")
	}
	out, err := w.driver.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, topTransformsCypher, map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, res, func(rec *neo4j.Record) (TransformCount, error) {
			transform, _, err := neo4j.GetRecordValue[string](rec, "transform")
			if err != nil {
				return TransformCount{}, err
			}
			pairs, _, err := neo4j.GetRecordValue[int64](rec, "pairs")
			if err != nil {
				return TransformCount{}, err
			}
			return TransformCount{Transform: transform, Pairs: pairs}, nil
		})
	})
	if err != nil {
		return nil, err
	}
	counts, _ := out.([]TransformCount)
	return counts, nil
}
