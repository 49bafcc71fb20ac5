package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

const insertRunSQL = `INSERT INTO mmp_runs
	(run_id, status, started_at, duration_ms, structures, processed, unprocessed, keys, transforms, pair_failures)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (run_id) DO NOTHING`

var transformColumns = []string{
	"run_id", "ordinal", "transform", "left_id", "right_id", "left_fragment", "right_fragment",
	"fragment_key", "left_changing_heavy_atoms", "right_changing_heavy_atoms",
	"left_ratio", "right_ratio", "reaction_pattern", "reverse",
}

var unprocessedColumns = []string{"run_id", "ordinal", "id", "input", "reason"}

// txBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ResultRepository stores each run's summary, transform rows and unprocessed
// inputs in one transaction.  It is a pipeline.Sink.
type ResultRepository struct {
	db     txBeginner
	logger logging.Logger
}

// NewResultRepository wraps db, normally a *pgxpool.Pool.
func NewResultRepository(db txBeginner, log logging.Logger) *ResultRepository {
	return &ResultRepository{db: db, logger: log.Named("postgres")}
}

// Name implements pipeline.Sink.
func (r *ResultRepository) Name() string { return "postgres" }

// Publish implements pipeline.Sink.
func (r *ResultRepository) Publish(ctx context.Context, report *pipeline.Report) error {
	if report == nil || report.Response == nil {
		return nil
	}
	resp := report.Response

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s := resp.Summary
	if _, err := tx.Exec(ctx, insertRunSQL,
		resp.RunID, string(s.Status), s.StartedAt, s.Duration.Milliseconds(),
		s.Structures, s.Processed, s.Unprocessed, s.Keys, s.Transforms, s.PairFailures,
	); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run")
	}

	if len(resp.Rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"mmp_transform_rows"}, transformColumns,
			pgx.CopyFromRows(transformValues(resp.RunID, resp.Rows)))
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to copy transform rows")
		}
		r.logger.Debug("copied transform rows", logging.RunID(resp.RunID), logging.Int64("rows", n))
	}

	if len(resp.Unprocessed) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"mmp_unprocessed"}, unprocessedColumns,
			pgx.CopyFromRows(unprocessedValues(resp.RunID, resp.Unprocessed))); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to copy unprocessed rows")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

func transformValues(runID string, rows []mmp.TransformRow) [][]any {
	out := make([][]any, 0, len(rows))
	for i, row := range rows {
		out = append(out, []any{
			runID, i, row.Transform, row.LeftID, row.RightID, row.LeftFragment, row.RightFragment,
			row.Key, row.LeftChangingHeavyAtoms, row.RightChangingHeavyAtoms,
			row.LeftRatio, row.RightRatio, row.ReactionPattern, row.Reverse,
		})
	}
	return out
}

func unprocessedValues(runID string, rows []mmp.UnprocessedRow) [][]any {
	out := make([][]any, 0, len(rows))
	for i, row := range rows {
		out = append(out, []any{runID, i, row.ID, row.Input, row.Reason})
	}
	return out
}
