package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	pkgerrors "github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

func pairReport(n int) *pipeline.Report {
	rows := make([]mmp.TransformRow, 0, n+1)
	for i := 0; i < n; i++ {
		rows = append(rows, mmp.TransformRow{Transform: "[*:1]C>>[*:1]CC", LeftID: "tol", RightID: "eth", LeftFragment: "[1*]C", RightFragment: "[1*]CC"})
	}
	rows = append(rows, mmp.TransformRow{Transform: "[*:1]C>>[*:1]Cl", LeftID: "", RightID: "x"})
	return &pipeline.Report{Response: &mmp.RunResponse{RunID: "run-3", Rows: rows}}
}

func TestPairGraphWriter_PublishBatches(t *testing.T) {
	d, _, session := newFakeDriver()
	w := NewPairGraphWriter(d, nopLogger())
	w.batchSize = 2

	require.NoError(t, w.Publish(context.Background(), pairReport(5)))

	queries := session.tx.queries
	require.Len(t, queries, 3)
	sizes := []int{}
	for _, q := range queries {
		assert.Equal(t, mergePairsCypher, q.cypher)
		sizes = append(sizes, len(q.params["rows"].([]map[string]any)))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)

	first := queries[0].params["rows"].([]map[string]any)[0]
	assert.Equal(t, "run-3", first["run_id"])
	assert.Equal(t, "tol", first["left_id"])
	assert.Equal(t, "", first["key"])
	assert.Equal(t, false, first["reverse"])
}

func TestPairGraphWriter_PublishSkipsAnonymousOnly(t *testing.T) {
	d, _, session := newFakeDriver()
	w := NewPairGraphWriter(d, nopLogger())

	require.NoError(t, w.Publish(context.Background(), pairReport(0)))
	assert.Empty(t, session.tx.queries)
}

func TestPairGraphWriter_PublishError(t *testing.T) {
	d, _, session := newFakeDriver()
	session.tx.runErr = errors.New("constraint violation")
	w := NewPairGraphWriter(d, nopLogger())

	err := w.Publish(context.Background(), pairReport(1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestPairGraphWriter_EnsureSchema(t *testing.T) {
	d, _, session := newFakeDriver()
	w := NewPairGraphWriter(d, nopLogger())

	require.NoError(t, w.EnsureSchema(context.Background()))
	require.Len(t, session.tx.queries, len(constraintStatements))
	assert.Contains(t, session.tx.queries[0].cypher, "REQUIRE s.id IS UNIQUE")
}

func TestPairGraphWriter_TopTransforms(t *testing.T) {
	d, _, session := newFakeDriver()
	session.tx.records = []*neo4j.Record{
		{Keys: []string{"transform", "pairs"}, Values: []any{"[*:1]C>>[*:1]CC", int64(12)}},
		{Keys: []string{"transform", "pairs"}, Values: []any{"[*:1]C>>[*:1]Cl", int64(4)}},
	}
	w := NewPairGraphWriter(d, nopLogger())

	counts, err := w.TopTransforms(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []TransformCount{
		{Transform: "[*:1]C>>[*:1]CC", Pairs: 12},
		{Transform: "[*:1]C>>[*:1]Cl", Pairs: 4},
	}, counts)
	assert.Equal(t, 10, session.tx.queries[0].params["limit"])

	_, err = w.TopTransforms(context.Background(), 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))
	assert.Equal(t, "neo4j", w.Name())
}
