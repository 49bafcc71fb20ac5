package neo4j

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/mock"
)

type mockDriver struct {
	mock.Mock
	session *fakeSession
}

func (m *mockDriver) VerifyConnectivity(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDriver) NewSession(_ context.Context, cfg neo4j.SessionConfig) internalSession {
	m.session.configs = append(m.session.configs, cfg)
	return m.session
}

func (m *mockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// fakeSession runs work against a recording transaction.
type fakeSession struct {
	tx      *recordingTx
	configs []neo4j.SessionConfig
	closed  int
}

func (s *fakeSession) ExecuteRead(_ context.Context, work TransactionWork) (any, error) {
	return work(s.tx)
}

func (s *fakeSession) ExecuteWrite(_ context.Context, work TransactionWork) (any, error) {
	return work(s.tx)
}

func (s *fakeSession) Close(context.Context) error {
	s.closed++
	return nil
}

type recordedQuery struct {
	cypher string
	params map[string]any
}

type recordingTx struct {
	queries []recordedQuery
	records []*neo4j.Record
	runErr  error
}

func (t *recordingTx) Run(_ context.Context, cypher string, params map[string]any) (Result, error) {
	if t.runErr != nil {
		return nil, t.runErr
	}
	t.queries = append(t.queries, recordedQuery{cypher: cypher, params: params})
	return &sliceResult{records: t.records}, nil
}

type sliceResult struct {
	records []*neo4j.Record
	pos     int
	current *neo4j.Record
}

func (r *sliceResult) Next(context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.current = r.records[r.pos]
	r.pos++
	return true
}

func (r *sliceResult) Record() *neo4j.Record { return r.current }
func (r *sliceResult) Err() error            { return nil }
func (r *sliceResult) Consume(context.Context) (neo4j.ResultSummary, error) {
	return nil, nil
}

func newFakeDriver() (*Driver, *mockDriver, *fakeSession) {
	session := &fakeSession{tx: &recordingTx{}}
	md := &mockDriver{session: session}
	return newDriver(md, "", nopLogger()), md, session
}
