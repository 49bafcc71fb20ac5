package milvus

import (
	"context"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/mock"
)

type mockVectorAPI struct {
	mock.Mock
}

func (m *mockVectorAPI) CheckHealth(ctx context.Context) (*entity.MilvusState, error) {
	args := m.Called(ctx)
	state, _ := args.Get(0).(*entity.MilvusState)
	return state, args.Error(1)
}

func (m *mockVectorAPI) HasCollection(ctx context.Context, collName string) (bool, error) {
	args := m.Called(ctx, collName)
	return args.Bool(0), args.Error(1)
}

func (m *mockVectorAPI) CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, _ ...client.CreateCollectionOption) error {
	return m.Called(ctx, schema, shardsNum).Error(0)
}

func (m *mockVectorAPI) CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, _ ...client.IndexOption) error {
	return m.Called(ctx, collName, fieldName, idx, async).Error(0)
}

func (m *mockVectorAPI) LoadCollection(ctx context.Context, collName string, async bool, _ ...client.LoadCollectionOption) error {
	return m.Called(ctx, collName, async).Error(0)
}

func (m *mockVectorAPI) Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error) {
	args := m.Called(ctx, collName, partitionName, columns)
	col, _ := args.Get(0).(entity.Column)
	return col, args.Error(1)
}

func (m *mockVectorAPI) Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
	vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
	sp entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	args := m.Called(ctx, collName, expr, vectors, vectorField, metricType, topK)
	results, _ := args.Get(0).([]client.SearchResult)
	return results, args.Error(1)
}

func (m *mockVectorAPI) Close() error {
	return m.Called().Error(0)
}

func healthyState() *entity.MilvusState {
	return &entity.MilvusState{IsHealthy: true}
}
