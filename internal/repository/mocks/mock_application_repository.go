package mocks

import (
	"context"
	"time"

	"btcarts/internal/model"
	"btcarts/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockApplicationRepository struct {
	mock.Mock
}

func (m *MockApplicationRepository) FindByID(ctx context.Context, id string) (*model.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Application), args.Error(1)
}

func (m *MockApplicationRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Application], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Application]), args.Error(1)
}

func (m *MockApplicationRepository) Update(ctx context.Context, id string, upd model.ApplicationUpdate) (*model.Application, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Application), args.Error(1)
}

func (m *MockApplicationRepository) AddReviewShare(ctx context.Context, id string, share model.ReviewShare, updatedAt time.Time, maxActive int) error {
	args := m.Called(ctx, id, share, updatedAt, maxActive)
	return args.Error(0)
}

func (m *MockApplicationRepository) FindByReviewShare(ctx context.Context, tokenHash, fileID string, now time.Time) (*model.Application, error) {
	args := m.Called(ctx, tokenHash, fileID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Application), args.Error(1)
}
