package mocks

import (
	"context"

	"btcarts/internal/model"
	"btcarts/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockFileDeliveryService struct {
	mock.Mock
}

func (m *MockFileDeliveryService) AdminFile(ctx context.Context, fileID string) (*service.Delivery, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Delivery), args.Error(1)
}

func (m *MockFileDeliveryService) ReviewFile(ctx context.Context, token, fileID string) (*service.Delivery, error) {
	args := m.Called(ctx, token, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Delivery), args.Error(1)
}

type MockApplicationService struct {
	mock.Mock
}

func (m *MockApplicationService) List(ctx context.Context, limit, offset int) (*service.ApplicationListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ApplicationListResult), args.Error(1)
}

func (m *MockApplicationService) Get(ctx context.Context, id string) (*model.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Application), args.Error(1)
}

func (m *MockApplicationService) Update(ctx context.Context, id string, patch service.ApplicationPatch) (*model.Application, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Application), args.Error(1)
}

func (m *MockApplicationService) IssueReviewShare(ctx context.Context, id string, ttlHours *int) (*service.IssuedShare, error) {
	args := m.Called(ctx, id, ttlHours)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IssuedShare), args.Error(1)
}
