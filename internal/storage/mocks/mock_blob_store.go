package mocks

import (
	"context"
	"io"

	"btcarts/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Locate(ctx context.Context, id string) (model.BlobInfo, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.BlobInfo), args.Error(1)
}

func (m *MockBlobStore) OpenReadStream(ctx context.Context, id string) (io.ReadCloser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}
