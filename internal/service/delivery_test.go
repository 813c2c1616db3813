package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"btcarts/internal/model"
	"btcarts/internal/repository"
	repoMocks "btcarts/internal/repository/mocks"
	"btcarts/internal/reviewtoken"
	"btcarts/internal/storage"
	storeMocks "btcarts/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testAppID  = "65a1f0c2e4b0a1b2c3d4e5f6"
	testFileID = "65a1f0c2e4b0a1b2c3d4e5f7"
)

type countingHasher struct {
	calls int
	inner *reviewtoken.Hasher
}

func (h *countingHasher) Hash(token string) string {
	h.calls++
	return h.inner.Hash(token)
}

func newCountingHasher(t *testing.T) *countingHasher {
	t.Helper()
	h, err := reviewtoken.NewHasher("test-secret")
	require.NoError(t, err)
	return &countingHasher{inner: h}
}

func reasonOf(t *testing.T, err error) DeliveryReason {
	t.Helper()
	var de *DeliveryError
	require.True(t, errors.As(err, &de), "expected DeliveryError, got %v", err)
	return de.Reason
}

func TestFileDeliveryService_AdminFile(t *testing.T) {
	ctx := context.Background()

	t.Run("streams located blob", func(t *testing.T) {
		mStore := new(storeMocks.MockBlobStore)
		info := model.BlobInfo{ID: testFileID, Filename: "a.pdf", Length: 3, MimeType: "application/pdf"}
		mStore.On("Locate", mock.Anything, testFileID).Return(info, nil)
		mStore.On("OpenReadStream", mock.Anything, testFileID).Return(io.NopCloser(strings.NewReader("pdf")), nil)

		svc := NewFileDeliveryService(new(repoMocks.MockApplicationRepository), mStore, newCountingHasher(t))
		d, err := svc.AdminFile(ctx, testFileID)

		require.NoError(t, err)
		assert.Equal(t, info, d.Info)
		b, _ := io.ReadAll(d.Body)
		assert.Equal(t, "pdf", string(b))
		mStore.AssertExpectations(t)
	})

	t.Run("upper-case id resolves to the canonical blob", func(t *testing.T) {
		mStore := new(storeMocks.MockBlobStore)
		mStore.On("Locate", mock.Anything, testFileID).Return(model.BlobInfo{ID: testFileID, Length: 1}, nil)
		mStore.On("OpenReadStream", mock.Anything, testFileID).Return(io.NopCloser(strings.NewReader("x")), nil)

		svc := NewFileDeliveryService(new(repoMocks.MockApplicationRepository), mStore, newCountingHasher(t))
		_, err := svc.AdminFile(ctx, strings.ToUpper(testFileID))

		require.NoError(t, err)
		mStore.AssertExpectations(t)
	})

	t.Run("malformed id", func(t *testing.T) {
		mStore := new(storeMocks.MockBlobStore)
		svc := NewFileDeliveryService(new(repoMocks.MockApplicationRepository), mStore, newCountingHasher(t))

		_, err := svc.AdminFile(ctx, "../../etc")

		assert.Equal(t, ReasonInvalidFileID, reasonOf(t, err))
		mStore.AssertNotCalled(t, "Locate", mock.Anything, mock.Anything)
	})

	t.Run("missing blob", func(t *testing.T) {
		mStore := new(storeMocks.MockBlobStore)
		mStore.On("Locate", mock.Anything, testFileID).Return(model.BlobInfo{}, storage.ErrBlobNotFound)
		svc := NewFileDeliveryService(new(repoMocks.MockApplicationRepository), mStore, newCountingHasher(t))

		_, err := svc.AdminFile(ctx, testFileID)

		assert.Equal(t, ReasonBlobMissing, reasonOf(t, err))
		mStore.AssertNotCalled(t, "OpenReadStream", mock.Anything, mock.Anything)
	})

	t.Run("store failure is not a refusal", func(t *testing.T) {
		mStore := new(storeMocks.MockBlobStore)
		mStore.On("Locate", mock.Anything, testFileID).Return(model.BlobInfo{}, errors.New("socket closed"))
		svc := NewFileDeliveryService(new(repoMocks.MockApplicationRepository), mStore, newCountingHasher(t))

		_, err := svc.AdminFile(ctx, testFileID)

		var de *DeliveryError
		assert.False(t, errors.As(err, &de))
		assert.ErrorContains(t, err, "locate blob")
	})
}

func TestFileDeliveryService_ReviewFile_RejectsShortTokenEarly(t *testing.T) {
	mRepo := new(repoMocks.MockApplicationRepository)
	mStore := new(storeMocks.MockBlobStore)
	hasher := newCountingHasher(t)
	svc := NewFileDeliveryService(mRepo, mStore, hasher)

	_, err := svc.ReviewFile(context.Background(), "123456789", testFileID)

	assert.Equal(t, ReasonInvalidToken, reasonOf(t, err))
	assert.True(t, err.(*DeliveryError).BadRequest())
	assert.Zero(t, hasher.calls)
	mRepo.AssertNotCalled(t, "FindByReviewShare", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mStore.AssertNotCalled(t, "Locate", mock.Anything, mock.Anything)
}

func TestFileDeliveryService_ReviewFile(t *testing.T) {
	ctx := context.Background()
	token := "tok_abcdefghijklmnopqrstuvwxyz012"
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("malformed file id skips hashing", func(t *testing.T) {
		hasher := newCountingHasher(t)
		svc := NewFileDeliveryService(new(repoMocks.MockApplicationRepository), new(storeMocks.MockBlobStore), hasher)

		_, err := svc.ReviewFile(ctx, token, "nothex")

		assert.Equal(t, ReasonInvalidFileID, reasonOf(t, err))
		assert.Zero(t, hasher.calls)
	})

	t.Run("no matching share", func(t *testing.T) {
		hasher := newCountingHasher(t)
		mRepo := new(repoMocks.MockApplicationRepository)
		mRepo.On("FindByReviewShare", mock.Anything, hasher.inner.Hash(token), testFileID, now).
			Return(nil, repository.ErrNotFound)
		mStore := new(storeMocks.MockBlobStore)

		svc := NewFileDeliveryService(mRepo, mStore, hasher).(*fileDeliveryService)
		svc.now = func() time.Time { return now }

		_, err := svc.ReviewFile(ctx, token, testFileID)

		assert.Equal(t, ReasonNoMatchingShare, reasonOf(t, err))
		assert.False(t, err.(*DeliveryError).BadRequest())
		mStore.AssertNotCalled(t, "Locate", mock.Anything, mock.Anything)
	})

	t.Run("registry failure", func(t *testing.T) {
		mRepo := new(repoMocks.MockApplicationRepository)
		mRepo.On("FindByReviewShare", mock.Anything, mock.Anything, testFileID, mock.Anything).
			Return(nil, errors.New("server selection timeout"))

		svc := NewFileDeliveryService(mRepo, new(storeMocks.MockBlobStore), newCountingHasher(t))
		_, err := svc.ReviewFile(ctx, token, testFileID)

		assert.ErrorContains(t, err, "lookup review share")
	})

	t.Run("upper-case file id is matched in canonical form", func(t *testing.T) {
		mRepo := new(repoMocks.MockApplicationRepository)
		mRepo.On("FindByReviewShare", mock.Anything, mock.Anything, testFileID, mock.Anything).
			Return(&model.Application{ID: testAppID}, nil)
		mStore := new(storeMocks.MockBlobStore)
		mStore.On("Locate", mock.Anything, testFileID).Return(model.BlobInfo{}, storage.ErrBlobNotFound)

		svc := NewFileDeliveryService(mRepo, mStore, newCountingHasher(t))
		_, err := svc.ReviewFile(ctx, token, strings.ToUpper(testFileID))

		assert.Equal(t, ReasonBlobMissing, reasonOf(t, err))
		mRepo.AssertExpectations(t)
		mStore.AssertExpectations(t)
	})
}

// memRepo evaluates share lookups against an in-memory application.
type memRepo struct {
	app model.Application
}

func (r *memRepo) FindByID(_ context.Context, id string) (*model.Application, error) {
	if id != r.app.ID {
		return nil, repository.ErrNotFound
	}
	a := r.app
	return &a, nil
}

func (r *memRepo) List(context.Context, repository.PageQuery) (*repository.PageResult[model.Application], error) {
	return &repository.PageResult[model.Application]{Items: []model.Application{r.app}, Total: 1}, nil
}

func (r *memRepo) Update(ctx context.Context, id string, _ model.ApplicationUpdate) (*model.Application, error) {
	return r.FindByID(ctx, id)
}

func (r *memRepo) AddReviewShare(_ context.Context, id string, share model.ReviewShare, updatedAt time.Time, maxActive int) error {
	if id != r.app.ID {
		return repository.ErrNotFound
	}
	if maxActive > 0 && r.app.ActiveShares(share.CreatedAt) >= maxActive {
		return repository.ErrConflict
	}
	r.app.ReviewShares = append(r.app.ReviewShares, share)
	r.app.UpdatedAt = updatedAt
	return nil
}

func (r *memRepo) FindByReviewShare(_ context.Context, tokenHash, fileID string, now time.Time) (*model.Application, error) {
	if !r.app.HasUpload(fileID) {
		return nil, repository.ErrNotFound
	}
	for _, s := range r.app.ReviewShares {
		if s.TokenHash == tokenHash && s.Active(now) {
			a := r.app
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func TestReviewShare_EndToEnd(t *testing.T) {
	ctx := context.Background()
	hasher, err := reviewtoken.NewHasher("end-to-end-secret")
	require.NoError(t, err)

	otherFile := "65a1f0c2e4b0a1b2c3d4e5f8"
	repo := &memRepo{app: model.Application{
		ID:      testAppID,
		Status:  model.StatusUnderReview,
		Uploads: []model.Upload{{FileID: testFileID}},
	}}

	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	apps := NewApplicationService(repo, hasher, ShareSettings{}).(*applicationService)
	apps.now = now
	ttl := 1
	issued, err := apps.IssueReviewShare(ctx, testAppID, &ttl)
	require.NoError(t, err)
	require.Equal(t, []string{ReviewLinkPrefix + issued.Token + "/" + testFileID}, issued.Links)

	mStore := new(storeMocks.MockBlobStore)
	info := model.BlobInfo{ID: testFileID, Filename: "budget.xlsx", Length: 5}
	mStore.On("Locate", mock.Anything, testFileID).Return(info, nil)
	mStore.On("OpenReadStream", mock.Anything, testFileID).
		Return(io.NopCloser(strings.NewReader("bytes")), nil).Once()
	mStore.On("OpenReadStream", mock.Anything, testFileID).
		Return(io.NopCloser(strings.NewReader("bytes")), nil).Once()

	delivery := NewFileDeliveryService(repo, mStore, hasher).(*fileDeliveryService)
	delivery.now = now

	first, err := delivery.ReviewFile(ctx, issued.Token, testFileID)
	require.NoError(t, err)
	second, err := delivery.ReviewFile(ctx, issued.Token, testFileID)
	require.NoError(t, err)
	b1, _ := io.ReadAll(first.Body)
	b2, _ := io.ReadAll(second.Body)
	assert.Equal(t, b1, b2)
	assert.Equal(t, first.Info, second.Info)

	_, err = delivery.ReviewFile(ctx, issued.Token, otherFile)
	assert.Equal(t, ReasonNoMatchingShare, reasonOf(t, err))

	_, err = delivery.ReviewFile(ctx, "wrong-token-of-enough-length", testFileID)
	assert.Equal(t, ReasonNoMatchingShare, reasonOf(t, err))

	clock = clock.Add(time.Hour)
	_, err = delivery.ReviewFile(ctx, issued.Token, testFileID)
	assert.Equal(t, ReasonNoMatchingShare, reasonOf(t, err))
}
