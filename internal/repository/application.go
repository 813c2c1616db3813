package repository

import (
	"context"
	"errors"
	"time"

	"btcarts/internal/model"
)

// ErrNotFound is returned when no record matches. Implementations translate
// their driver-specific "no rows" errors into it.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when the record exists but a precondition attached
// to the write does not hold.
var ErrConflict = errors.New("write precondition failed")

// ApplicationRepository defines data access for grant applications.
// No business logic here; strictly persistence operations.
type ApplicationRepository interface {
	// FindByID returns an application by its ID.
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// List returns a paginated list of applications, newest first, and the total count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Application], error)

	// Update applies upd as a single atomic write and returns the stored record.
	// With upd.RequireAwarded set, a stored status other than awarded yields ErrConflict.
	Update(ctx context.Context, id string, upd model.ApplicationUpdate) (*model.Application, error)

	// AddReviewShare appends a share to the application's share list unless
	// maxActive shares are already unexpired at share.CreatedAt, in which case
	// it returns ErrConflict. The check and the append are one atomic step.
	// maxActive <= 0 disables the cap.
	AddReviewShare(ctx context.Context, id string, share model.ReviewShare, updatedAt time.Time, maxActive int) error

	// FindByReviewShare returns the application holding a share with tokenHash
	// that expires strictly after now and whose uploads contain fileID.
	// Unknown token, expired share and foreign file all yield ErrNotFound.
	FindByReviewShare(ctx context.Context, tokenHash, fileID string, now time.Time) (*model.Application, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
