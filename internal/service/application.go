package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btcarts/internal/model"
	"btcarts/internal/repository"
	"btcarts/internal/reviewtoken"
)

var (
	ErrInvalidID           = errors.New("invalid application id")
	ErrApplicationNotFound = errors.New("application not found")
	ErrInvalidStatus       = errors.New("unknown status")
	ErrNotesTooLong        = fmt.Errorf("adminNotes exceeds %d characters", model.MaxAdminNotesLength)
	ErrAwardedAtNoAward    = errors.New("awardedAt requires status awarded")
	ErrReportNotAwarded    = errors.New("reportReceived requires an awarded application")
	ErrReportWithAward     = errors.New("reportReceived cannot be set together with an award")
	ErrShareLimitReached   = errors.New("active review share limit reached")
)

// Share lifetime bounds.
const (
	MinShareTTL     = time.Hour
	MaxShareTTL     = 90 * 24 * time.Hour
	DefaultShareTTL = 14 * 24 * time.Hour

	DefaultMaxActiveShares = 25

	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ReviewLinkPrefix is the public path reviewers follow; token and file id are appended.
const ReviewLinkPrefix = "/api/review/files/"

// ApplicationListResult is the service-level DTO for paginated applications.
type ApplicationListResult struct {
	Items  []model.Application `json:"data"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// ApplicationPatch is an admin edit. Absent fields are left untouched.
// ReportReceived true stamps the report as received now; false clears it.
type ApplicationPatch struct {
	Status         *string    `json:"status,omitempty"`
	AdminNotes     *string    `json:"adminNotes,omitempty"`
	AwardedAt      *time.Time `json:"awardedAt,omitempty"`
	ReportReceived *bool      `json:"reportReceived,omitempty"`
}

// IssuedShare is returned once; the raw token is not recoverable afterwards.
type IssuedShare struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Links     []string  `json:"links"`
}

// ShareSettings bounds review share issuance.
type ShareSettings struct {
	DefaultTTL      time.Duration
	MaxActiveShares int
}

// ApplicationService defines the admin use cases on grant applications.
type ApplicationService interface {
	List(ctx context.Context, limit, offset int) (*ApplicationListResult, error)
	Get(ctx context.Context, id string) (*model.Application, error)
	Update(ctx context.Context, id string, patch ApplicationPatch) (*model.Application, error)

	// IssueReviewShare creates a share covering every upload of the application.
	// A nil ttlHours uses the configured default.
	IssueReviewShare(ctx context.Context, id string, ttlHours *int) (*IssuedShare, error)
}

type applicationService struct {
	repo     repository.ApplicationRepository
	hasher   TokenHasher
	settings ShareSettings
	now      func() time.Time
	generate func() (string, error)
}

// NewApplicationService constructs a new ApplicationService.
func NewApplicationService(repo repository.ApplicationRepository, hasher TokenHasher, settings ShareSettings) ApplicationService {
	if settings.DefaultTTL <= 0 {
		settings.DefaultTTL = DefaultShareTTL
	}
	if settings.MaxActiveShares <= 0 {
		settings.MaxActiveShares = DefaultMaxActiveShares
	}
	return &applicationService{
		repo:     repo,
		hasher:   hasher,
		settings: settings,
		now:      time.Now,
		generate: reviewtoken.Generate,
	}
}

func (s *applicationService) List(ctx context.Context, limit, offset int) (*ApplicationListResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &ApplicationListResult{Items: res.Items, Total: res.Total, Limit: limit, Offset: offset}, nil
}

func (s *applicationService) Get(ctx context.Context, id string) (*model.Application, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	id = CanonicalID(id)
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return app, nil
}

func (s *applicationService) Update(ctx context.Context, id string, patch ApplicationPatch) (*model.Application, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	id = CanonicalID(id)
	if patch.AdminNotes != nil && !model.ValidAdminNotes(*patch.AdminNotes) {
		return nil, ErrNotesTooLong
	}

	var status *model.ApplicationStatus
	if patch.Status != nil {
		st := model.ApplicationStatus(*patch.Status)
		if !st.Valid() {
			return nil, ErrInvalidStatus
		}
		status = &st
	}
	awarding := status != nil && *status == model.StatusAwarded
	if patch.AwardedAt != nil && !awarding {
		return nil, ErrAwardedAtNoAward
	}

	now := s.now().UTC()
	upd := model.ApplicationUpdate{Status: status}
	if awarding {
		at := now
		if patch.AwardedAt != nil {
			at = patch.AwardedAt.UTC()
		}
		upd = model.AwardUpdate(at)
	}
	upd.AdminNotes = patch.AdminNotes
	upd.UpdatedAt = now

	if patch.ReportReceived != nil {
		if awarding {
			return nil, ErrReportWithAward
		}
		if status != nil {
			return nil, ErrReportNotAwarded
		}
		// The stored status is checked by the write itself.
		upd.RequireAwarded = true
		upd.SetReportReceived = true
		if *patch.ReportReceived {
			upd.ReportReceivedAt = &now
		}
	}

	app, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrApplicationNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrReportNotAwarded
		}
		return nil, err
	}
	return app, nil
}

// ClampShareTTL resolves a requested lifetime in hours to [MinShareTTL, MaxShareTTL].
func ClampShareTTL(ttlHours *int, def time.Duration) time.Duration {
	ttl := def
	if ttlHours != nil {
		ttl = time.Duration(*ttlHours) * time.Hour
	}
	if ttl < MinShareTTL {
		return MinShareTTL
	}
	if ttl > MaxShareTTL {
		return MaxShareTTL
	}
	return ttl
}

func (s *applicationService) IssueReviewShare(ctx context.Context, id string, ttlHours *int) (*IssuedShare, error) {
	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	id = CanonicalID(id)

	now := s.now().UTC()
	if app.ActiveShares(now) >= s.settings.MaxActiveShares {
		return nil, ErrShareLimitReached
	}

	token, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate review token: %w", err)
	}
	share := model.ReviewShare{
		TokenHash: s.hasher.Hash(token),
		ExpiresAt: now.Add(ClampShareTTL(ttlHours, s.settings.DefaultTTL)),
		CreatedAt: now,
	}
	if err := s.repo.AddReviewShare(ctx, id, share, now, s.settings.MaxActiveShares); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrApplicationNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrShareLimitReached
		}
		return nil, fmt.Errorf("store review share: %w", err)
	}

	links := make([]string, 0, len(app.Uploads))
	for _, u := range app.Uploads {
		links = append(links, ReviewLinkPrefix+token+"/"+u.FileID)
	}
	return &IssuedShare{Token: token, ExpiresAt: share.ExpiresAt, Links: links}, nil
}
