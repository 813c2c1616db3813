package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"btcarts/internal/model"
	"btcarts/internal/repository"
	"btcarts/internal/reviewtoken"
	"btcarts/internal/storage"
)

// DeliveryReason says why a file was not delivered. It is logged and counted,
// never sent to the client.
type DeliveryReason string

const (
	ReasonInvalidToken    DeliveryReason = "invalid_token"
	ReasonInvalidFileID   DeliveryReason = "invalid_file_id"
	ReasonNoMatchingShare DeliveryReason = "no_matching_share"
	ReasonBlobMissing     DeliveryReason = "blob_missing"
)

// DeliveryError is a refused delivery. Malformed input maps to 400; every
// other reason collapses to 404 so callers cannot tell them apart.
type DeliveryError struct {
	Reason DeliveryReason
}

func (e *DeliveryError) Error() string {
	return "file delivery refused: " + string(e.Reason)
}

// BadRequest reports whether the request itself was malformed.
func (e *DeliveryError) BadRequest() bool {
	return e.Reason == ReasonInvalidToken || e.Reason == ReasonInvalidFileID
}

func refuse(r DeliveryReason) error {
	return &DeliveryError{Reason: r}
}

// Delivery is a located blob ready to stream. Body must be closed by the caller.
type Delivery struct {
	Info model.BlobInfo
	Body io.ReadCloser
}

// TokenHasher derives the stored lookup key from a presented review token.
type TokenHasher interface {
	Hash(token string) string
}

// FileDeliveryService resolves file requests to blob streams.
type FileDeliveryService interface {
	// AdminFile serves any stored upload. Authorization happens at the edge.
	AdminFile(ctx context.Context, fileID string) (*Delivery, error)

	// ReviewFile serves fileID only if token belongs to an unexpired share on
	// the application that owns fileID.
	ReviewFile(ctx context.Context, token, fileID string) (*Delivery, error)
}

type fileDeliveryService struct {
	repo   repository.ApplicationRepository
	store  storage.BlobStore
	hasher TokenHasher
	now    func() time.Time
	tracer trace.Tracer
}

// NewFileDeliveryService constructs a FileDeliveryService.
func NewFileDeliveryService(repo repository.ApplicationRepository, store storage.BlobStore, hasher TokenHasher) FileDeliveryService {
	return &fileDeliveryService{
		repo:   repo,
		store:  store,
		hasher: hasher,
		now:    time.Now,
		tracer: otel.Tracer("btcarts/service"),
	}
}

// ValidID reports whether id has the 24-hex object id form shared by
// applications and blobs.
func ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// CanonicalID returns the lower-case form every backend stores ids in.
func CanonicalID(id string) string {
	return strings.ToLower(id)
}

func (s *fileDeliveryService) AdminFile(ctx context.Context, fileID string) (*Delivery, error) {
	ctx, span := s.tracer.Start(ctx, "FileDelivery.AdminFile",
		trace.WithAttributes(attribute.String("file.id", fileID)))
	defer span.End()

	if !ValidID(fileID) {
		return nil, s.fail(span, refuse(ReasonInvalidFileID))
	}
	d, err := s.open(ctx, CanonicalID(fileID))
	if err != nil {
		return nil, s.fail(span, err)
	}
	return d, nil
}

func (s *fileDeliveryService) ReviewFile(ctx context.Context, token, fileID string) (*Delivery, error) {
	ctx, span := s.tracer.Start(ctx, "FileDelivery.ReviewFile",
		trace.WithAttributes(attribute.String("file.id", fileID)))
	defer span.End()

	if !reviewtoken.ValidSyntax(token) {
		return nil, s.fail(span, refuse(ReasonInvalidToken))
	}
	if !ValidID(fileID) {
		return nil, s.fail(span, refuse(ReasonInvalidFileID))
	}
	fileID = CanonicalID(fileID)

	hash := s.hasher.Hash(token)
	if _, err := s.repo.FindByReviewShare(ctx, hash, fileID, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.fail(span, refuse(ReasonNoMatchingShare))
		}
		return nil, s.fail(span, fmt.Errorf("lookup review share: %w", err))
	}

	d, err := s.open(ctx, fileID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return d, nil
}

// open locates the blob before opening its stream so that a missing blob is
// reported before any response header is written.
func (s *fileDeliveryService) open(ctx context.Context, fileID string) (*Delivery, error) {
	info, err := s.store.Locate(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, refuse(ReasonBlobMissing)
		}
		return nil, fmt.Errorf("locate blob: %w", err)
	}
	body, err := s.store.OpenReadStream(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, refuse(ReasonBlobMissing)
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return &Delivery{Info: info, Body: body}, nil
}

func (s *fileDeliveryService) fail(span trace.Span, err error) error {
	var de *DeliveryError
	if errors.As(err, &de) {
		span.SetAttributes(attribute.String("delivery.reason", string(de.Reason)))
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
