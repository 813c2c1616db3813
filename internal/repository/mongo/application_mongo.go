package mongo

import (
	"context"
	"errors"
	"time"

	"btcarts/internal/model"
	"btcarts/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionApplications holds one document per grant application.
const CollectionApplications = "applications"

// ApplicationMongo is a MongoDB implementation of repository.ApplicationRepository.
// Uploads and review shares are embedded arrays on the application document.
type ApplicationMongo struct {
	coll *mongo.Collection
}

// NewApplicationMongo creates a new ApplicationMongo repository.
func NewApplicationMongo(db *mongo.Database) *ApplicationMongo {
	return &ApplicationMongo{coll: db.Collection(CollectionApplications)}
}

var _ repository.ApplicationRepository = (*ApplicationMongo)(nil)

type applicationDoc struct {
	ID            primitive.ObjectID `bson:"_id"`
	ApplicantName string             `bson:"applicantName,omitempty"`
	Email         string             `bson:"email,omitempty"`
	ProjectTitle  string             `bson:"projectTitle,omitempty"`
	Status        string             `bson:"status"`
	AdminNotes    string             `bson:"adminNotes,omitempty"`
	AwardedAt     *time.Time         `bson:"awardedAt,omitempty"`
	Oversight     oversightDoc       `bson:"oversight"`
	Uploads       []uploadDoc        `bson:"uploads,omitempty"`
	ReviewShares  []shareDoc         `bson:"reviewShares,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

type oversightDoc struct {
	ReportDueAt      *time.Time `bson:"reportDueAt"`
	ReportReceivedAt *time.Time `bson:"reportReceivedAt"`
}

type uploadDoc struct {
	FileID primitive.ObjectID `bson:"fileId"`
}

type shareDoc struct {
	TokenHash string    `bson:"tokenHash"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (d *applicationDoc) toModel() *model.Application {
	a := &model.Application{
		ID:            d.ID.Hex(),
		ApplicantName: d.ApplicantName,
		Email:         d.Email,
		ProjectTitle:  d.ProjectTitle,
		Status:        model.ApplicationStatus(d.Status),
		AdminNotes:    d.AdminNotes,
		AwardedAt:     d.AwardedAt,
		Oversight: model.Oversight{
			ReportDueAt:      d.Oversight.ReportDueAt,
			ReportReceivedAt: d.Oversight.ReportReceivedAt,
		},
		Uploads:      make([]model.Upload, 0, len(d.Uploads)),
		ReviewShares: make([]model.ReviewShare, 0, len(d.ReviewShares)),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, u := range d.Uploads {
		a.Uploads = append(a.Uploads, model.Upload{FileID: u.FileID.Hex()})
	}
	for _, s := range d.ReviewShares {
		a.ReviewShares = append(a.ReviewShares, model.ReviewShare(s))
	}
	return a
}

// FindByID fetches an application by its hex ObjectID.
func (r *ApplicationMongo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *ApplicationMongo) findOne(ctx context.Context, filter bson.D) (*model.Application, error) {
	var doc applicationDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}

// List returns applications newest first with the total document count.
func (r *ApplicationMongo) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Application], error) {
	total, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(pq.Offset)).
		SetLimit(int64(pq.Limit))
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := make([]model.Application, 0)
	for cur.Next(ctx) {
		var doc applicationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		items = append(items, *doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Application]{
		Items: items,
		Total: int(total),
	}, nil
}

// Update applies upd with a single findAndModify and returns the post-image.
// A RequireAwarded update carries the status condition in its filter.
func (r *ApplicationMongo) Update(ctx context.Context, id string, upd model.ApplicationUpdate) (*model.Application, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}

	set := bson.D{{Key: "updatedAt", Value: upd.UpdatedAt}}
	if upd.Status != nil {
		set = append(set, bson.E{Key: "status", Value: string(*upd.Status)})
	}
	if upd.AdminNotes != nil {
		set = append(set, bson.E{Key: "adminNotes", Value: *upd.AdminNotes})
	}
	if upd.AwardedAt != nil {
		set = append(set, bson.E{Key: "awardedAt", Value: *upd.AwardedAt})
	}
	if upd.ReportDueAt != nil {
		set = append(set, bson.E{Key: "oversight.reportDueAt", Value: *upd.ReportDueAt})
	}
	if upd.SetReportReceived {
		set = append(set, bson.E{Key: "oversight.reportReceivedAt", Value: upd.ReportReceivedAt})
	}

	filter := bson.D{{Key: "_id", Value: oid}}
	if upd.RequireAwarded {
		filter = append(filter, bson.E{Key: "status", Value: string(model.StatusAwarded)})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc applicationDoc
	err = r.coll.FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, r.missOrConflict(ctx, oid, upd.RequireAwarded)
		}
		return nil, err
	}
	return doc.toModel(), nil
}

// missOrConflict classifies a conditional write that matched nothing.
func (r *ApplicationMongo) missOrConflict(ctx context.Context, oid primitive.ObjectID, conditional bool) error {
	if !conditional {
		return repository.ErrNotFound
	}
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: oid}}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// AddReviewShare pushes share onto reviewShares and bumps updatedAt. The
// active share cap is part of the update filter, so the single-document
// update checks and appends atomically.
func (r *ApplicationMongo) AddReviewShare(ctx context.Context, id string, share model.ReviewShare, updatedAt time.Time, maxActive int) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	filter := bson.D{{Key: "_id", Value: oid}}
	if maxActive > 0 {
		filter = append(filter, bson.E{Key: "$expr", Value: activeSharesBelow(maxActive, share.CreatedAt)})
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.D{
		{Key: "$push", Value: bson.D{{Key: "reviewShares", Value: shareDoc(share)}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: updatedAt}}},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, oid, maxActive > 0)
	}
	return nil
}

// activeSharesBelow is an aggregation expression true while fewer than limit
// shares expire strictly after now.
func activeSharesBelow(limit int, now time.Time) bson.D {
	active := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$reviewShares", bson.A{}}}}},
		{Key: "cond", Value: bson.D{{Key: "$gt", Value: bson.A{"$$this.expiresAt", now}}}},
	}}}
	return bson.D{{Key: "$lt", Value: bson.A{bson.D{{Key: "$size", Value: active}}, limit}}}
}

// FindByReviewShare matches a single share element on both hash and expiry,
// so an expired share never pairs with a live one on the same document.
func (r *ApplicationMongo) FindByReviewShare(ctx context.Context, tokenHash, fileID string, now time.Time) (*model.Application, error) {
	oid, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, reviewShareFilter(tokenHash, oid, now))
}

func reviewShareFilter(tokenHash string, fileID primitive.ObjectID, now time.Time) bson.D {
	return bson.D{
		{Key: "reviewShares", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "tokenHash", Value: tokenHash},
			{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: now}}},
		}}}},
		{Key: "uploads.fileId", Value: fileID},
	}
}
