package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"btcarts/internal/model"
)

// DefaultBucket is the GridFS bucket holding application uploads.
const DefaultBucket = "grantUploads"

// GridFSStore reads uploads from a GridFS bucket.
// It is safe for concurrent use by multiple goroutines.
type GridFSStore struct {
	db     *mongo.Database
	bucket string
}

// NewGridFS returns a store over the named bucket of db.
func NewGridFS(db *mongo.Database, bucket string) *GridFSStore {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &GridFSStore{db: db, bucket: bucket}
}

var _ BlobStore = (*GridFSStore)(nil)

// Locate reads the bucket's files collection directly so that the length
// field can be decoded whatever numeric type the uploader wrote.
func (g *GridFSStore) Locate(ctx context.Context, id string) (model.BlobInfo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.BlobInfo{}, ErrBlobNotFound
	}

	files := g.db.Collection(g.bucket + ".files")
	raw, err := files.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.BlobInfo{}, ErrBlobNotFound
		}
		return model.BlobInfo{}, fmt.Errorf("gridfs locate: %w", err)
	}
	return blobInfoFromRaw(id, raw), nil
}

func blobInfoFromRaw(id string, raw bson.Raw) model.BlobInfo {
	info := model.BlobInfo{ID: id, Length: -1}
	if v, err := raw.LookupErr("filename"); err == nil {
		if s, ok := v.StringValueOK(); ok {
			info.Filename = s
		}
	}
	if v, err := raw.LookupErr("length"); err == nil {
		info.Length = rawLength(v)
	}
	if v, err := raw.LookupErr("metadata", "mimeType"); err == nil {
		if s, ok := v.StringValueOK(); ok {
			info.MimeType = s
		}
	}
	if info.MimeType == "" {
		if v, err := raw.LookupErr("contentType"); err == nil {
			if s, ok := v.StringValueOK(); ok {
				info.MimeType = s
			}
		}
	}
	return info
}

// rawLength accepts int32, int64 and integral finite doubles. Anything else,
// including negative values, is reported as unknown (-1).
func rawLength(v bson.RawValue) int64 {
	var n int64
	switch v.Type {
	case bsontype.Int32:
		n = int64(v.Int32())
	case bsontype.Int64:
		n = v.Int64()
	case bsontype.Double:
		f := v.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f >= math.MaxInt64 {
			return -1
		}
		n = int64(f)
	default:
		return -1
	}
	if n < 0 {
		return -1
	}
	return n
}

// OpenReadStream opens a GridFS download stream for the blob.
func (g *GridFSStore) OpenReadStream(ctx context.Context, id string) (io.ReadCloser, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrBlobNotFound
	}

	bucket, err := gridfs.NewBucket(g.db, options.GridFSBucket().SetName(g.bucket))
	if err != nil {
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}
	ds, err := bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("gridfs open: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = ds.SetReadDeadline(deadline)
	}
	return newCtxReadCloser(ctx, ds), nil
}
