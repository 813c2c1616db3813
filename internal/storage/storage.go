// Package storage locates and streams uploaded blobs. Implementations never
// touch local disk; content is handed to the caller as a streaming reader.
package storage

import (
	"context"
	"errors"
	"io"

	"btcarts/internal/model"
)

// ErrBlobNotFound is returned when no blob exists under the given id.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore resolves upload ids to metadata and content.
type BlobStore interface {
	// Locate returns metadata for the blob or ErrBlobNotFound.
	Locate(ctx context.Context, id string) (model.BlobInfo, error)
	// OpenReadStream opens the blob content. The caller must Close it.
	// Reads fail once ctx is done.
	OpenReadStream(ctx context.Context, id string) (io.ReadCloser, error)
}

// ctxReadCloser stops handing out bytes once ctx is done, so a caller's
// deadline or cancellation ends the stream at the next read. It does not
// notice client disconnects: the server's request context is not cancelled
// then. A dropped client is handled by the HTTP layer, which closes the body
// stream when a write fails.
type ctxReadCloser struct {
	ctx context.Context
	rc  io.ReadCloser
}

func newCtxReadCloser(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	return &ctxReadCloser{ctx: ctx, rc: rc}
}

func (r *ctxReadCloser) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.rc.Read(p)
}

func (r *ctxReadCloser) Close() error {
	return r.rc.Close()
}
