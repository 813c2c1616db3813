package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"btcarts/internal/config"
)

var (
	mongoConnect = mongo.Connect
	mongoPing    = func(ctx context.Context, c *mongo.Client) error {
		return c.Ping(ctx, readpref.Primary())
	}
)

// MongoHandle is the process-wide MongoDB connection. The client is created
// on first use and reused afterwards; a failed attempt is not cached, so the
// next caller retries.
type MongoHandle struct {
	cfg config.MongoConfig

	mu     sync.Mutex
	client *mongo.Client
}

// NewMongoHandle returns a handle that has not connected yet.
func NewMongoHandle(cfg config.MongoConfig) *MongoHandle {
	return &MongoHandle{cfg: cfg}
}

// Client returns the connected client, dialing on the first call.
func (h *MongoHandle) Client(ctx context.Context) (*mongo.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}
	if h.cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}

	if h.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.ConnectTimeout)
		defer cancel()
	}

	opts := options.Client().ApplyURI(h.cfg.URI)
	if h.cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(h.cfg.ConnectTimeout).SetServerSelectionTimeout(h.cfg.ConnectTimeout)
	}
	cli, err := mongoConnect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := mongoPing(ctx, cli); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	h.client = cli
	return cli, nil
}

// Database returns the configured database on the shared client.
func (h *MongoHandle) Database(ctx context.Context) (*mongo.Database, error) {
	cli, err := h.Client(ctx)
	if err != nil {
		return nil, err
	}
	if h.cfg.Database == "" {
		return nil, errors.New("mongo database name is required")
	}
	return cli.Database(h.cfg.Database), nil
}

// PingContext reports whether the primary is reachable.
func (h *MongoHandle) PingContext(ctx context.Context) error {
	cli, err := h.Client(ctx)
	if err != nil {
		return err
	}
	return mongoPing(ctx, cli)
}

// Disconnect closes the client if one was opened.
func (h *MongoHandle) Disconnect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client == nil {
		return nil
	}
	err := h.client.Disconnect(ctx)
	h.client = nil
	return err
}
