// Package store is the MongoDB-backed record store for weather readings.
//
// Every round-trip runs under a per-call timeout layered on the caller's
// context and through a circuit breaker, so a database outage fails requests
// quickly instead of piling them up. All failures surface as
// upstream_store_unavailable with the driver error wrapped.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"weatherapi/internal/config"
	"weatherapi/internal/types"
)

const probeName = "mongo"

// collection is the subset of *mongo.Collection the store uses.
type collection interface {
	Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error)
}

// client is the subset of *mongo.Client the store uses.
type client interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
}

// mongoCollection adapts *mongo.Collection to collection.
type mongoCollection struct {
	*mongo.Collection
}

func (c mongoCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
	return c.Indexes().CreateMany(ctx, models)
}

// Store reads and writes readings in one MongoDB database.
type Store struct {
	client       client
	open         func(name string) collection
	readings     string
	queryTimeout time.Duration
	breaker      *gobreaker.CircuitBreaker[any]
	logger       *slog.Logger
}

// Connect dials MongoDB, verifies the primary is reachable and returns a Store
// bound to cfg.Database. The readings collection is cfg.Collection.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.URI.Unmask()).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStoreUnavailable, "failed to connect to mongo", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := mc.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, types.NewAppError(types.ErrCodeUpstreamStoreUnavailable, "mongo primary unreachable", err)
	}

	db := mc.Database(cfg.Database)
	open := func(name string) collection {
		return mongoCollection{db.Collection(name)}
	}

	logger.Info("connected to mongo", "database", cfg.Database, "collection", cfg.Collection)
	return newStore(mc, open, cfg, logger), nil
}

func newStore(c client, open func(string) collection, cfg config.MongoConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		client:       c,
		open:         open,
		readings:     cfg.Collection,
		queryTimeout: cfg.QueryTimeout,
		logger:       logger,
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        probeName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: breakerHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("store circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// breakerHealthy reports whether err leaves the database's health unknown or
// good. A caller giving up, or the server rejecting a command it received,
// does not count against the breaker; network failures and timeouts do.
func breakerHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return false
	}
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr)
}

// guarded runs fn inside the breaker with the per-call timeout applied.
func guarded[T any](ctx context.Context, s *Store, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	out, err := s.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, types.NewAppError(types.ErrCodeUpstreamStoreUnavailable, "record store circuit open", err)
		}
		return zero, types.NewAppError(types.ErrCodeUpstreamStoreUnavailable, fmt.Sprintf("failed to %s", op), err)
	}
	v, _ := out.(T)
	return v, nil
}

// RunAggregation executes stages against collection and returns every
// resulting document in cursor order.
func (s *Store) RunAggregation(ctx context.Context, stages mongo.Pipeline, collection string) ([]bson.M, error) {
	return guarded(ctx, s, "run aggregation", func(ctx context.Context) ([]bson.M, error) {
		cur, err := s.open(collection).Aggregate(ctx, stages)
		if err != nil {
			return nil, err
		}
		docs := make([]bson.M, 0)
		if err := cur.All(ctx, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	})
}

// Save inserts r and returns the stored reading with its generated ID.
func (s *Store) Save(ctx context.Context, r *types.Reading) (*types.Reading, error) {
	doc := toDocument(r)
	return guarded(ctx, s, "save reading", func(ctx context.Context) (*types.Reading, error) {
		res, err := s.open(s.readings).InsertOne(ctx, doc)
		if err != nil {
			return nil, err
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			doc.ID = id
		}
		saved := doc.toReading()
		return &saved, nil
	})
}

// FindAll returns every reading ordered by timestamp ascending.
func (s *Store) FindAll(ctx context.Context) ([]types.Reading, error) {
	return s.find(ctx, bson.D{})
}

// FindByLocation returns the readings recorded at location, oldest first.
func (s *Store) FindByLocation(ctx context.Context, location string) ([]types.Reading, error) {
	return s.find(ctx, bson.D{{Key: types.FieldLocation, Value: location}})
}

func (s *Store) find(ctx context.Context, filter bson.D) ([]types.Reading, error) {
	opts := options.Find().SetSort(bson.D{{Key: types.FieldTimestamp, Value: 1}})
	return guarded(ctx, s, "find readings", func(ctx context.Context) ([]types.Reading, error) {
		cur, err := s.open(s.readings).Find(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		var docs []readingDocument
		if err := cur.All(ctx, &docs); err != nil {
			return nil, err
		}
		readings := make([]types.Reading, 0, len(docs))
		for _, d := range docs {
			readings = append(readings, d.toReading())
		}
		return readings, nil
	})
}

// EnsureIndexes creates the indexes the query paths rely on. Creating an
// index that already exists is a no-op on the server.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: types.FieldSensorID, Value: 1}, {Key: types.FieldTimestamp, Value: -1}},
			Options: options.Index().SetName("sensor_latest"),
		},
		{
			Keys:    bson.D{{Key: types.FieldLocation, Value: 1}},
			Options: options.Index().SetName("location"),
		},
	}
	names, err := guarded(ctx, s, "create indexes", func(ctx context.Context) ([]string, error) {
		return s.open(s.readings).CreateIndexes(ctx, models)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("indexes ensured", "collection", s.readings, "indexes", names)
	return nil
}

// Name implements the health probe contract.
func (s *Store) Name() string { return probeName }

// Check pings the primary. It bypasses the breaker so the health endpoint
// reports the database itself rather than the breaker state.
func (s *Store) Check(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client, waiting for in-flight operations until ctx
// expires.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
