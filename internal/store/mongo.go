package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"resellboost/internal/model"
)

// maxBatchSize splits bulk writes into chunks.
const maxBatchSize = 100

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// userDoc is one document of the users collection.
type userDoc struct {
	ID               string `bson:"_id"`
	model.UserRecord `bson:",inline"`
}

// MongoStore keeps one document per user. The working set is loaded once and
// each update writes back only the records that changed.
type MongoStore struct {
	mu       sync.Mutex
	client   *mongo.Client
	coll     *mongo.Collection
	users    model.Users
	digests  map[string][32]byte
	loaded   bool
	logger   *zap.Logger
	observer Observer
}

// ConnectMongo opens the connection and checks it with a ping.
func ConnectMongo(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mongo")
	if cfg.Database == "" {
		cfg.Database = "resellboost"
	}
	if cfg.Collection == "" {
		cfg.Collection = "users"
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(cfg.URI)
	clientOpts.SetMaxPoolSize(20)
	clientOpts.SetMinPoolSize(2)
	clientOpts.SetMaxConnIdleTime(120 * time.Second)
	clientOpts.SetServerSelectionTimeout(10 * time.Second)
	clientOpts.SetRetryReads(true)
	clientOpts.SetRetryWrites(true)
	clientOpts.SetReadPreference(readpref.Primary())

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection,
		options.Collection().SetWriteConcern(writeconcern.Majority()))

	logger.Info("connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))

	return &MongoStore{
		client:   client,
		coll:     coll,
		digests:  make(map[string][32]byte),
		logger:   logger,
		observer: nopObserver{},
	}, nil
}

func (s *MongoStore) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

func (s *MongoStore) Backend() string { return "mongo" }

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *MongoStore) loadLocked(ctx context.Context) error {
	start := time.Now()
	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	users := model.Users{}
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			s.logger.Warn("skipping undecodable user", zap.Error(err))
			continue
		}
		u := doc.UserRecord
		users[doc.ID] = &u
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("iterate users: %w", err)
	}

	s.users = users
	s.digests = digestAll(users)
	s.loaded = true
	s.observer.ObserveStoreOp(s.Backend(), "load", time.Since(start))
	s.logger.Info("user data loaded", zap.Int("users", len(users)))
	return nil
}

func (s *MongoStore) Update(ctx context.Context, fn func(model.Users) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.loadLocked(ctx); err != nil {
			return err
		}
	}

	work := s.users.Clone()
	if err := fn(work); err != nil {
		return err
	}

	changed, removed, digests := diffUsers(s.digests, work)
	if len(changed) == 0 && len(removed) == 0 {
		s.users = work
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(changed)+len(removed))
	for _, id := range changed {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: id}}).
			SetReplacement(userDoc{ID: id, UserRecord: *work[id]}).
			SetUpsert(true))
	}
	for _, id := range removed {
		models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.D{{Key: "_id", Value: id}}))
	}

	start := time.Now()
	if err := s.bulkWrite(ctx, models); err != nil {
		return err
	}
	s.observer.ObserveStoreOp(s.Backend(), "update", time.Since(start))

	s.users = work
	s.digests = digests
	return nil
}

func (s *MongoStore) bulkWrite(ctx context.Context, models []mongo.WriteModel) error {
	opts := options.BulkWrite().SetOrdered(false)
	for _, batch := range chunk(models, maxBatchSize) {
		if _, err := s.coll.BulkWrite(ctx, batch, opts); err != nil {
			s.logger.Error("bulk write failed", zap.Int("ops", len(batch)), zap.Error(err))
			return fmt.Errorf("bulk write: %w", err)
		}
	}
	if len(models) > 50 {
		s.logger.Info("bulk write completed", zap.Int("ops", len(models)))
	}
	return nil
}

func (s *MongoStore) Snapshot(ctx context.Context) (model.Users, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if err := s.loadLocked(ctx); err != nil {
			return nil, err
		}
	}
	return s.users.Clone(), nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func digest(u *model.UserRecord) [32]byte {
	data, err := json.Marshal(u)
	if err != nil {
		return [32]byte{}
	}
	return sha256.Sum256(data)
}

func digestAll(users model.Users) map[string][32]byte {
	out := make(map[string][32]byte, len(users))
	for id, u := range users {
		out[id] = digest(u)
	}
	return out
}

// diffUsers compares work against the digests of the last written state. It
// returns sorted changed and removed ids plus the digests of work.
func diffUsers(prev map[string][32]byte, work model.Users) (changed, removed []string, next map[string][32]byte) {
	next = make(map[string][32]byte, len(work))
	for id, u := range work {
		if u == nil {
			continue
		}
		d := digest(u)
		next[id] = d
		if old, ok := prev[id]; !ok || old != d {
			changed = append(changed, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)
	return changed, removed, next
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
