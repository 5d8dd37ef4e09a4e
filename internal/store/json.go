package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"resellboost/internal/model"
)

// JSONStore keeps user_data.json in memory and rewrites the whole file after
// every update.
type JSONStore struct {
	mu       sync.Mutex
	path     string
	users    model.Users
	loaded   bool
	closed   bool
	logger   *zap.Logger
	observer Observer
}

func NewJSONStore(path string, logger *zap.Logger) *JSONStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONStore{
		path:     path,
		logger:   logger.Named("store"),
		observer: nopObserver{},
	}
}

// SetObserver routes operation timings to o.
func (s *JSONStore) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

func (s *JSONStore) Backend() string { return "json" }

func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *JSONStore) loadLocked() error {
	if s.closed {
		return ErrClosed
	}
	start := time.Now()
	users := model.Users{}
	if err := readFileOrInit(s.path, &users, model.Users{}); err != nil {
		return err
	}
	for id, u := range users {
		if u == nil {
			delete(users, id)
		}
	}
	s.users = users
	s.loaded = true
	s.observer.ObserveStoreOp(s.Backend(), "load", time.Since(start))
	s.logger.Info("user data loaded", zap.String("path", s.path), zap.Int("users", len(users)))
	return nil
}

// Update runs fn on a working copy and commits it only once the file is
// written.
func (s *JSONStore) Update(ctx context.Context, fn func(model.Users) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.loadLocked(); err != nil {
			return err
		}
	}
	if s.closed {
		return ErrClosed
	}

	work := s.users.Clone()
	if err := fn(work); err != nil {
		return err
	}

	start := time.Now()
	if err := writeFileAtomic(s.path, work); err != nil {
		s.logger.Error("failed to save user data", zap.Error(err))
		return err
	}
	s.observer.ObserveStoreOp(s.Backend(), "update", time.Since(start))
	s.users = work
	return nil
}

func (s *JSONStore) Snapshot(ctx context.Context) (model.Users, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if err := s.loadLocked(); err != nil {
			return nil, err
		}
	}
	return s.users.Clone(), nil
}

func (s *JSONStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
