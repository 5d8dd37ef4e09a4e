// Package store persists user records and the pending staff actions that
// outlive a single interaction.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"resellboost/internal/model"
)

// Data file names, relative to the data directory.
const (
	UsersFile     = "user_data.json"
	PendingFile   = "pending_actions.json"
	ChallengeFile = "current_challenge.json"
)

// UserStore holds every user record. Update runs fn with exclusive access and
// persists the records before returning; an fn error discards its changes.
type UserStore interface {
	Load(ctx context.Context) error
	Update(ctx context.Context, fn func(model.Users) error) error
	Snapshot(ctx context.Context) (model.Users, error)
	Close(ctx context.Context) error
	Backend() string
}

// Observer receives operation timings. The metrics package implements it.
type Observer interface {
	ObserveStoreOp(backend, op string, d time.Duration)
	ObserveCache(hit bool)
}

type nopObserver struct{}

func (nopObserver) ObserveStoreOp(string, string, time.Duration) {}
func (nopObserver) ObserveCache(bool)                            {}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// writeFileAtomic writes v as indented JSON to a temp file next to path and
// renames it into place.
func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// readFileOrInit decodes path into v. A missing file is created from def
// first.
func readFileOrInit(path string, v any, def any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeFileAtomic(path, def); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Base(path), err)
		}
		data, err = json.Marshal(def)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Migrate copies every record of from into to and returns how many were
// copied.
func Migrate(ctx context.Context, from, to UserStore) (int, error) {
	src, err := from.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", from.Backend(), err)
	}
	err = to.Update(ctx, func(dst model.Users) error {
		for id, u := range src {
			dst[id] = u
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", to.Backend(), err)
	}
	return len(src), nil
}
