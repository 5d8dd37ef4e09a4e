package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// changeFilter decides whether a filesystem event should trigger a reload.
type changeFilter struct {
	mu         sync.Mutex
	lastReload time.Time
	cooldown   time.Duration
	files      map[string]bool
	now        func() time.Time
}

func newChangeFilter(cooldown time.Duration) *changeFilter {
	return &changeFilter{
		cooldown: cooldown,
		now:      time.Now,
		files: map[string]bool{
			ConfigFile:        true,
			ConfigYAMLFile:    true,
			ConfigYMLFile:     true,
			ProductsFile:      true,
			AchievementsFile:  true,
			KnowledgeBaseFile: true,
			CreditShopFile:    true,
		},
	}
}

func (f *changeFilter) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".tmp")
}

func (f *changeFilter) shouldReload(path string) bool {
	if f.shouldIgnore(path) {
		return false
	}
	return f.files[filepath.Base(path)]
}

// allow reports whether the cooldown since the last accepted change has
// elapsed, and records the change when it has.
func (f *changeFilter) allow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if now.Sub(f.lastReload) <= f.cooldown {
		return false
	}
	f.lastReload = now
	return true
}

// clear forgets the last change so a follow-up write is not swallowed by
// the cooldown.
func (f *changeFilter) clear() {
	f.mu.Lock()
	f.lastReload = time.Time{}
	f.mu.Unlock()
}

// Watcher reloads a Manager when its documents change on disk.
type Watcher struct {
	manager *Manager
	filter  *changeFilter
	logger  *zap.Logger
}

func NewWatcher(m *Manager, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		manager: m,
		filter:  newChangeFilter(2 * time.Second),
		logger:  logger.Named("watcher"),
	}
}

// Run watches the config directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer fw.Close()

	dir := w.manager.Dir()
	if dir == "" {
		dir = "."
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("error watching %s: %w", dir, err)
	}
	w.logger.Info("watching directory", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	if !w.filter.shouldReload(event.Name) || !w.filter.allow() {
		return
	}
	w.logger.Info("detected change", zap.String("file", event.Name))
	if err := w.manager.Reload(); err != nil {
		w.logger.Warn("config change ignored", zap.Error(err))
		w.filter.clear()
	}
}
