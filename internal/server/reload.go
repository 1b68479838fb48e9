package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/store"
)

// OpenStore loads the fixture at path, stamping entries without a timestamp
// with the current time.
func OpenStore(path string, logger *zap.Logger) (*store.MemoryStore, error) {
	fx, err := store.LoadFixture(path)
	if err != nil {
		return nil, err
	}
	if _, err := store.Touch(nil, fx, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("stamping fixture: %w", err)
	}
	return store.NewMemoryStore(fx, logger)
}

// ReloadManager reloads the fixture into the server's store and notifies
// push subscribers of review requests whose state changed.
type ReloadManager struct {
	store    *store.ReloadableStore
	path     string
	debounce time.Duration
	notify   func(reviewRequestIDs []string)
	now      func() time.Time
	logger   *zap.Logger

	// Reload state
	isReloading atomic.Bool
	reloadMu    sync.Mutex // prevents concurrent reloads

	// Current state
	loadedAt time.Time
	stateMu  sync.RWMutex
}

// NewReloadManager creates a new ReloadManager. notify may be nil.
func NewReloadManager(s *store.ReloadableStore, path string, debounce time.Duration, notify func([]string), logger *zap.Logger) *ReloadManager {
	return &ReloadManager{
		store:    s,
		path:     filepath.Clean(path),
		debounce: debounce,
		notify:   notify,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
		loadedAt: time.Now(),
	}
}

// IsReloading returns true if a reload is currently in progress.
func (rm *ReloadManager) IsReloading() bool {
	return rm.isReloading.Load()
}

// LoadedAt returns the timestamp when the current fixture was loaded.
func (rm *ReloadManager) LoadedAt() time.Time {
	rm.stateMu.RLock()
	defer rm.stateMu.RUnlock()
	return rm.loadedAt
}

// ReloadResult contains the result of a successful reload operation.
type ReloadResult struct {
	LoadedAt       time.Time
	ReviewRequests int
	Changes        []store.Change
}

// Reload parses the fixture, stamps changed entries, swaps the store and
// notifies subscribers. The current store stays in place if anything fails.
func (rm *ReloadManager) Reload(ctx context.Context) (*ReloadResult, error) {
	// Prevent concurrent reloads
	if !rm.reloadMu.TryLock() {
		return nil, fmt.Errorf("reload already in progress")
	}
	defer rm.reloadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rm.logger.Info("reloading fixture", zap.String("path", rm.path))

	next, err := store.LoadFixture(rm.path)
	if err != nil {
		return nil, err
	}

	changes, err := store.Touch(rm.store.Fixture(), next, rm.now())
	if err != nil {
		return nil, fmt.Errorf("comparing fixtures: %w", err)
	}

	newStore, err := store.NewMemoryStore(next, rm.logger)
	if err != nil {
		return nil, fmt.Errorf("building store: %w", err)
	}

	rm.isReloading.Store(true)
	oldStore := rm.store.Swap(newStore)
	rm.isReloading.Store(false)

	rm.stateMu.Lock()
	rm.loadedAt = time.Now()
	loadedAt := rm.loadedAt
	rm.stateMu.Unlock()

	// Close old store (release resources)
	if err := oldStore.Close(); err != nil {
		rm.logger.Warn("failed to close old store", zap.Error(err))
	}

	ids := make([]string, 0, len(changes))
	for _, ch := range changes {
		ids = append(ids, ch.ReviewRequestID)
		rm.logger.Info("review request changed",
			zap.String("reviewRequest", ch.ReviewRequestID),
			zap.Strings("entries", ch.Entries),
			zap.Strings("components", ch.Components),
			zap.Int("operations", ch.Operations),
		)
	}
	if len(ids) > 0 && rm.notify != nil {
		rm.notify(ids)
	}

	rm.logger.Info("fixture reload complete",
		zap.Time("loadedAt", loadedAt),
		zap.Int("reviewRequests", len(next.ReviewRequests)),
		zap.Int("changed", len(ids)),
	)

	return &ReloadResult{
		LoadedAt:       loadedAt,
		ReviewRequests: len(next.ReviewRequests),
		Changes:        changes,
	}, nil
}

// Watch reloads the fixture whenever it is written, until ctx is cancelled.
// Bursts of events within the debounce window cause a single reload.
func (rm *ReloadManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are noticed.
	if err := watcher.Add(filepath.Dir(rm.path)); err != nil {
		return fmt.Errorf("watching %s: %w", rm.path, err)
	}

	rm.logger.Info("watching fixture", zap.String("path", rm.path))

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != rm.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(rm.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if _, err := rm.Reload(ctx); err != nil {
				rm.logger.Warn("fixture reload failed", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			rm.logger.Warn("fixture watcher error", zap.Error(err))
		}
	}
}
