package store

import "sync"

// ReloadableStore wraps a Store and allows atomic replacement.
// All Store methods delegate to the current underlying store.
type ReloadableStore struct {
	mu      sync.RWMutex
	current Store
}

// NewReloadableStore creates a new ReloadableStore with the given initial store.
func NewReloadableStore(initial Store) *ReloadableStore {
	return &ReloadableStore{
		current: initial,
	}
}

// Swap atomically replaces the underlying store and returns the old one.
// Caller is responsible for closing the old store after swap.
func (r *ReloadableStore) Swap(next Store) Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current
	r.current = next
	return old
}

func (r *ReloadableStore) Entries(reviewRequestID string, filter map[string][]string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Entries(reviewRequestID, filter)
}

func (r *ReloadableStore) Components(reviewRequestID string) ([]Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Components(reviewRequestID)
}

func (r *ReloadableStore) Fragments(reviewRequestID string, commentIDs []uint32) ([]Fragment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Fragments(reviewRequestID, commentIDs)
}

func (r *ReloadableStore) ReviewRequestIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.ReviewRequestIDs()
}

func (r *ReloadableStore) Fixture() *Fixture {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Fixture()
}

// Close releases any resources held by the current store.
func (r *ReloadableStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Close()
}

// Compile-time interface verification
var _ Store = (*ReloadableStore)(nil)
