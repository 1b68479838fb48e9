package page

import (
	"maps"
	"sync"
	"time"

	"github.com/dgnsrekt/reviewsync/internal/update"
)

// Model is anything an update can be applied to.
type Model interface {
	Attributes() map[string]any
	MergeAttributes(attrs map[string]any)
	UpdatedTimestamp() time.Time
	SetUpdatedTimestamp(t time.Time)
}

// BeforeUpdater is implemented by models that need to react before an update
// is merged.
type BeforeUpdater interface {
	BeforeApplyUpdate(u update.Update)
}

// AfterUpdater is implemented by models that need to react after an update
// is merged.
type AfterUpdater interface {
	AfterApplyUpdate(u update.Update)
}

// Attrs is the attribute and timestamp state shared by entries and components.
type Attrs struct {
	mu      sync.RWMutex
	attrs   map[string]any
	updated time.Time
}

func (a *Attrs) init(updated time.Time, attrs map[string]any) {
	a.attrs = make(map[string]any, len(attrs))
	maps.Copy(a.attrs, attrs)
	a.updated = updated
}

// Attributes returns a copy of the current attributes.
func (a *Attrs) Attributes() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.attrs)
}

// Get returns one attribute.
func (a *Attrs) Get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.attrs[key]
	return v, ok
}

// MergeAttributes shallow-merges attrs; keys not present are left alone.
func (a *Attrs) MergeAttributes(attrs map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attrs == nil {
		a.attrs = make(map[string]any, len(attrs))
	}
	maps.Copy(a.attrs, attrs)
}

func (a *Attrs) UpdatedTimestamp() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.updated
}

func (a *Attrs) SetUpdatedTimestamp(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updated = t
}
