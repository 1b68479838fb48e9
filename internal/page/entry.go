package page

import (
	"errors"
	"sync"
	"time"
)

var ErrDuplicateEntry = errors.New("entry already exists")

// Entry is a page-resident entity addressable by id and type.
type Entry interface {
	Model
	ID() string
	TypeID() string
}

// BaseEntry is the plain Entry implementation.
type BaseEntry struct {
	Attrs
	id     string
	typeID string
}

var _ Entry = (*BaseEntry)(nil)

func NewEntry(id, typeID string, updated time.Time, attrs map[string]any) *BaseEntry {
	e := &BaseEntry{id: id, typeID: typeID}
	e.init(updated, attrs)
	return e
}

func (e *BaseEntry) ID() string     { return e.id }
func (e *BaseEntry) TypeID() string { return e.typeID }

// Component is a page-level model addressed by name.
type Component struct {
	Attrs
	name string
}

var _ Model = (*Component)(nil)

func NewComponent(name string, updated time.Time, attrs map[string]any) *Component {
	c := &Component{name: name}
	c.init(updated, attrs)
	return c
}

func (c *Component) Name() string { return c.name }

// EntryCollection is an ordered, id-keyed store of entries.
type EntryCollection struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Entry
}

func NewEntryCollection() *EntryCollection {
	return &EntryCollection{byID: make(map[string]Entry)}
}

// Add appends an entry. Ids are unique within the collection.
func (c *EntryCollection) Add(e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[e.ID()]; ok {
		return ErrDuplicateEntry
	}
	c.byID[e.ID()] = e
	c.order = append(c.order, e.ID())
	return nil
}

func (c *EntryCollection) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	return e, ok
}

// Remove deletes an entry. Removal policy belongs to the page owner.
func (c *EntryCollection) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *EntryCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// All returns the entries in insertion order.
func (c *EntryCollection) All() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
