package page

import "sync"

// Page owns the entries and page-level components kept in sync with the
// server, plus the bus their update notifications go through.
type Page struct {
	ReviewRequestID string

	entries *EntryCollection
	events  *Bus

	mu         sync.RWMutex
	components map[string]Model
}

func New(reviewRequestID string) *Page {
	return &Page{
		ReviewRequestID: reviewRequestID,
		entries:         NewEntryCollection(),
		events:          NewBus(),
		components:      make(map[string]Model),
	}
}

func (p *Page) Entries() *EntryCollection { return p.entries }
func (p *Page) Events() *Bus              { return p.events }

// RegisterComponent makes a page-level model addressable by name.
func (p *Page) RegisterComponent(name string, m Model) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.components[name] = m
}

func (p *Page) Component(name string) (Model, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.components[name]
	return m, ok
}
