package view

import (
	"fmt"
	"sync"
)

// Element is a DOM region that server-rendered HTML is injected into.
type Element struct {
	mu      sync.RWMutex
	id      string
	classes map[string]bool
	html    string
	view    *FragmentView
	writes  int
}

func NewElement(id string, classes ...string) *Element {
	el := &Element{id: id, classes: make(map[string]bool, len(classes))}
	for _, c := range classes {
		el.classes[c] = true
	}
	return el
}

func (el *Element) ID() string { return el.id }

func (el *Element) HasClass(class string) bool {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.classes[class]
}

func (el *Element) HTML() string {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.html
}

// SetHTML replaces the element's content.
func (el *Element) SetHTML(html string) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.html = html
	el.writes++
}

// Writes counts SetHTML calls.
func (el *Element) Writes() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.writes
}

// View returns the fragment view attached to the element, if any.
func (el *Element) View() *FragmentView {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.view
}

func (el *Element) SetView(v *FragmentView) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.view = v
}

// Document is the DOM as seen by the update pipeline.
type Document interface {
	Element(id string) (*Element, bool)
	// MarkForUpdate and MarkUpdated bracket a write so the scroll position
	// can be kept stable around the element.
	MarkForUpdate(el *Element)
	MarkUpdated(el *Element)
}

// ScrollMark is one recorded scroll-preservation call.
type ScrollMark struct {
	ElementID string
	Done      bool
}

// MemoryDocument is an in-process Document.
type MemoryDocument struct {
	mu       sync.RWMutex
	elements map[string]*Element
	pending  map[string]int
	marks    []ScrollMark
}

var _ Document = (*MemoryDocument)(nil)

func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{
		elements: make(map[string]*Element),
		pending:  make(map[string]int),
	}
}

// Add inserts el, replacing any element with the same id.
func (d *MemoryDocument) Add(el *Element) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[el.ID()] = el
	return el
}

func (d *MemoryDocument) Element(id string) (*Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	return el, ok
}

func (d *MemoryDocument) MarkForUpdate(el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[el.ID()]++
	d.marks = append(d.marks, ScrollMark{ElementID: el.ID()})
}

func (d *MemoryDocument) MarkUpdated(el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[el.ID()] == 0 {
		panic(fmt.Sprintf("view: MarkUpdated(%q) without MarkForUpdate", el.ID()))
	}
	d.pending[el.ID()]--
	if d.pending[el.ID()] == 0 {
		delete(d.pending, el.ID())
	}
	d.marks = append(d.marks, ScrollMark{ElementID: el.ID(), Done: true})
}

// Marks returns every scroll-preservation call in order.
func (d *MemoryDocument) Marks() []ScrollMark {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]ScrollMark(nil), d.marks...)
}

// Pending reports brackets opened but not yet closed.
func (d *MemoryDocument) Pending() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, c := range d.pending {
		n += c
	}
	return n
}

// Inject writes html into el inside a scroll-preservation bracket.
func Inject(doc Document, el *Element, html string) {
	doc.MarkForUpdate(el)
	el.SetHTML(html)
	doc.MarkUpdated(el)
}
