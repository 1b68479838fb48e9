package view

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/page"
)

// EntryElementID is the element id entry HTML is injected into.
func EntryElementID(typeID, id string) string {
	return fmt.Sprintf("entry-%s-%s", typeID, id)
}

// ComponentElementID is the element id component HTML is injected into.
func ComponentElementID(name string) string {
	return "component-" + name
}

// Binder injects applied update HTML into the document.
type Binder struct {
	page   *page.Page
	doc    Document
	logger *zap.Logger
}

func NewBinder(p *page.Page, doc Document, logger *zap.Logger) *Binder {
	return &Binder{page: p, doc: doc, logger: logger}
}

// BindEntry injects HTML for updates applied to e. The returned function
// stops it.
func (b *Binder) BindEntry(e page.Entry) func() {
	return b.bind(EntryElementID(e.TypeID(), e.ID()), page.Topic(page.PhaseApplied, e.TypeID(), e.ID()))
}

// BindComponent injects HTML for updates applied to the named component.
func (b *Binder) BindComponent(name string) func() {
	return b.bind(ComponentElementID(name), page.Topic(page.PhaseApplied, name))
}

// BindAll binds every entry currently on the page.
func (b *Binder) BindAll() func() {
	var unbind []func()
	for _, e := range b.page.Entries().All() {
		unbind = append(unbind, b.BindEntry(e))
	}
	return func() {
		for _, f := range unbind {
			f()
		}
	}
}

func (b *Binder) bind(elementID, topic string) func() {
	return b.page.Events().Subscribe(topic, func(ev page.Event) {
		if ev.HTML == "" {
			return
		}
		el, ok := b.doc.Element(elementID)
		if !ok {
			b.logger.Warn("no element for applied update", zap.String("element", elementID))
			return
		}
		Inject(b.doc, el, ev.HTML)
	})
}
