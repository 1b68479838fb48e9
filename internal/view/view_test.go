package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/page"
	"github.com/dgnsrekt/reviewsync/internal/update"
)

func TestInject_Brackets(t *testing.T) {
	doc := NewMemoryDocument()
	el := doc.Add(NewElement("x"))

	Inject(doc, el, "<p>hi</p>")

	assert.Equal(t, "<p>hi</p>", el.HTML())
	assert.Equal(t, []ScrollMark{{ElementID: "x"}, {ElementID: "x", Done: true}}, doc.Marks())
	assert.Zero(t, doc.Pending())
}

func TestMarkUpdated_WithoutMarkPanics(t *testing.T) {
	doc := NewMemoryDocument()
	el := doc.Add(NewElement("x"))
	assert.Panics(t, func() { doc.MarkUpdated(el) })
}

func TestBinder_InjectsAppliedHTML(t *testing.T) {
	p := page.New("1")
	e := page.NewEntry("5", "review", time.Time{}, nil)
	require.NoError(t, p.Entries().Add(e))

	doc := NewMemoryDocument()
	el := doc.Add(NewElement(EntryElementID("review", "5")))
	banner := doc.Add(NewElement(ComponentElementID("banner")))

	b := NewBinder(p, doc, zap.NewNop())
	unbind := b.BindAll()
	b.BindComponent("banner")

	u := &update.EntryUpdate{EntryID: "5", EntryType: "review"}
	p.Events().Emit(page.Topic(page.PhaseApplied, "review", "5"), page.Event{Phase: page.PhaseApplied, Update: u, HTML: "<div>5</div>"})
	p.Events().Emit(page.Topic(page.PhaseApplied, "banner"), page.Event{Phase: page.PhaseApplied, HTML: "<b>"})
	assert.Equal(t, "<div>5</div>", el.HTML())
	assert.Equal(t, "<b>", banner.HTML())

	unbind()
	p.Events().Emit(page.Topic(page.PhaseApplied, "review", "5"), page.Event{HTML: "<div>later</div>"})
	assert.Equal(t, "<div>5</div>", el.HTML())
}
