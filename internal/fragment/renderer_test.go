package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/view"
)

func TestRenderer_ReusesViewForSameComment(t *testing.T) {
	doc := view.NewMemoryDocument()
	r := NewRenderer(doc, "", zap.NewNop())
	el := doc.Add(view.NewElement(r.ElementID(7)))

	require.True(t, r.Render(7, "<p>a</p>", "network"))
	first := el.View()
	require.NotNil(t, first)
	assert.Equal(t, uint32(7), first.CommentID())

	require.True(t, r.Render(7, "<p>b</p>", "cache"))
	assert.Same(t, first, el.View())
	assert.Equal(t, 2, first.Renders())
	assert.Equal(t, "<p>b</p>", first.HTML())
	assert.Equal(t, 2, el.Writes())
}

func TestRenderer_ForeignViewReplaced(t *testing.T) {
	doc := view.NewMemoryDocument()
	r := NewRenderer(doc, "", zap.NewNop())
	el := doc.Add(view.NewElement(r.ElementID(7)))
	el.SetView(view.NewFragmentView(3, el, "<p>old</p>"))

	require.True(t, r.Render(7, "<p>new</p>", "network"))
	assert.Equal(t, uint32(7), el.View().CommentID())
	assert.Equal(t, 1, el.View().Renders())
}

func TestRenderer_MissingContainerNotWritten(t *testing.T) {
	doc := view.NewMemoryDocument()
	r := NewRenderer(doc, "", zap.NewNop())

	assert.False(t, r.Render(9, "<p>x</p>", "network"))
	_, ok := r.Element(9)
	assert.False(t, ok)
}

func TestRenderer_RenderError(t *testing.T) {
	doc := view.NewMemoryDocument()
	r := NewRenderer(doc, "", zap.NewNop())
	el := doc.Add(view.NewElement(r.ElementID(4)))

	r.RenderError(4)
	assert.Equal(t, ErrorHTML, el.HTML())
	assert.Equal(t, 1, el.Writes())
}
