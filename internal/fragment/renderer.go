package fragment

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/telemetry"
	"github.com/dgnsrekt/reviewsync/internal/view"
)

// DefaultContainerPrefix prefixes the comment id to form a fragment's element id.
const DefaultContainerPrefix = "comment_container_"

// ErrorHTML is rendered in place of a fragment that could not be loaded.
const ErrorHTML = `<div class="diff-fragment-error">Could not load this diff fragment.</div>`

// Renderer writes fragment HTML into its element and keeps the element's
// FragmentView in step.
type Renderer struct {
	doc    view.Document
	prefix string
	logger *zap.Logger
}

func NewRenderer(doc view.Document, prefix string, logger *zap.Logger) *Renderer {
	if prefix == "" {
		prefix = DefaultContainerPrefix
	}
	return &Renderer{doc: doc, prefix: prefix, logger: logger}
}

// ElementID returns the element id for a comment's fragment.
func (r *Renderer) ElementID(commentID uint32) string {
	return fmt.Sprintf("%s%d", r.prefix, commentID)
}

// Element returns the fragment element for a comment.
func (r *Renderer) Element(commentID uint32) (*view.Element, bool) {
	return r.doc.Element(r.ElementID(commentID))
}

// Render injects html and re-renders (or creates) the fragment view. It
// returns false when the element does not exist.
func (r *Renderer) Render(commentID uint32, html, source string) bool {
	el, ok := r.Element(commentID)
	if !ok {
		telemetry.Incr(telemetry.MetricFragmentsSkipped, telemetry.LabelReason.M("missing_container"))
		r.logger.Warn("diff fragment container not found",
			zap.Uint32("commentID", commentID),
			zap.String("element", r.ElementID(commentID)),
		)
		return false
	}

	view.Inject(r.doc, el, html)

	// A container reused for another comment gets a fresh view.
	if v := el.View(); v != nil && v.CommentID() == commentID {
		v.Update(html)
		v.Render()
	} else {
		v := view.NewFragmentView(commentID, el, html)
		el.SetView(v)
		v.Render()
	}

	telemetry.Incr(telemetry.MetricFragmentsRendered, telemetry.LabelSource.M(source))
	return true
}

// RenderError shows the "could not load" placeholder for a comment.
func (r *Renderer) RenderError(commentID uint32) {
	el, ok := r.Element(commentID)
	if !ok {
		return
	}
	view.Inject(r.doc, el, ErrorHTML)
}
