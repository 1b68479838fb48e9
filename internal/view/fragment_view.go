package view

import "sync"

// FragmentView is the per-fragment view attached to a diff fragment element.
type FragmentView struct {
	mu        sync.Mutex
	commentID uint32
	el        *Element
	html      string
	renders   int
}

func NewFragmentView(commentID uint32, el *Element, html string) *FragmentView {
	return &FragmentView{commentID: commentID, el: el, html: html}
}

func (v *FragmentView) CommentID() uint32 { return v.commentID }

// Update replaces the HTML the view renders from.
func (v *FragmentView) Update(html string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.html = html
}

// Render re-binds the view to its element content.
func (v *FragmentView) Render() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders++
}

func (v *FragmentView) Renders() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renders
}

func (v *FragmentView) HTML() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.html
}
