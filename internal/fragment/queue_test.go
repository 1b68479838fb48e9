package fragment

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/view"
	"github.com/dgnsrekt/reviewsync/internal/wire"
)

// fakeFetcher serves fragments for every requested id and records each URL.
type fakeFetcher struct {
	mu       sync.Mutex
	urls     []string
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
	err      error
}

func (f *fakeFetcher) FetchFragments(ctx context.Context, u string) ([]byte, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.urls = append(f.urls, u)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return nil, err
	}
	segs := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	ids, err := ParseIDs(segs[len(segs)-1])
	if err != nil {
		return nil, err
	}

	var w wire.Writer
	for _, id := range ids {
		w.WriteFragment(id, "<table>fragment "+strconv.FormatUint(uint64(id), 10)+"</table>")
	}
	return w.Bytes(), nil
}

func (f *fakeFetcher) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func newDoc(ids ...uint32) *view.MemoryDocument {
	doc := view.NewMemoryDocument()
	r := NewRenderer(doc, "", zap.NewNop())
	for _, id := range ids {
		doc.Add(view.NewElement(r.ElementID(id)))
	}
	return doc
}

func flushAndWait(t *testing.T, q *Queue) {
	t.Helper()
	done := make(chan struct{})
	q.Flush(context.Background(), func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not finish")
	}
}

func TestQueue_CoalescesBatches(t *testing.T) {
	doc := newDoc(1, 2, 3, 4, 5)
	f := &fakeFetcher{}
	q := NewQueue(Options{BasePath: "/r/42/_fragments/diff-comments/"}, f, doc, nil, zap.NewNop())

	var rendered atomic.Int32
	cb := func() { rendered.Add(1) }
	q.Enqueue(1, "A", cb)
	q.Enqueue(2, "A", cb)
	q.Enqueue(3, "B", cb)
	q.Enqueue(4, "A", cb)
	q.Enqueue(5, "B", cb)
	assert.Equal(t, 5, q.Pending())

	flushAndWait(t, q)

	urls := f.URLs()
	require.Len(t, urls, 2)
	assert.True(t, strings.HasPrefix(urls[0], "/r/42/_fragments/diff-comments/1,2,4/"), urls[0])
	assert.True(t, strings.HasPrefix(urls[1], "/r/42/_fragments/diff-comments/3,5/"), urls[1])
	assert.Equal(t, int32(5), rendered.Load())
	assert.Equal(t, 0, q.Pending())

	el, ok := doc.Element("comment_container_4")
	require.True(t, ok)
	assert.Equal(t, "<table>fragment 4</table>", el.HTML())
	require.NotNil(t, el.View())
	assert.Equal(t, 1, el.View().Renders())
	assert.Equal(t, 0, doc.Pending())
}

func TestQueue_SavedFragmentIsUsedOnce(t *testing.T) {
	doc := newDoc(7)
	el, _ := doc.Element("comment_container_7")
	el.SetHTML("<table>saved</table>")

	f := &fakeFetcher{}
	q := NewQueue(Options{BasePath: "/f/"}, f, doc, nil, zap.NewNop())

	q.SaveForReuse(7)
	require.True(t, q.Saved(7))

	var calls atomic.Int32
	q.Enqueue(7, "K", func() { calls.Add(1) })
	flushAndWait(t, q)

	assert.Empty(t, f.URLs())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "<table>saved</table>", el.HTML())
	assert.False(t, q.Saved(7))

	q.Enqueue(7, "K", func() { calls.Add(1) })
	flushAndWait(t, q)

	assert.Len(t, f.URLs(), 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "<table>fragment 7</table>", el.HTML())
	assert.Equal(t, 2, el.View().Renders())
}

func TestQueue_SaveForReuseIgnoresEmptyContainer(t *testing.T) {
	doc := newDoc(8)
	q := NewQueue(Options{}, &fakeFetcher{}, doc, nil, zap.NewNop())

	q.SaveForReuse(8)
	q.SaveForReuse(99)

	assert.False(t, q.Saved(8))
	assert.False(t, q.Saved(99))
}

func TestQueue_MixedCacheAndNetwork(t *testing.T) {
	doc := newDoc(1, 2)
	el, _ := doc.Element("comment_container_1")
	el.SetHTML("<table>kept</table>")

	f := &fakeFetcher{}
	q := NewQueue(Options{BasePath: "/f/"}, f, doc, nil, zap.NewNop())
	q.SaveForReuse(1)

	q.Enqueue(1, "K", nil)
	q.Enqueue(2, "K", nil)
	flushAndWait(t, q)

	urls := f.URLs()
	require.Len(t, urls, 1)
	assert.True(t, strings.HasPrefix(urls[0], "/f/2/"), urls[0])
	assert.Equal(t, "<table>kept</table>", el.HTML())
}

func TestQueue_BatchesNeverOverlap(t *testing.T) {
	doc := newDoc(1, 2, 3)
	f := &fakeFetcher{delay: 20 * time.Millisecond}
	q := NewQueue(Options{BasePath: "/f/"}, f, doc, nil, zap.NewNop())

	q.Enqueue(1, "A", nil)
	q.Enqueue(2, "B", nil)
	q.Enqueue(3, "C", nil)
	flushAndWait(t, q)

	assert.Len(t, f.URLs(), 3)
	assert.False(t, f.overlap.Load())
}

func TestQueue_MissingContainerIsSkipped(t *testing.T) {
	doc := newDoc(1)
	f := &fakeFetcher{}
	q := NewQueue(Options{BasePath: "/f/"}, f, doc, nil, zap.NewNop())

	var calls atomic.Int32
	q.Enqueue(1, "A", func() { calls.Add(1) })
	q.Enqueue(2, "A", func() { calls.Add(1) })
	flushAndWait(t, q)

	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_FetchErrorReleasesQueue(t *testing.T) {
	doc := newDoc(1, 2)
	f := &fakeFetcher{err: errors.New("boom")}

	var failed []uint32
	var mu sync.Mutex
	q := NewQueue(Options{
		BasePath: "/f/",
		OnError: func(key string, ids []uint32, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, ids...)
		},
	}, f, doc, nil, zap.NewNop())

	var calls atomic.Int32
	q.Enqueue(1, "A", func() { calls.Add(1) })
	q.Enqueue(2, "B", func() { calls.Add(1) })
	flushAndWait(t, q)

	assert.Len(t, f.URLs(), 2)
	assert.Equal(t, int32(0), calls.Load())
	mu.Lock()
	assert.ElementsMatch(t, []uint32{1, 2}, failed)
	mu.Unlock()

	el, _ := doc.Element("comment_container_1")
	assert.Equal(t, ErrorHTML, el.HTML())
}

func TestQueue_MalformedPayloadRendersNothing(t *testing.T) {
	doc := newDoc(1)
	bad := FetcherFunc(func(ctx context.Context, u string) ([]byte, error) {
		payload := wire.AppendFragment(nil, 1, "<table>ok</table>")
		return append(payload, 0x02, 0x00), nil
	})
	q := NewQueue(Options{BasePath: "/f/"}, bad, doc, nil, zap.NewNop())

	var calls atomic.Int32
	q.Enqueue(1, "A", func() { calls.Add(1) })
	flushAndWait(t, q)

	assert.Equal(t, int32(0), calls.Load())
	el, _ := doc.Element("comment_container_1")
	assert.Nil(t, el.View())
	assert.Equal(t, ErrorHTML, el.HTML())
}

func TestQueue_DraftBatchDisablesExpansion(t *testing.T) {
	doc := newDoc(1, 2)
	doc.Add(view.NewElement("file_container_A", DraftClass))
	doc.Add(view.NewElement("file_container_B"))

	f := &fakeFetcher{}
	q := NewQueue(Options{BasePath: "/f/", LinesOfContext: []int{3, 5}, TemplateSerial: "abc"}, f, doc, nil, zap.NewNop())

	q.Enqueue(1, "A", nil)
	q.Enqueue(2, "B", nil)
	flushAndWait(t, q)

	urls := f.URLs()
	require.Len(t, urls, 2)

	a, err := url.Parse(urls[0])
	require.NoError(t, err)
	assert.Empty(t, a.Query().Get("allow_expansion"))
	assert.Equal(t, "3,5", a.Query().Get("lines_of_context"))
	assert.Equal(t, "abc", a.Query().Get("_"))

	b, err := url.Parse(urls[1])
	require.NoError(t, err)
	assert.Equal(t, "1", b.Query().Get("allow_expansion"))
}

func TestQueue_FlushWithNothingPending(t *testing.T) {
	q := NewQueue(Options{}, &fakeFetcher{}, newDoc(), nil, zap.NewNop())
	flushAndWait(t, q)
}
