package fragment

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestFuncQueue_RunsInOrder(t *testing.T) {
	q := NewFuncQueue("test", zap.NewNop())

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := range 3 {
		q.Add(func(next func()) {
			go func() {
				time.Sleep(time.Duration(3-i) * 5 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				next()
			}()
		})
	}
	q.Add(func(next func()) {
		close(done)
		next()
	})
	q.Start()
	q.Start()

	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestFuncQueue_PanicReleasesQueue(t *testing.T) {
	q := NewFuncQueue("test", zap.NewNop())
	done := make(chan struct{})

	q.Add(func(next func()) { panic("boom") })
	q.Add(func(next func()) {
		close(done)
		next()
	})
	q.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue stalled after panic")
	}
}

func TestFuncQueue_DoubleNextIsIgnored(t *testing.T) {
	q := NewFuncQueue("test", zap.NewNop())
	done := make(chan struct{})

	q.Add(func(next func()) {
		next()
		next()
	})
	q.Add(func(next func()) {
		close(done)
		next()
	})
	q.Start()

	<-done
}

func TestFuncQueue_RunningUntilReleased(t *testing.T) {
	q := NewFuncQueue("test", zap.NewNop())
	release := make(chan func(), 1)

	q.Add(func(next func()) { release <- next })
	assert.False(t, q.Running())
	q.Start()

	next := <-release
	assert.True(t, q.Running())
	assert.Equal(t, 0, q.Len())

	next()
	assert.Eventually(t, func() bool { return !q.Running() }, time.Second, 5*time.Millisecond)
}

func TestRegistry_SameNameSameQueue(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	assert.Same(t, r.Get("a"), r.Get("a"))
	assert.NotSame(t, r.Get("a"), r.Get("b"))
}

func TestBuildURL(t *testing.T) {
	u := BuildURL(URLOptions{BasePath: "/r/1/_fragments/diff-comments"}, []uint32{10, 11})
	assert.Equal(t, "/r/1/_fragments/diff-comments/10,11/", u)
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("1, 2,,3")
	assert.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, ids)

	_, err = ParseIDs("x")
	assert.Error(t, err)
}
