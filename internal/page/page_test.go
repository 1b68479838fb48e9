package page

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryCollection_OrderAndLookup(t *testing.T) {
	c := NewEntryCollection()
	require.NoError(t, c.Add(NewEntry("3", "review", time.Time{}, nil)))
	require.NoError(t, c.Add(NewEntry("1", "review", time.Time{}, nil)))
	require.NoError(t, c.Add(NewEntry("2", "status", time.Time{}, nil)))
	assert.ErrorIs(t, c.Add(NewEntry("1", "review", time.Time{}, nil)), ErrDuplicateEntry)

	var ids []string
	for _, e := range c.All() {
		ids = append(ids, e.ID())
	}
	assert.Equal(t, []string{"3", "1", "2"}, ids)

	e, ok := c.Get("2")
	require.True(t, ok)
	assert.Equal(t, "status", e.TypeID())

	assert.True(t, c.Remove("1"))
	assert.False(t, c.Remove("1"))
	assert.Equal(t, 2, c.Len())
}

func TestAttrs_ShallowMerge(t *testing.T) {
	e := NewEntry("1", "review", time.Time{}, map[string]any{"a": 1, "b": 2})
	e.MergeAttributes(map[string]any{"b": 3, "c": 4})
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, e.Attributes())

	attrs := e.Attributes()
	attrs["a"] = 100
	v, _ := e.Get("a")
	assert.Equal(t, 1, v, "Attributes must return a copy")
}

func TestBus_SubscribeEmitUnsubscribe(t *testing.T) {
	b := NewBus()
	var got []string

	unsubA := b.Subscribe(Topic(PhaseApplied, "review"), func(ev Event) { got = append(got, "a:"+ev.HTML) })
	b.Subscribe(Topic(PhaseApplied, "review"), func(ev Event) { got = append(got, "b:"+ev.HTML) })
	b.Subscribe(Topic(PhaseApplied, "review", "1"), func(ev Event) { got = append(got, "one:"+ev.HTML) })

	b.Emit(Topic(PhaseApplied, "review"), Event{HTML: "x"})
	unsubA()
	b.Emit(Topic(PhaseApplied, "review"), Event{HTML: "y"})
	b.Emit(Topic(PhaseApplied, "review", "1"), Event{HTML: "z"})

	assert.Equal(t, []string{"a:x", "b:x", "b:y", "one:z"}, got)
	assert.Equal(t, "appliedUpdate:review:1", Topic(PhaseApplied, "review", "1"))
}

func TestPage_Components(t *testing.T) {
	p := New("42")
	_, ok := p.Component("banner")
	assert.False(t, ok)

	p.RegisterComponent("banner", NewComponent("banner", time.Time{}, nil))
	m, ok := p.Component("banner")
	require.True(t, ok)
	assert.Equal(t, "banner", m.(*Component).Name())
}
