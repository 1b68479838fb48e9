package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
)

func baseFixture() *Fixture {
	return &Fixture{ReviewRequests: []ReviewRequest{{
		ID: "42",
		Entries: []Entry{
			{ID: "1", Type: "review", UpdatedTimestamp: t0, ModelData: map[string]any{"shipIt": false}, HTML: "<p>a</p>"},
			{ID: "2", Type: "review", UpdatedTimestamp: t0, HTML: "<p>b</p>"},
		},
		Components: []Component{
			{Name: "issue-summary", UpdatedTimestamp: t0, HTML: "<p>0</p>"},
		},
	}}}
}

func TestTouch_NoChanges(t *testing.T) {
	next := baseFixture()
	changes, err := Touch(baseFixture(), next, now)
	require.NoError(t, err)

	assert.Empty(t, changes)
	assert.Equal(t, t0, next.ReviewRequests[0].Entries[0].UpdatedTimestamp)
}

func TestTouch_ModifiedEntryGetsFreshTimestamp(t *testing.T) {
	next := baseFixture()
	next.ReviewRequests[0].Entries[0].ModelData["shipIt"] = true

	changes, err := Touch(baseFixture(), next, now)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, "42", changes[0].ReviewRequestID)
	assert.Equal(t, []string{"review:1"}, changes[0].Entries)
	assert.Empty(t, changes[0].Components)
	assert.Equal(t, now, next.ReviewRequests[0].Entries[0].UpdatedTimestamp)
	assert.Equal(t, t0, next.ReviewRequests[0].Entries[1].UpdatedTimestamp)
}

func TestTouch_ExplicitNewerTimestampIsKept(t *testing.T) {
	next := baseFixture()
	later := t0.Add(time.Hour)
	next.ReviewRequests[0].Components[0].HTML = "<p>1</p>"
	next.ReviewRequests[0].Components[0].UpdatedTimestamp = later

	changes, err := Touch(baseFixture(), next, now)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, []string{"issue-summary"}, changes[0].Components)
	assert.Equal(t, later, next.ReviewRequests[0].Components[0].UpdatedTimestamp)
}

func TestTouch_UnsetTimestampInheritsPrevious(t *testing.T) {
	next := baseFixture()
	next.ReviewRequests[0].Entries[1].UpdatedTimestamp = time.Time{}

	changes, err := Touch(baseFixture(), next, now)
	require.NoError(t, err)

	assert.Empty(t, changes)
	assert.Equal(t, t0, next.ReviewRequests[0].Entries[1].UpdatedTimestamp)
}

func TestTouch_AddedEntry(t *testing.T) {
	next := baseFixture()
	next.ReviewRequests[0].Entries = append(next.ReviewRequests[0].Entries,
		Entry{ID: "3", Type: "review", HTML: "<p>c</p>"})

	changes, err := Touch(baseFixture(), next, now)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, []string{"review:3"}, changes[0].Entries)
	assert.Equal(t, now, next.ReviewRequests[0].Entries[2].UpdatedTimestamp)
}
