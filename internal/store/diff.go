package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/wI2L/jsondiff"
)

// Change lists what differs in one review request between two fixtures.
type Change struct {
	ReviewRequestID string
	// Entries holds EntryKey values of added or modified entries.
	Entries []string
	// Components holds names of added or modified components.
	Components []string
	// Operations is the number of JSON patch operations across the request.
	Operations int
}

// Touch compares next against prev and stamps every added or modified entry
// and component in next with now, unless next already carries a newer
// timestamp. Unchanged items inherit prev's timestamp when next leaves it
// unset. Changes are returned sorted by review request id.
func Touch(prev, next *Fixture, now time.Time) ([]Change, error) {
	old := make(map[string]*ReviewRequest)
	if prev != nil {
		for i := range prev.ReviewRequests {
			old[prev.ReviewRequests[i].ID] = &prev.ReviewRequests[i]
		}
	}

	var changes []Change
	for i := range next.ReviewRequests {
		req := &next.ReviewRequests[i]
		ch := Change{ReviewRequestID: req.ID}

		prevEntries := make(map[string]*Entry)
		prevComponents := make(map[string]*Component)
		if o, ok := old[req.ID]; ok {
			for j := range o.Entries {
				prevEntries[EntryKey(o.Entries[j].Type, o.Entries[j].ID)] = &o.Entries[j]
			}
			for j := range o.Components {
				prevComponents[o.Components[j].Name] = &o.Components[j]
			}
		}

		for j := range req.Entries {
			e := &req.Entries[j]
			key := EntryKey(e.Type, e.ID)
			var before any
			var prevTS time.Time
			if p, ok := prevEntries[key]; ok {
				before, prevTS = p, p.UpdatedTimestamp
			}
			ops, err := compare(before, e)
			if err != nil {
				return nil, fmt.Errorf("comparing entry %s in %s: %w", key, req.ID, err)
			}
			e.UpdatedTimestamp = stamp(e.UpdatedTimestamp, prevTS, ops > 0, now)
			if ops > 0 {
				ch.Entries = append(ch.Entries, key)
				ch.Operations += ops
			}
		}

		for j := range req.Components {
			c := &req.Components[j]
			var before any
			var prevTS time.Time
			if p, ok := prevComponents[c.Name]; ok {
				before, prevTS = p, p.UpdatedTimestamp
			}
			ops, err := compare(before, c)
			if err != nil {
				return nil, fmt.Errorf("comparing component %s in %s: %w", c.Name, req.ID, err)
			}
			c.UpdatedTimestamp = stamp(c.UpdatedTimestamp, prevTS, ops > 0, now)
			if ops > 0 {
				ch.Components = append(ch.Components, c.Name)
				ch.Operations += ops
			}
		}

		if len(ch.Entries) > 0 || len(ch.Components) > 0 {
			changes = append(changes, ch)
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].ReviewRequestID < changes[j].ReviewRequestID })
	return changes, nil
}

// compare returns the number of patch operations between before and after.
// A nil before counts as one operation (an addition).
func compare(before, after any) (int, error) {
	if before == nil {
		return 1, nil
	}
	a, err := json.Marshal(before)
	if err != nil {
		return 0, err
	}
	b, err := json.Marshal(after)
	if err != nil {
		return 0, err
	}
	patch, err := jsondiff.CompareJSON(a, b)
	if err != nil {
		return 0, err
	}
	return len(patch), nil
}

func stamp(current, prev time.Time, changed bool, now time.Time) time.Time {
	if !changed {
		if current.IsZero() || current.Before(prev) {
			return prev
		}
		return current
	}
	if current.After(prev) && !current.IsZero() {
		return current
	}
	return now
}
