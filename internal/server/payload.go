package server

import (
	"fmt"

	"github.com/dgnsrekt/reviewsync/internal/store"
	"github.com/dgnsrekt/reviewsync/internal/update"
	"github.com/dgnsrekt/reviewsync/internal/watch"
	"github.com/dgnsrekt/reviewsync/internal/wire"
)

// BuildUpdatePayload encodes the components of a review request, followed by
// the entries named in entriesQuery, as an update payload.
func BuildUpdatePayload(s store.Store, reviewRequestID, entriesQuery string) ([]byte, error) {
	components, err := s.Components(reviewRequestID)
	if err != nil {
		return nil, err
	}
	entries, err := s.Entries(reviewRequestID, watch.ParseEntriesQuery(entriesQuery))
	if err != nil {
		return nil, err
	}

	var w wire.Writer
	for _, c := range components {
		meta, err := update.EncodeMetadata(&update.ComponentUpdate{
			Name:             c.Name,
			UpdatedTimestamp: c.UpdatedTimestamp,
			ModelData:        c.ModelData,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding component %s: %w", c.Name, err)
		}
		w.WriteUpdate(meta, c.HTML)
	}
	for _, e := range entries {
		meta, err := update.EncodeMetadata(&update.EntryUpdate{
			EntryID:          e.ID,
			EntryType:        e.Type,
			UpdatedTimestamp: e.UpdatedTimestamp,
			ModelData:        e.ModelData,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding entry %s: %w", store.EntryKey(e.Type, e.ID), err)
		}
		w.WriteUpdate(meta, e.HTML)
	}
	return w.Bytes(), nil
}

// BuildFragmentPayload encodes the requested diff comment fragments. Unknown
// comment ids are left out.
func BuildFragmentPayload(s store.Store, reviewRequestID string, commentIDs []uint32) ([]byte, int, error) {
	frags, err := s.Fragments(reviewRequestID, commentIDs)
	if err != nil {
		return nil, 0, err
	}

	var w wire.Writer
	for _, f := range frags {
		w.WriteFragment(f.CommentID, f.HTML)
	}
	return w.Bytes(), w.Records(), nil
}
