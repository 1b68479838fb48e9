package update

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TypeEntry is the metadata type addressing a page entry by id.
const TypeEntry = "entry"

// timestampLayouts are tried in order. The zoneless layout is what the review
// server emits for naive datetimes; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Update is the decoded metadata of one record. It is implemented only by
// *EntryUpdate and *ComponentUpdate.
type Update interface {
	// Scope is the notification scope: the entry type or the component name.
	Scope() string
	Timestamp() time.Time
	Model() map[string]any
	sealed()
}

// EntryUpdate targets one entry of the page's entry collection.
type EntryUpdate struct {
	EntryID          string
	EntryType        string
	UpdatedTimestamp time.Time
	ModelData        map[string]any
}

func (u *EntryUpdate) Scope() string         { return u.EntryType }
func (u *EntryUpdate) Timestamp() time.Time  { return u.UpdatedTimestamp }
func (u *EntryUpdate) Model() map[string]any { return u.ModelData }
func (*EntryUpdate) sealed()                 {}

// ComponentUpdate targets a page-level component addressed by name alone.
type ComponentUpdate struct {
	Name             string
	UpdatedTimestamp time.Time
	ModelData        map[string]any
}

func (u *ComponentUpdate) Scope() string         { return u.Name }
func (u *ComponentUpdate) Timestamp() time.Time  { return u.UpdatedTimestamp }
func (u *ComponentUpdate) Model() map[string]any { return u.ModelData }
func (*ComponentUpdate) sealed()                 {}

// EntryID is an entry identifier that may be sent as a JSON string or number.
type EntryID string

func (id *EntryID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("entryID must be a string or number: %w", err)
	}
	*id = EntryID(n.String())
	return nil
}

type metadataJSON struct {
	Type             string         `json:"type"`
	EntryID          *EntryID       `json:"entryID,omitempty"`
	EntryType        string         `json:"entryType,omitempty"`
	UpdatedTimestamp string         `json:"updatedTimestamp,omitempty"`
	ModelData        map[string]any `json:"modelData,omitempty"`
}

// DecodeMetadata parses the metadata field of an update record.
func DecodeMetadata(s string) (Update, error) {
	var raw metadataJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMetadata)
	}

	ts, err := parseTimestamp(raw.UpdatedTimestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	if raw.Type != TypeEntry {
		return &ComponentUpdate{
			Name:             raw.Type,
			UpdatedTimestamp: ts,
			ModelData:        raw.ModelData,
		}, nil
	}

	if raw.EntryID == nil || *raw.EntryID == "" {
		return nil, fmt.Errorf("%w: entry update without entryID", ErrInvalidMetadata)
	}
	return &EntryUpdate{
		EntryID:          string(*raw.EntryID),
		EntryType:        raw.EntryType,
		UpdatedTimestamp: ts,
		ModelData:        raw.ModelData,
	}, nil
}

// EncodeMetadata is the inverse of DecodeMetadata.
func EncodeMetadata(u Update) ([]byte, error) {
	raw := metadataJSON{ModelData: u.Model()}
	if ts := u.Timestamp(); !ts.IsZero() {
		raw.UpdatedTimestamp = ts.UTC().Format(time.RFC3339Nano)
	}

	switch u := u.(type) {
	case *EntryUpdate:
		id := EntryID(u.EntryID)
		raw.Type = TypeEntry
		raw.EntryID = &id
		raw.EntryType = u.EntryType
	case *ComponentUpdate:
		raw.Type = u.Name
	}
	return json.Marshal(raw)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable updatedTimestamp %q", s)
}
