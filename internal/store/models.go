package store

import "time"

// Fixture is the YAML document describing server-side review state.
type Fixture struct {
	ReviewRequests []ReviewRequest `yaml:"review_requests" json:"review_requests"`
}

type ReviewRequest struct {
	ID         string      `yaml:"id" json:"id"`
	Entries    []Entry     `yaml:"entries" json:"entries"`
	Components []Component `yaml:"components" json:"components"`
	Fragments  []Fragment  `yaml:"fragments" json:"fragments"`
}

// Entry is one updatable page entry, such as a review or a status block.
type Entry struct {
	ID               string         `yaml:"id" json:"id"`
	Type             string         `yaml:"type" json:"type"`
	UpdatedTimestamp time.Time      `yaml:"updated_timestamp" json:"-"`
	ModelData        map[string]any `yaml:"model_data" json:"model_data,omitempty"`
	HTML             string         `yaml:"html" json:"html"`
}

// Component is a page-level element addressed by name alone.
type Component struct {
	Name             string         `yaml:"name" json:"name"`
	UpdatedTimestamp time.Time      `yaml:"updated_timestamp" json:"-"`
	ModelData        map[string]any `yaml:"model_data" json:"model_data,omitempty"`
	HTML             string         `yaml:"html" json:"html"`
}

// Fragment is the rendered diff excerpt for one comment.
type Fragment struct {
	CommentID uint32 `yaml:"comment_id" json:"comment_id"`
	FileID    string `yaml:"file_id" json:"file_id"`
	HTML      string `yaml:"html" json:"html"`
}

// EntryKey identifies an entry within a review request.
func EntryKey(typeID, id string) string {
	return typeID + ":" + id
}
