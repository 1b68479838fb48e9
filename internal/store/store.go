package store

import "errors"

var (
	ErrNotFound         = errors.New("review request not found")
	ErrDuplicateRequest = errors.New("duplicate review request id")
)

// Store provides read access to review state.
type Store interface {
	// Entries returns entries of a review request. A nil filter returns all of
	// them; otherwise only entries whose type maps to a listed id.
	Entries(reviewRequestID string, filter map[string][]string) ([]Entry, error)

	// Components returns the page components of a review request.
	Components(reviewRequestID string) ([]Component, error)

	// Fragments returns fragments for the given comment ids in request order.
	// Unknown ids are skipped.
	Fragments(reviewRequestID string, commentIDs []uint32) ([]Fragment, error)

	// ReviewRequestIDs lists the loaded review requests.
	ReviewRequestIDs() []string

	// Fixture returns the loaded fixture. Callers must not modify it.
	Fixture() *Fixture

	Close() error
}
