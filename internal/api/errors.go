package api

import "errors"

var (
	ErrNotFound    = errors.New("review request or resource not found")
	ErrRateLimited = errors.New("rate limited by server")
	ErrForbidden   = errors.New("access to review request denied")
)
