package update

import "errors"

var (
	ErrInvalidMetadata = errors.New("invalid update metadata")
	ErrShortRecord     = errors.New("update record is missing fields")
	ErrApplyPanic      = errors.New("update apply panicked")
)
