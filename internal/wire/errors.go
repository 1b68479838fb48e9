package wire

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrFieldIndex       = errors.New("field index out of range")
)

// MalformedError describes a declared length or fixed-width field that runs
// past the end of the payload.
type MalformedError struct {
	Offset   int // offset of the offending length prefix or fixed field
	Declared int // bytes the field needs starting at Offset
	Length   int // total payload length
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: field at offset %d needs %d bytes, payload is %d bytes",
		ErrMalformedPayload, e.Offset, e.Declared, e.Length)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedPayload
}
