package wire

import (
	"encoding/binary"
	"math"
)

// AppendBytesField appends a length-prefixed field.
func AppendBytesField(dst, b []byte) []byte {
	if uint64(len(b)) > math.MaxUint32 {
		panic("wire: field larger than 4GiB")
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// AppendUpdate appends one UpdateSchema record.
func AppendUpdate(dst, metadata []byte, html string) []byte {
	dst = AppendBytesField(dst, metadata)
	return AppendBytesField(dst, []byte(html))
}

// AppendFragment appends one FragmentSchema record.
func AppendFragment(dst []byte, commentID uint32, html string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, commentID)
	return AppendBytesField(dst, []byte(html))
}

// Writer accumulates records into one payload.
type Writer struct {
	buf     []byte
	records int
}

func (w *Writer) WriteUpdate(metadata []byte, html string) {
	w.buf = AppendUpdate(w.buf, metadata, html)
	w.records++
}

func (w *Writer) WriteFragment(commentID uint32, html string) {
	w.buf = AppendFragment(w.buf, commentID, html)
	w.records++
}

// Records returns the number of records written so far.
func (w *Writer) Records() int {
	return w.records
}

// Bytes returns the payload. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

