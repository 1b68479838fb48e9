package wire

import (
	"context"
	"encoding/binary"
)

const (
	// lenWidth is the width of every length prefix and every fixed integer field.
	lenWidth = 4
)

// FieldKind is the wire representation of one field inside a record.
type FieldKind int

const (
	// FieldBytes is a little-endian u32 length followed by that many bytes.
	FieldBytes FieldKind = iota
	// FieldUint32 is a raw little-endian u32 with no length prefix.
	FieldUint32
)

// Schema is the fixed, ordered field layout shared by every record of a payload.
type Schema []FieldKind

var (
	// UpdateSchema is [len][metadata JSON][len][HTML].
	UpdateSchema = Schema{FieldBytes, FieldBytes}

	// FragmentSchema is [comment id][len][HTML].
	FragmentSchema = Schema{FieldUint32, FieldBytes}
)

// Record is one scanned record. Byte fields are sub-slices of the scanned
// buffer; nothing is decoded until Load is called.
type Record struct {
	// Next is the offset of the byte following this record.
	Next int

	ints   []uint32
	fields [][]byte
	mat    *Materializer
}

// Uint returns the i-th fixed integer field in schema order.
func (r Record) Uint(i int) (uint32, error) {
	if i < 0 || i >= len(r.ints) {
		return 0, ErrFieldIndex
	}
	return r.ints[i], nil
}

// Load materializes every byte field. It returns all of them in field order
// or an error, never a partial result.
func (r Record) Load(ctx context.Context) ([]string, error) {
	return r.mat.MaterializeAll(ctx, r.fields)
}

// Reader scans payloads laid out with a single Schema.
type Reader struct {
	schema Schema
	mat    *Materializer
}

// NewReader creates a Reader. A nil materializer uses DefaultMaterializer.
func NewReader(schema Schema, mat *Materializer) *Reader {
	if mat == nil {
		mat = DefaultMaterializer
	}
	return &Reader{schema: schema, mat: mat}
}

// ReadRecord reads one record starting at offset. Next is known as soon as
// the call returns, so the caller can keep scanning without waiting on Load.
func (rd *Reader) ReadRecord(buf []byte, offset int) (Record, error) {
	rec := Record{mat: rd.mat}
	pos := offset

	for _, kind := range rd.schema {
		if pos < 0 || pos+lenWidth > len(buf) {
			return Record{}, &MalformedError{Offset: pos, Declared: lenWidth, Length: len(buf)}
		}
		v := binary.LittleEndian.Uint32(buf[pos : pos+lenWidth])

		switch kind {
		case FieldUint32:
			rec.ints = append(rec.ints, v)
			pos += lenWidth

		case FieldBytes:
			start := pos + lenWidth
			// int64 so a huge declared length cannot wrap on 32-bit platforms
			end := int64(start) + int64(v)
			if end > int64(len(buf)) {
				return Record{}, &MalformedError{Offset: pos, Declared: lenWidth + int(v), Length: len(buf)}
			}
			rec.fields = append(rec.fields, buf[start:int(end):int(end)])
			pos = int(end)
		}
	}

	rec.Next = pos
	return rec, nil
}

// Scan reads every record of buf. A malformed record aborts the whole scan
// and no records are returned.
func (rd *Reader) Scan(buf []byte) ([]Record, error) {
	var records []Record
	for pos := 0; pos < len(buf); {
		rec, err := rd.ReadRecord(buf, pos)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		pos = rec.Next
	}
	return records, nil
}
