package wire

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sourcegraph/conc/iter"
)

// Decoder turns one byte range into text.
type Decoder interface {
	Decode(ctx context.Context, b []byte) (string, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, b []byte) (string, error)

func (f DecoderFunc) Decode(ctx context.Context, b []byte) (string, error) {
	return f(ctx, b)
}

// UTF8Decoder decodes UTF-8, replacing invalid sequences with U+FFFD.
type UTF8Decoder struct{}

func (UTF8Decoder) Decode(ctx context.Context, b []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError)), nil
}

// Materializer decodes the byte fields of a record.
type Materializer struct {
	decoder Decoder
}

// DefaultMaterializer decodes with UTF8Decoder.
var DefaultMaterializer = NewMaterializer(UTF8Decoder{})

func NewMaterializer(d Decoder) *Materializer {
	if d == nil {
		d = UTF8Decoder{}
	}
	return &Materializer{decoder: d}
}

// MaterializeAll decodes every field concurrently and returns the results in
// field order once all of them have finished. Any failure discards the rest.
func (m *Materializer) MaterializeAll(ctx context.Context, fields [][]byte) ([]string, error) {
	out, err := iter.MapErr(fields, func(b *[]byte) (string, error) {
		return m.decoder.Decode(ctx, *b)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
