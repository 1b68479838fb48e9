package wire

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_RoundTrip(t *testing.T) {
	var w Writer
	w.WriteUpdate([]byte(`{"type":"entry","entryID":1}`), "<p>one</p>")
	w.WriteUpdate([]byte(`{}`), "")
	w.WriteUpdate([]byte(`{"type":"banner"}`), "<div>ü</div>")

	rd := NewReader(UpdateSchema, nil)
	records, err := rd.Scan(w.Bytes())
	require.NoError(t, err)
	require.Len(t, records, 3)

	consumed := 0
	prev := 0
	for _, rec := range records {
		consumed += rec.Next - prev
		prev = rec.Next
	}
	assert.Equal(t, len(w.Bytes()), consumed)
	assert.Equal(t, len(w.Bytes()), records[2].Next)

	got, err := records[2].Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`{"type":"banner"}`, "<div>ü</div>"}, got)
}

func TestScan_TwoUpdateRecords(t *testing.T) {
	buf := []byte{}
	for _, html := range []string{"<p>", "<q>"} {
		buf = binary.LittleEndian.AppendUint32(buf, 2)
		buf = append(buf, "{}"...)
		buf = binary.LittleEndian.AppendUint32(buf, 3)
		buf = append(buf, html...)
	}

	records, err := NewReader(UpdateSchema, nil).Scan(buf)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestScan_EmptyPayload(t *testing.T) {
	records, err := NewReader(UpdateSchema, nil).Scan(nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadRecord_DeclaredLengthOverrun(t *testing.T) {
	buf := AppendUpdate(nil, []byte(`{}`), "<p>")
	buf = binary.LittleEndian.AppendUint32(buf, 1000)
	buf = append(buf, "short"...)

	rd := NewReader(UpdateSchema, nil)
	records, err := rd.Scan(buf)
	require.Error(t, err)
	assert.Nil(t, records, "no partial result on malformed payload")
	assert.True(t, errors.Is(err, ErrMalformedPayload))

	var me *MalformedError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, len(buf), me.Length)
}

func TestReadRecord_TruncatedPrefix(t *testing.T) {
	buf := AppendUpdate(nil, []byte(`{}`), "<p>")
	buf = append(buf, 0x01, 0x00)

	_, err := NewReader(UpdateSchema, nil).Scan(buf)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestReadRecord_FragmentSchema(t *testing.T) {
	var w Writer
	w.WriteFragment(42, "<table>a</table>")
	w.WriteFragment(7, "<table>b</table>")

	rd := NewReader(FragmentSchema, nil)
	rec, err := rd.ReadRecord(w.Bytes(), 0)
	require.NoError(t, err)

	id, err := rec.Uint(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)

	_, err = rec.Uint(1)
	assert.ErrorIs(t, err, ErrFieldIndex)

	next, err := rd.ReadRecord(w.Bytes(), rec.Next)
	require.NoError(t, err)
	id, _ = next.Uint(0)
	assert.Equal(t, uint32(7), id)
	assert.Equal(t, len(w.Bytes()), next.Next)
}

func TestLoad_StaggeredFieldsStayPaired(t *testing.T) {
	var calls atomic.Int32
	slowFirst := DecoderFunc(func(ctx context.Context, b []byte) (string, error) {
		if calls.Add(1) == 1 {
			time.Sleep(20 * time.Millisecond)
		}
		return string(b), nil
	})

	buf := AppendUpdate(nil, []byte(`{"n":1}`), "<p>1</p>")
	rec, err := NewReader(UpdateSchema, NewMaterializer(slowFirst)).ReadRecord(buf, 0)
	require.NoError(t, err)

	got, err := rec.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`{"n":1}`, "<p>1</p>"}, got)
}

func TestLoad_FailureIsAllOrNothing(t *testing.T) {
	boom := errors.New("boom")
	failHTML := DecoderFunc(func(ctx context.Context, b []byte) (string, error) {
		if string(b) == "<bad>" {
			return "", boom
		}
		return string(b), nil
	})

	buf := AppendUpdate(nil, []byte(`{}`), "<bad>")
	rec, err := NewReader(UpdateSchema, NewMaterializer(failHTML)).ReadRecord(buf, 0)
	require.NoError(t, err)

	got, err := rec.Load(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

func TestUTF8Decoder_ReplacesInvalid(t *testing.T) {
	s, err := UTF8Decoder{}.Decode(context.Background(), []byte{'a', 0xff, 'b'})
	require.NoError(t, err)
	assert.Equal(t, "a�b", s)
}

func TestUTF8Decoder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := UTF8Decoder{}.Decode(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
