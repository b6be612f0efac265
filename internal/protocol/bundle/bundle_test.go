package bundle

import (
	"testing"
	"time"

	"dtn_chat/internal/model"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func newTestBundle(t *testing.T, payload []byte) *Bundle {
	t.Helper()
	b, err := New("dtn://alice.dtn/alicebob", "dtn://bob.dtn/bobalice", payload, time.Hour)
	require.NoError(t, err)
	return b
}

func TestMarshalParse(t *testing.T) {
	b := newTestBundle(t, []byte("payload"))
	data, err := b.Marshal()
	require.NoError(t, err)
	require.Equal(t, byte(cborIndefArray), data[0])
	require.Equal(t, byte(cborBreak), data[len(data)-1])

	got, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, uint64(Version), got.Primary.Version)
	require.Equal(t, "dtn://alice.dtn/alicebob", got.Primary.Source.String())
	require.Equal(t, "dtn://bob.dtn/bobalice", got.Primary.Destination.String())
	require.Equal(t, "dtn:none", got.Primary.ReportTo.String())
	require.Equal(t, b.Primary.CreationTime, got.Primary.CreationTime)

	pl, err := got.PayloadBlock()
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), pl.Data)
}

func TestParseEndpointID(t *testing.T) {
	eid, err := ParseEndpointID("ipn:12.3")
	require.NoError(t, err)
	require.Equal(t, "ipn:12.3", eid.String())

	_, err = ParseEndpointID("http://x")
	require.Error(t, err)
	_, err = ParseEndpointID("ipn:12")
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":        nil,
		"not cbor":     []byte{0xff, 0x00},
		"not array":    mustCBOR(t, map[string]int{"a": 1}),
		"only primary": mustCBOR(t, []any{[]any{7, 0, 0, []any{1, 0}, []any{1, 0}, []any{1, 0}, []uint64{0, 0}, 0}}),
		"bad version": mustCBOR(t, []any{
			[]any{6, 0, 0, []any{1, 0}, []any{1, 0}, []any{1, 0}, []uint64{0, 0}, 0},
			[]any{1, 1, 0, 0, []byte("x")},
		}),
		"short block": mustCBOR(t, []any{
			[]any{7, 0, 0, []any{1, 0}, []any{1, 0}, []any{1, 0}, []uint64{0, 0}, 0},
			[]any{1, 1, 0},
		}),
	} {
		_, err := Parse(data)
		require.ErrorIs(t, err, ErrMalformedBundle, name)
	}
}

func TestPayloadBlockMissing(t *testing.T) {
	b := newTestBundle(t, []byte("x"))
	b.Blocks[0].Type = 7
	_, err := b.PayloadBlock()
	require.ErrorIs(t, err, ErrMalformedBundle)
}

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	data, err := cbor.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDecapsulatePlain(t *testing.T) {
	adu := model.ApplicationDataUnit{
		Source:  "dtn://bob.dtn/bobalice",
		Flags:   model.FlagNormal,
		Payload: []byte(`{"message":"x","status":"00"}`),
	}
	payload, enc, err := Decapsulate(adu)
	require.NoError(t, err)
	require.False(t, enc)
	require.Equal(t, adu.Payload, payload)
}

func TestDecapsulateEncapsulated(t *testing.T) {
	container, err := Encapsulate(newTestBundle(t, []byte("inner")), 42)
	require.NoError(t, err)

	payload, enc, err := Decapsulate(model.ApplicationDataUnit{
		Flags:   model.FlagEncapsulatedBundle,
		Payload: container,
	})
	require.NoError(t, err)
	require.True(t, enc)
	require.Equal(t, []byte("inner"), payload)
}

func TestDecapsulateMalformed(t *testing.T) {
	for name, payload := range map[string][]byte{
		"garbage":       []byte("definitely not cbor \xff"),
		"short":         mustCBOR(t, []any{1, 2}),
		"not bytes":     mustCBOR(t, []any{1, 2, "bundle"}),
		"corrupt inner": mustCBOR(t, []any{1, 2, []byte{0x9f, 0x01}}),
	} {
		_, enc, err := Decapsulate(model.ApplicationDataUnit{
			Flags:   model.FlagEncapsulatedBundle,
			Payload: payload,
		})
		require.True(t, enc, name)
		require.ErrorIs(t, err, ErrMalformedBundle, name)
	}
}
