package codec

import (
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaworks/opcua-runtime/internal/errs"
)

func variantOf(t *testing.T, v interface{}) *ua.Variant {
	t.Helper()
	variant, err := ua.NewVariant(v)
	require.NoError(t, err)
	return variant
}

func TestDecodeScalars(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"bool", true, true},
		{"int32", int32(42), int32(42)},
		{"float64", 3.25, 3.25},
		{"string", "hello", "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(variantOf(t, tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeNilVariantFails(t *testing.T) {
	_, err := Decode(nil)
	assert.True(t, errs.Is(err, errs.UnsupportedType))
}

func TestDecodeUnwrapsSingleElementArray(t *testing.T) {
	got, err := Decode(variantOf(t, []int32{7}))
	require.NoError(t, err)
	assert.Equal(t, int32(7), got)
}

func TestDecodeRejectsMultiElementArray(t *testing.T) {
	_, err := Decode(variantOf(t, []int32{1, 2}))
	assert.True(t, errs.Is(err, errs.UnsupportedType))
}

func TestDecodeDateTimeAsUnixMillis(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := Decode(variantOf(t, now))
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), got)
}

func TestEncodeAutoPicksNarrowestInt(t *testing.T) {
	v, err := Encode(int64(10), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(10), v.Value())

	v, err = Encode(int64(1<<40), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), v.Value())
}

func TestEncodeAsNarrowsWithinRange(t *testing.T) {
	k := KindInt16
	v, err := Encode(int64(100), &k)
	require.NoError(t, err)
	assert.Equal(t, int16(100), v.Value())
}

func TestEncodeAsRejectsOutOfRange(t *testing.T) {
	k := KindInt16
	_, err := Encode(int64(100000), &k)
	assert.True(t, errs.Is(err, errs.TypeMismatch))
}

func TestEncodeAsRejectsWrongNativeType(t *testing.T) {
	k := KindBool
	_, err := Encode("not a bool", &k)
	assert.True(t, errs.Is(err, errs.TypeMismatch))
}

func TestEncodeRoundTripFloat(t *testing.T) {
	k := KindFloat64
	v, err := Encode(float32(1.5), &k)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v.Value())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Float64", KindFloat64.String())
	assert.Equal(t, "Unknown", Kind(255).String())
}
