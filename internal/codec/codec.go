// Package codec converts between native Go scalar values and the OPC UA
// wire type system (github.com/gopcua/opcua/ua.Variant). It is pure and
// stateless: no connection, no I/O, just encode/decode.
package codec

import (
	"fmt"
	"math"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/scadaworks/opcua-runtime/internal/errs"
)

// Kind identifies a wire scalar type the codec understands.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
	KindDateTime
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindInt16:
		return "Int16"
	case KindUint16:
		return "Uint16"
	case KindInt32:
		return "Int32"
	case KindUint32:
		return "Uint32"
	case KindInt64:
		return "Int64"
	case KindUint64:
		return "Uint64"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindDateTime:
		return "DateTime"
	default:
		return "Unknown"
	}
}

// Decode converts a *ua.Variant into a native Go value. A single-element
// array is unwrapped and the element type is decoded recursively, per
// the common server idiom of wrapping scalars in a length-1 array. Any
// other array, or an unrecognized structured type, fails with
// errs.UnsupportedType.
func Decode(v *ua.Variant) (interface{}, error) {
	if v == nil {
		return nil, errs.New(errs.UnsupportedType, "nil variant")
	}
	raw := v.Value()
	return decodeNative(raw)
}

func decodeNative(raw interface{}) (interface{}, error) {
	switch tv := raw.(type) {
	case bool:
		return tv, nil
	case int8:
		return int64(tv), nil
	case uint8:
		return int64(tv), nil
	case int16:
		return tv, nil
	case uint16:
		return tv, nil
	case int32:
		return tv, nil
	case uint32:
		return tv, nil
	case int64:
		return tv, nil
	case uint64:
		return tv, nil
	case float32:
		return tv, nil
	case float64:
		return tv, nil
	case string:
		return tv, nil
	case []byte:
		return tv, nil
	case time.Time:
		return tv.UnixMilli(), nil
	default:
		return decodeArray(raw)
	}
}

// decodeArray unwraps a single-element slice into its element, recursing
// into decodeNative. Any slice whose length is not 1 is unsupported.
func decodeArray(raw interface{}) (interface{}, error) {
	switch tv := raw.(type) {
	case []bool:
		return unwrapOne(tv)
	case []int16:
		return unwrapOne(tv)
	case []uint16:
		return unwrapOne(tv)
	case []int32:
		return unwrapOne(tv)
	case []uint32:
		return unwrapOne(tv)
	case []int64:
		return unwrapOne(tv)
	case []uint64:
		return unwrapOne(tv)
	case []float32:
		return unwrapOne(tv)
	case []float64:
		return unwrapOne(tv)
	case []string:
		return unwrapOne(tv)
	case []time.Time:
		if len(tv) != 1 {
			return nil, errs.New(errs.UnsupportedType, fmt.Sprintf("array of %d time.Time values", len(tv)))
		}
		return tv[0].UnixMilli(), nil
	default:
		return nil, errs.New(errs.UnsupportedType, fmt.Sprintf("unsupported wire value %T", raw))
	}
}

func unwrapOne[T any](s []T) (interface{}, error) {
	if len(s) != 1 {
		return nil, errs.New(errs.UnsupportedType, fmt.Sprintf("array of %d %T values", len(s), *new(T)))
	}
	return decodeNative(s[0])
}

// Encode converts a native Go value into a *ua.Variant. If expected is
// non-nil the codec performs a best-effort widen/narrow to that wire
// kind (e.g. float32→float64, int64→int32 with range check) and fails
// with errs.TypeMismatch if the value cannot be represented. If expected
// is nil the codec auto-detects the wire kind from the native value's
// runtime type; integer promotion picks the narrowest signed type that
// fits, defaulting to Int32 within its range, else Int64.
func Encode(native interface{}, expected *Kind) (*ua.Variant, error) {
	if expected != nil {
		return encodeAs(native, *expected)
	}
	return encodeAuto(native)
}

func encodeAuto(native interface{}) (*ua.Variant, error) {
	switch v := native.(type) {
	case bool:
		return newVariant(v)
	case string:
		return newVariant(v)
	case []byte:
		return newVariant(v)
	case float32:
		return newVariant(v)
	case float64:
		return newVariant(v)
	case int:
		return encodeInt(int64(v))
	case int8:
		return encodeInt(int64(v))
	case int16:
		return encodeInt(int64(v))
	case int32:
		return encodeInt(int64(v))
	case int64:
		return encodeInt(v)
	case uint:
		return encodeInt(int64(v))
	case uint8:
		return encodeInt(int64(v))
	case uint16:
		return encodeInt(int64(v))
	case uint32:
		return encodeInt(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return newVariant(v)
		}
		return encodeInt(int64(v))
	default:
		return nil, errs.New(errs.UnsupportedType, fmt.Sprintf("cannot auto-detect wire type for %T", native))
	}
}

// encodeInt picks the narrowest signed wire type that fits v, defaulting
// to Int32 within its range else Int64.
func encodeInt(v int64) (*ua.Variant, error) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return newVariant(int32(v))
	}
	return newVariant(v)
}

func encodeAs(native interface{}, kind Kind) (*ua.Variant, error) {
	switch kind {
	case KindBool:
		b, ok := native.(bool)
		if !ok {
			return nil, mismatch(native, kind)
		}
		return newVariant(b)
	case KindInt16:
		i, ok := toInt64(native)
		if !ok || i < math.MinInt16 || i > math.MaxInt16 {
			return nil, mismatch(native, kind)
		}
		return newVariant(int16(i))
	case KindUint16:
		i, ok := toInt64(native)
		if !ok || i < 0 || i > math.MaxUint16 {
			return nil, mismatch(native, kind)
		}
		return newVariant(uint16(i))
	case KindInt32:
		i, ok := toInt64(native)
		if !ok || i < math.MinInt32 || i > math.MaxInt32 {
			return nil, mismatch(native, kind)
		}
		return newVariant(int32(i))
	case KindUint32:
		i, ok := toInt64(native)
		if !ok || i < 0 || i > math.MaxUint32 {
			return nil, mismatch(native, kind)
		}
		return newVariant(uint32(i))
	case KindInt64:
		i, ok := toInt64(native)
		if !ok {
			return nil, mismatch(native, kind)
		}
		return newVariant(i)
	case KindUint64:
		i, ok := toInt64(native)
		if !ok || i < 0 {
			return nil, mismatch(native, kind)
		}
		return newVariant(uint64(i))
	case KindFloat32:
		f, ok := toFloat64(native)
		if !ok {
			return nil, mismatch(native, kind)
		}
		return newVariant(float32(f))
	case KindFloat64:
		f, ok := toFloat64(native)
		if !ok {
			return nil, mismatch(native, kind)
		}
		return newVariant(f)
	case KindString:
		s, ok := native.(string)
		if !ok {
			return nil, mismatch(native, kind)
		}
		return newVariant(s)
	case KindBytes:
		b, ok := native.([]byte)
		if !ok {
			return nil, mismatch(native, kind)
		}
		return newVariant(b)
	case KindDateTime:
		switch t := native.(type) {
		case time.Time:
			return newVariant(t)
		case int64:
			return newVariant(time.UnixMilli(t))
		default:
			return nil, mismatch(native, kind)
		}
	default:
		return nil, errs.New(errs.UnsupportedType, fmt.Sprintf("unknown wire kind %v", kind))
	}
}

// toInt64 widens any native integer or float-with-no-fraction value to
// int64 for range checking against a narrower target.
func toInt64(native interface{}) (int64, bool) {
	switch v := native.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		if float32(int64(v)) != v {
			return 0, false
		}
		return int64(v), true
	case float64:
		if float64(int64(v)) != v {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func toFloat64(native interface{}) (float64, bool) {
	switch v := native.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		if i, ok := toInt64(native); ok {
			return float64(i), true
		}
		return 0, false
	}
}

func mismatch(native interface{}, kind Kind) *errs.Error {
	return errs.New(errs.TypeMismatch, fmt.Sprintf("cannot widen/narrow %T to %s", native, kind))
}

func newVariant(v interface{}) (*ua.Variant, error) {
	variant, err := ua.NewVariant(v)
	if err != nil {
		return nil, errs.Wrap(errs.UnsupportedType, "build variant", err)
	}
	return variant, nil
}
