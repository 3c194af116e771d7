package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"
)

// Encode serializes v. Integers are widened to int64 and float32 to float64;
// slices other than []byte become sequences and maps keep string keys apart
// from keys of any other scalar kind.
func Encode(v any) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, magic...)
	buf = append(buf, version)
	return appendValue(buf, v, 0)
}

func appendValue(buf []byte, v any, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedValue, maxDepth)
	}

	switch x := v.(type) {
	case nil:
		return append(buf, tagNil), nil
	case bool:
		if x {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil
	case string:
		return appendString(append(buf, tagString), x), nil
	case Symbol:
		return appendString(append(buf, tagSymbol), string(x)), nil
	case int:
		return appendInt(buf, int64(x)), nil
	case int8:
		return appendInt(buf, int64(x)), nil
	case int16:
		return appendInt(buf, int64(x)), nil
	case int32:
		return appendInt(buf, int64(x)), nil
	case int64:
		return appendInt(buf, x), nil
	case uint:
		return appendUint(buf, uint64(x))
	case uint8:
		return appendInt(buf, int64(x)), nil
	case uint16:
		return appendInt(buf, int64(x)), nil
	case uint32:
		return appendInt(buf, int64(x)), nil
	case uint64:
		return appendUint(buf, x)
	case float32:
		return appendFloat(buf, float64(x)), nil
	case float64:
		return appendFloat(buf, x), nil
	case time.Time:
		return appendTime(buf, x), nil
	case *time.Time:
		if x == nil {
			return append(buf, tagNil), nil
		}
		return appendTime(buf, *x), nil
	case []byte:
		buf = binary.AppendUvarint(append(buf, tagBytes), uint64(len(x)))
		return append(buf, x...), nil
	case []any:
		var err error
		buf = binary.AppendUvarint(append(buf, tagSeq), uint64(len(x)))
		for _, elem := range x {
			if buf, err = appendValue(buf, elem, depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var err error
		buf = binary.AppendUvarint(append(buf, tagStringMap), uint64(len(x)))
		for _, k := range keys {
			buf = appendString(buf, k)
			if buf, err = appendValue(buf, x[k], depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case map[any]any:
		pairs := make([]mapPair, 0, len(x))
		for k, val := range x {
			pairs = append(pairs, mapPair{key: k, value: val})
		}
		return appendMap(buf, pairs, depth)
	}
	return appendReflect(buf, reflect.ValueOf(v), depth)
}

// appendReflect handles named types and typed containers that the fast path
// in appendValue does not list.
func appendReflect(buf []byte, rv reflect.Value, depth int) ([]byte, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return append(buf, tagNil), nil
		}
		return appendValue(buf, rv.Elem().Interface(), depth)
	case reflect.Bool:
		return appendValue(buf, rv.Bool(), depth)
	case reflect.String:
		if rv.Type() == symbolType {
			return appendValue(buf, Symbol(rv.String()), depth)
		}
		return appendValue(buf, rv.String(), depth)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return appendInt(buf, rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return appendUint(buf, rv.Uint())
	case reflect.Float32, reflect.Float64:
		return appendFloat(buf, rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return append(buf, tagNil), nil
		}
		var err error
		buf = binary.AppendUvarint(append(buf, tagSeq), uint64(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			if buf, err = appendValue(buf, rv.Index(i).Interface(), depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case reflect.Map:
		if rv.IsNil() {
			return append(buf, tagNil), nil
		}
		keyType := rv.Type().Key()
		if keyType.Kind() == reflect.String && keyType != symbolType {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return appendValue(buf, m, depth)
		}
		pairs := make([]mapPair, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, mapPair{key: iter.Key().Interface(), value: iter.Value().Interface()})
		}
		return appendMap(buf, pairs, depth)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, rv.Interface())
}

type mapPair struct {
	key     any
	value   any
	encoded []byte
}

// appendMap writes a map with arbitrary scalar keys. Pairs are ordered by the
// encoded key so equal maps always produce equal bytes.
func appendMap(buf []byte, pairs []mapPair, depth int) ([]byte, error) {
	for i := range pairs {
		enc, err := appendValue(nil, pairs[i].key, depth+1)
		if err != nil {
			return nil, err
		}
		if !isScalarTag(enc[0]) {
			return nil, fmt.Errorf("%w: map key of type %T", ErrUnsupportedValue, pairs[i].key)
		}
		pairs[i].encoded = enc
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].encoded, pairs[j].encoded) < 0
	})

	var err error
	buf = binary.AppendUvarint(append(buf, tagMap), uint64(len(pairs)))
	for _, p := range pairs {
		buf = append(buf, p.encoded...)
		if buf, err = appendValue(buf, p.value, depth+1); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendInt(buf []byte, n int64) []byte {
	return binary.AppendVarint(append(buf, tagInt), n)
}

func appendUint(buf []byte, n uint64) ([]byte, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("%w: unsigned integer %d overflows int64", ErrUnsupportedValue, n)
	}
	return appendInt(buf, int64(n)), nil
}

func appendFloat(buf []byte, f float64) []byte {
	return binary.BigEndian.AppendUint64(append(buf, tagFloat), math.Float64bits(f))
}

// appendTime keeps the instant to the nanosecond plus the zone name and
// offset. The monotonic clock reading is not part of the value.
func appendTime(buf []byte, t time.Time) []byte {
	name, offset := t.Zone()
	buf = append(buf, tagTime)
	buf = binary.AppendVarint(buf, t.Unix())
	buf = binary.AppendUvarint(buf, uint64(t.Nanosecond()))
	buf = binary.AppendVarint(buf, int64(offset))
	return appendString(buf, name)
}
