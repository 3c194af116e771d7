// Package codec converts cached values to bytes and back.
//
// The format is a tagged binary encoding: every value is written as a one-byte
// kind tag followed by its body, recursively for sequences and maps. Symbols,
// strings, integers, floats and timestamps therefore come back as the exact kind
// they were stored as.
package codec

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"time"
)

// Symbol is a name-like scalar. It is stored with its own tag so it never
// decodes back as a plain string.
type Symbol string

var (
	// ErrCorruptPayload is returned by Decode when the bytes were not produced
	// by Encode or were altered or truncated.
	ErrCorruptPayload = errors.New("codec: corrupt payload")
	// ErrUnsupportedValue is returned by Encode for kinds outside the supported set.
	ErrUnsupportedValue = errors.New("codec: unsupported value")
)

const (
	magic   = "TC"
	version = 1

	// maxDepth bounds sequence/map nesting on both encode and decode.
	maxDepth = 512
)

const (
	tagNil byte = iota
	tagFalse
	tagTrue
	tagString
	tagSymbol
	tagInt
	tagFloat
	tagTime
	tagBytes
	tagSeq
	tagStringMap
	tagMap
)

var symbolType = reflect.TypeOf(Symbol(""))

// isScalarTag reports whether values with this tag can be used as map keys.
func isScalarTag(tag byte) bool {
	return tag < tagBytes
}

// Equal reports whether two values are equal once both are put in the shape
// Decode produces: integers compare as int64, float32 as float64, typed
// slices and maps as []any and map[string]any/map[any]any. Timestamps compare
// by instant, sequences and maps element by element, scalars with ==.
func Equal(a, b any) bool {
	return equal(normalize(a), normalize(b))
}

func equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || (x != x && y != y))
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, found := y[k]
			if !found || !equal(v, w) {
				return false
			}
		}
		return true
	case map[any]any:
		y, ok := b.(map[any]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, found := y[k]
			if !found || !equal(v, w) {
				return false
			}
		}
		return true
	}
	if b == nil || !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// normalize converts v, recursively, to the Go types Decode returns.
// Values Encode would reject are returned unchanged.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, Symbol, int64, float64, time.Time, []byte:
		return v
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = normalize(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = normalize(el)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(x))
		for k, el := range x {
			out[normalize(k)] = normalize(el)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		if rv.Type() == symbolType {
			return Symbol(rv.String())
		}
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if n := rv.Uint(); n <= math.MaxInt64 {
			return int64(n)
		}
		return v
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		keyType := rv.Type().Key()
		iter := rv.MapRange()
		if keyType.Kind() == reflect.String && keyType != symbolType {
			out := make(map[string]any, rv.Len())
			for iter.Next() {
				out[iter.Key().String()] = normalize(iter.Value().Interface())
			}
			return out
		}
		out := make(map[any]any, rv.Len())
		for iter.Next() {
			out[normalize(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}
