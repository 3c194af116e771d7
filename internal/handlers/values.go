package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"ttl-cache-store/internal/codec"
)

// decodeJSONValue parses a request value. Integral numbers become int64 and
// everything else keeps its natural JSON kind.
func decodeJSONValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return fromJSON(v)
}

func fromJSON(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s out of range", x)
		}
		return f, nil
	case []any:
		for i := range x {
			el, err := fromJSON(x[i])
			if err != nil {
				return nil, err
			}
			x[i] = el
		}
		return x, nil
	case map[string]any:
		for k, el := range x {
			conv, err := fromJSON(el)
			if err != nil {
				return nil, err
			}
			x[k] = conv
		}
		return x, nil
	}
	return v, nil
}

// toJSON renders a decoded cache value in a form encoding/json accepts.
// Symbols become strings, times RFC 3339 strings and non-string map keys
// their %v rendering.
func toJSON(v any) any {
	switch x := v.(type) {
	case codec.Symbol:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Sprint(x)
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = toJSON(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = toJSON(el)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[fmt.Sprint(toJSON(k))] = toJSON(el)
		}
		return out
	}
	return v
}
