package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Context carries the extra template variables of a notice. Values must be
// render-safe so that a context can be queued and rendered later:
// nil, bool, numbers, strings, time.Time, Ref, and slices or maps of those.
type Context map[string]any

// Validate returns ErrInvalidContext if any value is not render-safe.
func (c Context) Validate() error {
	for k, v := range c {
		if err := checkValue(v, 0); err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrInvalidContext, k, err)
		}
	}
	return nil
}

// maxDepth bounds nested slices and maps.
const maxDepth = 16

func checkValue(v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("nested deeper than %d levels", maxDepth)
	}
	switch x := v.(type) {
	case nil, bool, string, json.Number, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case float32:
		return checkFloat(float64(x))
	case float64:
		return checkFloat(x)
	case Ref:
		return x.Validate()
	case UserID:
		return nil
	case []string:
		return nil
	case []any:
		for i, e := range x {
			if err := checkValue(e, depth+1); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	case map[string]any:
		for k, e := range x {
			if err := checkValue(e, depth+1); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		return nil
	case Context:
		return checkValue(map[string]any(x), depth)
	}
	return fmt.Errorf("unsupported value type %T", v)
}

// checkFloat rejects values JSON cannot carry.
func checkFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("unsupported number %v", f)
	}
	return nil
}

// Clone returns a shallow copy that is safe to extend.
func (c Context) Clone() Context {
	out := make(Context, len(c)+4)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// timeKey marks a time.Time in a stored context.
const timeKey = "$time"

// MarshalJSON wraps time.Time values in a "$time" envelope so that a queued
// context renders the same as one dispatched immediately.
func (c Context) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = encodeTimes(v)
	}
	return json.Marshal(out)
}

func encodeTimes(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]string{timeKey: x.Format(time.RFC3339Nano)}
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = encodeTimes(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = encodeTimes(e)
		}
		return out
	case Context:
		return encodeTimes(map[string]any(x))
	}
	return v
}

// UnmarshalJSON decodes numbers as json.Number and turns "$ref" and "$time"
// envelopes back into Ref and time.Time values.
func (c *Context) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(Context, len(raw))
	for k, v := range raw {
		out[k] = decodeRefs(v)
	}
	*c = out
	return nil
}

func decodeRefs(v any) any {
	switch x := v.(type) {
	case []any:
		for i := range x {
			x[i] = decodeRefs(x[i])
		}
		return x
	case map[string]any:
		if body, ok := x["$ref"].(map[string]any); ok && len(x) == 1 {
			kind, _ := body["kind"].(string)
			id, _ := body["id"].(string)
			return Ref{Kind: kind, ID: id}
		}
		if raw, ok := x[timeKey].(string); ok && len(x) == 1 {
			if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				return t
			}
		}
		for k := range x {
			x[k] = decodeRefs(x[k])
		}
		return x
	}
	return v
}
