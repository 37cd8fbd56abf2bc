package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Bin encoding for backends that store opaque bytes per bin (Redis hash
// fields, Cassandra blobs). Every value carries a type tag so that an int32
// reads back as int32 and a float32 as float32. NaN and infinities are
// written as the strings "NaN", "+Inf" and "-Inf".

const (
	tagNil     = "nil"
	tagString  = "s"
	tagBytes   = "b"
	tagBool    = "bool"
	tagInt32   = "i32"
	tagInt64   = "i64"
	tagFloat32 = "f32"
	tagFloat64 = "f64"
	tagList    = "list"
	tagMap     = "map"

	tagStrings  = "[]s"
	tagBytesArr = "[]b"
	tagBools    = "[]bool"
	tagInt32s   = "[]i32"
	tagInt64s   = "[]i64"
	tagFloat32s = "[]f32"
	tagFloat64s = "[]f64"
)

type taggedValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// MarshalBin encodes a bin value.
func MarshalBin(v any) ([]byte, error) {
	tv, err := tag(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tv)
}

// UnmarshalBin decodes a value written by MarshalBin.
func UnmarshalBin(data []byte) (any, error) {
	var tv taggedValue
	if err := json.Unmarshal(data, &tv); err != nil {
		return nil, fmt.Errorf("decode bin: %w", err)
	}
	return untag(tv)
}

func tag(v any) (taggedValue, error) {
	var t string
	switch x := v.(type) {
	case nil:
		return taggedValue{T: tagNil}, nil
	case string:
		t = tagString
	case []byte:
		t = tagBytes
	case bool:
		t = tagBool
	case int32:
		t = tagInt32
	case int64:
		t = tagInt64
	case int:
		t, v = tagInt64, int64(x)
	case float32:
		return wrap(tagFloat32, floatJSON(x))
	case float64:
		return wrap(tagFloat64, floatJSON(x))
	case []string:
		t = tagStrings
	case [][]byte:
		t = tagBytesArr
	case []bool:
		t = tagBools
	case []int32:
		t = tagInt32s
	case []int64:
		t = tagInt64s
	case []float32:
		return wrap(tagFloat32s, floatsJSON(x))
	case []float64:
		return wrap(tagFloat64s, floatsJSON(x))
	case []any:
		items := make([]taggedValue, len(x))
		for i, item := range x {
			tv, err := tag(item)
			if err != nil {
				return taggedValue{}, err
			}
			items[i] = tv
		}
		return wrap(tagList, items)
	case map[string]any:
		fields := make(map[string]taggedValue, len(x))
		for k, item := range x {
			tv, err := tag(item)
			if err != nil {
				return taggedValue{}, fmt.Errorf("field %q: %w", k, err)
			}
			fields[k] = tv
		}
		return wrap(tagMap, fields)
	default:
		return taggedValue{}, fmt.Errorf("unsupported bin value type %T", v)
	}
	return wrap(t, v)
}

func wrap(t string, v any) (taggedValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return taggedValue{}, err
	}
	return taggedValue{T: t, V: raw}, nil
}

func untag(tv taggedValue) (any, error) {
	switch tv.T {
	case tagNil:
		return nil, nil
	case tagString:
		return decodeAs[string](tv.V)
	case tagBytes:
		return decodeAs[[]byte](tv.V)
	case tagBool:
		return decodeAs[bool](tv.V)
	case tagInt32:
		return decodeAs[int32](tv.V)
	case tagInt64:
		return decodeAs[int64](tv.V)
	case tagFloat32:
		return decodeFloat[float32](tv.V)
	case tagFloat64:
		return decodeFloat[float64](tv.V)
	case tagStrings:
		return decodeAs[[]string](tv.V)
	case tagBytesArr:
		return decodeAs[[][]byte](tv.V)
	case tagBools:
		return decodeAs[[]bool](tv.V)
	case tagInt32s:
		return decodeAs[[]int32](tv.V)
	case tagInt64s:
		return decodeAs[[]int64](tv.V)
	case tagFloat32s:
		return decodeFloats[float32](tv.V)
	case tagFloat64s:
		return decodeFloats[float64](tv.V)
	case tagList:
		var items []taggedValue
		if err := json.Unmarshal(tv.V, &items); err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := untag(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case tagMap:
		var fields map[string]taggedValue
		if err := json.Unmarshal(tv.V, &fields); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			v, err := untag(item)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown bin tag %q", tv.T)
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func floatJSON[F float32 | float64](f F) any {
	switch g := float64(f); {
	case math.IsNaN(g):
		return "NaN"
	case math.IsInf(g, 1):
		return "+Inf"
	case math.IsInf(g, -1):
		return "-Inf"
	}
	return f
}

func floatsJSON[F float32 | float64](fs []F) any {
	if fs == nil {
		return fs
	}
	out := make([]any, len(fs))
	for i, f := range fs {
		out[i] = floatJSON(f)
	}
	return out
}

func parseFloat[F float32 | float64](raw json.RawMessage) (F, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || !(math.IsNaN(f) || math.IsInf(f, 0)) {
			return 0, fmt.Errorf("invalid float %q", s)
		}
		return F(f), nil
	}
	var f F
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

func decodeFloat[F float32 | float64](raw json.RawMessage) (any, error) {
	return parseFloat[F](raw)
}

func decodeFloats[F float32 | float64](raw json.RawMessage) (any, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return []F(nil), nil
	}
	out := make([]F, len(items))
	for i, item := range items {
		f, err := parseFloat[F](item)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
