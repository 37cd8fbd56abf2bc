package codec

import (
	"fmt"
	"math"

	"k8s.io/apimachinery/pkg/util/sets"

	v1 "github.com/zetareticula/kvfeast/api/v1"
	"github.com/zetareticula/kvfeast/internal/store"
)

// EncodeFeatureValues returns the native of each populated value keyed by
// feature name. Null values are left out.
func EncodeFeatureValues(values map[string]v1.Value) map[string]any {
	bins := make(map[string]any, len(values))
	for name, val := range values {
		native := val.Interface()
		if native == nil {
			continue
		}
		bins[name] = native
	}
	return bins
}

// BuildRecord places the feature bins under the feature view's storage name.
func BuildRecord(storageName string, bins map[string]any) store.Record {
	return store.Record{storageName: bins}
}

// DecodeResult projects rec on the feature view's field and returns the
// requested features. An empty requested list returns every feature. schema,
// when given, restores declared types. The bool is false when no requested
// feature is present.
func DecodeResult(storageName string, rec store.Record, requested []string, schema map[string]v1.ValueType) (map[string]v1.Value, bool, error) {
	if rec == nil {
		return nil, false, nil
	}
	raw, ok := rec[storageName]
	if !ok || raw == nil {
		return nil, false, nil
	}
	features, err := asStringMap(raw)
	if err != nil {
		return nil, false, fmt.Errorf("field %q: %w", storageName, err)
	}

	want := sets.New(requested...)
	out := make(map[string]v1.Value, len(features))
	for name, native := range features {
		if want.Len() > 0 && !want.Has(name) {
			continue
		}
		val, err := ValueFromNative(native, schema[name])
		if err != nil {
			return nil, false, fmt.Errorf("feature %q: %w", name, err)
		}
		if val.IsNull() {
			continue
		}
		out[name] = val
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

// asStringMap accepts the map shapes backends return for nested maps.
func asStringMap(raw any) (map[string]any, error) {
	switch m := raw.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			name, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string feature name %v", k)
			}
			out[name] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a feature map, got %T", raw)
}

// ValueFromNative converts a stored native back into a Value. When declared
// is a concrete type the native is converted to it; otherwise the type is
// inferred, with integers read as INT64 and floating point as DOUBLE.
func ValueFromNative(native any, declared v1.ValueType) (v1.Value, error) {
	if native == nil {
		return v1.NullValue(), nil
	}
	if declared == v1.ValueTypeInvalid || declared == v1.ValueTypeNull {
		declared = inferType(native)
	}

	if declared.IsList() {
		items, err := asSlice(native)
		if err != nil {
			return v1.Value{}, err
		}
		return listValue(items, declared.Elem())
	}
	return scalarValue(native, declared)
}

func inferType(native any) v1.ValueType {
	switch x := native.(type) {
	case string:
		return v1.ValueTypeString
	case []byte:
		return v1.ValueTypeBytes
	case bool:
		return v1.ValueTypeBool
	case int32:
		return v1.ValueTypeInt32
	case int, int8, int16, int64, uint8, uint16, uint32:
		return v1.ValueTypeInt64
	case float32:
		return v1.ValueTypeFloat
	case float64:
		return v1.ValueTypeDouble
	case []string:
		return v1.ValueTypeStringList
	case [][]byte:
		return v1.ValueTypeBytesList
	case []bool:
		return v1.ValueTypeBoolList
	case []int32:
		return v1.ValueTypeInt32List
	case []int64:
		return v1.ValueTypeInt64List
	case []float32:
		return v1.ValueTypeFloatList
	case []float64:
		return v1.ValueTypeDoubleList
	case []any:
		if len(x) == 0 {
			return v1.ValueTypeStringList
		}
		return inferType(x[0]) + 10
	}
	return v1.ValueTypeInvalid
}

func scalarValue(native any, typ v1.ValueType) (v1.Value, error) {
	switch typ {
	case v1.ValueTypeString:
		if s, ok := native.(string); ok {
			return v1.StringValue(s), nil
		}
	case v1.ValueTypeBytes:
		switch x := native.(type) {
		case []byte:
			return v1.BytesValue(x), nil
		case string:
			return v1.BytesValue([]byte(x)), nil
		}
	case v1.ValueTypeBool:
		switch x := native.(type) {
		case bool:
			return v1.BoolValue(x), nil
		case int:
			// Servers without a boolean particle store bools as 0/1.
			return v1.BoolValue(x != 0), nil
		case int64:
			return v1.BoolValue(x != 0), nil
		}
	case v1.ValueTypeInt32:
		if i, ok := toInt64(native); ok {
			if i < math.MinInt32 || i > math.MaxInt32 {
				return v1.Value{}, fmt.Errorf("%d overflows INT32", i)
			}
			return v1.Int32Value(int32(i)), nil
		}
	case v1.ValueTypeInt64:
		if i, ok := toInt64(native); ok {
			return v1.Int64Value(i), nil
		}
	case v1.ValueTypeUnixTimestamp:
		if i, ok := toInt64(native); ok {
			return v1.UnixTimestampValue(i), nil
		}
	case v1.ValueTypeFloat:
		if f, ok := toFloat64(native); ok {
			return v1.FloatValue(float32(f)), nil
		}
	case v1.ValueTypeDouble:
		if f, ok := toFloat64(native); ok {
			return v1.DoubleValue(f), nil
		}
	}
	return v1.Value{}, fmt.Errorf("cannot read %T as %s", native, typ)
}

func listValue(items []any, elem v1.ValueType) (v1.Value, error) {
	switch elem {
	case v1.ValueTypeString:
		out, err := convertItems(items, elem, func(v v1.Value) string { s, _ := v.Interface().(string); return s })
		return v1.StringListValue(out), err
	case v1.ValueTypeBytes:
		out, err := convertItems(items, elem, func(v v1.Value) []byte { b, _ := v.Interface().([]byte); return b })
		return v1.BytesListValue(out), err
	case v1.ValueTypeBool:
		out, err := convertItems(items, elem, func(v v1.Value) bool { b, _ := v.Interface().(bool); return b })
		return v1.BoolListValue(out), err
	case v1.ValueTypeInt32:
		out, err := convertItems(items, elem, func(v v1.Value) int32 { i, _ := v.Interface().(int32); return i })
		return v1.Int32ListValue(out), err
	case v1.ValueTypeInt64:
		out, err := convertItems(items, elem, func(v v1.Value) int64 { i, _ := v.Int64(); return i })
		return v1.Int64ListValue(out), err
	case v1.ValueTypeUnixTimestamp:
		out, err := convertItems(items, elem, func(v v1.Value) int64 { i, _ := v.Int64(); return i })
		return v1.UnixTimestampListValue(out), err
	case v1.ValueTypeFloat:
		out, err := convertItems(items, elem, func(v v1.Value) float32 { f, _ := v.Interface().(float32); return f })
		return v1.FloatListValue(out), err
	case v1.ValueTypeDouble:
		out, err := convertItems(items, elem, func(v v1.Value) float64 { f, _ := v.Interface().(float64); return f })
		return v1.DoubleListValue(out), err
	}
	return v1.Value{}, fmt.Errorf("unsupported list element type %s", elem)
}

func convertItems[T any](items []any, elem v1.ValueType, get func(v1.Value) T) ([]T, error) {
	out := make([]T, len(items))
	for i, item := range items {
		val, err := scalarValue(item, elem)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = get(val)
	}
	return out, nil
}

func asSlice(native any) ([]any, error) {
	switch x := native.(type) {
	case []any:
		return x, nil
	case []string:
		return toAny(x), nil
	case [][]byte:
		return toAny(x), nil
	case []bool:
		return toAny(x), nil
	case []int32:
		return toAny(x), nil
	case []int64:
		return toAny(x), nil
	case []float32:
		return toAny(x), nil
	case []float64:
		return toAny(x), nil
	}
	return nil, fmt.Errorf("expected a list, got %T", native)
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func toInt64(native any) (int64, bool) {
	switch x := native.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func toFloat64(native any) (float64, bool) {
	switch x := native.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
