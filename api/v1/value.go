package v1

import (
	"fmt"
	"reflect"
)

// ValueType identifies the populated variant of a Value. The numeric codes
// match the feature-store ValueType enum so they can travel in serialized
// entity keys unchanged.
type ValueType int32

const (
	ValueTypeInvalid           ValueType = 0
	ValueTypeBytes             ValueType = 1
	ValueTypeString            ValueType = 2
	ValueTypeInt32             ValueType = 3
	ValueTypeInt64             ValueType = 4
	ValueTypeDouble            ValueType = 5
	ValueTypeFloat             ValueType = 6
	ValueTypeBool              ValueType = 7
	ValueTypeUnixTimestamp     ValueType = 8
	ValueTypeBytesList         ValueType = 11
	ValueTypeStringList        ValueType = 12
	ValueTypeInt32List         ValueType = 13
	ValueTypeInt64List         ValueType = 14
	ValueTypeDoubleList        ValueType = 15
	ValueTypeFloatList         ValueType = 16
	ValueTypeBoolList          ValueType = 17
	ValueTypeUnixTimestampList ValueType = 18
	ValueTypeNull              ValueType = 19
)

var valueTypeNames = map[ValueType]string{
	ValueTypeInvalid:           "INVALID",
	ValueTypeBytes:             "BYTES",
	ValueTypeString:            "STRING",
	ValueTypeInt32:             "INT32",
	ValueTypeInt64:             "INT64",
	ValueTypeDouble:            "DOUBLE",
	ValueTypeFloat:             "FLOAT",
	ValueTypeBool:              "BOOL",
	ValueTypeUnixTimestamp:     "UNIX_TIMESTAMP",
	ValueTypeBytesList:         "BYTES_LIST",
	ValueTypeStringList:        "STRING_LIST",
	ValueTypeInt32List:         "INT32_LIST",
	ValueTypeInt64List:         "INT64_LIST",
	ValueTypeDoubleList:        "DOUBLE_LIST",
	ValueTypeFloatList:         "FLOAT_LIST",
	ValueTypeBoolList:          "BOOL_LIST",
	ValueTypeUnixTimestampList: "UNIX_TIMESTAMP_LIST",
	ValueTypeNull:              "NULL",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ValueType(%d)", int32(t))
}

// IsList reports whether t is one of the list variants.
func (t ValueType) IsList() bool {
	return t >= ValueTypeBytesList && t <= ValueTypeUnixTimestampList
}

// Elem returns the scalar type of a list variant, or t itself for scalars.
func (t ValueType) Elem() ValueType {
	if t.IsList() {
		return t - 10
	}
	return t
}

// Value is a typed feature value. At most one variant is populated; the zero
// Value is null.
type Value struct {
	typ ValueType
	v   any
}

// NullValue returns a value with no populated variant.
func NullValue() Value { return Value{typ: ValueTypeNull} }

func BytesValue(b []byte) Value         { return Value{typ: ValueTypeBytes, v: b} }
func StringValue(s string) Value        { return Value{typ: ValueTypeString, v: s} }
func Int32Value(i int32) Value          { return Value{typ: ValueTypeInt32, v: i} }
func Int64Value(i int64) Value          { return Value{typ: ValueTypeInt64, v: i} }
func DoubleValue(f float64) Value       { return Value{typ: ValueTypeDouble, v: f} }
func FloatValue(f float32) Value        { return Value{typ: ValueTypeFloat, v: f} }
func BoolValue(b bool) Value            { return Value{typ: ValueTypeBool, v: b} }
func UnixTimestampValue(s int64) Value  { return Value{typ: ValueTypeUnixTimestamp, v: s} }
func BytesListValue(l [][]byte) Value   { return Value{typ: ValueTypeBytesList, v: l} }
func StringListValue(l []string) Value  { return Value{typ: ValueTypeStringList, v: l} }
func Int32ListValue(l []int32) Value    { return Value{typ: ValueTypeInt32List, v: l} }
func Int64ListValue(l []int64) Value    { return Value{typ: ValueTypeInt64List, v: l} }
func DoubleListValue(l []float64) Value { return Value{typ: ValueTypeDoubleList, v: l} }
func FloatListValue(l []float32) Value  { return Value{typ: ValueTypeFloatList, v: l} }
func BoolListValue(l []bool) Value      { return Value{typ: ValueTypeBoolList, v: l} }

// UnixTimestampListValue holds epoch seconds.
func UnixTimestampListValue(l []int64) Value {
	return Value{typ: ValueTypeUnixTimestampList, v: l}
}

// Type returns the populated variant, ValueTypeNull when none is.
func (v Value) Type() ValueType {
	if v.v == nil {
		return ValueTypeNull
	}
	return v.typ
}

// IsNull reports whether no variant is populated.
func (v Value) IsNull() bool {
	return v.v == nil
}

// Interface returns the populated variant as its Go native type
// (int64, string, []int64, ...), or nil.
func (v Value) Interface() any {
	return v.v
}

// Int64 returns the value of an INT64 or UNIX_TIMESTAMP variant.
func (v Value) Int64() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok
}

// Str returns the value of a STRING variant.
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Equal reports whether both values hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.Type() != o.Type() {
		return false
	}
	return reflect.DeepEqual(v.v, o.v)
}

func (v Value) String() string {
	if v.v == nil {
		return "null"
	}
	if b, ok := v.v.([]byte); ok {
		return fmt.Sprintf("%s(%x)", v.typ, b)
	}
	return fmt.Sprintf("%s(%v)", v.typ, v.v)
}
