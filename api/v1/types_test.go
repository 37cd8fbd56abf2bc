package v1

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	assert.True(t, Value{}.IsNull())
	assert.Equal(t, ValueTypeNull, Value{}.Type())
	assert.Equal(t, ValueTypeNull, NullValue().Type())
	assert.Equal(t, "null", NullValue().String())

	v := Int64Value(539)
	assert.Equal(t, ValueTypeInt64, v.Type())
	i, ok := v.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(539), i)
	_, ok = v.Str()
	assert.False(t, ok)
	assert.Equal(t, "INT64(539)", v.String())

	assert.True(t, StringListValue([]string{"a"}).Equal(StringListValue([]string{"a"})))
	assert.False(t, Int32Value(1).Equal(Int64Value(1)))
	assert.Equal(t, "BYTES(0102)", BytesValue([]byte{1, 2}).String())
}

func TestValueType(t *testing.T) {
	assert.True(t, ValueTypeFloatList.IsList())
	assert.False(t, ValueTypeNull.IsList())
	assert.Equal(t, ValueTypeFloat, ValueTypeFloatList.Elem())
	assert.Equal(t, ValueTypeUnixTimestamp, ValueTypeUnixTimestampList.Elem())
	assert.Equal(t, ValueTypeString, ValueTypeString.Elem())
	assert.Equal(t, "DOUBLE_LIST", ValueTypeDoubleList.String())
	assert.Equal(t, "ValueType(42)", ValueType(42).String())
}

func TestEntityKey(t *testing.T) {
	key := NewEntityKey("driver_id", Int64Value(1004), "customer_id", StringValue("c1"))
	require.Len(t, key.JoinKeys, 2)

	v, ok := key.Lookup("customer_id")
	assert.True(t, ok)
	assert.Equal(t, StringValue("c1"), v)
	_, ok = key.Lookup("rider_id")
	assert.False(t, ok)

	assert.Equal(t, "{driver_id=1004,customer_id=c1}", key.String())
}

func TestFeatureViewSchema(t *testing.T) {
	assert.Nil(t, FeatureView{Name: "fv"}.Schema())
	fv := FeatureView{Name: "fv", Features: []Field{{Name: "a", Type: ValueTypeFloat}}}
	assert.Equal(t, map[string]ValueType{"a": ValueTypeFloat}, fv.Schema())
}

func TestWriteReport(t *testing.T) {
	var report WriteReport
	assert.NoError(t, report.Err())

	boom := errors.New("boom")
	report.Record(0, "k0", nil)
	report.Record(1, "k1", boom)
	report.Record(2, "k2", nil)

	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Outcomes, 3)

	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "item 1 (key k1): boom")

	var nilReport *WriteReport
	assert.NoError(t, nilReport.Err())
}

func TestReadStatus(t *testing.T) {
	assert.Equal(t, "found", ReadFound.String())
	assert.Equal(t, "not_found", ReadNotFound.String())
	assert.Equal(t, "failed", ReadFailed.String())
	assert.Equal(t, "unknown", ReadStatus(9).String())
}
