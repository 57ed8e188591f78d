package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestU32ValueRoundTrip(t *testing.T) {
	v := U32Value(123456)
	require.True(t, v.IsU32())
	n, err := v.AsU32()
	require.NoError(t, err)
	require.Equal(t, uint32(123456), n)
}

func TestBoolValueIdentity(t *testing.T) {
	require.Equal(t, TrueValue, BoolValue(true))
	require.Equal(t, FalseValue, BoolValue(false))

	b, err := TrueValue.AsBool()
	require.NoError(t, err)
	require.True(t, b)
}

func TestAsU32RejectsWrongTag(t *testing.T) {
	_, err := StringRefValue(1).AsU32()
	var mismatch *InvalidTypeError
	require.ErrorAs(t, err, &mismatch)
}

func TestMemSliceValuePackAndUnpack(t *testing.T) {
	v, err := MemSliceValue(10, 20)
	require.NoError(t, err)
	require.True(t, v.IsMemSlice())

	offset, size, err := v.AsMemSlice()
	require.NoError(t, err)
	require.Equal(t, uint32(10), offset)
	require.Equal(t, uint32(20), size)
}

func TestMemSliceValueRejectsOversizedFields(t *testing.T) {
	_, err := MemSliceValue(1<<25, 0)
	require.Error(t, err)

	_, err = MemSliceValue(0, 1<<25)
	require.Error(t, err)
}

func TestMemSliceDoesNotCollideWithScalarTags(t *testing.T) {
	v, err := MemSliceValue(0, 0)
	require.NoError(t, err)
	require.False(t, v.IsU32())
	require.False(t, v.IsStringRef())
	require.False(t, v.IsBool())
}
