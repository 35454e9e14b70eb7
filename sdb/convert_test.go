package sdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetInteger_SameWidthRoundTrips(t *testing.T) {
	b, err := NewInt32Buffer("/v", make([]byte, 4*3), 3, true, true, 0)
	require.NoError(t, err)
	require.NoError(t, PutInteger(b, 0, -100, -1000, 1000))
	v, err := GetInteger(b, 0, -1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), v)
}

func TestPutInteger_StringBufferRejected(t *testing.T) {
	b, err := NewStringBuffer("/v", []string{"a"})
	require.NoError(t, err)
	assert.Error(t, PutInteger(b, 0, 1, 0, 10))
}

func TestPutInteger_NarrowingWithoutDoConversionFails(t *testing.T) {
	b, err := NewInt8Buffer("/v", make([]byte, 1), 1, false, false, 0)
	require.NoError(t, err)
	assert.Error(t, PutInteger(b, 0, 1, 0, 1023)) // wire range wider than int8, do-conversion false
}

func TestPutInteger_NarrowingWithDoConversionSucceedsInRange(t *testing.T) {
	b, err := NewInt8Buffer("/v", make([]byte, 1), 1, true, true, 0)
	require.NoError(t, err)
	require.NoError(t, PutInteger(b, 0, 100, 0, 1023))
	v, err := GetInteger(b, 0, 0, 1023)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func TestPutInteger_NarrowingOutOfRangeRejected(t *testing.T) {
	b, err := NewInt8Buffer("/v", make([]byte, 1), 1, true, true, 0)
	require.NoError(t, err)
	assert.Error(t, PutInteger(b, 0, 1000, 0, 1023)) // out of int8 range even with conversion allowed
}

func TestPutInteger_IntoFloatBufferRequiresDoConversion(t *testing.T) {
	noConv, err := NewFloat64Buffer("/v", make([]byte, 8), 1, false, false, 0)
	require.NoError(t, err)
	assert.Error(t, PutInteger(noConv, 0, 5, 0, 10))

	withConv, err := NewFloat64Buffer("/v", make([]byte, 8), 1, true, true, 0)
	require.NoError(t, err)
	require.NoError(t, PutInteger(withConv, 0, 5, 0, 10))
	v, err := GetFloat(withConv, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestPutGetFloat_Float64ToFloat32WireRequiresDoConversionOnNarrowing(t *testing.T) {
	b, err := NewFloat64Buffer("/v", make([]byte, 8), 1, false, false, 0)
	require.NoError(t, err)
	require.NoError(t, PutFloat(b, 0, 3.5, 32)) // widening 32->64 never needs conversion
	_, err = GetFloat(b, 0, 32)                 // narrowing 64->32 needs do-conversion
	assert.Error(t, err)
}

func TestPutGetFloat_RoundTrips64(t *testing.T) {
	b, err := NewFloat64Buffer("/v", make([]byte, 8), 1, true, true, 0)
	require.NoError(t, err)
	require.NoError(t, PutFloat(b, 0, 3.14159, 64))
	v, err := GetFloat(b, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, 3.14159, v)
}

func TestPutScaledGetScaledRaw_WithScalingAppliesFloatConversion(t *testing.T) {
	b, err := NewFloat64Buffer("/v", make([]byte, 8), 1, true, true, 0)
	require.NoError(t, err)
	require.NoError(t, PutScaled(b, 0, 1234, 0, 10000, 0.001, 0))
	v, err := GetFloat(b, 0, 64)
	require.NoError(t, err)
	assert.InDelta(t, 1.234, v, 1e-9)

	raw, err := GetScaledRaw(b, 0, 0, 10000, 0.001, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), raw)
}

func TestPutScaledGetScaledRaw_WithoutScalingUsesRawIntegerMatrix(t *testing.T) {
	b, err := NewInt64Buffer("/v", make([]byte, 8), 1, true, false, 0)
	require.NoError(t, err)
	require.NoError(t, PutScaled(b, 0, 9999, 0, 10000, 0.001, 0))
	raw, err := GetScaledRaw(b, 0, 0, 10000, 0.001, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9999), raw)
}

func TestGetScaledRaw_OutOfRangeAfterInverseScaleRejected(t *testing.T) {
	b, err := NewFloat64Buffer("/v", make([]byte, 8), 1, true, true, 0)
	require.NoError(t, err)
	require.NoError(t, PutFloat(b, 0, 999.0, 64)) // scale 0.001 over range [0,10000] -> raw would be 999000, out of range
	_, err = GetScaledRaw(b, 0, 0, 10000, 0.001, 0)
	assert.Error(t, err)
}

func TestPutGetString_RoundTrips(t *testing.T) {
	b, err := NewStringBuffer("/v", make([]string, 2))
	require.NoError(t, err)
	require.NoError(t, PutString(b, 0, "hello"))
	require.NoError(t, PutString(b, 1, ""))

	v0, err := GetString(b, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", v0)
	v1, err := GetString(b, 1)
	require.NoError(t, err)
	assert.Equal(t, "", v1)
}

func TestPutString_NonStringBufferRejected(t *testing.T) {
	b, err := NewInt32Buffer("/v", make([]byte, 4), 1, true, true, 0)
	require.NoError(t, err)
	assert.Error(t, PutString(b, 0, "x"))
}

func TestGetString_NonStringBufferRejected(t *testing.T) {
	b, err := NewInt32Buffer("/v", make([]byte, 4), 1, true, true, 0)
	require.NoError(t, err)
	_, err = GetString(b, 0)
	assert.Error(t, err)
}
