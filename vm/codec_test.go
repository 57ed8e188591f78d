package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeU32VariableWidth(t *testing.T) {
	for _, n := range []uint32{0, 1, 255, 256, 65535, 65536, 4294967295} {
		var buf bytes.Buffer
		require.NoError(t, encodeU32(&buf, n))
		got, err := decodeU32(&buf)
		require.NoError(t, err)
		require.Equal(t, n, got)
	}
}

func TestEncodeDecodeStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeString(&buf, "hello world"))
	got, err := decodeString(&buf)
	require.NoError(t, err)
	require.Equal(t, "hello world", got)
}

func TestEncodeStringTooBigFails(t *testing.T) {
	var buf bytes.Buffer
	huge := strings.Repeat("a", maxStringBytes+1)
	err := encodeString(&buf, huge)
	require.ErrorIs(t, err, ErrStorageSizeTooBig)
}

func TestDecodeTaskRejectsInvalidStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeU32(&buf, 0))
	require.NoError(t, encodeString(&buf, "title"))
	require.NoError(t, encodeU8(&buf, 99))
	require.NoError(t, encodeString(&buf, ""))

	_, err := decodeTask(&buf)
	var invalidStatus *InvalidStatusError
	require.ErrorAs(t, err, &invalidStatus)
}

func TestDecodeRejectsTaskCountOverLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeU32(&buf, maxTaskCount+1))

	var data StorageData
	err := data.Decode(&buf)
	require.ErrorIs(t, err, ErrStorageSizeTooBig)
}

func TestStorageDataEncodeDecodeRoundTrip(t *testing.T) {
	data := StorageData{
		Tasks: []Task{
			{ID: 0, Title: "first", Status: NotComplete, Instructions: "PUSH_U32 1"},
			{ID: 2, Title: "third", Status: Complete, Instructions: ""},
		},
		NextID: 3,
	}
	var buf bytes.Buffer
	require.NoError(t, data.Encode(&buf))

	var decoded StorageData
	require.NoError(t, decoded.Decode(&buf))
	require.Equal(t, data, decoded)
}
