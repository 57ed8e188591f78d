package vm

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func assembleOK(t *testing.T, src string) ([]byte, *StringPool, *InstructionsPool) {
	t.Helper()
	strs := NewStringPool()
	instrs := NewInstructionsPool()
	blob, err := Assemble(src, strs, instrs)
	require.NoError(t, err)
	return blob, strs, instrs
}

func TestAssembleDisassembleRoundTrip(t *testing.T) {
	cases := []string{
		"PUSH_U32 42",
		"PUSH_STRING hello",
		"PUSH_U32 1 PUSH_U32 2 EQ",
		"PUSH_U32 1 PUSH_U32 2 EQ IF PUSH_U32 1 THEN",
		"PUSH_STRING Parent PUSH_STATUS 2 PUSH_CALLDATA [ PUSH_STRING Child PUSH_STATUS 0 PUSH_CALLDATA [ ] T_CREATE END_CALL ] T_CREATE",
	}
	for _, src := range cases {
		blob, strs, instrs := assembleOK(t, src)
		out, err := Disassemble(blob, strs, instrs)
		require.NoError(t, err)
		require.Equal(t, normalizeSpace(src), normalizeSpace(out))
	}
}

func TestAssembleDisassembleAssembleProducesIdenticalBytes(t *testing.T) {
	src := "PUSH_STRING Parent PUSH_STATUS 2 PUSH_CALLDATA [ PUSH_STRING Child PUSH_STATUS 0 PUSH_CALLDATA [ ] T_CREATE END_CALL ] T_CREATE"
	blob, strs, instrs := assembleOK(t, src)
	out, err := Disassemble(blob, strs, instrs)
	require.NoError(t, err)

	strs2 := NewStringPool()
	instrs2 := NewInstructionsPool()
	blob2, err := Assemble(out, strs2, instrs2)
	require.NoError(t, err)
	if diff := cmp.Diff(blob, blob2); diff != "" {
		t.Fatalf("re-assembled bytes differ (-want +got):\n%s", diff)
	}
}

func TestInterningIsDuplicateFree(t *testing.T) {
	strs := NewStringPool()
	a := strs.Intern("same")
	b := strs.Intern("same")
	c := strs.Intern("different")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestAssembleEmptyInput(t *testing.T) {
	_, _, err := assembleErr(t, "")
	require.NoError(t, err) // assembling empty source is legal; EmptyInstructions is enforced by New
}

func TestAssembleUnknownOpcode(t *testing.T) {
	_, _, err := assembleErr(t, "INVALID_OP")
	var unknown *UnknownOpcodeError
	require.ErrorAs(t, err, &unknown)
}

func TestAssembleTruncatedPushU32(t *testing.T) {
	_, _, err := assembleErr(t, "PUSH_U32")
	var eoi *UnexpectedEOIError
	require.ErrorAs(t, err, &eoi)
}

func TestAssembleInvalidUint(t *testing.T) {
	_, _, err := assembleErr(t, "PUSH_U32 4294967296")
	var invalid *InvalidUINTError
	require.ErrorAs(t, err, &invalid)
}

func TestAssembleMalformedCalldataMissingBracket(t *testing.T) {
	_, _, err := assembleErr(t, "PUSH_CALLDATA PUSH_U32 1")
	var malformed *MalformedCalldataError
	require.ErrorAs(t, err, &malformed)
}

func TestAssembleUnterminatedCalldata(t *testing.T) {
	_, _, err := assembleErr(t, "PUSH_CALLDATA [ PUSH_U32 1")
	var eoi *UnexpectedEOIError
	require.ErrorAs(t, err, &eoi)
}

func TestAssembleMissingThen(t *testing.T) {
	_, _, err := assembleErr(t, "PUSH_U32 1 PUSH_U32 1 EQ IF PUSH_U32 3")
	var malformed *MalformedIfThenError
	require.ErrorAs(t, err, &malformed)
}

func TestAssembleThenWithoutIf(t *testing.T) {
	_, _, err := assembleErr(t, "PUSH_U32 1 PUSH_U32 1 EQ PUSH_U32 3 THEN")
	var malformed *MalformedIfThenError
	require.ErrorAs(t, err, &malformed)
}

func TestDisassemblerLenientOnOutOfRangeCalldataIndex(t *testing.T) {
	strs := NewStringPool()
	instrs := NewInstructionsPool()
	// PUSH_CALLDATA opcode byte followed by a 4-byte index that was never
	// interned into instrs.
	blob := []byte{byte(PushCalldata), 0, 0, 0, 99}
	out, err := Disassemble(blob, strs, instrs)
	require.NoError(t, err)
	require.Equal(t, "PUSH_CALLDATA [ ]", normalizeSpace(out))
}

func assembleErr(t *testing.T, src string) ([]byte, *InstructionsPool, error) {
	t.Helper()
	strs := NewStringPool()
	instrs := NewInstructionsPool()
	blob, err := Assemble(src, strs, instrs)
	return blob, instrs, err
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
