package vm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestVM(t *testing.T, src string) *VM {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.bin")
	v, err := New(src, path)
	require.NoError(t, err)
	return v
}

func runSrc(t *testing.T, src string) []Value {
	t.Helper()
	v := newTestVM(t, src)
	stack, err := v.Run()
	require.NoError(t, err)
	return stack
}

func TestPushU32(t *testing.T) {
	stack := runSrc(t, "PUSH_U32 1234567890")
	require.Equal(t, []Value{U32Value(1234567890)}, stack)
}

func TestPushStringDeduplicatesEqualEntries(t *testing.T) {
	stack := runSrc(t, "PUSH_STRING hello PUSH_STRING hello")
	require.Len(t, stack, 2)
	require.Equal(t, stack[0], stack[1])
}

func TestIfThenEq(t *testing.T) {
	stack := runSrc(t, "PUSH_U32 100 PUSH_U32 100 EQ IF PUSH_U32 1 THEN")
	require.Equal(t, []Value{U32Value(1)}, stack)
}

func TestIfThenNeqSkipsBody(t *testing.T) {
	stack := runSrc(t, "PUSH_U32 100 PUSH_U32 100 NEQ IF PUSH_U32 1 THEN")
	require.Empty(t, stack)
}

func TestTaskCreateAndPrintTask(t *testing.T) {
	v := newTestVM(t, "PUSH_STRING TestTask PUSH_STATUS 0 PUSH_CALLDATA [ ] T_CREATE")
	_, err := v.Run()
	require.NoError(t, err)

	task, err := v.PrintTask(0)
	require.NoError(t, err)
	require.Equal(t, Task{ID: 0, Title: "TestTask", Status: NotComplete, Instructions: ""}, task)
}

func TestTaskDeleteUpdatesLen(t *testing.T) {
	stack := runSrc(t, "PUSH_STRING TaskToDelete PUSH_STATUS 2 PUSH_CALLDATA [ ] T_CREATE "+
		"S_LEN PUSH_U32 0 T_DELETE S_LEN")
	require.Equal(t, []Value{U32Value(1), U32Value(0)}, stack)
}

func TestDoLoopIndexIteratesOverTasks(t *testing.T) {
	src := "PUSH_STRING A PUSH_STATUS 0 PUSH_CALLDATA [ ] T_CREATE " +
		"PUSH_STRING B PUSH_STATUS 0 PUSH_CALLDATA [ ] T_CREATE " +
		"PUSH_STRING C PUSH_STATUS 0 PUSH_CALLDATA [ ] T_CREATE " +
		"S_LEN PUSH_U32 0 DO LOOP_INDEX LOOP"
	stack := runSrc(t, src)
	require.Equal(t, []Value{U32Value(0), U32Value(1), U32Value(2)}, stack)
}

func TestCallIntoNestedTaskCalldata(t *testing.T) {
	src := "PUSH_STRING Parent PUSH_STATUS 2 PUSH_CALLDATA [ " +
		"PUSH_STRING Child PUSH_STATUS 0 PUSH_CALLDATA [ ] T_CREATE END_CALL ] T_CREATE " +
		"PUSH_U32 0 CALL S_LEN"
	stack := runSrc(t, src)
	require.Equal(t, []Value{U32Value(2)}, stack[len(stack)-1:])
}

func TestOperandStackOverflow(t *testing.T) {
	v := newTestVM(t, "PUSH_U32 1000001 PUSH_U32 0 DO PUSH_U32 99 LOOP")
	_, err := v.Run()
	require.ErrorIs(t, err, ErrStackOverflow)
}

func TestEqTypeMismatch(t *testing.T) {
	v := newTestVM(t, "PUSH_U32 1 PUSH_STRING aaa EQ")
	_, err := v.Run()
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestLtInvalidType(t *testing.T) {
	v := newTestVM(t, "PUSH_STRING aa PUSH_STRING aaa LT")
	_, err := v.Run()
	var invalid *InvalidTypeError
	require.ErrorAs(t, err, &invalid)
}

func TestMemSliceRoundTrip(t *testing.T) {
	v := newTestVM(t, "PUSH_U32 7 PUSH_U32 0 M_STORE PUSH_U32 4 PUSH_U32 0 M_SLICE")
	stack, err := v.Run()
	require.NoError(t, err)
	require.Len(t, stack, 1)

	returns, err := v.Unbox(stack)
	require.NoError(t, err)
	require.Equal(t, ReturnMemSlice, returns[0].Kind)

	bytes, err := v.ReturnMemory(returns[0])
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 7}, bytes)
}

func TestStackUnderflowOnEmptyPop(t *testing.T) {
	v := newTestVM(t, "DUP")
	_, err := v.Run()
	require.ErrorIs(t, err, ErrStackUnderflow)
}

func TestEmptyInstructionsFailsAtInit(t *testing.T) {
	_, err := New("", filepath.Join(t.TempDir(), "tasks.bin"))
	require.ErrorIs(t, err, ErrEmptyInstructions)
}
