package vm

import "fmt"

// The error kinds below form a closed set: every failure path in this
// package returns one of them (optionally wrapped with github.com/pkg/errors
// for call-site context), never a bare fmt.Errorf string. Callers that need
// to distinguish kinds should use errors.As/errors.Is.
var (
	ErrStorageWriteError           = fmt.Errorf("storage write error")
	ErrStorageReadError            = fmt.Errorf("storage read error")
	ErrStorageSizeTooBig           = fmt.Errorf("storage value exceeds encodable size")
	ErrStorageUTF8ConversionFailed = fmt.Errorf("storage string is not valid utf-8")
	ErrStackUnderflow              = fmt.Errorf("stack underflow")
	ErrStackOverflow               = fmt.Errorf("stack overflow")
	ErrWriteError                  = fmt.Errorf("write error")
	ErrEmptyInstructions           = fmt.Errorf("empty instructions")
	ErrUnexpectedEOB               = fmt.Errorf("unexpected end of bytecode")
)

// TaskNotFoundError is returned when a task id refers to an empty or
// out-of-range store slot.
type TaskNotFoundError struct{ ID uint32 }

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %d not found", e.ID)
}

// InvalidStringIndexError is returned by the string pool on an out-of-range
// resolve.
type InvalidStringIndexError struct{ Index uint32 }

func (e *InvalidStringIndexError) Error() string {
	return fmt.Sprintf("invalid string pool index %d", e.Index)
}

// InvalidInstructionsIndexError is returned by the instructions pool on an
// out-of-range get.
type InvalidInstructionsIndexError struct{ Index uint32 }

func (e *InvalidInstructionsIndexError) Error() string {
	return fmt.Sprintf("invalid instructions pool index %d", e.Index)
}

// TypeMismatchError is returned when EQ/NEQ compare operands with different
// tags.
type TypeMismatchError struct{ Context string }

func (e *TypeMismatchError) Error() string {
	if e.Context == "" {
		return "type mismatch"
	}
	return fmt.Sprintf("type mismatch: %s", e.Context)
}

// InvalidTypeError is returned when an operand has the wrong tag for the
// opcode (e.g. LT/GT on a non-U32, or a Value accessor such as AsU32 called
// on a value with another tag).
type InvalidTypeError struct{ Context string }

func (e *InvalidTypeError) Error() string {
	if e.Context == "" {
		return "invalid type"
	}
	return fmt.Sprintf("invalid type: %s", e.Context)
}

// InvalidStatusError is returned when a byte does not map to a TaskStatus.
type InvalidStatusError struct{ Value uint32 }

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid task status %d", e.Value)
}

// InvalidTaskFieldError is returned when a byte does not map to a TaskField.
type InvalidTaskFieldError struct{ Value uint32 }

func (e *InvalidTaskFieldError) Error() string {
	return fmt.Sprintf("invalid task field %d", e.Value)
}

// UnexpectedEOIError is returned by the assembler when source ends mid
// instruction.
type UnexpectedEOIError struct {
	Command int
	Context string
}

func (e *UnexpectedEOIError) Error() string {
	return fmt.Sprintf("unexpected end of input at command %d: %s", e.Command, e.Context)
}

// InvalidUINTError is returned by the assembler when a numeric operand does
// not parse at its expected width.
type InvalidUINTError struct {
	Command int
	Value   string
}

func (e *InvalidUINTError) Error() string {
	return fmt.Sprintf("invalid uint operand %q at command %d", e.Value, e.Command)
}

// MalformedCalldataError is returned when PUSH_CALLDATA is not followed by a
// `[`.
type MalformedCalldataError struct {
	Command int
	Context string
}

func (e *MalformedCalldataError) Error() string {
	return fmt.Sprintf("malformed calldata at command %d: %s", e.Command, e.Context)
}

// UnknownOpcodeError is returned by the assembler for an unrecognized
// mnemonic token.
type UnknownOpcodeError struct{ Opcode string }

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode %q", e.Opcode)
}

// MalformedIfThenError is returned when an IF has no matching THEN, or a
// THEN appears with no pending IF.
type MalformedIfThenError struct{ Context string }

func (e *MalformedIfThenError) Error() string {
	return fmt.Sprintf("malformed if/then: %s", e.Context)
}
