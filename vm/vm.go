package vm

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

var vmLog = logrus.WithField("component", "vm")

// maxOperandStack bounds the operand stack at one million tagged values;
// pushes past it fail with ErrStackOverflow rather than growing.
const maxOperandStack = 1_000_000

// auxStackCapacity bounds the control stack and the call stack, each
// separately: the call stack holds the top-level frame plus one level of
// CALL, and the control stack holds at most two active DO/LOOP entries.
const auxStackCapacity = 2

// controlEntry is a DO/LOOP loop-in-progress: where LOOP jumps back to, the
// current index, and the exclusive limit.
type controlEntry struct {
	returnPC int
	index    uint32
	limit    uint32
}

// instructionsFrame names the program currently executing and the next byte
// to fetch from it.
type instructionsFrame struct {
	instructionsRef uint32
	pc              int
}

// VM is the task bytecode interpreter: operand stack, bounded control/call
// stacks, the string/instructions pools, the task store, and a scratch
// memory buffer backing MemSlice values. Not safe for concurrent use.
type VM struct {
	strings      *StringPool
	instructions *InstructionsPool
	store        *Store

	operand []Value

	control InlineVec[controlEntry]
	calls   InlineVec[instructionsFrame]

	mem []byte
}

// New assembles src as the top-level program, loads the task store from
// path, and returns a VM ready to Run. Fails with ErrEmptyInstructions if src
// is empty.
func New(src string, storagePath string) (*VM, error) {
	if len(src) == 0 {
		return nil, ErrEmptyInstructions
	}

	strings_ := NewStringPool()
	instructions := NewInstructionsPool()

	store, err := Load(storagePath, strings_, instructions)
	if err != nil {
		return nil, err
	}

	blob, err := Assemble(src, strings_, instructions)
	if err != nil {
		return nil, err
	}
	top := instructions.Intern(blob)

	v := &VM{
		strings:      strings_,
		instructions: instructions,
		store:        store,
		control:      NewInlineVec[controlEntry](auxStackCapacity),
		calls:        NewInlineVec[instructionsFrame](auxStackCapacity),
	}
	if err := v.calls.Push(instructionsFrame{instructionsRef: top, pc: 0}); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VM) pushOperand(val Value) error {
	if len(v.operand) >= maxOperandStack {
		return ErrStackOverflow
	}
	v.operand = append(v.operand, val)
	return nil
}

func (v *VM) popOperand() (Value, error) {
	if len(v.operand) == 0 {
		return 0, ErrStackUnderflow
	}
	last := len(v.operand) - 1
	val := v.operand[last]
	v.operand = v.operand[:last]
	return val, nil
}

func (v *VM) peekOperand() (Value, error) {
	if len(v.operand) == 0 {
		return 0, ErrStackUnderflow
	}
	return v.operand[len(v.operand)-1], nil
}

// Run executes from the current top call frame until it reaches the end of
// its instructions, then returns the operand stack by value (leaving the VM's
// internal stack empty).
func (v *VM) Run() ([]Value, error) {
	if err := v.dispatch(); err != nil {
		return nil, err
	}
	out := v.operand
	v.operand = nil
	return out, nil
}

func (v *VM) currentFrame() (*instructionsFrame, error) {
	return v.calls.PeekMut()
}

func (v *VM) dispatch() error {
	for {
		frame, err := v.currentFrame()
		if err != nil {
			return err
		}
		blob, err := v.instructions.Get(frame.instructionsRef)
		if err != nil {
			return err
		}
		if frame.pc >= len(blob) {
			if v.calls.Len() > 1 {
				if _, err := v.calls.Pop(); err != nil {
					return err
				}
				continue
			}
			return nil
		}

		op := Opcode(blob[frame.pc])
		frame.pc++

		if err := v.execOne(op, blob, frame); err != nil {
			return err
		}
	}
}

func fetchU32(blob []byte, pc int) (uint32, int, error) {
	if pc+4 > len(blob) {
		return 0, pc, ErrUnexpectedEOB
	}
	return binary.BigEndian.Uint32(blob[pc : pc+4]), pc + 4, nil
}

func fetchByte(blob []byte, pc int) (byte, int, error) {
	if pc+1 > len(blob) {
		return 0, pc, ErrUnexpectedEOB
	}
	return blob[pc], pc + 1, nil
}

// execOne performs exactly one opcode's effect, mutating frame.pc in place
// for any immediate operand it consumes (JUMP_IF_FALSE/LOOP rewrite pc
// directly for control transfer).
func (v *VM) execOne(op Opcode, blob []byte, frame *instructionsFrame) error {
	switch op {
	case PushU32:
		n, pc, err := fetchU32(blob, frame.pc)
		if err != nil {
			return err
		}
		frame.pc = pc
		return v.pushOperand(U32Value(n))

	case PushString:
		idx, pc, err := fetchU32(blob, frame.pc)
		if err != nil {
			return err
		}
		frame.pc = pc
		return v.pushOperand(StringRefValue(idx))

	case PushCalldata:
		idx, pc, err := fetchU32(blob, frame.pc)
		if err != nil {
			return err
		}
		frame.pc = pc
		return v.pushOperand(CalldataRefValue(idx))

	case PushStatus, PushTaskField:
		b, pc, err := fetchByte(blob, frame.pc)
		if err != nil {
			return err
		}
		frame.pc = pc
		return v.pushOperand(U32Value(uint32(b)))

	case Dup:
		top, err := v.peekOperand()
		if err != nil {
			return err
		}
		return v.pushOperand(top)

	case Swap:
		a, err := v.popOperand()
		if err != nil {
			return err
		}
		b, err := v.popOperand()
		if err != nil {
			return err
		}
		if err := v.pushOperand(a); err != nil {
			return err
		}
		return v.pushOperand(b)

	case DropIf:
		cond, err := v.popOperand()
		if err != nil {
			return err
		}
		if cond == TrueValue {
			_, err := v.popOperand()
			return err
		}
		return nil

	case Eq, Neq:
		return v.execCompareEq(op)

	case Lt, Gt:
		return v.execCompareOrder(op)

	case JumpIfFalse:
		cond, err := v.popOperand()
		if err != nil {
			return err
		}
		target, pc, err := fetchU32(blob, frame.pc)
		if err != nil {
			return err
		}
		frame.pc = pc
		if cond == FalseValue {
			frame.pc = int(target)
		}
		return nil

	case Do:
		index, err := v.popU32Operand()
		if err != nil {
			return err
		}
		limit, err := v.popU32Operand()
		if err != nil {
			return err
		}
		return v.control.Push(controlEntry{returnPC: frame.pc, index: index, limit: limit})

	case Loop:
		entry, err := v.control.Pop()
		if err != nil {
			return err
		}
		if entry.index+1 < entry.limit {
			frame.pc = entry.returnPC
			return v.control.Push(controlEntry{returnPC: entry.returnPC, index: entry.index + 1, limit: entry.limit})
		}
		return nil

	case LoopIndex:
		entry, err := v.control.Peek()
		if err != nil {
			return err
		}
		return v.pushOperand(U32Value(entry.index))

	case TCreate:
		return v.execTaskCreate()

	case TGetField:
		return v.execTaskGetField()

	case TSetField:
		return v.execTaskSetField()

	case TDelete:
		id, err := v.popU32Operand()
		if err != nil {
			return err
		}
		return v.store.Delete(id)

	case SSave:
		return v.store.Save(v.strings, v.instructions)

	case SLoad:
		return nil

	case SLen:
		return v.pushOperand(U32Value(uint32(v.store.Len())))

	case Call:
		return v.execCall(frame)

	case EndCall:
		return v.execEndCall(frame)

	case MStore:
		return v.execMemStore()

	case MSlice:
		return v.execMemSlice()

	default:
		vmLog.WithField("opcode", byte(op)).Debug("unknown opcode, ignored")
		return nil
	}
}

func (v *VM) popU32Operand() (uint32, error) {
	val, err := v.popOperand()
	if err != nil {
		return 0, err
	}
	return val.AsU32()
}

func (v *VM) execCompareEq(op Opcode) error {
	right, err := v.popOperand()
	if err != nil {
		return err
	}
	left, err := v.popOperand()
	if err != nil {
		return err
	}

	equal, err := valuesEqual(left, right)
	if err != nil {
		return err
	}
	if op == Neq {
		equal = !equal
	}
	return v.pushOperand(BoolValue(equal))
}

func valuesEqual(left, right Value) (bool, error) {
	if left.IsBool() && right.IsBool() {
		return left == right, nil
	}
	if left.IsMemSlice() || right.IsMemSlice() {
		return false, &TypeMismatchError{Context: "EQ/NEQ do not support mem slices"}
	}
	if left.tag() != right.tag() {
		return false, &TypeMismatchError{Context: "EQ/NEQ operands have different tags"}
	}
	return left.payload() == right.payload(), nil
}

func (v *VM) execCompareOrder(op Opcode) error {
	right, err := v.popOperand()
	if err != nil {
		return err
	}
	left, err := v.popOperand()
	if err != nil {
		return err
	}
	l, err := left.AsU32()
	if err != nil {
		return &InvalidTypeError{Context: "LT/GT require U32 operands"}
	}
	r, err := right.AsU32()
	if err != nil {
		return &InvalidTypeError{Context: "LT/GT require U32 operands"}
	}
	if op == Lt {
		return v.pushOperand(BoolValue(l < r))
	}
	return v.pushOperand(BoolValue(l > r))
}

func (v *VM) execTaskCreate() error {
	calldata, err := v.popOperand()
	if err != nil {
		return err
	}
	calldataRef, err := calldata.AsCalldataRef()
	if err != nil {
		return err
	}

	statusVal, err := v.popU32Operand()
	if err != nil {
		return err
	}
	status, err := TaskStatusFromU32(statusVal)
	if err != nil {
		return err
	}

	title, err := v.popOperand()
	if err != nil {
		return err
	}
	titleRef, err := title.AsStringRef()
	if err != nil {
		return err
	}

	task := &TaskVM{TitleRef: titleRef, Status: status, InstructionsRef: calldataRef}
	v.store.Add(task)
	return nil
}

func (v *VM) execTaskGetField() error {
	fieldVal, err := v.popU32Operand()
	if err != nil {
		return err
	}
	field, err := TaskFieldFromU32(fieldVal)
	if err != nil {
		return err
	}
	id, err := v.popU32Operand()
	if err != nil {
		return err
	}
	task, err := v.store.Get(id)
	if err != nil {
		return err
	}

	switch field {
	case FieldTitle:
		return v.pushOperand(StringRefValue(task.TitleRef))
	case FieldStatus:
		return v.pushOperand(U32Value(uint32(task.Status)))
	case FieldInstructions:
		return v.pushOperand(CalldataRefValue(task.InstructionsRef))
	default:
		return &InvalidTaskFieldError{Value: fieldVal}
	}
}

func (v *VM) execTaskSetField() error {
	fieldVal, err := v.popU32Operand()
	if err != nil {
		return err
	}
	field, err := TaskFieldFromU32(fieldVal)
	if err != nil {
		return err
	}
	id, err := v.popU32Operand()
	if err != nil {
		return err
	}
	task, err := v.store.GetMut(id)
	if err != nil {
		return err
	}
	newVal, err := v.popOperand()
	if err != nil {
		return err
	}

	switch field {
	case FieldTitle:
		ref, err := newVal.AsStringRef()
		if err != nil {
			return err
		}
		task.TitleRef = ref
	case FieldStatus:
		raw, err := newVal.AsU32()
		if err != nil {
			return err
		}
		status, err := TaskStatusFromU32(raw)
		if err != nil {
			return err
		}
		task.Status = status
	case FieldInstructions:
		ref, err := newVal.AsCalldataRef()
		if err != nil {
			return err
		}
		task.InstructionsRef = ref
	}
	return nil
}

func (v *VM) execCall(frame *instructionsFrame) error {
	id, err := v.popU32Operand()
	if err != nil {
		return err
	}
	task, err := v.store.Get(id)
	if err != nil {
		return err
	}
	blob, err := v.instructions.Get(task.InstructionsRef)
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return v.calls.Push(instructionsFrame{instructionsRef: task.InstructionsRef, pc: 0})
}

func (v *VM) execEndCall(frame *instructionsFrame) error {
	if v.calls.Len() > 1 {
		_, err := v.calls.Pop()
		return err
	}
	return nil
}

// PrintTask resolves task id into its logical form.
func (v *VM) PrintTask(id uint32) (Task, error) {
	return v.store.ResolveTask(id, v.strings, v.instructions)
}

// Return is the caller-facing typed view Unbox produces for one stack entry.
type Return struct {
	Kind    ReturnKind
	U32     uint32
	String  string
	Bool    bool
	MemOff  uint32
	MemSize uint32
}

// ReturnKind discriminates the Return variants.
type ReturnKind int

const (
	ReturnU32 ReturnKind = iota
	ReturnString
	ReturnCallData
	ReturnBool
	ReturnMemSlice
)

// Unbox resolves each tagged Value against the VM's pools, producing a
// caller-facing Return sequence.
func (v *VM) Unbox(stack []Value) ([]Return, error) {
	out := make([]Return, 0, len(stack))
	for _, val := range stack {
		r, err := v.unboxOne(val)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (v *VM) unboxOne(val Value) (Return, error) {
	if val.IsMemSlice() {
		off, size, err := val.AsMemSlice()
		if err != nil {
			return Return{}, err
		}
		return Return{Kind: ReturnMemSlice, MemOff: off, MemSize: size}, nil
	}
	if val.IsBool() {
		b, _ := val.AsBool()
		return Return{Kind: ReturnBool, Bool: b}, nil
	}
	switch {
	case val.IsU32():
		n, _ := val.AsU32()
		return Return{Kind: ReturnU32, U32: n}, nil
	case val.IsStringRef():
		idx, _ := val.AsStringRef()
		s, err := v.strings.Resolve(idx)
		if err != nil {
			return Return{}, err
		}
		return Return{Kind: ReturnString, String: s}, nil
	case val.IsCalldataRef():
		idx, _ := val.AsCalldataRef()
		blob, err := v.instructions.Get(idx)
		if err != nil {
			return Return{}, err
		}
		src, err := Disassemble(blob, v.strings, v.instructions)
		if err != nil {
			return Return{}, err
		}
		return Return{Kind: ReturnCallData, String: src}, nil
	default:
		return Return{}, &InvalidTypeError{Context: "unbox: value has no recognized tag"}
	}
}
