package vm

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var asmLog = logrus.WithField("component", "asm")

// ifThenPatchCapacity bounds how many unresolved IF placeholders can be
// outstanding at once; two slots support one level of IF nesting, matching
// the bounded control/call stacks used elsewhere in the VM.
const ifThenPatchCapacity = 2

// Assemble tokenizes and encodes mnemonic source into bytecode. Strings
// referenced by PUSH_STRING are interned into strings; every PUSH_CALLDATA
// block (and the returned top-level blob, by the caller) is assembled
// recursively against the same pools.
func Assemble(src string, strings_ *StringPool, instructions *InstructionsPool) ([]byte, error) {
	toks := tokenize(src)
	a := &assembleState{
		tokens:       toks,
		strings:      strings_,
		instructions: instructions,
		patchStack:   NewInlineVec[int](ifThenPatchCapacity),
	}
	if err := a.run(); err != nil {
		return nil, err
	}
	if a.patchStack.Len() != 0 {
		return nil, &MalformedIfThenError{Context: "Missing THEN"}
	}
	return a.out, nil
}

func tokenize(src string) []string {
	return strings.Fields(src)
}

type assembleState struct {
	tokens       []string
	pos          int
	out          []byte
	strings      *StringPool
	instructions *InstructionsPool
	patchStack   InlineVec[int]
}

func (a *assembleState) atEnd() bool { return a.pos >= len(a.tokens) }

func (a *assembleState) next() (string, bool) {
	if a.atEnd() {
		return "", false
	}
	t := a.tokens[a.pos]
	a.pos++
	return t, true
}

func (a *assembleState) emitByte(b byte)      { a.out = append(a.out, b) }
func (a *assembleState) emitOpcode(op Opcode) { a.emitByte(byte(op)) }
func (a *assembleState) emitU32(n uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	a.out = append(a.out, buf[:]...)
}

func (a *assembleState) run() error {
	for {
		tok, ok := a.next()
		if !ok {
			return nil
		}
		if err := a.assembleOne(tok); err != nil {
			return err
		}
	}
}

func (a *assembleState) assembleOne(tok string) error {
	cmd := a.pos - 1

	switch tok {
	case "IF":
		a.emitOpcode(JumpIfFalse)
		placeholder := len(a.out)
		a.emitU32(0)
		if err := a.patchStack.Push(placeholder); err != nil {
			return errors.Wrap(err, "IF")
		}
		return nil

	case "THEN":
		placeholder, err := a.patchStack.Pop()
		if err != nil {
			return &MalformedIfThenError{Context: "THEN with no matching IF"}
		}
		binary.BigEndian.PutUint32(a.out[placeholder:placeholder+4], uint32(len(a.out)))
		return nil

	case "PUSH_U32":
		n, err := a.expectU32(cmd)
		if err != nil {
			return err
		}
		a.emitOpcode(PushU32)
		a.emitU32(n)
		return nil

	case "PUSH_STRING":
		s, ok := a.next()
		if !ok {
			return &UnexpectedEOIError{Command: cmd, Context: "PUSH_STRING missing operand"}
		}
		idx := a.strings.Intern(s)
		a.emitOpcode(PushString)
		a.emitU32(idx)
		return nil

	case "PUSH_STATUS":
		n, err := a.expectByte(cmd)
		if err != nil {
			return err
		}
		a.emitOpcode(PushStatus)
		a.emitByte(n)
		return nil

	case "PUSH_TASK_FIELD":
		n, err := a.expectByte(cmd)
		if err != nil {
			return err
		}
		a.emitOpcode(PushTaskField)
		a.emitByte(n)
		return nil

	case "PUSH_CALLDATA":
		return a.assembleCalldata(cmd)

	default:
		op, ok := mnemonicToOpcode[tok]
		if !ok {
			return &UnknownOpcodeError{Opcode: tok}
		}
		a.emitOpcode(op)
		return nil
	}
}

// assembleCalldata consumes the `[ ... ]` block following PUSH_CALLDATA,
// tracking bracket depth so nested PUSH_CALLDATA blocks are collected whole,
// then assembles the collected body with a fresh recursive call against the
// same pools.
func (a *assembleState) assembleCalldata(cmd int) error {
	open, ok := a.next()
	if !ok || open != "[" {
		return &MalformedCalldataError{Command: cmd, Context: "expected '[' after PUSH_CALLDATA"}
	}

	depth := 1
	bodyStart := a.pos
	for depth > 0 {
		tok, ok := a.next()
		if !ok {
			return &UnexpectedEOIError{Command: cmd, Context: "missing closing ]"}
		}
		switch tok {
		case "[":
			depth++
		case "]":
			depth--
		}
	}
	bodyEnd := a.pos - 1 // exclude the closing ]

	body := strings.Join(a.tokens[bodyStart:bodyEnd], " ")
	blob, err := Assemble(body, a.strings, a.instructions)
	if err != nil {
		return err
	}
	idx := a.instructions.Intern(blob)
	a.emitOpcode(PushCalldata)
	a.emitU32(idx)
	return nil
}

func (a *assembleState) expectU32(cmd int) (uint32, error) {
	tok, ok := a.next()
	if !ok {
		return 0, &UnexpectedEOIError{Command: cmd, Context: "missing u32 operand"}
	}
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, &InvalidUINTError{Command: cmd, Value: tok}
	}
	asmLog.Debugf("PUSH_U32 %d", n)
	return uint32(n), nil
}

func (a *assembleState) expectByte(cmd int) (byte, error) {
	tok, ok := a.next()
	if !ok {
		return 0, &UnexpectedEOIError{Command: cmd, Context: "missing byte operand"}
	}
	n, err := strconv.ParseUint(tok, 10, 8)
	if err != nil {
		return 0, &InvalidUINTError{Command: cmd, Value: tok}
	}
	return byte(n), nil
}
