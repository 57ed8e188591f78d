package vm

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// Disassemble walks bytecode in order and reproduces canonical mnemonic
// source text. PUSH_CALLDATA is rendered as "PUSH_CALLDATA [ " followed by
// the recursive disassembly of the referenced blob (empty, with a warning
// logged, if the index is out of range) and a trailing "] ", so that
// re-assembling the output sees the same bracketed block the assembler
// produced it from. Unknown opcodes are silently skipped. Exactly one
// trailing space is trimmed from the final result.
func Disassemble(bytecode []byte, strings_ *StringPool, instructions *InstructionsPool) (string, error) {
	var sb strings.Builder
	disassembleInto(&sb, bytecode, strings_, instructions)
	return strings.TrimSuffix(sb.String(), " "), nil
}

func disassembleInto(sb *strings.Builder, bytecode []byte, strings_ *StringPool, instructions *InstructionsPool) {
	pc := 0
	var pendingThen []int
	for pc < len(bytecode) {
		emitDueThens(sb, &pendingThen, pc)

		op := Opcode(bytecode[pc])
		pc++

		switch op {
		case PushU32:
			if pc+4 > len(bytecode) {
				return
			}
			n := binary.BigEndian.Uint32(bytecode[pc : pc+4])
			pc += 4
			sb.WriteString("PUSH_U32 ")
			sb.WriteString(strconv.FormatUint(uint64(n), 10))
			sb.WriteString(" ")

		case PushString:
			if pc+4 > len(bytecode) {
				return
			}
			idx := binary.BigEndian.Uint32(bytecode[pc : pc+4])
			pc += 4
			sb.WriteString("PUSH_STRING ")
			if strings_ != nil {
				if s, err := strings_.Resolve(idx); err == nil {
					sb.WriteString(s)
				} else {
					asmLog.WithField("index", idx).Warn("disassembler: string index out of range")
				}
			}
			sb.WriteString(" ")

		case PushStatus:
			if pc+1 > len(bytecode) {
				return
			}
			n := bytecode[pc]
			pc++
			sb.WriteString("PUSH_STATUS ")
			sb.WriteString(strconv.FormatUint(uint64(n), 10))
			sb.WriteString(" ")

		case PushTaskField:
			if pc+1 > len(bytecode) {
				return
			}
			n := bytecode[pc]
			pc++
			sb.WriteString("PUSH_TASK_FIELD ")
			sb.WriteString(strconv.FormatUint(uint64(n), 10))
			sb.WriteString(" ")

		case PushCalldata:
			if pc+4 > len(bytecode) {
				return
			}
			idx := binary.BigEndian.Uint32(bytecode[pc : pc+4])
			pc += 4
			sb.WriteString("PUSH_CALLDATA [ ")
			if instructions != nil {
				if blob, err := instructions.Get(idx); err == nil {
					disassembleInto(sb, blob, strings_, instructions)
				} else {
					asmLog.WithField("index", idx).Warn("disassembler: calldata index out of range, emitting empty body")
				}
			}
			sb.WriteString("] ")

		case JumpIfFalse:
			if pc+4 > len(bytecode) {
				return
			}
			target := binary.BigEndian.Uint32(bytecode[pc : pc+4])
			pc += 4
			sb.WriteString("IF ")
			pendingThen = append(pendingThen, int(target))

		default:
			if name, ok := opcodeToMnemonic[op]; ok {
				sb.WriteString(name)
				sb.WriteString(" ")
			}
			// else: unknown opcode byte, silently skipped.
		}
	}
	emitDueThens(sb, &pendingThen, pc)
}

// emitDueThens writes "THEN " for every outstanding IF whose patched jump
// target equals pc, removing them from pending. THEN carries no opcode of
// its own - the assembler compiles it away into the JUMP_IF_FALSE target it
// patches - so the disassembler has to reconstruct its position by watching
// for pc catching up to a recorded target instead of decoding a byte for it.
func emitDueThens(sb *strings.Builder, pending *[]int, pc int) {
	for {
		idx := -1
		for i, target := range *pending {
			if target == pc {
				idx = i
				break
			}
		}
		if idx == -1 {
			return
		}
		sb.WriteString("THEN ")
		*pending = append((*pending)[:idx], (*pending)[idx+1:]...)
	}
}
