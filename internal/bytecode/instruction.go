package bytecode

import (
	"fmt"
	"strings"
)

// Instruction 解码后的指令
// Operands 为规范化操作数：iload_2 之类的隐含索引形式在解码时物化为
// 显式操作数（Int(2)），跳转指令保留 JVMS 原始的相对字节偏移。
type Instruction struct {
	Op       OpCode
	Operands []Value
	PC       int // 指令在方法内的字节偏移
	Width    int // 指令编码的字节长度
}

// Operand 返回第 n 个操作数
func (i *Instruction) Operand(n int) Value {
	return i.Operands[n]
}

// BranchTarget 返回跳转指令的目标字节偏移
func (i *Instruction) BranchTarget() int {
	return i.PC + int(i.Operands[0].Int())
}

// FallThrough 返回顺序执行的下一条指令偏移
func (i *Instruction) FallThrough() int {
	return i.PC + i.Width
}

// String 返回反汇编形式
func (i *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%4d: %s", i.PC, i.Op)
	for _, p := range i.Operands {
		fmt.Fprintf(&sb, " %s", p)
	}
	return sb.String()
}

// ============================================================================
// 解码
// ============================================================================

// DecodeError 解码失败
type DecodeError struct {
	PC     int
	Op     OpCode
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at pc=%d (%s): %s", e.PC, e.Op, e.Reason)
}

// Decode 在字节偏移 pc 处解码一条指令
// 操作数按 JVMS SE7 的大端布局读取
func Decode(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, &DecodeError{PC: pc, Reason: "pc out of range"}
	}
	op := OpCode(code[pc])
	if !op.IsKnown() {
		return Instruction{}, &DecodeError{PC: pc, Op: op, Reason: "unknown opcode"}
	}

	inst := Instruction{Op: op, PC: pc, Width: 1}
	need := func(n int) error {
		if pc+n > len(code)-1 {
			return &DecodeError{PC: pc, Op: op, Reason: "truncated instruction"}
		}
		return nil
	}

	u8 := func(off int) byte { return code[pc+off] }
	s16 := func(off int) int16 { return int16(code[pc+off])<<8 | int16(code[pc+off+1]) }
	u16 := func(off int) uint16 { return uint16(code[pc+off])<<8 | uint16(code[pc+off+1]) }
	s32 := func(off int) int32 {
		return int32(code[pc+off])<<24 | int32(code[pc+off+1])<<16 |
			int32(code[pc+off+2])<<8 | int32(code[pc+off+3])
	}

	switch op {
	// 单字节指令
	case Nop, AconstNil,
		Pop, Pop2, Dup,
		Iadd, Ladd, Fadd, Dadd, Isub, Lsub, Fsub, Dsub,
		Imul, Lmul, Fmul, Dmul, Idiv, Ldiv, Fdiv, Ddiv,
		Irem, Lrem, Frem, Drem, Ineg, Lneg, Fneg, Dneg,
		I2L, I2F, I2D, L2I, L2F, L2D, F2I, F2L, F2D, D2I, D2L, D2F,
		Lcmp, Fcmpl, Fcmpg, Dcmpl, Dcmpg,
		Ireturn, Lreturn, Freturn, Dreturn, Areturn, Return, Athrow:
		// 无操作数

	// 隐含操作数的常量指令
	case IconstM1, Iconst0, Iconst1, Iconst2, Iconst3, Iconst4, Iconst5:
		inst.Operands = []Value{NewInt(int32(op) - int32(Iconst0))}
	case Lconst0, Lconst1:
		inst.Operands = []Value{NewLong(int64(op - Lconst0))}
	case Fconst0, Fconst1, Fconst2:
		inst.Operands = []Value{NewFloat(float32(op - Fconst0))}
	case Dconst0, Dconst1:
		inst.Operands = []Value{NewDouble(float64(op - Dconst0))}

	// 隐含索引的加载/存储指令
	case Iload0, Iload1, Iload2, Iload3:
		inst.Operands = []Value{NewInt(int32(op - Iload0))}
	case Lload0, Lload1, Lload2, Lload3:
		inst.Operands = []Value{NewInt(int32(op - Lload0))}
	case Fload0, Fload1, Fload2, Fload3:
		inst.Operands = []Value{NewInt(int32(op - Fload0))}
	case Dload0, Dload1, Dload2, Dload3:
		inst.Operands = []Value{NewInt(int32(op - Dload0))}
	case Aload0, Aload1, Aload2, Aload3:
		inst.Operands = []Value{NewInt(int32(op - Aload0))}
	case Istore0, Istore1, Istore2, Istore3:
		inst.Operands = []Value{NewInt(int32(op - Istore0))}
	case Lstore0, Lstore1, Lstore2, Lstore3:
		inst.Operands = []Value{NewInt(int32(op - Lstore0))}
	case Fstore0, Fstore1, Fstore2, Fstore3:
		inst.Operands = []Value{NewInt(int32(op - Fstore0))}
	case Dstore0, Dstore1, Dstore2, Dstore3:
		inst.Operands = []Value{NewInt(int32(op - Dstore0))}
	case Astore0, Astore1, Astore2, Astore3:
		inst.Operands = []Value{NewInt(int32(op - Astore0))}

	// 单字节操作数
	case Bipush:
		if err := need(1); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(int8(u8(1))))}
		inst.Width = 2
	case Ldc:
		if err := need(1); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(u8(1)))}
		inst.Width = 2
	case Iload, Lload, Fload, Dload, Aload,
		Istore, Lstore, Fstore, Dstore, Astore:
		if err := need(1); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(u8(1)))}
		inst.Width = 2

	// 双字节操作数
	case Sipush:
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(s16(1)))}
		inst.Width = 3
	case LdcW, Ldc2W:
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(u16(1)))}
		inst.Width = 3
	case Iinc:
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(u8(1))), NewInt(int32(int8(u8(2))))}
		inst.Width = 3

	// 跳转：有符号 16 位相对偏移
	case Ifeq, Ifne, Iflt, Ifge, Ifgt, Ifle,
		IfIcmpeq, IfIcmpne, IfIcmplt, IfIcmpge, IfIcmpgt, IfIcmple,
		Goto:
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(s16(1)))}
		inst.Width = 3
	case GotoW:
		if err := need(4); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(s32(1))}
		inst.Width = 5

	// 方法与字段引用：常量池索引
	case Getstatic, Invokevirtual, Invokespecial, Invokestatic:
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(u16(1)))}
		inst.Width = 3
	case Invokeinterface:
		if err := need(4); err != nil {
			return Instruction{}, err
		}
		inst.Operands = []Value{NewInt(int32(u16(1))), NewInt(int32(u8(3)))}
		inst.Width = 5

	default:
		return Instruction{}, &DecodeError{PC: pc, Op: op, Reason: "unhandled opcode"}
	}

	if pc+inst.Width > len(code) {
		return Instruction{}, &DecodeError{PC: pc, Op: op, Reason: "truncated instruction"}
	}
	return inst, nil
}

// DecodeAll 解码整段方法体，返回按序的稠密指令数组
func DecodeAll(code []byte) ([]Instruction, error) {
	var insts []Instruction
	for pc := 0; pc < len(code); {
		inst, err := Decode(code, pc)
		if err != nil {
			return nil, err
		}
		insts = append(insts, inst)
		pc += inst.Width
	}
	return insts, nil
}

// Disassemble 输出整段指令的反汇编文本
func Disassemble(insts []Instruction) string {
	var sb strings.Builder
	for i := range insts {
		sb.WriteString(insts[i].String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
