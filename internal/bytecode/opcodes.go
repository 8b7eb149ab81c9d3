// Package bytecode 定义 JVM SE7 字节码子集的操作码与指令模型
// 参考: https://docs.oracle.com/javase/specs/jvms/se7/html/jvms-6.html
package bytecode

import "fmt"

// OpCode JVM 操作码
type OpCode byte

const (
	// 常量指令
	Nop       OpCode = 0x00
	AconstNil OpCode = 0x01
	IconstM1  OpCode = 0x02
	Iconst0   OpCode = 0x03
	Iconst1   OpCode = 0x04
	Iconst2   OpCode = 0x05
	Iconst3   OpCode = 0x06
	Iconst4   OpCode = 0x07
	Iconst5   OpCode = 0x08
	Lconst0   OpCode = 0x09
	Lconst1   OpCode = 0x0a
	Fconst0   OpCode = 0x0b
	Fconst1   OpCode = 0x0c
	Fconst2   OpCode = 0x0d
	Dconst0   OpCode = 0x0e
	Dconst1   OpCode = 0x0f
	Bipush    OpCode = 0x10
	Sipush    OpCode = 0x11
	Ldc       OpCode = 0x12
	LdcW      OpCode = 0x13
	Ldc2W     OpCode = 0x14

	// 加载指令
	Iload  OpCode = 0x15
	Lload  OpCode = 0x16
	Fload  OpCode = 0x17
	Dload  OpCode = 0x18
	Aload  OpCode = 0x19
	Iload0 OpCode = 0x1a
	Iload1 OpCode = 0x1b
	Iload2 OpCode = 0x1c
	Iload3 OpCode = 0x1d
	Lload0 OpCode = 0x1e
	Lload1 OpCode = 0x1f
	Lload2 OpCode = 0x20
	Lload3 OpCode = 0x21
	Fload0 OpCode = 0x22
	Fload1 OpCode = 0x23
	Fload2 OpCode = 0x24
	Fload3 OpCode = 0x25
	Dload0 OpCode = 0x26
	Dload1 OpCode = 0x27
	Dload2 OpCode = 0x28
	Dload3 OpCode = 0x29
	Aload0 OpCode = 0x2a
	Aload1 OpCode = 0x2b
	Aload2 OpCode = 0x2c
	Aload3 OpCode = 0x2d

	// 存储指令
	Istore  OpCode = 0x36
	Lstore  OpCode = 0x37
	Fstore  OpCode = 0x38
	Dstore  OpCode = 0x39
	Astore  OpCode = 0x3a
	Istore0 OpCode = 0x3b
	Istore1 OpCode = 0x3c
	Istore2 OpCode = 0x3d
	Istore3 OpCode = 0x3e
	Lstore0 OpCode = 0x3f
	Lstore1 OpCode = 0x40
	Lstore2 OpCode = 0x41
	Lstore3 OpCode = 0x42
	Fstore0 OpCode = 0x43
	Fstore1 OpCode = 0x44
	Fstore2 OpCode = 0x45
	Fstore3 OpCode = 0x46
	Dstore0 OpCode = 0x47
	Dstore1 OpCode = 0x48
	Dstore2 OpCode = 0x49
	Dstore3 OpCode = 0x4a
	Astore0 OpCode = 0x4b
	Astore1 OpCode = 0x4c
	Astore2 OpCode = 0x4d
	Astore3 OpCode = 0x4e

	// 栈操作指令
	Pop  OpCode = 0x57
	Pop2 OpCode = 0x58
	Dup  OpCode = 0x59

	// 算术指令
	Iadd OpCode = 0x60
	Ladd OpCode = 0x61
	Fadd OpCode = 0x62
	Dadd OpCode = 0x63
	Isub OpCode = 0x64
	Lsub OpCode = 0x65
	Fsub OpCode = 0x66
	Dsub OpCode = 0x67
	Imul OpCode = 0x68
	Lmul OpCode = 0x69
	Fmul OpCode = 0x6a
	Dmul OpCode = 0x6b
	Idiv OpCode = 0x6c
	Ldiv OpCode = 0x6d
	Fdiv OpCode = 0x6e
	Ddiv OpCode = 0x6f
	Irem OpCode = 0x70
	Lrem OpCode = 0x71
	Frem OpCode = 0x72
	Drem OpCode = 0x73
	Ineg OpCode = 0x74
	Lneg OpCode = 0x75
	Fneg OpCode = 0x76
	Dneg OpCode = 0x77
	Iinc OpCode = 0x84

	// 类型转换指令
	I2L OpCode = 0x85
	I2F OpCode = 0x86
	I2D OpCode = 0x87
	L2I OpCode = 0x88
	L2F OpCode = 0x89
	L2D OpCode = 0x8a
	F2I OpCode = 0x8b
	F2L OpCode = 0x8c
	F2D OpCode = 0x8d
	D2I OpCode = 0x8e
	D2L OpCode = 0x8f
	D2F OpCode = 0x90

	// 比较指令
	Lcmp  OpCode = 0x94
	Fcmpl OpCode = 0x95
	Fcmpg OpCode = 0x96
	Dcmpl OpCode = 0x97
	Dcmpg OpCode = 0x98

	// 条件跳转指令
	Ifeq     OpCode = 0x99
	Ifne     OpCode = 0x9a
	Iflt     OpCode = 0x9b
	Ifge     OpCode = 0x9c
	Ifgt     OpCode = 0x9d
	Ifle     OpCode = 0x9e
	IfIcmpeq OpCode = 0x9f
	IfIcmpne OpCode = 0xa0
	IfIcmplt OpCode = 0xa1
	IfIcmpge OpCode = 0xa2
	IfIcmpgt OpCode = 0xa3
	IfIcmple OpCode = 0xa4

	// 无条件跳转与返回指令
	Goto    OpCode = 0xa7
	Ireturn OpCode = 0xac
	Lreturn OpCode = 0xad
	Freturn OpCode = 0xae
	Dreturn OpCode = 0xaf
	Areturn OpCode = 0xb0
	Return  OpCode = 0xb1

	// 字段与方法调用指令
	Getstatic       OpCode = 0xb2
	Invokevirtual   OpCode = 0xb6
	Invokespecial   OpCode = 0xb7
	Invokestatic    OpCode = 0xb8
	Invokeinterface OpCode = 0xb9

	// 异常指令
	Athrow OpCode = 0xbf

	// 宽跳转
	GotoW OpCode = 0xc8
)

// opNames 操作码助记符（按 JVMS 规范书写）
var opNames = map[OpCode]string{
	Nop: "nop", AconstNil: "aconst_null",
	IconstM1: "iconst_m1", Iconst0: "iconst_0", Iconst1: "iconst_1",
	Iconst2: "iconst_2", Iconst3: "iconst_3", Iconst4: "iconst_4",
	Iconst5: "iconst_5",
	Lconst0: "lconst_0", Lconst1: "lconst_1",
	Fconst0: "fconst_0", Fconst1: "fconst_1", Fconst2: "fconst_2",
	Dconst0: "dconst_0", Dconst1: "dconst_1",
	Bipush: "bipush", Sipush: "sipush",
	Ldc: "ldc", LdcW: "ldc_w", Ldc2W: "ldc2_w",
	Iload: "iload", Lload: "lload", Fload: "fload", Dload: "dload", Aload: "aload",
	Iload0: "iload_0", Iload1: "iload_1", Iload2: "iload_2", Iload3: "iload_3",
	Lload0: "lload_0", Lload1: "lload_1", Lload2: "lload_2", Lload3: "lload_3",
	Fload0: "fload_0", Fload1: "fload_1", Fload2: "fload_2", Fload3: "fload_3",
	Dload0: "dload_0", Dload1: "dload_1", Dload2: "dload_2", Dload3: "dload_3",
	Aload0: "aload_0", Aload1: "aload_1", Aload2: "aload_2", Aload3: "aload_3",
	Istore: "istore", Lstore: "lstore", Fstore: "fstore", Dstore: "dstore", Astore: "astore",
	Istore0: "istore_0", Istore1: "istore_1", Istore2: "istore_2", Istore3: "istore_3",
	Lstore0: "lstore_0", Lstore1: "lstore_1", Lstore2: "lstore_2", Lstore3: "lstore_3",
	Fstore0: "fstore_0", Fstore1: "fstore_1", Fstore2: "fstore_2", Fstore3: "fstore_3",
	Dstore0: "dstore_0", Dstore1: "dstore_1", Dstore2: "dstore_2", Dstore3: "dstore_3",
	Astore0: "astore_0", Astore1: "astore_1", Astore2: "astore_2", Astore3: "astore_3",
	Pop: "pop", Pop2: "pop2", Dup: "dup",
	Iadd: "iadd", Ladd: "ladd", Fadd: "fadd", Dadd: "dadd",
	Isub: "isub", Lsub: "lsub", Fsub: "fsub", Dsub: "dsub",
	Imul: "imul", Lmul: "lmul", Fmul: "fmul", Dmul: "dmul",
	Idiv: "idiv", Ldiv: "ldiv", Fdiv: "fdiv", Ddiv: "ddiv",
	Irem: "irem", Lrem: "lrem", Frem: "frem", Drem: "drem",
	Ineg: "ineg", Lneg: "lneg", Fneg: "fneg", Dneg: "dneg",
	Iinc: "iinc",
	I2L:  "i2l", I2F: "i2f", I2D: "i2d",
	L2I: "l2i", L2F: "l2f", L2D: "l2d",
	F2I: "f2i", F2L: "f2l", F2D: "f2d",
	D2I: "d2i", D2L: "d2l", D2F: "d2f",
	Lcmp: "lcmp", Fcmpl: "fcmpl", Fcmpg: "fcmpg", Dcmpl: "dcmpl", Dcmpg: "dcmpg",
	Ifeq: "ifeq", Ifne: "ifne", Iflt: "iflt", Ifge: "ifge", Ifgt: "ifgt", Ifle: "ifle",
	IfIcmpeq: "if_icmpeq", IfIcmpne: "if_icmpne", IfIcmplt: "if_icmplt",
	IfIcmpge: "if_icmpge", IfIcmpgt: "if_icmpgt", IfIcmple: "if_icmple",
	Goto: "goto", GotoW: "goto_w",
	Ireturn: "ireturn", Lreturn: "lreturn", Freturn: "freturn",
	Dreturn: "dreturn", Areturn: "areturn", Return: "return",
	Getstatic:     "getstatic",
	Invokevirtual: "invokevirtual", Invokespecial: "invokespecial",
	Invokestatic: "invokestatic", Invokeinterface: "invokeinterface",
	Athrow: "athrow",
}

// String 返回操作码助记符
func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(0x%02x)", byte(op))
}

// IsKnown 检查操作码是否属于支持的子集
func (op OpCode) IsKnown() bool {
	_, ok := opNames[op]
	return ok
}

// IsCondBranch 检查是否是条件跳转
func (op OpCode) IsCondBranch() bool {
	return op >= Ifeq && op <= IfIcmple
}

// IsBranch 检查是否是跳转指令（含无条件跳转）
func (op OpCode) IsBranch() bool {
	return op.IsCondBranch() || op == Goto || op == GotoW
}

// IsReturn 检查是否是返回指令
func (op OpCode) IsReturn() bool {
	return op >= Ireturn && op <= Return
}

// IsInvoke 检查是否是调用指令
func (op OpCode) IsInvoke() bool {
	switch op {
	case Invokevirtual, Invokespecial, Invokestatic, Invokeinterface:
		return true
	}
	return false
}

// Negate 返回条件跳转的反条件
// 用于录制时的分支翻转：让"继续留在 trace 内"成为不跳转的一侧
func (op OpCode) Negate() OpCode {
	switch op {
	case Ifeq:
		return Ifne
	case Ifne:
		return Ifeq
	case Iflt:
		return Ifge
	case Ifge:
		return Iflt
	case Ifgt:
		return Ifle
	case Ifle:
		return Ifgt
	case IfIcmpeq:
		return IfIcmpne
	case IfIcmpne:
		return IfIcmpeq
	case IfIcmplt:
		return IfIcmpge
	case IfIcmpge:
		return IfIcmplt
	case IfIcmpgt:
		return IfIcmple
	case IfIcmple:
		return IfIcmpgt
	}
	return op
}
