// x64_asm.go - x86-64 汇编器
//
// 本文件实现了 x86-64 机器码生成的底层汇编器。
// 提供了 trace 编译所需指令的编码方法，支持 64 位与 32 位整数操作、
// SSE2 标量浮点操作以及基于标签的前向/后向跳转重定位。
//
// x86-64 指令编码格式：
// [前缀] [REX] [操作码] [ModR/M] [SIB] [位移] [立即数]

package jit

import (
	"encoding/binary"
)

// ============================================================================
// x86-64 寄存器定义
// ============================================================================

// X64Reg x86-64 通用寄存器
type X64Reg int

const (
	RAX X64Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// String 返回寄存器名称
func (r X64Reg) String() string {
	names := []string{
		"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	}
	if r >= 0 && int(r) < len(names) {
		return names[r]
	}
	return "???"
}

// IsExtended 检查是否是扩展寄存器（需要 REX 前缀）
func (r X64Reg) IsExtended() bool {
	return r >= R8 && r <= R15
}

// LowBits 获取寄存器编码的低 3 位
func (r X64Reg) LowBits() byte {
	return byte(r) & 0x7
}

// X64Xmm SSE 寄存器
// trace 编译只用到 xmm0/xmm1，不处理扩展编码
type X64Xmm int

const (
	XMM0 X64Xmm = iota
	XMM1
	XMM2
	XMM3
)

// LowBits 获取寄存器编码的低 3 位
func (x X64Xmm) LowBits() byte {
	return byte(x) & 0x7
}

// ============================================================================
// x86-64 汇编器
// ============================================================================

// X64Assembler x86-64 汇编器
type X64Assembler struct {
	code      []byte      // 生成的机器码
	labels    map[int]int // 标签位置（标签 ID -> 代码偏移）
	relocs    []x64Reloc  // 重定位表
	nextLabel int         // 匿名标签分配计数
}

// x64Reloc 重定位条目
type x64Reloc struct {
	offset int // rel32 字段在代码中的偏移
	target int // 目标标签 ID
}

// NewX64Assembler 创建 x86-64 汇编器
func NewX64Assembler() *X64Assembler {
	return &X64Assembler{
		code:   make([]byte, 0, 1024),
		labels: make(map[int]int),
	}
}

// Reset 重置汇编器状态
func (a *X64Assembler) Reset() {
	a.code = a.code[:0]
	a.labels = make(map[int]int)
	a.relocs = nil
	a.nextLabel = 0
}

// Code 获取生成的机器码（解析所有重定位后）
func (a *X64Assembler) Code() ([]byte, error) {
	if err := a.resolveRelocations(); err != nil {
		return nil, err
	}
	return a.code, nil
}

// Len 返回当前代码长度
func (a *X64Assembler) Len() int {
	return len(a.code)
}

// NewLabel 分配一个新标签 ID
func (a *X64Assembler) NewLabel() int {
	id := a.nextLabel
	a.nextLabel++
	return id
}

// Label 在当前位置绑定标签
func (a *X64Assembler) Label(id int) {
	a.labels[id] = len(a.code)
	if id >= a.nextLabel {
		a.nextLabel = id + 1
	}
}

// ============================================================================
// 底层编码方法
// ============================================================================

// emit 写入字节
func (a *X64Assembler) emit(bytes ...byte) {
	a.code = append(a.code, bytes...)
}

// emitU32 写入 32 位值（小端序）
func (a *X64Assembler) emitU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	a.code = append(a.code, buf[:]...)
}

// emitU64 写入 64 位值（小端序）
func (a *X64Assembler) emitU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	a.code = append(a.code, buf[:]...)
}

// rex 构造 REX 前缀
// w: 64 位操作数
// r: 扩展 ModR/M.reg
// x: 扩展 SIB.index
// b: 扩展 ModR/M.r/m 或 SIB.base
func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// modrm 构造 ModR/M 字节
func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 0x7) << 3) | (rm & 0x7)
}

// emitRexOpt 只在需要时发射 REX 前缀（8/32 位指令配扩展寄存器）
func (a *X64Assembler) emitRexOpt(r, b X64Reg) {
	if r.IsExtended() || b.IsExtended() {
		a.emit(rex(false, r.IsExtended(), false, b.IsExtended()))
	}
}

// emitMemOperand 生成 [base+offset] 内存操作数编码
func (a *X64Assembler) emitMemOperand(reg byte, base X64Reg, offset int32) {
	baseCode := base.LowBits()

	// RSP/R12 作为基址需要 SIB 字节
	needSIB := base == RSP || base == R12

	if offset == 0 && base != RBP && base != R13 {
		if needSIB {
			a.emit(modrm(0, reg, 4))
			a.emit(0x24)
		} else {
			a.emit(modrm(0, reg, baseCode))
		}
	} else if offset >= -128 && offset <= 127 {
		if needSIB {
			a.emit(modrm(1, reg, 4))
			a.emit(0x24)
		} else {
			a.emit(modrm(1, reg, baseCode))
		}
		a.emit(byte(offset))
	} else {
		if needSIB {
			a.emit(modrm(2, reg, 4))
			a.emit(0x24)
		} else {
			a.emit(modrm(2, reg, baseCode))
		}
		a.emitU32(uint32(offset))
	}
}

// ============================================================================
// 数据移动指令
// ============================================================================

// MovRegReg 寄存器到寄存器: mov dst, src
func (a *X64Assembler) MovRegReg(dst, src X64Reg) {
	a.emit(rex(true, src.IsExtended(), false, dst.IsExtended()))
	a.emit(0x89)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// MovRegImm64 加载 64 位立即数: mov reg, imm64
func (a *X64Assembler) MovRegImm64(reg X64Reg, imm uint64) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xB8 + reg.LowBits())
	a.emitU64(imm)
}

// MovRegImm32 加载 32 位立即数（符号扩展到 64 位）: mov reg, imm32
func (a *X64Assembler) MovRegImm32(reg X64Reg, imm int32) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xC7)
	a.emit(modrm(3, 0, reg.LowBits()))
	a.emitU32(uint32(imm))
}

// MovRegImm32Zx 加载 32 位立即数（高位清零）: mov r32, imm32
func (a *X64Assembler) MovRegImm32Zx(reg X64Reg, imm int32) {
	a.emitRexOpt(0, reg)
	a.emit(0xB8 + reg.LowBits())
	a.emitU32(uint32(imm))
}

// MovRegMem 从内存加载 64 位: mov reg, [base+offset]
func (a *X64Assembler) MovRegMem(dst X64Reg, base X64Reg, offset int32) {
	a.emit(rex(true, dst.IsExtended(), false, base.IsExtended()))
	a.emit(0x8B)
	a.emitMemOperand(dst.LowBits(), base, offset)
}

// MovMemReg 存储 64 位到内存: mov [base+offset], reg
func (a *X64Assembler) MovMemReg(base X64Reg, offset int32, src X64Reg) {
	a.emit(rex(true, src.IsExtended(), false, base.IsExtended()))
	a.emit(0x89)
	a.emitMemOperand(src.LowBits(), base, offset)
}

// MovsxdRegReg 符号扩展 32 位到 64 位: movsxd dst, src32
func (a *X64Assembler) MovsxdRegReg(dst, src X64Reg) {
	a.emit(rex(true, dst.IsExtended(), false, src.IsExtended()))
	a.emit(0x63)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// ============================================================================
// 算术指令（64 位）
// ============================================================================

// AddRegReg 寄存器加法: add dst, src
func (a *X64Assembler) AddRegReg(dst, src X64Reg) {
	a.emit(rex(true, src.IsExtended(), false, dst.IsExtended()))
	a.emit(0x01)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// SubRegReg 寄存器减法: sub dst, src
func (a *X64Assembler) SubRegReg(dst, src X64Reg) {
	a.emit(rex(true, src.IsExtended(), false, dst.IsExtended()))
	a.emit(0x29)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// IMulRegReg 有符号乘法: imul dst, src
func (a *X64Assembler) IMulRegReg(dst, src X64Reg) {
	a.emit(rex(true, dst.IsExtended(), false, src.IsExtended()))
	a.emit(0x0F, 0xAF)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// NegReg 取负: neg reg
func (a *X64Assembler) NegReg(reg X64Reg) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xF7)
	a.emit(modrm(3, 3, reg.LowBits()))
}

// CQO 符号扩展 RAX -> RDX:RAX
func (a *X64Assembler) CQO() {
	a.emit(0x48, 0x99)
}

// IDivReg 有符号除法: idiv reg (RDX:RAX / reg -> RAX, 余数 -> RDX)
func (a *X64Assembler) IDivReg(reg X64Reg) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xF7)
	a.emit(modrm(3, 7, reg.LowBits()))
}

// AddRegImm32 立即数加法: add reg, imm32
func (a *X64Assembler) AddRegImm32(reg X64Reg, imm int32) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	if imm >= -128 && imm <= 127 {
		a.emit(0x83)
		a.emit(modrm(3, 0, reg.LowBits()))
		a.emit(byte(imm))
	} else {
		a.emit(0x81)
		a.emit(modrm(3, 0, reg.LowBits()))
		a.emitU32(uint32(imm))
	}
}

// SubRegImm32 立即数减法: sub reg, imm32
func (a *X64Assembler) SubRegImm32(reg X64Reg, imm int32) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	if imm >= -128 && imm <= 127 {
		a.emit(0x83)
		a.emit(modrm(3, 5, reg.LowBits()))
		a.emit(byte(imm))
	} else {
		a.emit(0x81)
		a.emit(modrm(3, 5, reg.LowBits()))
		a.emitU32(uint32(imm))
	}
}

// ============================================================================
// 算术指令（32 位，JVM int 语义按 32 位回绕）
// ============================================================================

// AddRegReg32 32 位加法: add dst32, src32
func (a *X64Assembler) AddRegReg32(dst, src X64Reg) {
	a.emitRexOpt(src, dst)
	a.emit(0x01)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// SubRegReg32 32 位减法: sub dst32, src32
func (a *X64Assembler) SubRegReg32(dst, src X64Reg) {
	a.emitRexOpt(src, dst)
	a.emit(0x29)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// IMulRegReg32 32 位有符号乘法: imul dst32, src32
func (a *X64Assembler) IMulRegReg32(dst, src X64Reg) {
	a.emitRexOpt(dst, src)
	a.emit(0x0F, 0xAF)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// NegReg32 32 位取负: neg reg32
func (a *X64Assembler) NegReg32(reg X64Reg) {
	a.emitRexOpt(0, reg)
	a.emit(0xF7)
	a.emit(modrm(3, 3, reg.LowBits()))
}

// CDQ 符号扩展 EAX -> EDX:EAX
func (a *X64Assembler) CDQ() {
	a.emit(0x99)
}

// IDivReg32 32 位有符号除法: idiv reg32
func (a *X64Assembler) IDivReg32(reg X64Reg) {
	a.emitRexOpt(0, reg)
	a.emit(0xF7)
	a.emit(modrm(3, 7, reg.LowBits()))
}

// AddRegImm32To32 32 位立即数加法: add reg32, imm32
func (a *X64Assembler) AddRegImm32To32(reg X64Reg, imm int32) {
	a.emitRexOpt(0, reg)
	if imm >= -128 && imm <= 127 {
		a.emit(0x83)
		a.emit(modrm(3, 0, reg.LowBits()))
		a.emit(byte(imm))
	} else {
		a.emit(0x81)
		a.emit(modrm(3, 0, reg.LowBits()))
		a.emitU32(uint32(imm))
	}
}

// ============================================================================
// 比较指令
// ============================================================================

// CmpRegReg 64 位比较: cmp left, right
func (a *X64Assembler) CmpRegReg(left, right X64Reg) {
	a.emit(rex(true, right.IsExtended(), false, left.IsExtended()))
	a.emit(0x39)
	a.emit(modrm(3, right.LowBits(), left.LowBits()))
}

// CmpRegReg32 32 位比较: cmp left32, right32
func (a *X64Assembler) CmpRegReg32(left, right X64Reg) {
	a.emitRexOpt(right, left)
	a.emit(0x39)
	a.emit(modrm(3, right.LowBits(), left.LowBits()))
}

// CmpRegImm32 64 位与立即数比较: cmp reg, imm32
func (a *X64Assembler) CmpRegImm32(reg X64Reg, imm int32) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	if imm >= -128 && imm <= 127 {
		a.emit(0x83)
		a.emit(modrm(3, 7, reg.LowBits()))
		a.emit(byte(imm))
	} else {
		a.emit(0x81)
		a.emit(modrm(3, 7, reg.LowBits()))
		a.emitU32(uint32(imm))
	}
}

// CmpRegImm32To32 32 位与立即数比较: cmp reg32, imm32
func (a *X64Assembler) CmpRegImm32To32(reg X64Reg, imm int32) {
	a.emitRexOpt(0, reg)
	if imm >= -128 && imm <= 127 {
		a.emit(0x83)
		a.emit(modrm(3, 7, reg.LowBits()))
		a.emit(byte(imm))
	} else {
		a.emit(0x81)
		a.emit(modrm(3, 7, reg.LowBits()))
		a.emitU32(uint32(imm))
	}
}

// TestRegReg 64 位测试: test reg1, reg2
func (a *X64Assembler) TestRegReg(reg1, reg2 X64Reg) {
	a.emit(rex(true, reg2.IsExtended(), false, reg1.IsExtended()))
	a.emit(0x85)
	a.emit(modrm(3, reg2.LowBits(), reg1.LowBits()))
}

// ============================================================================
// SSE2 标量浮点指令
// ============================================================================

// MovsdXmmMem 加载 double: movsd xmm, [base+offset]
func (a *X64Assembler) MovsdXmmMem(dst X64Xmm, base X64Reg, offset int32) {
	a.emit(0xF2)
	if base.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x0F, 0x10)
	a.emitMemOperand(dst.LowBits(), base, offset)
}

// MovsdMemXmm 存储 double: movsd [base+offset], xmm
func (a *X64Assembler) MovsdMemXmm(base X64Reg, offset int32, src X64Xmm) {
	a.emit(0xF2)
	if base.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x0F, 0x11)
	a.emitMemOperand(src.LowBits(), base, offset)
}

// MovssXmmMem 加载 float: movss xmm, [base+offset]
func (a *X64Assembler) MovssXmmMem(dst X64Xmm, base X64Reg, offset int32) {
	a.emit(0xF3)
	if base.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x0F, 0x10)
	a.emitMemOperand(dst.LowBits(), base, offset)
}

// MovssMemXmm 存储 float: movss [base+offset], xmm
func (a *X64Assembler) MovssMemXmm(base X64Reg, offset int32, src X64Xmm) {
	a.emit(0xF3)
	if base.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x0F, 0x11)
	a.emitMemOperand(src.LowBits(), base, offset)
}

// MovqXmmReg 通用寄存器到 SSE: movq xmm, reg
func (a *X64Assembler) MovqXmmReg(dst X64Xmm, src X64Reg) {
	a.emit(0x66)
	a.emit(rex(true, false, false, src.IsExtended()))
	a.emit(0x0F, 0x6E)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// MovqRegXmm SSE 到通用寄存器: movq reg, xmm
func (a *X64Assembler) MovqRegXmm(dst X64Reg, src X64Xmm) {
	a.emit(0x66)
	a.emit(rex(true, false, false, dst.IsExtended()))
	a.emit(0x0F, 0x7E)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// emitSSEOp 发射 prefix 0F op /r 形式的 xmm-xmm 指令
func (a *X64Assembler) emitSSEOp(prefix, op byte, dst, src X64Xmm) {
	if prefix != 0 {
		a.emit(prefix)
	}
	a.emit(0x0F, op)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// AddsdXmmXmm double 加法: addsd dst, src
func (a *X64Assembler) AddsdXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF2, 0x58, dst, src) }

// SubsdXmmXmm double 减法: subsd dst, src
func (a *X64Assembler) SubsdXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF2, 0x5C, dst, src) }

// MulsdXmmXmm double 乘法: mulsd dst, src
func (a *X64Assembler) MulsdXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF2, 0x59, dst, src) }

// DivsdXmmXmm double 除法: divsd dst, src
func (a *X64Assembler) DivsdXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF2, 0x5E, dst, src) }

// AddssXmmXmm float 加法: addss dst, src
func (a *X64Assembler) AddssXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF3, 0x58, dst, src) }

// SubssXmmXmm float 减法: subss dst, src
func (a *X64Assembler) SubssXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF3, 0x5C, dst, src) }

// MulssXmmXmm float 乘法: mulss dst, src
func (a *X64Assembler) MulssXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF3, 0x59, dst, src) }

// DivssXmmXmm float 除法: divss dst, src
func (a *X64Assembler) DivssXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF3, 0x5E, dst, src) }

// UcomisdXmmXmm double 无序比较: ucomisd left, right
func (a *X64Assembler) UcomisdXmmXmm(left, right X64Xmm) { a.emitSSEOp(0x66, 0x2E, left, right) }

// UcomissXmmXmm float 无序比较: ucomiss left, right
func (a *X64Assembler) UcomissXmmXmm(left, right X64Xmm) { a.emitSSEOp(0, 0x2E, left, right) }

// XorpdXmmXmm 位异或: xorpd dst, src
func (a *X64Assembler) XorpdXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0x66, 0x57, dst, src) }

// Cvtsi2sdXmmReg 64 位整数转 double: cvtsi2sd xmm, reg
func (a *X64Assembler) Cvtsi2sdXmmReg(dst X64Xmm, src X64Reg) {
	a.emit(0xF2)
	a.emit(rex(true, false, false, src.IsExtended()))
	a.emit(0x0F, 0x2A)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// Cvtsi2ssXmmReg 64 位整数转 float: cvtsi2ss xmm, reg
func (a *X64Assembler) Cvtsi2ssXmmReg(dst X64Xmm, src X64Reg) {
	a.emit(0xF3)
	a.emit(rex(true, false, false, src.IsExtended()))
	a.emit(0x0F, 0x2A)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// Cvtsd2ssXmmXmm double 转 float: cvtsd2ss dst, src
func (a *X64Assembler) Cvtsd2ssXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF2, 0x5A, dst, src) }

// Cvtss2sdXmmXmm float 转 double: cvtss2sd dst, src
func (a *X64Assembler) Cvtss2sdXmmXmm(dst, src X64Xmm) { a.emitSSEOp(0xF3, 0x5A, dst, src) }

// ============================================================================
// 栈操作指令
// ============================================================================

// Push 压栈: push reg
func (a *X64Assembler) Push(reg X64Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 + reg.LowBits())
}

// Pop 出栈: pop reg
func (a *X64Assembler) Pop(reg X64Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 + reg.LowBits())
}

// ============================================================================
// 跳转指令
// ============================================================================

// x86 条件码（Jcc/SETcc 的低 4 位）
const (
	ccO  = 0x0
	ccB  = 0x2 // CF=1（ucomisd 的小于）
	ccE  = 0x4 // ZF=1
	ccNE = 0x5
	ccA  = 0x7
	ccP  = 0xA // PF=1（浮点无序）
	ccL  = 0xC
	ccGE = 0xD
	ccLE = 0xE
	ccG  = 0xF
)

// jcc 发射条件跳转（rel32）
func (a *X64Assembler) jcc(cc byte, labelID int) {
	a.emit(0x0F, 0x80+cc)
	a.relocs = append(a.relocs, x64Reloc{offset: len(a.code), target: labelID})
	a.emitU32(0)
}

// Jmp 无条件跳转: jmp label
func (a *X64Assembler) Jmp(labelID int) {
	a.emit(0xE9)
	a.relocs = append(a.relocs, x64Reloc{offset: len(a.code), target: labelID})
	a.emitU32(0)
}

// Je 相等跳转 (ZF=1)
func (a *X64Assembler) Je(labelID int) { a.jcc(ccE, labelID) }

// Jne 不相等跳转 (ZF=0)
func (a *X64Assembler) Jne(labelID int) { a.jcc(ccNE, labelID) }

// Jl 有符号小于跳转
func (a *X64Assembler) Jl(labelID int) { a.jcc(ccL, labelID) }

// Jle 有符号小于等于跳转
func (a *X64Assembler) Jle(labelID int) { a.jcc(ccLE, labelID) }

// Jg 有符号大于跳转
func (a *X64Assembler) Jg(labelID int) { a.jcc(ccG, labelID) }

// Jge 有符号大于等于跳转
func (a *X64Assembler) Jge(labelID int) { a.jcc(ccGE, labelID) }

// Jb 无符号低于跳转 (CF=1)
func (a *X64Assembler) Jb(labelID int) { a.jcc(ccB, labelID) }

// Ja 无符号高于跳转
func (a *X64Assembler) Ja(labelID int) { a.jcc(ccA, labelID) }

// Jp 奇偶跳转 (PF=1，浮点比较无序)
func (a *X64Assembler) Jp(labelID int) { a.jcc(ccP, labelID) }

// Ret 返回
func (a *X64Assembler) Ret() {
	a.emit(0xC3)
}

// ============================================================================
// 重定位解析
// ============================================================================

// resolveRelocations 解析所有重定位
// 后向跳转在发射时目标已知，前向跳转在标签绑定后统一回填
func (a *X64Assembler) resolveRelocations() error {
	for _, reloc := range a.relocs {
		target, ok := a.labels[reloc.target]
		if !ok {
			return errUnboundLabel(reloc.target)
		}
		// 相对偏移从 rel32 字段之后起算
		offset := int64(target) - int64(reloc.offset+4)
		if offset > 0x7fffffff || offset < -0x80000000 {
			return errRelocOverflow(reloc.target)
		}
		binary.LittleEndian.PutUint32(a.code[reloc.offset:], uint32(int32(offset)))
	}
	return nil
}
