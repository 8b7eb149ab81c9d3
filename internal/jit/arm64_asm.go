// arm64_asm.go - ARM64 汇编器
//
// 本文件实现了 ARM64 (AArch64) 机器码生成的底层汇编器。
//
// ARM64 指令特点：
// - 固定 32 位指令长度
// - 31 个通用寄存器 (X0-X30) + SP + ZR
// - 加载/存储架构（不支持内存直接运算）

package jit

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// ARM64 寄存器定义
// ============================================================================

// ARM64Reg ARM64 通用寄存器
type ARM64Reg int

const (
	X0 ARM64Reg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16 // IP0 - 过程内调用暂存器
	X17 // IP1
	X18 // 平台寄存器
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29 // FP - 帧指针
	X30 // LR - 链接寄存器

	// SP 与 ZR 共享编码 31，由具体指令决定含义
	XSP ARM64Reg = 31
	XZR ARM64Reg = 31
)

// String 返回寄存器名称
func (r ARM64Reg) String() string {
	switch {
	case r >= X0 && r <= X28:
		return fmt.Sprintf("x%d", int(r))
	case r == X29:
		return "fp"
	case r == X30:
		return "lr"
	case r == XSP:
		return "sp"
	}
	return "???"
}

// Encode 获取寄存器编码
func (r ARM64Reg) Encode() uint32 {
	if r < 0 {
		return 31
	}
	return uint32(r)
}

// ARM64Fp 浮点寄存器（D/S 视具体指令）
type ARM64Fp int

const (
	D0 ARM64Fp = iota
	D1
	D2
	D3
)

// Encode 获取寄存器编码
func (r ARM64Fp) Encode() uint32 { return uint32(r) }

// 条件码
const (
	CondEQ uint32 = 0x0 // 等于
	CondNE uint32 = 0x1 // 不等于
	CondMI uint32 = 0x4 // 负（浮点比较的小于）
	CondVS uint32 = 0x6 // 溢出（浮点比较的无序）
	CondGE uint32 = 0xA // 大于等于（有符号）
	CondLT uint32 = 0xB // 小于（有符号）
	CondGT uint32 = 0xC // 大于
	CondLE uint32 = 0xD // 小于等于
)

// ============================================================================
// ARM64 汇编器
// ============================================================================

// ARM64Assembler ARM64 汇编器
type ARM64Assembler struct {
	code      []byte
	labels    map[int]int
	relocs    []arm64Reloc
	nextLabel int
}

type arm64Reloc struct {
	offset int // 指令在代码中的偏移
	target int // 目标标签 ID
	kind   int // 重定位类型
}

const (
	relocBranch = 1 // B 指令（26 位偏移）
	relocCondBr = 2 // B.cond 指令（19 位偏移）
	relocCBZ    = 3 // CBZ/CBNZ 指令（19 位偏移）
)

// NewARM64Assembler 创建 ARM64 汇编器
func NewARM64Assembler() *ARM64Assembler {
	return &ARM64Assembler{
		code:   make([]byte, 0, 1024),
		labels: make(map[int]int),
	}
}

// Reset 重置汇编器
func (a *ARM64Assembler) Reset() {
	a.code = a.code[:0]
	a.labels = make(map[int]int)
	a.relocs = nil
	a.nextLabel = 0
}

// Code 获取生成的机器码（解析所有重定位后）
func (a *ARM64Assembler) Code() ([]byte, error) {
	if err := a.resolveRelocations(); err != nil {
		return nil, err
	}
	return a.code, nil
}

// Len 返回当前代码长度
func (a *ARM64Assembler) Len() int {
	return len(a.code)
}

// NewLabel 分配一个新标签 ID
func (a *ARM64Assembler) NewLabel() int {
	id := a.nextLabel
	a.nextLabel++
	return id
}

// Label 在当前位置绑定标签
func (a *ARM64Assembler) Label(id int) {
	a.labels[id] = len(a.code)
	if id >= a.nextLabel {
		a.nextLabel = id + 1
	}
}

// emit 写入 32 位指令
func (a *ARM64Assembler) emit(instr uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], instr)
	a.code = append(a.code, buf[:]...)
}

// ============================================================================
// 数据移动指令
// ============================================================================

// MovRegReg 寄存器到寄存器: mov dst, src (ORR Xd, XZR, Xm)
func (a *ARM64Assembler) MovRegReg(dst, src ARM64Reg) {
	a.emit(0xAA0003E0 | (src.Encode() << 16) | dst.Encode())
}

// MovzImm16 加载 16 位立即数: movz dst, #imm, lsl #shift
func (a *ARM64Assembler) MovzImm16(dst ARM64Reg, imm uint16, shift int) {
	hw := uint32(shift / 16)
	a.emit(0xD2800000 | (hw << 21) | (uint32(imm) << 5) | dst.Encode())
}

// MovkImm16 移动保持: movk dst, #imm, lsl #shift
func (a *ARM64Assembler) MovkImm16(dst ARM64Reg, imm uint16, shift int) {
	hw := uint32(shift / 16)
	a.emit(0xF2800000 | (hw << 21) | (uint32(imm) << 5) | dst.Encode())
}

// MovnImm16 取反移动: movn dst, #imm (dst = ^(imm << shift))
func (a *ARM64Assembler) MovnImm16(dst ARM64Reg, imm uint16, shift int) {
	hw := uint32(shift / 16)
	a.emit(0x92800000 | (hw << 21) | (uint32(imm) << 5) | dst.Encode())
}

// MovRegImm64 加载 64 位立即数（MOVZ/MOVK 序列，负数走 MOVN）
func (a *ARM64Assembler) MovRegImm64(dst ARM64Reg, imm uint64) {
	if sv := int64(imm); sv < 0 && sv >= -0x10000 {
		a.MovnImm16(dst, uint16(^imm), 0)
		return
	}
	a.MovzImm16(dst, uint16(imm), 0)
	if imm > 0xFFFF {
		a.MovkImm16(dst, uint16(imm>>16), 16)
	}
	if imm > 0xFFFFFFFF {
		a.MovkImm16(dst, uint16(imm>>32), 32)
	}
	if imm > 0xFFFFFFFFFFFF {
		a.MovkImm16(dst, uint16(imm>>48), 48)
	}
}

// LdrRegMem 从内存加载 64 位: ldr dst, [base, #offset]
func (a *ARM64Assembler) LdrRegMem(dst, base ARM64Reg, offset int32) {
	if offset >= 0 && offset <= 32760 && offset%8 == 0 {
		imm12 := uint32(offset / 8)
		a.emit(0xF9400000 | (imm12 << 10) | (base.Encode() << 5) | dst.Encode())
		return
	}
	if offset >= -256 && offset <= 255 {
		imm9 := uint32(offset) & 0x1FF
		a.emit(0xF8400000 | (imm9 << 12) | (base.Encode() << 5) | dst.Encode())
		return
	}
	a.MovRegImm64(X17, uint64(int64(offset)))
	a.AddRegReg(X17, base, X17)
	a.LdrRegMem(dst, X17, 0)
}

// StrRegMem 存储 64 位到内存: str src, [base, #offset]
func (a *ARM64Assembler) StrRegMem(src, base ARM64Reg, offset int32) {
	if offset >= 0 && offset <= 32760 && offset%8 == 0 {
		imm12 := uint32(offset / 8)
		a.emit(0xF9000000 | (imm12 << 10) | (base.Encode() << 5) | src.Encode())
		return
	}
	if offset >= -256 && offset <= 255 {
		imm9 := uint32(offset) & 0x1FF
		a.emit(0xF8000000 | (imm9 << 12) | (base.Encode() << 5) | src.Encode())
		return
	}
	a.MovRegImm64(X17, uint64(int64(offset)))
	a.AddRegReg(X17, base, X17)
	a.StrRegMem(src, X17, 0)
}

// Sxtw 符号扩展 32 位到 64 位: sxtw dst, src (SBFM Xd, Xn, #0, #31)
func (a *ARM64Assembler) Sxtw(dst, src ARM64Reg) {
	a.emit(0x93407C00 | (src.Encode() << 5) | dst.Encode())
}

// ============================================================================
// 算术指令（64 位）
// ============================================================================

// AddRegReg 加法: add dst, src1, src2
func (a *ARM64Assembler) AddRegReg(dst, src1, src2 ARM64Reg) {
	a.emit(0x8B000000 | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// SubRegReg 减法: sub dst, src1, src2
func (a *ARM64Assembler) SubRegReg(dst, src1, src2 ARM64Reg) {
	a.emit(0xCB000000 | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// MulReg 乘法: mul dst, src1, src2 (MADD Xd, Xn, Xm, XZR)
func (a *ARM64Assembler) MulReg(dst, src1, src2 ARM64Reg) {
	a.emit(0x9B007C00 | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// SdivReg 有符号除法: sdiv dst, src1, src2
func (a *ARM64Assembler) SdivReg(dst, src1, src2 ARM64Reg) {
	a.emit(0x9AC00C00 | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// MsubReg 乘减: msub dst, mul1, mul2, sub (dst = sub - mul1*mul2)
func (a *ARM64Assembler) MsubReg(dst, mul1, mul2, sub ARM64Reg) {
	a.emit(0x9B008000 | (mul2.Encode() << 16) | (sub.Encode() << 10) |
		(mul1.Encode() << 5) | dst.Encode())
}

// NegReg 取负: neg dst, src (SUB Xd, XZR, Xm)
func (a *ARM64Assembler) NegReg(dst, src ARM64Reg) {
	a.emit(0xCB000000 | (src.Encode() << 16) | (uint32(31) << 5) | dst.Encode())
}

// AddSpImm 栈指针加法: add sp, sp, #imm12
func (a *ARM64Assembler) AddSpImm(imm uint32) {
	a.emit(0x91000000 | (imm << 10) | (uint32(31) << 5) | 31)
}

// SubSpImm 栈指针减法: sub sp, sp, #imm12
func (a *ARM64Assembler) SubSpImm(imm uint32) {
	a.emit(0xD1000000 | (imm << 10) | (uint32(31) << 5) | 31)
}

// ============================================================================
// 算术指令（32 位，JVM int 语义按 32 位回绕）
// ============================================================================

// AddRegReg32 32 位加法: add wd, wn, wm
func (a *ARM64Assembler) AddRegReg32(dst, src1, src2 ARM64Reg) {
	a.emit(0x0B000000 | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// SubRegReg32 32 位减法: sub wd, wn, wm
func (a *ARM64Assembler) SubRegReg32(dst, src1, src2 ARM64Reg) {
	a.emit(0x4B000000 | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// MulReg32 32 位乘法: mul wd, wn, wm
func (a *ARM64Assembler) MulReg32(dst, src1, src2 ARM64Reg) {
	a.emit(0x1B007C00 | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// SdivReg32 32 位有符号除法: sdiv wd, wn, wm
func (a *ARM64Assembler) SdivReg32(dst, src1, src2 ARM64Reg) {
	a.emit(0x1AC00C00 | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// MsubReg32 32 位乘减: msub wd, wn, wm, wa
func (a *ARM64Assembler) MsubReg32(dst, mul1, mul2, sub ARM64Reg) {
	a.emit(0x1B008000 | (mul2.Encode() << 16) | (sub.Encode() << 10) |
		(mul1.Encode() << 5) | dst.Encode())
}

// NegReg32 32 位取负: neg wd, wm
func (a *ARM64Assembler) NegReg32(dst, src ARM64Reg) {
	a.emit(0x4B000000 | (src.Encode() << 16) | (uint32(31) << 5) | dst.Encode())
}

// ============================================================================
// 比较指令
// ============================================================================

// CmpRegReg 64 位比较: cmp src1, src2 (SUBS XZR, Xn, Xm)
func (a *ARM64Assembler) CmpRegReg(src1, src2 ARM64Reg) {
	a.emit(0xEB00001F | (src2.Encode() << 16) | (src1.Encode() << 5))
}

// CmpRegReg32 32 位比较: cmp wn, wm
func (a *ARM64Assembler) CmpRegReg32(src1, src2 ARM64Reg) {
	a.emit(0x6B00001F | (src2.Encode() << 16) | (src1.Encode() << 5))
}

// CmpRegZero32 与零比较: cmp wn, #0
func (a *ARM64Assembler) CmpRegZero32(src ARM64Reg) {
	a.emit(0x7100001F | (src.Encode() << 5))
}

// CmpRegZero 与零比较: cmp xn, #0
func (a *ARM64Assembler) CmpRegZero(src ARM64Reg) {
	a.emit(0xF100001F | (src.Encode() << 5))
}

// ============================================================================
// 浮点指令
// ============================================================================

// FmovDX 通用寄存器到双精度: fmov dn, xn
func (a *ARM64Assembler) FmovDX(dst ARM64Fp, src ARM64Reg) {
	a.emit(0x9E670000 | (src.Encode() << 5) | dst.Encode())
}

// FmovXD 双精度到通用寄存器: fmov xd, dn
func (a *ARM64Assembler) FmovXD(dst ARM64Reg, src ARM64Fp) {
	a.emit(0x9E660000 | (src.Encode() << 5) | dst.Encode())
}

// FmovSW 通用寄存器到单精度: fmov sn, wn
func (a *ARM64Assembler) FmovSW(dst ARM64Fp, src ARM64Reg) {
	a.emit(0x1E270000 | (src.Encode() << 5) | dst.Encode())
}

// FmovWS 单精度到通用寄存器: fmov wd, sn
func (a *ARM64Assembler) FmovWS(dst ARM64Reg, src ARM64Fp) {
	a.emit(0x1E260000 | (src.Encode() << 5) | dst.Encode())
}

// emitFpOp 发射双操作数浮点指令
func (a *ARM64Assembler) emitFpOp(base uint32, dst, src1, src2 ARM64Fp) {
	a.emit(base | (src2.Encode() << 16) | (src1.Encode() << 5) | dst.Encode())
}

// FaddD 双精度加法: fadd dd, dn, dm
func (a *ARM64Assembler) FaddD(dst, src1, src2 ARM64Fp) { a.emitFpOp(0x1E602800, dst, src1, src2) }

// FsubD 双精度减法: fsub dd, dn, dm
func (a *ARM64Assembler) FsubD(dst, src1, src2 ARM64Fp) { a.emitFpOp(0x1E603800, dst, src1, src2) }

// FmulD 双精度乘法: fmul dd, dn, dm
func (a *ARM64Assembler) FmulD(dst, src1, src2 ARM64Fp) { a.emitFpOp(0x1E600800, dst, src1, src2) }

// FdivD 双精度除法: fdiv dd, dn, dm
func (a *ARM64Assembler) FdivD(dst, src1, src2 ARM64Fp) { a.emitFpOp(0x1E601800, dst, src1, src2) }

// FaddS 单精度加法: fadd sd, sn, sm
func (a *ARM64Assembler) FaddS(dst, src1, src2 ARM64Fp) { a.emitFpOp(0x1E202800, dst, src1, src2) }

// FsubS 单精度减法: fsub sd, sn, sm
func (a *ARM64Assembler) FsubS(dst, src1, src2 ARM64Fp) { a.emitFpOp(0x1E203800, dst, src1, src2) }

// FmulS 单精度乘法: fmul sd, sn, sm
func (a *ARM64Assembler) FmulS(dst, src1, src2 ARM64Fp) { a.emitFpOp(0x1E200800, dst, src1, src2) }

// FdivS 单精度除法: fdiv sd, sn, sm
func (a *ARM64Assembler) FdivS(dst, src1, src2 ARM64Fp) { a.emitFpOp(0x1E201800, dst, src1, src2) }

// FnegD 双精度取负: fneg dd, dn
func (a *ARM64Assembler) FnegD(dst, src ARM64Fp) {
	a.emit(0x1E614000 | (src.Encode() << 5) | dst.Encode())
}

// FnegS 单精度取负: fneg sd, sn
func (a *ARM64Assembler) FnegS(dst, src ARM64Fp) {
	a.emit(0x1E214000 | (src.Encode() << 5) | dst.Encode())
}

// FcmpD 双精度比较: fcmp dn, dm
func (a *ARM64Assembler) FcmpD(src1, src2 ARM64Fp) {
	a.emit(0x1E602000 | (src2.Encode() << 16) | (src1.Encode() << 5))
}

// FcmpS 单精度比较: fcmp sn, sm
func (a *ARM64Assembler) FcmpS(src1, src2 ARM64Fp) {
	a.emit(0x1E202000 | (src2.Encode() << 16) | (src1.Encode() << 5))
}

// ScvtfDX 64 位整数转双精度: scvtf dd, xn
func (a *ARM64Assembler) ScvtfDX(dst ARM64Fp, src ARM64Reg) {
	a.emit(0x9E620000 | (src.Encode() << 5) | dst.Encode())
}

// ScvtfSX 64 位整数转单精度: scvtf sd, xn
func (a *ARM64Assembler) ScvtfSX(dst ARM64Fp, src ARM64Reg) {
	a.emit(0x9E220000 | (src.Encode() << 5) | dst.Encode())
}

// FcvtDS 单精度转双精度: fcvt dd, sn
func (a *ARM64Assembler) FcvtDS(dst, src ARM64Fp) {
	a.emit(0x1E22C000 | (src.Encode() << 5) | dst.Encode())
}

// FcvtSD 双精度转单精度: fcvt sd, dn
func (a *ARM64Assembler) FcvtSD(dst, src ARM64Fp) {
	a.emit(0x1E624000 | (src.Encode() << 5) | dst.Encode())
}

// ============================================================================
// 跳转指令
// ============================================================================

// B 无条件跳转
func (a *ARM64Assembler) B(labelID int) {
	a.relocs = append(a.relocs, arm64Reloc{offset: len(a.code), target: labelID, kind: relocBranch})
	a.emit(0x14000000)
}

// Bcond 条件跳转: b.cond label
func (a *ARM64Assembler) Bcond(cond uint32, labelID int) {
	a.relocs = append(a.relocs, arm64Reloc{offset: len(a.code), target: labelID, kind: relocCondBr})
	a.emit(0x54000000 | cond)
}

// Cbz 为零跳转: cbz xn, label
func (a *ARM64Assembler) Cbz(reg ARM64Reg, labelID int) {
	a.relocs = append(a.relocs, arm64Reloc{offset: len(a.code), target: labelID, kind: relocCBZ})
	a.emit(0xB4000000 | reg.Encode())
}

// Cbz32 为零跳转: cbz wn, label
func (a *ARM64Assembler) Cbz32(reg ARM64Reg, labelID int) {
	a.relocs = append(a.relocs, arm64Reloc{offset: len(a.code), target: labelID, kind: relocCBZ})
	a.emit(0x34000000 | reg.Encode())
}

// Ret 返回
func (a *ARM64Assembler) Ret() {
	a.emit(0xD65F03C0)
}

// StpPre 存储寄存器对（预索引）: stp rt1, rt2, [base, #offset]!
func (a *ARM64Assembler) StpPre(rt1, rt2, base ARM64Reg, offset int32) {
	imm7 := uint32((offset / 8) & 0x7F)
	a.emit(0xA9800000 | (imm7 << 15) | (rt2.Encode() << 10) |
		(base.Encode() << 5) | rt1.Encode())
}

// LdpPost 加载寄存器对（后索引）: ldp rt1, rt2, [base], #offset
func (a *ARM64Assembler) LdpPost(rt1, rt2, base ARM64Reg, offset int32) {
	imm7 := uint32((offset / 8) & 0x7F)
	a.emit(0xA8C00000 | (imm7 << 15) | (rt2.Encode() << 10) |
		(base.Encode() << 5) | rt1.Encode())
}

// ============================================================================
// 重定位解析
// ============================================================================

// resolveRelocations 解析所有重定位
func (a *ARM64Assembler) resolveRelocations() error {
	for _, reloc := range a.relocs {
		targetPos, ok := a.labels[reloc.target]
		if !ok {
			return errUnboundLabel(reloc.target)
		}

		// 偏移以指令为单位（4 字节）
		offset := (targetPos - reloc.offset) / 4
		instr := binary.LittleEndian.Uint32(a.code[reloc.offset:])

		switch reloc.kind {
		case relocBranch:
			if offset > 0x1FFFFFF || offset < -0x2000000 {
				return errRelocOverflow(reloc.target)
			}
			instr = (instr &^ 0x03FFFFFF) | (uint32(offset) & 0x03FFFFFF)
		case relocCondBr, relocCBZ:
			if offset > 0x3FFFF || offset < -0x40000 {
				return errRelocOverflow(reloc.target)
			}
			instr = (instr &^ 0x00FFFFE0) | ((uint32(offset) & 0x7FFFF) << 5)
		}

		binary.LittleEndian.PutUint32(a.code[reloc.offset:], instr)
	}
	return nil
}
