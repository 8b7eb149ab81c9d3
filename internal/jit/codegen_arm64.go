//go:build arm64

// codegen_arm64.go - 轨迹到 ARM64 机器码的翻译
//
// 寄存器约定（AAPCS 与 Go 寄存器 ABI 的参数位置一致，无需搬移）：
//   X0: 入参 1（局部变量基址），同时承载返回值
//   X1: 入参 2（辅助表基址，未使用）
//   X9: 局部变量基址    X10: 辅助表基址
//   X0-X3: 整数暂存     D0-D2: 浮点暂存
//
// 模拟操作数栈位于 sub sp 之后的栈帧内，槽位 d 在 [sp, #8d]。
// 与 amd64 相同的最简栈机降级。

package jit

import (
	"math"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/trace"
)

// archSupported 目标架构是否有代码生成器
const archSupported = true

// generateTrace 将轨迹翻译为 ARM64 机器码
func generateTrace(rec *trace.Recording, lt *LocalTypes) ([]byte, error) {
	maxDepth, err := simulateStack(rec)
	if err != nil {
		return nil, err
	}

	g := &arm64gen{
		a:          NewARM64Assembler(),
		rec:        rec,
		lt:         lt,
		pcLabels:   make(map[int]int),
		exitStubs:  make(map[int]int),
		faultStubs: make(map[int]int),
	}
	return g.generate(maxDepth)
}

// arm64gen 单条轨迹的生成状态
type arm64gen struct {
	a         *ARM64Assembler
	rec       *trace.Recording
	lt        *LocalTypes
	depth      int
	frameSize  uint32
	pcLabels   map[int]int
	exitStubs  map[int]int
	faultStubs map[int]int
	epilogue   int
}

func (g *arm64gen) pcLabel(pc int) int {
	if id, ok := g.pcLabels[pc]; ok {
		return id
	}
	id := g.a.NewLabel()
	g.pcLabels[pc] = id
	return id
}

func (g *arm64gen) exitStub(exitPC int) int {
	if id, ok := g.exitStubs[exitPC]; ok {
		return id
	}
	id := g.a.NewLabel()
	g.exitStubs[exitPC] = id
	return id
}

// faultStub 取（或分配）某除法偏移的故障桩标签
func (g *arm64gen) faultStub(pc int) int {
	if id, ok := g.faultStubs[pc]; ok {
		return id
	}
	id := g.a.NewLabel()
	g.faultStubs[pc] = id
	return id
}

// slot 模拟栈第 d 个槽位相对 SP 的偏移
func (g *arm64gen) slot(d int) int32 {
	return int32(d) * 8
}

// generate 发射整条轨迹
func (g *arm64gen) generate(maxDepth int) ([]byte, error) {
	a := g.a
	g.epilogue = a.NewLabel()
	g.frameSize = uint32((maxDepth*8 + 15) &^ 15)
	if g.frameSize == 0 {
		g.frameSize = 16
	}
	// sub/add sp 的立即数上限是 imm12
	if g.frameSize > 4080 {
		return nil, &CompileError{Reason: "simulated stack frame too large"}
	}

	// 序言：保存帧指针与返回地址，搬移入参
	a.StpPre(X29, X30, XSP, -16)
	a.MovRegReg(X9, X0)
	a.MovRegReg(X10, X1)
	a.SubSpImm(g.frameSize)

	for i := range g.rec.Entries {
		entry := &g.rec.Entries[i]
		a.Label(g.pcLabel(entry.PC.Offset))
		if err := g.emitEntry(entry); err != nil {
			return nil, err
		}
	}

	for exitPC, label := range g.exitStubs {
		a.Label(label)
		a.MovRegImm64(X0, uint64(int64(exitPC)))
		a.B(g.epilogue)
	}

	// 故障桩：除零返回负哨兵，移交层转为致命诊断
	for pc, label := range g.faultStubs {
		a.Label(label)
		a.MovRegImm64(X0, uint64(faultExitCode(pc)))
		a.B(g.epilogue)
	}

	a.Label(g.epilogue)
	a.AddSpImm(g.frameSize)
	a.LdpPost(X29, X30, XSP, 16)
	a.Ret()

	return a.Code()
}

// push 把寄存器压入模拟栈
func (g *arm64gen) push(src ARM64Reg) {
	g.a.StrRegMem(src, XSP, g.slot(g.depth))
	g.depth++
}

// loadTop 把模拟栈自顶向下第 n 个值装入寄存器
func (g *arm64gen) loadTop(n int, dst ARM64Reg) {
	g.a.LdrRegMem(dst, XSP, g.slot(g.depth-1-n))
}

// emitEntry 翻译一条轨迹记录
func (g *arm64gen) emitEntry(entry *trace.Entry) error {
	a := g.a
	inst := &entry.Inst
	op := inst.Op

	switch {
	// 常量
	case op >= bytecode.IconstM1 && op <= bytecode.Iconst5,
		op == bytecode.Bipush, op == bytecode.Sipush:
		a.MovRegImm64(X0, uint64(int64(inst.Operand(0).Int())))
		g.push(X0)
	case op == bytecode.Lconst0, op == bytecode.Lconst1:
		a.MovRegImm64(X0, uint64(inst.Operand(0).Long()))
		g.push(X0)
	case op >= bytecode.Fconst0 && op <= bytecode.Fconst2:
		a.MovRegImm64(X0, uint64(math.Float32bits(inst.Operand(0).Float())))
		g.push(X0)
	case op == bytecode.Dconst0, op == bytecode.Dconst1:
		a.MovRegImm64(X0, math.Float64bits(inst.Operand(0).Double()))
		g.push(X0)
	case op == bytecode.Ldc, op == bytecode.LdcW, op == bytecode.Ldc2W:
		v := inst.Operand(0)
		if v.Kind == bytecode.KindInt {
			a.MovRegImm64(X0, uint64(int64(v.Int())))
		} else {
			a.MovRegImm64(X0, v.Bits)
		}
		g.push(X0)

	// 局部变量
	case isLoadOp(op):
		a.LdrRegMem(X0, X9, inst.Operand(0).Int()*8)
		g.push(X0)
	case isStoreOp(op):
		g.loadTop(0, X0)
		a.StrRegMem(X0, X9, inst.Operand(0).Int()*8)
		g.depth--
	case op == bytecode.Iinc:
		off := inst.Operand(0).Int() * 8
		a.LdrRegMem(X0, X9, off)
		a.MovRegImm64(X1, uint64(int64(inst.Operand(1).Int())))
		a.AddRegReg32(X0, X0, X1)
		a.Sxtw(X0, X0)
		a.StrRegMem(X0, X9, off)

	// 栈操作
	case op == bytecode.Dup:
		g.loadTop(0, X0)
		g.push(X0)
	case op == bytecode.Pop:
		g.depth--
	case op == bytecode.Nop:

	// int 算术
	case op == bytecode.Iadd, op == bytecode.Isub, op == bytecode.Imul:
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		switch op {
		case bytecode.Iadd:
			a.AddRegReg32(X0, X0, X1)
		case bytecode.Isub:
			a.SubRegReg32(X0, X0, X1)
		case bytecode.Imul:
			a.MulReg32(X0, X0, X1)
		}
		a.Sxtw(X0, X0)
		g.depth -= 2
		g.push(X0)
	case op == bytecode.Ineg:
		g.loadTop(0, X0)
		a.NegReg32(X0, X0)
		a.Sxtw(X0, X0)
		g.depth--
		g.push(X0)
	case op == bytecode.Idiv, op == bytecode.Irem:
		// sdiv 不会陷入（INT_MIN/-1 按回绕出结果），但除零必须按
		// JVMS 报致命错误：经故障桩返回负哨兵
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		a.Cbz32(X1, g.faultStub(entry.PC.Offset))
		a.SdivReg32(X2, X0, X1)
		if op == bytecode.Irem {
			a.MsubReg32(X2, X2, X1, X0)
		}
		a.Sxtw(X0, X2)
		g.depth -= 2
		g.push(X0)

	// long 算术
	case op == bytecode.Ladd, op == bytecode.Lsub, op == bytecode.Lmul:
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		switch op {
		case bytecode.Ladd:
			a.AddRegReg(X0, X0, X1)
		case bytecode.Lsub:
			a.SubRegReg(X0, X0, X1)
		case bytecode.Lmul:
			a.MulReg(X0, X0, X1)
		}
		g.depth -= 2
		g.push(X0)
	case op == bytecode.Lneg:
		g.loadTop(0, X0)
		a.NegReg(X0, X0)
		g.depth--
		g.push(X0)
	case op == bytecode.Ldiv, op == bytecode.Lrem:
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		a.Cbz(X1, g.faultStub(entry.PC.Offset))
		a.SdivReg(X2, X0, X1)
		if op == bytecode.Lrem {
			a.MsubReg(X2, X2, X1, X0)
		}
		a.MovRegReg(X0, X2)
		g.depth -= 2
		g.push(X0)

	// 浮点算术
	case op == bytecode.Fadd, op == bytecode.Fsub, op == bytecode.Fmul, op == bytecode.Fdiv:
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		a.FmovSW(D0, X0)
		a.FmovSW(D1, X1)
		switch op {
		case bytecode.Fadd:
			a.FaddS(D0, D0, D1)
		case bytecode.Fsub:
			a.FsubS(D0, D0, D1)
		case bytecode.Fmul:
			a.FmulS(D0, D0, D1)
		case bytecode.Fdiv:
			a.FdivS(D0, D0, D1)
		}
		a.FmovWS(X0, D0)
		g.depth -= 2
		g.push(X0)
	case op == bytecode.Dadd, op == bytecode.Dsub, op == bytecode.Dmul, op == bytecode.Ddiv:
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		a.FmovDX(D0, X0)
		a.FmovDX(D1, X1)
		switch op {
		case bytecode.Dadd:
			a.FaddD(D0, D0, D1)
		case bytecode.Dsub:
			a.FsubD(D0, D0, D1)
		case bytecode.Dmul:
			a.FmulD(D0, D0, D1)
		case bytecode.Ddiv:
			a.FdivD(D0, D0, D1)
		}
		a.FmovXD(X0, D0)
		g.depth -= 2
		g.push(X0)
	case op == bytecode.Fneg:
		g.loadTop(0, X0)
		a.FmovSW(D0, X0)
		a.FnegS(D0, D0)
		a.FmovWS(X0, D0)
		g.depth--
		g.push(X0)
	case op == bytecode.Dneg:
		g.loadTop(0, X0)
		a.FmovDX(D0, X0)
		a.FnegD(D0, D0)
		a.FmovXD(X0, D0)
		g.depth--
		g.push(X0)

	// 类型转换
	case op == bytecode.I2L:
		// int 槽位已是符号扩展的规范形式
	case op == bytecode.L2I:
		g.loadTop(0, X0)
		a.Sxtw(X0, X0)
		g.depth--
		g.push(X0)
	case op == bytecode.I2F, op == bytecode.L2F:
		g.loadTop(0, X0)
		a.ScvtfSX(D0, X0)
		a.FmovWS(X0, D0)
		g.depth--
		g.push(X0)
	case op == bytecode.I2D, op == bytecode.L2D:
		g.loadTop(0, X0)
		a.ScvtfDX(D0, X0)
		a.FmovXD(X0, D0)
		g.depth--
		g.push(X0)
	case op == bytecode.F2D:
		g.loadTop(0, X0)
		a.FmovSW(D0, X0)
		a.FcvtDS(D0, D0)
		a.FmovXD(X0, D0)
		g.depth--
		g.push(X0)
	case op == bytecode.D2F:
		g.loadTop(0, X0)
		a.FmovDX(D0, X0)
		a.FcvtSD(D0, D0)
		a.FmovWS(X0, D0)
		g.depth--
		g.push(X0)

	// 比较：产出 -1/0/1
	case op == bytecode.Lcmp:
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		done := a.NewLabel()
		a.CmpRegReg(X0, X1)
		a.MovnImm16(X2, 0, 0)
		a.Bcond(CondLT, done)
		a.MovzImm16(X2, 1, 0)
		a.Bcond(CondGT, done)
		a.MovzImm16(X2, 0, 0)
		a.Label(done)
		a.MovRegReg(X0, X2)
		g.depth -= 2
		g.push(X0)
	case op == bytecode.Fcmpl, op == bytecode.Fcmpg,
		op == bytecode.Dcmpl, op == bytecode.Dcmpg:
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		if op == bytecode.Fcmpl || op == bytecode.Fcmpg {
			a.FmovSW(D0, X0)
			a.FmovSW(D1, X1)
			a.FcmpS(D0, D1)
		} else {
			a.FmovDX(D0, X0)
			a.FmovDX(D1, X1)
			a.FcmpD(D0, D1)
		}
		done := a.NewLabel()
		if op == bytecode.Fcmpg || op == bytecode.Dcmpg {
			a.MovzImm16(X2, 1, 0)
		} else {
			a.MovnImm16(X2, 0, 0)
		}
		a.Bcond(CondVS, done)
		a.MovnImm16(X2, 0, 0)
		a.Bcond(CondMI, done)
		a.MovzImm16(X2, 0, 0)
		a.Bcond(CondEQ, done)
		a.MovzImm16(X2, 1, 0)
		a.Label(done)
		a.MovRegReg(X0, X2)
		g.depth -= 2
		g.push(X0)

	// 守卫与跳转
	case op.IsCondBranch():
		if !entry.IsGuard {
			return errUnsupportedOp(op)
		}
		if err := g.emitGuard(entry); err != nil {
			return err
		}
		if entry.CloseLoop {
			a.B(g.pcLabel(g.rec.Entry.Offset))
		}
	case op == bytecode.Goto, op == bytecode.GotoW:
		if entry.CloseLoop {
			a.B(g.pcLabel(g.rec.Entry.Offset))
		} else {
			a.B(g.pcLabel(entry.Inst.BranchTarget()))
		}

	default:
		return errUnsupportedOp(op)
	}
	return nil
}

// emitGuard 发射守卫：条件成立时离开轨迹
func (g *arm64gen) emitGuard(entry *trace.Entry) error {
	a := g.a
	stub := g.exitStub(entry.GuardExit)
	cond := entry.GuardOp

	if cond >= bytecode.IfIcmpeq && cond <= bytecode.IfIcmple {
		g.loadTop(1, X0)
		g.loadTop(0, X1)
		a.CmpRegReg32(X0, X1)
		g.depth -= 2
	} else {
		g.loadTop(0, X0)
		a.CmpRegZero32(X0)
		g.depth--
	}

	switch cond {
	case bytecode.Ifeq, bytecode.IfIcmpeq:
		a.Bcond(CondEQ, stub)
	case bytecode.Ifne, bytecode.IfIcmpne:
		a.Bcond(CondNE, stub)
	case bytecode.Iflt, bytecode.IfIcmplt:
		a.Bcond(CondLT, stub)
	case bytecode.Ifge, bytecode.IfIcmpge:
		a.Bcond(CondGE, stub)
	case bytecode.Ifgt, bytecode.IfIcmpgt:
		a.Bcond(CondGT, stub)
	case bytecode.Ifle, bytecode.IfIcmple:
		a.Bcond(CondLE, stub)
	default:
		return errUnsupportedOp(cond)
	}
	return nil
}
