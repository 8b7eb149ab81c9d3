//go:build amd64

// codegen_amd64.go - 轨迹到 x86-64 机器码的翻译
//
// 寄存器约定（轨迹体遵循 System V 参数位置）：
//   RDI: 局部变量槽位数组基址    RSI: 辅助表基址（未使用）
//   RAX/RCX/RDX: 整数暂存        XMM0/XMM1: 浮点暂存
//   RAX 同时承载返回值（退出偏移）
//
// 采用最简栈机降级：模拟操作数栈放在本机栈帧内，每个逻辑值占
// 8 字节，编译期深度静态已知。局部变量读写直接落到槽位数组，
// 侧退出时无需额外同步。
//
// 约束（int 槽位规范形式）：整数槽位始终保存符号扩展后的 64 位值，
// 32 位运算后立即 movsxd 恢复规范形式。

package jit

import (
	"math"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/trace"
)

// archSupported 目标架构是否有代码生成器
const archSupported = true

// generateTrace 将轨迹翻译为 x86-64 机器码
func generateTrace(rec *trace.Recording, lt *LocalTypes) ([]byte, error) {
	maxDepth, err := simulateStack(rec)
	if err != nil {
		return nil, err
	}

	g := &x64gen{
		a:          NewX64Assembler(),
		rec:        rec,
		lt:         lt,
		pcLabels:   make(map[int]int),
		exitStubs:  make(map[int]int),
		faultStubs: make(map[int]int),
	}
	return g.generate(maxDepth)
}

// x64gen 单条轨迹的生成状态
type x64gen struct {
	a         *X64Assembler
	rec       *trace.Recording
	lt        *LocalTypes
	depth     int
	frameSize int32
	pcLabels   map[int]int // 字节偏移 -> 标签（轨迹内跳转目标）
	exitStubs  map[int]int // 退出偏移 -> 标签
	faultStubs map[int]int // 除零故障偏移 -> 标签
	epilogue   int
}

// pcLabel 取（或分配）某字节偏移对应的标签
func (g *x64gen) pcLabel(pc int) int {
	if id, ok := g.pcLabels[pc]; ok {
		return id
	}
	id := g.a.NewLabel()
	g.pcLabels[pc] = id
	return id
}

// exitStub 取（或分配）某退出偏移的退出桩标签
func (g *x64gen) exitStub(exitPC int) int {
	if id, ok := g.exitStubs[exitPC]; ok {
		return id
	}
	id := g.a.NewLabel()
	g.exitStubs[exitPC] = id
	return id
}

// faultStub 取（或分配）某除法偏移的故障桩标签
func (g *x64gen) faultStub(pc int) int {
	if id, ok := g.faultStubs[pc]; ok {
		return id
	}
	id := g.a.NewLabel()
	g.faultStubs[pc] = id
	return id
}

// slot 模拟栈第 d 个槽位相对 RBP 的偏移
func (g *x64gen) slot(d int) int32 {
	return -8 * int32(d+1)
}

// localOff 局部变量 index 在槽位数组中的偏移
func localOff(index int32) int32 {
	return index * 8
}

// generate 发射整条轨迹
func (g *x64gen) generate(maxDepth int) ([]byte, error) {
	a := g.a
	g.epilogue = a.NewLabel()
	g.frameSize = int32((maxDepth*8 + 15) &^ 15)
	if g.frameSize == 0 {
		g.frameSize = 16
	}

	// 序言：建帧并把 Go ABI 入参（RAX/RBX）搬到 System V 位置
	a.Push(RBP)
	a.MovRegReg(RBP, RSP)
	a.SubRegImm32(RSP, g.frameSize)
	a.MovRegReg(RDI, RAX)
	a.MovRegReg(RSI, RBX)

	for i := range g.rec.Entries {
		entry := &g.rec.Entries[i]
		a.Label(g.pcLabel(entry.PC.Offset))
		if err := g.emitEntry(entry); err != nil {
			return nil, err
		}
	}

	// 退出桩：装载退出偏移，汇入共享尾声
	for exitPC, label := range g.exitStubs {
		a.Label(label)
		a.MovRegImm32(RAX, int32(exitPC))
		a.Jmp(g.epilogue)
	}

	// 故障桩：除零返回负哨兵，移交层转为致命诊断
	for pc, label := range g.faultStubs {
		a.Label(label)
		a.MovRegImm32(RAX, int32(faultExitCode(pc)))
		a.Jmp(g.epilogue)
	}

	// 尾声
	a.Label(g.epilogue)
	a.MovRegReg(RSP, RBP)
	a.Pop(RBP)
	a.Ret()

	return a.Code()
}

// push 把 RAX 压入模拟栈
func (g *x64gen) push() {
	g.a.MovMemReg(RBP, g.slot(g.depth), RAX)
	g.depth++
}

// loadTop 把模拟栈自顶向下第 n 个值（0 为栈顶）装入寄存器
func (g *x64gen) loadTop(n int, reg X64Reg) {
	g.a.MovRegMem(reg, RBP, g.slot(g.depth-1-n))
}

// emitEntry 翻译一条轨迹记录
func (g *x64gen) emitEntry(entry *trace.Entry) error {
	a := g.a
	inst := &entry.Inst
	op := inst.Op

	switch {
	// 常量
	case op >= bytecode.IconstM1 && op <= bytecode.Iconst5,
		op == bytecode.Bipush, op == bytecode.Sipush:
		a.MovRegImm32(RAX, inst.Operand(0).Int())
		g.push()
	case op == bytecode.Lconst0, op == bytecode.Lconst1:
		a.MovRegImm64(RAX, uint64(inst.Operand(0).Long()))
		g.push()
	case op >= bytecode.Fconst0 && op <= bytecode.Fconst2:
		a.MovRegImm32Zx(RAX, int32(math.Float32bits(inst.Operand(0).Float())))
		g.push()
	case op == bytecode.Dconst0, op == bytecode.Dconst1:
		a.MovRegImm64(RAX, math.Float64bits(inst.Operand(0).Double()))
		g.push()
	case op == bytecode.Ldc, op == bytecode.LdcW, op == bytecode.Ldc2W:
		v := inst.Operand(0)
		switch v.Kind {
		case bytecode.KindInt:
			a.MovRegImm32(RAX, v.Int())
		case bytecode.KindFloat:
			a.MovRegImm32Zx(RAX, int32(uint32(v.Bits)))
		default:
			a.MovRegImm64(RAX, v.Bits)
		}
		g.push()

	// 局部变量
	case isLoadOp(op):
		a.MovRegMem(RAX, RDI, localOff(inst.Operand(0).Int()))
		g.push()
	case isStoreOp(op):
		g.loadTop(0, RAX)
		a.MovMemReg(RDI, localOff(inst.Operand(0).Int()), RAX)
		g.depth--
	case op == bytecode.Iinc:
		off := localOff(inst.Operand(0).Int())
		a.MovRegMem(RAX, RDI, off)
		a.AddRegImm32To32(RAX, inst.Operand(1).Int())
		a.MovsxdRegReg(RAX, RAX)
		a.MovMemReg(RDI, off, RAX)

	// 栈操作
	case op == bytecode.Dup:
		g.loadTop(0, RAX)
		g.push()
	case op == bytecode.Pop:
		g.depth--
	case op == bytecode.Nop:

	// int 算术（32 位回绕后恢复规范形式）
	case op == bytecode.Iadd, op == bytecode.Isub, op == bytecode.Imul:
		g.loadTop(1, RAX)
		g.loadTop(0, RCX)
		switch op {
		case bytecode.Iadd:
			a.AddRegReg32(RAX, RCX)
		case bytecode.Isub:
			a.SubRegReg32(RAX, RCX)
		case bytecode.Imul:
			a.IMulRegReg32(RAX, RCX)
		}
		a.MovsxdRegReg(RAX, RAX)
		g.depth -= 2
		g.push()
	case op == bytecode.Ineg:
		g.loadTop(0, RAX)
		a.NegReg32(RAX)
		a.MovsxdRegReg(RAX, RAX)
		g.depth--
		g.push()
	case op == bytecode.Idiv, op == bytecode.Irem:
		// 除零是致命错误：经故障桩返回负哨兵，移交层直接报诊断。
		// 除数 -1 内联处理（idiv 对 INT_MIN/-1 触发 #DE，而 JVMS
		// 要求回绕：商为取负，余数为 0）。
		g.loadTop(1, RAX)
		g.loadTop(0, RCX)
		a.CmpRegImm32To32(RCX, 0)
		a.Je(g.faultStub(entry.PC.Offset))
		norm, done := a.NewLabel(), a.NewLabel()
		a.CmpRegImm32To32(RCX, -1)
		a.Jne(norm)
		if op == bytecode.Idiv {
			a.NegReg32(RAX)
		} else {
			a.MovRegImm32Zx(RAX, 0)
		}
		a.Jmp(done)
		a.Label(norm)
		a.CDQ()
		a.IDivReg32(RCX)
		if op == bytecode.Irem {
			a.MovRegReg(RAX, RDX)
		}
		a.Label(done)
		a.MovsxdRegReg(RAX, RAX)
		g.depth -= 2
		g.push()

	// long 算术
	case op == bytecode.Ladd, op == bytecode.Lsub, op == bytecode.Lmul:
		g.loadTop(1, RAX)
		g.loadTop(0, RCX)
		switch op {
		case bytecode.Ladd:
			a.AddRegReg(RAX, RCX)
		case bytecode.Lsub:
			a.SubRegReg(RAX, RCX)
		case bytecode.Lmul:
			a.IMulRegReg(RAX, RCX)
		}
		g.depth -= 2
		g.push()
	case op == bytecode.Lneg:
		g.loadTop(0, RAX)
		a.NegReg(RAX)
		g.depth--
		g.push()
	case op == bytecode.Ldiv, op == bytecode.Lrem:
		g.loadTop(1, RAX)
		g.loadTop(0, RCX)
		a.CmpRegImm32(RCX, 0)
		a.Je(g.faultStub(entry.PC.Offset))
		norm, done := a.NewLabel(), a.NewLabel()
		a.CmpRegImm32(RCX, -1)
		a.Jne(norm)
		if op == bytecode.Ldiv {
			a.NegReg(RAX)
		} else {
			a.MovRegImm32Zx(RAX, 0)
		}
		a.Jmp(done)
		a.Label(norm)
		a.CQO()
		a.IDivReg(RCX)
		if op == bytecode.Lrem {
			a.MovRegReg(RAX, RDX)
		}
		a.Label(done)
		g.depth -= 2
		g.push()

	// 浮点算术
	case op == bytecode.Fadd, op == bytecode.Fsub, op == bytecode.Fmul, op == bytecode.Fdiv:
		a.MovssXmmMem(XMM0, RBP, g.slot(g.depth-2))
		a.MovssXmmMem(XMM1, RBP, g.slot(g.depth-1))
		switch op {
		case bytecode.Fadd:
			a.AddssXmmXmm(XMM0, XMM1)
		case bytecode.Fsub:
			a.SubssXmmXmm(XMM0, XMM1)
		case bytecode.Fmul:
			a.MulssXmmXmm(XMM0, XMM1)
		case bytecode.Fdiv:
			a.DivssXmmXmm(XMM0, XMM1)
		}
		g.depth -= 2
		a.MovssMemXmm(RBP, g.slot(g.depth), XMM0)
		g.depth++
	case op == bytecode.Dadd, op == bytecode.Dsub, op == bytecode.Dmul, op == bytecode.Ddiv:
		a.MovsdXmmMem(XMM0, RBP, g.slot(g.depth-2))
		a.MovsdXmmMem(XMM1, RBP, g.slot(g.depth-1))
		switch op {
		case bytecode.Dadd:
			a.AddsdXmmXmm(XMM0, XMM1)
		case bytecode.Dsub:
			a.SubsdXmmXmm(XMM0, XMM1)
		case bytecode.Dmul:
			a.MulsdXmmXmm(XMM0, XMM1)
		case bytecode.Ddiv:
			a.DivsdXmmXmm(XMM0, XMM1)
		}
		g.depth -= 2
		a.MovsdMemXmm(RBP, g.slot(g.depth), XMM0)
		g.depth++
	case op == bytecode.Fneg, op == bytecode.Dneg:
		if op == bytecode.Fneg {
			a.MovssXmmMem(XMM0, RBP, g.slot(g.depth-1))
			a.MovRegImm64(RAX, 0x80000000)
		} else {
			a.MovsdXmmMem(XMM0, RBP, g.slot(g.depth-1))
			a.MovRegImm64(RAX, 0x8000000000000000)
		}
		a.MovqXmmReg(XMM1, RAX)
		a.XorpdXmmXmm(XMM0, XMM1)
		g.depth--
		if op == bytecode.Fneg {
			a.MovssMemXmm(RBP, g.slot(g.depth), XMM0)
		} else {
			a.MovsdMemXmm(RBP, g.slot(g.depth), XMM0)
		}
		g.depth++

	// 类型转换
	case op == bytecode.I2L:
		// int 槽位已是符号扩展的规范形式
	case op == bytecode.L2I:
		g.loadTop(0, RAX)
		a.MovsxdRegReg(RAX, RAX)
		g.depth--
		g.push()
	case op == bytecode.I2F, op == bytecode.L2F:
		g.loadTop(0, RAX)
		a.Cvtsi2ssXmmReg(XMM0, RAX)
		g.depth--
		a.MovssMemXmm(RBP, g.slot(g.depth), XMM0)
		g.depth++
	case op == bytecode.I2D, op == bytecode.L2D:
		g.loadTop(0, RAX)
		a.Cvtsi2sdXmmReg(XMM0, RAX)
		g.depth--
		a.MovsdMemXmm(RBP, g.slot(g.depth), XMM0)
		g.depth++
	case op == bytecode.F2D:
		a.MovssXmmMem(XMM0, RBP, g.slot(g.depth-1))
		a.Cvtss2sdXmmXmm(XMM0, XMM0)
		g.depth--
		a.MovsdMemXmm(RBP, g.slot(g.depth), XMM0)
		g.depth++
	case op == bytecode.D2F:
		a.MovsdXmmMem(XMM0, RBP, g.slot(g.depth-1))
		a.Cvtsd2ssXmmXmm(XMM0, XMM0)
		g.depth--
		a.MovssMemXmm(RBP, g.slot(g.depth), XMM0)
		g.depth++

	// 比较：产出 -1/0/1
	case op == bytecode.Lcmp:
		g.loadTop(1, RAX)
		g.loadTop(0, RCX)
		done := a.NewLabel()
		a.CmpRegReg(RAX, RCX)
		a.MovRegImm32Zx(RAX, -1)
		a.Jl(done)
		a.MovRegImm32Zx(RAX, 1)
		a.Jg(done)
		a.MovRegImm32Zx(RAX, 0)
		a.Label(done)
		a.MovsxdRegReg(RAX, RAX)
		g.depth -= 2
		g.push()
	case op == bytecode.Fcmpl, op == bytecode.Fcmpg,
		op == bytecode.Dcmpl, op == bytecode.Dcmpg:
		single := op == bytecode.Fcmpl || op == bytecode.Fcmpg
		if single {
			a.MovssXmmMem(XMM0, RBP, g.slot(g.depth-2))
			a.MovssXmmMem(XMM1, RBP, g.slot(g.depth-1))
			a.UcomissXmmXmm(XMM0, XMM1)
		} else {
			a.MovsdXmmMem(XMM0, RBP, g.slot(g.depth-2))
			a.MovsdXmmMem(XMM1, RBP, g.slot(g.depth-1))
			a.UcomisdXmmXmm(XMM0, XMM1)
		}
		nanRes := int32(-1)
		if op == bytecode.Fcmpg || op == bytecode.Dcmpg {
			nanRes = 1
		}
		done := a.NewLabel()
		a.MovRegImm32Zx(RAX, nanRes)
		a.Jp(done)
		a.MovRegImm32Zx(RAX, -1)
		a.Jb(done)
		a.MovRegImm32Zx(RAX, 0)
		a.Je(done)
		a.MovRegImm32Zx(RAX, 1)
		a.Label(done)
		a.MovsxdRegReg(RAX, RAX)
		g.depth -= 2
		g.push()

	// 守卫与跳转
	case op.IsCondBranch():
		if !entry.IsGuard {
			return errUnsupportedOp(op)
		}
		if err := g.emitGuard(entry); err != nil {
			return err
		}
		if entry.CloseLoop {
			a.Jmp(g.pcLabel(g.rec.Entry.Offset))
		}
	case op == bytecode.Goto, op == bytecode.GotoW:
		if entry.CloseLoop {
			a.Jmp(g.pcLabel(g.rec.Entry.Offset))
		} else {
			a.Jmp(g.pcLabel(entry.Inst.BranchTarget()))
		}

	default:
		return errUnsupportedOp(op)
	}
	return nil
}

// emitGuard 发射守卫：条件成立时离开轨迹
func (g *x64gen) emitGuard(entry *trace.Entry) error {
	a := g.a
	stub := g.exitStub(entry.GuardExit)
	cond := entry.GuardOp

	if cond >= bytecode.IfIcmpeq && cond <= bytecode.IfIcmple {
		g.loadTop(1, RAX)
		g.loadTop(0, RCX)
		a.CmpRegReg32(RAX, RCX)
		g.depth -= 2
	} else {
		g.loadTop(0, RAX)
		a.CmpRegImm32To32(RAX, 0)
		g.depth--
	}

	switch cond {
	case bytecode.Ifeq, bytecode.IfIcmpeq:
		a.Je(stub)
	case bytecode.Ifne, bytecode.IfIcmpne:
		a.Jne(stub)
	case bytecode.Iflt, bytecode.IfIcmplt:
		a.Jl(stub)
	case bytecode.Ifge, bytecode.IfIcmpge:
		a.Jge(stub)
	case bytecode.Ifgt, bytecode.IfIcmpgt:
		a.Jg(stub)
	case bytecode.Ifle, bytecode.IfIcmple:
		a.Jle(stub)
	default:
		return errUnsupportedOp(cond)
	}
	return nil
}
