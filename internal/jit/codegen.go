// codegen.go - 各架构代码生成器共享的轨迹分析
//
// 轨迹是线性指令序列，模拟操作数栈的深度在每条指令处静态可知。
// 发射机器码前先做一遍深度模拟：确定栈帧大小，同时把越界、
// 下溢和不支持的操作码在进入发射阶段前拒绝掉。

package jit

import (
	"fmt"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/trace"
)

// simulateStack 模拟轨迹的操作数栈深度
// 返回最大深度；深度下溢或出现生成器不支持的操作码时报错
func simulateStack(rec *trace.Recording) (int, error) {
	depth, maxDepth := 0, 0
	for i := range rec.Entries {
		entry := &rec.Entries[i]
		pop, push, err := stackEffect(entry)
		if err != nil {
			return 0, err
		}
		depth -= pop
		if depth < 0 {
			return 0, &CompileError{
				Reason: fmt.Sprintf("stack underflow at pc=%d (%s)", entry.PC.Offset, entry.Inst.Op),
			}
		}
		depth += push
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	if depth != 0 {
		return 0, &CompileError{
			Reason: fmt.Sprintf("trace ends with stack depth %d", depth),
		}
	}
	return maxDepth, nil
}

// stackEffect 返回指令消耗与产出的逻辑栈值个数
func stackEffect(entry *trace.Entry) (pop, push int, err error) {
	op := entry.Inst.Op
	switch {
	case op >= bytecode.IconstM1 && op <= bytecode.Dconst1,
		op == bytecode.Bipush, op == bytecode.Sipush,
		op == bytecode.Ldc, op == bytecode.LdcW, op == bytecode.Ldc2W,
		isLoadOp(op):
		return 0, 1, nil
	case isStoreOp(op), op == bytecode.Pop:
		return 1, 0, nil
	case op == bytecode.Dup:
		return 1, 2, nil
	case op == bytecode.Iinc, op == bytecode.Nop:
		return 0, 0, nil
	case op == bytecode.Iadd, op == bytecode.Isub, op == bytecode.Imul,
		op == bytecode.Idiv, op == bytecode.Irem,
		op == bytecode.Ladd, op == bytecode.Lsub, op == bytecode.Lmul,
		op == bytecode.Ldiv, op == bytecode.Lrem,
		op == bytecode.Fadd, op == bytecode.Fsub, op == bytecode.Fmul, op == bytecode.Fdiv,
		op == bytecode.Dadd, op == bytecode.Dsub, op == bytecode.Dmul, op == bytecode.Ddiv,
		op == bytecode.Lcmp, op == bytecode.Fcmpl, op == bytecode.Fcmpg,
		op == bytecode.Dcmpl, op == bytecode.Dcmpg:
		return 2, 1, nil
	case op == bytecode.Ineg, op == bytecode.Lneg,
		op == bytecode.Fneg, op == bytecode.Dneg,
		op == bytecode.I2L, op == bytecode.L2I,
		op == bytecode.I2F, op == bytecode.I2D,
		op == bytecode.L2F, op == bytecode.L2D,
		op == bytecode.F2D, op == bytecode.D2F:
		return 1, 1, nil
	case op.IsCondBranch():
		if !entry.IsGuard {
			return 0, 0, errUnsupportedOp(op)
		}
		if entry.GuardOp >= bytecode.IfIcmpeq && entry.GuardOp <= bytecode.IfIcmple {
			return 2, 0, nil
		}
		return 1, 0, nil
	case op == bytecode.Goto, op == bytecode.GotoW:
		return 0, 0, nil
	}
	// frem/drem 与窄化浮点转换走解释器（JVMS 的 NaN/饱和规则）
	return 0, 0, errUnsupportedOp(op)
}

// isLoadOp 检查是否是局部变量加载
func isLoadOp(op bytecode.OpCode) bool {
	switch {
	case op >= bytecode.Iload && op <= bytecode.Dload:
		return true
	case op >= bytecode.Iload0 && op <= bytecode.Dload3:
		return true
	}
	return false
}

// isStoreOp 检查是否是局部变量存储
func isStoreOp(op bytecode.OpCode) bool {
	switch {
	case op >= bytecode.Istore && op <= bytecode.Dstore:
		return true
	case op >= bytecode.Istore0 && op <= bytecode.Dstore3:
		return true
	}
	return false
}
