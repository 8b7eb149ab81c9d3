// testutil_test.go - 测试共用的轨迹构造

package jit

import (
	"testing"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/program"
	"github.com/tangzhangming/minijvm/internal/trace"
)

// inst 构造规范化指令
func inst(op bytecode.OpCode, pc, width int, operands ...bytecode.Value) bytecode.Instruction {
	return bytecode.Instruction{Op: op, PC: pc, Width: width, Operands: operands}
}

// loopSumRecording 计数循环的轨迹：
//
//	for (i < 10) { sum += i; i++ }，入口 4，自然出口 20
func loopSumRecording(t *testing.T) *trace.Recording {
	t.Helper()
	entry := program.PC{Method: 0, Offset: 4}
	mk := func(offset int) program.PC { return program.PC{Method: 0, Offset: offset} }

	return &trace.Recording{
		Entry:     entry,
		ExitPC:    20,
		MaxLocals: 2,
		Entries: []trace.Entry{
			{PC: mk(4), Inst: inst(bytecode.Iload1, 4, 1, bytecode.NewInt(1))},
			{PC: mk(5), Inst: inst(bytecode.Bipush, 5, 2, bytecode.NewInt(10))},
			{
				PC:        mk(7),
				Inst:      inst(bytecode.IfIcmpge, 7, 3, bytecode.NewInt(13)),
				IsGuard:   true,
				GuardOp:   bytecode.IfIcmpge,
				GuardExit: 20,
			},
			{PC: mk(10), Inst: inst(bytecode.Iload0, 10, 1, bytecode.NewInt(0))},
			{PC: mk(11), Inst: inst(bytecode.Iload1, 11, 1, bytecode.NewInt(1))},
			{PC: mk(12), Inst: inst(bytecode.Iadd, 12, 1)},
			{PC: mk(13), Inst: inst(bytecode.Istore0, 13, 1, bytecode.NewInt(0))},
			{PC: mk(14), Inst: inst(bytecode.Iinc, 14, 3, bytecode.NewInt(1), bytecode.NewInt(1))},
			{
				PC:        mk(17),
				Inst:      inst(bytecode.Goto, 17, 3, bytecode.NewInt(-13)),
				CloseLoop: true,
			},
		},
	}
}

// doubleLoopRecording double 累加循环：
//
//	for (i < limit) { acc += 0.5; i++ }
// 局部 0: int i，局部 1: double acc（占槽位 1-2），局部 3: int limit
func doubleLoopRecording(t *testing.T) *trace.Recording {
	t.Helper()
	mk := func(offset int) program.PC { return program.PC{Method: 0, Offset: offset} }

	return &trace.Recording{
		Entry:     mk(0),
		ExitPC:    30,
		MaxLocals: 4,
		Entries: []trace.Entry{
			{PC: mk(0), Inst: inst(bytecode.Iload0, 0, 1, bytecode.NewInt(0))},
			{PC: mk(1), Inst: inst(bytecode.Iload, 1, 2, bytecode.NewInt(3))},
			{
				PC:        mk(3),
				Inst:      inst(bytecode.IfIcmpge, 3, 3, bytecode.NewInt(27)),
				IsGuard:   true,
				GuardOp:   bytecode.IfIcmpge,
				GuardExit: 30,
			},
			{PC: mk(6), Inst: inst(bytecode.Dload1, 6, 1, bytecode.NewInt(1))},
			{PC: mk(7), Inst: inst(bytecode.Ldc2W, 7, 3, bytecode.NewDouble(0.5))},
			{PC: mk(10), Inst: inst(bytecode.Dadd, 10, 1)},
			{PC: mk(11), Inst: inst(bytecode.Dstore1, 11, 1, bytecode.NewInt(1))},
			{PC: mk(12), Inst: inst(bytecode.Iinc, 12, 3, bytecode.NewInt(0), bytecode.NewInt(1))},
			{
				PC:        mk(15),
				Inst:      inst(bytecode.Goto, 15, 3, bytecode.NewInt(-15)),
				CloseLoop: true,
			},
		},
	}
}
