//go:build (amd64 || arm64) && (linux || darwin)

// exec_test.go - 编译轨迹的本机执行
//
// 真正把生成的机器码跑起来，对照解释器语义验证局部变量的终态
// 与退出偏移。

package jit

import (
	"math"
	"testing"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/program"
	"github.com/tangzhangming/minijvm/internal/trace"
)

// compileRecording 编译轨迹，失败即终止测试
func compileRecording(t *testing.T, rec *trace.Recording) *CompiledTrace {
	t.Helper()
	ct, err := NewCompiler(nil).Compile(rec)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	t.Cleanup(func() { ct.release() })
	return ct
}

// TestExecuteLoopSum 计数循环：进入时 sum=1, i=2，跑到 i=10
func TestExecuteLoopSum(t *testing.T) {
	ct := compileRecording(t, loopSumRecording(t))

	locals := []uint64{uint64(int64(1)), uint64(int64(2))}
	exit := ct.Execute(locals, nil)

	if exit != 20 {
		t.Errorf("exit = %d, want 20", exit)
	}
	// sum = 1 + 2 + 3 + ... + 9 = 45
	if got := int64(locals[0]); got != 45 {
		t.Errorf("sum = %d, want 45", got)
	}
	if got := int64(locals[1]); got != 10 {
		t.Errorf("i = %d, want 10", got)
	}
}

// TestExecuteTwiceIdempotent 已编译的循环重入：第二次立即守卫退出
func TestExecuteTwiceIdempotent(t *testing.T) {
	ct := compileRecording(t, loopSumRecording(t))

	locals := []uint64{0, 0}
	if exit := ct.Execute(locals, nil); exit != 20 {
		t.Fatalf("first run exit = %d, want 20", exit)
	}
	sum, i := locals[0], locals[1]

	// 第二次进入时 i=10：守卫立刻失败，状态不变
	if exit := ct.Execute(locals, nil); exit != 20 {
		t.Fatalf("second run exit = %d, want 20", exit)
	}
	if locals[0] != sum || locals[1] != i {
		t.Errorf("second entry mutated state: sum %d->%d, i %d->%d",
			int64(sum), int64(locals[0]), int64(i), int64(locals[1]))
	}
}

// TestExecuteDoubleLoop double 累加
func TestExecuteDoubleLoop(t *testing.T) {
	ct := compileRecording(t, doubleLoopRecording(t))

	locals := make([]uint64, 4)
	locals[1] = math.Float64bits(0)
	locals[3] = uint64(int64(4)) // limit

	exit := ct.Execute(locals, nil)
	if exit != 30 {
		t.Errorf("exit = %d, want 30", exit)
	}
	if got := math.Float64frombits(locals[1]); got != 2.0 {
		t.Errorf("acc = %g, want 2.0", got)
	}
	if got := int64(locals[0]); got != 4 {
		t.Errorf("i = %d, want 4", got)
	}
}

// TestExecuteDivFault 除零经故障哨兵返回
func TestExecuteDivFault(t *testing.T) {
	mk := func(offset int) program.PC { return program.PC{Method: 0, Offset: offset} }
	rec := &trace.Recording{
		Entry:     mk(0),
		ExitPC:    -1,
		MaxLocals: 2,
		Entries: []trace.Entry{
			{PC: mk(0), Inst: inst(bytecode.Iload0, 0, 1, bytecode.NewInt(0))},
			{PC: mk(1), Inst: inst(bytecode.Iload1, 1, 1, bytecode.NewInt(1))},
			{PC: mk(2), Inst: inst(bytecode.Idiv, 2, 1)},
			{PC: mk(3), Inst: inst(bytecode.Istore0, 3, 1, bytecode.NewInt(0))},
			{PC: mk(4), Inst: inst(bytecode.Goto, 4, 3, bytecode.NewInt(-4)), CloseLoop: true},
		},
	}
	ct := compileRecording(t, rec)

	locals := []uint64{uint64(int64(10)), 0}
	exit := ct.Execute(locals, nil)
	pc, fault := DecodeFaultExit(exit)
	if !fault || pc != 2 {
		t.Errorf("exit = %d (pc=%d fault=%v), want fault at pc=2", exit, pc, fault)
	}
}

// TestExecuteMinIntDiv INT_MIN / -1 回绕而非陷入
func TestExecuteMinIntDiv(t *testing.T) {
	mk := func(offset int) program.PC { return program.PC{Method: 0, Offset: offset} }
	// 单次守卫退出的结构：计算 a/b 存回，再经恒假守卫离开
	rec := &trace.Recording{
		Entry:     mk(0),
		ExitPC:    20,
		MaxLocals: 3,
		Entries: []trace.Entry{
			{PC: mk(0), Inst: inst(bytecode.Iload0, 0, 1, bytecode.NewInt(0))},
			{PC: mk(1), Inst: inst(bytecode.Iload1, 1, 1, bytecode.NewInt(1))},
			{PC: mk(2), Inst: inst(bytecode.Idiv, 2, 1)},
			{PC: mk(3), Inst: inst(bytecode.Istore2, 3, 1, bytecode.NewInt(2))},
			{PC: mk(4), Inst: inst(bytecode.Iload2, 4, 1, bytecode.NewInt(2))},
			{
				PC:        mk(5),
				Inst:      inst(bytecode.Ifne, 5, 3, bytecode.NewInt(15)),
				IsGuard:   true,
				GuardOp:   bytecode.Ifne,
				GuardExit: 20,
			},
			{PC: mk(8), Inst: inst(bytecode.Goto, 8, 3, bytecode.NewInt(-8)), CloseLoop: true},
		},
	}
	ct := compileRecording(t, rec)

	minInt32 := int64(math.MinInt32)
	negOne := int64(-1)
	locals := []uint64{uint64(minInt32), uint64(negOne), 0}
	exit := ct.Execute(locals, nil)
	if exit != 20 {
		t.Fatalf("exit = %d, want 20", exit)
	}
	if got := int32(locals[2]); got != math.MinInt32 {
		t.Errorf("MinInt32 / -1 = %d, want MinInt32", got)
	}
}
