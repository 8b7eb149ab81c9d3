package trace

import (
	"testing"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/program"
)

// decodeMethod 解码测试方法体，返回偏移到指令的映射
func decodeMethod(t *testing.T, code []byte) map[int]bytecode.Instruction {
	t.Helper()
	insts, err := bytecode.DecodeAll(code)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	m := make(map[int]bytecode.Instruction)
	for _, inst := range insts {
		m[inst.PC] = inst
	}
	return m
}

// step 按执行顺序喂给录制器的一步
type step struct {
	offset int
	depth  int
}

// record 依次录入步骤，返回最后一次的状态
func record(t *testing.T, r *Recorder, insts map[int]bytecode.Instruction, steps []step) Status {
	t.Helper()
	st := StatusRecording
	for _, s := range steps {
		inst, ok := insts[s.offset]
		if !ok {
			t.Fatalf("no instruction at offset %d", s.offset)
		}
		st = r.Record(program.PC{Method: 0, Offset: s.offset}, &inst, s.depth)
		if st != StatusRecording {
			return st
		}
	}
	return st
}

// loopSumCode 经典计数循环
//
//	0: iconst_0        ; sum = 0
//	1: istore_0
//	2: iconst_0        ; i = 0
//	3: istore_1
//	4: iload_1         ; 循环头
//	5: bipush 10
//	7: if_icmpge +13 -> 20
//	10: iload_0
//	11: iload_1
//	12: iadd
//	13: istore_0
//	14: iinc 1,1
//	17: goto -13 -> 4
//	20: iload_0
//	21: ireturn
var loopSumCode = []byte{
	0x03, 0x3b, 0x03, 0x3c,
	0x1b, 0x10, 0x0a, 0xa2, 0x00, 0x0d,
	0x1a, 0x1b, 0x60, 0x3b,
	0x84, 0x01, 0x01,
	0xa7, 0xff, 0xf3,
	0x1a, 0xac,
}

// TestRecordLoopIteration 一轮迭代闭合为轨迹
func TestRecordLoopIteration(t *testing.T) {
	insts := decodeMethod(t, loopSumCode)
	r := NewRecorder(0)
	header := program.PC{Method: 0, Offset: 4}

	if !r.Begin(header, 2, 0) {
		t.Fatal("Begin refused")
	}

	steps := []step{
		{4, 0}, {5, 1}, {7, 2}, // 比较与条件跳转（未跳转）
		{10, 0}, {11, 1}, {12, 2}, {13, 1}, // 循环体
		{14, 0}, {17, 0}, // 步进与回边
		{4, 0}, // 回到循环头：闭合
	}
	st := record(t, r, insts, steps)
	if st != StatusDone {
		t.Fatalf("status = %v, want StatusDone (abort: %s)", st, r.LastAbort())
	}

	rec := r.Finish()
	if rec.Entry != header {
		t.Errorf("entry = %s, want %s", rec.Entry, header)
	}
	if len(rec.Entries) != 9 {
		t.Fatalf("entries = %d, want 9", len(rec.Entries))
	}

	guard := rec.Entries[2]
	if !guard.IsGuard {
		t.Fatal("if_icmpge not turned into a guard")
	}
	// 未跳转方向留在轨迹内：守卫条件就是原条件，跳转目标成为侧退出
	if guard.GuardOp != bytecode.IfIcmpge {
		t.Errorf("guard op = %s, want if_icmpge", guard.GuardOp)
	}
	if guard.GuardExit != 20 {
		t.Errorf("guard exit = %d, want 20", guard.GuardExit)
	}
	if rec.ExitPC != 20 {
		t.Errorf("exit pc = %d, want 20", rec.ExitPC)
	}

	last := rec.Entries[len(rec.Entries)-1]
	if !last.CloseLoop || last.Inst.Op != bytecode.Goto {
		t.Errorf("trace does not close with the backward goto")
	}
}

// TestRecordFlipTakenBranch 跳转一侧留在轨迹内时条件取反
func TestRecordFlipTakenBranch(t *testing.T) {
	// do-while：
	//  0: iinc 0,1
	//  3: iload_0
	//  4: bipush 10
	//  6: if_icmplt -6 -> 0
	//  9: return
	code := []byte{0x84, 0x00, 0x01, 0x1a, 0x10, 0x0a, 0xa1, 0xff, 0xfa, 0xb1}
	insts := decodeMethod(t, code)
	r := NewRecorder(0)
	header := program.PC{Method: 0, Offset: 0}

	r.Begin(header, 1, 0)
	st := record(t, r, insts, []step{
		{0, 0}, {3, 0}, {4, 1}, {6, 2},
		{0, 0}, // 跳转回头：闭合
	})
	if st != StatusDone {
		t.Fatalf("status = %v, want StatusDone (abort: %s)", st, r.LastAbort())
	}

	rec := r.Finish()
	guard := rec.Entries[len(rec.Entries)-1]
	if !guard.IsGuard || !guard.CloseLoop {
		t.Fatal("closing conditional branch should be guard + close")
	}
	// 实际跳转：守卫条件取反，不跳转方向成为侧退出
	if guard.GuardOp != bytecode.IfIcmpge {
		t.Errorf("guard op = %s, want if_icmpge", guard.GuardOp)
	}
	if guard.GuardExit != 9 {
		t.Errorf("guard exit = %d, want 9", guard.GuardExit)
	}
}

// TestAbortConditions 各中止条件
func TestAbortConditions(t *testing.T) {
	header := program.PC{Method: 0, Offset: 0}

	t.Run("invoke", func(t *testing.T) {
		code := []byte{0x03, 0xb8, 0x00, 0x01, 0xb1} // iconst_0; invokestatic; return
		insts := decodeMethod(t, code)
		r := NewRecorder(0)
		r.Begin(header, 1, 0)
		st := record(t, r, insts, []step{{0, 0}, {1, 1}})
		if st != StatusAborted || r.LastAbort() != AbortInvoke {
			t.Errorf("status=%v abort=%s, want aborted/AbortInvoke", st, r.LastAbort())
		}
	})

	t.Run("nested backward branch", func(t *testing.T) {
		// 0: nop; 1: nop; 2: goto -1 -> 1（回边目标不是入口）
		code := []byte{0x00, 0x00, 0xa7, 0xff, 0xff}
		insts := decodeMethod(t, code)
		r := NewRecorder(0)
		r.Begin(header, 1, 0)
		st := record(t, r, insts, []step{{0, 0}, {1, 0}, {2, 0}})
		if st != StatusAborted || r.LastAbort() != AbortInnerBranch {
			t.Errorf("status=%v abort=%s, want aborted/AbortInnerBranch", st, r.LastAbort())
		}
	})

	t.Run("return", func(t *testing.T) {
		code := []byte{0x03, 0xac} // iconst_0; ireturn
		insts := decodeMethod(t, code)
		r := NewRecorder(0)
		r.Begin(header, 1, 0)
		st := record(t, r, insts, []step{{0, 0}, {1, 1}})
		if st != StatusAborted || r.LastAbort() != AbortReturn {
			t.Errorf("status=%v abort=%s, want aborted/AbortReturn", st, r.LastAbort())
		}
	})

	t.Run("live stack at guard", func(t *testing.T) {
		// 0: iconst_0; 1: iconst_0; 2: ifeq +4 -> 6; 5: nop; 6: return
		code := []byte{0x03, 0x03, 0x99, 0x00, 0x04, 0x00, 0xb1}
		insts := decodeMethod(t, code)
		r := NewRecorder(0)
		r.Begin(header, 1, 0)
		// ifeq 之后仍有一个值在栈上
		st := record(t, r, insts, []step{{0, 0}, {1, 1}, {2, 2}, {6, 1}})
		if st != StatusAborted || r.LastAbort() != AbortLiveStack {
			t.Errorf("status=%v abort=%s, want aborted/AbortLiveStack", st, r.LastAbort())
		}
	})

	t.Run("begin with live stack", func(t *testing.T) {
		r := NewRecorder(0)
		if r.Begin(header, 1, 1) {
			t.Error("Begin should refuse a non-empty operand stack")
		}
		if r.Active() {
			t.Error("recorder should stay idle")
		}
	})
}

// TestLengthBound 长度上限：恰好等于上限可闭合，超过则中止
func TestLengthBound(t *testing.T) {
	insts := decodeMethod(t, loopSumCode)
	header := program.PC{Method: 0, Offset: 4}
	full := []step{
		{4, 0}, {5, 1}, {7, 2},
		{10, 0}, {11, 1}, {12, 2}, {13, 1},
		{14, 0}, {17, 0},
		{4, 0},
	}

	// 上限恰好等于轨迹长度（9 条记录）
	r := NewRecorder(9)
	r.Begin(header, 2, 0)
	if st := record(t, r, insts, full); st != StatusDone {
		t.Errorf("status = %v, want StatusDone at exact bound (abort: %s)", st, r.LastAbort())
	}

	// 上限小一条：中止
	r = NewRecorder(8)
	r.Begin(header, 2, 0)
	if st := record(t, r, insts, full); st != StatusAborted || r.LastAbort() != AbortTooLong {
		t.Errorf("status=%v abort=%s, want aborted/AbortTooLong", st, r.LastAbort())
	}
}
