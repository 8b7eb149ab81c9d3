//go:build (amd64 || arm64) && (linux || darwin)

// jit_e2e_test.go - 解释器与 JIT 的端到端一致性
//
// 同一程序分别在纯解释与启用 JIT 的配置下执行，终态必须一致；
// 并验证缓存与黑名单符合各场景的预期。

package vm

import (
	"bytes"
	"testing"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/jit"
	"github.com/tangzhangming/minijvm/internal/program"
)

// jitRuntime 默认 JIT 配置的执行上下文
func jitRuntime(methods ...*program.Method) *Runtime {
	r := NewRuntime(program.NewFromMethods(methods...), nil)
	r.Stdout = &bytes.Buffer{}
	return r
}

// TestJitLoopSum 热循环被编译且结果与解释一致
func TestJitLoopSum(t *testing.T) {
	r := jitRuntime(loopSumMethod(t))
	defer r.Teardown()

	if got := runInt(t, r, 0); got != 45 {
		t.Errorf("loopSum = %d, want 45", got)
	}
	if r.Cache().Size() != 1 {
		t.Errorf("cache size = %d, want 1 (loop header compiled)", r.Cache().Size())
	}
	header := program.PC{Method: 0, Offset: 4}
	if r.Cache().Lookup(header) == nil {
		t.Error("no compiled trace at the loop header")
	}
}

// TestJitFactorial 12! 经编译轨迹计算
func TestJitFactorial(t *testing.T) {
	r := jitRuntime(factorialMethod(t))
	defer r.Teardown()

	if got := runInt(t, r, 0); got != 479001600 {
		t.Errorf("factorial = %d, want 479001600", got)
	}
	if r.Cache().Lookup(program.PC{Method: 0, Offset: 7}) == nil {
		t.Error("factorial loop header not compiled")
	}
}

// TestJitIsPrime 内层取模循环被编译
func TestJitIsPrime(t *testing.T) {
	r := jitRuntime(isPrimeMethod(t))
	defer r.Teardown()

	if got := runInt(t, r, 0, bytecode.NewInt(104729)); got != 1 {
		t.Errorf("isPrime(104729) = %d, want 1", got)
	}
	if r.Cache().Lookup(program.PC{Method: 0, Offset: 2}) == nil {
		t.Error("modular-check loop not compiled")
	}
}

// TestJitNestedLoops 外层头被拉黑，内层可编译，结果不变
func TestJitNestedLoops(t *testing.T) {
	r := jitRuntime(nestedLoopsMethod(t))
	defer r.Teardown()

	if got := runInt(t, r, 0); got != 25 {
		t.Errorf("nested = %d, want 25", got)
	}
	outer := program.PC{Method: 0, Offset: 4}
	if !r.Cache().Blacklisted(outer) {
		t.Error("outer loop header should be blacklisted (nested backward branch)")
	}
	if r.Cache().Lookup(outer) != nil {
		t.Error("blacklisted pc must not hold a trace")
	}
}

// TestJitStaticCallAborts 循环内调用打断录制，结果仍正确
func TestJitStaticCallAborts(t *testing.T) {
	caller, callee := callerWithStaticCall(t)
	r := jitRuntime(caller, callee)
	defer r.Teardown()

	if got := runInt(t, r, 0); got != 15 {
		t.Errorf("loopCall = %d, want 15", got)
	}
	header := program.PC{Method: 0, Offset: 4}
	if !r.Cache().Blacklisted(header) {
		t.Error("loop header with call should be blacklisted")
	}
	if r.Cache().Size() != 0 {
		t.Errorf("cache size = %d, want 0", r.Cache().Size())
	}
}

// TestJitRecursionAborts 递归即调用：录制中止，解释结果正确
func TestJitRecursionAborts(t *testing.T) {
	r := jitRuntime(fibMethod(t))
	defer r.Teardown()

	if d := r.RunMethod(0, bytecode.NewDouble(20)); d != nil {
		t.Fatalf("RunMethod: %v", d)
	}
	v, ok := r.TopReturnValue()
	if !ok || v.Double() != 6765.0 {
		t.Errorf("fibonacci(20.0) = %v, want 6765.0", v)
	}
	if r.Cache().Size() != 0 {
		t.Errorf("cache size = %d, want 0 (recursion never compiles)", r.Cache().Size())
	}
}

// TestJitMatchesInterpreter 同一程序两种模式终态一致
func TestJitMatchesInterpreter(t *testing.T) {
	build := []func(*testing.T) *program.Method{
		loopSumMethod, factorialMethod, nestedLoopsMethod,
	}
	for _, mk := range build {
		m := mk(t)
		interp := interpRuntime(mk(t))
		jitted := jitRuntime(m)

		want := runInt(t, interp, 0)
		got := runInt(t, jitted, 0)
		jitted.Teardown()

		if got != want {
			t.Errorf("%s: jit=%d interp=%d", m.Name, got, want)
		}
	}
}

// TestJitColdLoopNotTraced 低于阈值的循环不会被编译
func TestJitColdLoopNotTraced(t *testing.T) {
	cfg := jit.DefaultConfig()
	cfg.HotThreshold = 1000
	r := NewRuntime(program.NewFromMethods(loopSumMethod(t)), cfg)
	r.Stdout = &bytes.Buffer{}
	defer r.Teardown()

	if got := runInt(t, r, 0); got != 45 {
		t.Errorf("loopSum = %d, want 45", got)
	}
	if r.Cache().Size() != 0 {
		t.Errorf("cache size = %d, want 0 (threshold never reached)", r.Cache().Size())
	}
}

// TestJitDivByZeroInTrace 编译轨迹内的除零给出与解释器相同的诊断
func TestJitDivByZeroInTrace(t *testing.T) {
	// k=5; i=0; while (i < 10) { k = 100 / (5-i); i++ }
	// i=5 时除数为 0；此前循环已热并编译
	m := asm(t, "divLoop", "()I", 3, 2, []byte{
		0x08, 0x3b, // iconst_5; istore_0            ; k
		0x03, 0x3c, // iconst_0; istore_1            ; i
		0x1b, 0x10, 0x0a, // iload_1; bipush 10      ; 循环头 4
		0xa2, 0x00, 0x10, // if_icmpge +16 -> 23
		0x10, 0x64, // bipush 100
		0x08, 0x1b, 0x64, // iconst_5; iload_1; isub
		0x6c, 0x3b, // idiv; istore_0
		0x84, 0x01, 0x01, // iinc 1,1
		0xa7, 0xff, 0xf0, // goto -16 -> 4
		0x1a, 0xac, // 23: iload_0; ireturn
	})
	r := jitRuntime(m)
	defer r.Teardown()

	d := r.RunMethod(0)
	if d == nil {
		t.Fatal("expected division-by-zero diagnostic")
	}
	if d.Code != "R0102" {
		t.Errorf("code = %s, want R0102", d.Code)
	}
}
