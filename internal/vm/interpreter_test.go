package vm

import (
	"bytes"
	"math"
	"testing"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/jit"
	"github.com/tangzhangming/minijvm/internal/program"
)

// asm 装配测试方法，失败即终止
func asm(t *testing.T, name, desc string, maxStack, maxLocals int, code []byte) *program.Method {
	t.Helper()
	m, err := program.AssembleMethod(name, desc, maxStack, maxLocals, code)
	if err != nil {
		t.Fatalf("AssembleMethod %s: %v", name, err)
	}
	return m
}

// runInt 解释执行并取 int 返回值
func runInt(t *testing.T, r *Runtime, index int, args ...bytecode.Value) int32 {
	t.Helper()
	if d := r.RunMethod(index, args...); d != nil {
		t.Fatalf("RunMethod: %v", d)
	}
	v, ok := r.TopReturnValue()
	if !ok {
		t.Fatal("no return value")
	}
	return v.Int()
}

// loopSumMethod 计数循环 sum = 0+1+...+9
func loopSumMethod(t *testing.T) *program.Method {
	return asm(t, "loopSum", "()I", 2, 2, []byte{
		0x03, 0x3b, // iconst_0; istore_0      ; sum
		0x03, 0x3c, // iconst_0; istore_1      ; i
		0x1b, 0x10, 0x0a, // iload_1; bipush 10
		0xa2, 0x00, 0x0d, // if_icmpge +13 -> 20
		0x1a, 0x1b, 0x60, 0x3b, // iload_0; iload_1; iadd; istore_0
		0x84, 0x01, 0x01, // iinc 1,1
		0xa7, 0xff, 0xf3, // goto -13 -> 4
		0x1a, 0xac, // iload_0; ireturn
	})
}

// factorialMethod 12! 的循环计算
func factorialMethod(t *testing.T) *program.Method {
	return asm(t, "factorial", "()I", 2, 3, []byte{
		0x10, 0x0c, 0x3b, // bipush 12; istore_0     ; n
		0x04, 0x3c, // iconst_1; istore_1            ; acc
		0x04, 0x3d, // iconst_1; istore_2            ; i
		0x1c, 0x1a, // iload_2; iload_0              ; 循环头 7
		0xa3, 0x00, 0x0d, // if_icmpgt +13 -> 22
		0x1b, 0x1c, 0x68, 0x3c, // iload_1; iload_2; imul; istore_1
		0x84, 0x02, 0x01, // iinc 2,1
		0xa7, 0xff, 0xf4, // goto -12 -> 7
		0x1b, 0xac, // iload_1; ireturn
	})
}

// isPrimeMethod 试除判素，返回 0/1
func isPrimeMethod(t *testing.T) *program.Method {
	return asm(t, "isPrime", "(I)I", 2, 2, []byte{
		0x05, 0x3c, // iconst_2; istore_1            ; i
		0x1b, 0x1b, 0x68, // iload_1; iload_1; imul  ; 循环头 2
		0x1a,             // iload_0
		0xa3, 0x00, 0x13, // if_icmpgt +19 -> 25
		0x1a, 0x1b, 0x70, // iload_0; iload_1; irem
		0x9a, 0x00, 0x07, // ifne +7 -> 19
		0x03, 0xac, // iconst_0; ireturn
		0x00, 0x00, // 填充
		0x84, 0x01, 0x01, // 19: iinc 1,1
		0xa7, 0xff, 0xec, // goto -20 -> 2
		0x04, 0xac, // 25: iconst_1; ireturn
	})
}

// nestedLoopsMethod 双层循环 5x5 计数
func nestedLoopsMethod(t *testing.T) *program.Method {
	return asm(t, "nested", "()I", 2, 3, []byte{
		0x03, 0x3b, // iconst_0; istore_0            ; sum
		0x03, 0x3c, // iconst_0; istore_1            ; i
		0x1b, 0x08, // iload_1; iconst_5             ; 外层头 4
		0xa2, 0x00, 0x19, // if_icmpge +25 -> 31
		0x03, 0x3d, // iconst_0; istore_2            ; j
		0x1c, 0x08, // iload_2; iconst_5             ; 内层头 11
		0xa2, 0x00, 0x0c, // if_icmpge +12 -> 25
		0x84, 0x00, 0x01, // iinc 0,1                ; sum++
		0x84, 0x02, 0x01, // iinc 2,1                ; j++
		0xa7, 0xff, 0xf5, // goto -11 -> 11
		0x84, 0x01, 0x01, // 25: iinc 1,1            ; i++
		0xa7, 0xff, 0xe8, // goto -24 -> 4
		0x1a, 0xac, // 31: iload_0; ireturn
	})
}

// callerWithStaticCall 循环体内带 invokestatic
func callerWithStaticCall(t *testing.T) (*program.Method, *program.Method) {
	caller := asm(t, "loopCall", "()I", 3, 2, []byte{
		0x03, 0x3b, // iconst_0; istore_0            ; sum
		0x03, 0x3c, // iconst_0; istore_1            ; i
		0x1b, 0x08, // iload_1; iconst_5             ; 循环头 4
		0xa2, 0x00, 0x10, // if_icmpge +16 -> 22
		0x1a, 0x1b, 0x04, // iload_0; iload_1; iconst_1
		0xb8, 0x00, 0x01, // invokestatic #1 (threeArgs)
		0x3b,             // istore_0
		0x84, 0x01, 0x01, // iinc 1,1
		0xa7, 0xff, 0xf1, // goto -15 -> 4
		0x1a, 0xac, // 22: iload_0; ireturn
	})
	callee := asm(t, "threeArgs", "(III)I", 2, 3, []byte{
		0x1a, 0x1b, 0x60, // iload_0; iload_1; iadd
		0x1c, 0x60, // iload_2; iadd
		0xac, // ireturn
	})
	return caller, callee
}

// fibMethod 递归 double fibonacci
func fibMethod(t *testing.T) *program.Method {
	return asm(t, "fibonacci", "(D)D", 6, 2, []byte{
		0x26,       // dload_0
		0x05, 0x87, // iconst_2; i2d
		0x98,             // dcmpg
		0x9c, 0x00, 0x05, // ifge +5 -> 9
		0x26, 0xaf, // dload_0; dreturn
		0x26, 0x0f, 0x67, // 9: dload_0; dconst_1; dsub
		0xb8, 0x00, 0x00, // invokestatic #0 (self)
		0x26,             // dload_0
		0x05, 0x87, // iconst_2; i2d
		0x67,             // dsub
		0xb8, 0x00, 0x00, // invokestatic #0
		0x63, // dadd
		0xaf, // dreturn
	})
}

// interpRuntime 纯解释配置的执行上下文
func interpRuntime(methods ...*program.Method) *Runtime {
	r := NewRuntime(program.NewFromMethods(methods...), jit.InterpretOnlyConfig())
	r.Stdout = &bytes.Buffer{}
	return r
}

// TestLoopSum 场景：循环求和
func TestLoopSum(t *testing.T) {
	r := interpRuntime(loopSumMethod(t))
	if got := runInt(t, r, 0); got != 45 {
		t.Errorf("loopSum = %d, want 45", got)
	}
}

// TestFactorial 场景：12! = 479001600
func TestFactorial(t *testing.T) {
	r := interpRuntime(factorialMethod(t))
	if got := runInt(t, r, 0); got != 479001600 {
		t.Errorf("factorial = %d, want 479001600", got)
	}
}

// TestIsPrime 场景：104729 为素数
func TestIsPrime(t *testing.T) {
	r := interpRuntime(isPrimeMethod(t))
	if got := runInt(t, r, 0, bytecode.NewInt(104729)); got != 1 {
		t.Errorf("isPrime(104729) = %d, want 1", got)
	}
	r = interpRuntime(isPrimeMethod(t))
	if got := runInt(t, r, 0, bytecode.NewInt(104730)); got != 0 {
		t.Errorf("isPrime(104730) = %d, want 0", got)
	}
}

// TestNestedLoops 场景：双层循环
func TestNestedLoops(t *testing.T) {
	r := interpRuntime(nestedLoopsMethod(t))
	if got := runInt(t, r, 0); got != 25 {
		t.Errorf("nested = %d, want 25", got)
	}
}

// TestStaticCallInLoop 场景：循环体内静态调用
func TestStaticCallInLoop(t *testing.T) {
	caller, callee := callerWithStaticCall(t)
	r := interpRuntime(caller, callee)
	if got := runInt(t, r, 0); got != 15 {
		t.Errorf("loopCall = %d, want 15", got)
	}
}

// TestDoubleFibonacci 场景：递归 fibonacci(20.0) = 6765.0
func TestDoubleFibonacci(t *testing.T) {
	r := interpRuntime(fibMethod(t))
	if d := r.RunMethod(0, bytecode.NewDouble(20)); d != nil {
		t.Fatalf("RunMethod: %v", d)
	}
	v, ok := r.TopReturnValue()
	if !ok || v.Double() != 6765.0 {
		t.Errorf("fibonacci(20.0) = %v, want 6765.0", v)
	}
}

// TestDivisionByZeroFatal 整数除零是致命诊断
func TestDivisionByZeroFatal(t *testing.T) {
	m := asm(t, "divZero", "()I", 2, 0, []byte{
		0x04, 0x03, 0x6c, 0xac, // iconst_1; iconst_0; idiv; ireturn
	})
	r := interpRuntime(m)
	d := r.RunMethod(0)
	if d == nil {
		t.Fatal("expected diagnostic for division by zero")
	}
	if d.Code != "R0102" {
		t.Errorf("code = %s, want R0102", d.Code)
	}
	if d.PC != 2 {
		t.Errorf("pc = %d, want 2", d.PC)
	}
}

// TestStackUnderflowFatal 栈下溢是致命诊断
func TestStackUnderflowFatal(t *testing.T) {
	m := asm(t, "underflow", "()I", 2, 0, []byte{0x60, 0xac}) // iadd on empty stack
	r := interpRuntime(m)
	d := r.RunMethod(0)
	if d == nil || d.Code != "R0100" {
		t.Fatalf("diagnostic = %v, want R0100", d)
	}
}

// TestPrintln invokevirtual 建模为 System.out.println
func TestPrintln(t *testing.T) {
	m := asm(t, "printIt", "()V", 2, 0, []byte{
		0xb2, 0x00, 0x02, // getstatic #2 (System.out)
		0x10, 0x2a, // bipush 42
		0xb6, 0x00, 0x03, // invokevirtual #3 (println)
		0xb1, // return
	})
	r := interpRuntime(m)
	out := &bytes.Buffer{}
	r.Stdout = out
	if d := r.RunMethod(0); d != nil {
		t.Fatalf("RunMethod: %v", d)
	}
	if out.String() != "42\n" {
		t.Errorf("stdout = %q, want %q", out.String(), "42\n")
	}
}

// TestLongLocals 宽类型占两个槽位
func TestLongLocals(t *testing.T) {
	// long 累加: 参数 l = 3; l = l + l; 返回 l2i
	m := asm(t, "wide", "(J)I", 4, 2, []byte{
		0x1e, 0x1e, 0x61, // lload_0; lload_0; ladd
		0x88, // l2i
		0xac, // ireturn
	})
	r := interpRuntime(m)
	got := runInt(t, r, 0, bytecode.NewLong(3))
	if got != 6 {
		t.Errorf("wide(3) = %d, want 6", got)
	}
}

// TestFlattenRoundTrip 展平/回读的逐位保真
func TestFlattenRoundTrip(t *testing.T) {
	m := asm(t, "noop", "()V", 1, 4, []byte{0xb1})
	frame := NewFrame(m)
	frame.Locals[0] = bytecode.NewInt(-7)
	frame.Locals[1] = bytecode.NewDouble(math.NaN())
	frame.Locals[3] = bytecode.NewFloat(-0.0)

	slots := frame.FlattenLocals()
	kinds := []bytecode.Kind{bytecode.KindInt, bytecode.KindDouble, bytecode.KindDouble, bytecode.KindFloat}
	used := []bool{true, true, false, true}
	before := append([]bytecode.Value(nil), frame.Locals...)

	frame.AbsorbLocals(slots, kinds, used)
	for i, v := range frame.Locals {
		if v.Bits != before[i].Bits {
			t.Errorf("local %d changed: %x -> %x", i, before[i].Bits, v.Bits)
		}
	}
}
