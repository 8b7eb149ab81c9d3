// Package vm 实现 JVM 字节码子集的解释器与 JIT 移交
package vm

import (
	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/errors"
	"github.com/tangzhangming/minijvm/internal/program"
)

// Frame 方法的运行时活动记录
// 局部变量表是稠密数组（long/double 占两个索引，值放在第一个），
// 操作数栈深度受 maxStack 约束。栈下溢是解释器的致命错误，
// 不是轨迹中止。
type Frame struct {
	PC     program.PC
	Method *program.Method
	Locals []bytecode.Value
	stack  []bytecode.Value
}

// NewFrame 创建方法的新帧
func NewFrame(m *program.Method) *Frame {
	return &Frame{
		PC:     program.PC{Method: m.Index},
		Method: m,
		Locals: make([]bytecode.Value, m.MaxLocals),
		stack:  make([]bytecode.Value, 0, m.MaxStack),
	}
}

// Push 压入操作数栈
func (f *Frame) Push(v bytecode.Value) *errors.Diagnostic {
	if len(f.stack) >= f.Method.MaxStack {
		return errors.New(errors.R0104, f.Method.Name, f.PC.Offset,
			"push beyond maxStack=%d", f.Method.MaxStack)
	}
	f.stack = append(f.stack, v)
	return nil
}

// Pop 弹出操作数栈
func (f *Frame) Pop() (bytecode.Value, *errors.Diagnostic) {
	if len(f.stack) == 0 {
		return bytecode.Value{}, errors.New(errors.R0100, f.Method.Name, f.PC.Offset,
			"pop on empty operand stack")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

// Depth 返回当前操作数栈深度
func (f *Frame) Depth() int {
	return len(f.stack)
}

// GetLocal 读局部变量
func (f *Frame) GetLocal(index int) (bytecode.Value, *errors.Diagnostic) {
	if index < 0 || index >= len(f.Locals) {
		return bytecode.Value{}, errors.New(errors.R0101, f.Method.Name, f.PC.Offset,
			"index %d, maxLocals=%d", index, len(f.Locals))
	}
	return f.Locals[index], nil
}

// SetLocal 写局部变量
func (f *Frame) SetLocal(index int, v bytecode.Value) *errors.Diagnostic {
	slots := 1
	if v.Kind.Wide() {
		slots = 2
	}
	if index < 0 || index+slots > len(f.Locals) {
		return errors.New(errors.R0101, f.Method.Name, f.PC.Offset,
			"index %d, maxLocals=%d", index, len(f.Locals))
	}
	f.Locals[index] = v
	return nil
}

// FlattenLocals 把局部变量表展平为 8 字节槽位数组
// 逐位拷贝：每个槽位就是 Value 的 64 位载体
func (f *Frame) FlattenLocals() []uint64 {
	out := make([]uint64, len(f.Locals))
	for i := range f.Locals {
		out[i] = f.Locals[i].Bits
	}
	return out
}

// AbsorbLocals 把可能被本机代码改写的槽位写回局部变量表
// 只回写轨迹触及的槽位，按轨迹的静态类型解释位模式
func (f *Frame) AbsorbLocals(slots []uint64, kinds []bytecode.Kind, used []bool) {
	for i := range used {
		if used[i] {
			f.Locals[i] = bytecode.FromBits(kinds[i], slots[i])
		}
	}
}
