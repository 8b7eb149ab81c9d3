// call.go - 本机代码调用桥
//
// Go 的函数值是指向 funcval 的指针，funcval 的第一个字是代码地址。
// 把保存入口地址的内存单元按函数值解释，即可直接调用 JIT 生成的
// 机器码（参见 "Go 1.1 Function Calls" 设计文档）。
//
// 生成代码的入口按 Go 寄存器 ABI 接收参数：
//   amd64: 参数 1 在 RAX，参数 2 在 RBX，返回值在 RAX
//   arm64: 参数 1 在 R0，参数 2 在 R1，返回值在 R0（与 AAPCS 一致）
// amd64 的序言把参数搬到 System V 位置（RDI/RSI），轨迹体遵循
// C 调用约定的契约。

package jit

import (
	"unsafe"
)

// makeNativeTrace 将入口地址单元封装为可调用的 Go 函数值
// cell 必须在函数值的整个生命周期内保持可达
func makeNativeTrace(cell *uintptr) nativeTrace {
	return *(*nativeTrace)(unsafe.Pointer(&cell))
}
