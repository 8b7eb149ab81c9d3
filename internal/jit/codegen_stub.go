//go:build !amd64 && !arm64

// codegen_stub.go - 无代码生成器的架构
//
// 编译请求直接失败，入口被拉黑后该循环继续走解释器。

package jit

import (
	"github.com/tangzhangming/minijvm/internal/trace"
)

// archSupported 目标架构是否有代码生成器
const archSupported = false

// generateTrace 当前架构不支持轨迹编译
func generateTrace(rec *trace.Recording, lt *LocalTypes) ([]byte, error) {
	return nil, &CompileError{Reason: "no code generator for this architecture"}
}
