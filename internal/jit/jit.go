// Package jit 实现热路径轨迹的本机代码编译与缓存
//
// 流水线：录制器产出的自包含轨迹经过局部变量静态类型推导后，
// 由目标架构的代码生成器翻译为本机代码，写入可执行内存并登记到
// 以入口 PC 为键的缓存。编译失败是可恢复的：入口被拉黑，
// 该循环继续走解释器。
package jit

import (
	"fmt"

	"github.com/tangzhangming/minijvm/internal/profiler"
	"github.com/tangzhangming/minijvm/internal/trace"
)

// Config JIT 配置
type Config struct {
	Enabled        bool // 是否启用 JIT
	HotThreshold   int  // 热点阈值（回边命中次数）
	MaxTraceLength int  // 轨迹长度上限
	CacheMaxBytes  int  // 可执行内存总量上限
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		HotThreshold:   profiler.DefaultThreshold,
		MaxTraceLength: trace.DefaultMaxLength,
		CacheMaxBytes:  1 << 20,
	}
}

// InterpretOnlyConfig 返回纯解释配置
func InterpretOnlyConfig() *Config {
	cfg := DefaultConfig()
	cfg.Enabled = false
	return cfg
}

// ============================================================================
// 编译错误
// ============================================================================

// CompileError 轨迹编译失败
// 永远不会终止执行：调用方拉黑入口并回退解释
type CompileError struct {
	Reason string
}

func (e *CompileError) Error() string {
	return "trace compile failed: " + e.Reason
}

func errUnsupportedOp(op fmt.Stringer) error {
	return &CompileError{Reason: fmt.Sprintf("unsupported opcode %s", op)}
}

// ============================================================================
// 故障退出哨兵
// ============================================================================

// faultExitCode 把除零故障的指令偏移编码为负的退出值
// 正常退出值恒为非负偏移，负值只能来自故障桩
func faultExitCode(pc int) int64 {
	return int64(-(pc + 1))
}

// DecodeFaultExit 解码退出值
// 负值表示编译代码在 pc 处命中了除零故障
func DecodeFaultExit(exit int) (pc int, fault bool) {
	if exit < 0 {
		return -exit - 1, true
	}
	return exit, false
}

func errUnboundLabel(id int) error {
	return &CompileError{Reason: fmt.Sprintf("jump to unbound label %d", id)}
}

func errRelocOverflow(id int) error {
	return &CompileError{Reason: fmt.Sprintf("relocation overflow for label %d", id)}
}
