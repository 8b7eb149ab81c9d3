// compiler.go - 轨迹编译驱动
//
// 串联类型推导、目标架构代码生成与可执行内存装载。
// 任何一步失败都以 CompileError 返回，调用方拉黑入口即可。

package jit

import (
	"github.com/tangzhangming/minijvm/internal/trace"
)

// Compiler 轨迹编译器
type Compiler struct {
	config *Config
}

// NewCompiler 创建编译器
func NewCompiler(config *Config) *Compiler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Compiler{config: config}
}

// Enabled 检查 JIT 是否可用（配置开启且目标架构受支持）
func (c *Compiler) Enabled() bool {
	return c.config.Enabled && archSupported
}

// Compile 将轨迹编译为可执行的 CompiledTrace
func (c *Compiler) Compile(rec *trace.Recording) (*CompiledTrace, error) {
	if !c.Enabled() {
		return nil, &CompileError{Reason: "jit disabled"}
	}

	locals, err := InferLocalTypes(rec)
	if err != nil {
		return nil, err
	}

	code, err := generateTrace(rec, locals)
	if err != nil {
		return nil, err
	}

	region, entry, err := allocExec(code)
	if err != nil {
		return nil, err
	}

	ct := &CompiledTrace{
		EntryPC: rec.Entry,
		ExitPC:  rec.ExitPC,
		Locals:  locals,
		Code:    code,
		region:  region,
	}
	ct.entryCell = new(uintptr)
	*ct.entryCell = entry
	ct.fn = makeNativeTrace(ct.entryCell)
	return ct, nil
}
