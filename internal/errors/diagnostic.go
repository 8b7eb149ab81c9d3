package errors

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Diagnostic 一条致命运行时诊断
// 定位到方法与字节偏移；轨迹/编译流水线内部的失败不会产生
// Diagnostic，它们静默降级为解释执行。
type Diagnostic struct {
	Code   string // 错误码 (R 开头)
	Method string // 出错的方法名
	PC     int    // 方法内字节偏移（装载期错误为 -1）
	Detail string // 具体原因
}

// Error 实现 error 接口
func (d *Diagnostic) Error() string {
	if d.PC < 0 {
		return fmt.Sprintf("%s: %s: %s", d.Code, MessageFor(d.Code), d.Detail)
	}
	return fmt.Sprintf("%s: %s in %s at pc=%d: %s",
		d.Code, MessageFor(d.Code), d.Method, d.PC, d.Detail)
}

// New 创建诊断
func New(code, method string, pc int, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Code:   code,
		Method: method,
		PC:     pc,
		Detail: fmt.Sprintf(format, args...),
	}
}

// ============================================================================
// 终端报告器
// ============================================================================

// ANSI 颜色代码
const (
	ansiReset   = "\033[0m"
	ansiBoldRed = "\033[1;31m"
	ansiCyan    = "\033[36m"
)

// Reporter 诊断报告器
type Reporter struct {
	out    io.Writer
	colors bool
}

// NewReporter 创建输出到 stderr 的报告器
func NewReporter() *Reporter {
	return &Reporter{
		out:    os.Stderr,
		colors: isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
	}
}

// NewReporterTo 创建输出到指定写入器的报告器（无颜色）
func NewReporterTo(w io.Writer) *Reporter {
	return &Reporter{out: w}
}

// Report 输出一条诊断
func (r *Reporter) Report(d *Diagnostic) {
	if r.colors {
		fmt.Fprintf(r.out, "%serror[%s]%s: %s\n", ansiBoldRed, d.Code, ansiReset, MessageFor(d.Code))
	} else {
		fmt.Fprintf(r.out, "error[%s]: %s\n", d.Code, MessageFor(d.Code))
	}
	if d.PC >= 0 {
		if r.colors {
			fmt.Fprintf(r.out, "  %s-->%s %s @ pc=%d\n", ansiCyan, ansiReset, d.Method, d.PC)
		} else {
			fmt.Fprintf(r.out, "  --> %s @ pc=%d\n", d.Method, d.PC)
		}
	}
	if d.Detail != "" {
		fmt.Fprintf(r.out, "  %s\n", d.Detail)
	}
}
