// cache.go - JIT 缓存
//
// 以轨迹入口 PC 为键存放编译结果，并维护录制失败入口的黑名单。
// 缓存独占所有可执行内存页，拆除时统一释放。

package jit

import (
	"unsafe"

	"github.com/tangzhangming/minijvm/internal/program"
)

// nativeTrace 编译后轨迹的 Go 侧签名
// 参数 1 为局部变量槽位数组基址，参数 2 为辅助表基址（预留给
// trace stitching，当前生成的代码不读取），返回解释器恢复执行的
// 字节偏移。
type nativeTrace func(locals unsafe.Pointer, aux unsafe.Pointer) int64

// CompiledTrace 一段编译完成的轨迹
type CompiledTrace struct {
	EntryPC program.PC  // 轨迹入口（循环头）
	ExitPC  int         // 自然循环出口
	Locals  *LocalTypes // 槽位类型表，移交时按此解释
	Code    []byte      // 生成的机器码（调试用副本）

	region    *execRegion // 可执行内存页
	entryCell *uintptr    // funcval 单元：保存入口地址
	fn        nativeTrace
}

// Execute 调用编译后的轨迹
// locals 是展平后的 8 字节槽位数组，所有权在调用期间借给本机代码
func (ct *CompiledTrace) Execute(locals []uint64, aux []uintptr) int {
	var lp, ap unsafe.Pointer
	if len(locals) > 0 {
		lp = unsafe.Pointer(&locals[0])
	}
	if len(aux) > 0 {
		ap = unsafe.Pointer(&aux[0])
	}
	return int(ct.fn(lp, ap))
}

// Entry 返回本机入口地址
func (ct *CompiledTrace) Entry() uintptr {
	if ct.entryCell == nil {
		return 0
	}
	return *ct.entryCell
}

// release 释放可执行内存
func (ct *CompiledTrace) release() {
	if ct.region != nil {
		_ = ct.region.release()
		ct.region = nil
	}
	ct.fn = nil
	ct.entryCell = nil
}

// ============================================================================
// 缓存
// ============================================================================

// Cache JIT 缓存
// 单解释上下文独占，无并发访问
type Cache struct {
	traces    map[program.PC]*CompiledTrace
	blacklist map[program.PC]bool
	auxTable  []uintptr // 入口地址表，作为参数 2 传入（trace stitching 预留）
	usedBytes int
	maxBytes  int
}

// NewCache 创建缓存
func NewCache(maxBytes int) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultConfig().CacheMaxBytes
	}
	return &Cache{
		traces:    make(map[program.PC]*CompiledTrace),
		blacklist: make(map[program.PC]bool),
		maxBytes:  maxBytes,
	}
}

// Lookup 查找入口 PC 的编译结果
func (c *Cache) Lookup(pc program.PC) *CompiledTrace {
	return c.traces[pc]
}

// Install 安装编译结果
// 首装生效：同一入口的后续编译被丢弃并释放。
// 被拉黑的入口拒绝安装，维持黑名单与缓存互斥。
func (c *Cache) Install(pc program.PC, ct *CompiledTrace) *CompiledTrace {
	if existing, ok := c.traces[pc]; ok {
		ct.release()
		return existing
	}
	if c.blacklist[pc] {
		ct.release()
		return nil
	}
	if c.usedBytes+len(ct.Code) > c.maxBytes {
		// 容量耗尽按编译失败处理：释放并拉黑
		ct.release()
		c.Blacklist(pc)
		return nil
	}
	c.traces[pc] = ct
	c.usedBytes += len(ct.Code)
	c.auxTable = append(c.auxTable, ct.Entry())
	return ct
}

// Blacklist 拉黑入口 PC
// 已安装的入口不可拉黑，维持黑名单与缓存互斥
func (c *Cache) Blacklist(pc program.PC) {
	if _, ok := c.traces[pc]; ok {
		return
	}
	c.blacklist[pc] = true
}

// Blacklisted 检查入口是否被拉黑
func (c *Cache) Blacklisted(pc program.PC) bool {
	return c.blacklist[pc]
}

// AuxTable 返回辅助表
func (c *Cache) AuxTable() []uintptr {
	return c.auxTable
}

// Size 返回已安装的轨迹数
func (c *Cache) Size() int {
	return len(c.traces)
}

// Teardown 拆除缓存，释放全部可执行内存
func (c *Cache) Teardown() {
	for _, ct := range c.traces {
		ct.release()
	}
	c.traces = make(map[program.PC]*CompiledTrace)
	c.auxTable = nil
	c.usedBytes = 0
}
