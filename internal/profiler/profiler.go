// Package profiler 实现循环头热度统计
// 回边（目标偏移小于来源偏移的同方法跳转）的目标被视为循环头候选，
// 命中次数到达阈值后即为热点，由录制器接管。
package profiler

import (
	"github.com/tangzhangming/minijvm/internal/program"
)

// DefaultThreshold 默认热度阈值
// 历史版本在 1 与 2 之间摇摆，当前取 1：首个回边命中即热
const DefaultThreshold = 1

// Profiler 热度统计器
type Profiler struct {
	threshold int
	lastPC    program.PC
	records   map[program.PC]int
}

// New 创建统计器
// threshold <= 0 时使用默认阈值
func New(threshold int) *Profiler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Profiler{
		threshold: threshold,
		records:   make(map[program.PC]int),
	}
}

// Threshold 返回当前阈值
func (p *Profiler) Threshold() int {
	return p.threshold
}

// CountEntry 统计一次执行位置
// 只有回边目标才计数：目标与上一位置同方法，且目标偏移更小。
// 计数器只增不减。
func (p *Profiler) CountEntry(pc program.PC) {
	if pc.Method == p.lastPC.Method && pc.Offset < p.lastPC.Offset {
		p.records[pc]++
	}
	p.lastPC = pc
}

// CountExit 统计一次从本机代码回到解释器的侧退出
// 侧退出落点本身可能成为新的 trace 起点，因此无条件计数
func (p *Profiler) CountExit(pc program.PC) {
	p.records[pc]++
	p.lastPC = pc
}

// IsHot 检查位置是否达到热度阈值
func (p *Profiler) IsHot(pc program.PC) bool {
	return p.records[pc] >= p.threshold
}

// Count 返回位置的当前计数
func (p *Profiler) Count(pc program.PC) int {
	return p.records[pc]
}
