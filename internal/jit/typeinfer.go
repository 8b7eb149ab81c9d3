// typeinfer.go - 轨迹局部变量的静态类型推导
//
// 编译后的代码直接在 8 字节槽位数组上读写局部变量，槽位如何解释
// 取决于轨迹中触及它的操作码。对每个局部变量要求轨迹内类型一致，
// 冲突（同一槽位既按 int 又按 double 访问）拒绝编译。

package jit

import (
	"fmt"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/trace"
)

// LocalTypes 轨迹的局部变量类型表
type LocalTypes struct {
	Kinds []bytecode.Kind // 按局部变量索引
	Used  []bool          // 轨迹是否触及该槽位
}

// InferLocalTypes 从轨迹推导每个局部变量的静态类型
func InferLocalTypes(rec *trace.Recording) (*LocalTypes, error) {
	lt := &LocalTypes{
		Kinds: make([]bytecode.Kind, rec.MaxLocals),
		Used:  make([]bool, rec.MaxLocals),
	}

	note := func(index int, kind bytecode.Kind) error {
		slots := 1
		if kind.Wide() {
			slots = 2
		}
		if index < 0 || index+slots > rec.MaxLocals {
			return &CompileError{
				Reason: fmt.Sprintf("local index %d out of range (maxLocals=%d)", index, rec.MaxLocals),
			}
		}
		if lt.Used[index] && lt.Kinds[index] != kind {
			return &CompileError{
				Reason: fmt.Sprintf("local %d used as both %s and %s", index, lt.Kinds[index], kind),
			}
		}
		lt.Used[index] = true
		lt.Kinds[index] = kind
		return nil
	}

	for i := range rec.Entries {
		inst := &rec.Entries[i].Inst
		kind, ok := localAccessKind(inst.Op)
		if !ok {
			continue
		}
		if err := note(int(inst.Operand(0).Int()), kind); err != nil {
			return nil, err
		}
	}
	return lt, nil
}

// localAccessKind 返回访问局部变量的操作码对应的值类型
func localAccessKind(op bytecode.OpCode) (bytecode.Kind, bool) {
	switch {
	case op == bytecode.Iload || op == bytecode.Istore || op == bytecode.Iinc ||
		(op >= bytecode.Iload0 && op <= bytecode.Iload3) ||
		(op >= bytecode.Istore0 && op <= bytecode.Istore3):
		return bytecode.KindInt, true
	case op == bytecode.Lload || op == bytecode.Lstore ||
		(op >= bytecode.Lload0 && op <= bytecode.Lload3) ||
		(op >= bytecode.Lstore0 && op <= bytecode.Lstore3):
		return bytecode.KindLong, true
	case op == bytecode.Fload || op == bytecode.Fstore ||
		(op >= bytecode.Fload0 && op <= bytecode.Fload3) ||
		(op >= bytecode.Fstore0 && op <= bytecode.Fstore3):
		return bytecode.KindFloat, true
	case op == bytecode.Dload || op == bytecode.Dstore ||
		(op >= bytecode.Dload0 && op <= bytecode.Dload3) ||
		(op >= bytecode.Dstore0 && op <= bytecode.Dstore3):
		return bytecode.KindDouble, true
	}
	return 0, false
}
