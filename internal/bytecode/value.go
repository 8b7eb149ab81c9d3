package bytecode

import (
	"fmt"
	"math"
)

// Kind 值类型标签
type Kind byte

const (
	KindInt    Kind = iota // int32
	KindLong               // int64
	KindFloat              // float32
	KindDouble             // float64
)

// String 返回类型名（JVM 描述符风格）
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	default:
		return "unknown"
	}
}

// Wide 检查该类型在局部变量表中是否占两个槽位
func (k Kind) Wide() bool {
	return k == KindLong || k == KindDouble
}

// Value JVM 运行时值
// 四种基础类型共用一个 64 位载体，按 Kind 解释位模式：
// int 按符号扩展存放，float 存放 IEEE 754 binary32 的低 32 位。
// 与解释器内部表示保持位级一致，移交（handoff）展平时直接拷贝 Bits。
type Value struct {
	Kind Kind
	Bits uint64
}

// NewInt 创建 int 值
func NewInt(v int32) Value {
	return Value{Kind: KindInt, Bits: uint64(int64(v))}
}

// NewLong 创建 long 值
func NewLong(v int64) Value {
	return Value{Kind: KindLong, Bits: uint64(v)}
}

// NewFloat 创建 float 值
func NewFloat(v float32) Value {
	return Value{Kind: KindFloat, Bits: uint64(math.Float32bits(v))}
}

// NewDouble 创建 double 值
func NewDouble(v float64) Value {
	return Value{Kind: KindDouble, Bits: math.Float64bits(v)}
}

// FromBits 按给定类型解释一个 64 位槽位
// 与帧展平后的槽位布局对应，移交回读时使用
func FromBits(k Kind, bits uint64) Value {
	switch k {
	case KindInt:
		// 重新符号扩展，保证 int 槽位的规范形式
		return NewInt(int32(bits))
	case KindFloat:
		return Value{Kind: KindFloat, Bits: bits & 0xffffffff}
	default:
		return Value{Kind: k, Bits: bits}
	}
}

// Int 取 int32 值
func (v Value) Int() int32 { return int32(v.Bits) }

// Long 取 int64 值
func (v Value) Long() int64 { return int64(v.Bits) }

// Float 取 float32 值
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.Bits)) }

// Double 取 float64 值
func (v Value) Double() float64 { return math.Float64frombits(v.Bits) }

// String 返回值的打印形式
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int())
	case KindLong:
		return fmt.Sprintf("%d", v.Long())
	case KindFloat:
		return fmt.Sprintf("%g", v.Float())
	case KindDouble:
		return fmt.Sprintf("%g", v.Double())
	default:
		return "?"
	}
}

// ============================================================================
// 算术运算（JVMS 语义：整数回绕，浮点 IEEE 754）
// ============================================================================

// Add 同类型相加
func Add(a, b Value) Value {
	switch a.Kind {
	case KindInt:
		return NewInt(a.Int() + b.Int())
	case KindLong:
		return NewLong(a.Long() + b.Long())
	case KindFloat:
		return NewFloat(a.Float() + b.Float())
	default:
		return NewDouble(a.Double() + b.Double())
	}
}

// Sub 同类型相减
func Sub(a, b Value) Value {
	switch a.Kind {
	case KindInt:
		return NewInt(a.Int() - b.Int())
	case KindLong:
		return NewLong(a.Long() - b.Long())
	case KindFloat:
		return NewFloat(a.Float() - b.Float())
	default:
		return NewDouble(a.Double() - b.Double())
	}
}

// Mul 同类型相乘
func Mul(a, b Value) Value {
	switch a.Kind {
	case KindInt:
		return NewInt(a.Int() * b.Int())
	case KindLong:
		return NewLong(a.Long() * b.Long())
	case KindFloat:
		return NewFloat(a.Float() * b.Float())
	default:
		return NewDouble(a.Double() * b.Double())
	}
}

// Div 同类型相除
// 整数除零由调用方先行检查（解释器视为致命错误）
func Div(a, b Value) Value {
	switch a.Kind {
	case KindInt:
		// JVMS: MinInt / -1 回绕为 MinInt
		if a.Int() == math.MinInt32 && b.Int() == -1 {
			return NewInt(math.MinInt32)
		}
		return NewInt(a.Int() / b.Int())
	case KindLong:
		if a.Long() == math.MinInt64 && b.Long() == -1 {
			return NewLong(math.MinInt64)
		}
		return NewLong(a.Long() / b.Long())
	case KindFloat:
		return NewFloat(a.Float() / b.Float())
	default:
		return NewDouble(a.Double() / b.Double())
	}
}

// Rem 同类型取余
// 浮点取余遵循 JVMS frem/drem：结果符号与被除数一致（即 C 的 fmod）
func Rem(a, b Value) Value {
	switch a.Kind {
	case KindInt:
		if a.Int() == math.MinInt32 && b.Int() == -1 {
			return NewInt(0)
		}
		return NewInt(a.Int() % b.Int())
	case KindLong:
		if a.Long() == math.MinInt64 && b.Long() == -1 {
			return NewLong(0)
		}
		return NewLong(a.Long() % b.Long())
	case KindFloat:
		return NewFloat(float32(math.Mod(float64(a.Float()), float64(b.Float()))))
	default:
		return NewDouble(math.Mod(a.Double(), b.Double()))
	}
}

// Neg 取负
func Neg(a Value) Value {
	switch a.Kind {
	case KindInt:
		return NewInt(-a.Int())
	case KindLong:
		return NewLong(-a.Long())
	case KindFloat:
		return NewFloat(-a.Float())
	default:
		return NewDouble(-a.Double())
	}
}

// Compare 比较两个同类型值，返回 -1/0/1
// nanResult 指定任一操作数为 NaN 时的结果：
// fcmpl/dcmpl 传 -1，fcmpg/dcmpg 传 +1（JVMS NaN 规则），整数比较忽略。
func Compare(a, b Value, nanResult int32) int32 {
	switch a.Kind {
	case KindInt:
		return cmpOrdered(int64(a.Int()), int64(b.Int()))
	case KindLong:
		return cmpOrdered(a.Long(), b.Long())
	case KindFloat:
		x, y := a.Float(), b.Float()
		if x != x || y != y {
			return nanResult
		}
		return cmpOrdered(float64(x), float64(y))
	default:
		x, y := a.Double(), b.Double()
		if x != x || y != y {
			return nanResult
		}
		return cmpOrdered(x, y)
	}
}

func cmpOrdered[T int64 | float64](a, b T) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ============================================================================
// 类型转换（JVMS 宽化/窄化规则）
// ============================================================================

// ToInt 转换为 int（窄化浮点时 NaN 归零并在边界饱和）
func (v Value) ToInt() Value {
	switch v.Kind {
	case KindInt:
		return v
	case KindLong:
		return NewInt(int32(v.Long()))
	case KindFloat:
		return NewInt(f2i32(float64(v.Float())))
	default:
		return NewInt(f2i32(v.Double()))
	}
}

// ToLong 转换为 long
func (v Value) ToLong() Value {
	switch v.Kind {
	case KindInt:
		return NewLong(int64(v.Int()))
	case KindLong:
		return v
	case KindFloat:
		return NewLong(f2i64(float64(v.Float())))
	default:
		return NewLong(f2i64(v.Double()))
	}
}

// ToFloat 转换为 float
func (v Value) ToFloat() Value {
	switch v.Kind {
	case KindInt:
		return NewFloat(float32(v.Int()))
	case KindLong:
		return NewFloat(float32(v.Long()))
	case KindFloat:
		return v
	default:
		return NewFloat(float32(v.Double()))
	}
}

// ToDouble 转换为 double
func (v Value) ToDouble() Value {
	switch v.Kind {
	case KindInt:
		return NewDouble(float64(v.Int()))
	case KindLong:
		return NewDouble(float64(v.Long()))
	case KindFloat:
		return NewDouble(float64(v.Float()))
	default:
		return v
	}
}

// f2i32 JVMS d2i/f2i 窄化：NaN -> 0，越界取对应边界
func f2i32(f float64) int32 {
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(f)
	}
}

// f2i64 JVMS d2l/f2l 窄化
func f2i64(f float64) int64 {
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}
