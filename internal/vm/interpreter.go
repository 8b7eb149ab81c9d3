// interpreter.go - 解释器主循环
//
// 单线程同步流水线：取指 -> 热度统计 -> 录制 -> 缓存查询/移交 ->
// 解释执行。profiler/recorder/jit 都在解释循环内联调用，没有
// 后台编译线程。

package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/errors"
	"github.com/tangzhangming/minijvm/internal/jit"
	"github.com/tangzhangming/minijvm/internal/profiler"
	"github.com/tangzhangming/minijvm/internal/program"
	"github.com/tangzhangming/minijvm/internal/trace"
)

// Runtime JVM 程序的执行上下文
type Runtime struct {
	prog   *program.Program
	frames []*Frame

	profiler *profiler.Profiler
	recorder *trace.Recorder
	compiler *jit.Compiler
	cache    *jit.Cache

	// returnValues 记录每次带值返回的结果，测试与 -ret 输出使用
	returnValues []bytecode.Value

	Stdout     io.Writer
	TraceDebug bool // 打印录制完成的轨迹
}

// NewRuntime 创建执行上下文
// config 为 nil 时使用默认 JIT 配置
func NewRuntime(prog *program.Program, config *jit.Config) *Runtime {
	if config == nil {
		config = jit.DefaultConfig()
	}
	return &Runtime{
		prog:     prog,
		profiler: profiler.New(config.HotThreshold),
		recorder: trace.NewRecorder(config.MaxTraceLength),
		compiler: jit.NewCompiler(config),
		cache:    jit.NewCache(config.CacheMaxBytes),
		Stdout:   os.Stdout,
	}
}

// Cache 返回 JIT 缓存（测试与诊断用）
func (r *Runtime) Cache() *jit.Cache {
	return r.cache
}

// Teardown 释放全部 JIT 资源
func (r *Runtime) Teardown() {
	r.cache.Teardown()
}

// TopReturnValue 返回最近一次带值返回的结果
func (r *Runtime) TopReturnValue() (bytecode.Value, bool) {
	if len(r.returnValues) == 0 {
		return bytecode.Value{}, false
	}
	return r.returnValues[len(r.returnValues)-1], true
}

// RunMethod 从指定方法开始执行
func (r *Runtime) RunMethod(index int, args ...bytecode.Value) *errors.Diagnostic {
	m, err := r.prog.Method(index)
	if err != nil {
		return errors.New(errors.R0103, "", -1, "%v", err)
	}
	frame := NewFrame(m)
	slot := 0
	for _, arg := range args {
		if d := frame.SetLocal(slot, arg); d != nil {
			return d
		}
		slot += 1
		if arg.Kind.Wide() {
			slot++
		}
	}
	r.frames = []*Frame{frame}
	return r.run()
}

// Run 从入口方法（main）开始执行
func (r *Runtime) Run() *errors.Diagnostic {
	entry, err := r.prog.EntryPoint()
	if err != nil {
		return errors.New(errors.R0201, "", -1, "%v", err)
	}
	return r.RunMethod(entry)
}

// run 解释器主循环
func (r *Runtime) run() *errors.Diagnostic {
	for len(r.frames) > 0 {
		frame := r.frames[len(r.frames)-1]
		pc := frame.PC

		inst, ok := frame.Method.InstructionAt(pc.Offset)
		if !ok {
			return errors.New(errors.R0002, frame.Method.Name, pc.Offset,
				"no instruction at offset %d", pc.Offset)
		}

		// 热度统计：只有回边目标会计数
		r.profiler.CountEntry(pc)

		// 热点且尚无轨迹、未被拉黑：进入录制
		if r.compiler.Enabled() && !r.recorder.Active() &&
			r.profiler.IsHot(pc) &&
			r.cache.Lookup(pc) == nil && !r.cache.Blacklisted(pc) {
			r.recorder.Begin(pc, frame.Method.MaxLocals, frame.Depth())
		}

		if r.recorder.Active() {
			switch r.recorder.Record(pc, inst, frame.Depth()) {
			case trace.StatusDone:
				r.finishRecording()
			case trace.StatusAborted:
				r.cache.Blacklist(r.recorder.Entry())
			}
		}

		// 移交：该位置有编译好的轨迹且当前不在录制
		if !r.recorder.Active() {
			if ct := r.cache.Lookup(pc); ct != nil {
				if d := r.runCompiled(frame, ct); d != nil {
					return d
				}
				continue
			}
		}

		if d := r.eval(frame, inst); d != nil {
			return d
		}
	}
	return nil
}

// finishRecording 闭合的轨迹进入编译管线
// 编译失败不终止执行：拉黑入口，继续解释
func (r *Runtime) finishRecording() {
	rec := r.recorder.Finish()
	if r.TraceDebug {
		fmt.Fprint(os.Stderr, rec.String())
	}
	ct, err := r.compiler.Compile(rec)
	if err != nil {
		r.cache.Blacklist(rec.Entry)
		return
	}
	r.cache.Install(rec.Entry, ct)
}

// runCompiled 移交垫片
// 展平局部变量 -> 调用本机代码 -> 回写局部变量 -> 设置恢复 PC。
// 负退出值是故障哨兵：编译代码命中了除零，按解释器语义报致命诊断。
func (r *Runtime) runCompiled(frame *Frame, ct *jit.CompiledTrace) *errors.Diagnostic {
	slots := frame.FlattenLocals()
	exit := ct.Execute(slots, r.cache.AuxTable())
	frame.AbsorbLocals(slots, ct.Locals.Kinds, ct.Locals.Used)
	if pc, fault := jit.DecodeFaultExit(exit); fault {
		return errors.New(errors.R0102, frame.Method.Name, pc, "division by zero")
	}
	frame.PC.Offset = exit
	// 侧退出落点计数：退出密集的位置可以成为新轨迹的根
	r.profiler.CountExit(program.PC{Method: frame.PC.Method, Offset: exit})
	return nil
}

// ============================================================================
// 指令执行
// ============================================================================

// eval 执行一条指令
// 跳转、调用与返回自行设置 PC；其余指令顺序推进
func (r *Runtime) eval(frame *Frame, inst *bytecode.Instruction) *errors.Diagnostic {
	op := inst.Op
	jumped := false

	switch {
	case op == bytecode.Nop, op == bytecode.Getstatic:
		// getstatic 只为 System.out 出现，建模为空操作

	// 常量
	case op >= bytecode.IconstM1 && op <= bytecode.Dconst1,
		op == bytecode.Bipush, op == bytecode.Sipush,
		op == bytecode.Ldc, op == bytecode.LdcW, op == bytecode.Ldc2W:
		if d := frame.Push(inst.Operand(0)); d != nil {
			return d
		}

	// 局部变量加载
	case op >= bytecode.Iload && op <= bytecode.Dload,
		op >= bytecode.Iload0 && op <= bytecode.Dload3:
		v, d := frame.GetLocal(int(inst.Operand(0).Int()))
		if d != nil {
			return d
		}
		if d := frame.Push(v); d != nil {
			return d
		}

	// 局部变量存储
	case op >= bytecode.Istore && op <= bytecode.Dstore,
		op >= bytecode.Istore0 && op <= bytecode.Dstore3:
		v, d := frame.Pop()
		if d != nil {
			return d
		}
		if d := frame.SetLocal(int(inst.Operand(0).Int()), v); d != nil {
			return d
		}

	case op == bytecode.Iinc:
		index := int(inst.Operand(0).Int())
		v, d := frame.GetLocal(index)
		if d != nil {
			return d
		}
		if d := frame.SetLocal(index, bytecode.NewInt(v.Int()+inst.Operand(1).Int())); d != nil {
			return d
		}

	// 栈操作
	case op == bytecode.Dup:
		v, d := frame.Pop()
		if d != nil {
			return d
		}
		if d := frame.Push(v); d != nil {
			return d
		}
		if d := frame.Push(v); d != nil {
			return d
		}
	case op == bytecode.Pop, op == bytecode.Pop2:
		if _, d := frame.Pop(); d != nil {
			return d
		}

	// 算术
	case op >= bytecode.Iadd && op <= bytecode.Drem:
		b, d := frame.Pop()
		if d != nil {
			return d
		}
		a, d := frame.Pop()
		if d != nil {
			return d
		}
		v, d := r.arith(frame, op, a, b)
		if d != nil {
			return d
		}
		if d := frame.Push(v); d != nil {
			return d
		}
	case op >= bytecode.Ineg && op <= bytecode.Dneg:
		v, d := frame.Pop()
		if d != nil {
			return d
		}
		if d := frame.Push(bytecode.Neg(v)); d != nil {
			return d
		}

	// 类型转换
	case op >= bytecode.I2L && op <= bytecode.D2F:
		v, d := frame.Pop()
		if d != nil {
			return d
		}
		if d := frame.Push(convert(op, v)); d != nil {
			return d
		}

	// 比较
	case op == bytecode.Lcmp, op == bytecode.Fcmpl, op == bytecode.Fcmpg,
		op == bytecode.Dcmpl, op == bytecode.Dcmpg:
		b, d := frame.Pop()
		if d != nil {
			return d
		}
		a, d := frame.Pop()
		if d != nil {
			return d
		}
		nanRes := int32(-1)
		if op == bytecode.Fcmpg || op == bytecode.Dcmpg {
			nanRes = 1
		}
		if d := frame.Push(bytecode.NewInt(bytecode.Compare(a, b, nanRes))); d != nil {
			return d
		}

	// 单操作数条件跳转
	case op >= bytecode.Ifeq && op <= bytecode.Ifle:
		v, d := frame.Pop()
		if d != nil {
			return d
		}
		if condHolds(op, v.Int()) {
			frame.PC.Offset = inst.BranchTarget()
			jumped = true
		}

	// 双操作数条件跳转
	case op >= bytecode.IfIcmpeq && op <= bytecode.IfIcmple:
		b, d := frame.Pop()
		if d != nil {
			return d
		}
		a, d := frame.Pop()
		if d != nil {
			return d
		}
		if icmpHolds(op, a.Int(), b.Int()) {
			frame.PC.Offset = inst.BranchTarget()
			jumped = true
		}

	case op == bytecode.Goto, op == bytecode.GotoW:
		frame.PC.Offset = inst.BranchTarget()
		jumped = true

	// 返回
	case op == bytecode.Ireturn, op == bytecode.Lreturn,
		op == bytecode.Freturn, op == bytecode.Dreturn:
		v, d := frame.Pop()
		if d != nil {
			return d
		}
		r.returnValues = append(r.returnValues, v)
		r.frames = r.frames[:len(r.frames)-1]
		if len(r.frames) > 0 {
			if d := r.frames[len(r.frames)-1].Push(v); d != nil {
				return d
			}
		}
		jumped = true
	case op == bytecode.Return:
		r.frames = r.frames[:len(r.frames)-1]
		jumped = true

	// 方法调用
	case op == bytecode.Invokestatic:
		if d := r.invokeStatic(frame, inst); d != nil {
			return d
		}
		jumped = true
	case op == bytecode.Invokevirtual:
		// System.out.println 建模：弹出实参并打印
		v, d := frame.Pop()
		if d != nil {
			return d
		}
		fmt.Fprintln(r.Stdout, v.String())

	default:
		return errors.New(errors.R0001, frame.Method.Name, frame.PC.Offset,
			"opcode %s is not executable in this core", op)
	}

	if !jumped {
		frame.PC.Offset = inst.FallThrough()
	}
	return nil
}

// arith 二元算术，除零按 JVMS 报致命错误
func (r *Runtime) arith(frame *Frame, op bytecode.OpCode, a, b bytecode.Value) (bytecode.Value, *errors.Diagnostic) {
	switch op {
	case bytecode.Iadd, bytecode.Ladd, bytecode.Fadd, bytecode.Dadd:
		return bytecode.Add(a, b), nil
	case bytecode.Isub, bytecode.Lsub, bytecode.Fsub, bytecode.Dsub:
		return bytecode.Sub(a, b), nil
	case bytecode.Imul, bytecode.Lmul, bytecode.Fmul, bytecode.Dmul:
		return bytecode.Mul(a, b), nil
	case bytecode.Idiv, bytecode.Ldiv:
		if isZeroDivisor(b) {
			return bytecode.Value{}, errors.New(errors.R0102, frame.Method.Name, frame.PC.Offset, "%s by zero", op)
		}
		return bytecode.Div(a, b), nil
	case bytecode.Fdiv, bytecode.Ddiv:
		return bytecode.Div(a, b), nil
	case bytecode.Irem, bytecode.Lrem:
		if isZeroDivisor(b) {
			return bytecode.Value{}, errors.New(errors.R0102, frame.Method.Name, frame.PC.Offset, "%s by zero", op)
		}
		return bytecode.Rem(a, b), nil
	case bytecode.Frem, bytecode.Drem:
		return bytecode.Rem(a, b), nil
	}
	return bytecode.Value{}, errors.New(errors.R0001, frame.Method.Name, frame.PC.Offset,
		"opcode %s is not an arithmetic instruction", op)
}

// isZeroDivisor 检查整数除数是否为零
func isZeroDivisor(v bytecode.Value) bool {
	switch v.Kind {
	case bytecode.KindInt:
		return v.Int() == 0
	case bytecode.KindLong:
		return v.Long() == 0
	}
	return false
}

// convert 类型转换指令
func convert(op bytecode.OpCode, v bytecode.Value) bytecode.Value {
	switch op {
	case bytecode.I2L, bytecode.F2L, bytecode.D2L:
		return v.ToLong()
	case bytecode.I2F, bytecode.L2F, bytecode.D2F:
		return v.ToFloat()
	case bytecode.I2D, bytecode.L2D, bytecode.F2D:
		return v.ToDouble()
	default: // L2I, F2I, D2I
		return v.ToInt()
	}
}

// condHolds 单操作数条件
func condHolds(op bytecode.OpCode, v int32) bool {
	switch op {
	case bytecode.Ifeq:
		return v == 0
	case bytecode.Ifne:
		return v != 0
	case bytecode.Iflt:
		return v < 0
	case bytecode.Ifge:
		return v >= 0
	case bytecode.Ifgt:
		return v > 0
	case bytecode.Ifle:
		return v <= 0
	}
	return false
}

// icmpHolds 双操作数条件
func icmpHolds(op bytecode.OpCode, a, b int32) bool {
	switch op {
	case bytecode.IfIcmpeq:
		return a == b
	case bytecode.IfIcmpne:
		return a != b
	case bytecode.IfIcmplt:
		return a < b
	case bytecode.IfIcmpge:
		return a >= b
	case bytecode.IfIcmpgt:
		return a > b
	case bytecode.IfIcmple:
		return a <= b
	}
	return false
}

// invokeStatic 静态调用：按参数类型建新帧
func (r *Runtime) invokeStatic(frame *Frame, inst *bytecode.Instruction) *errors.Diagnostic {
	target := int(inst.Operand(0).Int())
	m, err := r.prog.Method(target)
	if err != nil {
		return errors.New(errors.R0103, frame.Method.Name, frame.PC.Offset, "%v", err)
	}
	if m.Native {
		return errors.New(errors.R0103, frame.Method.Name, frame.PC.Offset,
			"native method %s cannot be invoked", m.Name)
	}

	callee := NewFrame(m)
	// 实参自右向左弹栈，落位到被调方法的局部变量表
	slot := m.ArgSlots()
	for i := len(m.ArgTypes) - 1; i >= 0; i-- {
		slot -= m.ArgTypes[i].Slots()
		v, d := frame.Pop()
		if d != nil {
			return d
		}
		if d := callee.SetLocal(slot, v); d != nil {
			return d
		}
	}

	// 调用方恢复点定在调用指令之后
	frame.PC.Offset = inst.FallThrough()
	r.frames = append(r.frames, callee)
	return nil
}
