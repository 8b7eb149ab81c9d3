// Package program 构建运行时的程序模型
// 将解析后的 class 文件转换为稠密的方法表：每个方法的字节码在装载时
// 一次性解码为按序的指令数组，并建立字节偏移到指令序号的映射，
// 解释器热路径上的取指只需两次数组访问，不经过哈希。
package program

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/classfile"
)

// TypeKind 方法签名中的类型
type TypeKind byte

const (
	TypeInt TypeKind = iota
	TypeLong
	TypeFloat
	TypeDouble
	TypeVoid
	TypeRef // 对象或数组引用（仅出现在 main 的参数中）
)

// Slots 返回该类型占用的局部变量槽位数
func (t TypeKind) Slots() int {
	if t == TypeLong || t == TypeDouble {
		return 2
	}
	if t == TypeVoid {
		return 0
	}
	return 1
}

// Kind 返回对应的运行时值类型
func (t TypeKind) Kind() bytecode.Kind {
	switch t {
	case TypeLong:
		return bytecode.KindLong
	case TypeFloat:
		return bytecode.KindFloat
	case TypeDouble:
		return bytecode.KindDouble
	default:
		return bytecode.KindInt
	}
}

// PC 程序计数器
// 由方法表索引与方法内字节偏移组成
type PC struct {
	Method int
	Offset int
}

// String 返回 "偏移 @ 方法" 形式
func (pc PC) String() string {
	return fmt.Sprintf("%d @ %d", pc.Offset, pc.Method)
}

// Method 运行时方法
type Method struct {
	Index      int    // 方法表索引
	Name       string // 方法名
	Descriptor string // JVM 方法描述符
	ArgTypes   []TypeKind
	ReturnType TypeKind
	MaxStack   int
	MaxLocals  int
	Native     bool

	// 稠密指令数组与字节偏移映射
	Instructions []bytecode.Instruction
	ordinalAt    []int32 // 字节偏移 -> 指令序号，非指令边界为 -1
}

// ArgSlots 返回参数占用的局部变量槽位总数
func (m *Method) ArgSlots() int {
	n := 0
	for _, t := range m.ArgTypes {
		n += t.Slots()
	}
	return n
}

// InstructionAt 按字节偏移取指令
func (m *Method) InstructionAt(offset int) (*bytecode.Instruction, bool) {
	if offset < 0 || offset >= len(m.ordinalAt) {
		return nil, false
	}
	ord := m.ordinalAt[offset]
	if ord < 0 {
		return nil, false
	}
	return &m.Instructions[ord], true
}

// Program 可执行程序：稠密方法表 + 常量池视图
type Program struct {
	Methods []*Method

	pool        []classfile.CPInfo
	byNameDesc  map[string]int // "name:descriptor" -> 方法表索引
	entryMethod int
	hasEntry    bool
}

// New 从解析后的 class 文件构建程序
func New(cf *classfile.ClassFile) (*Program, error) {
	p := &Program{
		pool:       cf.ConstantPool,
		byNameDesc: make(map[string]int),
	}

	for _, info := range cf.Methods {
		name, err := cf.Utf8At(info.NameIndex)
		if err != nil {
			return nil, err
		}
		desc, err := cf.Utf8At(info.DescriptorIndex)
		if err != nil {
			return nil, err
		}
		// <init> 等构造器不在执行范围内，保留占位以维持索引稳定
		args, ret, err := ParseDescriptor(desc)
		if err != nil {
			return nil, errors.Wrapf(err, "method %s", name)
		}

		m := &Method{
			Index:      len(p.Methods),
			Name:       name,
			Descriptor: desc,
			ArgTypes:   args,
			ReturnType: ret,
			MaxStack:   info.MaxStack,
			MaxLocals:  info.MaxLocals,
			Native:     info.AccessFlags&classfile.AccNative != 0,
		}
		if info.HasCode {
			insts, err := bytecode.DecodeAll(info.Code)
			if err != nil {
				return nil, errors.Wrapf(err, "method %s", name)
			}
			m.Instructions = insts
			m.ordinalAt = buildOrdinalTable(insts, len(info.Code))
		}
		p.byNameDesc[name+":"+desc] = m.Index
		p.Methods = append(p.Methods, m)

		if name == "main" && !p.hasEntry {
			p.entryMethod = m.Index
			p.hasEntry = true
		}
	}

	if err := p.link(); err != nil {
		return nil, err
	}
	return p, nil
}

// buildOrdinalTable 建立字节偏移到指令序号的映射
func buildOrdinalTable(insts []bytecode.Instruction, codeLen int) []int32 {
	table := make([]int32, codeLen)
	for i := range table {
		table[i] = -1
	}
	for ord := range insts {
		table[insts[ord].PC] = int32(ord)
	}
	return table
}

// link 解析指令中的常量池引用
// ldc/ldc2_w 物化为字面量，invokestatic 解析为方法表索引，
// 让指令流在进入解释器之后自包含，trace 录制无需再回查常量池。
func (p *Program) link() error {
	for _, m := range p.Methods {
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			switch inst.Op {
			case bytecode.Ldc, bytecode.LdcW:
				index := uint16(inst.Operand(0).Int())
				v, err := p.loadConstant(index, false)
				if err != nil {
					return errors.Wrapf(err, "method %s pc=%d", m.Name, inst.PC)
				}
				inst.Operands = []bytecode.Value{v}
			case bytecode.Ldc2W:
				index := uint16(inst.Operand(0).Int())
				v, err := p.loadConstant(index, true)
				if err != nil {
					return errors.Wrapf(err, "method %s pc=%d", m.Name, inst.PC)
				}
				inst.Operands = []bytecode.Value{v}
			case bytecode.Invokestatic:
				refIndex := uint16(inst.Operand(0).Int())
				target, err := p.resolveMethodref(refIndex)
				if err != nil {
					return errors.Wrapf(err, "method %s pc=%d", m.Name, inst.PC)
				}
				inst.Operands = []bytecode.Value{bytecode.NewInt(int32(target))}
			}
		}
	}
	return nil
}

// loadConstant 取常量池字面量
func (p *Program) loadConstant(index uint16, wide bool) (bytecode.Value, error) {
	if int(index) >= len(p.pool) {
		return bytecode.Value{}, errors.Errorf("constant pool index %d out of range", index)
	}
	entry := p.pool[index]
	switch entry.Tag {
	case classfile.TagInteger:
		if wide {
			break
		}
		return bytecode.NewInt(entry.I32), nil
	case classfile.TagFloat:
		if wide {
			break
		}
		return bytecode.NewFloat(entry.F32), nil
	case classfile.TagLong:
		if !wide {
			break
		}
		return bytecode.NewLong(entry.I64), nil
	case classfile.TagDouble:
		if !wide {
			break
		}
		return bytecode.NewDouble(entry.F64), nil
	}
	return bytecode.Value{}, errors.Errorf("unsupported constant pool entry %d (tag=%d)", index, entry.Tag)
}

// resolveMethodref 解析 Methodref 为本类方法表索引
func (p *Program) resolveMethodref(index uint16) (int, error) {
	name, desc, err := p.methodrefNameDesc(index)
	if err != nil {
		return 0, err
	}
	target, ok := p.byNameDesc[name+":"+desc]
	if !ok {
		return 0, errors.Errorf("unresolved method %s%s", name, desc)
	}
	return target, nil
}

// methodrefNameDesc 取 Methodref 指向的方法名与描述符
func (p *Program) methodrefNameDesc(index uint16) (string, string, error) {
	if int(index) >= len(p.pool) {
		return "", "", errors.Errorf("constant pool index %d out of range", index)
	}
	ref := p.pool[index]
	if ref.Tag != classfile.TagMethodref && ref.Tag != classfile.TagInterfaceMethodref {
		return "", "", errors.Errorf("constant pool entry %d is not a method reference", index)
	}
	if int(ref.NameAndTypeIndex) >= len(p.pool) {
		return "", "", errors.Errorf("NameAndType index %d out of range", ref.NameAndTypeIndex)
	}
	nat := p.pool[ref.NameAndTypeIndex]
	if nat.Tag != classfile.TagNameAndType {
		return "", "", errors.Errorf("constant pool entry %d is not NameAndType", ref.NameAndTypeIndex)
	}
	if int(nat.NameIndex) >= len(p.pool) || int(nat.DescriptorIndex) >= len(p.pool) {
		return "", "", errors.Errorf("NameAndType entry %d has out-of-range indexes", ref.NameAndTypeIndex)
	}
	name := p.pool[nat.NameIndex].Utf8
	desc := p.pool[nat.DescriptorIndex].Utf8
	return name, desc, nil
}

// EntryPoint 返回入口方法（main）的方法表索引
func (p *Program) EntryPoint() (int, error) {
	if !p.hasEntry {
		return 0, errors.New("class has no main method")
	}
	return p.entryMethod, nil
}

// Method 按索引取方法
func (p *Program) Method(index int) (*Method, error) {
	if index < 0 || index >= len(p.Methods) {
		return nil, errors.Errorf("method index %d out of range", index)
	}
	return p.Methods[index], nil
}

// ============================================================================
// 直接装配（测试与嵌入场景）
// ============================================================================

// AssembleMethod 从原始字节码装配方法
// 不经过常量池链接：invokestatic 的操作数按方法表索引解释，
// ldc 类指令的操作数保持解码原样（调用方可直接改写 Operands）。
func AssembleMethod(name, desc string, maxStack, maxLocals int, code []byte) (*Method, error) {
	args, ret, err := ParseDescriptor(desc)
	if err != nil {
		return nil, err
	}
	insts, err := bytecode.DecodeAll(code)
	if err != nil {
		return nil, err
	}
	return &Method{
		Name:         name,
		Descriptor:   desc,
		ArgTypes:     args,
		ReturnType:   ret,
		MaxStack:     maxStack,
		MaxLocals:    maxLocals,
		Instructions: insts,
		ordinalAt:    buildOrdinalTable(insts, len(code)),
	}, nil
}

// NewFromMethods 直接从方法表构建程序
// 方法索引按传入顺序分配；入口取第一个名为 main 的方法
func NewFromMethods(methods ...*Method) *Program {
	p := &Program{
		byNameDesc: make(map[string]int),
	}
	for _, m := range methods {
		m.Index = len(p.Methods)
		p.byNameDesc[m.Name+":"+m.Descriptor] = m.Index
		p.Methods = append(p.Methods, m)
		if m.Name == "main" && !p.hasEntry {
			p.entryMethod = m.Index
			p.hasEntry = true
		}
	}
	return p
}

// ============================================================================
// 方法描述符解析
// ============================================================================

// ParseDescriptor 解析 JVM 方法描述符，如 (IJ)D
func ParseDescriptor(desc string) ([]TypeKind, TypeKind, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, TypeVoid, errors.Errorf("malformed descriptor %q", desc)
	}
	var args []TypeKind
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := parseFieldType(desc[i:])
		if err != nil {
			return nil, TypeVoid, errors.Wrapf(err, "descriptor %q", desc)
		}
		args = append(args, t)
		i += n
	}
	if i >= len(desc) || desc[i] != ')' {
		return nil, TypeVoid, errors.Errorf("malformed descriptor %q", desc)
	}
	ret, _, err := parseFieldType(desc[i+1:])
	if err != nil {
		return nil, TypeVoid, errors.Wrapf(err, "descriptor %q", desc)
	}
	return args, ret, nil
}

// parseFieldType 解析单个类型，返回类型与消耗的字符数
func parseFieldType(s string) (TypeKind, int, error) {
	if s == "" {
		return TypeVoid, 0, errors.New("empty type")
	}
	switch s[0] {
	case 'I':
		return TypeInt, 1, nil
	case 'J':
		return TypeLong, 1, nil
	case 'F':
		return TypeFloat, 1, nil
	case 'D':
		return TypeDouble, 1, nil
	case 'V':
		return TypeVoid, 1, nil
	case 'B', 'C', 'S', 'Z':
		// 较窄的整数类型在栈上均为 int
		return TypeInt, 1, nil
	case 'L':
		for i := 1; i < len(s); i++ {
			if s[i] == ';' {
				return TypeRef, i + 1, nil
			}
		}
		return TypeVoid, 0, errors.Errorf("unterminated object type %q", s)
	case '[':
		_, n, err := parseFieldType(s[1:])
		if err != nil {
			return TypeVoid, 0, err
		}
		return TypeRef, n + 1, nil
	}
	return TypeVoid, 0, errors.Errorf("unknown type character %q", s[0])
}
