package program

import (
	"testing"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/classfile"
)

// TestParseDescriptor 方法描述符解析
func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		desc string
		args []TypeKind
		ret  TypeKind
	}{
		{"()V", nil, TypeVoid},
		{"(II)I", []TypeKind{TypeInt, TypeInt}, TypeInt},
		{"(IJ)D", []TypeKind{TypeInt, TypeLong}, TypeDouble},
		{"(D)D", []TypeKind{TypeDouble}, TypeDouble},
		{"(FJI)J", []TypeKind{TypeFloat, TypeLong, TypeInt}, TypeLong},
		{"([Ljava/lang/String;)V", []TypeKind{TypeRef}, TypeVoid},
		{"(Ljava/lang/Object;I)I", []TypeKind{TypeRef, TypeInt}, TypeInt},
		{"([[I)V", []TypeKind{TypeRef}, TypeVoid},
		{"(BCSZ)I", []TypeKind{TypeInt, TypeInt, TypeInt, TypeInt}, TypeInt},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			args, ret, err := ParseDescriptor(tt.desc)
			if err != nil {
				t.Fatalf("ParseDescriptor: %v", err)
			}
			if ret != tt.ret {
				t.Errorf("ret = %v, want %v", ret, tt.ret)
			}
			if len(args) != len(tt.args) {
				t.Fatalf("args = %v, want %v", args, tt.args)
			}
			for i := range args {
				if args[i] != tt.args[i] {
					t.Errorf("arg %d = %v, want %v", i, args[i], tt.args[i])
				}
			}
		})
	}

	for _, bad := range []string{"", "()", "IIV", "(L)V", "(Q)V"} {
		if _, _, err := ParseDescriptor(bad); err == nil {
			t.Errorf("ParseDescriptor(%q) should fail", bad)
		}
	}
}

// TestArgSlots 宽类型占两个槽位
func TestArgSlots(t *testing.T) {
	m, err := AssembleMethod("f", "(IJD)V", 1, 6, []byte{0xb1})
	if err != nil {
		t.Fatalf("AssembleMethod: %v", err)
	}
	if got := m.ArgSlots(); got != 5 {
		t.Errorf("ArgSlots = %d, want 5", got)
	}
}

// TestInstructionAt 字节偏移到指令的映射
func TestInstructionAt(t *testing.T) {
	// bipush 7; istore_0; iload_0; ireturn
	m, err := AssembleMethod("f", "()I", 1, 1, []byte{0x10, 0x07, 0x3b, 0x1a, 0xac})
	if err != nil {
		t.Fatalf("AssembleMethod: %v", err)
	}

	inst, ok := m.InstructionAt(0)
	if !ok || inst.Op != bytecode.Bipush {
		t.Errorf("at 0: %v %v", inst, ok)
	}
	// 偏移 1 在 bipush 中间，不是指令边界
	if _, ok := m.InstructionAt(1); ok {
		t.Error("mid-instruction offset resolved")
	}
	inst, ok = m.InstructionAt(2)
	if !ok || inst.Op != bytecode.Istore0 {
		t.Errorf("at 2: %v %v", inst, ok)
	}
	if _, ok := m.InstructionAt(99); ok {
		t.Error("out-of-range offset resolved")
	}
}

// buildClassFile 组装一个最小的内存 class 文件：
// int 方法 answer()I 返回 ldc 常量，main([Ljava/lang/String;)V 调用它
func buildClassFile() *classfile.ClassFile {
	pool := make([]classfile.CPInfo, 16)
	pool[1] = classfile.CPInfo{Tag: classfile.TagUtf8, Utf8: "answer"}
	pool[2] = classfile.CPInfo{Tag: classfile.TagUtf8, Utf8: "()I"}
	pool[3] = classfile.CPInfo{Tag: classfile.TagUtf8, Utf8: "main"}
	pool[4] = classfile.CPInfo{Tag: classfile.TagUtf8, Utf8: "([Ljava/lang/String;)V"}
	pool[5] = classfile.CPInfo{Tag: classfile.TagInteger, I32: 1000000}
	pool[6] = classfile.CPInfo{Tag: classfile.TagNameAndType, NameIndex: 1, DescriptorIndex: 2}
	pool[7] = classfile.CPInfo{Tag: classfile.TagMethodref, ClassIndex: 9, NameAndTypeIndex: 6}
	pool[8] = classfile.CPInfo{Tag: classfile.TagDouble, F64: 2.5}
	pool[9] = classfile.CPInfo{Tag: classfile.TagClass, NameIndex: 1}

	return &classfile.ClassFile{
		MajorVersion: 51,
		ConstantPool: pool,
		Methods: []classfile.MethodInfo{
			{
				NameIndex:       1,
				DescriptorIndex: 2,
				MaxStack:        2,
				MaxLocals:       0,
				// ldc #5; ireturn
				Code:    []byte{0x12, 0x05, 0xac},
				HasCode: true,
			},
			{
				NameIndex:       3,
				DescriptorIndex: 4,
				MaxStack:        1,
				MaxLocals:       1,
				// invokestatic #7; pop; return
				Code:    []byte{0xb8, 0x00, 0x07, 0x57, 0xb1},
				HasCode: true,
			},
		},
	}
}

// TestProgramLink 常量与方法引用在装载期解析
func TestProgramLink(t *testing.T) {
	prog, err := New(buildClassFile())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// ldc 物化为字面量
	answer := prog.Methods[0]
	ldc := answer.Instructions[0]
	if ldc.Op != bytecode.Ldc || ldc.Operand(0) != bytecode.NewInt(1000000) {
		t.Errorf("ldc not linked: %v", ldc)
	}

	// invokestatic 解析为方法表索引
	main := prog.Methods[1]
	call := main.Instructions[0]
	if call.Op != bytecode.Invokestatic || call.Operand(0).Int() != 0 {
		t.Errorf("invokestatic not resolved: %v", call)
	}

	entry, err := prog.EntryPoint()
	if err != nil {
		t.Fatalf("EntryPoint: %v", err)
	}
	if entry != 1 {
		t.Errorf("entry = %d, want 1 (main)", entry)
	}
}

// TestUnresolvedMethodref 未知方法引用在装载期报错
func TestUnresolvedMethodref(t *testing.T) {
	cf := buildClassFile()
	// NameAndType 指向不存在的方法名
	cf.ConstantPool[6].NameIndex = 3 // "main" 配 ()I 描述符：找不到
	if _, err := New(cf); err == nil {
		t.Error("expected link error for unresolved methodref")
	}
}
