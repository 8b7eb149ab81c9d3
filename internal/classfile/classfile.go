// Package classfile 实现 JVM class 文件的子集解析
// 只解析核心运行所需的部分：常量池、方法表与 Code 属性。
// 格式参考: https://docs.oracle.com/javase/specs/jvms/se7/html/jvms-4.html
package classfile

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
)

// class 文件魔数
const Magic = 0xCAFEBABE

// 方法访问标志
const (
	AccStatic = 0x0008
	AccNative = 0x0100
)

// 常量池标签
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
)

// CPInfo 常量池条目
// 按标签解释各字段；Long/Double 占两个池槽位，第二个槽位为空条目。
type CPInfo struct {
	Tag  byte
	Utf8 string // TagUtf8
	I32  int32  // TagInteger
	F32  float32
	I64  int64 // TagLong
	F64  float64
	// 引用类条目的索引字段
	ClassIndex       uint16 // Fieldref/Methodref/InterfaceMethodref
	NameAndTypeIndex uint16
	NameIndex        uint16 // Class/NameAndType
	DescriptorIndex  uint16 // NameAndType
	StringIndex      uint16 // String
}

// MethodInfo 方法表条目
type MethodInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	MaxStack        int
	MaxLocals       int
	Code            []byte
	HasCode         bool
}

// ClassFile 解析后的 class 文件
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool []CPInfo // 1 起始索引，下标 0 为空条目
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Methods      []MethodInfo
}

// Utf8At 返回指定索引处的 Utf8 常量
func (cf *ClassFile) Utf8At(index uint16) (string, error) {
	if int(index) >= len(cf.ConstantPool) {
		return "", errors.Errorf("constant pool index %d out of range", index)
	}
	entry := cf.ConstantPool[index]
	if entry.Tag != TagUtf8 {
		return "", errors.Errorf("constant pool entry %d is not Utf8 (tag=%d)", index, entry.Tag)
	}
	return entry.Utf8, nil
}

// ============================================================================
// 读取器
// ============================================================================

// reader class 文件字节流读取器（大端序）
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remain() int { return len(r.data) - r.pos }

func (r *reader) u8() (byte, error) {
	if r.remain() < 1 {
		return 0, errors.New("unexpected end of class file")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	if r.remain() < 2 {
		return 0, errors.New("unexpected end of class file")
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.remain() < 4 {
		return 0, errors.New("unexpected end of class file")
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remain() < n {
		return nil, errors.New("unexpected end of class file")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ============================================================================
// 解析
// ============================================================================

// ReadFile 读取并解析 class 文件
func ReadFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read class file %s", path)
	}
	cf, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse class file %s", path)
	}
	return cf, nil
}

// Parse 解析 class 文件字节流
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}

	magic, err := r.u32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, errors.Errorf("bad magic 0x%08x", magic)
	}

	cf := &ClassFile{}
	if cf.MinorVersion, err = r.u16(); err != nil {
		return nil, err
	}
	if cf.MajorVersion, err = r.u16(); err != nil {
		return nil, err
	}

	if cf.ConstantPool, err = parseConstantPool(r); err != nil {
		return nil, errors.Wrap(err, "constant pool")
	}

	if cf.AccessFlags, err = r.u16(); err != nil {
		return nil, err
	}
	if cf.ThisClass, err = r.u16(); err != nil {
		return nil, err
	}
	if cf.SuperClass, err = r.u16(); err != nil {
		return nil, err
	}

	// 接口表：跳过
	ifaceCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	if _, err = r.bytes(int(ifaceCount) * 2); err != nil {
		return nil, err
	}

	// 字段表：跳过内容，但必须走完属性
	fieldCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(fieldCount); i++ {
		if err = skipMemberInfo(r); err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
	}

	methodCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(methodCount); i++ {
		m, err := parseMethod(r, cf)
		if err != nil {
			return nil, errors.Wrapf(err, "method %d", i)
		}
		cf.Methods = append(cf.Methods, m)
	}

	return cf, nil
}

// parseConstantPool 解析常量池
// count 含哨兵：有效条目为 1..count-1，Long/Double 额外占一个槽位
func parseConstantPool(r *reader) ([]CPInfo, error) {
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	pool := make([]CPInfo, count)
	for i := 1; i < int(count); i++ {
		tag, err := r.u8()
		if err != nil {
			return nil, err
		}
		entry := CPInfo{Tag: tag}
		switch tag {
		case TagUtf8:
			n, err := r.u16()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(n))
			if err != nil {
				return nil, err
			}
			entry.Utf8 = string(b)
		case TagInteger:
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			entry.I32 = int32(v)
		case TagFloat:
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			entry.F32 = float32frombits(v)
		case TagLong, TagDouble:
			hi, err := r.u32()
			if err != nil {
				return nil, err
			}
			lo, err := r.u32()
			if err != nil {
				return nil, err
			}
			raw := uint64(hi)<<32 | uint64(lo)
			if tag == TagLong {
				entry.I64 = int64(raw)
			} else {
				entry.F64 = float64frombits(raw)
			}
		case TagClass:
			if entry.NameIndex, err = r.u16(); err != nil {
				return nil, err
			}
		case TagString:
			if entry.StringIndex, err = r.u16(); err != nil {
				return nil, err
			}
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			if entry.ClassIndex, err = r.u16(); err != nil {
				return nil, err
			}
			if entry.NameAndTypeIndex, err = r.u16(); err != nil {
				return nil, err
			}
		case TagNameAndType:
			if entry.NameIndex, err = r.u16(); err != nil {
				return nil, err
			}
			if entry.DescriptorIndex, err = r.u16(); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Errorf("unsupported constant pool tag %d at index %d", tag, i)
		}
		pool[i] = entry
		if tag == TagLong || tag == TagDouble {
			// 第二个槽位保持空条目
			i++
		}
	}
	return pool, nil
}

// skipMemberInfo 跳过一个 field_info/method_info 结构
func skipMemberInfo(r *reader) error {
	if _, err := r.bytes(6); err != nil { // access, name, descriptor
		return err
	}
	attrCount, err := r.u16()
	if err != nil {
		return err
	}
	for i := 0; i < int(attrCount); i++ {
		if _, err := r.u16(); err != nil { // attribute_name_index
			return err
		}
		length, err := r.u32()
		if err != nil {
			return err
		}
		if _, err := r.bytes(int(length)); err != nil {
			return err
		}
	}
	return nil
}

// parseMethod 解析 method_info 并抽取 Code 属性
func parseMethod(r *reader, cf *ClassFile) (MethodInfo, error) {
	var m MethodInfo
	var err error
	if m.AccessFlags, err = r.u16(); err != nil {
		return m, err
	}
	if m.NameIndex, err = r.u16(); err != nil {
		return m, err
	}
	if m.DescriptorIndex, err = r.u16(); err != nil {
		return m, err
	}

	attrCount, err := r.u16()
	if err != nil {
		return m, err
	}
	for i := 0; i < int(attrCount); i++ {
		nameIndex, err := r.u16()
		if err != nil {
			return m, err
		}
		length, err := r.u32()
		if err != nil {
			return m, err
		}
		body, err := r.bytes(int(length))
		if err != nil {
			return m, err
		}
		name, err := cf.Utf8At(nameIndex)
		if err != nil {
			return m, err
		}
		if name != "Code" {
			continue
		}
		if err := parseCodeAttribute(body, &m); err != nil {
			return m, errors.Wrap(err, "Code attribute")
		}
	}
	return m, nil
}

// parseCodeAttribute 解析 Code 属性体
func parseCodeAttribute(body []byte, m *MethodInfo) error {
	r := &reader{data: body}
	maxStack, err := r.u16()
	if err != nil {
		return err
	}
	maxLocals, err := r.u16()
	if err != nil {
		return err
	}
	codeLength, err := r.u32()
	if err != nil {
		return err
	}
	code, err := r.bytes(int(codeLength))
	if err != nil {
		return err
	}
	m.MaxStack = int(maxStack)
	m.MaxLocals = int(maxLocals)
	m.Code = append([]byte(nil), code...)
	m.HasCode = true
	// 异常表与嵌套属性（LineNumberTable 等）不在核心范围内
	return nil
}

func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

func float64frombits(b uint64) float64 { return math.Float64frombits(b) }
